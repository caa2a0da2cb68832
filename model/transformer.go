// transformer.go - ICL-Transformer fuer Regression
//
// Dieses Modul enthaelt den Orchestrator mit seinen drei Einstiegen:
// - Call: der maskierte Forward-Pass auf fertigen Embeddings (Kernel)
// - Fit: Batch-Einstieg fuer Training/Eval-Metriken (Tokens -> Embeddings)
// - Infer: Einzelsequenz-Einstieg mit Embedding-Cache und festen Shapes
//
// Fit und Infer sind duenne Kompositionsschichten ueber Call; die
// Masken- und Attention-Logik existiert nur einmal.
package model

import (
	"fmt"
	"math/rand/v2"

	"github.com/embedr/embedr/ml"
	"github.com/embedr/embedr/ml/nn"
)

// ErrCapacity reports a target batch that does not fit into the remaining
// padded context capacity (targetIndex + Q > L).
var ErrCapacity = fmt.Errorf("model: target batch exceeds remaining context capacity")

// ICLTransformer predicts a Gaussian (mean, std) belief over y for every
// sequence position, conditioned on the context points visible through
// the bipartite attention mask.
type ICLTransformer struct {
	cfg      Config
	embedder Embedder

	xProj  *nn.FeedForward // [*, E'] -> [*, D]
	yProj  *nn.FeedForward // [*, 1]  -> [*, D]
	xyProj *nn.FeedForward // [*, 2D] -> [*, D]
	blocks []*Block
	head   *nn.FeedForward // [*, D]  -> [*, 2]
}

// New constructs an ICL transformer from the configuration. All learned
// projections share the same truncated-normal initialization scale.
func New(cfg Config, rng *rand.Rand) (*ICLTransformer, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if cfg.StdTransform == nil {
		cfg.StdTransform = SoftplusStd
	}

	embedder := cfg.EmbedderFactory()
	embedWidth := embedder.EmbedDim()
	if cfg.UseMetadata {
		// Metadaten werden an jedes x-Embedding konkateniert
		embedWidth *= 2
	}

	d := cfg.DModel
	m := &ICLTransformer{
		cfg:      cfg,
		embedder: embedder,
		xProj:    nn.NewFeedForward(rng, embedWidth, d, d),
		yProj:    nn.NewFeedForward(rng, 1, d, d),
		xyProj:   nn.NewFeedForward(rng, 2*d, 2*d, d),
		head:     nn.NewFeedForward(rng, d, d, 2),
	}
	for range cfg.NumLayers {
		m.blocks = append(m.blocks, newBlock(rng, d, cfg.NHead, d*cfg.FFWDimRatio, cfg.Dropout))
	}
	return m, nil
}

// Config returns the construction configuration.
func (m *ICLTransformer) Config() Config {
	return m.cfg
}

// Call runs the masked forward pass on precomputed embeddings.
//
// xEmb is [B, L, E'], y is [B, L], mask marks context positions true.
// y values at target positions are forced to zero before any projection;
// the original values never reach the model. A nil rng selects
// deterministic mode. Shape mismatches are caller errors and panic.
func (m *ICLTransformer) Call(xEmb, y *ml.Tensor, mask [][]bool, rng *rand.Rand) (mean, std *ml.Tensor) {
	if xEmb.Rank() != 3 {
		panic(fmt.Sprintf("model: x embeddings must be [B, L, E], got %v", xEmb.Shape()))
	}
	batch, seqLen := xEmb.Dim(0), xEmb.Dim(1)
	if y.Rank() != 2 || y.Dim(0) != batch || y.Dim(1) != seqLen {
		panic(fmt.Sprintf("model: y shape %v does not match x embeddings %v", y.Shape(), xEmb.Shape()))
	}
	if len(mask) != batch {
		panic(fmt.Sprintf("model: mask batch %d does not match x embeddings %v", len(mask), xEmb.Shape()))
	}

	xp := m.xProj.Forward(xEmb) // [B, L, D]

	// Informationsverbergung: y an Target-Positionen auf 0 erzwingen,
	// bevor irgendetwas davon projiziert wird
	yv := ml.Mul(y, maskValues(mask))           // [B, L]
	yp := m.yProj.Forward(ml.ExpandDims(yv, 2)) // [B, L, D]

	fused := m.xyProj.Forward(ml.Concat(2, xp, yp)) // [B, L, D]

	attnMask := BipartiteMask(mask) // [B, 1, L, L]
	out := fused
	for _, blk := range m.blocks {
		out = blk.Forward(out, attnMask, rng)
	}

	raw := m.head.Forward(out) // [B, L, 2]
	halves := ml.Chunk(raw, 2, 2)
	mean = ml.Squeeze(halves[0], 2)
	std = ml.Squeeze(ml.AddScalar(m.cfg.StdTransform(halves[1]), EPS), 2)
	return mean, std
}

// Fit is the batched training/eval entry. x holds token sequences
// [B, L, T], y observed values [B, L], metadata one study-level token
// sequence [B, T], mask the context markers [B, L]. Returns per-position
// (mean, std), both [B, L].
func (m *ICLTransformer) Fit(x [][][]int32, y [][]float32, metadata [][]int32, mask [][]bool, rng *rand.Rand) (mean, std [][]float32, err error) {
	batch := len(x)
	if batch == 0 {
		return nil, nil, fmt.Errorf("model: empty batch")
	}
	seqLen := len(x[0])
	if len(y) != batch || len(mask) != batch {
		return nil, nil, fmt.Errorf("model: batch sizes do not match: x=%d y=%d mask=%d", batch, len(y), len(mask))
	}
	if m.cfg.UseMetadata && len(metadata) != batch {
		return nil, nil, fmt.Errorf("model: metadata batch %d does not match x batch %d", len(metadata), batch)
	}

	flat := make([][]int32, 0, batch*seqLen)
	yFlat := make([]float32, 0, batch*seqLen)
	for b := range x {
		if len(x[b]) != seqLen || len(y[b]) != seqLen || len(mask[b]) != seqLen {
			return nil, nil, fmt.Errorf("model: sequence lengths do not match at batch %d", b)
		}
		flat = append(flat, x[b]...)
		yFlat = append(yFlat, y[b]...)
	}

	xEmb, err := embedBatch(m.embedder, flat) // [B*L, E]
	if err != nil {
		return nil, nil, fmt.Errorf("embed x: %w", err)
	}
	xEmb = ml.Reshape(xEmb, batch, seqLen, xEmb.Dim(1))

	if m.cfg.UseMetadata {
		metaEmb, err := embedBatch(m.embedder, metadata) // [B, E]
		if err != nil {
			return nil, nil, fmt.Errorf("embed metadata: %w", err)
		}
		// Auf alle L Positionen broadcasten und anhaengen
		metaEmb = ml.Repeat(ml.ExpandDims(metaEmb, 1), 1, seqLen) // [B, L, E]
		xEmb = ml.Concat(2, xEmb, metaEmb)                        // [B, L, 2E]
	}

	meanT, stdT := m.Call(xEmb, ml.FromFloats(yFlat, batch, seqLen), mask, rng)
	return tensorRows(meanT), tensorRows(stdT), nil
}

// Infer is the single-sequence inference entry. All shapes are fixed so
// repeated calls inside an optimization loop stay cache- and
// specialization-friendly: xPadded [L, T] is the padded context, yPadded
// [L] the padded observations, xTarg [Q, T] the fresh target batch,
// metadata [T] the study tokens and mask [L] marks the first count
// positions true.
//
// The context embedding is computed once and reused through the cache;
// target embeddings are recomputed every call. The returned cache value
// replaces the one passed in (population is not in-place); a nil cache
// starts an empty session. Targets that do not fit into the remaining
// capacity return ErrCapacity.
func (m *ICLTransformer) Infer(xPadded [][]int32, yPadded []float32, xTarg [][]int32, metadata []int32, mask []bool, cache *EmbeddingCache) (mean, std []float32, _ *EmbeddingCache, err error) {
	capacity := len(xPadded)
	if capacity == 0 {
		return nil, nil, cache, fmt.Errorf("model: empty padded context")
	}
	if len(yPadded) != capacity || len(mask) != capacity {
		return nil, nil, cache, fmt.Errorf("model: padded lengths do not match: x=%d y=%d mask=%d", capacity, len(yPadded), len(mask))
	}

	targetIndex := countContext(mask)
	if targetIndex+len(xTarg) > capacity {
		return nil, nil, cache, fmt.Errorf("%w: index %d + %d targets > capacity %d", ErrCapacity, targetIndex, len(xTarg), capacity)
	}

	if cache == nil {
		cache = NewEmbeddingCache()
	}
	if cache.XEmb == nil {
		// Der teure, cachebare Schritt: das volle gepolsterte
		// Kontext-Embedding
		xEmb, err := embedBatch(m.embedder, xPadded) // [L, E]
		if err != nil {
			return nil, nil, cache, fmt.Errorf("embed context: %w", err)
		}
		cache = cache.WithXEmb(xEmb)
	}
	xPadEmb := cache.XEmb

	xEmb := xPadEmb
	if len(xTarg) > 0 {
		targEmb, err := m.embedder.Embed(xTarg) // [Q, E], nie gecacht
		if err != nil {
			return nil, nil, cache, fmt.Errorf("embed targets: %w", err)
		}

		// Targets an den ersten freien Slot hinter dem Kontext legen und
		// per Maske mit dem gecachten Kontext kombinieren. Die beiden
		// Quellen sind konstruktionsbedingt disjunkt.
		overlay := ml.ZerosLike(xPadEmb)
		ml.SetSlice(overlay, targEmb, 0, targetIndex)

		w := maskValues([][]bool{mask})        // [1, L]
		w = ml.Reshape(w, capacity, 1)         // [L, 1]
		xEmb = ml.Where(w, xPadEmb, overlay)
	}

	if m.cfg.UseMetadata {
		if cache.MetadataEmb == nil {
			metaEmb, err := m.embedder.Embed([][]int32{metadata}) // [1, E]
			if err != nil {
				return nil, nil, cache, fmt.Errorf("embed metadata: %w", err)
			}
			cache = cache.WithMetadataEmb(metaEmb)
		}
		metaEmb := ml.Repeat(cache.MetadataEmb, 0, capacity) // [L, E]
		xEmb = ml.Concat(1, xEmb, metaEmb)                   // [L, 2E]
	}

	// Batch-Dimension einsetzen, deterministisch rechnen, wieder
	// entfernen
	meanT, stdT := m.Call(
		ml.ExpandDims(xEmb, 0),
		ml.FromFloats(yPadded, 1, capacity),
		[][]bool{mask},
		nil,
	)
	return ml.Squeeze(meanT, 0).Floats(), ml.Squeeze(stdT, 0).Floats(), cache, nil
}

// tensorRows wandelt einen [B, L]-Tensor in verschachtelte Slices um
func tensorRows(t *ml.Tensor) [][]float32 {
	batch, seqLen := t.Dim(0), t.Dim(1)
	data := t.Floats()
	rows := make([][]float32, batch)
	for b := range rows {
		rows[b] = data[b*seqLen : (b+1)*seqLen]
	}
	return rows
}

// Tensors returns the named weights of the model for checkpointing. The
// embedder contributes its tensors under the "embedder." prefix when it
// supports checkpointing.
func (m *ICLTransformer) Tensors() map[string]*ml.Tensor {
	ts := make(map[string]*ml.Tensor)

	addLinear := func(prefix string, l *nn.Linear) {
		ts[prefix+".weight"] = l.Weight
		ts[prefix+".bias"] = l.Bias
	}
	addFFW := func(prefix string, f *nn.FeedForward) {
		addLinear(prefix+".up", f.Up)
		addLinear(prefix+".down", f.Down)
	}
	addNorm := func(prefix string, n *nn.LayerNorm) {
		ts[prefix+".gain"] = n.Gain
		ts[prefix+".bias"] = n.Bias
	}

	addFFW("x_proj", m.xProj)
	addFFW("y_proj", m.yProj)
	addFFW("xy_proj", m.xyProj)
	addFFW("output", m.head)

	for i, blk := range m.blocks {
		p := fmt.Sprintf("blk.%d", i)
		addNorm(p+".attn_norm", blk.AttnNorm)
		addLinear(p+".attn_q", blk.Attention.Query)
		addLinear(p+".attn_k", blk.Attention.Key)
		addLinear(p+".attn_v", blk.Attention.Value)
		addLinear(p+".attn_out", blk.Attention.Output)
		addNorm(p+".ffn_norm", blk.FFWNorm)
		addFFW(p+".ffn", blk.FFW)
	}

	if tp, ok := m.embedder.(interface{ Tensors() map[string]*ml.Tensor }); ok {
		for name, tensor := range tp.Tensors() {
			ts["embedder."+name] = tensor
		}
	}
	return ts
}
