// embedder.go - Embedder-Schnittstelle und Standard-Implementierung
//
// Dieses Modul enthaelt:
// - Embedder: externe Schnittstelle Token-Sequenzen -> Embeddings
// - PooledEmbedder: mitgelieferter Embedder (Lookup + Mean-Pooling)
// - embedBatch: Flatten-Embed-Restore mit parallelen Chunks
package model

import (
	"fmt"
	"math/rand/v2"

	"golang.org/x/sync/errgroup"

	"github.com/embedr/embedr/ml"
	"github.com/embedr/embedr/ml/nn"
)

// Embedder maps token-id sequences [N, T] to embeddings [N, E]. T is
// fixed within one call. Implementations must be deterministic for fixed
// weights, must never touch the embedding cache (caching is the
// transformer's responsibility) and must be safe for concurrent use:
// Fit embeds chunks of a batch in parallel.
type Embedder interface {
	Embed(tokens [][]int32) (*ml.Tensor, error)
	EmbedDim() int
}

// embedChunkSize begrenzt die Sequenzen pro Embed-Aufruf. Das Embedding
// langer Kontexte dominiert den Speicherbedarf; kleinere Bloecke halten
// die Spitzenlast unabhaengig von B*L.
const embedChunkSize = 256

// embedBatch embeds a flat batch of token sequences in parallel chunks
// and concatenates the results into a single [N, E] tensor.
func embedBatch(e Embedder, tokens [][]int32) (*ml.Tensor, error) {
	n := len(tokens)
	if n == 0 {
		return nil, fmt.Errorf("model: empty token batch")
	}
	if n <= embedChunkSize {
		return e.Embed(tokens)
	}

	chunks := (n + embedChunkSize - 1) / embedChunkSize
	parts := make([]*ml.Tensor, chunks)

	var g errgroup.Group
	for i := range chunks {
		g.Go(func() error {
			lo := i * embedChunkSize
			hi := min(lo+embedChunkSize, n)
			emb, err := e.Embed(tokens[lo:hi])
			if err != nil {
				return err
			}
			parts[i] = emb
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return ml.Concat(0, parts...), nil
}

// PooledEmbedder is the built-in embedder: a token lookup table followed
// by mean pooling over the token axis.
type PooledEmbedder struct {
	Embedding *nn.TokenEmbedding
	dim       int
}

// NewPooledEmbedder creates a pooled embedder over vocabSize token ids
// with embedding width embedDim.
func NewPooledEmbedder(rng *rand.Rand, vocabSize, embedDim int) *PooledEmbedder {
	return &PooledEmbedder{
		Embedding: nn.NewTokenEmbedding(rng, vocabSize, embedDim),
		dim:       embedDim,
	}
}

// Embed maps token sequences [N, T] to pooled embeddings [N, E].
func (p *PooledEmbedder) Embed(tokens [][]int32) (*ml.Tensor, error) {
	return nn.MeanPool(p.Embedding.Forward(tokens)), nil
}

// EmbedDim returns the embedding width E.
func (p *PooledEmbedder) EmbedDim() int {
	return p.dim
}

// Tensors exposes the named weights for checkpointing.
func (p *PooledEmbedder) Tensors() map[string]*ml.Tensor {
	return map[string]*ml.Tensor{
		"token_embd.weight": p.Embedding.Weight,
	}
}
