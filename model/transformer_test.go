package model

import (
	"errors"
	"math"
	"math/rand/v2"
	"testing"

	"github.com/embedr/embedr/ml"
)

// testConfig liefert eine kleine, schnelle Konfiguration fuer Tests
func testConfig(useMetadata bool) Config {
	return Config{
		DModel:      8,
		FFWDimRatio: 2,
		NHead:       2,
		NumLayers:   2,
		UseMetadata: useMetadata,
		EmbedderFactory: func() Embedder {
			return NewPooledEmbedder(rand.New(rand.NewPCG(7, 7)), 32, 4)
		},
	}
}

func testRNG() *rand.Rand {
	return rand.New(rand.NewPCG(1, 2))
}

func TestNewValidation(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"d_model null", func(c *Config) { c.DModel = 0 }},
		{"ffw ratio negativ", func(c *Config) { c.FFWDimRatio = -1 }},
		{"nhead teilt d_model nicht", func(c *Config) { c.NHead = 3 }},
		{"dropout eins", func(c *Config) { c.Dropout = 1 }},
		{"keine layer", func(c *Config) { c.NumLayers = 0 }},
		{"kein embedder", func(c *Config) { c.EmbedderFactory = nil }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := testConfig(false)
			tc.mutate(&cfg)
			if _, err := New(cfg, testRNG()); err == nil {
				t.Error("erwarteter Konfigurationsfehler blieb aus")
			}
		})
	}
}

func TestFitShapes(t *testing.T) {
	m, err := New(testConfig(false), testRNG())
	if err != nil {
		t.Fatal(err)
	}

	x := [][][]int32{
		{{1, 2}, {3, 4}, {5, 6}},
		{{7, 8}, {9, 10}, {11, 12}},
	}
	y := [][]float32{{0.5, -1.0, 0}, {1.5, 0.25, 0}}
	mask := [][]bool{{true, true, false}, {true, true, false}}

	mean, std, err := m.Fit(x, y, nil, mask, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(mean) != 2 || len(mean[0]) != 3 || len(std) != 2 || len(std[0]) != 3 {
		t.Fatalf("unerwartete Ausgabeformen: mean=%dx%d std=%dx%d", len(mean), len(mean[0]), len(std), len(std[0]))
	}
	for b := range std {
		for i, s := range std[b] {
			if s <= EPS || math.IsNaN(float64(s)) {
				t.Errorf("std[%d][%d] = %g, muss > EPS und endlich sein", b, i, s)
			}
		}
	}
}

func TestFitDeterministic(t *testing.T) {
	m, err := New(testConfig(false), testRNG())
	if err != nil {
		t.Fatal(err)
	}

	x := [][][]int32{{{1, 2}, {3, 4}, {5, 6}, {7, 8}}}
	y := [][]float32{{0.5, -1.0, 0, 0}}
	mask := [][]bool{{true, true, false, false}}

	// nil-rng: zwei Aufrufe muessen bitidentisch sein
	m1, s1, err := m.Fit(x, y, nil, mask, nil)
	if err != nil {
		t.Fatal(err)
	}
	m2, s2, err := m.Fit(x, y, nil, mask, nil)
	if err != nil {
		t.Fatal(err)
	}
	for i := range m1[0] {
		if m1[0][i] != m2[0][i] || s1[0][i] != s2[0][i] {
			t.Fatalf("deterministischer Modus lieferte abweichende Ergebnisse an Position %d", i)
		}
	}
}

// Die y-Werte an Target-Positionen duerfen die Vorhersage nicht
// beeinflussen: sie werden vor jeder Projektion auf 0 gesetzt.
func TestTargetYHidden(t *testing.T) {
	m, err := New(testConfig(false), testRNG())
	if err != nil {
		t.Fatal(err)
	}

	x := [][][]int32{{{1, 2}, {3, 4}, {5, 6}, {7, 8}}}
	mask := [][]bool{{true, true, false, false}}

	mean1, std1, err := m.Fit(x, [][]float32{{0.5, -1.0, 0, 0}}, nil, mask, nil)
	if err != nil {
		t.Fatal(err)
	}
	mean2, std2, err := m.Fit(x, [][]float32{{0.5, -1.0, 99, -42}}, nil, mask, nil)
	if err != nil {
		t.Fatal(err)
	}
	for i := range mean1[0] {
		if mean1[0][i] != mean2[0][i] || std1[0][i] != std2[0][i] {
			t.Fatalf("y an Target-Positionen hat die Vorhersage an Position %d beeinflusst", i)
		}
	}
}

// Targets sehen einander nicht: die Vorhersage an einer Target-Position
// haengt nur vom Kontext und vom eigenen x ab.
func TestTargetsIndependent(t *testing.T) {
	m, err := New(testConfig(false), testRNG())
	if err != nil {
		t.Fatal(err)
	}

	y := [][]float32{{0.5, -1.0, 0, 0}}
	mask := [][]bool{{true, true, false, false}}

	mean1, _, err := m.Fit([][][]int32{{{1, 2}, {3, 4}, {5, 6}, {7, 8}}}, y, nil, mask, nil)
	if err != nil {
		t.Fatal(err)
	}
	// x an Position 3 (Target) aendern; Position 2 darf sich nicht bewegen
	mean2, _, err := m.Fit([][][]int32{{{1, 2}, {3, 4}, {5, 6}, {20, 21}}}, y, nil, mask, nil)
	if err != nil {
		t.Fatal(err)
	}
	if mean1[0][2] != mean2[0][2] {
		t.Errorf("Target-Position 2 hat ein anderes Target gesehen: %g != %g", mean1[0][2], mean2[0][2])
	}
	if mean1[0][3] == mean2[0][3] {
		t.Error("Target-Position 3 muss auf das eigene x reagieren")
	}
}

func TestFitWithMetadata(t *testing.T) {
	m, err := New(testConfig(true), testRNG())
	if err != nil {
		t.Fatal(err)
	}

	x := [][][]int32{{{1, 2}, {3, 4}, {5, 6}}}
	y := [][]float32{{0.5, -1.0, 0}}
	mask := [][]bool{{true, true, false}}
	metadata := [][]int32{{13, 14}}

	mean1, _, err := m.Fit(x, y, metadata, mask, nil)
	if err != nil {
		t.Fatal(err)
	}
	mean2, _, err := m.Fit(x, y, [][]int32{{15, 16}}, mask, nil)
	if err != nil {
		t.Fatal(err)
	}
	if mean1[0][2] == mean2[0][2] {
		t.Error("Metadaten muessen in die Vorhersage einfliessen")
	}

	// Ohne Metadaten-Batch muss Fit ablehnen
	if _, _, err := m.Fit(x, y, nil, mask, nil); err == nil {
		t.Error("fehlende Metadaten wurden nicht abgelehnt")
	}
}

func TestFitBatchValidation(t *testing.T) {
	m, err := New(testConfig(false), testRNG())
	if err != nil {
		t.Fatal(err)
	}

	x := [][][]int32{{{1}, {2}}}
	cases := []struct {
		name string
		y    [][]float32
		mask [][]bool
	}{
		{"leerer batch", nil, nil},
		{"y zu kurz", [][]float32{{1}}, [][]bool{{true, false}}},
		{"maske zu kurz", [][]float32{{1, 2}}, [][]bool{{true}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			xs := x
			if tc.name == "leerer batch" {
				xs = nil
			}
			if _, _, err := m.Fit(xs, tc.y, nil, tc.mask, nil); err == nil {
				t.Error("erwarteter Validierungsfehler blieb aus")
			}
		})
	}
}

func TestInferEndToEnd(t *testing.T) {
	m, err := New(testConfig(false), testRNG())
	if err != nil {
		t.Fatal(err)
	}

	// Kapazitaet 4, zwei Kontextpunkte, zwei frische Targets
	xPadded := [][]int32{{1, 2}, {3, 4}, {0, 0}, {0, 0}}
	yPadded := []float32{0.5, -1.0, 0, 0}
	mask := []bool{true, true, false, false}
	xTarg := [][]int32{{5, 6}, {7, 8}}

	mean, std, cache, err := m.Infer(xPadded, yPadded, xTarg, nil, mask, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(mean) != 4 || len(std) != 4 {
		t.Fatalf("erwartet L=4 Ausgaben, bekam mean=%d std=%d", len(mean), len(std))
	}
	if cache == nil || cache.XEmb == nil {
		t.Fatal("Kontext-Embedding wurde nicht gecacht")
	}
	for i, s := range std {
		if s <= EPS {
			t.Errorf("std[%d] = %g, muss > EPS sein", i, s)
		}
	}

	// Die Targets liegen an den Positionen 2 und 3 und muessen sich
	// unterscheiden, da ihre x-Eingaben verschieden sind
	if mean[2] == mean[3] {
		t.Error("verschiedene Targets lieferten identische Vorhersagen")
	}
}

// Fit und Infer muessen auf derselben Eingabe dieselbe Vorhersage liefern:
// beide sind Kompositionen ueber denselben Kernel.
func TestInferMatchesFit(t *testing.T) {
	m, err := New(testConfig(false), testRNG())
	if err != nil {
		t.Fatal(err)
	}

	xPadded := [][]int32{{1, 2}, {3, 4}, {0, 0}, {0, 0}}
	yPadded := []float32{0.5, -1.0, 0, 0}
	mask := []bool{true, true, false, false}
	xTarg := [][]int32{{5, 6}, {7, 8}}

	inferMean, inferStd, _, err := m.Infer(xPadded, yPadded, xTarg, nil, mask, nil)
	if err != nil {
		t.Fatal(err)
	}

	// Dieselbe Sequenz mit eingesetzten Targets als Fit-Batch
	fitMean, fitStd, err := m.Fit(
		[][][]int32{{{1, 2}, {3, 4}, {5, 6}, {7, 8}}},
		[][]float32{yPadded},
		nil,
		[][]bool{mask},
		nil,
	)
	if err != nil {
		t.Fatal(err)
	}

	const eps = 1e-5
	for i := range inferMean {
		if math.Abs(float64(inferMean[i]-fitMean[0][i])) > eps {
			t.Errorf("mean[%d]: Infer %g != Fit %g", i, inferMean[i], fitMean[0][i])
		}
		if math.Abs(float64(inferStd[i]-fitStd[0][i])) > eps {
			t.Errorf("std[%d]: Infer %g != Fit %g", i, inferStd[i], fitStd[0][i])
		}
	}
}

// Bei drei Kontextpunkten beginnt das Target-Overlay an Position 3 und
// belegt exakt die Positionen 3 und 4.
func TestInferOverlayPlacement(t *testing.T) {
	m, err := New(testConfig(false), testRNG())
	if err != nil {
		t.Fatal(err)
	}

	xPadded := [][]int32{{1, 2}, {3, 4}, {5, 6}, {0, 0}, {0, 0}}
	yPadded := []float32{0.5, -1.0, 0.25, 0, 0}
	mask := []bool{true, true, true, false, false}
	xTarg := [][]int32{{7, 8}, {9, 10}}

	inferMean, _, _, err := m.Infer(xPadded, yPadded, xTarg, nil, mask, nil)
	if err != nil {
		t.Fatal(err)
	}

	fitMean, _, err := m.Fit(
		[][][]int32{{{1, 2}, {3, 4}, {5, 6}, {7, 8}, {9, 10}}},
		[][]float32{yPadded},
		nil,
		[][]bool{mask},
		nil,
	)
	if err != nil {
		t.Fatal(err)
	}

	for _, pos := range []int{3, 4} {
		if math.Abs(float64(inferMean[pos]-fitMean[0][pos])) > 1e-5 {
			t.Errorf("Overlay an Position %d: Infer %g != Fit %g", pos, inferMean[pos], fitMean[0][pos])
		}
	}
}

func TestInferCacheReuse(t *testing.T) {
	m, err := New(testConfig(true), testRNG())
	if err != nil {
		t.Fatal(err)
	}

	xPadded := [][]int32{{1, 2}, {3, 4}, {0, 0}, {0, 0}}
	yPadded := []float32{0.5, -1.0, 0, 0}
	mask := []bool{true, true, false, false}
	metadata := []int32{13, 14}

	mean1, _, cache, err := m.Infer(xPadded, yPadded, [][]int32{{5, 6}}, metadata, mask, nil)
	if err != nil {
		t.Fatal(err)
	}
	xEmb, metaEmb := cache.XEmb, cache.MetadataEmb
	if xEmb == nil || metaEmb == nil {
		t.Fatal("Cache wurde nicht vollstaendig befuellt")
	}

	// Zweiter Aufruf mit befuelltem Cache: identisches Ergebnis, keine
	// Neu-Berechnung der gecachten Embeddings
	mean2, _, cache2, err := m.Infer(xPadded, yPadded, [][]int32{{5, 6}}, metadata, mask, cache)
	if err != nil {
		t.Fatal(err)
	}
	if cache2.XEmb != xEmb || cache2.MetadataEmb != metaEmb {
		t.Error("befuellte Cache-Eintraege wurden ersetzt statt wiederverwendet")
	}
	for i := range mean1 {
		if mean1[i] != mean2[i] {
			t.Fatalf("Cache-Wiederverwendung aenderte die Vorhersage an Position %d", i)
		}
	}
}

func TestInferCacheImmutable(t *testing.T) {
	m, err := New(testConfig(false), testRNG())
	if err != nil {
		t.Fatal(err)
	}

	empty := NewEmbeddingCache()
	_, _, populated, err := m.Infer(
		[][]int32{{1, 2}, {0, 0}},
		[]float32{0.5, 0},
		[][]int32{{3, 4}},
		nil,
		[]bool{true, false},
		empty,
	)
	if err != nil {
		t.Fatal(err)
	}
	if empty.XEmb != nil {
		t.Error("uebergebener Cache wurde in-place mutiert")
	}
	if populated.XEmb == nil {
		t.Error("zurueckgegebener Cache ist nicht befuellt")
	}
}

func TestInferCapacity(t *testing.T) {
	m, err := New(testConfig(false), testRNG())
	if err != nil {
		t.Fatal(err)
	}

	// Drei Kontextpunkte, Kapazitaet 4: zwei Targets passen nicht mehr
	xPadded := [][]int32{{1, 2}, {3, 4}, {5, 6}, {0, 0}}
	yPadded := []float32{0.5, -1.0, 0.25, 0}
	mask := []bool{true, true, true, false}

	_, _, _, err = m.Infer(xPadded, yPadded, [][]int32{{7, 8}, {9, 10}}, nil, mask, nil)
	if !errors.Is(err, ErrCapacity) {
		t.Fatalf("erwartet ErrCapacity, bekam %v", err)
	}

	// Ein Target passt noch
	if _, _, _, err := m.Infer(xPadded, yPadded, [][]int32{{7, 8}}, nil, mask, nil); err != nil {
		t.Fatalf("ein Target innerhalb der Kapazitaet schlug fehl: %v", err)
	}
}

func TestStdTransforms(t *testing.T) {
	raw := ml.FromFloats([]float32{-50, -1, 0, 1, 50}, 5)

	soft := SoftplusStd(raw).Floats()
	exp := ExpStd(raw).Floats()
	for i := range soft {
		if soft[i] < 0 || exp[i] < 0 {
			t.Errorf("Transformationen muessen nicht-negativ sein: softplus=%g exp=%g", soft[i], exp[i])
		}
	}
	// Softplus ist fuer grosse Eingaben ~identisch
	if math.Abs(float64(soft[4]-50)) > 1e-3 {
		t.Errorf("softplus(50) = %g, erwartet ~50", soft[4])
	}
}

func TestTensorsNames(t *testing.T) {
	m, err := New(testConfig(false), testRNG())
	if err != nil {
		t.Fatal(err)
	}

	ts := m.Tensors()
	want := []string{
		"x_proj.up.weight", "x_proj.down.bias",
		"y_proj.up.weight", "xy_proj.down.weight",
		"output.down.weight",
		"blk.0.attn_norm.gain", "blk.0.attn_q.weight", "blk.0.attn_out.bias",
		"blk.1.ffn_norm.bias", "blk.1.ffn.up.weight",
		"embedder.token_embd.weight",
	}
	for _, name := range want {
		if ts[name] == nil {
			t.Errorf("Tensor %q fehlt im Checkpoint-Export", name)
		}
	}
}
