// nn_test.go - Unit Tests fuer die Layer-Bausteine
//
// Testet Initialisierungsskala, Linear/FeedForward-Shapes, Dropout-Modi
// und die maskierte Self-Attention.
package nn

import (
	"math"
	"math/rand/v2"
	"testing"

	"github.com/embedr/embedr/ml"
)

func testRNG() *rand.Rand {
	return rand.New(rand.NewPCG(1, 2))
}

func TestTruncatedNormalBounds(t *testing.T) {
	rng := testRNG()
	for i := 0; i < 10000; i++ {
		v := float64(TruncatedNormal(rng, InitStd))
		if math.Abs(v) > 2*InitStd {
			t.Fatalf("Wert %f ausserhalb von 2 Standardabweichungen", v)
		}
	}
}

func TestLinearShapes(t *testing.T) {
	l := NewLinear(testRNG(), 4, 6)

	tests := []struct {
		name  string
		shape []int
		want  []int
	}{
		{"2D", []int{3, 4}, []int{3, 6}},
		{"3D", []int{2, 5, 4}, []int{2, 5, 6}},
		{"4D", []int{2, 3, 5, 4}, []int{2, 3, 5, 6}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := l.Forward(ml.Zeros(tt.shape...))
			got := out.Shape()
			for d := range tt.want {
				if got[d] != tt.want[d] {
					t.Errorf("Shape = %v, erwartet %v", got, tt.want)
					break
				}
			}
		})
	}
}

func TestLinearAppliesBias(t *testing.T) {
	l := &Linear{
		Weight: ml.Zeros(2, 2),
		Bias:   ml.FromFloats([]float32{1, 2}, 2),
	}
	out := l.Forward(ml.FromFloats([]float32{5, 5}, 1, 2))

	if out.At(0, 0) != 1 || out.At(0, 1) != 2 {
		t.Errorf("Bias nicht angewendet: %v", out.Floats())
	}
}

func TestFeedForwardAppliesReLU(t *testing.T) {
	// Identitaets-Gewichte: negativer Eingang muss nach dem ReLU
	// verschwinden
	f := &FeedForward{
		Up:   &Linear{Weight: ml.FromFloats([]float32{1}, 1, 1), Bias: ml.Zeros(1)},
		Down: &Linear{Weight: ml.FromFloats([]float32{1}, 1, 1), Bias: ml.Zeros(1)},
	}

	pos := f.Forward(ml.FromFloats([]float32{3}, 1, 1))
	if pos.At(0, 0) != 3 {
		t.Errorf("Positiver Eingang = %f, erwartet 3", pos.At(0, 0))
	}

	neg := f.Forward(ml.FromFloats([]float32{-3}, 1, 1))
	if neg.At(0, 0) != 0 {
		t.Errorf("Negativer Eingang = %f, erwartet 0", neg.At(0, 0))
	}
}

func TestDropoutDeterministicMode(t *testing.T) {
	d := NewDropout(0.5)
	x := ml.Full(1, 100)

	// nil-rng = deterministischer Modus, Eingang bleibt unveraendert
	out := d.Forward(x, nil)
	for i, v := range out.Floats() {
		if v != 1 {
			t.Fatalf("Deterministischer Modus veraendert Element %d: %f", i, v)
		}
	}
}

func TestDropoutZeroRate(t *testing.T) {
	d := NewDropout(0)
	x := ml.Full(2, 10)

	out := d.Forward(x, testRNG())
	for i, v := range out.Floats() {
		if v != 2 {
			t.Fatalf("Rate 0 veraendert Element %d: %f", i, v)
		}
	}
}

func TestDropoutZeroesAndRescales(t *testing.T) {
	d := NewDropout(0.5)
	x := ml.Full(1, 10000)

	out := d.Forward(x, testRNG())
	zeros := 0
	for _, v := range out.Floats() {
		switch v {
		case 0:
			zeros++
		case 2:
			// Ueberlebende werden mit 1/(1-0.5) skaliert
		default:
			t.Fatalf("Unerwarteter Wert %f", v)
		}
	}
	if zeros < 4500 || zeros > 5500 {
		t.Errorf("Dropout-Anteil = %d/10000, erwartet ~5000", zeros)
	}
}

func TestDropoutInvalidRatePanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Errorf("Rate 1.0 sollte panicken")
		}
	}()
	NewDropout(1)
}

func TestSelfAttentionShape(t *testing.T) {
	sa := NewSelfAttention(testRNG(), 8, 2)
	x := ml.Full(0.1, 2, 5, 8)

	out := sa.Forward(x, nil)
	shape := out.Shape()
	if shape[0] != 2 || shape[1] != 5 || shape[2] != 8 {
		t.Errorf("Shape = %v, erwartet [2 5 8]", shape)
	}
}

func TestSelfAttentionMaskBlocksKeys(t *testing.T) {
	// Bei maskierter Position 1 darf deren Wert den Output von Position 0
	// nicht beeinflussen
	sa := NewSelfAttention(testRNG(), 4, 1)

	mask := ml.Zeros(1, 1, 2, 2)
	mask.Set(MaskValue, 0, 0, 0, 1)
	mask.Set(MaskValue, 0, 0, 1, 1)

	x1 := ml.FromFloats([]float32{1, 2, 3, 4, 10, 20, 30, 40}, 1, 2, 4)
	x2 := ml.FromFloats([]float32{1, 2, 3, 4, -5, -6, -7, -8}, 1, 2, 4)

	out1 := sa.Forward(x1, mask)
	out2 := sa.Forward(x2, mask)

	for i := 0; i < 4; i++ {
		a, b := out1.At(0, 0, i), out2.At(0, 0, i)
		if math.Abs(float64(a-b)) > 1e-5 {
			t.Errorf("Output von Position 0 haengt von maskierter Position ab: %f vs %f", a, b)
		}
	}
}

func TestSelfAttentionHeadBroadcastMask(t *testing.T) {
	// Maske [B, 1, L, L] muss auf mehrere Heads broadcasten
	sa := NewSelfAttention(testRNG(), 8, 4)
	mask := ml.Zeros(1, 1, 3, 3)

	out := sa.Forward(ml.Full(0.5, 1, 3, 8), mask)
	for _, v := range out.Floats() {
		if math.IsNaN(float64(v)) {
			t.Fatalf("NaN im Attention-Output")
		}
	}
}

func TestSelfAttentionIndivisibleHeadsPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Errorf("d_model nicht durch Heads teilbar sollte panicken")
		}
	}()
	NewSelfAttention(testRNG(), 7, 2)
}

func TestTokenEmbeddingLookup(t *testing.T) {
	e := &TokenEmbedding{Weight: ml.FromFloats([]float32{
		0, 0, // Token 0
		1, 2, // Token 1
		3, 4, // Token 2
	}, 3, 2)}

	out := e.Forward([][]int32{{1, 2}, {0, 1}})
	if out.Dim(0) != 2 || out.Dim(1) != 2 || out.Dim(2) != 2 {
		t.Fatalf("Shape = %v, erwartet [2 2 2]", out.Shape())
	}
	if out.At(0, 0, 0) != 1 || out.At(0, 1, 1) != 4 {
		t.Errorf("Lookup falsch: %v", out.Floats())
	}
}

func TestTokenEmbeddingOutOfRangePanics(t *testing.T) {
	e := NewTokenEmbedding(testRNG(), 4, 2)
	defer func() {
		if recover() == nil {
			t.Errorf("Token-Id ausserhalb des Vokabulars sollte panicken")
		}
	}()
	e.Forward([][]int32{{5}})
}

func TestMeanPool(t *testing.T) {
	// [1, 2, 2]: Mittelwert ueber die Token-Achse
	x := ml.FromFloats([]float32{1, 2, 3, 4}, 1, 2, 2)
	p := MeanPool(x)

	if p.Dim(0) != 1 || p.Dim(1) != 2 {
		t.Fatalf("Shape = %v, erwartet [1 2]", p.Shape())
	}
	if p.At(0, 0) != 2 || p.At(0, 1) != 3 {
		t.Errorf("MeanPool = %v, erwartet [2 3]", p.Floats())
	}
}
