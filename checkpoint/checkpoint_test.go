package checkpoint

import (
	"math"
	"path/filepath"
	"testing"

	"github.com/embedr/embedr/ml"
)

func testTensors() map[string]*ml.Tensor {
	return map[string]*ml.Tensor{
		"a.weight": ml.FromFloats([]float32{1, -2.5, 0.125, 3.75, 0, -0.0625}, 2, 3),
		"a.bias":   ml.FromFloats([]float32{0.5, -0.5, 1.5}, 3),
	}
}

func TestSaveLoadRoundtrip(t *testing.T) {
	cases := []struct {
		dtype string
		eps   float64
	}{
		{DTypeF32, 0},
		{DTypeF16, 1e-3},
		{DTypeBF16, 1e-2},
	}
	for _, tc := range cases {
		t.Run(tc.dtype, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "model.safetensors")
			want := testTensors()

			if err := Save(path, want, tc.dtype); err != nil {
				t.Fatal(err)
			}
			got, err := Load(path)
			if err != nil {
				t.Fatal(err)
			}
			if len(got) != len(want) {
				t.Fatalf("erwartet %d Tensoren, bekam %d", len(want), len(got))
			}

			for name, w := range want {
				g := got[name]
				if g == nil {
					t.Fatalf("Tensor %q fehlt nach dem Laden", name)
				}
				wf, gf := w.Floats(), g.Floats()
				for i := range wf {
					// Die Testwerte sind in F16/BF16 exakt darstellbar
					// bis auf die angegebene Toleranz
					if math.Abs(float64(wf[i]-gf[i])) > tc.eps {
						t.Errorf("%s[%d] = %g, erwartet %g", name, i, gf[i], wf[i])
					}
				}
			}
		})
	}
}

func TestLoadInto(t *testing.T) {
	path := filepath.Join(t.TempDir(), "model.safetensors")
	if err := Save(path, testTensors(), DTypeF32); err != nil {
		t.Fatal(err)
	}

	dst := map[string]*ml.Tensor{
		"a.weight": ml.Zeros(2, 3),
		"a.bias":   ml.Zeros(3),
	}
	if err := LoadInto(path, dst); err != nil {
		t.Fatal(err)
	}
	if got := dst["a.weight"].At(0, 1); got != -2.5 {
		t.Errorf("a.weight[0,1] = %g, erwartet -2.5", got)
	}
}

func TestLoadIntoMismatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "model.safetensors")
	if err := Save(path, testTensors(), DTypeF32); err != nil {
		t.Fatal(err)
	}

	cases := []struct {
		name string
		dst  map[string]*ml.Tensor
	}{
		{"fehlender tensor", map[string]*ml.Tensor{
			"a.weight": ml.Zeros(2, 3),
			"a.bias":   ml.Zeros(3),
			"b.weight": ml.Zeros(1),
		}},
		{"ueberzaehliger tensor", map[string]*ml.Tensor{
			"a.weight": ml.Zeros(2, 3),
		}},
		{"falsche shape", map[string]*ml.Tensor{
			"a.weight": ml.Zeros(3, 2),
			"a.bias":   ml.Zeros(3),
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if err := LoadInto(path, tc.dst); err == nil {
				t.Error("erwarteter Fehler blieb aus")
			}
		})
	}
}

func TestSaveUnsupportedDtype(t *testing.T) {
	path := filepath.Join(t.TempDir(), "model.safetensors")
	if err := Save(path, testTensors(), "I64"); err == nil {
		t.Error("unbekannter Datentyp wurde nicht abgelehnt")
	}
}

func TestLoadTruncated(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.safetensors")); err == nil {
		t.Error("fehlende Datei wurde nicht gemeldet")
	}
}
