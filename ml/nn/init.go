// init.go - Gewichts-Initialisierung
//
// Alle gelernten Projektionen verwenden dieselbe Truncated-Normal-
// Initialisierung mit kleiner Standardabweichung. Die einheitliche Skala
// ueber das gesamte Modell ist Voraussetzung fuer eine gemeinsame
// Lernrate; eine abweichende Skala in einer Teilschicht destabilisiert
// das Training.
package nn

import (
	"math/rand/v2"

	"github.com/embedr/embedr/ml"
)

// InitStd is the standard deviation used for every learned projection.
const InitStd = 0.02

// TruncatedNormal samples from a normal distribution with the given
// standard deviation, truncated at two standard deviations.
func TruncatedNormal(rng *rand.Rand, std float64) float32 {
	for {
		v := rng.NormFloat64()
		if v >= -2 && v <= 2 {
			return float32(v * std)
		}
	}
}

// initTensor fuellt einen Tensor mit Truncated-Normal-Werten
func initTensor(rng *rand.Rand, shape ...int) *ml.Tensor {
	data := make([]float32, numElements(shape))
	for i := range data {
		data[i] = TruncatedNormal(rng, InitStd)
	}
	return ml.FromFloats(data, shape...)
}

func numElements(shape []int) int {
	n := 1
	for _, d := range shape {
		n *= d
	}
	return n
}
