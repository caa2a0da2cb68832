// dropout.go - Dropout mit explizit durchgereichter Zufallsquelle
//
// Die Zufallsquelle wird vom Aufrufer durchgereicht und nie aus globalem
// Zustand gezogen; ein nil-rng bedeutet deterministischen Modus (Identitaet).
// Es gibt genau einen gemeinsamen Strom fuer den gesamten Forward-Pass.
package nn

import (
	"fmt"
	"math/rand/v2"

	"github.com/embedr/embedr/ml"
)

// Dropout zeroes elements with probability Rate and rescales the
// survivors by 1/(1-Rate) (inverted dropout).
type Dropout struct {
	Rate float32
}

// NewDropout creates a dropout layer. Rate must be in [0, 1).
func NewDropout(rate float32) *Dropout {
	if rate < 0 || rate >= 1 {
		panic(fmt.Sprintf("nn: dropout rate %f must be in [0, 1)", rate))
	}
	return &Dropout{Rate: rate}
}

// Forward applies dropout to x. A nil rng selects deterministic mode and
// returns x unchanged, as does a zero rate.
func (d *Dropout) Forward(x *ml.Tensor, rng *rand.Rand) *ml.Tensor {
	if rng == nil || d.Rate == 0 {
		return x
	}

	scale := 1 / (1 - d.Rate)
	data := x.Floats()
	for i := range data {
		if rng.Float32() < d.Rate {
			data[i] = 0
		} else {
			data[i] *= scale
		}
	}
	return ml.FromFloats(data, x.Shape()...)
}
