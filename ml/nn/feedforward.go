// feedforward.go - Zweischichtiges Feed-Forward-Netz
//
// Linear -> ReLU -> Linear. Wird sowohl fuer die Feature-Projektoren als
// auch fuer die FFW-Teilschicht der Attention-Bloecke und den Output-Head
// verwendet.
package nn

import (
	"math/rand/v2"

	"github.com/embedr/embedr/ml"
)

// FeedForward is a two-layer perceptron with a ReLU nonlinearity.
type FeedForward struct {
	Up   *Linear
	Down *Linear
}

// NewFeedForward creates a feed-forward network mapping in -> hidden -> out.
func NewFeedForward(rng *rand.Rand, in, hidden, out int) *FeedForward {
	return &FeedForward{
		Up:   NewLinear(rng, in, hidden),
		Down: NewLinear(rng, hidden, out),
	}
}

// Forward applies the network to the last dimension of x.
func (f *FeedForward) Forward(x *ml.Tensor) *ml.Tensor {
	return f.Down.Forward(ml.ReLU(f.Up.Forward(x)))
}
