// linear.go - Linear-Layer
//
// Dichte Projektion [..., in] -> [..., out]. Fuehrende Achsen werden fuer
// die Matrixmultiplikation zusammengefasst und anschliessend
// wiederhergestellt.
package nn

import (
	"math/rand/v2"

	"github.com/embedr/embedr/ml"
)

// Linear is a dense projection with weight [in, out] and bias [out].
type Linear struct {
	Weight *ml.Tensor
	Bias   *ml.Tensor
}

// NewLinear creates a linear layer with truncated-normal weights and zero
// bias.
func NewLinear(rng *rand.Rand, in, out int) *Linear {
	return &Linear{
		Weight: initTensor(rng, in, out),
		Bias:   ml.Zeros(out),
	}
}

// Forward applies the projection to the last dimension of x.
func (l *Linear) Forward(x *ml.Tensor) *ml.Tensor {
	in := l.Weight.Dim(0)
	out := l.Weight.Dim(1)

	shape := x.Shape()
	lead := shape[:len(shape)-1]

	flat := ml.Reshape(x, x.Len()/in, in)
	y := ml.Matmul(flat, l.Weight)
	y = ml.Add(y, l.Bias)

	return ml.Reshape(y, append(append([]int{}, lead...), out)...)
}
