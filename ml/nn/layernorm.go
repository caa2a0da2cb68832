// layernorm.go - Layer-Normalisierung mit gelernten Parametern
package nn

import (
	"github.com/embedr/embedr/ml"
)

// LayerNorm normalizes the last dimension with learned gain and bias.
type LayerNorm struct {
	Gain *ml.Tensor
	Bias *ml.Tensor
	Eps  float32
}

// NewLayerNorm creates a layer norm with unit gain and zero bias.
func NewLayerNorm(dim int) *LayerNorm {
	return &LayerNorm{
		Gain: ml.Full(1, dim),
		Bias: ml.Zeros(dim),
		Eps:  1e-5,
	}
}

// Forward normalizes the last dimension of x.
func (l *LayerNorm) Forward(x *ml.Tensor) *ml.Tensor {
	return ml.LayerNorm(x, l.Gain, l.Bias, l.Eps)
}
