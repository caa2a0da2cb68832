// ops_math.go - Elementweise Operationen
//
// Enthaelt:
// - Binaere Operationen mit Broadcasting (Add, Sub, Mul, Div)
// - Scalar-Operationen (AddScalar, MulScalar)
// - Unaere Operationen (Exp, ReLU, Softplus)
// - Auswahl per Maske (Where)
//
// Broadcasting folgt den ueblichen Regeln: Shapes werden rechtsbuendig
// ausgerichtet, Dimensionen muessen gleich sein oder 1 betragen.
package ml

import (
	"fmt"
	"math"
)

// broadcastShape bestimmt die Ergebnis-Shape zweier Operanden
func broadcastShape(a, b []int) []int {
	rank := max(len(a), len(b))
	out := make([]int, rank)
	for d := 1; d <= rank; d++ {
		ad, bd := 1, 1
		if d <= len(a) {
			ad = a[len(a)-d]
		}
		if d <= len(b) {
			bd = b[len(b)-d]
		}
		switch {
		case ad == bd:
			out[rank-d] = ad
		case ad == 1:
			out[rank-d] = bd
		case bd == 1:
			out[rank-d] = ad
		default:
			panic(fmt.Sprintf("ml: cannot broadcast shapes %v and %v", a, b))
		}
	}
	return out
}

// broadcastStrides liefert Strides relativ zur Ziel-Shape,
// mit Stride 0 fuer broadcastete Dimensionen
func broadcastStrides(shape, target []int) []int {
	strides := contiguousStrides(shape)
	out := make([]int, len(target))
	for d := 1; d <= len(target); d++ {
		if d <= len(shape) && shape[len(shape)-d] != 1 {
			out[len(target)-d] = strides[len(shape)-d]
		}
	}
	return out
}

// binaryOp wendet f elementweise mit Broadcasting an
func binaryOp(a, b *Tensor, f func(x, y float32) float32) *Tensor {
	if sameShape(a.shape, b.shape) {
		out := newTensor(a.shape)
		for i := range out.data {
			out.data[i] = f(a.data[i], b.data[i])
		}
		return out
	}

	shape := broadcastShape(a.shape, b.shape)
	out := newTensor(shape)
	as := broadcastStrides(a.shape, shape)
	bs := broadcastStrides(b.shape, shape)

	idx := make([]int, len(shape))
	ao, bo := 0, 0
	for i := range out.data {
		out.data[i] = f(a.data[ao], b.data[bo])

		for d := len(shape) - 1; d >= 0; d-- {
			idx[d]++
			ao += as[d]
			bo += bs[d]
			if idx[d] < shape[d] {
				break
			}
			idx[d] = 0
			ao -= shape[d] * as[d]
			bo -= shape[d] * bs[d]
		}
	}
	return out
}

// unaryOp wendet f elementweise an
func unaryOp(t *Tensor, f func(x float32) float32) *Tensor {
	out := newTensor(t.shape)
	for i, v := range t.data {
		out.data[i] = f(v)
	}
	return out
}

// Add adds two tensors element-wise with broadcasting.
func Add(a, b *Tensor) *Tensor {
	return binaryOp(a, b, func(x, y float32) float32 { return x + y })
}

// Sub subtracts two tensors element-wise with broadcasting.
func Sub(a, b *Tensor) *Tensor {
	return binaryOp(a, b, func(x, y float32) float32 { return x - y })
}

// Mul multiplies two tensors element-wise with broadcasting.
func Mul(a, b *Tensor) *Tensor {
	return binaryOp(a, b, func(x, y float32) float32 { return x * y })
}

// Div divides two tensors element-wise with broadcasting.
func Div(a, b *Tensor) *Tensor {
	return binaryOp(a, b, func(x, y float32) float32 { return x / y })
}

// AddScalar adds a scalar to every element.
func AddScalar(t *Tensor, s float32) *Tensor {
	return unaryOp(t, func(x float32) float32 { return x + s })
}

// MulScalar multiplies every element by a scalar.
func MulScalar(t *Tensor, s float32) *Tensor {
	return unaryOp(t, func(x float32) float32 { return x * s })
}

// Exp computes the element-wise exponential.
func Exp(t *Tensor) *Tensor {
	return unaryOp(t, func(x float32) float32 {
		return float32(math.Exp(float64(x)))
	})
}

// ReLU computes element-wise max(x, 0).
func ReLU(t *Tensor) *Tensor {
	return unaryOp(t, func(x float32) float32 {
		if x > 0 {
			return x
		}
		return 0
	})
}

// Where selects element-wise from a where cond is non-zero and from b
// otherwise. cond broadcasts against both operands.
func Where(cond, a, b *Tensor) *Tensor {
	pick := unaryOp(cond, func(x float32) float32 {
		if x != 0 {
			return 1
		}
		return 0
	})
	return Add(Mul(pick, Sub(a, b)), b)
}

// Softplus computes element-wise log(1 + exp(x)), numerically stabilized
// for large magnitudes in both directions.
func Softplus(t *Tensor) *Tensor {
	return unaryOp(t, func(x float32) float32 {
		switch {
		case x > 30:
			return x
		case x < -30:
			return float32(math.Exp(float64(x)))
		default:
			return float32(math.Log1p(math.Exp(float64(x))))
		}
	})
}
