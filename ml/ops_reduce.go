// ops_reduce.go - Reduktions- und Normalisierungsoperationen
//
// Enthaelt:
// - Softmax: numerisch stabile Softmax ueber die letzte Achse
// - LayerNorm: Layer-Normalisierung ueber die letzte Achse
// - MeanLastDim: Mittelwert ueber die letzte Achse
package ml

import (
	"fmt"
	"math"
)

// Softmax computes a numerically stable softmax over the last dimension.
func Softmax(t *Tensor) *Tensor {
	if t.Rank() == 0 {
		panic("ml: softmax requires rank >= 1")
	}
	out := newTensor(t.shape)
	n := t.shape[t.Rank()-1]

	for o := 0; o < len(t.data); o += n {
		row := t.data[o : o+n]
		maxv := row[0]
		for _, v := range row[1:] {
			if v > maxv {
				maxv = v
			}
		}
		var sum float64
		for i, v := range row {
			e := math.Exp(float64(v - maxv))
			out.data[o+i] = float32(e)
			sum += e
		}
		inv := float32(1 / sum)
		for i := range row {
			out.data[o+i] *= inv
		}
	}
	return out
}

// LayerNorm normalizes the last dimension to zero mean and unit variance,
// then applies the learned gain and bias vectors.
func LayerNorm(t, gain, bias *Tensor, eps float32) *Tensor {
	n := t.shape[t.Rank()-1]
	if gain.Len() != n || bias.Len() != n {
		panic(fmt.Sprintf("ml: layernorm gain/bias length must be %d, got %d/%d", n, gain.Len(), bias.Len()))
	}
	out := newTensor(t.shape)

	for o := 0; o < len(t.data); o += n {
		row := t.data[o : o+n]

		var mean float64
		for _, v := range row {
			mean += float64(v)
		}
		mean /= float64(n)

		var variance float64
		for _, v := range row {
			d := float64(v) - mean
			variance += d * d
		}
		variance /= float64(n)

		inv := 1 / math.Sqrt(variance+float64(eps))
		for i, v := range row {
			norm := float32((float64(v) - mean) * inv)
			out.data[o+i] = norm*gain.data[i] + bias.data[i]
		}
	}
	return out
}

// MeanLastDim reduces the last dimension to its mean, dropping the axis.
func MeanLastDim(t *Tensor) *Tensor {
	if t.Rank() == 0 {
		panic("ml: mean requires rank >= 1")
	}
	n := t.shape[t.Rank()-1]
	out := newTensor(t.shape[:t.Rank()-1])

	for o := range out.data {
		var sum float64
		for i := 0; i < n; i++ {
			sum += float64(t.data[o*n+i])
		}
		out.data[o] = float32(sum / float64(n))
	}
	return out
}
