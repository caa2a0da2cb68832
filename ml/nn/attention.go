// attention.go - Multi-Head Self-Attention mit beliebiger Maske
//
// Die Maske ist additiv: zugelassene Positionen tragen 0, verbotene einen
// grossen negativen Wert, so dass die Softmax-Gewichte nur ueber die
// zugelassenen Key-Positionen renormalisiert werden. Eine nil-Maske
// bedeutet volle Self-Attention.
package nn

import (
	"fmt"
	"math"
	"math/rand/v2"

	"github.com/embedr/embedr/ml"
)

// MaskValue is the additive logit penalty for disallowed key positions.
// Large enough to zero the attention weight, small enough to keep the
// softmax finite when a query row has no allowed keys.
const MaskValue = -1e9

// SelfAttention is multi-head self-attention with separate query, key,
// value and output projections.
type SelfAttention struct {
	Query  *Linear
	Key    *Linear
	Value  *Linear
	Output *Linear

	NumHeads int
}

// NewSelfAttention creates a self-attention layer over dModel features.
// dModel must be divisible by numHeads.
func NewSelfAttention(rng *rand.Rand, dModel, numHeads int) *SelfAttention {
	if dModel%numHeads != 0 {
		panic(fmt.Sprintf("nn: d_model %d not divisible by %d heads", dModel, numHeads))
	}
	return &SelfAttention{
		Query:    NewLinear(rng, dModel, dModel),
		Key:      NewLinear(rng, dModel, dModel),
		Value:    NewLinear(rng, dModel, dModel),
		Output:   NewLinear(rng, dModel, dModel),
		NumHeads: numHeads,
	}
}

// Forward computes masked self-attention over x [B, L, D]. The optional
// mask has shape [B, 1, L, L] (broadcast over heads) or [B, H, L, L] and
// is added to the attention logits before the softmax.
func (sa *SelfAttention) Forward(x *ml.Tensor, mask *ml.Tensor) *ml.Tensor {
	batch, seqLen, dModel := x.Dim(0), x.Dim(1), x.Dim(2)
	headDim := dModel / sa.NumHeads

	query := sa.Query.Forward(x)
	key := sa.Key.Forward(x)
	value := sa.Value.Forward(x)

	// [B, L, D] -> [B, H, L, Dh]
	query = ml.Transpose(ml.Reshape(query, batch, seqLen, sa.NumHeads, headDim), 0, 2, 1, 3)
	key = ml.Transpose(ml.Reshape(key, batch, seqLen, sa.NumHeads, headDim), 0, 2, 1, 3)
	value = ml.Transpose(ml.Reshape(value, batch, seqLen, sa.NumHeads, headDim), 0, 2, 1, 3)

	scale := float32(1 / math.Sqrt(float64(headDim)))
	scores := ml.MulScalar(ml.Matmul(query, ml.Transpose(key, 0, 1, 3, 2)), scale)
	if mask != nil {
		scores = ml.Add(scores, mask)
	}
	weights := ml.Softmax(scores)

	attention := ml.Matmul(weights, value)

	// [B, H, L, Dh] -> [B, L, D]
	attention = ml.Reshape(ml.Transpose(attention, 0, 2, 1, 3), batch, seqLen, dModel)
	return sa.Output.Forward(attention)
}
