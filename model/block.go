// block.go - Attention-Block mit konfigurierbarer Maske
//
// Ein Standard-Encoder-Block: Pre-Norm Self-Attention und Pre-Norm
// Feed-Forward, jeweils mit Residual-Verbindung, optional gefolgt von
// Dropout. Die Maske wird vom Aufrufer gestellt und unveraendert an die
// Attention durchgereicht.
package model

import (
	"math/rand/v2"

	"github.com/embedr/embedr/ml"
	"github.com/embedr/embedr/ml/nn"
)

// Block is one transformer encoder layer with an arbitrary attention
// mask.
type Block struct {
	AttnNorm  *nn.LayerNorm
	Attention *nn.SelfAttention
	FFWNorm   *nn.LayerNorm
	FFW       *nn.FeedForward
	Dropout   *nn.Dropout
}

// newBlock erstellt einen Block mit D Modellbreite und F versteckter
// FFW-Breite
func newBlock(rng *rand.Rand, dModel, numHeads, hidden int, dropout float32) *Block {
	return &Block{
		AttnNorm:  nn.NewLayerNorm(dModel),
		Attention: nn.NewSelfAttention(rng, dModel, numHeads),
		FFWNorm:   nn.NewLayerNorm(dModel),
		FFW:       nn.NewFeedForward(rng, dModel, hidden, dModel),
		Dropout:   nn.NewDropout(dropout),
	}
}

// Forward runs the block on x [B, L, D] with the additive attention mask
// [B, 1, L, L]. A nil rng selects deterministic mode (no dropout).
func (b *Block) Forward(x, mask *ml.Tensor, rng *rand.Rand) *ml.Tensor {
	// Attention mit Residual-Verbindung
	x = ml.Add(x, b.Attention.Forward(b.AttnNorm.Forward(x), mask))

	// Feed-Forward mit Residual-Verbindung
	x = ml.Add(x, b.FFW.Forward(b.FFWNorm.Forward(x)))

	if b.Dropout.Rate > 0 {
		x = b.Dropout.Forward(x, rng)
	}
	return x
}
