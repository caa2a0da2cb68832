// embedding.go - Token-Embedding mit Mean-Pooling
//
// Baustein fuer den mitgelieferten Standard-Embedder: Lookup-Tabelle
// [V, E] plus Mittelwert-Pooling ueber die Token-Achse.
package nn

import (
	"fmt"
	"math/rand/v2"

	"github.com/embedr/embedr/ml"
)

// TokenEmbedding is a lookup table mapping token ids to dense vectors.
type TokenEmbedding struct {
	Weight *ml.Tensor // [V, E]
}

// NewTokenEmbedding creates a token embedding for vocabSize ids of width
// embedDim.
func NewTokenEmbedding(rng *rand.Rand, vocabSize, embedDim int) *TokenEmbedding {
	return &TokenEmbedding{Weight: initTensor(rng, vocabSize, embedDim)}
}

// Forward looks up each token id and returns embeddings [N, T, E].
func (e *TokenEmbedding) Forward(tokens [][]int32) *ml.Tensor {
	vocabSize, embedDim := e.Weight.Dim(0), e.Weight.Dim(1)
	n := len(tokens)
	if n == 0 {
		panic("nn: empty token batch")
	}
	seqLen := len(tokens[0])

	weights := e.Weight.Floats()
	data := make([]float32, n*seqLen*embedDim)
	for i, seq := range tokens {
		if len(seq) != seqLen {
			panic(fmt.Sprintf("nn: token sequence %d has length %d, expected %d", i, len(seq), seqLen))
		}
		for j, id := range seq {
			if id < 0 || int(id) >= vocabSize {
				panic(fmt.Sprintf("nn: token id %d out of vocabulary range %d", id, vocabSize))
			}
			copy(data[(i*seqLen+j)*embedDim:], weights[int(id)*embedDim:(int(id)+1)*embedDim])
		}
	}
	return ml.FromFloats(data, n, seqLen, embedDim)
}

// MeanPool averages embeddings [N, T, E] over the token axis to [N, E].
func MeanPool(t *ml.Tensor) *ml.Tensor {
	// [N, T, E] -> [N, E, T] -> Mittelwert ueber T
	return ml.MeanLastDim(ml.Transpose(t, 0, 2, 1))
}
