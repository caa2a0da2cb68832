// mask.go - Bipartite Attention-Maske
//
// Die Sichtbarkeit haengt nur von der Rolle der Key-Position ab: jede
// Zeile sieht alle Kontext-Spalten und keine Target-Spalte. Das ist
// keine Kausalmaske; alle Zeilen der Maske sind identisch.
package model

import (
	"fmt"

	"github.com/embedr/embedr/ml"
	"github.com/embedr/embedr/ml/nn"
)

// BipartiteMask builds the additive attention mask [B, 1, L, L] from the
// 1-D context masks: position (i, j) is allowed iff mask[b][j] is true,
// independent of i. The head axis has size 1 and broadcasts.
func BipartiteMask(mask [][]bool) *ml.Tensor {
	batch := len(mask)
	if batch == 0 {
		panic("model: empty mask batch")
	}
	seqLen := len(mask[0])

	data := make([]float32, batch*seqLen*seqLen)
	for b, row := range mask {
		if len(row) != seqLen {
			panic(fmt.Sprintf("model: mask row %d has length %d, expected %d", b, len(row), seqLen))
		}
		// Eine Zeile aufbauen und auf alle L Query-Zeilen kopieren
		base := b * seqLen * seqLen
		for j, ctx := range row {
			if !ctx {
				data[base+j] = nn.MaskValue
			}
		}
		for i := 1; i < seqLen; i++ {
			copy(data[base+i*seqLen:base+(i+1)*seqLen], data[base:base+seqLen])
		}
	}
	return ml.FromFloats(data, batch, 1, seqLen, seqLen)
}

// maskValues converts the boolean context masks to a float tensor [B, L]
// with 1 at context positions and 0 at target positions.
func maskValues(mask [][]bool) *ml.Tensor {
	batch := len(mask)
	seqLen := len(mask[0])

	data := make([]float32, batch*seqLen)
	for b, row := range mask {
		for j, ctx := range row {
			if ctx {
				data[b*seqLen+j] = 1
			}
		}
	}
	return ml.FromFloats(data, batch, seqLen)
}

// countContext summiert die Kontext-Positionen einer Maske
func countContext(mask []bool) int {
	n := 0
	for _, ctx := range mask {
		if ctx {
			n++
		}
	}
	return n
}
