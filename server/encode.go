// encode.go - Feature-Vektoren in Token-Sequenzen uebersetzen
// Beinhaltet: encodeFeatures, encodeMetadata, padRow
package server

import (
	"fmt"

	"github.com/embedr/embedr/api"
	"github.com/embedr/embedr/vocab"
)

// encodeFeatures serialisiert Feature-Vektoren zu Token-Sequenzen. Alle
// Vektoren muessen dieselbe Dimension haben, damit die Token-Breite T
// innerhalb eines Aufrufs konstant bleibt.
func encodeFeatures(sv *vocab.Serializer, features [][]float64) ([][]int32, error) {
	if len(features) == 0 {
		return nil, nil
	}

	dim := len(features[0])
	tokens := make([][]int32, len(features))
	for i, f := range features {
		if len(f) != dim {
			return nil, fmt.Errorf("feature vector %d has dimension %d, expected %d", i, len(f), dim)
		}
		enc, err := sv.EncodeVector(f)
		if err != nil {
			return nil, fmt.Errorf("encode feature vector %d: %w", i, err)
		}
		tokens[i] = enc
	}
	return tokens, nil
}

// observationFeatures sammelt die Feature-Vektoren eines Kontexts ein
func observationFeatures(observations []api.Observation) [][]float64 {
	features := make([][]float64, len(observations))
	for i, obs := range observations {
		features[i] = obs.Features
	}
	return features
}

// padRow liefert eine Fuell-Tokenzeile der Breite width
func padRow(sv *vocab.Serializer, width int) []int32 {
	row := make([]int32, width)
	for i := range row {
		row[i] = sv.InitialTokenID()
	}
	return row
}
