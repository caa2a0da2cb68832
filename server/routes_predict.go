// routes_predict.go - Stateless Predict Handler
// Beinhaltet: PredictHandler (/api/predict)
package server

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/embedr/embedr/api"
)

// PredictHandler bewertet Target-Punkte gegen einen Kontext in einem
// einzelnen zustandslosen Aufruf
func (s *Server) PredictHandler(c *gin.Context) {
	start := time.Now()

	var req api.PredictRequest
	err := c.ShouldBindJSON(&req)
	switch {
	case errors.Is(err, io.EOF):
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "missing request body"})
		return
	case err != nil:
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if len(req.Targets) == 0 {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "no targets given"})
		return
	}

	predictions, err := s.predict(req.Context, req.Targets, req.Metadata)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	s.logRequest(c, "predict", len(req.Context), len(req.Targets), start)
	c.JSON(http.StatusOK, api.PredictResponse{Predictions: predictions})
}

// predict baut eine Sequenz aus Kontext und Targets und bewertet sie im
// Fit-Modus (ein Batch, Kontext-Maske nur auf den Kontext-Positionen)
func (s *Server) predict(context []api.Observation, targets [][]float64, metadata []float64) ([]api.Prediction, error) {
	features := append(observationFeatures(context), targets...)
	tokens, err := encodeFeatures(s.vocab, features)
	if err != nil {
		return nil, err
	}

	seqLen := len(tokens)
	y := make([]float32, seqLen)
	mask := make([]bool, seqLen)
	for i, obs := range context {
		y[i] = float32(obs.Value)
		mask[i] = true
	}

	var metaTokens [][]int32
	if s.model.Config().UseMetadata {
		enc, err := s.vocab.EncodeVector(metadata)
		if err != nil {
			return nil, err
		}
		metaTokens = [][]int32{enc}
	}

	mean, std, err := s.model.Fit([][][]int32{tokens}, [][]float32{y}, metaTokens, [][]bool{mask}, nil)
	if err != nil {
		return nil, err
	}

	predictions := make([]api.Prediction, len(targets))
	for i := range targets {
		pos := len(context) + i
		predictions[i] = api.Prediction{
			Mean: float64(mean[0][pos]),
			Std:  float64(std[0][pos]),
		}
	}
	return predictions, nil
}

// logRequest protokolliert eine bearbeitete Anfrage
func (s *Server) logRequest(c *gin.Context, op string, contextLen, targetLen int, start time.Time) {
	slog.Debug("request handled",
		"op", op,
		"path", c.Request.URL.Path,
		"context", contextLen,
		"targets", targetLen,
		"duration", time.Since(start),
	)
}
