// routes_session.go - Session Handler
// Beinhaltet: CreateSessionHandler, ListSessionsHandler, ObserveHandler,
// SessionPredictHandler, DeleteSessionHandler
package server

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/embedr/embedr/api"
	"github.com/embedr/embedr/model"
	"github.com/embedr/embedr/store"
)

// defaultCapacity ist die Kontext-Kapazitaet, wenn der Client keine angibt
const defaultCapacity = 128

// CreateSessionHandler oeffnet eine Session mit fester Kapazitaet,
// optional vorbefuellt aus einer gespeicherten Studie
func (s *Server) CreateSessionHandler(c *gin.Context) {
	var req api.CreateSessionRequest
	err := c.ShouldBindJSON(&req)
	switch {
	case errors.Is(err, io.EOF):
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "missing request body"})
		return
	case err != nil:
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if req.Capacity == 0 {
		req.Capacity = defaultCapacity
	}
	if req.Capacity < 0 {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "capacity must be positive"})
		return
	}

	metadata := req.Metadata
	var observations []api.Observation
	if req.Study != "" {
		if s.store == nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "study persistence is not enabled"})
			return
		}
		study, err := s.store.GetStudy(req.Study)
		if errors.Is(err, store.ErrNotFound) {
			c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		if err != nil {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		if len(study.Observations) > req.Capacity {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "study has more observations than the session capacity"})
			return
		}
		observations = study.Observations
		if metadata == nil {
			metadata = study.Metadata
		}
	}

	sess, err := s.sessions.create(req.Capacity, req.Study, metadata, observations)
	if errors.Is(err, errTooManySessions) {
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()
	c.JSON(http.StatusOK, sess.response())
}

// ListSessionsHandler listet alle offenen Sessions
func (s *Server) ListSessionsHandler(c *gin.Context) {
	var resp api.ListSessionsResponse
	for _, sess := range s.sessions.list() {
		sess.mu.Lock()
		resp.Sessions = append(resp.Sessions, sess.response())
		sess.mu.Unlock()
	}
	c.JSON(http.StatusOK, resp)
}

// ObserveHandler haengt Beobachtungen an den Kontext einer Session
func (s *Server) ObserveHandler(c *gin.Context) {
	sess, err := s.sessions.get(c.Param("id"))
	if err != nil {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}

	var req api.ObserveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if len(req.Observations) == 0 {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "no observations given"})
		return
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()

	if err := sess.observe(req.Observations); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	// An Studien gebundene Sessions persistieren ihre Beobachtungen
	if sess.study != "" && s.store != nil {
		if err := s.store.AddObservations(sess.study, req.Observations); err != nil {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
	}

	c.JSON(http.StatusOK, sess.response())
}

// SessionPredictHandler bewertet frische Targets gegen den Kontext einer
// Session und haelt dabei den Embedding-Cache aktuell
func (s *Server) SessionPredictHandler(c *gin.Context) {
	start := time.Now()

	sess, err := s.sessions.get(c.Param("id"))
	if err != nil {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}

	var req api.SessionPredictRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if len(req.Targets) == 0 {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "no targets given"})
		return
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()

	predictions, err := s.sessionPredict(sess, req.Targets)
	if errors.Is(err, model.ErrCapacity) {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	s.logRequest(c, "session predict", len(sess.observations), len(req.Targets), start)
	c.JSON(http.StatusOK, api.PredictResponse{Predictions: predictions})
}

// sessionPredict baut die gepolsterten Eingaben fester Shapes und ruft die
// Einzelsequenz-Inferenz auf; der Aufrufer haelt sess.mu
func (s *Server) sessionPredict(sess *session, targets [][]float64) ([]api.Prediction, error) {
	contextTokens, err := encodeFeatures(s.vocab, observationFeatures(sess.observations))
	if err != nil {
		return nil, err
	}
	targetTokens, err := encodeFeatures(s.vocab, targets)
	if err != nil {
		return nil, err
	}

	// Token-Breite aus den Targets; der Kontext muss dieselbe haben
	width := len(targetTokens[0])
	if len(contextTokens) > 0 && len(contextTokens[0]) != width {
		return nil, errors.New("context and target feature dimensions differ")
	}

	xPadded := make([][]int32, sess.capacity)
	yPadded := make([]float32, sess.capacity)
	mask := make([]bool, sess.capacity)
	for i := range xPadded {
		if i < len(contextTokens) {
			xPadded[i] = contextTokens[i]
			yPadded[i] = float32(sess.observations[i].Value)
			mask[i] = true
		} else {
			xPadded[i] = padRow(s.vocab, width)
		}
	}

	var metaTokens []int32
	if s.model.Config().UseMetadata {
		metaTokens, err = s.vocab.EncodeVector(sess.metadata)
		if err != nil {
			return nil, err
		}
	}

	mean, std, cache, err := s.model.Infer(xPadded, yPadded, targetTokens, metaTokens, mask, sess.cache)
	if err != nil {
		return nil, err
	}
	sess.cache = cache

	predictions := make([]api.Prediction, len(targets))
	for i := range targets {
		pos := len(sess.observations) + i
		predictions[i] = api.Prediction{
			Mean: float64(mean[pos]),
			Std:  float64(std[pos]),
		}
	}
	return predictions, nil
}

// DeleteSessionHandler schliesst eine Session und verwirft ihren Cache
func (s *Server) DeleteSessionHandler(c *gin.Context) {
	if err := s.sessions.delete(c.Param("id")); err != nil {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusOK)
}
