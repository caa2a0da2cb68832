// routes_study.go - Studien CRUD Handler
// Beinhaltet: CreateStudyHandler, GetStudyHandler, ListStudiesHandler,
// DeleteStudyHandler
package server

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/embedr/embedr/api"
	"github.com/embedr/embedr/store"
)

// CreateStudyHandler speichert eine neue Studie
func (s *Server) CreateStudyHandler(c *gin.Context) {
	var study api.Study
	err := c.ShouldBindJSON(&study)
	switch {
	case errors.Is(err, io.EOF):
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "missing request body"})
		return
	case err != nil:
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if study.Name == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "study name is required"})
		return
	}

	if err := s.store.CreateStudy(study); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusOK)
}

// GetStudyHandler laedt eine Studie mit allen Beobachtungen
func (s *Server) GetStudyHandler(c *gin.Context) {
	study, err := s.store.GetStudy(c.Param("name"))
	if errors.Is(err, store.ErrNotFound) {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, study)
}

// ListStudiesHandler listet alle gespeicherten Studien
func (s *Server) ListStudiesHandler(c *gin.Context) {
	studies, err := s.store.ListStudies()
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, api.ListStudiesResponse{Studies: studies})
}

// DeleteStudyHandler loescht eine Studie samt Beobachtungen
func (s *Server) DeleteStudyHandler(c *gin.Context) {
	err := s.store.DeleteStudy(c.Param("name"))
	if errors.Is(err, store.ErrNotFound) {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusOK)
}
