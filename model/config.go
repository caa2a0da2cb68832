// config.go - Modell-Konfiguration und Std-Transformationen
//
// Dieses Modul enthaelt:
// - Config: Konstruktionsparameter des ICL-Transformers
// - StdTransform: austauschbare positive Abbildung fuer die
//   Standardabweichung (Softplus, Exp)
package model

import (
	"fmt"

	"github.com/embedr/embedr/ml"
)

// EPS is the additive floor applied to every predicted standard
// deviation. It keeps the variance strictly positive for arbitrarily
// negative raw head outputs.
const EPS = 1e-7

// StdTransform maps the raw log-std-like head output to a strictly
// positive value. The transform is injected so callers can pick the tail
// behavior their loss needs.
type StdTransform func(*ml.Tensor) *ml.Tensor

// SoftplusStd is the default std transform.
func SoftplusStd(t *ml.Tensor) *ml.Tensor { return ml.Softplus(t) }

// ExpStd interprets the raw head output as a log standard deviation.
func ExpStd(t *ml.Tensor) *ml.Tensor { return ml.Exp(t) }

// Config haelt die Konstruktionsparameter des ICL-Transformers.
type Config struct {
	// DModel ist die Modellbreite D.
	DModel int
	// FFWDimRatio ist der Multiplikator fuer die versteckte Breite der
	// Feed-Forward-Teilschichten (F = D * FFWDimRatio).
	FFWDimRatio int
	// NHead ist die Anzahl der Attention-Heads.
	NHead int
	// Dropout ist die Dropout-Rate in [0, 1).
	Dropout float32
	// NumLayers ist die Anzahl der Encoder-Bloecke.
	NumLayers int
	// UseMetadata steuert, ob Studien-Metadaten an jede Position
	// konkateniert werden (verdoppelt die Embedding-Breite vor dem
	// x-Projektor).
	UseMetadata bool
	// StdTransform bildet den rohen Std-Output positiv ab.
	// Default: SoftplusStd.
	StdTransform StdTransform
	// EmbedderFactory erzeugt den Embedder fuer x- und Metadaten-Tokens.
	EmbedderFactory func() Embedder
}

// validate prueft die Konfiguration auf Konstruktionsfehler
func (c *Config) validate() error {
	switch {
	case c.DModel <= 0:
		return fmt.Errorf("model: d_model must be positive, got %d", c.DModel)
	case c.FFWDimRatio <= 0:
		return fmt.Errorf("model: ffw_dim_ratio must be positive, got %d", c.FFWDimRatio)
	case c.NHead <= 0 || c.DModel%c.NHead != 0:
		return fmt.Errorf("model: d_model %d must be divisible by nhead %d", c.DModel, c.NHead)
	case c.Dropout < 0 || c.Dropout >= 1:
		return fmt.Errorf("model: dropout %f must be in [0, 1)", c.Dropout)
	case c.NumLayers <= 0:
		return fmt.Errorf("model: num_layers must be positive, got %d", c.NumLayers)
	case c.EmbedderFactory == nil:
		return fmt.Errorf("model: embedder factory is required")
	}
	return nil
}
