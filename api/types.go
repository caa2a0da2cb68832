// types.go - API-Typen (Basis-Typen, Errors, Requests, Responses)
// Enthaelt: StatusError, Study/Observation, Predict- und Session-Typen
//
// Package api implements the client-side API for code wishing to interact
// with the embedr service. The methods of the [Client] type correspond to
// the embedr REST API. The embedr command-line client itself uses this
// package to interact with the backend service.
package api

import "fmt"

// StatusError is an error with an HTTP status code and message.
type StatusError struct {
	StatusCode   int
	Status       string
	ErrorMessage string `json:"error"`
}

func (e StatusError) Error() string {
	switch {
	case e.Status != "" && e.ErrorMessage != "":
		return fmt.Sprintf("%s: %s", e.Status, e.ErrorMessage)
	case e.Status != "":
		return e.Status
	case e.ErrorMessage != "":
		return e.ErrorMessage
	default:
		// this should not happen
		return "something went wrong, please see the embedr server logs for details"
	}
}

// Observation is one evaluated point: a feature vector and its measured
// objective value.
type Observation struct {
	Features []float64 `json:"features"`
	Value    float64   `json:"value"`
}

// Study describes an optimization study: identifying name, study-level
// metadata features and the observations collected so far.
type Study struct {
	Name         string        `json:"name"`
	Metadata     []float64     `json:"metadata,omitempty"`
	Observations []Observation `json:"observations,omitempty"`
}

// Prediction is one Gaussian belief over the objective value at a query
// point.
type Prediction struct {
	Mean float64 `json:"mean"`
	Std  float64 `json:"std"`
}

// PredictRequest scores target points against a context in one stateless
// call.
type PredictRequest struct {
	Context  []Observation `json:"context"`
	Targets  [][]float64   `json:"targets"`
	Metadata []float64     `json:"metadata,omitempty"`
}

// PredictResponse carries one prediction per requested target, in order.
type PredictResponse struct {
	Predictions []Prediction `json:"predictions"`
}

// CreateSessionRequest opens an inference session with a fixed padded
// context capacity. When Study names a stored study, the session starts
// from its metadata and observations.
type CreateSessionRequest struct {
	Capacity int       `json:"capacity"`
	Metadata []float64 `json:"metadata,omitempty"`
	Study    string    `json:"study,omitempty"`
}

// SessionResponse describes an inference session.
type SessionResponse struct {
	ID       string `json:"id"`
	Capacity int    `json:"capacity"`
	Count    int    `json:"count"`
	Study    string `json:"study,omitempty"`
}

// ObserveRequest appends observations to a session's context.
type ObserveRequest struct {
	Observations []Observation `json:"observations"`
}

// SessionPredictRequest scores fresh targets against a session's context.
type SessionPredictRequest struct {
	Targets [][]float64 `json:"targets"`
}

// ListSessionsResponse listet alle offenen Sessions
type ListSessionsResponse struct {
	Sessions []SessionResponse `json:"sessions"`
}

// ListStudiesResponse listet alle gespeicherten Studien
type ListStudiesResponse struct {
	Studies []Study `json:"studies"`
}

// VersionResponse meldet die Server-Version
type VersionResponse struct {
	Version string `json:"version"`
}
