// sessions.go - Inferenz-Sessions mit Embedding-Cache
// Beinhaltet: session, sessionStore
//
// Jede Session haelt einen gepolsterten Kontext fester Kapazitaet und den
// Embedding-Cache der letzten Inferenz. Der Cache haengt am Inhalt von
// x_padded: neue Beobachtungen verwerfen das Kontext-Embedding, das
// Metadaten-Embedding bleibt gueltig.
package server

import (
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/embedr/embedr/api"
	"github.com/embedr/embedr/model"
)

var (
	errSessionNotFound = errors.New("session not found")
	errSessionFull     = errors.New("session context is full")
	errTooManySessions = errors.New("too many open sessions")
)

// session ist eine Inferenz-Session; mu serialisiert alle Zugriffe
// (Single-Writer-Anforderung des Embedding-Caches)
type session struct {
	mu sync.Mutex

	id           string
	capacity     int
	study        string
	metadata     []float64
	observations []api.Observation
	cache        *model.EmbeddingCache
}

// response baut die API-Darstellung; der Aufrufer haelt mu
func (s *session) response() api.SessionResponse {
	return api.SessionResponse{
		ID:       s.id,
		Capacity: s.capacity,
		Count:    len(s.observations),
		Study:    s.study,
	}
}

// observe haengt Beobachtungen an und invalidiert das Kontext-Embedding;
// der Aufrufer haelt mu
func (s *session) observe(observations []api.Observation) error {
	if len(s.observations)+len(observations) > s.capacity {
		return fmt.Errorf("%w: %d observations + %d new > capacity %d",
			errSessionFull, len(s.observations), len(observations), s.capacity)
	}
	s.observations = append(s.observations, observations...)

	// x_padded aendert sich; nur das Metadaten-Embedding ueberlebt
	if s.cache != nil {
		s.cache = model.NewEmbeddingCache().WithMetadataEmb(s.cache.MetadataEmb)
	}
	return nil
}

// sessionStore verwaltet die offenen Sessions
type sessionStore struct {
	mu       sync.RWMutex
	sessions map[string]*session
	limit    int
}

func newSessionStore() *sessionStore {
	return &sessionStore{sessions: make(map[string]*session)}
}

// create legt eine Session mit frischer uuid an
func (st *sessionStore) create(capacity int, study string, metadata []float64, observations []api.Observation) (*session, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("generate session id: %w", err)
	}

	s := &session{
		id:           id.String(),
		capacity:     capacity,
		study:        study,
		metadata:     metadata,
		observations: observations,
	}

	st.mu.Lock()
	defer st.mu.Unlock()
	if st.limit > 0 && len(st.sessions) >= st.limit {
		return nil, errTooManySessions
	}
	st.sessions[s.id] = s
	return s, nil
}

// get liefert eine Session oder errSessionNotFound
func (st *sessionStore) get(id string) (*session, error) {
	st.mu.RLock()
	defer st.mu.RUnlock()
	s, ok := st.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", errSessionNotFound, id)
	}
	return s, nil
}

// delete entfernt eine Session
func (st *sessionStore) delete(id string) error {
	st.mu.Lock()
	defer st.mu.Unlock()
	if _, ok := st.sessions[id]; !ok {
		return fmt.Errorf("%w: %s", errSessionNotFound, id)
	}
	delete(st.sessions, id)
	return nil
}

// list liefert alle Sessions in unbestimmter Reihenfolge
func (st *sessionStore) list() []*session {
	st.mu.RLock()
	defer st.mu.RUnlock()
	out := make([]*session, 0, len(st.sessions))
	for _, s := range st.sessions {
		out = append(out, s)
	}
	return out
}
