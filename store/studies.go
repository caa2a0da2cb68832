// studies.go - Studien CRUD Operationen
// Enthaelt: CreateStudy, GetStudy, ListStudies, AddObservations, DeleteStudy
package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/embedr/embedr/api"
)

// ErrNotFound reports a study name with no stored study.
var ErrNotFound = errors.New("store: study not found")

// CreateStudy legt eine neue Studie samt vorhandener Beobachtungen an
func (s *Store) CreateStudy(study api.Study) error {
	metadata, err := json.Marshal(study.Metadata)
	if err != nil {
		return fmt.Errorf("encode metadata: %w", err)
	}

	tx, err := s.conn.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec("INSERT INTO studies (name, metadata) VALUES (?, ?)", study.Name, string(metadata)); err != nil {
		return fmt.Errorf("insert study: %w", err)
	}
	for _, obs := range study.Observations {
		if err := insertObservation(tx, study.Name, obs); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// GetStudy laedt eine Studie mit allen Beobachtungen in Einfuegereihenfolge
func (s *Store) GetStudy(name string) (*api.Study, error) {
	var metadata string
	err := s.conn.QueryRow("SELECT metadata FROM studies WHERE name = ?", name).Scan(&metadata)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	if err != nil {
		return nil, fmt.Errorf("query study: %w", err)
	}

	study := &api.Study{Name: name}
	if err := json.Unmarshal([]byte(metadata), &study.Metadata); err != nil {
		return nil, fmt.Errorf("decode metadata: %w", err)
	}

	rows, err := s.conn.Query("SELECT features, value FROM observations WHERE study_name = ? ORDER BY id", name)
	if err != nil {
		return nil, fmt.Errorf("query observations: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var features string
		var obs api.Observation
		if err := rows.Scan(&features, &obs.Value); err != nil {
			return nil, fmt.Errorf("scan observation: %w", err)
		}
		if err := json.Unmarshal([]byte(features), &obs.Features); err != nil {
			return nil, fmt.Errorf("decode features: %w", err)
		}
		study.Observations = append(study.Observations, obs)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate observations: %w", err)
	}
	return study, nil
}

// ListStudies gibt alle Studien ohne Beobachtungen zurueck, neueste zuerst
func (s *Store) ListStudies() ([]api.Study, error) {
	rows, err := s.conn.Query("SELECT name, metadata FROM studies ORDER BY created_at DESC, name")
	if err != nil {
		return nil, fmt.Errorf("query studies: %w", err)
	}
	defer rows.Close()

	var studies []api.Study
	for rows.Next() {
		var study api.Study
		var metadata string
		if err := rows.Scan(&study.Name, &metadata); err != nil {
			return nil, fmt.Errorf("scan study: %w", err)
		}
		if err := json.Unmarshal([]byte(metadata), &study.Metadata); err != nil {
			return nil, fmt.Errorf("decode metadata: %w", err)
		}
		studies = append(studies, study)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate studies: %w", err)
	}
	return studies, nil
}

// AddObservations haengt Beobachtungen an eine bestehende Studie an
func (s *Store) AddObservations(name string, observations []api.Observation) error {
	var exists int
	err := s.conn.QueryRow("SELECT COUNT(*) FROM studies WHERE name = ?", name).Scan(&exists)
	if err != nil {
		return fmt.Errorf("query study: %w", err)
	}
	if exists == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, name)
	}

	tx, err := s.conn.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, obs := range observations {
		if err := insertObservation(tx, name, obs); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// DeleteStudy loescht eine Studie; Beobachtungen kaskadieren
func (s *Store) DeleteStudy(name string) error {
	res, err := s.conn.Exec("DELETE FROM studies WHERE name = ?", name)
	if err != nil {
		return fmt.Errorf("delete study: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return nil
}

// insertObservation fuegt eine Beobachtung innerhalb einer Transaktion ein
func insertObservation(tx *sql.Tx, study string, obs api.Observation) error {
	features, err := json.Marshal(obs.Features)
	if err != nil {
		return fmt.Errorf("encode features: %w", err)
	}
	if _, err := tx.Exec(
		"INSERT INTO observations (study_name, features, value) VALUES (?, ?, ?)",
		study, string(features), obs.Value,
	); err != nil {
		return fmt.Errorf("insert observation: %w", err)
	}
	return nil
}
