// Package store persists session snapshots and track metadata in sqlite so
// a restarted player resumes where it left off.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/stemjam/stemjam/internal/engine"
)

// SnapshotTTL is how long a saved session stays resumable. Anything older is
// discarded on load: resuming a days-old position mid-song is worse than
// starting fresh.
const SnapshotTTL = 24 * time.Hour

// Snapshot is the resumable part of a session.
type Snapshot struct {
	Track      string    `json:"track"`
	Position   float64   `json:"position"`
	CurrentBPM float64   `json:"current_bpm"`
	Semitones  float64   `json:"semitones"`
	Metronome  bool      `json:"metronome"`
	Stems      []StemMix `json:"stems,omitempty"`
	SavedAt    time.Time `json:"saved_at"`
}

// StemMix is one stem's saved mix state.
type StemMix struct {
	Name   string  `json:"name"`
	Volume float64 `json:"volume"`
	Pan    float64 `json:"pan"`
	Muted  bool    `json:"muted"`
}

// Store wraps the sqlite database.
type Store struct {
	db *sql.DB
}

// Open creates (or opens) the database at path, making parent directories as
// needed.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create data directory: %v", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %v", err)
	}

	schema := `
	CREATE TABLE IF NOT EXISTS session_snapshot (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		track TEXT NOT NULL,
		position REAL NOT NULL,
		current_bpm REAL NOT NULL,
		semitones REAL NOT NULL,
		metronome INTEGER NOT NULL,
		stems TEXT NOT NULL,
		saved_at INTEGER NOT NULL
	);
	CREATE TABLE IF NOT EXISTS track_metadata (
		track TEXT PRIMARY KEY,
		metadata TEXT NOT NULL,
		saved_at INTEGER NOT NULL
	);
	`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create tables: %v", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error { return s.db.Close() }

// SaveSnapshot persists the session state, replacing the previous snapshot.
func (s *Store) SaveSnapshot(snap Snapshot) error {
	stems, err := json.Marshal(snap.Stems)
	if err != nil {
		return fmt.Errorf("encode stem mix: %v", err)
	}
	savedAt := snap.SavedAt
	if savedAt.IsZero() {
		savedAt = time.Now()
	}
	metronome := 0
	if snap.Metronome {
		metronome = 1
	}
	_, err = s.db.Exec(`
		INSERT OR REPLACE INTO session_snapshot
		(id, track, position, current_bpm, semitones, metronome, stems, saved_at)
		VALUES (1, ?, ?, ?, ?, ?, ?, ?)`,
		snap.Track, snap.Position, snap.CurrentBPM, snap.Semitones,
		metronome, string(stems), savedAt.Unix())
	return err
}

// LoadSnapshot returns the saved session, or ok=false when none exists or
// the snapshot has gone stale.
func (s *Store) LoadSnapshot() (Snapshot, bool) {
	var snap Snapshot
	var stems string
	var metronome int
	var savedAt int64

	err := s.db.QueryRow(`
		SELECT track, position, current_bpm, semitones, metronome, stems, saved_at
		FROM session_snapshot WHERE id = 1`).
		Scan(&snap.Track, &snap.Position, &snap.CurrentBPM, &snap.Semitones,
			&metronome, &stems, &savedAt)
	if err != nil {
		return Snapshot{}, false
	}

	snap.SavedAt = time.Unix(savedAt, 0)
	if time.Since(snap.SavedAt) > SnapshotTTL {
		s.db.Exec(`DELETE FROM session_snapshot WHERE id = 1`)
		return Snapshot{}, false
	}

	snap.Metronome = metronome != 0
	if err := json.Unmarshal([]byte(stems), &snap.Stems); err != nil {
		snap.Stems = nil
	}
	return snap, true
}

// ClearSnapshot discards the saved session.
func (s *Store) ClearSnapshot() error {
	_, err := s.db.Exec(`DELETE FROM session_snapshot WHERE id = 1`)
	return err
}

// SaveMetadata caches a track's metadata under its name.
func (s *Store) SaveMetadata(track string, meta engine.Metadata) error {
	raw, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("encode metadata: %v", err)
	}
	_, err = s.db.Exec(`
		INSERT OR REPLACE INTO track_metadata (track, metadata, saved_at)
		VALUES (?, ?, ?)`,
		track, string(raw), time.Now().Unix())
	return err
}

// LoadMetadata returns a track's cached metadata.
func (s *Store) LoadMetadata(track string) (engine.Metadata, bool) {
	var raw string
	err := s.db.QueryRow(`SELECT metadata FROM track_metadata WHERE track = ?`, track).
		Scan(&raw)
	if err != nil {
		return engine.Metadata{}, false
	}
	var meta engine.Metadata
	if err := json.Unmarshal([]byte(raw), &meta); err != nil {
		return engine.Metadata{}, false
	}
	return meta, true
}

// SnapshotOf captures a session's resumable state from an engine status.
func SnapshotOf(st engine.Status) Snapshot {
	snap := Snapshot{
		Track:      st.Title,
		Position:   st.Position,
		CurrentBPM: st.CurrentBPM,
		Semitones:  st.Semitones,
		Metronome:  st.Metronome,
		SavedAt:    time.Now(),
	}
	for _, stem := range st.Stems {
		snap.Stems = append(snap.Stems, StemMix{
			Name:   stem.Name,
			Volume: stem.Volume,
			Pan:    stem.Pan,
			Muted:  stem.Muted,
		})
	}
	return snap
}
