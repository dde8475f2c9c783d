package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/stemjam/stemjam/internal/engine"
	"github.com/stemjam/stemjam/internal/store"
)

// A track is a directory of stem audio files plus an optional meta.json
// carrying BPM, key, beat map, chords and lyrics.
var stemExtensions = map[string]bool{
	".wav": true, ".flac": true, ".mp3": true, ".ogg": true, ".m4a": true,
}

// listTracks returns the names of track directories holding at least one
// stem, sorted.
func listTracks(dir string) []string {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if srcs, _ := trackSources(dir, e.Name()); len(srcs) > 0 {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names
}

// trackSources maps stem names to file paths for one track.
func trackSources(dir, name string) (map[string]string, error) {
	entries, err := os.ReadDir(filepath.Join(dir, name))
	if err != nil {
		return nil, fmt.Errorf("read track %q: %w", name, err)
	}
	sources := make(map[string]string)
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(e.Name()))
		if !stemExtensions[ext] {
			continue
		}
		stem := strings.TrimSuffix(e.Name(), filepath.Ext(e.Name()))
		sources[stem] = filepath.Join(dir, name, e.Name())
	}
	return sources, nil
}

// trackMeta reads a track's meta.json, falling back to the store's cached
// copy and finally to a bare title. A track with no BPM still plays; it just
// gets no grid, precount or metronome.
func trackMeta(dir, name string, db *store.Store) engine.Metadata {
	raw, err := os.ReadFile(filepath.Join(dir, name, "meta.json"))
	if err == nil {
		var meta engine.Metadata
		if err := json.Unmarshal(raw, &meta); err == nil {
			if meta.Title == "" {
				meta.Title = name
			}
			if db != nil {
				db.SaveMetadata(name, meta)
			}
			return meta
		}
	}
	if db != nil {
		if meta, ok := db.LoadMetadata(name); ok {
			return meta
		}
	}
	return engine.Metadata{Title: name}
}

// loadTrack decodes a track's stems into the engine.
func loadTrack(ctx context.Context, eng *engine.Engine, db *store.Store, dir, name string) error {
	sources, err := trackSources(dir, name)
	if err != nil {
		return err
	}
	if len(sources) == 0 {
		return fmt.Errorf("track %q has no stems", name)
	}
	return eng.LoadStems(ctx, sources, trackMeta(dir, name, db))
}
