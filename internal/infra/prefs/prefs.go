// Package prefs persists user playback preferences between runs.
package prefs

import (
	"os"
	"path/filepath"
	"sync"

	"github.com/cockroachdb/errors"
	"gopkg.in/yaml.v3"

	"github.com/osa030/tunedeck/internal/domain/queue"
)

// state is the on-disk document.
type state struct {
	Mode queue.LoopMode `yaml:"mode"`
}

// Store keeps the loop mode preference in a YAML file.
type Store struct {
	mu   sync.Mutex
	path string
}

// NewStore creates a store backed by path.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// LoadMode returns the saved mode, or fallback when nothing was saved yet.
func (s *Store) LoadMode(fallback queue.LoopMode) (queue.LoopMode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return fallback, nil
	}
	if err != nil {
		return fallback, errors.Wrap(err, "failed to read state file")
	}

	st := state{Mode: fallback}
	if err := yaml.Unmarshal(data, &st); err != nil {
		return fallback, errors.Wrap(err, "failed to parse state file")
	}
	return st.Mode, nil
}

// SaveMode writes the mode preference.
func (s *Store) SaveMode(mode queue.LoopMode) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := yaml.Marshal(state{Mode: mode})
	if err != nil {
		return errors.Wrap(err, "failed to encode state")
	}

	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return errors.Wrap(err, "failed to create state directory")
		}
	}

	// Write then rename so a crash never leaves a truncated file
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return errors.Wrap(err, "failed to write state file")
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return errors.Wrap(err, "failed to replace state file")
	}
	return nil
}
