package settings

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
)

// Store is the file-backed settings document. Reads return a fresh
// snapshot from disk on every call so concurrent webhook handlers never
// share mutable state; writes serialize behind the lock and replace the
// file atomically (write-temp-then-rename) so a partially written document
// is never visible.
type Store struct {
	path   string
	mu     sync.RWMutex
	logger *slog.Logger
}

// NewStore creates a store backed by the given file path. If the file does
// not exist it is created with default settings.
func NewStore(path string, logger *slog.Logger) (*Store, error) {
	s := &Store{
		path:   path,
		logger: logger.With("component", "settings"),
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
			return nil, fmt.Errorf("creating settings directory: %w", err)
		}
		def := Default()
		if err := s.write(&def); err != nil {
			return nil, fmt.Errorf("writing default settings: %w", err)
		}
		s.logger.Info("created default settings document", "path", path)
	} else if err != nil {
		return nil, fmt.Errorf("checking settings file: %w", err)
	}

	// Fail fast on an unreadable or corrupt document.
	if _, err := s.Snapshot(); err != nil {
		return nil, err
	}
	return s, nil
}

// Snapshot reads the current document from disk. The returned value is a
// copy; callers may use it for the duration of one request without
// coordination.
func (s *Store) Snapshot() (Settings, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.read()
}

// Update applies mutate to the current document, validates the result and
// atomically persists it. The document on disk is left unchanged if the
// mutation or validation fails.
func (s *Store) Update(mutate func(*Settings) error) (Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, err := s.read()
	if err != nil {
		return Settings{}, err
	}
	if err := mutate(&current); err != nil {
		return Settings{}, err
	}
	current.normalize()
	if err := current.Validate(); err != nil {
		return Settings{}, err
	}
	if err := s.write(&current); err != nil {
		return Settings{}, err
	}

	s.logger.Info("settings updated", "path", s.path)
	return current, nil
}

// read loads and parses the document. Callers must hold at least the read
// lock.
func (s *Store) read() (Settings, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return Settings{}, fmt.Errorf("reading settings: %w", err)
	}
	var loaded Settings
	if err := json.Unmarshal(data, &loaded); err != nil {
		return Settings{}, fmt.Errorf("parsing settings: %w", err)
	}
	loaded.normalize()
	return loaded, nil
}

// write persists the document atomically. Callers must hold the write
// lock (or be the only reference, as during NewStore).
func (s *Store) write(doc *Settings) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding settings: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0640); err != nil {
		return fmt.Errorf("writing settings temp file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("replacing settings file: %w", err)
	}
	return nil
}
