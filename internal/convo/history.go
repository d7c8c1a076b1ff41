package convo

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/mindprints/els-calls/internal/audio"
)

// HistoryStore persists per-call conversation transcripts as JSON
// documents next to the reply artifacts. There is no in-memory session
// state: every turn reloads the transcript from disk, so a process restart
// mid-call loses nothing, and the retention ticker reclaims the files
// together with the artifacts.
type HistoryStore struct {
	dir string
}

// NewHistoryStore creates a history store over the given directory,
// normally the audio artifact directory.
func NewHistoryStore(dir string) *HistoryStore {
	return &HistoryStore{dir: dir}
}

// Load returns the ordered turns recorded for a call, oldest first. A call
// with no transcript yet yields an empty history.
func (h *HistoryStore) Load(callID string) ([]Turn, error) {
	path, err := h.path(callID)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading transcript: %w", err)
	}
	var turns []Turn
	if err := json.Unmarshal(data, &turns); err != nil {
		return nil, fmt.Errorf("parsing transcript: %w", err)
	}
	return turns, nil
}

// Append records one completed turn at the end of the call's transcript.
func (h *HistoryStore) Append(callID string, turn Turn) error {
	turns, err := h.Load(callID)
	if err != nil {
		return err
	}
	turns = append(turns, turn)

	data, err := json.Marshal(turns)
	if err != nil {
		return fmt.Errorf("encoding transcript: %w", err)
	}
	path, err := h.path(callID)
	if err != nil {
		return err
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0640); err != nil {
		return fmt.Errorf("writing transcript temp file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("replacing transcript: %w", err)
	}
	return nil
}

// path resolves the transcript file for a call, rejecting unsafe call ids.
func (h *HistoryStore) path(callID string) (string, error) {
	if !audio.ValidID(callID) {
		return "", fmt.Errorf("%w: call id %q", audio.ErrInvalidID, callID)
	}
	return filepath.Join(h.dir, audio.TranscriptName(callID)), nil
}
