// Package audio manages the on-disk clip directory: uploaded clips, the
// synthesized reply artifacts the conversation pipeline produces, and the
// per-call transcript documents. Reply artifacts follow the fixed naming
// convention reply-<call_id>-<turn>.mp3; their existence is the
// cross-request signal that a conversation turn has completed.
package audio

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// replyPrefix and transcriptPrefix mark the generated per-call files that
// the retention ticker is allowed to delete.
const (
	replyPrefix      = "reply-"
	transcriptPrefix = "transcript-"
)

// ErrInvalidID is returned for clip identifiers that are empty or would
// escape the audio directory.
var ErrInvalidID = errors.New("invalid audio id")

// ErrNotFound is returned when a requested clip does not exist.
var ErrNotFound = errors.New("audio clip not found")

// Clip describes one stored audio file.
type Clip struct {
	ID       string    `json:"id"`
	Size     int64     `json:"size"`
	Modified time.Time `json:"modified"`
}

// Store is a directory of audio files shared by the webhook handlers (clip
// playback and existence checks) and the conversation pipeline (reply
// artifacts). All access is by sanitized identifier; concurrent reads and
// the pipeline's atomic artifact writes need no further coordination.
type Store struct {
	dir    string
	logger *slog.Logger
}

// NewStore creates the audio directory if needed and returns a store for it.
func NewStore(dir string, logger *slog.Logger) (*Store, error) {
	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, fmt.Errorf("creating audio directory: %w", err)
	}
	return &Store{
		dir:    dir,
		logger: logger.With("component", "audio"),
	}, nil
}

// Dir returns the directory the store manages.
func (s *Store) Dir() string {
	return s.dir
}

// Path returns the on-disk path for a clip identifier, rejecting
// identifiers that would traverse outside the audio directory.
func (s *Store) Path(id string) (string, error) {
	if !ValidID(id) {
		return "", fmt.Errorf("%w: %q", ErrInvalidID, id)
	}
	return filepath.Join(s.dir, id), nil
}

// Exists reports whether the clip is present on disk. Invalid identifiers
// report false rather than erroring; a dangling or malformed reference must
// degrade, not fail.
func (s *Store) Exists(id string) bool {
	path, err := s.Path(id)
	if err != nil {
		return false
	}
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

// List returns all stored clips sorted by filesystem order.
func (s *Store) List() ([]Clip, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("reading audio directory: %w", err)
	}

	clips := make([]Clip, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		clips = append(clips, Clip{
			ID:       e.Name(),
			Size:     info.Size(),
			Modified: info.ModTime(),
		})
	}
	return clips, nil
}

// Save stores clip data under the given identifier, replacing any existing
// file atomically.
func (s *Store) Save(id string, data []byte) error {
	path, err := s.Path(id)
	if err != nil {
		return err
	}
	return writeAtomic(path, data)
}

// Delete removes a clip from disk.
func (s *Store) Delete(id string) error {
	path, err := s.Path(id)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil {
		if os.IsNotExist(err) {
			return ErrNotFound
		}
		return fmt.Errorf("deleting clip: %w", err)
	}
	return nil
}

// WriteReply persists a synthesized reply artifact for (callID, turn).
// The write is atomic so a concurrent existence check can never observe a
// partially written artifact as "ready".
func (s *Store) WriteReply(callID string, turn int, data []byte) error {
	if !ValidID(callID) {
		return fmt.Errorf("%w: call id %q", ErrInvalidID, callID)
	}
	return writeAtomic(filepath.Join(s.dir, ReplyName(callID, turn)), data)
}

// ReplyExists reports whether the reply artifact for (callID, turn) has
// been written.
func (s *Store) ReplyExists(callID string, turn int) bool {
	if !ValidID(callID) {
		return false
	}
	return s.Exists(ReplyName(callID, turn))
}

// ReplyName returns the fixed artifact filename for a call and turn. This
// convention is shared with the state machine's existence checks and the
// retention ticker; it must not change.
func ReplyName(callID string, turn int) string {
	return fmt.Sprintf("%s%s-%d.mp3", replyPrefix, callID, turn)
}

// TranscriptName returns the per-call transcript filename.
func TranscriptName(callID string) string {
	return fmt.Sprintf("%s%s.json", transcriptPrefix, callID)
}

// ValidID reports whether an identifier is safe to use as a filename in
// the audio directory: non-empty, no path separators, no traversal.
func ValidID(id string) bool {
	if id == "" || id == "." || id == ".." {
		return false
	}
	if strings.ContainsAny(id, "/\\") {
		return false
	}
	if strings.Contains(id, "..") {
		return false
	}
	return filepath.Base(id) == id
}

// writeAtomic writes data to path via a temp file and rename.
func writeAtomic(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0640); err != nil {
		return fmt.Errorf("writing temp file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("replacing file: %w", err)
	}
	return nil
}
