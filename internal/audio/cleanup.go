package audio

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// StartCleanupTicker runs a background goroutine that periodically removes
// generated per-call files (reply artifacts and transcripts) older than
// maxAge. Uploaded clips are never touched. A caller that hangs up mid-poll
// leaves its artifacts behind; this ticker is what eventually reclaims
// them. The goroutine stops when the context is cancelled.
func StartCleanupTicker(ctx context.Context, store *Store, interval, maxAge time.Duration) {
	logger := store.logger.With("component", "audio_cleanup")

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				removed, err := store.removeGeneratedOlderThan(maxAge)
				if err != nil {
					logger.Error("artifact cleanup failed", "error", err)
					continue
				}
				if removed > 0 {
					logger.Info("removed expired conversation files",
						"count", removed,
						"max_age", maxAge.String(),
					)
				}
			}
		}
	}()
}

// removeGeneratedOlderThan deletes reply and transcript files whose
// modification time is older than maxAge, returning how many were removed.
func (s *Store) removeGeneratedOlderThan(maxAge time.Duration) (int, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return 0, err
	}

	cutoff := time.Now().Add(-maxAge)
	removed := 0
	for _, e := range entries {
		if e.IsDir() || !isGenerated(e.Name()) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if info.ModTime().After(cutoff) {
			continue
		}
		path := filepath.Join(s.dir, e.Name())
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			s.logger.Warn("failed to remove expired file", "path", path, "error", err)
			continue
		}
		removed++
	}
	return removed, nil
}

// isGenerated reports whether a filename belongs to a generated per-call
// file rather than an uploaded clip.
func isGenerated(name string) bool {
	return strings.HasPrefix(name, replyPrefix) || strings.HasPrefix(name, transcriptPrefix)
}
