package settings

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/mindprints/els-calls/internal/schedule"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "settings.json")
	store, err := NewStore(path, testLogger())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	return store
}

func TestNewStoreCreatesDefaults(t *testing.T) {
	store := newTestStore(t)

	snap, err := store.Snapshot()
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if snap.MaxTurns != defaultMaxTurns {
		t.Errorf("MaxTurns = %d, want %d", snap.MaxTurns, defaultMaxTurns)
	}
	if snap.Language != defaultLanguage {
		t.Errorf("Language = %q, want %q", snap.Language, defaultLanguage)
	}
	if snap.NamedNumbers == nil {
		t.Error("NamedNumbers should be initialized")
	}
}

func TestNewStoreRejectsCorruptDocument(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	if err := os.WriteFile(path, []byte("{not json"), 0640); err != nil {
		t.Fatal(err)
	}

	if _, err := NewStore(path, testLogger()); err == nil {
		t.Fatal("expected error for corrupt settings file")
	}
}

func TestUpdatePersists(t *testing.T) {
	store := newTestStore(t)

	updated, err := store.Update(func(s *Settings) error {
		s.MILNumber = "+46705152223"
		s.FallbackNumber = "+46733466657"
		s.AIRepliesEnabled = true
		return nil
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if updated.MILNumber != "+46705152223" {
		t.Errorf("MILNumber = %q", updated.MILNumber)
	}

	snap, err := store.Snapshot()
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if snap.FallbackNumber != "+46733466657" || !snap.AIRepliesEnabled {
		t.Errorf("snapshot after update = %+v", snap)
	}
}

func TestUpdateValidationLeavesDocumentUnchanged(t *testing.T) {
	store := newTestStore(t)

	if _, err := store.Update(func(s *Settings) error {
		s.MILNumber = "+46700000000"
		return nil
	}); err != nil {
		t.Fatalf("seed update: %v", err)
	}

	_, err := store.Update(func(s *Settings) error {
		s.MILNumber = "not-a-number"
		return nil
	})
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}

	snap, err := store.Snapshot()
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if snap.MILNumber != "+46700000000" {
		t.Errorf("document changed after failed update: %q", snap.MILNumber)
	}
}

func TestUpdateRejectsConflictingSchedule(t *testing.T) {
	store := newTestStore(t)

	if _, err := store.Update(func(s *Settings) error {
		s.Schedule = append(s.Schedule, schedule.Slot{
			Days: []int{1}, Start: "22:00", End: "02:00", Program: schedule.AIProgram,
		})
		return nil
	}); err != nil {
		t.Fatalf("first slot: %v", err)
	}

	_, err := store.Update(func(s *Settings) error {
		s.Schedule = append(s.Schedule, schedule.Slot{
			Days: []int{2}, Start: "01:00", End: "03:00", Program: "day.mp3",
		})
		return nil
	})
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation for overlapping slot, got %v", err)
	}

	snap, _ := store.Snapshot()
	if len(snap.Schedule) != 1 {
		t.Errorf("schedule length = %d, want 1", len(snap.Schedule))
	}
}

func TestConcurrentSnapshotsDuringUpdate(t *testing.T) {
	store := newTestStore(t)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			if _, err := store.Snapshot(); err != nil {
				t.Errorf("Snapshot: %v", err)
			}
		}()
		go func() {
			defer wg.Done()
			if _, err := store.Update(func(s *Settings) error {
				s.MaxTurns = 5
				return nil
			}); err != nil {
				t.Errorf("Update: %v", err)
			}
		}()
	}
	wg.Wait()
}

func TestValidateNumbers(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Settings)
		wantErr bool
	}{
		{"valid e164", func(s *Settings) { s.MILNumber = "+46705152223" }, false},
		{"empty is allowed", func(s *Settings) { s.MILNumber = "" }, false},
		{"spaces are tolerated", func(s *Settings) { s.FallbackNumber = "+46 73 346 66 57" }, false},
		{"missing plus", func(s *Settings) { s.MILNumber = "46705152223" }, true},
		{"letters", func(s *Settings) { s.MILNumber = "+46abc" }, true},
		{"too short", func(s *Settings) { s.MILNumber = "+4670" }, true},
		{"named number invalid", func(s *Settings) { s.NamedNumbers["home"] = "bad" }, true},
		{"named number empty name", func(s *Settings) { s.NamedNumbers[" "] = "+46705152223" }, true},
		{"max turns out of range", func(s *Settings) { s.MaxTurns = 0 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := Default()
			tt.mutate(&s)
			err := s.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestNormalizeNumber(t *testing.T) {
	if got := NormalizeNumber("+46 70 515 22 23"); got != "+46705152223" {
		t.Errorf("NormalizeNumber = %q", got)
	}
}
