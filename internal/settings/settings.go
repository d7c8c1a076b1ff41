// Package settings owns the singleton hotline configuration document: the
// monitored number, fallback number, weekly schedule, named numbers and AI
// toggles. The document is a single JSON file; every webhook request reads
// a fresh snapshot and admin writes replace the file atomically.
package settings

import (
	"errors"
	"fmt"
	"strings"

	"github.com/mindprints/els-calls/internal/schedule"
)

// Default values applied when a field is absent from the stored document.
const (
	defaultMaxTurns = 3
	defaultLanguage = "sv"
)

// ErrValidation is returned when a settings document fails validation.
var ErrValidation = errors.New("invalid settings")

// Settings is the hotline configuration document. JSON keys are uppercase
// to stay compatible with the settings.json layout the dashboard already
// writes.
type Settings struct {
	// MILNumber is the only caller admitted past the identity gate,
	// in E.164 format.
	MILNumber string `json:"MIL_NUMBER"`
	// FallbackNumber receives every other caller.
	FallbackNumber string `json:"FALLBACK_NUMBER"`
	// DefaultProgram is the clip played when no schedule slot is active,
	// or schedule.AIProgram to default to the conversation flow.
	DefaultProgram string `json:"DEFAULT_PROGRAM"`
	// Schedule is an ordered sequence of weekly slots; insertion order is
	// resolution priority.
	Schedule []schedule.Slot `json:"SCHEDULE"`
	// NamedNumbers maps human-readable names to E.164 numbers.
	NamedNumbers map[string]string `json:"NAMED_NUMBERS"`
	// MaxTurns bounds the AI conversation length.
	MaxTurns int `json:"MAX_TURNS"`
	// Language is the conversation language code, e.g. "sv".
	Language string `json:"LANG"`
	// AIRepliesEnabled is the global AI conversation toggle.
	AIRepliesEnabled bool `json:"AI_REPLIES_ENABLED"`
}

// Default returns a settings document with sane defaults and no numbers
// configured.
func Default() Settings {
	return Settings{
		NamedNumbers: map[string]string{},
		MaxTurns:     defaultMaxTurns,
		Language:     defaultLanguage,
	}
}

// Validate checks document-level invariants: numbers look like phone
// numbers when set, turn and language fields are sane, and every schedule
// slot is individually valid and conflict-free against the ones before it.
func (s *Settings) Validate() error {
	if err := validateNumber("MIL_NUMBER", s.MILNumber); err != nil {
		return err
	}
	if err := validateNumber("FALLBACK_NUMBER", s.FallbackNumber); err != nil {
		return err
	}
	for name, number := range s.NamedNumbers {
		if strings.TrimSpace(name) == "" {
			return fmt.Errorf("%w: named number with empty name", ErrValidation)
		}
		if err := validateNumber("NAMED_NUMBERS["+name+"]", number); err != nil {
			return err
		}
	}
	if s.MaxTurns < 1 || s.MaxTurns > 20 {
		return fmt.Errorf("%w: MAX_TURNS must be between 1 and 20, got %d", ErrValidation, s.MaxTurns)
	}
	if s.Language == "" {
		return fmt.Errorf("%w: LANG is required", ErrValidation)
	}
	for i, slot := range s.Schedule {
		if err := schedule.Validate(slot); err != nil {
			return fmt.Errorf("%w: slot %d: %v", ErrValidation, i, err)
		}
		if schedule.HasConflict(slot, s.Schedule[:i]) {
			return fmt.Errorf("%w: slot %d overlaps an earlier slot", ErrValidation, i)
		}
	}
	return nil
}

// normalize fills in defaults for zero-value fields after loading an
// older or partial document.
func (s *Settings) normalize() {
	if s.NamedNumbers == nil {
		s.NamedNumbers = map[string]string{}
	}
	if s.MaxTurns == 0 {
		s.MaxTurns = defaultMaxTurns
	}
	if s.Language == "" {
		s.Language = defaultLanguage
	}
}

// NormalizeNumber strips spaces from a caller number so that formatted
// and unformatted representations of the same number compare equal.
func NormalizeNumber(n string) string {
	return strings.ReplaceAll(n, " ", "")
}

// validateNumber accepts empty values (field unset) and otherwise requires
// a leading + followed by 7 to 15 digits.
func validateNumber(field, value string) error {
	if value == "" {
		return nil
	}
	v := NormalizeNumber(value)
	if !strings.HasPrefix(v, "+") {
		return fmt.Errorf("%w: %s must be in E.164 format (leading +)", ErrValidation, field)
	}
	digits := v[1:]
	if len(digits) < 7 || len(digits) > 15 {
		return fmt.Errorf("%w: %s must have 7-15 digits", ErrValidation, field)
	}
	for _, r := range digits {
		if r < '0' || r > '9' {
			return fmt.Errorf("%w: %s contains non-digit characters", ErrValidation, field)
		}
	}
	return nil
}
