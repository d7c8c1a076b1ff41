// Package schedule resolves which weekly time slot, if any, is active at a
// given instant, and detects overlaps between slots at insertion time.
//
// Both operations are built on the same interval expansion so that
// wraparound (overnight) semantics cannot drift between them: a slot is
// expanded into one or two half-open (weekday, minute-range) pairs, and
// matching and overlap checks only ever see those pairs.
package schedule

import (
	"errors"
	"fmt"
	"time"
)

// AIProgram is the sentinel program reference that selects the AI
// conversation flow instead of a fixed clip.
const AIProgram = "AI_CONVERSATION"

// minutesPerDay is the number of minutes in a day; interval ends are
// half-open, so 1440 marks "end of day".
const minutesPerDay = 24 * 60

// ErrInvalidSlot is returned when a slot fails structural validation.
var ErrInvalidSlot = errors.New("invalid schedule slot")

// ErrSlotConflict is returned when a new slot overlaps an existing one.
var ErrSlotConflict = errors.New("schedule slot conflicts with an existing slot")

// Slot is a recurring weekly time window with an associated program.
// Days use 0–6 with Monday=0. Start and End are "HH:MM" at minute
// resolution; a slot with Start > End wraps past midnight.
type Slot struct {
	Days      []int  `json:"days"`
	Start     string `json:"start"`
	End       string `json:"end"`
	Program   string `json:"program"`
	AIEnabled bool   `json:"ai_enabled"`
}

// Wraps reports whether the slot spans midnight.
func (s Slot) Wraps() bool {
	start, end, err := s.minuteRange()
	if err != nil {
		return false
	}
	return start > end
}

// minuteRange parses the slot's start and end times into minutes since
// midnight.
func (s Slot) minuteRange() (int, int, error) {
	start, ok := parseHHMM(s.Start)
	if !ok {
		return 0, 0, fmt.Errorf("%w: bad start time %q", ErrInvalidSlot, s.Start)
	}
	end, ok := parseHHMM(s.End)
	if !ok {
		return 0, 0, fmt.Errorf("%w: bad end time %q", ErrInvalidSlot, s.End)
	}
	return start, end, nil
}

// dayInterval is a half-open [Start, End) minute range on a single weekday.
type dayInterval struct {
	Day        int
	Start, End int
}

// expand converts a slot into the (weekday, interval) pairs it occupies.
// A non-wrapping slot yields one pair per configured day. A wrapping slot
// yields two: the evening portion on the configured day and the morning
// portion on the following day.
func (s Slot) expand() ([]dayInterval, error) {
	start, end, err := s.minuteRange()
	if err != nil {
		return nil, err
	}
	if len(s.Days) == 0 {
		return nil, fmt.Errorf("%w: no days configured", ErrInvalidSlot)
	}

	var out []dayInterval
	for _, d := range s.Days {
		if d < 0 || d > 6 {
			return nil, fmt.Errorf("%w: day index %d out of range", ErrInvalidSlot, d)
		}
		if start < end {
			out = append(out, dayInterval{Day: d, Start: start, End: end})
			continue
		}
		out = append(out,
			dayInterval{Day: d, Start: start, End: minutesPerDay},
			dayInterval{Day: (d + 1) % 7, Start: 0, End: end},
		)
	}
	return out, nil
}

// Validate checks a slot's structure: at least one day in 0..6, parseable
// HH:MM times, distinct start and end (equal times are ambiguous between a
// zero-length and a full-day slot), and a non-empty program reference.
func Validate(s Slot) error {
	if len(s.Days) == 0 {
		return fmt.Errorf("%w: at least one day is required", ErrInvalidSlot)
	}
	for _, d := range s.Days {
		if d < 0 || d > 6 {
			return fmt.Errorf("%w: day index %d out of range 0-6", ErrInvalidSlot, d)
		}
	}
	start, end, err := s.minuteRange()
	if err != nil {
		return err
	}
	if start == end {
		return fmt.Errorf("%w: start and end time are equal", ErrInvalidSlot)
	}
	if s.Program == "" {
		return fmt.Errorf("%w: program reference is required", ErrInvalidSlot)
	}
	return nil
}

// ActiveSlot returns the first slot in stored order whose expanded
// intervals contain the given instant, or nil if none matches. Malformed
// slots are skipped rather than failing the whole resolution; a single bad
// record must not take the hotline down. The instant is evaluated in UTC
// so resolution does not depend on the deployment timezone.
func ActiveSlot(now time.Time, slots []Slot) *Slot {
	now = now.UTC()
	day := weekdayIndex(now)
	clock := now.Hour()*60 + now.Minute()

	for i := range slots {
		intervals, err := slots[i].expand()
		if err != nil {
			continue
		}
		for _, iv := range intervals {
			if iv.Day == day && clock >= iv.Start && clock < iv.End {
				return &slots[i]
			}
		}
	}
	return nil
}

// HasConflict reports whether the candidate slot overlaps any existing
// slot on any weekday. Overlap uses the half-open test
// a.start < b.end && b.start < a.end on same-day expanded intervals.
// A structurally invalid candidate is treated as conflicting so it can
// never be inserted; invalid existing slots are skipped.
func HasConflict(candidate Slot, existing []Slot) bool {
	cand, err := candidate.expand()
	if err != nil {
		return true
	}
	for _, other := range existing {
		intervals, err := other.expand()
		if err != nil {
			continue
		}
		for _, a := range cand {
			for _, b := range intervals {
				if a.Day == b.Day && a.Start < b.End && b.Start < a.End {
					return true
				}
			}
		}
	}
	return false
}

// weekdayIndex converts Go's Sunday-based weekday to the stored
// Monday=0 convention.
func weekdayIndex(t time.Time) int {
	return (int(t.Weekday()) + 6) % 7
}

// parseHHMM parses a "HH:MM" time string into minutes since midnight.
func parseHHMM(s string) (int, bool) {
	var h, m int
	n, err := fmt.Sscanf(s, "%d:%d", &h, &m)
	if err != nil || n != 2 {
		return 0, false
	}
	if h < 0 || h > 23 || m < 0 || m > 59 {
		return 0, false
	}
	return h*60 + m, true
}
