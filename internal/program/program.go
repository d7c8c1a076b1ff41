// Package program maps the current settings snapshot and schedule state to
// the concrete action taken for an accepted call: play a fixed clip, run
// the AI conversation, or hang up.
package program

import (
	"time"

	"github.com/mindprints/els-calls/internal/schedule"
	"github.com/mindprints/els-calls/internal/settings"
)

// Kind identifies the selected program.
type Kind int

const (
	// KindHangup ends the call without playing anything. It is the
	// degraded outcome for dangling clip references and disabled AI, never
	// an error surfaced to the caller.
	KindHangup Kind = iota
	// KindClip plays a fixed audio clip.
	KindClip
	// KindConversation runs the multi-turn AI conversation flow.
	KindConversation
)

// Program is the resolved action for an accepted call.
type Program struct {
	Kind   Kind
	ClipID string
}

// ClipChecker reports whether a clip identifier currently exists on disk.
// Clips are externally deletable, so existence is re-checked at selection
// time rather than trusted from configuration.
type ClipChecker interface {
	Exists(id string) bool
}

// Select resolves the program for an accepted call at the given instant.
// An active schedule slot decides outright; otherwise the default program
// reference applies, with the AI conversation as the fallback when the
// reference is the AI sentinel (or absent) and AI replies are both enabled
// and available. aiAvailable is false when the provider credentials are
// not configured, which degrades the conversation to the default clip
// path the same way a per-slot ai_enabled=false does.
func Select(now time.Time, s settings.Settings, clips ClipChecker, aiAvailable bool) Program {
	if slot := schedule.ActiveSlot(now, s.Schedule); slot != nil {
		if slot.Program == schedule.AIProgram {
			if slot.AIEnabled && aiAvailable {
				return Program{Kind: KindConversation}
			}
			return defaultProgram(s, clips, aiAvailable)
		}
		return clipOrHangup(slot.Program, clips)
	}
	return defaultProgram(s, clips, aiAvailable)
}

// defaultProgram resolves the no-active-slot path from the global default
// reference and AI toggle.
func defaultProgram(s settings.Settings, clips ClipChecker, aiAvailable bool) Program {
	ref := s.DefaultProgram
	if ref == schedule.AIProgram || ref == "" {
		if s.AIRepliesEnabled && aiAvailable {
			return Program{Kind: KindConversation}
		}
		return Program{Kind: KindHangup}
	}
	return clipOrHangup(ref, clips)
}

// clipOrHangup returns the clip program if the referenced clip still
// exists, and hangs up otherwise.
func clipOrHangup(clipID string, clips ClipChecker) Program {
	if clips.Exists(clipID) {
		return Program{Kind: KindClip, ClipID: clipID}
	}
	return Program{Kind: KindHangup}
}
