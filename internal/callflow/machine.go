// Package callflow drives the per-call conversation protocol. The
// telephony provider holds no session state, so the machine's state lives
// entirely in the callback URL it emits (mode and poll parameters) and in
// the existence of reply artifacts on disk. Every inbound webhook is
// interpreted independently: gate the caller, resolve the program, then
// handle the current mode and answer with the next instruction.
package callflow

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/mindprints/els-calls/internal/audio"
	"github.com/mindprints/els-calls/internal/program"
	"github.com/mindprints/els-calls/internal/settings"
)

// Fixed conversation clips, deployed as uploads in the audio directory.
const (
	HelloClip   = "hello.mp3"
	WaitingClip = "waiting.mp3"
	GoodbyeClip = "goodbye.mp3"
)

// recordTimeLimit is the hard cap on one caller recording, in seconds.
const recordTimeLimit = 30

// maxPollAttempts bounds the reply<N> waiting loop. The provider re-invokes
// the same URL after each waiting clip; once the poll counter carried in
// that URL reaches this cap the call is forced to closing, so a failed
// pipeline can never strand the caller in an infinite loop.
const maxPollAttempts = 10

// Mode prefixes carried in the callback URL.
const (
	modeRecord  = "record"
	modeReply   = "reply"
	modeClosing = "closing"
)

// Instruction is the JSON object the telephony provider executes next.
// Unused keys are omitted; the provider ignores keys it does not know.
type Instruction struct {
	Play             string `json:"play,omitempty"`
	Connect          string `json:"connect,omitempty"`
	Record           string `json:"record,omitempty"`
	Hangup           bool   `json:"hangup,omitempty"`
	Next             string `json:"next,omitempty"`
	Skippable        *bool  `json:"skippable,omitempty"`
	TimeLimit        int    `json:"timelimit,omitempty"`
	SilenceDetection *bool  `json:"silencedetection,omitempty"`
}

// Request is one inbound call webhook, decoded by the HTTP layer.
type Request struct {
	From   string
	CallID string
	// Mode is the state-machine position from the callback URL; empty on
	// the initial webhook.
	Mode string
	// Poll is the waiting-loop counter from the callback URL; zero when
	// absent.
	Poll int
}

// Engine evaluates call webhooks against a settings snapshot.
type Engine struct {
	baseURL     string
	clips       *audio.Store
	aiAvailable bool
	logger      *slog.Logger
	// nowFunc allows overriding the current time for testing.
	nowFunc func() time.Time
}

// NewEngine creates a call flow engine. baseURL is the public URL the
// telephony provider uses to reach this server; aiAvailable reports
// whether the conversation providers are configured.
func NewEngine(baseURL string, clips *audio.Store, aiAvailable bool, logger *slog.Logger) *Engine {
	return &Engine{
		baseURL:     strings.TrimRight(baseURL, "/"),
		clips:       clips,
		aiAvailable: aiAvailable,
		logger:      logger.With("component", "callflow"),
		nowFunc:     time.Now,
	}
}

// Handle resolves one inbound webhook to the next instruction. Every
// branch returns a valid instruction; no fault propagates to the caller.
func (e *Engine) Handle(req Request, snap settings.Settings) Instruction {
	// Identity gate, before any mode handling. Only the configured MIL
	// number enters the state machine; everyone else, including callers
	// with a suppressed number, is connected to the fallback.
	from := settings.NormalizeNumber(req.From)
	mil := settings.NormalizeNumber(snap.MILNumber)
	if mil == "" || from != mil {
		e.logger.Info("caller not recognized, connecting to fallback",
			"call_id", req.CallID,
			"from", req.From,
		)
		if snap.FallbackNumber == "" {
			return Instruction{Hangup: true}
		}
		return Instruction{Connect: settings.NormalizeNumber(snap.FallbackNumber)}
	}

	prog := program.Select(e.nowFunc(), snap, e.clips, e.aiAvailable)
	switch prog.Kind {
	case program.KindClip:
		e.logger.Info("playing fixed clip", "call_id", req.CallID, "clip", prog.ClipID)
		return Instruction{Play: e.audioURL(prog.ClipID)}
	case program.KindHangup:
		e.logger.Info("no playable program, hanging up", "call_id", req.CallID)
		return Instruction{Hangup: true}
	}

	return e.handleConversation(req, snap)
}

// handleConversation runs the AI conversation state machine for an
// admitted caller.
func (e *Engine) handleConversation(req Request, snap settings.Settings) Instruction {
	if req.Mode == "" {
		// Initial webhook: greet, then record the first turn.
		return Instruction{
			Play:      e.audioURL(HelloClip),
			Skippable: boolPtr(false),
			Next:      e.callsURL(modeRecord+"1", 0),
		}
	}

	kind, turn, ok := parseMode(req.Mode)
	if !ok {
		// Malformed state fails closed; never an error back to the caller.
		e.logger.Warn("malformed mode parameter, hanging up",
			"call_id", req.CallID,
			"mode", req.Mode,
		)
		return Instruction{Hangup: true}
	}

	switch kind {
	case modeRecord:
		return Instruction{
			Record:           e.recordingsURL(turn),
			Next:             e.callsURL(fmt.Sprintf("%s%d", modeReply, turn), 0),
			TimeLimit:        recordTimeLimit,
			SilenceDetection: boolPtr(true),
		}

	case modeReply:
		return e.handleReply(req, snap, turn)

	case modeClosing:
		return e.closing()
	}

	return Instruction{Hangup: true}
}

// handleReply checks whether the pipeline has produced this turn's reply
// artifact. Present: play it and advance. Absent: play the waiting clip
// and self-loop with an incremented poll counter, forcing closing once the
// cap is reached.
func (e *Engine) handleReply(req Request, snap settings.Settings, turn int) Instruction {
	if e.clips.ReplyExists(req.CallID, turn) {
		next := e.callsURL(modeClosing, 0)
		if turn < snap.MaxTurns {
			next = e.callsURL(fmt.Sprintf("%s%d", modeRecord, turn+1), 0)
		}
		return Instruction{
			Play: e.audioURL(audio.ReplyName(req.CallID, turn)),
			Next: next,
		}
	}

	if req.Poll >= maxPollAttempts {
		e.logger.Warn("reply never arrived, closing call",
			"call_id", req.CallID,
			"turn", turn,
			"polls", req.Poll,
		)
		return e.closing()
	}

	return Instruction{
		Play: e.audioURL(WaitingClip),
		Next: e.callsURL(fmt.Sprintf("%s%d", modeReply, turn), req.Poll+1),
	}
}

// closing plays the goodbye clip with no follow-up; the provider ends the
// call after playback.
func (e *Engine) closing() Instruction {
	return Instruction{Play: e.audioURL(GoodbyeClip)}
}

// parseMode splits a mode parameter into its kind and turn counter.
// record and reply modes require a positive integer suffix; anything else
// is malformed.
func parseMode(mode string) (string, int, bool) {
	if mode == modeClosing {
		return modeClosing, 0, true
	}
	for _, kind := range []string{modeRecord, modeReply} {
		if !strings.HasPrefix(mode, kind) {
			continue
		}
		turn, err := strconv.Atoi(mode[len(kind):])
		if err != nil || turn < 1 {
			return "", 0, false
		}
		return kind, turn, true
	}
	return "", 0, false
}

// callsURL builds the callback URL carrying the state machine position.
func (e *Engine) callsURL(mode string, poll int) string {
	url := e.baseURL + "/calls?mode=" + mode
	if poll > 0 {
		url += "&poll=" + strconv.Itoa(poll)
	}
	return url
}

// recordingsURL builds the recording-submission URL for a turn.
func (e *Engine) recordingsURL(turn int) string {
	return e.baseURL + "/recordings?turn=" + strconv.Itoa(turn)
}

// audioURL builds the public URL of a stored clip.
func (e *Engine) audioURL(id string) string {
	return e.baseURL + "/audio/" + id
}

func boolPtr(b bool) *bool {
	return &b
}
