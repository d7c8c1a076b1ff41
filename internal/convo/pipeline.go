// Package convo executes one turn of the AI conversation: transcribe the
// caller's recording, generate a reply, synthesize it to audio. Each stage
// is independently fallible and the turn short-circuits on the first
// failure; the reply artifact is written last and only on full success, so
// artifact existence is a reliable completion signal for the stateless
// webhook layer polling it.
package convo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/mindprints/els-calls/internal/audio"
)

// ErrTimeout marks a provider job that did not finish within its bounded
// polling window. Provider clients wrap it so callers can distinguish a
// stuck external job from a hard provider failure.
var ErrTimeout = errors.New("provider job timed out")

// Stage identifies a pipeline stage in errors and logs.
type Stage string

const (
	StageTranscribe Stage = "transcribe"
	StageRespond    Stage = "respond"
	StageSynthesize Stage = "synthesize"
)

// StageError reports which pipeline stage failed and why. It replaces
// catch-and-log-everything handling: stage failures propagate as typed
// values and the caller decides how to degrade.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s stage: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// Turn is one exchange in a conversation: what the caller said and what
// the assistant answered.
type Turn struct {
	User      string `json:"user"`
	Assistant string `json:"assistant"`
}

// Transcriber converts recorded audio, referenced by URL, to text.
type Transcriber interface {
	Transcribe(ctx context.Context, audioURL string) (string, error)
}

// Responder generates the assistant's next utterance from the ordered
// conversation history and the new user utterance.
type Responder interface {
	Respond(ctx context.Context, history []Turn, userText string) (string, error)
}

// Synthesizer converts reply text to playable audio bytes.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) ([]byte, error)
}

// TurnRequest identifies one logical conversation turn to execute.
type TurnRequest struct {
	CallID   string
	Turn     int
	AudioURL string
}

// Pipeline wires the three capability interfaces to the artifact store and
// per-call transcript history.
type Pipeline struct {
	stt       Transcriber
	llm       Responder
	tts       Synthesizer
	artifacts *audio.Store
	history   *HistoryStore
	logger    *slog.Logger
}

// NewPipeline creates a conversation pipeline.
func NewPipeline(stt Transcriber, llm Responder, tts Synthesizer, artifacts *audio.Store, history *HistoryStore, logger *slog.Logger) *Pipeline {
	return &Pipeline{
		stt:       stt,
		llm:       llm,
		tts:       tts,
		artifacts: artifacts,
		history:   history,
		logger:    logger.With("component", "pipeline"),
	}
}

// RunTurn executes transcribe → respond → synthesize for one turn and
// persists the reply artifact. A retry of an already-completed turn is a
// no-op: the artifact's existence is checked first, matching how the call
// flow detects completion. No artifact is written on failure.
func (p *Pipeline) RunTurn(ctx context.Context, req TurnRequest) error {
	if p.artifacts.ReplyExists(req.CallID, req.Turn) {
		p.logger.Debug("turn already completed, skipping",
			"call_id", req.CallID,
			"turn", req.Turn,
		)
		return nil
	}

	history, err := p.history.Load(req.CallID)
	if err != nil {
		p.logger.Warn("could not load conversation history, starting fresh",
			"call_id", req.CallID,
			"error", err,
		)
		history = nil
	}

	userText, err := p.stt.Transcribe(ctx, req.AudioURL)
	if err != nil {
		return &StageError{Stage: StageTranscribe, Err: err}
	}

	p.logger.Info("caller utterance transcribed",
		"call_id", req.CallID,
		"turn", req.Turn,
		"chars", len(userText),
	)

	reply, err := p.llm.Respond(ctx, history, userText)
	if err != nil {
		return &StageError{Stage: StageRespond, Err: err}
	}

	data, err := p.tts.Synthesize(ctx, reply)
	if err != nil {
		return &StageError{Stage: StageSynthesize, Err: err}
	}

	if err := p.history.Append(req.CallID, Turn{User: userText, Assistant: reply}); err != nil {
		return fmt.Errorf("persisting transcript: %w", err)
	}

	// The artifact write is last: once this file exists the turn is
	// observably complete.
	if err := p.artifacts.WriteReply(req.CallID, req.Turn, data); err != nil {
		return fmt.Errorf("writing reply artifact: %w", err)
	}

	p.logger.Info("conversation turn completed",
		"call_id", req.CallID,
		"turn", req.Turn,
		"reply_bytes", len(data),
	)
	return nil
}
