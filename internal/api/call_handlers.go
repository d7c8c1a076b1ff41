package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mindprints/els-calls/internal/audio"
	"github.com/mindprints/els-calls/internal/callflow"
	"github.com/mindprints/els-calls/internal/convo"
)

// turnTimeout bounds one background conversation turn end to end. The call
// flow's poll cap closes the call long before this fires; the timeout only
// reclaims the goroutine.
const turnTimeout = 2 * time.Minute

// handleCall is the inbound call webhook. The provider posts form fields
// describing the call; the state machine position rides on the callback
// URL's query string. The response is a raw instruction object, never an
// error status: a broken webhook response would leave the caller in
// silence.
func (s *Server) handleCall(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		s.logger.Warn("call webhook with unparsable form", "error", err)
		s.writeInstruction(w, callflow.Instruction{Hangup: true})
		return
	}

	callID := r.PostFormValue("callid")
	if !audio.ValidID(callID) {
		// The artifact naming scheme needs a safe call id; substitute one
		// when the provider sends none.
		callID = uuid.NewString()
	}

	poll, _ := strconv.Atoi(r.URL.Query().Get("poll"))
	req := callflow.Request{
		From:   r.PostFormValue("from"),
		CallID: callID,
		Mode:   r.URL.Query().Get("mode"),
		Poll:   poll,
	}

	snap, err := s.settings.Snapshot()
	if err != nil {
		s.logger.Error("call webhook: reading settings", "error", err, "call_id", callID)
		s.writeInstruction(w, callflow.Instruction{Hangup: true})
		return
	}

	s.writeInstruction(w, s.engine.Handle(req, snap))
}

// handleRecording receives a finished caller recording. The provider is
// acknowledged immediately; the conversation turn runs in the background
// and signals completion by writing the reply artifact that the call
// flow's reply mode polls for.
func (s *Server) handleRecording(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeError(w, http.StatusBadRequest, "unparsable form")
		return
	}

	callID := r.PostFormValue("callid")
	if !audio.ValidID(callID) {
		writeError(w, http.StatusBadRequest, "missing or invalid callid")
		return
	}

	turn, err := strconv.Atoi(r.URL.Query().Get("turn"))
	if err != nil || turn < 1 {
		writeError(w, http.StatusBadRequest, "missing or invalid turn")
		return
	}

	// The provider posts the recording as a URL, field name "wav".
	audioURL := r.PostFormValue("wav")
	if audioURL == "" {
		audioURL = r.PostFormValue("recording")
	}
	if !strings.HasPrefix(audioURL, "http://") && !strings.HasPrefix(audioURL, "https://") {
		writeError(w, http.StatusBadRequest, "missing recording url")
		return
	}

	if s.pipeline == nil {
		s.logger.Warn("recording received but conversation providers not configured",
			"call_id", callID,
			"turn", turn,
		)
		writeJSON(w, http.StatusOK, map[string]string{"status": "dropped"})
		return
	}

	go s.runTurn(convo.TurnRequest{CallID: callID, Turn: turn, AudioURL: audioURL})

	writeJSON(w, http.StatusOK, map[string]string{"status": "accepted"})
}

// runTurn executes one conversation turn in the background.
func (s *Server) runTurn(req convo.TurnRequest) {
	ctx, cancel := context.WithTimeout(context.Background(), turnTimeout)
	defer cancel()

	if err := s.pipeline.RunTurn(ctx, req); err != nil {
		var stageErr *convo.StageError
		if errors.As(err, &stageErr) {
			s.logger.Error("conversation turn failed",
				"call_id", req.CallID,
				"turn", req.Turn,
				"stage", stageErr.Stage,
				"error", stageErr.Err,
			)
			return
		}
		s.logger.Error("conversation turn failed",
			"call_id", req.CallID,
			"turn", req.Turn,
			"error", err,
		)
	}
}

// writeInstruction writes a raw telephony instruction response.
func (s *Server) writeInstruction(w http.ResponseWriter, instr callflow.Instruction) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(instr); err != nil {
		s.logger.Error("failed to encode instruction", "error", err)
	}
}
