package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/mindprints/els-calls/internal/schedule"
	"github.com/mindprints/els-calls/internal/settings"
)

// handleGetSettings returns the current settings document.
func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	snap, err := s.settings.Snapshot()
	if err != nil {
		s.logger.Error("get settings: reading document", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// handleUpdateSettings replaces the whole document. Validation failures
// leave the stored document untouched.
func (s *Server) handleUpdateSettings(w http.ResponseWriter, r *http.Request) {
	var incoming settings.Settings
	if errMsg := readJSON(r, &incoming); errMsg != "" {
		writeError(w, http.StatusBadRequest, errMsg)
		return
	}

	updated, err := s.settings.Update(func(doc *settings.Settings) error {
		*doc = incoming
		return nil
	})
	if err != nil {
		s.writeSettingsError(w, "update settings", err)
		return
	}

	writeJSON(w, http.StatusOK, updated)
}

// handleAddSlot appends one slot to the schedule. A slot that overlaps an
// existing one is rejected; insertion order is resolution priority, so an
// append can never change the meaning of earlier slots.
func (s *Server) handleAddSlot(w http.ResponseWriter, r *http.Request) {
	var slot schedule.Slot
	if errMsg := readJSON(r, &slot); errMsg != "" {
		writeError(w, http.StatusBadRequest, errMsg)
		return
	}

	updated, err := s.settings.Update(func(doc *settings.Settings) error {
		doc.Schedule = append(doc.Schedule, slot)
		return nil
	})
	if err != nil {
		s.writeSettingsError(w, "add slot", err)
		return
	}

	writeJSON(w, http.StatusCreated, updated.Schedule)
}

// handleDeleteSlot removes the slot at the given schedule index.
func (s *Server) handleDeleteSlot(w http.ResponseWriter, r *http.Request) {
	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil || index < 0 {
		writeError(w, http.StatusBadRequest, "invalid slot index")
		return
	}

	var errIndex = errors.New("slot index out of range")
	updated, err := s.settings.Update(func(doc *settings.Settings) error {
		if index >= len(doc.Schedule) {
			return errIndex
		}
		doc.Schedule = append(doc.Schedule[:index], doc.Schedule[index+1:]...)
		return nil
	})
	if err != nil {
		if errors.Is(err, errIndex) {
			writeError(w, http.StatusNotFound, "slot index out of range")
			return
		}
		s.writeSettingsError(w, "delete slot", err)
		return
	}

	writeJSON(w, http.StatusOK, updated.Schedule)
}

// setNumberRequest is the body for PUT /settings/numbers/{name}.
type setNumberRequest struct {
	Number string `json:"number"`
}

// handleSetNamedNumber creates or replaces a named number.
func (s *Server) handleSetNamedNumber(w http.ResponseWriter, r *http.Request) {
	name := strings.TrimSpace(chi.URLParam(r, "name"))
	if name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}

	var req setNumberRequest
	if errMsg := readJSON(r, &req); errMsg != "" {
		writeError(w, http.StatusBadRequest, errMsg)
		return
	}

	updated, err := s.settings.Update(func(doc *settings.Settings) error {
		doc.NamedNumbers[name] = settings.NormalizeNumber(req.Number)
		return nil
	})
	if err != nil {
		s.writeSettingsError(w, "set named number", err)
		return
	}

	writeJSON(w, http.StatusOK, updated.NamedNumbers)
}

// handleDeleteNamedNumber removes a named number.
func (s *Server) handleDeleteNamedNumber(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	var errMissing = errors.New("named number not found")
	updated, err := s.settings.Update(func(doc *settings.Settings) error {
		if _, ok := doc.NamedNumbers[name]; !ok {
			return errMissing
		}
		delete(doc.NamedNumbers, name)
		return nil
	})
	if err != nil {
		if errors.Is(err, errMissing) {
			writeError(w, http.StatusNotFound, "named number not found")
			return
		}
		s.writeSettingsError(w, "delete named number", err)
		return
	}

	writeJSON(w, http.StatusOK, updated.NamedNumbers)
}

// writeSettingsError maps settings store failures to HTTP responses:
// validation problems are the client's fault, everything else is internal.
func (s *Server) writeSettingsError(w http.ResponseWriter, op string, err error) {
	if errors.Is(err, settings.ErrValidation) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.logger.Error(op+": updating document", "error", err)
	writeError(w, http.StatusInternalServerError, "internal error")
}
