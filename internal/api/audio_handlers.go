package api

import (
	"errors"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/mindprints/els-calls/internal/audio"
)

// maxClipUploadSize is the upper limit for clip uploads (10 MB).
const maxClipUploadSize = 10 << 20

// clipResponse is the JSON response for a single stored clip.
type clipResponse struct {
	ID       string `json:"id"`
	Size     int64  `json:"size"`
	Modified string `json:"modified"`
}

func toClipResponse(c audio.Clip) clipResponse {
	return clipResponse{
		ID:       c.ID,
		Size:     c.Size,
		Modified: c.Modified.Format(time.RFC3339),
	}
}

// handleListAudio returns all stored clips, including generated reply
// artifacts so the dashboard can inspect recent calls.
func (s *Server) handleListAudio(w http.ResponseWriter, r *http.Request) {
	clips, err := s.audio.List()
	if err != nil {
		s.logger.Error("list audio: reading directory", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	items := make([]clipResponse, len(clips))
	for i, c := range clips {
		items[i] = toClipResponse(c)
	}

	writeJSON(w, http.StatusOK, items)
}

// handleUploadAudio stores an mp3 clip via multipart form data. The clip
// id is the uploaded filename; uploading again replaces the clip.
func (s *Server) handleUploadAudio(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxClipUploadSize)

	if err := r.ParseMultipartForm(maxClipUploadSize); err != nil {
		writeError(w, http.StatusBadRequest, "file too large or invalid multipart form")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "file field is required")
		return
	}
	defer file.Close()

	id := filepath.Base(header.Filename)
	if strings.ToLower(filepath.Ext(id)) != ".mp3" {
		writeError(w, http.StatusBadRequest, "unsupported audio format; accepted: .mp3")
		return
	}
	if !audio.ValidID(id) {
		writeError(w, http.StatusBadRequest, "invalid clip name")
		return
	}

	data, err := io.ReadAll(file)
	if err != nil {
		s.logger.Error("upload audio: reading file", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to read uploaded file")
		return
	}
	if len(data) == 0 {
		writeError(w, http.StatusBadRequest, "empty file")
		return
	}

	if err := s.audio.Save(id, data); err != nil {
		s.logger.Error("upload audio: saving clip", "error", err, "clip", id)
		writeError(w, http.StatusInternalServerError, "failed to save file")
		return
	}

	s.logger.Info("clip uploaded", "clip", id, "bytes", len(data))
	writeJSON(w, http.StatusCreated, clipResponse{ID: id, Size: int64(len(data)), Modified: time.Now().Format(time.RFC3339)})
}

// handleGetAudio streams a clip. The telephony provider fetches play URLs
// through this route, so it must serve generated reply artifacts as well
// as uploaded clips.
func (s *Server) handleGetAudio(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	path, err := s.audio.Path(id)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid clip id")
		return
	}

	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			writeError(w, http.StatusNotFound, "clip not found")
			return
		}
		s.logger.Error("get audio: opening clip", "error", err, "clip", id)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		s.logger.Error("get audio: stat clip", "error", err, "clip", id)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	w.Header().Set("Content-Type", "audio/mpeg")
	http.ServeContent(w, r, id, info.ModTime(), f)
}

// handleDeleteAudio removes a stored clip. Settings may still reference
// it; the program selector degrades a dangling reference to a hangup.
func (s *Server) handleDeleteAudio(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := s.audio.Delete(id); err != nil {
		switch {
		case errors.Is(err, audio.ErrInvalidID):
			writeError(w, http.StatusBadRequest, "invalid clip id")
		case errors.Is(err, audio.ErrNotFound):
			writeError(w, http.StatusNotFound, "clip not found")
		default:
			s.logger.Error("delete audio: removing clip", "error", err, "clip", id)
			writeError(w, http.StatusInternalServerError, "internal error")
		}
		return
	}

	s.logger.Info("clip deleted", "clip", id)
	w.WriteHeader(http.StatusNoContent)
}
