package tts

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestSynthesize(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/text-to-speech/voice123" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if got := r.URL.Query().Get("output_format"); got != outputFormat {
			t.Errorf("output_format = %q", got)
		}
		if got := r.Header.Get("xi-api-key"); got != "test-key" {
			t.Errorf("xi-api-key = %q", got)
		}

		var req synthesizeRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decoding request: %v", err)
		}
		if req.Text != "Hej!" {
			t.Errorf("text = %q", req.Text)
		}
		if req.ModelID != defaultModel {
			t.Errorf("model_id = %q", req.ModelID)
		}

		w.Header().Set("Content-Type", "audio/mpeg")
		w.Write([]byte("mp3-audio-bytes"))
	}))
	defer srv.Close()

	c := NewClient(Config{APIKey: "test-key", VoiceID: "voice123", BaseURL: srv.URL}, testLogger())
	audio, err := c.Synthesize(context.Background(), "Hej!")
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if string(audio) != "mp3-audio-bytes" {
		t.Errorf("audio = %q", audio)
	}
}

func TestSynthesizeAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"detail":"invalid voice"}`, http.StatusUnprocessableEntity)
	}))
	defer srv.Close()

	c := NewClient(Config{APIKey: "k", VoiceID: "v", BaseURL: srv.URL}, testLogger())
	_, err := c.Synthesize(context.Background(), "Hej!")
	if err == nil || !strings.Contains(err.Error(), "status 422") {
		t.Fatalf("expected status error, got %v", err)
	}
}

func TestSynthesizeEmptyAudio(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := NewClient(Config{APIKey: "k", VoiceID: "v", BaseURL: srv.URL}, testLogger())
	_, err := c.Synthesize(context.Background(), "Hej!")
	if err == nil || !strings.Contains(err.Error(), "empty audio") {
		t.Fatalf("expected empty audio error, got %v", err)
	}
}
