package stt

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mindprints/els-calls/internal/convo"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newTestClient(baseURL string, maxPolls int) *Client {
	return NewClient(Config{
		APIKey:       "test-key",
		Language:     "sv",
		BaseURL:      baseURL,
		PollInterval: time.Millisecond,
		MaxPolls:     maxPolls,
	}, testLogger())
}

func TestTranscribeCompletesAfterPolling(t *testing.T) {
	var polls atomic.Int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if auth := r.Header.Get("Authorization"); auth != "Bearer test-key" {
			t.Errorf("missing auth header, got %q", auth)
		}
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/v1/transcriptions":
			var req createRequest
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				t.Errorf("decoding create request: %v", err)
			}
			if req.AudioURL != "http://x/rec.wav" {
				t.Errorf("audio_url = %q", req.AudioURL)
			}
			if len(req.LanguageHints) != 1 || req.LanguageHints[0] != "sv" {
				t.Errorf("language_hints = %v", req.LanguageHints)
			}
			w.WriteHeader(http.StatusCreated)
			json.NewEncoder(w).Encode(jobStatus{ID: "job1", Status: "queued"})

		case r.Method == http.MethodGet && r.URL.Path == "/v1/transcriptions/job1":
			status := "processing"
			if polls.Add(1) >= 3 {
				status = "completed"
			}
			json.NewEncoder(w).Encode(jobStatus{ID: "job1", Status: status})

		case r.Method == http.MethodGet && r.URL.Path == "/v1/transcriptions/job1/transcript":
			json.NewEncoder(w).Encode(transcriptResponse{Text: "hej hej"})

		default:
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, 10)
	text, err := c.Transcribe(context.Background(), "http://x/rec.wav")
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if text != "hej hej" {
		t.Errorf("text = %q", text)
	}
	if got := polls.Load(); got < 3 {
		t.Errorf("polls = %d, want >= 3", got)
	}
}

func TestTranscribeTimesOutAfterMaxPolls(t *testing.T) {
	var polls atomic.Int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			json.NewEncoder(w).Encode(jobStatus{ID: "job1", Status: "queued"})
			return
		}
		polls.Add(1)
		json.NewEncoder(w).Encode(jobStatus{ID: "job1", Status: "processing"})
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, 5)
	_, err := c.Transcribe(context.Background(), "http://x/rec.wav")
	if !errors.Is(err, convo.ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
	if got := polls.Load(); got != 5 {
		t.Errorf("polls = %d, want exactly 5 (hard attempt cap)", got)
	}
}

func TestTranscribeJobError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			json.NewEncoder(w).Encode(jobStatus{ID: "job1", Status: "queued"})
			return
		}
		json.NewEncoder(w).Encode(jobStatus{ID: "job1", Status: "error", ErrorMessage: "unsupported codec"})
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, 5)
	_, err := c.Transcribe(context.Background(), "http://x/rec.wav")
	if err == nil || !strings.Contains(err.Error(), "unsupported codec") {
		t.Fatalf("expected provider error message, got %v", err)
	}
}

func TestTranscribeAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"bad key"}`, http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, 5)
	_, err := c.Transcribe(context.Background(), "http://x/rec.wav")
	if err == nil || !strings.Contains(err.Error(), "status 401") {
		t.Fatalf("expected status error, got %v", err)
	}
}

func TestTranscribeRespectsContextCancellation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			json.NewEncoder(w).Encode(jobStatus{ID: "job1", Status: "queued"})
			return
		}
		json.NewEncoder(w).Encode(jobStatus{ID: "job1", Status: "processing"})
	}))
	defer srv.Close()

	c := NewClient(Config{
		APIKey:       "k",
		BaseURL:      srv.URL,
		PollInterval: time.Hour,
		MaxPolls:     5,
	}, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	_, err := c.Transcribe(ctx, "http://x/rec.wav")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
