// Package stt provides the speech-to-text capability backed by the Soniox
// asynchronous transcription API: a job is submitted by audio URL and then
// polled on a fixed interval until it completes, fails, or the bounded
// attempt budget runs out.
package stt

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/mindprints/els-calls/internal/convo"
)

// defaultBaseURL is the Soniox API endpoint.
const defaultBaseURL = "https://api.soniox.com"

// defaultModel is the async transcription model.
const defaultModel = "stt-async-preview"

// Polling bounds. A stuck external job must terminate on its own; there is
// no cancellation signal from a caller who hangs up mid-poll.
const (
	defaultPollInterval = 2 * time.Second
	defaultMaxPolls     = 30
)

// Config configures the Soniox client.
type Config struct {
	APIKey string
	// Language is a hint for the transcription model, e.g. "sv".
	Language string
	// BaseURL overrides the API endpoint, used in tests.
	BaseURL string
	// PollInterval and MaxPolls bound the status polling loop.
	PollInterval time.Duration
	MaxPolls     int
}

// Client submits and polls Soniox transcription jobs.
type Client struct {
	httpClient   *http.Client
	baseURL      string
	apiKey       string
	model        string
	language     string
	pollInterval time.Duration
	maxPolls     int
	logger       *slog.Logger
}

// NewClient creates a Soniox transcription client.
func NewClient(cfg Config, logger *slog.Logger) *Client {
	c := &Client{
		httpClient:   &http.Client{Timeout: 30 * time.Second},
		baseURL:      cfg.BaseURL,
		apiKey:       cfg.APIKey,
		model:        defaultModel,
		language:     cfg.Language,
		pollInterval: cfg.PollInterval,
		maxPolls:     cfg.MaxPolls,
		logger:       logger.With("component", "stt"),
	}
	if c.baseURL == "" {
		c.baseURL = defaultBaseURL
	}
	if c.pollInterval <= 0 {
		c.pollInterval = defaultPollInterval
	}
	if c.maxPolls <= 0 {
		c.maxPolls = defaultMaxPolls
	}
	return c
}

// createRequest is the payload for POST /v1/transcriptions.
type createRequest struct {
	AudioURL      string   `json:"audio_url"`
	Model         string   `json:"model"`
	LanguageHints []string `json:"language_hints,omitempty"`
}

// jobStatus is the response shape shared by job creation and status polls.
type jobStatus struct {
	ID           string `json:"id"`
	Status       string `json:"status"`
	ErrorMessage string `json:"error_message"`
}

// transcriptResponse is the response of GET /v1/transcriptions/{id}/transcript.
type transcriptResponse struct {
	Text string `json:"text"`
}

// Transcribe submits the audio at the given URL and polls until the job
// completes. Returns convo.ErrTimeout (wrapped) when the job does not
// finish within the attempt budget.
func (c *Client) Transcribe(ctx context.Context, audioURL string) (string, error) {
	job, err := c.createJob(ctx, audioURL)
	if err != nil {
		return "", err
	}

	c.logger.Debug("transcription job created", "job_id", job.ID)

	for attempt := 1; attempt <= c.maxPolls; attempt++ {
		select {
		case <-ctx.Done():
			return "", fmt.Errorf("stt: %w", ctx.Err())
		case <-time.After(c.pollInterval):
		}

		status, err := c.getStatus(ctx, job.ID)
		if err != nil {
			return "", err
		}

		switch status.Status {
		case "completed":
			return c.getTranscript(ctx, job.ID)
		case "error":
			return "", fmt.Errorf("stt: transcription failed: %s", status.ErrorMessage)
		}
		// queued / processing: keep polling.
	}

	return "", fmt.Errorf("stt: job %s did not complete after %d polls: %w", job.ID, c.maxPolls, convo.ErrTimeout)
}

// createJob submits a new transcription job.
func (c *Client) createJob(ctx context.Context, audioURL string) (*jobStatus, error) {
	payload := createRequest{
		AudioURL: audioURL,
		Model:    c.model,
	}
	if c.language != "" {
		payload.LanguageHints = []string{c.language}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("stt: marshalling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/transcriptions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("stt: creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	var job jobStatus
	if err := c.do(req, &job); err != nil {
		return nil, err
	}
	if job.ID == "" {
		return nil, fmt.Errorf("stt: job created without id")
	}
	return &job, nil
}

// getStatus fetches the current state of a transcription job.
func (c *Client) getStatus(ctx context.Context, jobID string) (*jobStatus, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/transcriptions/"+jobID, nil)
	if err != nil {
		return nil, fmt.Errorf("stt: creating status request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	var status jobStatus
	if err := c.do(req, &status); err != nil {
		return nil, err
	}
	return &status, nil
}

// getTranscript fetches the final text of a completed job.
func (c *Client) getTranscript(ctx context.Context, jobID string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/transcriptions/"+jobID+"/transcript", nil)
	if err != nil {
		return "", fmt.Errorf("stt: creating transcript request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	var tr transcriptResponse
	if err := c.do(req, &tr); err != nil {
		return "", err
	}
	return tr.Text, nil
}

// do executes a request and decodes the JSON response into dst.
func (c *Client) do(req *http.Request, dst any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("stt: sending request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("stt: reading response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("stt: api returned status %d: %s", resp.StatusCode, truncate(body, 200))
	}

	if err := json.Unmarshal(body, dst); err != nil {
		return fmt.Errorf("stt: decoding response: %w", err)
	}
	return nil
}

// truncate shortens a response body for inclusion in an error message.
func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
