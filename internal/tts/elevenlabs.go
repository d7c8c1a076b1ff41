// Package tts provides the text-to-speech capability backed by the
// ElevenLabs API, producing mp3 audio suitable for telephony playback.
package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// defaultBaseURL is the ElevenLabs API endpoint.
const defaultBaseURL = "https://api.elevenlabs.io"

// defaultModel is the multilingual synthesis model; the hotline speaks
// Swedish.
const defaultModel = "eleven_multilingual_v2"

// outputFormat is the mp3 variant requested from the API.
const outputFormat = "mp3_44100_128"

// maxAudioBytes caps a synthesized reply; a short spoken sentence is far
// below this.
const maxAudioBytes = 10 << 20

// Config configures the ElevenLabs client.
type Config struct {
	APIKey  string
	VoiceID string
	// BaseURL overrides the API endpoint, used in tests.
	BaseURL string
}

// Client synthesizes reply text to audio via ElevenLabs.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	voiceID    string
	model      string
	logger     *slog.Logger
}

// NewClient creates an ElevenLabs synthesis client.
func NewClient(cfg Config, logger *slog.Logger) *Client {
	c := &Client{
		httpClient: &http.Client{Timeout: 60 * time.Second},
		baseURL:    cfg.BaseURL,
		apiKey:     cfg.APIKey,
		voiceID:    cfg.VoiceID,
		model:      defaultModel,
		logger:     logger.With("component", "tts"),
	}
	if c.baseURL == "" {
		c.baseURL = defaultBaseURL
	}
	return c
}

// synthesizeRequest is the payload for the text-to-speech endpoint.
type synthesizeRequest struct {
	Text    string `json:"text"`
	ModelID string `json:"model_id"`
}

// Synthesize converts text to mp3 audio bytes.
func (c *Client) Synthesize(ctx context.Context, text string) ([]byte, error) {
	body, err := json.Marshal(synthesizeRequest{
		Text:    text,
		ModelID: c.model,
	})
	if err != nil {
		return nil, fmt.Errorf("tts: marshalling request: %w", err)
	}

	url := fmt.Sprintf("%s/v1/text-to-speech/%s?output_format=%s", c.baseURL, c.voiceID, outputFormat)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("tts: creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("xi-api-key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("tts: sending request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("tts: api returned status %d: %s", resp.StatusCode, msg)
	}

	audio, err := io.ReadAll(io.LimitReader(resp.Body, maxAudioBytes))
	if err != nil {
		return nil, fmt.Errorf("tts: reading audio: %w", err)
	}
	if len(audio) == 0 {
		return nil, fmt.Errorf("tts: empty audio response")
	}

	c.logger.Debug("reply synthesized", "text_chars", len(text), "audio_bytes", len(audio))
	return audio, nil
}
