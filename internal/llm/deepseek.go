// Package llm provides the conversation capability backed by the DeepSeek
// chat completions API. Replies are kept short and single-intent; the
// caller hears them over a phone line, not a screen.
package llm

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

// defaultBaseURL is the DeepSeek API endpoint.
const defaultBaseURL = "https://api.deepseek.com"

// defaultModel is the chat model used for replies.
const defaultModel = "deepseek-chat"

// defaultMaxTokens bounds reply length; a phone answer should be one or
// two short sentences.
const defaultMaxTokens = 120

// personas holds the system prompt per language code.
var personas = map[string]string{
	"sv": "Du är en vänlig röstassistent som svarar i telefon åt familjen. " +
		"Svara kort och hjärtligt på svenska, högst två meningar, och håll dig " +
		"till en sak i taget. Ställ gärna en enkel följdfråga.",
	"en": "You are a friendly voice assistant answering the phone for the family. " +
		"Reply warmly in English, at most two short sentences, one topic at a " +
		"time. A simple follow-up question is welcome.",
}

// Config configures the DeepSeek client.
type Config struct {
	APIKey string
	// Language selects the reply persona, e.g. "sv".
	Language string
	// BaseURL overrides the API endpoint, used in tests.
	BaseURL string
	// MaxTokens bounds the reply length.
	MaxTokens int
}

// Client generates conversation replies via DeepSeek.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	model      string
	persona    string
	maxTokens  int
	logger     *slog.Logger
}

// NewClient creates a DeepSeek chat client. Unknown languages fall back to
// the Swedish persona, matching the hotline's default language.
func NewClient(cfg Config, logger *slog.Logger) *Client {
	persona, ok := personas[cfg.Language]
	if !ok {
		persona = personas["sv"]
	}

	c := &Client{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		baseURL:    cfg.BaseURL,
		apiKey:     cfg.APIKey,
		model:      defaultModel,
		persona:    persona,
		maxTokens:  cfg.MaxTokens,
		logger:     logger.With("component", "llm"),
	}
	if c.baseURL == "" {
		c.baseURL = defaultBaseURL
	}
	if c.maxTokens <= 0 {
		c.maxTokens = defaultMaxTokens
	}
	return c
}

// message is one chat message in the completions request.
type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// completionRequest is the payload for POST /chat/completions.
type completionRequest struct {
	Model     string    `json:"model"`
	Messages  []message `json:"messages"`
	MaxTokens int       `json:"max_tokens"`
}

// completionResponse is the subset of the completions response we consume.
type completionResponse struct {
	Choices []struct {
		Message message `json:"message"`
	} `json:"choices"`
}

// Respond builds the message sequence (persona, then the ordered history
// oldest first, then the new user utterance) and returns the model's reply.
func (c *Client) Respond(ctx context.Context, history []convo.Turn, userText string) (string, error) {
	messages := make([]message, 0, len(history)*2+2)
	messages = append(messages, message{Role: "system", Content: c.persona})
	for _, turn := range history {
		messages = append(messages,
			message{Role: "user", Content: turn.User},
			message{Role: "assistant", Content: turn.Assistant},
		)
	}
	messages = append(messages, message{Role: "user", Content: userText})

	body, err := json.Marshal(completionRequest{
		Model:     c.model,
		Messages:  messages,
		MaxTokens: c.maxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("llm: marshalling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("llm: creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("llm: sending request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("llm: reading response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("llm: api returned status %d", resp.StatusCode)
	}

	var completion completionResponse
	if err := json.Unmarshal(respBody, &completion); err != nil {
		return "", fmt.Errorf("llm: decoding response: %w", err)
	}
	if len(completion.Choices) == 0 || completion.Choices[0].Message.Content == "" {
		return "", fmt.Errorf("llm: empty completion")
	}

	reply := completion.Choices[0].Message.Content
	c.logger.Debug("reply generated", "history_turns", len(history), "reply_chars", len(reply))
	return reply, nil
}
