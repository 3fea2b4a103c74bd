package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const defaultChatTimeout = 60 * time.Second

type chatSettings struct {
	Backend     string
	BaseURL     string
	Model       string
	APIKey      string
	Temperature float64
	MaxTokens   int
	Timeout     time.Duration
}

// ChatClient talks to an OpenAI-compatible chat completion endpoint. Both
// the shallow and deep stages use it; only the settings differ.
type ChatClient struct {
	settings   chatSettings
	httpClient *http.Client
}

// ChatOption customizes the chat client.
type ChatOption func(*ChatClient)

// WithChatHTTPClient overrides the default HTTP client.
func WithChatHTTPClient(client *http.Client) ChatOption {
	return func(c *ChatClient) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// NewChatClient constructs a chat completion client.
func NewChatClient(settings chatSettings, opts ...ChatOption) *ChatClient {
	if settings.Timeout <= 0 {
		settings.Timeout = defaultChatTimeout
	}
	settings.BaseURL = strings.TrimSpace(settings.BaseURL)
	client := &ChatClient{
		settings:   settings,
		httpClient: &http.Client{Timeout: settings.Timeout},
	}
	for _, opt := range opts {
		opt(client)
	}
	return client
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model,omitempty"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature,omitempty"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Complete sends a single user prompt and returns the assistant's reply text.
func (c *ChatClient) Complete(ctx context.Context, prompt string) (string, error) {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return "", errors.New("chat: prompt required")
	}
	if c.settings.BaseURL == "" {
		return "", errors.New("chat: base url required")
	}

	encoded, err := json.Marshal(chatRequest{
		Model:       c.settings.Model,
		Messages:    []chatMessage{{Role: "user", Content: prompt}},
		Temperature: c.settings.Temperature,
		MaxTokens:   c.settings.MaxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("chat: encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.settings.BaseURL, bytes.NewReader(encoded))
	if err != nil {
		return "", fmt.Errorf("chat: request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if key := strings.TrimSpace(c.settings.APIKey); key != "" {
		req.Header.Set("Authorization", "Bearer "+key)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("chat: request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("chat: read body: %w", err)
	}
	if resp.StatusCode >= http.StatusMultipleChoices {
		return "", fmt.Errorf("chat: http %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var completion chatResponse
	if err := json.Unmarshal(body, &completion); err != nil {
		return "", fmt.Errorf("chat: decode response: %w", err)
	}
	if completion.Error != nil {
		return "", fmt.Errorf("chat: api error: %s", strings.TrimSpace(completion.Error.Message))
	}
	if len(completion.Choices) == 0 {
		return "", errors.New("chat: empty choices")
	}
	content := strings.TrimSpace(completion.Choices[0].Message.Content)
	if content == "" {
		return "", errors.New("chat: empty content")
	}
	return content, nil
}
