package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"earmark/internal/segment"
)

const defaultWhisperTimeout = 60 * time.Second

// WhisperClient transcribes audio chunks via a whisper.cpp style HTTP server.
type WhisperClient struct {
	baseURL    string
	language   string
	httpClient *http.Client
}

// WhisperOption customizes the whisper client.
type WhisperOption func(*WhisperClient)

// WithLanguage sets the transcription language hint.
func WithLanguage(lang string) WhisperOption {
	return func(c *WhisperClient) {
		c.language = strings.TrimSpace(lang)
	}
}

// WithTimeout overrides the HTTP timeout.
func WithTimeout(timeout time.Duration) WhisperOption {
	return func(c *WhisperClient) {
		if timeout > 0 {
			c.httpClient.Timeout = timeout
		}
	}
}

// WithWhisperHTTPClient overrides the default HTTP client.
func WithWhisperHTTPClient(client *http.Client) WhisperOption {
	return func(c *WhisperClient) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// NewWhisperClient constructs a transcription client for the given endpoint.
func NewWhisperClient(baseURL string, opts ...WhisperOption) *WhisperClient {
	client := &WhisperClient{
		baseURL:    strings.TrimSpace(baseURL),
		httpClient: &http.Client{Timeout: defaultWhisperTimeout},
	}
	for _, opt := range opts {
		opt(client)
	}
	return client
}

type whisperWord struct {
	Word  string  `json:"word"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	P     float64 `json:"p"`
}

type whisperSegment struct {
	Text  string        `json:"text"`
	Start float64       `json:"start"`
	End   float64       `json:"end"`
	Words []whisperWord `json:"words"`
}

type whisperResponse struct {
	Segments []whisperSegment `json:"segments"`
	Text     string           `json:"text"`
	Error    string           `json:"error"`
}

// Transcribe posts an audio chunk and returns raw segments with absolute
// timings. Word times from the server are chunk-relative and are shifted by
// chunkOffset here so downstream stages never see relative values.
func (c *WhisperClient) Transcribe(ctx context.Context, audio []byte, chunkOffset float64) ([]segment.RawSegment, error) {
	if len(audio) == 0 {
		return nil, errors.New("whisper: empty audio chunk")
	}
	if c.baseURL == "" {
		return nil, errors.New("whisper: base url required")
	}

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile("file", "chunk.wav")
	if err != nil {
		return nil, fmt.Errorf("whisper: build form: %w", err)
	}
	if _, err := part.Write(audio); err != nil {
		return nil, fmt.Errorf("whisper: write audio: %w", err)
	}
	fields := map[string]string{
		"response_format": "verbose_json",
		"word_timestamps": "true",
	}
	if c.language != "" {
		fields["language"] = c.language
	}
	for key, value := range fields {
		if err := writer.WriteField(key, value); err != nil {
			return nil, fmt.Errorf("whisper: write field %s: %w", key, err)
		}
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("whisper: close form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, &buf)
	if err != nil {
		return nil, fmt.Errorf("whisper: request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("whisper: request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("whisper: read body: %w", err)
	}
	if resp.StatusCode >= http.StatusMultipleChoices {
		return nil, fmt.Errorf("whisper: http %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var decoded whisperResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return nil, fmt.Errorf("whisper: decode response: %w", err)
	}
	if decoded.Error != "" {
		return nil, fmt.Errorf("whisper: server error: %s", decoded.Error)
	}

	out := make([]segment.RawSegment, 0, len(decoded.Segments))
	for _, seg := range decoded.Segments {
		raw := segment.RawSegment{
			Start: seg.Start + chunkOffset,
			End:   seg.End + chunkOffset,
			Text:  strings.TrimSpace(seg.Text),
		}
		for _, word := range seg.Words {
			text := strings.TrimSpace(word.Word)
			if text == "" {
				continue
			}
			raw.Words = append(raw.Words, segment.RawWord{
				Start:      word.Start + chunkOffset,
				End:        word.End + chunkOffset,
				Text:       text,
				Confidence: word.P,
			})
		}
		out = append(out, raw)
	}
	return out, nil
}
