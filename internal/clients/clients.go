// Package clients holds the HTTP clients for the external model backends the
// pipeline depends on: transcription, the shallow and deep chat models, and
// the embedding service used for semantic deduplication.
package clients

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"earmark/internal/config"
	"earmark/internal/segment"
)

// ErrUnknownBackend indicates a backend key the factory does not recognize.
var ErrUnknownBackend = errors.New("unknown backend")

// Transcriber converts an audio chunk into raw transcription segments.
// Timings in the result are absolute, already shifted by chunkOffset.
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte, chunkOffset float64) ([]segment.RawSegment, error)
}

// ShallowModel generates a fast first-pass response for a prompt.
type ShallowModel interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// DeepModel sends a prompt to the expensive enrichment backend.
type DeepModel interface {
	Send(ctx context.Context, prompt string) (string, error)
}

// Embedder maps text to a vector for similarity comparison.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Set bundles the four backend clients the pipeline requires.
type Set struct {
	Transcriber Transcriber
	Shallow     ShallowModel
	Deep        DeepModel
	Embedder    Embedder
}

// New builds a client Set from configuration. Every backend must resolve or
// the whole construction fails.
func New(cfg *config.Config, logger *slog.Logger) (*Set, error) {
	transcriber, err := newTranscriber(cfg.Transcription)
	if err != nil {
		return nil, fmt.Errorf("transcription backend: %w", err)
	}

	shallow, err := newChat(chatSettings{
		Backend:     cfg.Shallow.Backend,
		BaseURL:     cfg.Shallow.BaseURL,
		Model:       cfg.Shallow.Model,
		APIKey:      cfg.Shallow.APIKey,
		Temperature: cfg.Shallow.Temperature,
		MaxTokens:   cfg.Shallow.MaxTokens,
		Timeout:     time.Duration(cfg.Shallow.TimeoutSeconds) * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("shallow backend: %w", err)
	}

	deep, err := newChat(chatSettings{
		Backend:     cfg.Deep.Backend,
		BaseURL:     cfg.Deep.BaseURL,
		Model:       cfg.Deep.Model,
		APIKey:      cfg.Deep.APIKey,
		Temperature: cfg.Deep.Temperature,
		Timeout:     time.Duration(cfg.Deep.TimeoutSeconds) * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("deep backend: %w", err)
	}

	embedder, err := newEmbedder(cfg.Semantic)
	if err != nil {
		return nil, fmt.Errorf("semantic backend: %w", err)
	}

	logger.Info("model backends configured",
		slog.String("transcription", cfg.Transcription.Backend),
		slog.String("shallow", cfg.Shallow.Backend),
		slog.String("deep", cfg.Deep.Backend),
		slog.String("semantic", cfg.Semantic.Backend))

	return &Set{
		Transcriber: transcriber,
		Shallow:     &shallowChat{chat: shallow},
		Deep:        &deepChat{chat: deep},
		Embedder:    embedder,
	}, nil
}

func newTranscriber(cfg config.Transcription) (Transcriber, error) {
	switch cfg.Backend {
	case "whisper":
		return NewWhisperClient(cfg.BaseURL,
			WithLanguage(cfg.Language),
			WithTimeout(time.Duration(cfg.TimeoutSeconds)*time.Second)), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, cfg.Backend)
	}
}

func newChat(settings chatSettings) (*ChatClient, error) {
	switch settings.Backend {
	case "openai":
		return NewChatClient(settings), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, settings.Backend)
	}
}

func newEmbedder(cfg config.Semantic) (Embedder, error) {
	switch cfg.Backend {
	case "openai":
		return NewEmbedClient(cfg.BaseURL, cfg.Model, cfg.APIKey,
			time.Duration(cfg.TimeoutSeconds)*time.Second), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, cfg.Backend)
	}
}

type shallowChat struct{ chat *ChatClient }

func (s *shallowChat) Generate(ctx context.Context, prompt string) (string, error) {
	return s.chat.Complete(ctx, prompt)
}

type deepChat struct{ chat *ChatClient }

func (d *deepChat) Send(ctx context.Context, prompt string) (string, error) {
	return d.chat.Complete(ctx, prompt)
}
