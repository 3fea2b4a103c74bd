// Package testsupport provides builders and fake model backends for tests.
package testsupport

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"earmark/internal/clients"
	"earmark/internal/config"
	"earmark/internal/segment"
)

// NewConfig returns a validated config rooted in a per-test temp directory,
// with timing tightened so pipeline tests settle quickly.
func NewConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	cfg := config.Default()
	cfg.Paths.DataDir = filepath.Join(dir, "data")
	cfg.Paths.LogDir = filepath.Join(dir, "logs")
	cfg.Pipeline.EmitIntervalMS = 5
	cfg.Pipeline.QueuePollTimeoutMS = 5
	if err := cfg.Validate(); err != nil {
		t.Fatalf("test config invalid: %v", err)
	}
	return &cfg
}

// FakeTranscriber returns scripted raw segments, one script entry per call.
type FakeTranscriber struct {
	mu      sync.Mutex
	Scripts [][]segment.RawSegment
	Err     error
}

func (f *FakeTranscriber) Transcribe(_ context.Context, _ []byte, _ float64) ([]segment.RawSegment, error) {
	if f.Err != nil {
		return nil, f.Err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.Scripts) == 0 {
		return nil, nil
	}
	next := f.Scripts[0]
	f.Scripts = f.Scripts[1:]
	return next, nil
}

// FakeShallow returns scripted replies in order, then an empty screening.
type FakeShallow struct {
	mu      sync.Mutex
	Replies []string
	Err     error
	Prompts []string
}

func (f *FakeShallow) Generate(_ context.Context, prompt string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Prompts = append(f.Prompts, prompt)
	if f.Err != nil {
		return "", f.Err
	}
	if len(f.Replies) == 0 {
		return "Flags: []\nSemanticSummary: ''", nil
	}
	next := f.Replies[0]
	f.Replies = f.Replies[1:]
	return next, nil
}

// FakeDeep returns scripted replies in order, then empty strings.
type FakeDeep struct {
	mu      sync.Mutex
	Replies []string
	Err     error
	Prompts []string
}

func (f *FakeDeep) Send(_ context.Context, prompt string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Prompts = append(f.Prompts, prompt)
	if f.Err != nil {
		return "", f.Err
	}
	if len(f.Replies) == 0 {
		return "", nil
	}
	next := f.Replies[0]
	f.Replies = f.Replies[1:]
	return next, nil
}

// FakeEmbedder maps each distinct text to a deterministic vector, so only
// exact repeats look similar unless the test scripts a collision.
type FakeEmbedder struct {
	mu      sync.Mutex
	Vectors map[string][]float32
	Err     error
	nextDim int
}

func (f *FakeEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	if f.Err != nil {
		return nil, f.Err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Vectors == nil {
		f.Vectors = make(map[string][]float32)
	}
	if vec, ok := f.Vectors[text]; ok {
		return vec, nil
	}
	vec := make([]float32, 16)
	vec[f.nextDim%len(vec)] = 1
	f.nextDim++
	f.Vectors[text] = vec
	return vec, nil
}

// Words builds a raw segment from alternating text at fixed word spacing,
// starting at start seconds.
func Words(start float64, words ...string) segment.RawSegment {
	raw := segment.RawSegment{}
	at := start
	for _, w := range words {
		raw.Words = append(raw.Words, segment.RawWord{
			Text:  w,
			Start: at,
			End:   at + 0.3,
		})
		at += 0.3
	}
	if len(raw.Words) > 0 {
		raw.Start = raw.Words[0].Start
		raw.End = raw.Words[len(raw.Words)-1].End
	}
	return raw
}

// ClientSet bundles the fakes as a pipeline client set.
func ClientSet(tr *FakeTranscriber, sh *FakeShallow, dp *FakeDeep, em *FakeEmbedder) *clients.Set {
	return &clients.Set{
		Transcriber: tr,
		Shallow:     sh,
		Deep:        dp,
		Embedder:    em,
	}
}
