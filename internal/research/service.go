// Package research serves on-demand deep dives: host-driven follow-up
// queries against archived segments, answered by the deep model with
// surrounding transcript as context.
package research

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"earmark/internal/archive"
	"earmark/internal/clients"
	"earmark/internal/deep"
	"earmark/internal/logging"
	"earmark/internal/segment"
)

// contextLines is how many prior segments accompany a research query.
const contextLines = 5

// UserSearchRequest asks for analysis of a quote the host selected, with an
// optional note steering the answer.
type UserSearchRequest struct {
	SegmentID    string `json:"segment_id"`
	SelectedText string `json:"selected_text"`
	Query        string `json:"query,omitempty"`
}

// UserSearchResponse is the structured answer to a user search.
type UserSearchResponse struct {
	Headline      string   `json:"headline"`
	Body          string   `json:"body"`
	KeyFigures    []string `json:"key_figures"`
	Timeline      []string `json:"timeline"`
	QueryDuration float64  `json:"query_duration"`
}

// DeepSearchRequest asks for a full workup of one archived segment's topic.
type DeepSearchRequest struct {
	SegmentID string `json:"segment_id"`
}

// DeepSearchResponse is the structured answer to a deep search.
type DeepSearchResponse struct {
	Topic         string   `json:"topic"`
	Summary       string   `json:"summary"`
	KeyFigures    []string `json:"key_figures"`
	Timeline      []string `json:"timeline"`
	Controversy   string   `json:"controversy"`
	Evidence      string   `json:"evidence"`
	QueryDuration float64  `json:"query_duration"`
}

// Service answers research queries against the archive.
type Service struct {
	store  *archive.Store
	model  clients.DeepModel
	logger *slog.Logger
}

// NewService wires a research service.
func NewService(store *archive.Store, model clients.DeepModel, logger *slog.Logger) *Service {
	return &Service{
		store:  store,
		model:  model,
		logger: logging.NewComponentLogger(logger, "research"),
	}
}

// UserSearch analyzes a selected quote. The result is also recorded on the
// segment's most recent flag so the archive carries the research trail.
func (s *Service) UserSearch(ctx context.Context, req UserSearchRequest) (UserSearchResponse, error) {
	var empty UserSearchResponse

	_, window, err := s.segmentContext(req.SegmentID)
	if err != nil {
		return empty, err
	}

	prompt := buildUserSearchPrompt(req.SelectedText, req.Query, window)

	started := time.Now()
	raw, err := s.model.Send(ctx, prompt)
	if err != nil {
		return empty, fmt.Errorf("user search: %w", err)
	}

	value, err := deep.DecodeObject(raw)
	if err != nil {
		return empty, fmt.Errorf("user search: model returned invalid JSON: %w", err)
	}
	obj, ok := value.(map[string]any)
	if !ok {
		return empty, fmt.Errorf("user search: unexpected response shape")
	}

	response := UserSearchResponse{
		Headline:      asString(obj["headline"]),
		Body:          asString(obj["body"]),
		KeyFigures:    asStrings(obj["key_figures"]),
		Timeline:      asStrings(obj["timeline"]),
		QueryDuration: round2(time.Since(started).Seconds()),
	}

	s.recordOnSegment(req.SegmentID, response)
	return response, nil
}

// DeepSearch analyzes the flagged topic of an archived segment.
func (s *Service) DeepSearch(ctx context.Context, req DeepSearchRequest) (DeepSearchResponse, error) {
	var empty DeepSearchResponse

	seg, window, err := s.segmentContext(req.SegmentID)
	if err != nil {
		return empty, err
	}

	var matches []string
	for _, flag := range seg.Flags {
		matches = append(matches, flag.Matches...)
	}
	topic := strings.Join(matches, " | ")
	if topic == "" {
		topic = strings.TrimSpace(seg.Text)
	}

	prompt := buildDeepSearchPrompt(topic, window)

	started := time.Now()
	raw, err := s.model.Send(ctx, prompt)
	if err != nil {
		return empty, fmt.Errorf("deep search: %w", err)
	}

	value, err := deep.DecodeObject(raw)
	if err != nil {
		return empty, fmt.Errorf("deep search: model returned invalid JSON: %w", err)
	}
	obj, ok := value.(map[string]any)
	if !ok {
		return empty, fmt.Errorf("deep search: unexpected response shape")
	}

	response := DeepSearchResponse{
		Topic:         asString(obj["topic"]),
		Summary:       asString(obj["summary"]),
		KeyFigures:    asStrings(obj["key_figures"]),
		Timeline:      asStrings(obj["timeline"]),
		Controversy:   asString(obj["controversy"]),
		Evidence:      asString(obj["evidence"]),
		QueryDuration: round2(time.Since(started).Seconds()),
	}
	if response.Topic == "" {
		response.Topic = topic
	}

	s.recordOnSegment(req.SegmentID, response)
	return response, nil
}

// segmentContext returns the archived segment and the texts of up to
// contextLines segments preceding it in start order.
func (s *Service) segmentContext(id string) (*segment.Segment, []string, error) {
	all := s.store.All()
	idx := -1
	for i, seg := range all {
		if seg.ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil, nil, fmt.Errorf("research: %w: %s", archive.ErrNotFound, id)
	}

	lo := idx - contextLines
	if lo < 0 {
		lo = 0
	}
	window := make([]string, 0, idx-lo)
	for _, seg := range all[lo:idx] {
		window = append(window, strings.TrimSpace(seg.Text))
	}
	return all[idx], window, nil
}

// recordOnSegment attaches the research result to the segment's most recent
// flag. A segment without flags keeps no trail; that matches the display,
// which only surfaces research on flagged rows.
func (s *Service) recordOnSegment(id string, result any) {
	encoded, err := json.Marshal(result)
	if err != nil {
		return
	}
	err = s.store.Apply(id, func(seg *segment.Segment) error {
		if len(seg.Flags) == 0 {
			return nil
		}
		flags := make([]segment.Flag, len(seg.Flags))
		for i, f := range seg.Flags {
			flags[i] = f.Clone()
		}
		flags[len(flags)-1].DeepSearch = string(encoded)
		seg.SetFlags(flags)
		return nil
	})
	if err != nil {
		s.logger.Warn("research result not recorded",
			logging.String(logging.FieldSegmentID, id),
			logging.Error(err))
	}
}

func asString(v any) string {
	s, _ := v.(string)
	return s
}

func asStrings(v any) []string {
	items, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
