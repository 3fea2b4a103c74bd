package archive

import (
	"math"
	"strings"

	"earmark/internal/segment"
)

// StreamView is the wire shape pushed to stream subscribers: a segment
// flattened for display, with derived latency and duration.
type StreamView struct {
	ID                string         `json:"id"`
	Transcript        string         `json:"transcript"`
	Start             float64        `json:"start"`
	End               float64        `json:"end"`
	Latency           float64        `json:"latency"`
	LastUpdated       float64        `json:"last_updated"`
	Duration          float64        `json:"duration"`
	CreatedAt         float64        `json:"created_at"`
	PipelineStartedAt float64        `json:"pipeline_started_at"`
	Flags             []segment.Flag `json:"flags,omitempty"`
	Source            string         `json:"source"`
	Status            segment.Status `json:"status"`
}

// NewStreamView projects a segment for emission at time now. Latency is the
// age of the segment when this particular update left the pipeline, so later
// enrichment updates of the same segment report larger values.
func NewStreamView(seg *segment.Segment, now float64) StreamView {
	source := "shallow"
	for _, flag := range seg.Flags {
		if flag.Source == segment.SourceDeep {
			source = "deep"
			break
		}
	}
	return StreamView{
		ID:                seg.ID,
		Transcript:        strings.TrimSpace(seg.Text),
		Start:             round2(seg.Start),
		End:               round2(seg.End),
		Latency:           round2(now - seg.CreatedAt),
		LastUpdated:       seg.LastUpdated,
		Duration:          round2(seg.End - seg.Start),
		CreatedAt:         seg.CreatedAt,
		PipelineStartedAt: seg.PipelineStartedAt,
		Flags:             seg.Flags,
		Source:            source,
		Status:            seg.Status,
	}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
