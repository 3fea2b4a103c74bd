// Package transcribe turns captured audio chunks into finalized transcript
// segments: it calls the transcription backend, merges overlapping word
// streams at a time cutoff, and guards against near-duplicate
// re-transcriptions of the same audio.
package transcribe

import (
	"strings"

	"earmark/internal/segment"
)

// MergeWords flattens the word streams of raw segments into a single
// utterance, dropping every word that ends at or before cutoff. Chunks
// overlap so that no speech is lost at chunk boundaries; the cutoff is the
// end time of the previously finalized segment, so words already covered by
// it are discarded here.
//
// ok is false when no words survive the cutoff.
func MergeWords(raws []segment.RawSegment, cutoff float64) (start, end float64, text string, ok bool) {
	var words []string
	first := true
	for _, raw := range raws {
		for _, word := range raw.Words {
			if word.End <= cutoff {
				continue
			}
			if first {
				start = word.Start
				first = false
			}
			end = word.End
			words = append(words, word.Text)
		}
	}
	if len(words) == 0 {
		return 0, 0, "", false
	}
	return start, end, strings.Join(words, " "), true
}
