// Package textutil provides text normalization and similarity helpers for the
// transcript pipeline.
//
// The primary use cases are:
//   - Normalizing utterance text (NFKC fold, whitespace collapse) before
//     comparison
//   - Computing a sequence-match ratio between two strings for the
//     near-duplicate guard on streaming transcription output
package textutil
