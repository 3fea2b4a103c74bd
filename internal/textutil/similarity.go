package textutil

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Normalize lowercases and NFKC-normalizes text, straightens curly
// apostrophes, and collapses runs of whitespace to single spaces. Both sides
// of a similarity comparison go through this first.
func Normalize(text string) string {
	text = norm.NFKC.String(text)
	text = strings.ToLower(strings.TrimSpace(text))
	text = strings.ReplaceAll(text, "’", "'")
	return strings.Join(strings.Fields(text), " ")
}

// Ratio returns a similarity measure in [0, 1] between two strings:
// twice the number of matching runes found by repeatedly taking the longest
// common contiguous block, divided by the total rune count. Identical strings
// score 1, disjoint strings 0.
func Ratio(a, b string) float64 {
	ra := []rune(Normalize(a))
	rb := []rune(Normalize(b))
	total := len(ra) + len(rb)
	if total == 0 {
		return 1
	}
	matched := matchingRunes(ra, rb)
	return 2 * float64(matched) / float64(total)
}

func matchingRunes(a, b []rune) int {
	type span struct{ aLo, aHi, bLo, bHi int }
	stack := []span{{0, len(a), 0, len(b)}}
	matched := 0
	for len(stack) > 0 {
		s := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		ai, bi, size := longestMatch(a, b, s.aLo, s.aHi, s.bLo, s.bHi)
		if size == 0 {
			continue
		}
		matched += size
		stack = append(stack,
			span{s.aLo, ai, s.bLo, bi},
			span{ai + size, s.aHi, bi + size, s.bHi},
		)
	}
	return matched
}

// longestMatch finds the longest contiguous run common to a[aLo:aHi] and
// b[bLo:bHi], preferring the earliest occurrence on ties.
func longestMatch(a, b []rune, aLo, aHi, bLo, bHi int) (bestA, bestB, bestSize int) {
	bestA, bestB = aLo, bLo
	// lengths[j] holds the length of the common run ending at a[i-1], b[j-1].
	lengths := make([]int, bHi-bLo+1)
	for i := aLo; i < aHi; i++ {
		prev := 0
		for j := bLo; j < bHi; j++ {
			cur := lengths[j-bLo+1]
			if a[i] == b[j] {
				length := prev + 1
				lengths[j-bLo+1] = length
				if length > bestSize {
					bestA = i - length + 1
					bestB = j - length + 1
					bestSize = length
				}
			} else {
				lengths[j-bLo+1] = 0
			}
			prev = cur
		}
	}
	return bestA, bestB, bestSize
}
