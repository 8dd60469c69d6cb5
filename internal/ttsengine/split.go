package ttsengine

import "github.com/haasonsaas/mdflow-engine/internal/visual"

// rawSegment is one maximal run of text between visual boundaries, plus the
// visual match that immediately precedes it (nil for the first segment).
type rawSegment struct {
	text       string
	precededBy *visual.Match
}

// splitBuffer partitions buf into the closed (fully-bounded) raw segments
// that precede each complete visual match found so far, the still-open tail
// after the last complete visual, and that last visual match (nil if none
// was found yet — it precedes the eventual part that follows the tail).
// Re-run on the full buffer on every chunk per §4.7.1: "recomputed on every
// chunk."
func splitBuffer(buf string) (closed []rawSegment, openTail string, lastVisual *visual.Match) {
	cursor := 0
	for {
		remainder := buf[cursor:]
		match, ok := visual.FindEarliestCompleteVisual(remainder)
		if !ok {
			break
		}
		text := remainder[:match.Start]
		closed = append(closed, rawSegment{text: text, precededBy: lastVisual})
		m := *match
		lastVisual = &m
		cursor += match.End
	}
	openTail = buf[cursor:]
	return closed, openTail, lastVisual
}
