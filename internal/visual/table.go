package visual

import (
	"regexp"
	"strings"
)

var (
	tableRowRe       = regexp.MustCompile(`^\s*\|(.+)\|\s*$`)
	tableSeparatorRe = regexp.MustCompile(`^\s*\|[ \t:|-]+\|\s*$`)
)

func isSeparatorRow(line string) bool {
	return tableSeparatorRe.MatchString(line) && strings.Contains(line, "-")
}

// findTable locates the earliest markdown table: a header row, a
// separator row, and at least one body row.
func findTable(text string) *Match {
	lines := strings.Split(text, "\n")
	offsets := make([]int, len(lines)+1)
	off := 0
	for i, l := range lines {
		offsets[i] = off
		off += len(l) + 1
	}
	offsets[len(lines)] = len(text)

	for i := 0; i < len(lines); i++ {
		if !tableRowRe.MatchString(lines[i]) {
			continue
		}
		if i+1 >= len(lines) || !isSeparatorRow(lines[i+1]) {
			continue
		}
		if i+2 >= len(lines) || !tableRowRe.MatchString(lines[i+2]) {
			continue
		}
		end := i + 2
		for end < len(lines) && tableRowRe.MatchString(lines[end]) {
			end++
		}
		start := offsets[i]
		var endOffset int
		if end < len(lines) {
			endOffset = offsets[end] - 1
		} else {
			endOffset = len(text)
		}
		return &Match{Start: start, End: endOffset, Kind: KindTable, Content: text[start:endOffset]}
	}
	return nil
}
