package visual

import (
	"regexp"
	"strings"
)

var unmatchedTags = append([]string{"svg", "iframe", "math"}, htmlTags...)

// HasIncompleteVisual reports whether the tail of text holds the opening
// of a visual region whose terminator has not yet arrived: this gates
// whether a streaming consumer should hold back a chunk rather than treat
// it as finished prose.
func HasIncompleteVisual(text string) bool {
	cut, ok := IncompleteTailCutPoint(text)
	return ok && cut <= len(text)
}

// IncompleteTailCutPoint finds the earliest offset at which text must be
// truncated to remove an in-progress, unterminated visual region. Callers
// that need to hold back a streaming tail (C9's preprocessor) truncate at
// this offset rather than re-deriving the same detection rules.
func IncompleteTailCutPoint(text string) (int, bool) {
	cut := -1
	consider := func(idx int) {
		if idx >= 0 && (cut == -1 || idx < cut) {
			cut = idx
		}
	}

	if strings.Count(text, "```")%2 != 0 {
		consider(strings.LastIndex(text, "```"))
	}
	if strings.Count(text, "$$")%2 != 0 {
		consider(strings.LastIndex(text, "$$"))
	}
	for _, tag := range unmatchedTags {
		openRe := regexp.MustCompile(`(?i)<` + tag + `\b[^>]*>`)
		closeRe := regexp.MustCompile(`(?i)</` + tag + `\s*>`)
		opens := openRe.FindAllStringIndex(text, -1)
		closes := len(closeRe.FindAllStringIndex(text, -1))
		if len(opens) > closes {
			consider(opens[len(opens)-1][0])
		}
	}
	if hasPartialTagOpen(text) {
		consider(strings.LastIndexByte(text, '<'))
	}
	if hasDanglingTableHeader(text) {
		if idx := strings.LastIndexByte(text, '\n'); idx != -1 {
			consider(idx + 1)
		} else {
			consider(0)
		}
	}

	if cut == -1 {
		return 0, false
	}
	return cut, true
}

// hasPartialTagOpen reports whether text ends mid-way through an opening
// tag, e.g. "...<img sr" with no closing ">".
func hasPartialTagOpen(text string) bool {
	lastOpen := strings.LastIndexByte(text, '<')
	if lastOpen == -1 {
		return false
	}
	return !strings.ContainsRune(text[lastOpen:], '>')
}

// hasDanglingTableHeader reports whether the final non-empty line is a
// table header row with no following separator row.
func hasDanglingTableHeader(text string) bool {
	lines := strings.Split(text, "\n")
	last := ""
	for i := len(lines) - 1; i >= 0; i-- {
		if strings.TrimSpace(lines[i]) != "" {
			last = lines[i]
			break
		}
	}
	if last == "" {
		return false
	}
	return tableRowRe.MatchString(last) && !isSeparatorRow(last)
}
