// Package ttsprep implements the Text Preprocessor for TTS (C9): turning
// streamed markdown/HTML prose into plain speakable text.
package ttsprep

import (
	"html"
	"regexp"
	"strings"

	"github.com/haasonsaas/mdflow-engine/internal/markdown"
	"github.com/haasonsaas/mdflow-engine/internal/visual"
)

var (
	fencedBlockRe = regexp.MustCompile("(?s)```.*?```")
	svgBlockRe    = regexp.MustCompile(`(?is)<svg\b[^>]*>.*?</svg\s*>`)
	mathTagRe     = regexp.MustCompile(`(?is)<math\b[^>]*>.*?</math\s*>`)
	mathDollarRe  = regexp.MustCompile(`(?s)\$\$.*?\$\$`)
	scriptRe      = regexp.MustCompile(`(?is)<script\b[^>]*>.*?</script\s*>`)
	styleRe       = regexp.MustCompile(`(?is)<style\b[^>]*>.*?</style\s*>`)
	anyTagRe      = regexp.MustCompile(`(?s)<[^>]*>`)
	headerRe      = regexp.MustCompile(`(?m)^\s{0,3}#+\s*`)
	imageRe       = regexp.MustCompile(`!\[[^\]]*\]\([^)\n]*\)`)
	linkRe        = regexp.MustCompile(`\[([^\]]*)\]\([^)\n]*\)`)
	emphasisRe    = regexp.MustCompile(`(\*\*\*|\*\*|\*|___|__|_|~~)`)
	listMarkerRe  = regexp.MustCompile(`(?m)^\s*([-*+]|\d+[.)])\s+`)
	dataURIRe     = regexp.MustCompile(`data:[a-zA-Z0-9/+.;=,-]+`)
	blankRunRe    = regexp.MustCompile(`\n{3,}`)
	intraSpaceRe  = regexp.MustCompile(`[ \t]{2,}`)
)

// PreprocessForTTS reduces streamed markdown/HTML text to plain prose
// suitable for speech synthesis. It is idempotent: running it twice
// produces the same result as running it once.
func PreprocessForTTS(text string) string {
	// 1. unescape entities up to twice, normalise non-breaking space.
	for i := 0; i < 2; i++ {
		unescaped := html.UnescapeString(text)
		if unescaped == text {
			break
		}
		text = unescaped
	}
	text = strings.ReplaceAll(text, "\u00A0", " ")

	// 2. strip an in-progress tail that has not yet terminated.
	text = stripIncompleteTail(text)

	// 2.5. a markdown table reads as noise spoken cell by cell; flatten it
	// to "header: value" bullets before any further stripping.
	text = markdown.ConvertTables(text, markdown.TableModeBullets)

	// 3. remove fenced/mermaid/svg/math/script/style regions.
	text = fencedBlockRe.ReplaceAllString(text, " ")
	text = svgBlockRe.ReplaceAllString(text, " ")
	text = mathTagRe.ReplaceAllString(text, " ")
	text = mathDollarRe.ReplaceAllString(text, " ")
	text = scriptRe.ReplaceAllString(text, " ")
	text = styleRe.ReplaceAllString(text, " ")

	// 4. strip any remaining tags.
	text = anyTagRe.ReplaceAllString(text, " ")

	// 5. headers, images, links (keep text), emphasis markers.
	text = headerRe.ReplaceAllString(text, "")
	text = imageRe.ReplaceAllString(text, " ")
	text = linkRe.ReplaceAllString(text, "$1")
	text = emphasisRe.ReplaceAllString(text, "")

	// 6. list markers and data URIs.
	text = listMarkerRe.ReplaceAllString(text, "")
	text = dataURIRe.ReplaceAllString(text, " ")

	// 7. collapse whitespace.
	text = blankRunRe.ReplaceAllString(text, "\n\n")
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(intraSpaceRe.ReplaceAllString(line, " "))
	}
	text = strings.Join(lines, "\n")
	text = strings.Trim(text, "\n")

	return text
}

// stripIncompleteTail removes the suffix of text that holds an
// unterminated visual region, so half-arrived SVG/math/fences never reach
// the speech synthesizer.
func stripIncompleteTail(text string) string {
	for i := 0; i < 64; i++ {
		cut, ok := visual.IncompleteTailCutPoint(text)
		if !ok {
			break
		}
		if cut >= len(text) || cut < 0 {
			break
		}
		next := text[:cut]
		if next == text {
			break
		}
		text = next
	}
	return text
}

// HasIncompleteBlock reports the same streaming-safety condition as C6's
// has_incomplete_visual: whether text's tail holds an unterminated visual
// region that a consumer should hold back rather than synthesize.
func HasIncompleteBlock(text string) bool {
	return visual.HasIncompleteVisual(text)
}
