// Package visual implements the Visual Boundary Parser (C6): pure string
// functions that locate complete, renderable visual regions (SVG, mermaid,
// code, images, tables, iframes, generic HTML blocks, math) inside
// streamed markdown text, and detect when a visual region has started but
// not yet finished arriving.
package visual

import (
	"regexp"
	"sort"
	"strings"
)

// Kind identifies a visual region's family, in the tie-break priority
// order used when two regions start at the same offset (§4.6).
type Kind string

const (
	KindSVG     Kind = "svg"
	KindMermaid Kind = "mermaid"
	KindCode    Kind = "code"
	KindImage   Kind = "image"
	KindTable   Kind = "table"
	KindIframe  Kind = "iframe"
	KindHTML    Kind = "html"
	KindMath    Kind = "math"
)

// priority maps Kind to its tie-break rank; lower wins.
var priority = map[Kind]int{
	KindSVG:     0,
	KindMermaid: 1,
	KindCode:    2,
	KindImage:   3,
	KindTable:   4,
	KindIframe:  5,
	KindHTML:    6,
	KindMath:    7,
}

// Match is one detected visual region.
type Match struct {
	Start   int
	End     int
	Kind    Kind
	Content string
}

var (
	svgRe     = regexp.MustCompile(`(?is)<svg\b[^>]*>.*?</svg\s*>`)
	iframeRe  = regexp.MustCompile(`(?is)<iframe\b[^>]*>.*?</iframe\s*>`)
	mathTagRe = regexp.MustCompile(`(?is)<math\b[^>]*>.*?</math\s*>`)
	mathDollarRe = regexp.MustCompile(`(?s)\$\$.*?\$\$`)
	imgMarkdownRe = regexp.MustCompile(`!\[[^\]]*\]\([^)\n]*\)`)
	imgHTMLRe     = regexp.MustCompile(`(?is)<img\b[^>]*/?>`)
	htmlTags      = []string{"div", "figure", "details", "summary", "blockquote", "section", "article", "aside", "nav", "header", "footer"}
)

// FindEarliestCompleteVisual returns the earliest fully-terminated visual
// region in text, or ok=false if none is present.
func FindEarliestCompleteVisual(text string) (match *Match, ok bool) {
	var candidates []*Match

	if m := firstRegexMatch(text, svgRe, KindSVG); m != nil {
		candidates = append(candidates, m)
	}
	if m := findFence(text); m != nil {
		candidates = append(candidates, m)
	}
	if m := findImage(text); m != nil {
		candidates = append(candidates, m)
	}
	if m := findTable(text); m != nil {
		candidates = append(candidates, m)
	}
	if m := firstRegexMatch(text, iframeRe, KindIframe); m != nil {
		candidates = append(candidates, m)
	}
	if m := findHTMLBlock(text); m != nil {
		candidates = append(candidates, m)
	}
	if m := findMath(text); m != nil {
		candidates = append(candidates, m)
	}

	if len(candidates) == 0 {
		return nil, false
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].Start != candidates[j].Start {
			return candidates[i].Start < candidates[j].Start
		}
		return priority[candidates[i].Kind] < priority[candidates[j].Kind]
	})
	return candidates[0], true
}

func firstRegexMatch(text string, re *regexp.Regexp, kind Kind) *Match {
	loc := re.FindStringIndex(text)
	if loc == nil {
		return nil
	}
	return &Match{Start: loc[0], End: loc[1], Kind: kind, Content: text[loc[0]:loc[1]]}
}

func findImage(text string) *Match {
	md := imgMarkdownRe.FindStringIndex(text)
	html := imgHTMLRe.FindStringIndex(text)
	switch {
	case md == nil && html == nil:
		return nil
	case md == nil:
		return &Match{Start: html[0], End: html[1], Kind: KindImage, Content: text[html[0]:html[1]]}
	case html == nil:
		return &Match{Start: md[0], End: md[1], Kind: KindImage, Content: text[md[0]:md[1]]}
	case md[0] <= html[0]:
		return &Match{Start: md[0], End: md[1], Kind: KindImage, Content: text[md[0]:md[1]]}
	default:
		return &Match{Start: html[0], End: html[1], Kind: KindImage, Content: text[html[0]:html[1]]}
	}
}

func findMath(text string) *Match {
	dollar := mathDollarRe.FindStringIndex(text)
	tag := mathTagRe.FindStringIndex(text)
	switch {
	case dollar == nil && tag == nil:
		return nil
	case dollar == nil:
		return &Match{Start: tag[0], End: tag[1], Kind: KindMath, Content: text[tag[0]:tag[1]]}
	case tag == nil:
		return &Match{Start: dollar[0], End: dollar[1], Kind: KindMath, Content: text[dollar[0]:dollar[1]]}
	case dollar[0] <= tag[0]:
		return &Match{Start: dollar[0], End: dollar[1], Kind: KindMath, Content: text[dollar[0]:dollar[1]]}
	default:
		return &Match{Start: tag[0], End: tag[1], Kind: KindMath, Content: text[tag[0]:tag[1]]}
	}
}

// findHTMLBlock finds the earliest complete <tag>...</tag> block for any
// of htmlTags, matched to the first same-tag closing tag it finds (the
// same greedy-to-first-terminator rule used for nested SVG).
func findHTMLBlock(text string) *Match {
	var best *Match
	for _, tag := range htmlTags {
		openRe := regexp.MustCompile(`(?i)<` + tag + `\b[^>]*>`)
		closeRe := regexp.MustCompile(`(?i)</` + tag + `\s*>`)
		openLoc := openRe.FindStringIndex(text)
		if openLoc == nil {
			continue
		}
		closeLoc := closeRe.FindStringIndex(text[openLoc[1]:])
		if closeLoc == nil {
			continue
		}
		end := openLoc[1] + closeLoc[1]
		m := &Match{Start: openLoc[0], End: end, Kind: KindHTML, Content: text[openLoc[0]:end]}
		if best == nil || m.Start < best.Start {
			best = m
		}
	}
	return best
}

// findFence locates the first complete ``` fenced block and classifies it
// as mermaid (info string starts with "mermaid") or plain code.
func findFence(text string) *Match {
	open := strings.Index(text, "```")
	if open == -1 {
		return nil
	}
	lineEnd := strings.IndexByte(text[open+3:], '\n')
	if lineEnd == -1 {
		return nil
	}
	info := strings.TrimSpace(text[open+3 : open+3+lineEnd])
	bodyStart := open + 3 + lineEnd + 1
	closeIdx := strings.Index(text[bodyStart:], "```")
	if closeIdx == -1 {
		return nil
	}
	end := bodyStart + closeIdx + 3
	kind := KindCode
	if strings.HasPrefix(strings.ToLower(info), "mermaid") {
		kind = KindMermaid
	}
	return &Match{Start: open, End: end, Kind: kind, Content: text[open:end]}
}
