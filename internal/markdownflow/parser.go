// Package markdownflow parses the MarkdownFlow lesson dialect into an
// ordered sequence of content and interaction blocks.
package markdownflow

import (
	"regexp"
	"strings"

	"github.com/haasonsaas/mdflow-engine/pkg/mdflow"
)

// sectionBreak matches a line that starts a new "===" section.
var sectionBreak = regexp.MustCompile(`(?m)^[ \t]*={3,}[ \t]*$`)

// interactionRe matches one "?[...]" interaction region. It does not handle
// nested brackets; MarkdownFlow authors are not expected to nest them.
var interactionRe = regexp.MustCompile(`\?\[([^\]]*)\]`)

// varRefRe captures the optional "%{{identifier}}" variable reference at the
// head of an interaction body.
var varRefRe = regexp.MustCompile(`^%\{\{([A-Za-z_][A-Za-z0-9_]*)\}\}`)

// Parse is a deterministic, pure function turning a MarkdownFlow document
// into an ordered list of blocks. It never fails: malformed interactions
// degrade to CONTENT blocks with their raw text preserved verbatim.
func Parse(document string) []mdflow.Block {
	var blocks []mdflow.Block
	index := 0

	for _, section := range splitSections(document) {
		last := 0
		for _, loc := range interactionRe.FindAllStringSubmatchIndex(section, -1) {
			start, end := loc[0], loc[1]
			bodyStart, bodyEnd := loc[2], loc[3]

			if text := section[last:start]; strings.TrimSpace(text) != "" {
				blocks = append(blocks, mdflow.Block{Index: index, Type: mdflow.BlockContent, Content: text})
				index++
			}

			raw := section[start:end]
			body := section[bodyStart:bodyEnd]
			if interaction := parseInteractionBody(body); interaction != nil {
				blocks = append(blocks, mdflow.Block{
					Index:       index,
					Type:        mdflow.BlockInteraction,
					Content:     raw,
					Interaction: interaction,
				})
			} else {
				// Malformed interaction body: degrade to CONTENT, raw text preserved.
				blocks = append(blocks, mdflow.Block{Index: index, Type: mdflow.BlockContent, Content: raw})
			}
			index++
			last = end
		}
		if text := section[last:]; strings.TrimSpace(text) != "" {
			blocks = append(blocks, mdflow.Block{Index: index, Type: mdflow.BlockContent, Content: text})
			index++
		}
	}

	return blocks
}

// splitSections breaks the document on "===" section-break lines, dropping
// the delimiter lines themselves.
func splitSections(document string) []string {
	locs := sectionBreak.FindAllStringIndex(document, -1)
	if len(locs) == 0 {
		return []string{document}
	}
	var sections []string
	last := 0
	for _, loc := range locs {
		sections = append(sections, document[last:loc[0]])
		last = loc[1]
	}
	sections = append(sections, document[last:])
	return sections
}

// parseInteractionBody parses the text between "?[" and "]". Returns nil if
// the body is empty (caller degrades to CONTENT).
func parseInteractionBody(body string) *mdflow.Interaction {
	if strings.TrimSpace(body) == "" {
		return nil
	}

	interaction := &mdflow.Interaction{}
	rest := body
	if m := varRefRe.FindStringSubmatchIndex(rest); m != nil {
		interaction.Variable = rest[m[2]:m[3]]
		rest = rest[m[1]:]
	}

	switch {
	case strings.HasPrefix(rest, "..."):
		interaction.Question = strings.TrimPrefix(rest, "...")
	case strings.Contains(rest, "||") || strings.Contains(rest, "//") || !strings.Contains(rest, "..."):
		for _, part := range strings.Split(rest, "||") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			label, value := part, part
			if i := strings.Index(part, "//"); i >= 0 {
				label, value = part[:i], part[i+2:]
			}
			interaction.Buttons = append(interaction.Buttons, mdflow.Button{Label: label, Value: value})
		}
	default:
		interaction.Question = rest
	}

	if len(interaction.Buttons) == 0 && interaction.Question == "" {
		return nil
	}
	return interaction
}
