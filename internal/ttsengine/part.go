package ttsengine

import "github.com/haasonsaas/mdflow-engine/internal/visual"

// part tracks one audio part's accumulated raw text and its Sub-Processor.
type part struct {
	position   int
	raw        string
	precededBy *visual.Match
	sp         *subProcessor
	closed     bool
}
