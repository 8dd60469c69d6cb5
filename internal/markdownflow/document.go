package markdownflow

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/haasonsaas/mdflow-engine/internal/llm"
	"github.com/haasonsaas/mdflow-engine/pkg/mdflow"
)

// LLMSettings is the resolved (llm, llm_temperature) pair a Document uses
// for every CONTENT/COMPLETE invocation, ancestor-resolved by the Block
// Runner before the Document is built.
type LLMSettings struct {
	Model       string
	Temperature float64
}

// Document binds a parsed block sequence to the LLM settings and system
// prompt the Block Runner resolved for the current outline leaf. It is the
// "MarkdownFlow.process" surface: STREAM drives CONTENT blocks, COMPLETE
// validates and extracts variables from an INTERACTION answer.
type Document struct {
	Blocks       []mdflow.Block
	registry     *llm.Registry
	settings     LLMSettings
	systemPrompt string
}

// NewDocument parses raw and binds it to the registry/settings/system
// prompt the caller resolved via the outline ancestor chain.
func NewDocument(raw, systemPrompt string, settings LLMSettings, registry *llm.Registry) *Document {
	return &Document{
		Blocks:       Parse(raw),
		registry:     registry,
		settings:     settings,
		systemPrompt: systemPrompt,
	}
}

// Block returns the block at index, or false if out of range.
func (d *Document) Block(index int) (mdflow.Block, bool) {
	if index < 0 || index >= len(d.Blocks) {
		return mdflow.Block{}, false
	}
	return d.Blocks[index], true
}

// Len reports the total number of parsed blocks.
func (d *Document) Len() int {
	return len(d.Blocks)
}

// ContentChunk is one item from a Stream call: either a text delta or a
// terminal usage record, never both.
type ContentChunk struct {
	Text  string
	Usage *llm.Usage
	Err   error
}

var profileVarRe = regexp.MustCompile(`\{\{([A-Za-z_][A-Za-z0-9_]*)\}\}`)

// substituteProfile replaces every "{{name}}" reference in content with the
// learner's current profile value, leaving unknown references verbatim.
func substituteProfile(content string, profile map[string]string) string {
	return profileVarRe.ReplaceAllStringFunc(content, func(match string) string {
		name := profileVarRe.FindStringSubmatch(match)[1]
		if v, ok := profile[name]; ok {
			return v
		}
		return match
	})
}

// Stream invokes the bound CONTENT block through the LLM registry,
// substituting the learner's profile variables into the block's raw
// content before sending it as the user turn.
func (d *Document) Stream(ctx context.Context, blockIndex int, profile map[string]string) (<-chan ContentChunk, error) {
	block, ok := d.Block(blockIndex)
	if !ok {
		return nil, fmt.Errorf("markdownflow: block %d out of range", blockIndex)
	}

	req := &llm.CompletionRequest{
		Model:       d.settings.Model,
		System:      d.systemPrompt,
		Temperature: d.settings.Temperature,
		Messages: []llm.CompletionMessage{
			{Role: "user", Content: substituteProfile(block.Content, profile)},
		},
	}

	upstream, err := d.registry.Stream(ctx, req)
	if err != nil {
		return nil, err
	}

	out := make(chan ContentChunk)
	go func() {
		defer close(out)
		for chunk := range upstream {
			if chunk.Error != nil {
				out <- ContentChunk{Err: chunk.Error}
				return
			}
			if chunk.Text != "" {
				out <- ContentChunk{Text: chunk.Text}
			}
			if chunk.Usage != nil {
				out <- ContentChunk{Usage: chunk.Usage}
			}
		}
	}()
	return out, nil
}

// CompleteResult is the outcome of a COMPLETE invocation: either a non-empty
// Variables map (the answer validated) or a non-empty Message (it did not,
// and Message is the feedback to show the learner).
type CompleteResult struct {
	Variables map[string]string
	Message   string
}

type extractionResponse struct {
	Valid   bool   `json:"valid"`
	Value   string `json:"value"`
	Message string `json:"message"`
}

var jsonObjectRe = regexp.MustCompile(`(?s)\{.*\}`)

// Complete validates and extracts the declared variable's value from the
// learner's normalised input for an INTERACTION block, via a one-shot LLM
// call asked to answer in JSON. An interaction with no declared variable is
// purely informational and never reaches this call (the Runner short
// circuits it per §4.3.3d).
func (d *Document) Complete(ctx context.Context, blockIndex int, userInput map[string][]string) (*CompleteResult, error) {
	block, ok := d.Block(blockIndex)
	if !ok || block.Interaction == nil || block.Interaction.Variable == "" {
		return &CompleteResult{Variables: map[string]string{}}, nil
	}

	values := userInput[block.Interaction.Variable]
	joined := strings.Join(values, ",")

	req := &llm.CompletionRequest{
		Model:       d.settings.Model,
		System:      d.systemPrompt,
		Temperature: d.settings.Temperature,
		Messages: []llm.CompletionMessage{
			{Role: "user", Content: buildExtractionPrompt(block.Interaction, joined)},
		},
	}

	result, err := d.registry.Complete(ctx, req)
	if err != nil {
		return nil, err
	}

	valid, value, message := parseExtractionResponse(result.Text, joined)
	if !valid {
		return &CompleteResult{Message: message}, nil
	}
	return &CompleteResult{Variables: map[string]string{block.Interaction.Variable: value}}, nil
}

func buildExtractionPrompt(interaction *mdflow.Interaction, answer string) string {
	question := interaction.Question
	if question == "" && len(interaction.Buttons) > 0 {
		var labels []string
		for _, b := range interaction.Buttons {
			labels = append(labels, b.Label)
		}
		question = "choose one of: " + strings.Join(labels, ", ")
	}
	return fmt.Sprintf(
		"The learner was asked: %q\nThe learner answered: %q\n"+
			"Reply with a single JSON object: {\"valid\": bool, \"value\": string, \"message\": string}. "+
			"valid is true only if the answer actually addresses the question. "+
			"value is the normalised answer to record when valid. "+
			"message is a short corrective prompt to show the learner when not valid.",
		question, answer,
	)
}

// parseExtractionResponse pulls the first {...} JSON object out of text. A
// response the model failed to shape as JSON degrades to treating the raw
// answer as valid, rather than blocking the learner on a formatting slip.
func parseExtractionResponse(text, fallbackAnswer string) (valid bool, value string, message string) {
	match := jsonObjectRe.FindString(text)
	if match == "" {
		return true, fallbackAnswer, ""
	}
	var resp extractionResponse
	if err := json.Unmarshal([]byte(match), &resp); err != nil {
		return true, fallbackAnswer, ""
	}
	if !resp.Valid {
		return false, "", resp.Message
	}
	value = resp.Value
	if value == "" {
		value = fallbackAnswer
	}
	return true, value, ""
}
