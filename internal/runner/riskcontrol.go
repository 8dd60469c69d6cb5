package runner

import (
	"context"
	"fmt"

	"github.com/haasonsaas/mdflow-engine/internal/llm"
)

// RiskValidator is the check-text-with-risk-control validation layer
// (§4.3.3c): an LLM-backed validator that may stream feedback chunks. An
// empty stream means the answer passed; any non-empty content means the
// Runner must surface it to the learner and block the interaction for
// retry instead of proceeding to variable extraction.
type RiskValidator interface {
	Check(ctx context.Context, question, answer string) (<-chan string, error)
}

// NopRiskValidator always passes every answer through unexamined. Used when
// no risk-control model is configured.
type NopRiskValidator struct{}

func (NopRiskValidator) Check(context.Context, string, string) (<-chan string, error) {
	ch := make(chan string)
	close(ch)
	return ch, nil
}

// LLMRiskValidator asks a configured model whether an answer is safe to
// record, streaming its reasoning back verbatim when it flags a problem and
// staying silent (closing the channel with nothing sent) when it is clean.
type LLMRiskValidator struct {
	Registry    *llm.Registry
	Model       string
	Temperature float64
}

const cleanMarker = "SAFE"

func (v *LLMRiskValidator) Check(ctx context.Context, question, answer string) (<-chan string, error) {
	req := &llm.CompletionRequest{
		Model:       v.Model,
		Temperature: v.Temperature,
		System: "You moderate learner answers in an educational setting. " +
			"Reply with exactly the word " + cleanMarker + " if the answer is benign. " +
			"Otherwise reply with a short, polite message telling the learner why their answer " +
			"cannot be recorded and asking them to try again.",
		Messages: []llm.CompletionMessage{
			{Role: "user", Content: fmt.Sprintf("Question: %s\nAnswer: %s", question, answer)},
		},
	}

	upstream, err := v.Registry.Stream(ctx, req)
	if err != nil {
		return nil, err
	}

	out := make(chan string)
	go func() {
		defer close(out)
		var flagged bool
		for chunk := range upstream {
			if chunk.Error != nil || chunk.Text == "" {
				continue
			}
			if !flagged {
				trimmed := chunk.Text
				if len(trimmed) >= len(cleanMarker) && trimmed[:len(cleanMarker)] == cleanMarker {
					return
				}
				flagged = true
			}
			select {
			case out <- chunk.Text:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}
