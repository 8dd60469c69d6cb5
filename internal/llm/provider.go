// Package llm is the LLM Provider Abstraction (C5): a uniform complete/stream
// capability over pluggable providers, with per-model-family parameter
// normalisation and usage metering hooks.
package llm

import "context"

// Provider is the capability interface every concrete LLM backend
// implements. Streaming is modeled as a channel, matching how the rest of
// this codebase threads cancellation: closing ctx must release the
// underlying HTTP stream within a bounded time.
type Provider interface {
	// Name returns the provider's registry name (e.g. "openai", "anthropic").
	Name() string

	// Complete issues a single non-streaming request and returns the full
	// response text plus usage.
	Complete(ctx context.Context, req *CompletionRequest) (*CompletionResult, error)

	// Stream issues a streaming request; the returned channel is closed when
	// the stream ends (successfully or on error, see CompletionChunk.Error).
	Stream(ctx context.Context, req *CompletionRequest) (<-chan *CompletionChunk, error)
}

// CompletionMessage is one turn in the conversation sent to a provider.
type CompletionMessage struct {
	Role    string // "system", "user", "assistant"
	Content string
}

// ReloadParams are the per-model-family knobs resolved by the registry (see
// reload_params.go) and passed down to the concrete provider call.
type ReloadParams struct {
	ReasoningEffort string // "", "none", "minimal", "low"
	Temperature     *float64
	ExtraBody       map[string]any
}

// CompletionRequest carries everything a provider needs for one call.
type CompletionRequest struct {
	Model       string
	System      string
	Messages    []CompletionMessage
	Temperature float64
	MaxTokens   int
	Params      ReloadParams
}

// CompletionChunk is one streamed delta.
type CompletionChunk struct {
	Text  string
	Usage *Usage // populated on the terminal chunk when available
	Done  bool
	Error error
}

// CompletionResult is the full response from a one-shot Complete call.
type CompletionResult struct {
	Text  string
	Usage Usage
}

// Usage mirrors the token accounting the registry forwards to the metering
// recorder (C10).
type Usage struct {
	InputTokens       int64
	OutputTokens      int64
	TotalTokens       int64
	InputCacheTokens  int64
	LatencyMS         int64
}
