package providers

import (
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"context"

	"github.com/haasonsaas/mdflow-engine/internal/llm"
)

// AnthropicProvider implements llm.Provider for Anthropic's Claude API.
type AnthropicProvider struct {
	BaseProvider
	client       anthropic.Client
	defaultModel string
}

// AnthropicConfig holds the parameters needed to construct an
// AnthropicProvider.
type AnthropicConfig struct {
	APIKey       string
	BaseURL      string
	DefaultModel string
}

// NewAnthropicProvider builds a provider from config, defaulting the model
// to claude-sonnet-4 when unset.
func NewAnthropicProvider(cfg AnthropicConfig) *AnthropicProvider {
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if strings.TrimSpace(cfg.BaseURL) != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	model := cfg.DefaultModel
	if model == "" {
		model = "claude-sonnet-4-20250514"
	}
	return &AnthropicProvider{
		BaseProvider: NewBaseProvider("anthropic", 3, time.Second),
		client:       anthropic.NewClient(opts...),
		defaultModel: model,
	}
}

func (p *AnthropicProvider) model(req *llm.CompletionRequest) string {
	if req.Model != "" {
		return req.Model
	}
	return p.defaultModel
}

func (p *AnthropicProvider) maxTokens(req *llm.CompletionRequest) int64 {
	if req.MaxTokens > 0 {
		return int64(req.MaxTokens)
	}
	return 4096
}

func (p *AnthropicProvider) messages(req *llm.CompletionRequest) []anthropic.MessageParam {
	out := make([]anthropic.MessageParam, 0, len(req.Messages))
	for _, m := range req.Messages {
		block := anthropic.NewTextBlock(m.Content)
		if m.Role == "assistant" {
			out = append(out, anthropic.NewAssistantMessage(block))
		} else {
			out = append(out, anthropic.NewUserMessage(block))
		}
	}
	return out
}

func (p *AnthropicProvider) params(req *llm.CompletionRequest) anthropic.MessageNewParams {
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(p.model(req)),
		Messages:  p.messages(req),
		MaxTokens: p.maxTokens(req),
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Type: "text", Text: req.System}}
	}
	if req.Params.Temperature != nil {
		params.Temperature = anthropic.Float(*req.Params.Temperature)
	}
	return params
}

// Complete issues a one-shot completion.
func (p *AnthropicProvider) Complete(ctx context.Context, req *llm.CompletionRequest) (*llm.CompletionResult, error) {
	var resp *anthropic.Message
	err := p.Retry(ctx, IsRetryableHTTPError, func() error {
		var callErr error
		resp, callErr = p.client.Messages.New(ctx, p.params(req))
		return callErr
	})
	if err != nil {
		return nil, err
	}

	var text strings.Builder
	for _, block := range resp.Content {
		if variant := block.AsAny(); variant != nil {
			if t, ok := variant.(anthropic.TextBlock); ok {
				text.WriteString(t.Text)
			}
		}
	}
	return &llm.CompletionResult{
		Text: text.String(),
		Usage: llm.Usage{
			InputTokens:      resp.Usage.InputTokens,
			OutputTokens:     resp.Usage.OutputTokens,
			TotalTokens:      resp.Usage.InputTokens + resp.Usage.OutputTokens,
			InputCacheTokens: resp.Usage.CacheReadInputTokens,
		},
	}, nil
}

// Stream issues a streaming completion over Anthropic's SSE protocol.
func (p *AnthropicProvider) Stream(ctx context.Context, req *llm.CompletionRequest) (<-chan *llm.CompletionChunk, error) {
	stream := p.client.Messages.NewStreaming(ctx, p.params(req))

	out := make(chan *llm.CompletionChunk)
	go p.pump(ctx, stream, out)
	return out, nil
}

func (p *AnthropicProvider) pump(ctx context.Context, stream interface {
	Next() bool
	Current() anthropic.MessageStreamEventUnion
	Err() error
	Close() error
}, out chan<- *llm.CompletionChunk) {
	defer close(out)
	defer stream.Close()

	var inputTokens, outputTokens int64
	for stream.Next() {
		select {
		case <-ctx.Done():
			out <- &llm.CompletionChunk{Error: ctx.Err(), Done: true}
			return
		default:
		}

		event := stream.Current()
		switch event.Type {
		case "message_start":
			ms := event.AsMessageStart()
			inputTokens = ms.Message.Usage.InputTokens
		case "content_block_delta":
			delta := event.AsContentBlockDelta().Delta
			if delta.Type == "text_delta" && delta.Text != "" {
				out <- &llm.CompletionChunk{Text: delta.Text}
			}
		case "message_delta":
			md := event.AsMessageDelta()
			outputTokens = md.Usage.OutputTokens
		}
	}
	if err := stream.Err(); err != nil {
		out <- &llm.CompletionChunk{Error: err, Done: true}
		return
	}
	out <- &llm.CompletionChunk{
		Done: true,
		Usage: &llm.Usage{
			InputTokens:  inputTokens,
			OutputTokens: outputTokens,
			TotalTokens:  inputTokens + outputTokens,
		},
	}
}
