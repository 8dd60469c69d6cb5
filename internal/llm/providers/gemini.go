package providers

import (
	"context"
	"strings"
	"time"

	"google.golang.org/genai"

	"github.com/haasonsaas/mdflow-engine/internal/llm"
)

// GeminiProvider implements llm.Provider for Google's Gemini API via the
// Google Gen AI Go SDK.
type GeminiProvider struct {
	BaseProvider
	client       *genai.Client
	defaultModel string
}

// GeminiConfig holds the parameters needed to construct a GeminiProvider.
type GeminiConfig struct {
	APIKey       string
	DefaultModel string
}

// NewGeminiProvider builds a client against the Gemini API backend.
func NewGeminiProvider(ctx context.Context, cfg GeminiConfig) (*GeminiProvider, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, err
	}
	model := cfg.DefaultModel
	if model == "" {
		model = "gemini-2.5-flash"
	}
	return &GeminiProvider{
		BaseProvider: NewBaseProvider("gemini", 3, time.Second),
		client:       client,
		defaultModel: model,
	}, nil
}

func (p *GeminiProvider) model(req *llm.CompletionRequest) string {
	if req.Model != "" {
		return req.Model
	}
	return p.defaultModel
}

func (p *GeminiProvider) contents(req *llm.CompletionRequest) []*genai.Content {
	out := make([]*genai.Content, 0, len(req.Messages))
	for _, m := range req.Messages {
		role := "user"
		if m.Role == "assistant" {
			role = "model"
		}
		out = append(out, &genai.Content{
			Role:  role,
			Parts: []*genai.Part{{Text: m.Content}},
		})
	}
	return out
}

func (p *GeminiProvider) config(req *llm.CompletionRequest) *genai.GenerateContentConfig {
	cfg := &genai.GenerateContentConfig{}
	if req.System != "" {
		cfg.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: req.System}}}
	}
	if req.MaxTokens > 0 {
		cfg.MaxOutputTokens = int32(req.MaxTokens)
	}
	if req.Params.Temperature != nil {
		t := float32(*req.Params.Temperature)
		cfg.Temperature = &t
	}
	return cfg
}

// Complete issues a one-shot completion by draining the streaming API,
// since the SDK does not expose a distinct non-streaming call.
func (p *GeminiProvider) Complete(ctx context.Context, req *llm.CompletionRequest) (*llm.CompletionResult, error) {
	chunks, err := p.Stream(ctx, req)
	if err != nil {
		return nil, err
	}
	var text strings.Builder
	var usage llm.Usage
	for chunk := range chunks {
		if chunk.Error != nil {
			return nil, chunk.Error
		}
		text.WriteString(chunk.Text)
		if chunk.Usage != nil {
			usage = *chunk.Usage
		}
	}
	return &llm.CompletionResult{Text: text.String(), Usage: usage}, nil
}

// Stream issues a streaming completion.
func (p *GeminiProvider) Stream(ctx context.Context, req *llm.CompletionRequest) (<-chan *llm.CompletionChunk, error) {
	model := p.model(req)
	contents := p.contents(req)
	cfg := p.config(req)

	out := make(chan *llm.CompletionChunk)
	go p.pump(ctx, model, contents, cfg, out)
	return out, nil
}

func (p *GeminiProvider) pump(ctx context.Context, model string, contents []*genai.Content, cfg *genai.GenerateContentConfig, out chan<- *llm.CompletionChunk) {
	defer close(out)

	var inputTokens, outputTokens int64
	err := p.Retry(ctx, IsRetryableHTTPError, func() error {
		streamIter := p.client.Models.GenerateContentStream(ctx, model, contents, cfg)
		for resp, err := range streamIter {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}
			if err != nil {
				return err
			}
			if resp == nil {
				continue
			}
			if resp.UsageMetadata != nil {
				inputTokens = int64(resp.UsageMetadata.PromptTokenCount)
				outputTokens = int64(resp.UsageMetadata.CandidatesTokenCount)
			}
			for _, candidate := range resp.Candidates {
				if candidate == nil || candidate.Content == nil {
					continue
				}
				for _, part := range candidate.Content.Parts {
					if part != nil && part.Text != "" {
						out <- &llm.CompletionChunk{Text: part.Text}
					}
				}
			}
		}
		return nil
	})
	if err != nil {
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
