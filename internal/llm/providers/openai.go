package providers

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/haasonsaas/mdflow-engine/internal/llm"
	openai "github.com/sashabaranov/go-openai"
)

// OpenAIProvider implements llm.Provider for OpenAI and OpenAI-compatible
// endpoints (the registry routes qwen/ernie/glm/silicon/ark aliases here
// too, with BaseURL overridden per provider).
type OpenAIProvider struct {
	BaseProvider
	client *openai.Client
}

// NewOpenAIProvider builds a client against the default OpenAI endpoint.
func NewOpenAIProvider(apiKey string) *OpenAIProvider {
	return &OpenAIProvider{
		BaseProvider: NewBaseProvider("openai", 3, time.Second),
		client:       openai.NewClient(apiKey),
	}
}

// NewOpenAICompatibleProvider builds a client against a custom base URL,
// used for the Ark/Silicon/Qwen/GLM/Ernie OpenAI-compatible aliases.
func NewOpenAICompatibleProvider(name, apiKey, baseURL string) *OpenAIProvider {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &OpenAIProvider{
		BaseProvider: NewBaseProvider(name, 3, time.Second),
		client:       openai.NewClientWithConfig(cfg),
	}
}

func (p *OpenAIProvider) buildRequest(req *llm.CompletionRequest, stream bool) openai.ChatCompletionRequest {
	messages := make([]openai.ChatCompletionMessage, 0, len(req.Messages)+1)
	if req.System != "" {
		messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: req.System})
	}
	for _, m := range req.Messages {
		messages = append(messages, openai.ChatCompletionMessage{Role: m.Role, Content: m.Content})
	}

	out := openai.ChatCompletionRequest{
		Model:    req.Model,
		Messages: messages,
		Stream:   stream,
	}
	if req.MaxTokens > 0 {
		out.MaxTokens = req.MaxTokens
	}
	if req.Params.Temperature != nil {
		out.Temperature = float32(*req.Params.Temperature)
	}
	if req.Params.ReasoningEffort != "" {
		out.ReasoningEffort = req.Params.ReasoningEffort
	}
	if stream {
		out.StreamOptions = &openai.StreamOptions{IncludeUsage: true}
	}
	return out
}

// Complete issues a one-shot (non-streaming) request.
func (p *OpenAIProvider) Complete(ctx context.Context, req *llm.CompletionRequest) (*llm.CompletionResult, error) {
	chatReq := p.buildRequest(req, false)

	var resp openai.ChatCompletionResponse
	err := p.Retry(ctx, IsRetryableHTTPError, func() error {
		var callErr error
		resp, callErr = p.client.CreateChatCompletion(ctx, chatReq)
		return callErr
	})
	if err != nil {
		return nil, err
	}
	text := ""
	if len(resp.Choices) > 0 {
		text = resp.Choices[0].Message.Content
	}
	return &llm.CompletionResult{
		Text: text,
		Usage: llm.Usage{
			InputTokens:  int64(resp.Usage.PromptTokens),
			OutputTokens: int64(resp.Usage.CompletionTokens),
			TotalTokens:  int64(resp.Usage.TotalTokens),
		},
	}, nil
}

// Stream issues a streaming completion.
func (p *OpenAIProvider) Stream(ctx context.Context, req *llm.CompletionRequest) (<-chan *llm.CompletionChunk, error) {
	chatReq := p.buildRequest(req, true)

	var stream *openai.ChatCompletionStream
	err := p.Retry(ctx, IsRetryableHTTPError, func() error {
		var callErr error
		stream, callErr = p.client.CreateChatCompletionStream(ctx, chatReq)
		return callErr
	})
	if err != nil {
		return nil, err
	}

	out := make(chan *llm.CompletionChunk)
	go p.pump(ctx, stream, out)
	return out, nil
}

func (p *OpenAIProvider) pump(ctx context.Context, stream *openai.ChatCompletionStream, out chan<- *llm.CompletionChunk) {
	defer close(out)
	defer stream.Close()

	for {
		select {
		case <-ctx.Done():
			out <- &llm.CompletionChunk{Error: ctx.Err(), Done: true}
			return
		default:
		}

		resp, err := stream.Recv()
		if err != nil {
			if errors.Is(err, io.EOF) {
				out <- &llm.CompletionChunk{Done: true}
				return
			}
			out <- &llm.CompletionChunk{Error: err, Done: true}
			return
		}

		if resp.Usage != nil {
			out <- &llm.CompletionChunk{
				Usage: &llm.Usage{
					InputTokens:      int64(resp.Usage.PromptTokens),
					OutputTokens:     int64(resp.Usage.CompletionTokens),
					TotalTokens:      int64(resp.Usage.TotalTokens),
					InputCacheTokens: cachedTokens(resp.Usage),
				},
			}
		}
		if len(resp.Choices) > 0 && resp.Choices[0].Delta.Content != "" {
			out <- &llm.CompletionChunk{Text: resp.Choices[0].Delta.Content}
		}
	}
}

func cachedTokens(u *openai.Usage) int64 {
	if u.PromptTokensDetails != nil {
		return int64(u.PromptTokensDetails.CachedTokens)
	}
	return 0
}
