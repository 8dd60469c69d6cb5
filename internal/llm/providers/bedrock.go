package providers

import (
	"context"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"

	"github.com/haasonsaas/mdflow-engine/internal/llm"
)

// BedrockProvider implements llm.Provider for AWS Bedrock's Converse API,
// used for the Ark model family (§4.5 routes Ark-prefixed aliases here).
type BedrockProvider struct {
	BaseProvider
	client       *bedrockruntime.Client
	defaultModel string
}

// BedrockConfig holds the parameters needed to construct a BedrockProvider.
type BedrockConfig struct {
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string
	DefaultModel    string
}

// NewBedrockProvider loads AWS credentials (explicit or default chain) and
// constructs a Converse-API client.
func NewBedrockProvider(ctx context.Context, cfg BedrockConfig) (*BedrockProvider, error) {
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}

	var awsCfg aws.Config
	var err error
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		awsCfg, err = config.LoadDefaultConfig(ctx,
			config.WithRegion(region),
			config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
				cfg.AccessKeyID, cfg.SecretAccessKey, cfg.SessionToken,
			)),
		)
	} else {
		awsCfg, err = config.LoadDefaultConfig(ctx, config.WithRegion(region))
	}
	if err != nil {
		return nil, err
	}

	model := cfg.DefaultModel
	if model == "" {
		model = "anthropic.claude-3-sonnet-20240229-v1:0"
	}
	return &BedrockProvider{
		BaseProvider: NewBaseProvider("bedrock", 3, time.Second),
		client:       bedrockruntime.NewFromConfig(awsCfg),
		defaultModel: model,
	}, nil
}

func (p *BedrockProvider) model(req *llm.CompletionRequest) string {
	if req.Model != "" {
		return req.Model
	}
	return p.defaultModel
}

func (p *BedrockProvider) messages(req *llm.CompletionRequest) []types.Message {
	out := make([]types.Message, 0, len(req.Messages))
	for _, m := range req.Messages {
		role := types.ConversationRoleUser
		if m.Role == "assistant" {
			role = types.ConversationRoleAssistant
		}
		out = append(out, types.Message{
			Role:    role,
			Content: []types.ContentBlock{&types.ContentBlockMemberText{Value: m.Content}},
		})
	}
	return out
}

func (p *BedrockProvider) request(req *llm.CompletionRequest) *bedrockruntime.ConverseStreamInput {
	in := &bedrockruntime.ConverseStreamInput{
		ModelId:  aws.String(p.model(req)),
		Messages: p.messages(req),
	}
	if req.System != "" {
		in.System = []types.SystemContentBlock{&types.SystemContentBlockMemberText{Value: req.System}}
	}
	if req.MaxTokens > 0 {
		in.InferenceConfig = &types.InferenceConfiguration{MaxTokens: aws.Int32(int32(req.MaxTokens))}
	}
	if req.Params.Temperature != nil {
		t := float32(*req.Params.Temperature)
		if in.InferenceConfig == nil {
			in.InferenceConfig = &types.InferenceConfiguration{}
		}
		in.InferenceConfig.Temperature = aws.Float32(t)
	}
	return in
}

// Complete drains a Converse stream into a single result; Bedrock has no
// distinct non-streaming Converse call for our needs.
func (p *BedrockProvider) Complete(ctx context.Context, req *llm.CompletionRequest) (*llm.CompletionResult, error) {
	chunks, err := p.Stream(ctx, req)
	if err != nil {
		return nil, err
	}
	text := ""
	var usage llm.Usage
	for chunk := range chunks {
		if chunk.Error != nil {
			return nil, chunk.Error
		}
		text += chunk.Text
		if chunk.Usage != nil {
			usage = *chunk.Usage
		}
	}
	return &llm.CompletionResult{Text: text, Usage: usage}, nil
}

// Stream issues a Converse streaming request.
func (p *BedrockProvider) Stream(ctx context.Context, req *llm.CompletionRequest) (<-chan *llm.CompletionChunk, error) {
	converseReq := p.request(req)

	var stream *bedrockruntime.ConverseStreamOutput
	err := p.Retry(ctx, IsRetryableHTTPError, func() error {
		var callErr error
		stream, callErr = p.client.ConverseStream(ctx, converseReq)
		return callErr
	})
	if err != nil {
		return nil, err
	}

	out := make(chan *llm.CompletionChunk)
	go p.pump(ctx, stream, out)
	return out, nil
}

func (p *BedrockProvider) pump(ctx context.Context, stream *bedrockruntime.ConverseStreamOutput, out chan<- *llm.CompletionChunk) {
	defer close(out)

	eventStream := stream.GetStream()
	defer eventStream.Close()

	var inputTokens, outputTokens int64
	eventChan := eventStream.Events()
	for {
		select {
		case <-ctx.Done():
			out <- &llm.CompletionChunk{Error: ctx.Err(), Done: true}
			return
		case event, ok := <-eventChan:
			if !ok {
				if err := eventStream.Err(); err != nil {
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
				return
			}

			switch ev := event.(type) {
			case *types.ConverseStreamOutputMemberContentBlockDelta:
				if delta, ok := ev.Value.Delta.(*types.ContentBlockDeltaMemberText); ok && delta.Value != "" {
					out <- &llm.CompletionChunk{Text: delta.Value}
				}
			case *types.ConverseStreamOutputMemberMetadata:
				if ev.Value.Usage != nil {
					inputTokens = int64(aws.ToInt32(ev.Value.Usage.InputTokens))
					outputTokens = int64(aws.ToInt32(ev.Value.Usage.OutputTokens))
				}
			case *types.ConverseStreamOutputMemberMessageStop:
				out <- &llm.CompletionChunk{
					Done: true,
					Usage: &llm.Usage{
						InputTokens:  inputTokens,
						OutputTokens: outputTokens,
						TotalTokens:  inputTokens + outputTokens,
					},
				}
				return
			}
		}
	}
}
