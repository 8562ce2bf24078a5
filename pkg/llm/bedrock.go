package llm

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
)

// ConverseAPI is the subset of the Bedrock runtime client used by BedrockProvider.
type ConverseAPI interface {
	Converse(ctx context.Context, params *bedrockruntime.ConverseInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error)
}

// BedrockProvider implements Provider on top of the Bedrock Converse API.
// Tool definitions are not forwarded; the oracle drives tools through
// tagged markup in the text.
type BedrockProvider struct {
	client ConverseAPI
}

// NewBedrock creates a BedrockProvider around an injected client.
func NewBedrock(client ConverseAPI) *BedrockProvider {
	return &BedrockProvider{client: client}
}

// Chat sends the request through Converse and flattens the text blocks.
func (p *BedrockProvider) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	if p.client == nil {
		return nil, errors.New("bedrock client is nil")
	}
	if req.Model == "" {
		return nil, ErrNoModel
	}

	input := &bedrockruntime.ConverseInput{
		ModelId: aws.String(req.Model),
		InferenceConfig: &types.InferenceConfiguration{
			Temperature: aws.Float32(float32(req.Temperature)),
		},
	}
	if req.MaxTokens > 0 {
		input.InferenceConfig.MaxTokens = aws.Int32(int32(req.MaxTokens))
	}
	if len(req.StopSequences) > 0 {
		input.InferenceConfig.StopSequences = req.StopSequences
	}

	for _, msg := range req.Messages {
		switch msg.Role {
		case RoleSystem:
			input.System = append(input.System, &types.SystemContentBlockMemberText{Value: msg.Content})
		case RoleAssistant:
			input.Messages = append(input.Messages, types.Message{
				Role:    types.ConversationRoleAssistant,
				Content: []types.ContentBlock{&types.ContentBlockMemberText{Value: msg.Content}},
			})
		default:
			input.Messages = append(input.Messages, types.Message{
				Role:    types.ConversationRoleUser,
				Content: []types.ContentBlock{&types.ContentBlockMemberText{Value: msg.Content}},
			})
		}
	}

	out, err := p.client.Converse(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("bedrock converse failed: %w", err)
	}

	resp := &ChatResponse{}
	if msg, ok := out.Output.(*types.ConverseOutputMemberMessage); ok {
		for _, block := range msg.Value.Content {
			if text, ok := block.(*types.ContentBlockMemberText); ok {
				resp.Content += text.Value
			}
		}
	}
	if out.Usage != nil {
		resp.Usage = Usage{
			PromptTokens:     int(aws.ToInt32(out.Usage.InputTokens)),
			CompletionTokens: int(aws.ToInt32(out.Usage.OutputTokens)),
			TotalTokens:      int(aws.ToInt32(out.Usage.TotalTokens)),
		}
	}
	return resp, nil
}

var _ Provider = (*BedrockProvider)(nil)
