package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"

	"github.com/plugincraft/forge/internal/config"
)

type bedrockProvider struct {
	client *bedrockruntime.Client
}

func newBedrockProvider(cfg config.LLMConfig) (*bedrockProvider, error) {
	region := cfg.AWSRegion
	if region == "" {
		region = "us-east-1"
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(), awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return &bedrockProvider{client: bedrockruntime.NewFromConfig(awsCfg)}, nil
}

// bedrockRequest is the Anthropic-on-Bedrock message-API request body.
type bedrockRequest struct {
	AnthropicVersion string           `json:"anthropic_version"`
	MaxTokens        int              `json:"max_tokens"`
	Temperature      float32          `json:"temperature"`
	Messages         []bedrockMessage `json:"messages"`
}

type bedrockMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type bedrockResponse struct {
	Content []struct {
		Text string `json:"text"`
	} `json:"content"`
}

func (p *bedrockProvider) Complete(ctx context.Context, model string, temperature float32, maxTokens int, prompt string) (string, error) {
	body, err := json.Marshal(bedrockRequest{
		AnthropicVersion: "bedrock-2023-05-31",
		MaxTokens:        maxTokens,
		Temperature:      temperature,
		Messages:         []bedrockMessage{{Role: "user", Content: prompt}},
	})
	if err != nil {
		return "", fmt.Errorf("marshal bedrock request: %w", err)
	}

	contentType := "application/json"
	out, err := p.client.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     &model,
		ContentType: &contentType,
		Body:        body,
	})
	if err != nil {
		return "", translateBedrockError(err)
	}

	var parsed bedrockResponse
	if err := json.Unmarshal(out.Body, &parsed); err != nil {
		return "", fmt.Errorf("unmarshal bedrock response: %w", err)
	}
	if len(parsed.Content) == 0 {
		return "", nil
	}
	return parsed.Content[0].Text, nil
}

func translateBedrockError(err error) error {
	var throttled *types.ThrottlingException
	if errors.As(err, &throttled) {
		return fmt.Errorf("%w: %s", ErrRateLimited, throttled.Error())
	}
	var serviceQuota *types.ServiceQuotaExceededException
	if errors.As(err, &serviceQuota) {
		return fmt.Errorf("%w: %s", ErrRateLimited, serviceQuota.Error())
	}
	return err
}
