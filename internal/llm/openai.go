package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/sashabaranov/go-openai"
)

// OpenAIProvider talks to the OpenAI chat completions API, or to an Azure
// OpenAI deployment when built with NewAzureProvider.
type OpenAIProvider struct {
	name     string
	client   *openai.Client
	defaults Params
}

func NewOpenAIProvider(cfg ProviderConfig) *OpenAIProvider {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.Endpoint != "" {
		clientCfg.BaseURL = cfg.Endpoint
	}
	defaults := cfg.defaults()
	if defaults.Model == "" {
		defaults.Model = openai.GPT3Dot5Turbo
	}
	return &OpenAIProvider{
		name:     ProviderOpenAI,
		client:   openai.NewClientWithConfig(clientCfg),
		defaults: defaults,
	}
}

// NewAzureProvider uses the deployment name as the model; Azure routes by deployment.
func NewAzureProvider(cfg ProviderConfig) *OpenAIProvider {
	clientCfg := openai.DefaultAzureConfig(cfg.APIKey, cfg.Endpoint)
	if cfg.APIVersion != "" {
		clientCfg.APIVersion = cfg.APIVersion
	}
	clientCfg.AzureModelMapperFunc = func(model string) string {
		return model
	}
	defaults := cfg.defaults()
	if cfg.Deployment != "" {
		defaults.Model = cfg.Deployment
	}
	return &OpenAIProvider{
		name:     ProviderAzure,
		client:   openai.NewClientWithConfig(clientCfg),
		defaults: defaults,
	}
}

func (p *OpenAIProvider) Name() string     { return p.name }
func (p *OpenAIProvider) Defaults() Params { return p.defaults }

func (p *OpenAIProvider) Generate(ctx context.Context, req Request) (string, error) {
	messages := make([]openai.ChatCompletionMessage, 0, 2)
	if req.System != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: req.System,
		})
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: req.Prompt,
	})

	chatReq := openai.ChatCompletionRequest{
		Model:     req.Params.Model,
		Messages:  messages,
		MaxTokens: req.Params.MaxTokens,
	}
	if req.Params.Temperature != nil {
		chatReq.Temperature = float32(*req.Params.Temperature)
	}
	if req.JSONMode {
		chatReq.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}

	resp, err := p.client.CreateChatCompletion(ctx, chatReq)
	if err != nil {
		return "", fmt.Errorf("%s chat completion: %w", p.name, err)
	}
	if len(resp.Choices) == 0 {
		return "", ErrEmptyResponse
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}
