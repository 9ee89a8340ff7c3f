package ai

import (
	"context"
	"errors"
	"fmt"

	"github.com/cloudwego/eino-ext/components/model/ark"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

// ArkProvider runs chat completions through an eino ChatModel backed by
// Volcengine Ark.
type ArkProvider struct {
	chatModel model.ChatModel
}

func NewArkProvider(ctx context.Context, apiKey, baseURL, modelName string) (*ArkProvider, error) {
	if apiKey == "" || modelName == "" {
		return nil, errors.New("ark: api key and model are required")
	}
	cm, err := ark.NewChatModel(ctx, &ark.ChatModelConfig{
		APIKey:  apiKey,
		BaseURL: baseURL,
		Model:   modelName,
	})
	if err != nil {
		return nil, fmt.Errorf("ark: create chat model: %w", err)
	}
	return &ArkProvider{chatModel: cm}, nil
}

// NewChatModelProvider wraps an existing eino ChatModel.
func NewChatModelProvider(cm model.ChatModel) *ArkProvider {
	return &ArkProvider{chatModel: cm}
}

func (p *ArkProvider) Chat(ctx context.Context, messages []Message) (string, error) {
	if p.chatModel == nil {
		return "", errors.New("ark: chat model is nil")
	}
	resp, err := p.chatModel.Generate(ctx, toSchemaMessages(messages))
	if err != nil {
		return "", fmt.Errorf("ark: generate: %w", err)
	}
	if resp == nil {
		return "", errors.New("ark: empty response")
	}
	return resp.Content, nil
}

func toSchemaMessages(messages []Message) []*schema.Message {
	out := make([]*schema.Message, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case RoleSystem:
			out = append(out, schema.SystemMessage(m.Content))
		case RoleAssistant:
			out = append(out, schema.AssistantMessage(m.Content, nil))
		default:
			out = append(out, schema.UserMessage(m.Content))
		}
	}
	return out
}
