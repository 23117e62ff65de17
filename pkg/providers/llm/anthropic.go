package llm

import (
	"context"
	"fmt"

	"github.com/lokutor-ai/lokutor-client/pkg/dialogue"
	"github.com/lokutor-ai/lokutor-client/pkg/providers/internal/httpjson"
)

// AnthropicLLM speaks the Claude messages endpoint, which splits the
// system prompt out of the message list and requires an explicit
// max_tokens rather than defaulting one.
type AnthropicLLM struct {
	apiKey string
	url    string
	model  string
	client *httpjson.Client
}

func NewAnthropicLLM(apiKey string, model string) *AnthropicLLM {
	if model == "" {
		model = "claude-3-5-sonnet-20240620"
	}
	return &AnthropicLLM{
		apiKey: apiKey,
		url:    "https://api.anthropic.com/v1/messages",
		model:  model,
		client: httpjson.New("anthropic"),
	}
}

func (l *AnthropicLLM) Complete(ctx context.Context, messages []dialogue.Message) (string, error) {
	var system string
	var anthropicMessages []map[string]string

	for _, msg := range messages {
		if msg.Role == "system" {
			system = msg.Content
			continue
		}
		anthropicMessages = append(anthropicMessages, map[string]string{
			"role":    msg.Role,
			"content": msg.Content,
		})
	}

	payload := map[string]interface{}{
		"model":      l.model,
		"messages":   anthropicMessages,
		"max_tokens": 1024,
	}
	if system != "" {
		payload["system"] = system
	}

	var result struct {
		Content []struct {
			Text string `json:"text"`
		} `json:"content"`
	}

	client := l.client
	if client == nil {
		client = httpjson.New("anthropic")
	}

	headers := map[string]string{
		"x-api-key":         l.apiKey,
		"anthropic-version": "2023-06-01",
	}
	if err := client.PostJSON(ctx, l.url, headers, payload, &result); err != nil {
		return "", err
	}
	if len(result.Content) == 0 {
		return "", fmt.Errorf("no content returned from anthropic")
	}
	return result.Content[0].Text, nil
}

func (l *AnthropicLLM) Name() string {
	return "anthropic-llm"
}
