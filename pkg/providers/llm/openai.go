package llm

import (
	"context"
	"fmt"

	"github.com/lokutor-ai/lokutor-client/pkg/dialogue"
	"github.com/lokutor-ai/lokutor-client/pkg/providers/internal/httpjson"
)

// OpenAILLM speaks the OpenAI chat completions endpoint.
type OpenAILLM struct {
	apiKey string
	url    string
	model  string
	client *httpjson.Client
}

func NewOpenAILLM(apiKey string, model string) *OpenAILLM {
	if model == "" {
		model = "gpt-4o"
	}
	return &OpenAILLM{
		apiKey: apiKey,
		url:    "https://api.openai.com/v1/chat/completions",
		model:  model,
		client: httpjson.New("openai"),
	}
}

func (l *OpenAILLM) Complete(ctx context.Context, messages []dialogue.Message) (string, error) {
	payload := map[string]interface{}{
		"model":    l.model,
		"messages": messages,
	}

	var result struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}

	client := l.client
	if client == nil {
		client = httpjson.New("openai")
	}

	headers := map[string]string{"Authorization": "Bearer " + l.apiKey}
	if err := client.PostJSON(ctx, l.url, headers, payload, &result); err != nil {
		return "", err
	}
	if len(result.Choices) == 0 {
		return "", fmt.Errorf("no choices returned from openai")
	}
	return result.Choices[0].Message.Content, nil
}

func (l *OpenAILLM) Name() string {
	return "openai-llm"
}
