package llm

import (
	"context"
	"fmt"

	"github.com/lokutor-ai/lokutor-client/pkg/dialogue"
	"github.com/lokutor-ai/lokutor-client/pkg/providers/internal/httpjson"
)

// GroqLLM speaks the OpenAI-compatible chat completions endpoint Groq
// exposes for its hosted Llama/Mixtral models.
type GroqLLM struct {
	apiKey string
	url    string
	model  string
	client *httpjson.Client
}

func NewGroqLLM(apiKey string, model string) *GroqLLM {
	if model == "" {
		model = "llama3-70b-8192"
	}
	return &GroqLLM{
		apiKey: apiKey,
		url:    "https://api.groq.com/openai/v1/chat/completions",
		model:  model,
		client: httpjson.New("groq"),
	}
}

func (l *GroqLLM) Complete(ctx context.Context, messages []dialogue.Message) (string, error) {
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
		client = httpjson.New("groq")
	}

	headers := map[string]string{"Authorization": "Bearer " + l.apiKey}
	if err := client.PostJSON(ctx, l.url, headers, payload, &result); err != nil {
		return "", err
	}
	if len(result.Choices) == 0 {
		return "", fmt.Errorf("no choices returned from groq")
	}
	return result.Choices[0].Message.Content, nil
}

func (l *GroqLLM) Name() string {
	return "groq-llm"
}
