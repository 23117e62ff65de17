package llm

import (
	"context"
	"fmt"

	"github.com/lokutor-ai/lokutor-client/pkg/dialogue"
	"github.com/lokutor-ai/lokutor-client/pkg/providers/internal/httpjson"
)

// GoogleLLM speaks the Gemini generateContent endpoint, which carries
// its API key as a query parameter rather than a header and has no
// first-class system role, so roles need remapping before the request
// goes out.
type GoogleLLM struct {
	apiKey string
	url    string
	model  string
	client *httpjson.Client
}

func NewGoogleLLM(apiKey string, model string) *GoogleLLM {
	if model == "" {
		model = "gemini-1.5-flash"
	}
	return &GoogleLLM{
		apiKey: apiKey,
		url:    "https://generativelanguage.googleapis.com/v1beta/models/" + model + ":generateContent",
		model:  model,
		client: httpjson.New("google"),
	}
}

type googlePart struct {
	Text string `json:"text"`
}

type googleMessage struct {
	Role  string       `json:"role"`
	Parts []googlePart `json:"parts"`
}

func toGoogleRole(role string) string {
	switch role {
	case "system":
		// Gemini doesn't consistently honor a system role across models.
		return "user"
	case "assistant":
		return "model"
	default:
		return role
	}
}

func (l *GoogleLLM) Complete(ctx context.Context, messages []dialogue.Message) (string, error) {
	googleMessages := make([]googleMessage, 0, len(messages))
	for _, m := range messages {
		googleMessages = append(googleMessages, googleMessage{
			Role:  toGoogleRole(m.Role),
			Parts: []googlePart{{Text: m.Content}},
		})
	}

	payload := map[string]interface{}{
		"contents": googleMessages,
	}

	var result struct {
		Candidates []struct {
			Content struct {
				Parts []googlePart `json:"parts"`
			} `json:"content"`
		} `json:"candidates"`
	}

	client := l.client
	if client == nil {
		client = httpjson.New("google")
	}

	if err := client.PostJSON(ctx, l.url+"?key="+l.apiKey, nil, payload, &result); err != nil {
		return "", err
	}
	if len(result.Candidates) == 0 || len(result.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("no response from google llm")
	}
	return result.Candidates[0].Content.Parts[0].Text, nil
}

func (l *GoogleLLM) Name() string {
	return "google-llm"
}
