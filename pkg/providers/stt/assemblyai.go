package stt

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/lokutor-ai/lokutor-client/pkg/dialogue"
	"github.com/lokutor-ai/lokutor-client/pkg/providers/internal/httpjson"
)

// AssemblyAISTT is the only STT provider here that isn't a single
// request: audio is uploaded, a transcript job is submitted against
// the upload, and the result is polled for until it completes.
type AssemblyAISTT struct {
	apiKey string
	client *httpjson.Client
}

func NewAssemblyAISTT(apiKey string) *AssemblyAISTT {
	return &AssemblyAISTT{apiKey: apiKey, client: httpjson.New("assemblyai")}
}

func (s *AssemblyAISTT) Name() string {
	return "assemblyai-stt"
}

func (s *AssemblyAISTT) Transcribe(ctx context.Context, audioPCM []byte, lang dialogue.Language) (string, error) {
	uploadURL, err := s.upload(ctx, audioPCM)
	if err != nil {
		return "", err
	}

	transcriptID, err := s.submit(ctx, uploadURL, lang)
	if err != nil {
		return "", err
	}

	for {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(500 * time.Millisecond):
			text, status, err := s.getTranscript(ctx, transcriptID)
			if err != nil {
				return "", err
			}
			if status == "completed" {
				return text, nil
			}
			if status == "error" {
				return "", fmt.Errorf("assemblyai transcription failed")
			}
		}
	}
}

func (s *AssemblyAISTT) upload(ctx context.Context, audioPCM []byte) (string, error) {
	var result struct {
		UploadURL string `json:"upload_url"`
	}
	headers := map[string]string{"Authorization": s.apiKey}
	err := s.client.Do(ctx, http.MethodPost, "https://api.assemblyai.com/v2/upload", headers, bytes.NewReader(audioPCM), &result)
	return result.UploadURL, err
}

func (s *AssemblyAISTT) submit(ctx context.Context, uploadURL string, lang dialogue.Language) (string, error) {
	payload := map[string]interface{}{"audio_url": uploadURL}
	if lang != "" {
		payload["language_code"] = string(lang)
	}

	var result struct {
		ID string `json:"id"`
	}
	headers := map[string]string{"Authorization": s.apiKey}
	err := s.client.PostJSON(ctx, "https://api.assemblyai.com/v2/transcript", headers, payload, &result)
	return result.ID, err
}

func (s *AssemblyAISTT) getTranscript(ctx context.Context, id string) (text, status string, err error) {
	var result struct {
		Status string `json:"status"`
		Text   string `json:"text"`
	}
	headers := map[string]string{"Authorization": s.apiKey}
	err = s.client.Do(ctx, http.MethodGet, "https://api.assemblyai.com/v2/transcript/"+id, headers, nil, &result)
	return result.Text, result.Status, err
}
