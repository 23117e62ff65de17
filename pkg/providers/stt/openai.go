package stt

import (
	"context"

	"github.com/lokutor-ai/lokutor-client/pkg/audio"
	"github.com/lokutor-ai/lokutor-client/pkg/dialogue"
	"github.com/lokutor-ai/lokutor-client/pkg/providers/internal/httpjson"
)

// OpenAISTT speaks the Whisper transcriptions endpoint, which takes
// the audio as a multipart file upload rather than a JSON body.
type OpenAISTT struct {
	apiKey     string
	url        string
	model      string
	sampleRate int
	client     *httpjson.Client
}

func NewOpenAISTT(apiKey string, model string) *OpenAISTT {
	if model == "" {
		model = "whisper-1"
	}
	return &OpenAISTT{
		apiKey:     apiKey,
		url:        "https://api.openai.com/v1/audio/transcriptions",
		model:      model,
		sampleRate: 44100,
		client:     httpjson.New("openai"),
	}
}

func (s *OpenAISTT) SetSampleRate(rate int) {
	s.sampleRate = rate
}

func (s *OpenAISTT) Name() string {
	return "openai_stt"
}

func (s *OpenAISTT) Transcribe(ctx context.Context, audioPCM []byte, lang dialogue.Language) (string, error) {
	wavData := audio.NewWavBuffer(audioPCM, s.sampleRate)

	fields := map[string]string{"model": s.model}
	if lang != "" {
		fields["language"] = string(lang)
	}

	client := s.client
	if client == nil {
		client = httpjson.New("openai")
	}

	var result struct {
		Text string `json:"text"`
	}
	headers := map[string]string{"Authorization": "Bearer " + s.apiKey}
	if err := client.PostMultipart(ctx, s.url, headers, fields, "file", "audio.wav", wavData, &result); err != nil {
		return "", err
	}
	return result.Text, nil
}
