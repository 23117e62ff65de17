package stt

import (
	"context"

	"github.com/lokutor-ai/lokutor-client/pkg/audio"
	"github.com/lokutor-ai/lokutor-client/pkg/dialogue"
	"github.com/lokutor-ai/lokutor-client/pkg/providers/internal/httpjson"
)

// GroqSTT speaks Groq's OpenAI-compatible Whisper transcription
// endpoint.
type GroqSTT struct {
	apiKey     string
	url        string
	model      string
	sampleRate int
	client     *httpjson.Client
}

func NewGroqSTT(apiKey string, model string) *GroqSTT {
	if model == "" {
		model = "whisper-large-v3-turbo"
	}
	return &GroqSTT{
		apiKey:     apiKey,
		url:        "https://api.groq.com/openai/v1/audio/transcriptions",
		model:      model,
		sampleRate: 44100,
		client:     httpjson.New("groq"),
	}
}

func (s *GroqSTT) SetSampleRate(rate int) {
	s.sampleRate = rate
}

func (s *GroqSTT) Transcribe(ctx context.Context, audioPCM []byte, lang dialogue.Language) (string, error) {
	wavData := audio.NewWavBuffer(audioPCM, s.sampleRate)

	fields := map[string]string{"model": s.model}
	if lang != "" {
		fields["language"] = string(lang)
	}

	client := s.client
	if client == nil {
		client = httpjson.New("groq")
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

func (s *GroqSTT) Name() string {
	return "groq-stt"
}
