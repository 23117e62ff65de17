package stt

import (
	"bytes"
	"context"
	"net/http"
	"net/url"

	"github.com/lokutor-ai/lokutor-client/pkg/dialogue"
	"github.com/lokutor-ai/lokutor-client/pkg/providers/internal/httpjson"
)

// DeepgramSTT posts raw PCM straight to Deepgram's /listen endpoint,
// unlike the Whisper-style providers which wrap it as a multipart file
// upload.
type DeepgramSTT struct {
	apiKey string
	url    string
	client *httpjson.Client
}

func NewDeepgramSTT(apiKey string) *DeepgramSTT {
	return &DeepgramSTT{
		apiKey: apiKey,
		url:    "https://api.deepgram.com/v1/listen",
		client: httpjson.New("deepgram"),
	}
}

func (s *DeepgramSTT) Name() string {
	return "deepgram-stt"
}

func (s *DeepgramSTT) Transcribe(ctx context.Context, audioPCM []byte, lang dialogue.Language) (string, error) {
	u, err := url.Parse(s.url)
	if err != nil {
		return "", err
	}

	params := u.Query()
	params.Set("model", "nova-2")
	params.Set("smart_format", "true")
	if lang != "" {
		params.Set("language", string(lang))
	}
	u.RawQuery = params.Encode()

	var result struct {
		Results struct {
			Channels []struct {
				Alternatives []struct {
					Transcript string `json:"transcript"`
				} `json:"alternatives"`
			} `json:"channels"`
		} `json:"results"`
	}

	headers := map[string]string{
		"Authorization": "Token " + s.apiKey,
		"Content-Type":  "audio/l16; rate=44100; channels=1",
	}
	if err := s.client.Do(ctx, http.MethodPost, u.String(), headers, bytes.NewReader(audioPCM), &result); err != nil {
		return "", err
	}

	if len(result.Results.Channels) == 0 || len(result.Results.Channels[0].Alternatives) == 0 {
		return "", nil
	}
	return result.Results.Channels[0].Alternatives[0].Transcript, nil
}
