// Package httpjson is the shared request/response plumbing for the
// vendor STT and LLM clients under pkg/providers: build a request with
// a handful of headers, check for a non-200 status, decode a JSON
// body. Every OpenAI-compatible REST API in pkg/providers/llm and
// pkg/providers/stt differs from the others only in URL, auth header
// and payload/response shape, not in this part.
package httpjson

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
)

// Client issues requests against one vendor's API and labels its
// errors with Service.
type Client struct {
	HTTP    *http.Client
	Service string
}

// New returns a Client using http.DefaultClient. service names the
// vendor in error messages, e.g. "openai".
func New(service string) *Client {
	return &Client{HTTP: http.DefaultClient, Service: service}
}

// Do sends a request with the given headers and body, and decodes a
// JSON response into out. A nil out skips decoding once the status
// check passes.
func (c *Client) Do(ctx context.Context, method, url string, headers map[string]string, body io.Reader, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return err
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("%s error (status %d): %s", c.Service, resp.StatusCode, string(respBody))
	}

	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// PostJSON marshals payload as the request body and decodes the
// response into out.
func (c *Client) PostJSON(ctx context.Context, url string, headers map[string]string, payload, out interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	h := cloneHeaders(headers)
	h["Content-Type"] = "application/json"
	return c.Do(ctx, http.MethodPost, url, h, bytes.NewReader(body), out)
}

// PostMultipart posts fields plus a single named file as
// multipart/form-data and decodes the response into out. Used by the
// STT providers that accept Whisper-style audio uploads.
func (c *Client) PostMultipart(ctx context.Context, url string, headers, fields map[string]string, fileField, fileName string, fileData []byte, out interface{}) error {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	for k, v := range fields {
		if err := writer.WriteField(k, v); err != nil {
			return err
		}
	}
	part, err := writer.CreateFormFile(fileField, fileName)
	if err != nil {
		return err
	}
	if _, err := part.Write(fileData); err != nil {
		return err
	}
	if err := writer.Close(); err != nil {
		return err
	}

	h := cloneHeaders(headers)
	h["Content-Type"] = writer.FormDataContentType()
	return c.Do(ctx, http.MethodPost, url, h, body, out)
}

func cloneHeaders(headers map[string]string) map[string]string {
	h := make(map[string]string, len(headers)+1)
	for k, v := range headers {
		h[k] = v
	}
	return h
}
