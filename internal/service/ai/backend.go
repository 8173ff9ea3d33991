package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/ollama/ollama/api"
	"github.com/pkg/errors"

	"github.com/stemforge/stem-forge/backend/internal/config"
)

// maxErrorBody bounds how much of a failed response is kept for the error text.
const maxErrorBody = 4 << 10

// StatusError reports a non-2xx answer from the inference backend.
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("ollama returned status %d", e.StatusCode)
	}
	return fmt.Sprintf("ollama returned status %d: %s", e.StatusCode, e.Message)
}

// Backend talks to an Ollama server. Tag listing and pulls go through the
// official api.Client; the chat stream is read line by line here because a
// single undecodable line must not abort the whole response.
type Backend struct {
	baseURL *url.URL
	http    *http.Client
	client  *api.Client
	model   string
	options map[string]any
}

// NewBackend creates a backend client from configuration. A nil httpClient
// uses http.DefaultClient; no timeout is imposed here.
func NewBackend(cfg config.OllamaConfig, httpClient *http.Client) (*Backend, error) {
	base, err := cfg.URL()
	if err != nil {
		return nil, err
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if strings.TrimSpace(cfg.Model) == "" {
		return nil, errors.New("ollama model name is required")
	}

	return &Backend{
		baseURL: base,
		http:    httpClient,
		client:  api.NewClient(base, httpClient),
		model:   cfg.Model,
		options: cfg.Options(),
	}, nil
}

// Model returns the configured model name.
func (b *Backend) Model() string {
	return b.model
}

// ListModels returns the model names reported by the tags endpoint.
func (b *Backend) ListModels(ctx context.Context) ([]string, error) {
	resp, err := b.client.List(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "list ollama models")
	}

	names := make([]string, 0, len(resp.Models))
	for _, m := range resp.Models {
		name := m.Name
		if name == "" {
			name = m.Model
		}
		names = append(names, name)
	}
	return names, nil
}

// Pull installs model on the backend, reporting progress through fn.
func (b *Backend) Pull(ctx context.Context, model string, fn func(status string, completed, total int64)) error {
	if model == "" {
		model = b.model
	}
	err := b.client.Pull(ctx, &api.PullRequest{Model: model}, func(pr api.ProgressResponse) error {
		if fn != nil {
			fn(pr.Status, pr.Completed, pr.Total)
		}
		return nil
	})
	return errors.Wrapf(err, "pull %s", model)
}

// openChatStream posts a streaming chat request and returns the NDJSON body.
// The caller owns the returned body.
func (b *Backend) openChatStream(ctx context.Context, messages []api.Message) (io.ReadCloser, error) {
	stream := true
	payload, err := json.Marshal(&api.ChatRequest{
		Model:    b.model,
		Messages: messages,
		Stream:   &stream,
		Options:  b.options,
	})
	if err != nil {
		return nil, errors.Wrap(err, "encode chat request")
	}

	endpoint := b.baseURL.JoinPath("/api/chat")
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint.String(), bytes.NewReader(payload))
	if err != nil {
		return nil, errors.Wrap(err, "build chat request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/x-ndjson")

	resp, err := b.http.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "error connecting to ollama")
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer resp.Body.Close()
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &StatusError{StatusCode: resp.StatusCode, Message: errorMessage(body)}
	}
	return resp.Body, nil
}

// errorMessage extracts Ollama's {"error": "..."} body, falling back to the raw text.
func errorMessage(body []byte) string {
	var payload struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err == nil && payload.Error != "" {
		return payload.Error
	}
	return strings.TrimSpace(string(body))
}
