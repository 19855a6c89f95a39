package generation

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

const backendOllama = "ollama"

// maxErrorBody caps how much of an error response is kept in the error.
const maxErrorBody = 512

// OllamaBackend speaks the Ollama HTTP API.
type OllamaBackend struct {
	baseURL    string
	httpClient *http.Client
}

// NewOllamaBackend returns a backend for the Ollama server at baseURL.
// Request deadlines come from the caller's context.
func NewOllamaBackend(baseURL string) *OllamaBackend {
	return &OllamaBackend{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{},
	}
}

// WithHTTPClient replaces the HTTP client, e.g. to add transport options.
func (o *OllamaBackend) WithHTTPClient(c *http.Client) *OllamaBackend {
	o.httpClient = c
	return o
}

// Name implements Backend.
func (o *OllamaBackend) Name() string {
	return backendOllama
}

type ollamaChatRequest struct {
	Model    string         `json:"model"`
	Messages []Message      `json:"messages"`
	Stream   bool           `json:"stream"`
	Options  map[string]any `json:"options,omitempty"`
}

type ollamaChatResponse struct {
	Message *Message `json:"message"`
	Done    bool     `json:"done"`
	Error   string   `json:"error"`
}

type ollamaTagsResponse struct {
	Models []struct {
		Name string `json:"name"`
	} `json:"models"`
}

// Chat implements Backend using POST /api/chat without streaming.
func (o *OllamaBackend) Chat(ctx context.Context, req ChatRequest) (string, error) {
	options := make(map[string]any)
	if req.Temperature != nil {
		options["temperature"] = *req.Temperature
	}
	if req.TopP != nil {
		options["top_p"] = *req.TopP
	}
	if req.NumCtx > 0 {
		options["num_ctx"] = req.NumCtx
	}

	payload := ollamaChatRequest{
		Model:    req.Model,
		Messages: req.Messages,
		Stream:   false,
		Options:  options,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", unavailable(backendOllama, "chat", 0, fmt.Errorf("marshal request: %w", err))
	}

	respBody, err := o.do(ctx, "chat", http.MethodPost, "/api/chat", body)
	if err != nil {
		return "", err
	}

	var resp ollamaChatResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return "", unavailable(backendOllama, "chat", 0, fmt.Errorf("parse response: %w", err))
	}
	if resp.Error != "" {
		return "", unavailable(backendOllama, "chat", 0, errors.New(resp.Error))
	}
	if resp.Message == nil {
		return "", unavailable(backendOllama, "chat", 0, errors.New("response has no message"))
	}
	return resp.Message.Content, nil
}

// ListModels implements Backend using GET /api/tags.
func (o *OllamaBackend) ListModels(ctx context.Context) ([]string, error) {
	respBody, err := o.do(ctx, "list models", http.MethodGet, "/api/tags", nil)
	if err != nil {
		return nil, err
	}

	var resp ollamaTagsResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, unavailable(backendOllama, "list models", 0, fmt.Errorf("parse response: %w", err))
	}

	names := make([]string, 0, len(resp.Models))
	for _, m := range resp.Models {
		names = append(names, m.Name)
	}
	return names, nil
}

// do performs a request and returns the body of a 200 response. Every
// failure is an *UnavailableError.
func (o *OllamaBackend) do(ctx context.Context, op, method, path string, body []byte) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, o.baseURL+path, reader)
	if err != nil {
		return nil, unavailable(backendOllama, op, 0, fmt.Errorf("create request: %w", err))
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := o.httpClient.Do(req)
	if err != nil {
		return nil, unavailable(backendOllama, op, 0, fmt.Errorf("send request to %s: %w", o.baseURL+path, err))
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, unavailable(backendOllama, op, resp.StatusCode, fmt.Errorf("read response: %w", err))
	}

	if resp.StatusCode != http.StatusOK {
		return nil, unavailable(backendOllama, op, resp.StatusCode, errors.New(ollamaErrorText(resp.StatusCode, respBody)))
	}
	return respBody, nil
}

// ollamaErrorText extracts Ollama's {"error": "..."} message, falling back
// to the truncated body.
func ollamaErrorText(status int, body []byte) string {
	var e struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(body, &e) == nil && e.Error != "" {
		if status == http.StatusNotFound {
			return "model not found: " + e.Error
		}
		return e.Error
	}
	text := strings.TrimSpace(string(body))
	if len(text) > maxErrorBody {
		text = text[:maxErrorBody] + "..."
	}
	if text == "" {
		text = http.StatusText(status)
	}
	return text
}
