package generation

import (
	"context"
	"errors"
	"math"

	"github.com/sashabaranov/go-openai"
)

const backendOpenAI = "openai"

// OpenAIBackend talks to the OpenAI API or any server that implements its
// chat completions endpoint (vLLM, llama.cpp server, LM Studio).
type OpenAIBackend struct {
	client *openai.Client
}

// NewOpenAIBackend creates a backend. An empty baseURL uses the public
// OpenAI endpoint.
func NewOpenAIBackend(apiKey, baseURL string) *OpenAIBackend {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &OpenAIBackend{client: openai.NewClientWithConfig(cfg)}
}

// Name implements Backend.
func (o *OpenAIBackend) Name() string {
	return backendOpenAI
}

// Chat implements Backend using a single non-streaming chat completion.
func (o *OpenAIBackend) Chat(ctx context.Context, req ChatRequest) (string, error) {
	messages := make([]openai.ChatCompletionMessage, 0, len(req.Messages))
	for _, m := range req.Messages {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    string(m.Role),
			Content: m.Content,
		})
	}

	creq := openai.ChatCompletionRequest{
		Model:    req.Model,
		Messages: messages,
	}
	if req.Temperature != nil {
		creq.Temperature = float32(*req.Temperature)
		if creq.Temperature == 0 {
			// A literal 0 is dropped by omitempty and the server falls
			// back to its default of 1.
			creq.Temperature = math.SmallestNonzeroFloat32
		}
	}
	if req.TopP != nil {
		creq.TopP = float32(*req.TopP)
	}

	resp, err := o.client.CreateChatCompletion(ctx, creq)
	if err != nil {
		return "", unavailable(backendOpenAI, "chat", statusOf(err), err)
	}
	if len(resp.Choices) == 0 {
		return "", unavailable(backendOpenAI, "chat", 0, errors.New("response has no choices"))
	}
	return resp.Choices[0].Message.Content, nil
}

// ListModels implements Backend.
func (o *OpenAIBackend) ListModels(ctx context.Context) ([]string, error) {
	list, err := o.client.ListModels(ctx)
	if err != nil {
		return nil, unavailable(backendOpenAI, "list models", statusOf(err), err)
	}
	names := make([]string, 0, len(list.Models))
	for _, m := range list.Models {
		names = append(names, m.ID)
	}
	return names, nil
}

// statusOf extracts the HTTP status from go-openai errors.
func statusOf(err error) int {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode
	}
	return 0
}

var (
	_ Backend = (*OpenAIBackend)(nil)
	_ Backend = (*OllamaBackend)(nil)
)

