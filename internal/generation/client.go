package generation

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/harrison/codeloop/internal/config"
)

// Generator turns a conversation into text using a named profile.
type Generator interface {
	Generate(ctx context.Context, messages []Message, profile string) (string, error)
}

// ChatRequest is a single non-streaming chat call as a backend sees it.
type ChatRequest struct {
	Model       string
	Messages    []Message
	Temperature *float64
	TopP        *float64
	NumCtx      int
}

// Backend is a generation service protocol.
type Backend interface {
	Name() string
	Chat(ctx context.Context, req ChatRequest) (string, error)
	ListModels(ctx context.Context) ([]string, error)
}

// Client resolves profiles and applies the per-request timeout. Its
// configuration is fixed at construction.
type Client struct {
	backend  Backend
	profiles map[string]config.Profile
	timeout  time.Duration
}

// NewClient wraps backend with the profiles and timeout from cfg.
func NewClient(backend Backend, cfg config.GenerationConfig) *Client {
	profiles := make(map[string]config.Profile, len(cfg.Profiles))
	for name, p := range cfg.Profiles {
		profiles[name] = p
	}
	return &Client{
		backend:  backend,
		profiles: profiles,
		timeout:  cfg.Timeout,
	}
}

// NewFromConfig builds the backend selected by cfg.Backend.
func NewFromConfig(cfg config.GenerationConfig) (*Client, error) {
	var backend Backend
	switch cfg.Backend {
	case config.BackendOllama:
		backend = NewOllamaBackend(cfg.BaseURL)
	case config.BackendOpenAI:
		apiKey := os.Getenv(cfg.APIKeyEnv)
		if apiKey == "" && cfg.BaseURL == "" {
			return nil, fmt.Errorf("openai backend needs %s to be set", cfg.APIKeyEnv)
		}
		backend = NewOpenAIBackend(apiKey, cfg.BaseURL)
	default:
		return nil, fmt.Errorf("unknown generation backend %q", cfg.Backend)
	}
	return NewClient(backend, cfg), nil
}

// Backend returns the underlying backend.
func (c *Client) Backend() Backend {
	return c.backend
}

// Profiles returns the configured profile names, sorted.
func (c *Client) Profiles() []string {
	names := make([]string, 0, len(c.profiles))
	for name := range c.profiles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Generate sends messages with the sampling parameters of profile and
// returns the reply with code fences stripped.
func (c *Client) Generate(ctx context.Context, messages []Message, profile string) (string, error) {
	p, ok := c.profiles[profile]
	if !ok {
		return "", unavailable(c.backend.Name(), "profile", 0, fmt.Errorf("unknown profile %q", profile))
	}

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	reply, err := c.backend.Chat(ctx, ChatRequest{
		Model:       p.Model,
		Messages:    messages,
		Temperature: p.Temperature,
		TopP:        p.TopP,
		NumCtx:      p.NumCtx,
	})
	if err != nil {
		if !errors.Is(err, ErrUnavailable) {
			err = unavailable(c.backend.Name(), "chat", 0, err)
		}
		return "", err
	}

	return StripCodeFences(reply), nil
}

// ListModels asks the backend which models it can serve. It is the
// explicit initialisation step for anything that wants to pick a model.
func (c *Client) ListModels(ctx context.Context) ([]string, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	models, err := c.backend.ListModels(ctx)
	if err != nil {
		if !errors.Is(err, ErrUnavailable) {
			err = unavailable(c.backend.Name(), "list models", 0, err)
		}
		return nil, err
	}
	sort.Strings(models)
	return models, nil
}
