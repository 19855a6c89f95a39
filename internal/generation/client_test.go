package generation

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/harrison/codeloop/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeBackend records requests and replays a scripted reply.
type fakeBackend struct {
	reply    string
	err      error
	models   []string
	requests []ChatRequest
	block    bool
}

func (f *fakeBackend) Name() string { return "fake" }

func (f *fakeBackend) Chat(ctx context.Context, req ChatRequest) (string, error) {
	f.requests = append(f.requests, req)
	if f.block {
		<-ctx.Done()
		return "", ctx.Err()
	}
	return f.reply, f.err
}

func (f *fakeBackend) ListModels(ctx context.Context) ([]string, error) {
	return f.models, f.err
}

func testGenerationConfig() config.GenerationConfig {
	return config.GenerationConfig{
		Backend:  config.BackendOllama,
		BaseURL:  "http://unused",
		Timeout:  time.Minute,
		Profiles: config.DefaultProfiles(),
	}
}

func TestClientGenerate_UsesProfile(t *testing.T) {
	backend := &fakeBackend{reply: "```python\nprint(1)\n```"}
	client := NewClient(backend, testGenerationConfig())

	text, err := client.Generate(t.Context(), []Message{User("hi")}, config.ProfileTester)
	require.NoError(t, err)
	assert.Equal(t, "print(1)", text, "fences are stripped")

	require.Len(t, backend.requests, 1)
	req := backend.requests[0]
	assert.Equal(t, "qwen3-coder:latest", req.Model)
	require.NotNil(t, req.Temperature)
	assert.Equal(t, 0.1, *req.Temperature)
	require.NotNil(t, req.TopP)
	assert.Equal(t, 0.8, *req.TopP)
	assert.Equal(t, 16000, req.NumCtx)
}

func TestClientGenerate_UnknownProfile(t *testing.T) {
	backend := &fakeBackend{reply: "x"}
	client := NewClient(backend, testGenerationConfig())

	_, err := client.Generate(t.Context(), nil, "poet")
	require.Error(t, err)
	assert.True(t, IsUnavailable(err))
	assert.Empty(t, backend.requests, "no request for an unknown profile")
}

func TestClientGenerate_WrapsPlainErrors(t *testing.T) {
	client := NewClient(&fakeBackend{err: errors.New("socket closed")}, testGenerationConfig())

	_, err := client.Generate(t.Context(), nil, config.ProfileCoder)
	require.Error(t, err)
	assert.True(t, IsUnavailable(err))
	assert.Contains(t, err.Error(), "socket closed")
}

func TestClientGenerate_Timeout(t *testing.T) {
	cfg := testGenerationConfig()
	cfg.Timeout = 50 * time.Millisecond
	client := NewClient(&fakeBackend{block: true}, cfg)

	start := time.Now()
	_, err := client.Generate(t.Context(), nil, config.ProfileCoder)
	require.Error(t, err)
	assert.True(t, IsUnavailable(err))
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestClientGenerate_EmptyReplyIsNotAnError(t *testing.T) {
	client := NewClient(&fakeBackend{reply: "   "}, testGenerationConfig())

	text, err := client.Generate(t.Context(), nil, config.ProfileAnalyzer)
	require.NoError(t, err)
	assert.Equal(t, "", text)
}

func TestClientConfigIsCopied(t *testing.T) {
	cfg := testGenerationConfig()
	client := NewClient(&fakeBackend{reply: "x"}, cfg)

	delete(cfg.Profiles, config.ProfileCoder)
	assert.Contains(t, client.Profiles(), config.ProfileCoder, "later config edits must not leak into the client")
}

func TestClientListModels(t *testing.T) {
	client := NewClient(&fakeBackend{models: []string{"b", "a"}}, testGenerationConfig())

	models, err := client.ListModels(t.Context())
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, models)
}

func TestNewFromConfig(t *testing.T) {
	cfg := testGenerationConfig()
	client, err := NewFromConfig(cfg)
	require.NoError(t, err)
	assert.Equal(t, "ollama", client.Backend().Name())

	cfg.Backend = config.BackendOpenAI
	cfg.BaseURL = ""
	cfg.APIKeyEnv = "CODELOOP_TEST_MISSING_KEY"
	t.Setenv("CODELOOP_TEST_MISSING_KEY", "")
	_, err = NewFromConfig(cfg)
	assert.Error(t, err, "openai without key or base url")

	t.Setenv("CODELOOP_TEST_MISSING_KEY", "k")
	client, err = NewFromConfig(cfg)
	require.NoError(t, err)
	assert.Equal(t, "openai", client.Backend().Name())

	cfg.Backend = "smoke-signals"
	_, err = NewFromConfig(cfg)
	assert.Error(t, err)
}
