package cmd

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/require"
)

// fakeOllama answers /api/chat with a fixed reply per model and /api/tags
// with the configured model list.
type fakeOllama struct {
	mu      sync.Mutex
	replies map[string]string
	calls   map[string]int
	tags    []string
}

func newFakeOllama(t *testing.T, replies map[string]string) (*fakeOllama, *httptest.Server) {
	t.Helper()
	f := &fakeOllama{replies: replies, calls: make(map[string]int)}
	srv := httptest.NewServer(http.HandlerFunc(f.serve))
	t.Cleanup(srv.Close)
	return f, srv
}

func (f *fakeOllama) serve(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Path {
	case "/api/tags":
		models := make([]map[string]string, 0, len(f.tags))
		for _, name := range f.tags {
			models = append(models, map[string]string{"name": name})
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"models": models})
	case "/api/chat":
		var req struct {
			Model string `json:"model"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, `{"error":"bad request"}`, http.StatusBadRequest)
			return
		}
		f.mu.Lock()
		f.calls[req.Model]++
		reply, ok := f.replies[req.Model]
		f.mu.Unlock()
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": "model '" + req.Model + "' not found"})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"message": map[string]string{"role": "assistant", "content": reply},
			"done":    true,
		})
	default:
		http.NotFound(w, r)
	}
}

func (f *fakeOllama) callCount(model string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[model]
}

// testEnv is a config file plus the directories it points at.
type testEnv struct {
	dir        string
	configPath string
	outputDir  string
	sandboxDir string
	logDir     string
	dbPath     string
}

// newTestEnv writes a config using baseURL and one model per profile
// (coder-m, tester-m, debugger-m, analyzer-m, planner-m). The "shell"
// runner executes the generated test file with sh.
func newTestEnv(t *testing.T, baseURL string) *testEnv {
	t.Helper()
	dir := t.TempDir()
	env := &testEnv{
		dir:        dir,
		configPath: filepath.Join(dir, "config.yaml"),
		outputDir:  filepath.Join(dir, "out"),
		sandboxDir: filepath.Join(dir, "sandbox"),
		logDir:     filepath.Join(dir, "logs"),
		dbPath:     filepath.Join(dir, "history.db"),
	}

	cfg := `log_level: info
log_dir: ` + env.logDir + `
output_dir: ` + env.outputDir + `
generation:
  backend: ollama
  base_url: ` + baseURL + `
  timeout: 10s
  profiles:
    coder:
      model: coder-m
    tester:
      model: tester-m
    debugger:
      model: debugger-m
    analyzer:
      model: analyzer-m
    planner:
      model: planner-m
sandbox:
  root: ` + env.sandboxDir + `
  test_timeout: 10s
runners:
  shell:
    command: ["sh", "{test_file}"]
    test_file: "test_{artifact}"
history:
  db_path: ` + env.dbPath + `
`
	require.NoError(t, os.WriteFile(env.configPath, []byte(cfg), 0644))
	return env
}

// executeCommand runs the root command with args and returns its output.
// Stdin is never a terminal.
func executeCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := NewRootCommand()
	buf := new(bytes.Buffer)
	root.SetOut(buf)
	root.SetErr(buf)
	root.SetIn(strings.NewReader(""))
	root.SetArgs(args)
	err := root.Execute()
	return buf.String(), err
}

// disableColor turns off ANSI colors for the duration of a test.
func disableColor(t *testing.T) {
	t.Helper()
	prev := color.NoColor
	color.NoColor = true
	t.Cleanup(func() { color.NoColor = prev })
}
