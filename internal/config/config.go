package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Profile names used by the generation loop.
const (
	ProfileCoder    = "coder"
	ProfileTester   = "tester"
	ProfileDebugger = "debugger"
	ProfileAnalyzer = "analyzer"
	ProfilePlanner  = "planner"
)

// RequiredProfiles lists the profiles every configuration must define.
var RequiredProfiles = []string{ProfileCoder, ProfileTester, ProfileDebugger, ProfileAnalyzer, ProfilePlanner}

// Generation backends
const (
	BackendOllama = "ollama"
	BackendOpenAI = "openai"
)

// Profile is a named set of sampling parameters for one kind of request.
// Nil pointers leave the backend default in place.
type Profile struct {
	// Model is the model name as the backend knows it
	Model string `yaml:"model"`

	// Temperature controls sampling randomness (0.0 - 2.0)
	Temperature *float64 `yaml:"temperature"`

	// TopP is the nucleus sampling cutoff (0.0 - 1.0)
	TopP *float64 `yaml:"top_p"`

	// NumCtx is the context window size in tokens (Ollama only, 0 = backend default)
	NumCtx int `yaml:"num_ctx"`
}

// GenerationConfig configures the text generation service.
type GenerationConfig struct {
	// Backend selects the service protocol: ollama or openai
	Backend string `yaml:"backend"`

	// BaseURL is the service endpoint
	BaseURL string `yaml:"base_url"`

	// APIKeyEnv names the environment variable holding the API key (openai only)
	APIKeyEnv string `yaml:"api_key_env"`

	// Timeout bounds a single generation request (0 = no timeout)
	Timeout time.Duration `yaml:"timeout"`

	// Profiles maps profile names to sampling parameters
	Profiles map[string]Profile `yaml:"profiles"`
}

// LoopConfig bounds the repair loop.
type LoopConfig struct {
	// CodeRepairLimit is the maximum number of code repairs per run
	CodeRepairLimit int `yaml:"code_repair_limit"`

	// TestRegenLimit is the maximum number of test regenerations per run
	TestRegenLimit int `yaml:"test_regen_limit"`
}

// SandboxConfig controls where and how generated code is executed.
type SandboxConfig struct {
	// Root is the parent directory for sandbox workspaces
	Root string `yaml:"root"`

	// UniquePerRun gives every run its own workspace under Root
	UniquePerRun bool `yaml:"unique_per_run"`

	// TestTimeout bounds a single test execution
	TestTimeout time.Duration `yaml:"test_timeout"`
}

// RunnerConfig describes how to test code written in one language.
//
// Command and TestFile may contain the placeholders {test_file}, {artifact},
// {stem} and {ext}.
type RunnerConfig struct {
	// Command is the argv used to run the tests
	Command []string `yaml:"command"`

	// TestFile is the name of the generated test file
	TestFile string `yaml:"test_file"`
}

// HistoryConfig controls the run history database.
type HistoryConfig struct {
	// Enabled records every run outcome
	Enabled bool `yaml:"enabled"`

	// DBPath is the path to the SQLite database
	DBPath string `yaml:"db_path"`

	// KeepDays prunes records older than this many days (0 = keep forever)
	KeepDays int `yaml:"keep_days"`
}

// Config represents codeloop configuration options
type Config struct {
	// LogLevel sets the logging verbosity (trace, debug, info, warn, error)
	LogLevel string `yaml:"log_level"`

	// LogDir is the directory where logs will be written
	LogDir string `yaml:"log_dir"`

	// OutputDir receives the final code and tests of every run
	OutputDir string `yaml:"output_dir"`

	Generation GenerationConfig        `yaml:"generation"`
	Loop       LoopConfig              `yaml:"loop"`
	Sandbox    SandboxConfig           `yaml:"sandbox"`
	Runners    map[string]RunnerConfig `yaml:"runners"`
	History    HistoryConfig           `yaml:"history"`
}

func float(v float64) *float64 { return &v }

// DefaultProfiles returns the built-in sampling profiles.
func DefaultProfiles() map[string]Profile {
	const model = "qwen3-coder:latest"
	return map[string]Profile{
		ProfileCoder:    {Model: model, Temperature: float(0.6), TopP: float(0.95), NumCtx: 16000},
		ProfileTester:   {Model: model, Temperature: float(0.1), TopP: float(0.8), NumCtx: 16000},
		ProfileDebugger: {Model: model, Temperature: float(0.1), TopP: float(0.95), NumCtx: 16000},
		ProfileAnalyzer: {Model: model, Temperature: float(0.0), NumCtx: 16000},
		ProfilePlanner:  {Model: model, Temperature: float(0.2), TopP: float(0.8), NumCtx: 16000},
	}
}

// DefaultRunners returns the built-in test runners keyed by language.
func DefaultRunners() map[string]RunnerConfig {
	return map[string]RunnerConfig{
		"python": {
			Command:  []string{"python", "-m", "pytest", "-q", "--tb=no", "{test_file}"},
			TestFile: "test_{artifact}",
		},
		"go": {
			Command:  []string{"go", "test", "./..."},
			TestFile: "{stem}_test.go",
		},
	}
}

// DefaultConfig returns a Config with sensible default values
func DefaultConfig() *Config {
	home := defaultHome()
	return &Config{
		LogLevel:  "info",
		LogDir:    filepath.Join(home, "logs"),
		OutputDir: "generated_code",
		Generation: GenerationConfig{
			Backend:   BackendOllama,
			BaseURL:   "http://localhost:11434",
			APIKeyEnv: "OPENAI_API_KEY",
			Timeout:   5 * time.Minute,
			Profiles:  DefaultProfiles(),
		},
		Loop: LoopConfig{
			CodeRepairLimit: 3,
			TestRegenLimit:  2,
		},
		Sandbox: SandboxConfig{
			Root:         filepath.Join(home, "sandbox"),
			UniquePerRun: true,
			TestTimeout:  60 * time.Second,
		},
		Runners: DefaultRunners(),
		History: HistoryConfig{
			Enabled: true,
			DBPath:  filepath.Join(home, "history.db"),
		},
	}
}

// LoadConfig loads configuration from the specified file path
// If the file doesn't exist, returns default configuration without error
// If the file exists but is malformed, returns an error
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Durations arrive as strings; booleans as pointers so an explicit
	// false can be told apart from an absent key.
	type yamlConfig struct {
		LogLevel   string `yaml:"log_level"`
		LogDir     string `yaml:"log_dir"`
		OutputDir  string `yaml:"output_dir"`
		Generation struct {
			Backend   string             `yaml:"backend"`
			BaseURL   string             `yaml:"base_url"`
			APIKeyEnv string             `yaml:"api_key_env"`
			Timeout   string             `yaml:"timeout"`
			Profiles  map[string]Profile `yaml:"profiles"`
		} `yaml:"generation"`
		Loop struct {
			CodeRepairLimit *int `yaml:"code_repair_limit"`
			TestRegenLimit  *int `yaml:"test_regen_limit"`
		} `yaml:"loop"`
		Sandbox struct {
			Root         string `yaml:"root"`
			UniquePerRun *bool  `yaml:"unique_per_run"`
			TestTimeout  string `yaml:"test_timeout"`
		} `yaml:"sandbox"`
		Runners map[string]RunnerConfig `yaml:"runners"`
		History struct {
			Enabled  *bool  `yaml:"enabled"`
			DBPath   string `yaml:"db_path"`
			KeepDays *int   `yaml:"keep_days"`
		} `yaml:"history"`
	}

	var yamlCfg yamlConfig
	if err := yaml.Unmarshal(data, &yamlCfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if yamlCfg.LogLevel != "" {
		cfg.LogLevel = yamlCfg.LogLevel
	}
	if yamlCfg.LogDir != "" {
		cfg.LogDir = yamlCfg.LogDir
	}
	if yamlCfg.OutputDir != "" {
		cfg.OutputDir = yamlCfg.OutputDir
	}

	gen := yamlCfg.Generation
	if gen.Backend != "" {
		cfg.Generation.Backend = strings.ToLower(gen.Backend)
	}
	if gen.BaseURL != "" {
		cfg.Generation.BaseURL = gen.BaseURL
	}
	if gen.APIKeyEnv != "" {
		cfg.Generation.APIKeyEnv = gen.APIKeyEnv
	}
	if gen.Timeout != "" {
		timeout, err := time.ParseDuration(gen.Timeout)
		if err != nil {
			return nil, fmt.Errorf("invalid generation.timeout format %q: %w", gen.Timeout, err)
		}
		cfg.Generation.Timeout = timeout
	}
	for name, p := range gen.Profiles {
		cfg.Generation.Profiles[name] = mergeProfile(cfg.Generation.Profiles[name], p)
	}

	if yamlCfg.Loop.CodeRepairLimit != nil {
		cfg.Loop.CodeRepairLimit = *yamlCfg.Loop.CodeRepairLimit
	}
	if yamlCfg.Loop.TestRegenLimit != nil {
		cfg.Loop.TestRegenLimit = *yamlCfg.Loop.TestRegenLimit
	}

	if yamlCfg.Sandbox.Root != "" {
		cfg.Sandbox.Root = yamlCfg.Sandbox.Root
	}
	if yamlCfg.Sandbox.UniquePerRun != nil {
		cfg.Sandbox.UniquePerRun = *yamlCfg.Sandbox.UniquePerRun
	}
	if yamlCfg.Sandbox.TestTimeout != "" {
		timeout, err := time.ParseDuration(yamlCfg.Sandbox.TestTimeout)
		if err != nil {
			return nil, fmt.Errorf("invalid sandbox.test_timeout format %q: %w", yamlCfg.Sandbox.TestTimeout, err)
		}
		cfg.Sandbox.TestTimeout = timeout
	}

	// A runner from the file replaces the built-in one for that language.
	for lang, r := range yamlCfg.Runners {
		cfg.Runners[strings.ToLower(lang)] = r
	}

	if yamlCfg.History.Enabled != nil {
		cfg.History.Enabled = *yamlCfg.History.Enabled
	}
	if yamlCfg.History.DBPath != "" {
		cfg.History.DBPath = yamlCfg.History.DBPath
	}
	if yamlCfg.History.KeepDays != nil {
		cfg.History.KeepDays = *yamlCfg.History.KeepDays
	}

	return cfg, nil
}

// mergeProfile overlays the fields set in override onto base.
func mergeProfile(base, override Profile) Profile {
	if override.Model != "" {
		base.Model = override.Model
	}
	if override.Temperature != nil {
		base.Temperature = override.Temperature
	}
	if override.TopP != nil {
		base.TopP = override.TopP
	}
	if override.NumCtx != 0 {
		base.NumCtx = override.NumCtx
	}
	return base
}

// LoadConfigFromDir loads configuration from .codeloop/config.yaml in the specified directory
// If the directory or file doesn't exist, returns default configuration without error
func LoadConfigFromDir(dir string) (*Config, error) {
	configPath := filepath.Join(dir, HomeDirName, "config.yaml")
	return LoadConfig(configPath)
}

// FlagOverrides carries CLI flag values. Nil fields were not set on the
// command line and leave the configuration untouched.
type FlagOverrides struct {
	LogLevel        *string
	LogDir          *string
	OutputDir       *string
	Model           *string
	CodeRepairLimit *int
	TestRegenLimit  *int
	TestTimeout     *time.Duration
	HistoryEnabled  *bool
}

// MergeWithFlags merges CLI flags into the configuration
// Non-nil flag values override configuration values
func (c *Config) MergeWithFlags(f FlagOverrides) {
	if f.LogLevel != nil {
		c.LogLevel = *f.LogLevel
	}
	if f.LogDir != nil {
		c.LogDir = *f.LogDir
	}
	if f.OutputDir != nil {
		c.OutputDir = *f.OutputDir
	}
	if f.Model != nil {
		// --model applies to every profile
		for name, p := range c.Generation.Profiles {
			p.Model = *f.Model
			c.Generation.Profiles[name] = p
		}
	}
	if f.CodeRepairLimit != nil {
		c.Loop.CodeRepairLimit = *f.CodeRepairLimit
	}
	if f.TestRegenLimit != nil {
		c.Loop.TestRegenLimit = *f.TestRegenLimit
	}
	if f.TestTimeout != nil {
		c.Sandbox.TestTimeout = *f.TestTimeout
	}
	if f.HistoryEnabled != nil {
		c.History.Enabled = *f.HistoryEnabled
	}
}

// Validate validates the configuration values
// Returns an error if any values are invalid
func (c *Config) Validate() error {
	validLevels := map[string]bool{
		"trace": true,
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLevels[c.LogLevel] {
		return fmt.Errorf("invalid log_level %q, must be one of: trace, debug, info, warn, error", c.LogLevel)
	}

	switch c.Generation.Backend {
	case BackendOllama, BackendOpenAI:
	default:
		return fmt.Errorf("invalid generation.backend %q, must be one of: ollama, openai", c.Generation.Backend)
	}
	if c.Generation.Backend == BackendOllama && c.Generation.BaseURL == "" {
		return fmt.Errorf("generation.base_url cannot be empty for the ollama backend")
	}
	if c.Generation.Timeout < 0 {
		return fmt.Errorf("generation.timeout must be >= 0, got %v", c.Generation.Timeout)
	}
	for _, name := range RequiredProfiles {
		if _, ok := c.Generation.Profiles[name]; !ok {
			return fmt.Errorf("generation.profiles.%s is required", name)
		}
	}
	for _, name := range sortedKeys(c.Generation.Profiles) {
		p := c.Generation.Profiles[name]
		if p.Model == "" {
			return fmt.Errorf("generation.profiles.%s.model cannot be empty", name)
		}
		if p.Temperature != nil && (*p.Temperature < 0 || *p.Temperature > 2) {
			return fmt.Errorf("generation.profiles.%s.temperature must be between 0 and 2, got %v", name, *p.Temperature)
		}
		if p.TopP != nil && (*p.TopP < 0 || *p.TopP > 1) {
			return fmt.Errorf("generation.profiles.%s.top_p must be between 0 and 1, got %v", name, *p.TopP)
		}
		if p.NumCtx < 0 {
			return fmt.Errorf("generation.profiles.%s.num_ctx must be >= 0, got %d", name, p.NumCtx)
		}
	}

	if c.Loop.CodeRepairLimit < 0 {
		return fmt.Errorf("loop.code_repair_limit must be >= 0, got %d", c.Loop.CodeRepairLimit)
	}
	if c.Loop.TestRegenLimit < 0 {
		return fmt.Errorf("loop.test_regen_limit must be >= 0, got %d", c.Loop.TestRegenLimit)
	}

	if c.Sandbox.Root == "" {
		return fmt.Errorf("sandbox.root cannot be empty")
	}
	if c.Sandbox.TestTimeout <= 0 {
		return fmt.Errorf("sandbox.test_timeout must be > 0, got %v", c.Sandbox.TestTimeout)
	}

	for _, lang := range sortedKeys(c.Runners) {
		r := c.Runners[lang]
		if len(r.Command) == 0 {
			return fmt.Errorf("runners.%s.command cannot be empty", lang)
		}
		if r.TestFile == "" {
			return fmt.Errorf("runners.%s.test_file cannot be empty", lang)
		}
	}

	if c.History.Enabled && c.History.DBPath == "" {
		return fmt.Errorf("history.db_path cannot be empty when history is enabled")
	}
	if c.History.KeepDays < 0 {
		return fmt.Errorf("history.keep_days must be >= 0, got %d", c.History.KeepDays)
	}

	return nil
}

// Runner returns the test runner for a language (case-insensitive).
func (c *Config) Runner(language string) (RunnerConfig, error) {
	r, ok := c.Runners[strings.ToLower(strings.TrimSpace(language))]
	if !ok {
		return RunnerConfig{}, fmt.Errorf("no test runner configured for language %q (configured: %s)",
			language, strings.Join(sortedKeys(c.Runners), ", "))
	}
	return r, nil
}

// Profile returns a copy of the named profile.
func (c *Config) Profile(name string) (Profile, bool) {
	p, ok := c.Generation.Profiles[name]
	return p, ok
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
