package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

//go:embed default.yaml
var DefaultConfigYAML []byte

// EnvPrefix namespaces the environment overrides (APICHANGES_DATA_DIR, ...).
const EnvPrefix = "APICHANGES"

type Config struct {
	Tracker        Tracker        `yaml:"tracker"`
	Relevance      Relevance      `yaml:"relevance"`
	Integrations   Integrations   `yaml:"integrations"`
	Classification Classification `yaml:"classification"`
	Output         Output         `yaml:"output"`
	Server         Server         `yaml:"server"`
	Logging        Logging        `yaml:"logging"`
	Schedule       Schedule       `yaml:"schedule"`
}

type Tracker struct {
	Repo              string  `yaml:"repo"`
	TokenEnv          string  `yaml:"token_env"`
	BaseURL           string  `yaml:"base_url"`
	BatchSize         int     `yaml:"batch_size"`
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	TimeoutSeconds    int     `yaml:"timeout_seconds"`
}

type Relevance struct {
	Keywords  []string `yaml:"keywords"`
	Threshold float64  `yaml:"threshold"`
}

type Integrations struct {
	BaseURL           string  `yaml:"base_url"`
	SiteURL           string  `yaml:"site_url"`
	IndexFile         string  `yaml:"index_file"`
	UserAgent         string  `yaml:"user_agent"`
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	TimeoutSeconds    int     `yaml:"timeout_seconds"`
}

type Classification struct {
	Provider        string `yaml:"provider"`
	Model           string `yaml:"model"`
	OllamaURL       string `yaml:"ollama_url"`
	OpenAIModel     string `yaml:"openai_model"`
	APIKeyEnv       string `yaml:"api_key_env"`
	AnthropicModel  string `yaml:"anthropic_model"`
	AnthropicKeyEnv string `yaml:"anthropic_key_env"`
	MaxTokens       int    `yaml:"max_tokens"`
	CheckpointEvery int    `yaml:"checkpoint_every"`
	TimeoutSeconds  int    `yaml:"timeout_seconds"`
}

type Output struct {
	DataDir string `yaml:"data_dir"`
}

type Server struct {
	Port int `yaml:"port"`
}

type Logging struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type Schedule struct {
	Ingest string `yaml:"ingest"`
}

// DefaultKeywords is the API-change trigger vocabulary used when
// relevance.keywords is empty.
var DefaultKeywords = []string{
	"api", "breaking", "call", "change", "compatibility", "deprecated",
	"deprecation", "documentation", "endpoint", "feature", "function",
	"improvement", "integration", "interface", "method", "migration",
	"modification", "parameter", "refactor", "request", "response",
	"schema", "update", "version",
}

// ConfigDir returns the XDG config directory for apichanges.
func ConfigDir() string {
	return filepath.Join(homeDir(), ".config", "apichanges")
}

// DataDir returns the XDG data directory for apichanges.
func DataDir() string {
	return filepath.Join(homeDir(), ".local", "share", "apichanges")
}

// ResolveConfigPath finds the config file following priority:
// explicit path > ~/.config/apichanges/config.yaml > ./config.yaml
func ResolveConfigPath(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	xdgConfig := filepath.Join(ConfigDir(), "config.yaml")
	if _, err := os.Stat(xdgConfig); err == nil {
		return xdgConfig, nil
	}

	cwdConfig := "config.yaml"
	if _, err := os.Stat(cwdConfig); err == nil {
		return cwdConfig, nil
	}

	return "", fmt.Errorf(
		"no config file found; searched:\n  %s\n  ./config.yaml\n\nRun 'apichanges init' to create a default config",
		xdgConfig,
	)
}

// LoadDotEnv loads KEY=value pairs from the given .env files into the
// process environment. Missing files are ignored and variables that are
// already set win.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if _, err := os.Stat(p); errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			return fmt.Errorf("loading %s: %w", p, err)
		}
	}
	return nil
}

// Load reads and parses a config YAML file, then applies environment overrides.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	cfg, err := parse(data)
	if err != nil {
		return nil, err
	}
	cfg.applyEnv()
	return cfg, nil
}

// Default returns the built-in configuration without environment overrides.
func Default() *Config {
	cfg, err := parse(DefaultConfigYAML)
	if err != nil {
		panic(fmt.Sprintf("embedded default config: %v", err))
	}
	return cfg
}

// parse parses YAML bytes into a Config, applying defaults.
func parse(data []byte) (*Config, error) {
	cfg := &Config{
		Tracker: Tracker{
			Repo:              "home-assistant/core",
			TokenEnv:          "GITHUB_TOKEN",
			BatchSize:         100,
			RequestsPerSecond: 1,
			TimeoutSeconds:    30,
		},
		Relevance: Relevance{Threshold: 60},
		Integrations: Integrations{
			BaseURL:           "https://www.home-assistant.io/integrations/",
			SiteURL:           "https://www.home-assistant.io/",
			UserAgent:         "apichanges/1.0",
			RequestsPerSecond: 2,
			TimeoutSeconds:    30,
		},
		Classification: Classification{
			Provider:        "openai",
			Model:           "qwen2.5:7b",
			OllamaURL:       "http://localhost:11434",
			OpenAIModel:     "gpt-4o-2024-08-06",
			APIKeyEnv:       "OPENAI_API_KEY",
			AnthropicModel:  "claude-sonnet-4-5",
			AnthropicKeyEnv: "ANTHROPIC_API_KEY",
			MaxTokens:       1024,
			CheckpointEvery: 10,
			TimeoutSeconds:  120,
		},
		Server:  Server{Port: 8000},
		Logging: Logging{Level: "INFO", Format: "console"},
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	if len(cfg.Relevance.Keywords) == 0 {
		cfg.Relevance.Keywords = append([]string(nil), DefaultKeywords...)
	}
	if cfg.Relevance.Threshold < 0 || cfg.Relevance.Threshold > 100 {
		return nil, fmt.Errorf("relevance.threshold must be within 0-100, got %v", cfg.Relevance.Threshold)
	}
	if cfg.Tracker.BatchSize <= 0 {
		return nil, fmt.Errorf("tracker.batch_size must be positive, got %d", cfg.Tracker.BatchSize)
	}

	return cfg, nil
}

// applyEnv overrides selected settings from APICHANGES_* environment variables.
func (c *Config) applyEnv() {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()

	if s := v.GetString("data_dir"); s != "" {
		c.Output.DataDir = s
	}
	if s := v.GetString("log_level"); s != "" {
		c.Logging.Level = s
	}
	if s := v.GetString("provider"); s != "" {
		c.Classification.Provider = strings.ToLower(s)
	}
}

// GetDataDir returns the effective data directory from config or XDG default.
func (c *Config) GetDataDir() string {
	if c.Output.DataDir != "" {
		return c.Output.DataDir
	}
	return DataDir()
}

// Paths lays out the pipeline's files under the data directory.
type Paths struct {
	Root               string
	Batches            string
	Prefiltered        string
	IntegrationIndex   string
	Integrations       string
	JoinedIssues       string
	JoinedIntegrations string
	Classified         string
	Ledger             string
}

// Paths returns the file layout rooted at GetDataDir.
func (c *Config) Paths() Paths {
	root := c.GetDataDir()
	index := c.Integrations.IndexFile
	if index == "" {
		index = filepath.Join(root, "integration_index.json")
	}
	return Paths{
		Root:               root,
		Batches:            filepath.Join(root, "batches"),
		Prefiltered:        filepath.Join(root, "prefiltered.json"),
		IntegrationIndex:   index,
		Integrations:       filepath.Join(root, "integrations.json"),
		JoinedIssues:       filepath.Join(root, "joined_issues.json"),
		JoinedIntegrations: filepath.Join(root, "joined_integrations.json"),
		Classified:         filepath.Join(root, "classified.json"),
		Ledger:             filepath.Join(root, "ledger.db"),
	}
}

func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return home
}
