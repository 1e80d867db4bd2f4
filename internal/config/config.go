package config

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

//go:embed default.yaml
var DefaultConfigYAML []byte

// ErrMissingCredential is returned when the model provider needs an API key
// and the configured environment variable is empty.
var ErrMissingCredential = errors.New("model API credential not set")

type Config struct {
	LLM     LLM     `yaml:"llm"`
	Server  Server  `yaml:"server"`
	Session Session `yaml:"session"`
	Import  Import  `yaml:"import"`
	Logging Logging `yaml:"logging"`
}

type LLM struct {
	Provider          string        `yaml:"provider"`
	Model             string        `yaml:"model"`
	OllamaURL         string        `yaml:"ollama_url"`
	OpenAIModel       string        `yaml:"openai_model"`
	APIKeyEnv         string        `yaml:"api_key_env"`
	MaxTokens         int           `yaml:"max_tokens"`
	Timeout           time.Duration `yaml:"timeout"`
	RequestsPerMinute int           `yaml:"requests_per_minute"`
}

type Server struct {
	Port int `yaml:"port"`
}

type Session struct {
	IdleTimeout time.Duration `yaml:"idle_timeout"`
}

type Import struct {
	Feeds        []Feed        `yaml:"feeds"`
	MaxPerFeed   int           `yaml:"max_per_feed"`
	FetchTimeout time.Duration `yaml:"fetch_timeout"`
}

type Feed struct {
	URL  string `yaml:"url"`
	Name string `yaml:"name"`
}

type Logging struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// ConfigDir returns the XDG config directory for feedbacklens.
func ConfigDir() string {
	return filepath.Join(homeDir(), ".config", "feedbacklens")
}

// ResolveConfigPath finds the config file following priority:
// explicit path > ~/.config/feedbacklens/config.yaml > ./config.yaml.
// An empty path with a nil error means no file exists and the embedded
// defaults apply.
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

	return "", nil
}

// Load reads and parses a config YAML file. An empty path loads the
// embedded default config.
func Load(path string) (*Config, error) {
	data := DefaultConfigYAML
	if path != "" {
		var err error
		data, err = os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}
	cfg, err := parse(data)
	if err != nil {
		return nil, err
	}
	cfg.applyEnv()
	return cfg, nil
}

// parse parses YAML bytes into a Config, applying defaults.
func parse(data []byte) (*Config, error) {
	cfg := &Config{
		LLM: LLM{
			Provider:          "gemini",
			Model:             "gemini-1.5-pro",
			OllamaURL:         "http://localhost:11434",
			OpenAIModel:       "gpt-4o-mini",
			APIKeyEnv:         "GOOGLE_API_KEY",
			MaxTokens:         1000,
			Timeout:           120 * time.Second,
			RequestsPerMinute: 30,
		},
		Server:  Server{Port: 8501},
		Session: Session{IdleTimeout: 2 * time.Hour},
		Import: Import{
			MaxPerFeed:   20,
			FetchTimeout: 15 * time.Second,
		},
		Logging: Logging{Level: "info", Format: "console"},
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("FEEDBACKLENS_LLM_PROVIDER"); v != "" {
		c.LLM.Provider = v
	}
	if v := os.Getenv("FEEDBACKLENS_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Server.Port = port
		}
	}
}

// NeedsCredential reports whether the configured provider authenticates
// with an API key.
func (l LLM) NeedsCredential() bool {
	return strings.ToLower(l.Provider) != "ollama"
}

// APIKey reads the provider credential from the configured environment
// variable.
func (l LLM) APIKey() (string, error) {
	if !l.NeedsCredential() {
		return "", nil
	}
	key := os.Getenv(l.APIKeyEnv)
	if key == "" {
		return "", fmt.Errorf("%w: set %s", ErrMissingCredential, l.APIKeyEnv)
	}
	return key, nil
}

func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return home
}
