// Package config provides configuration loading for the goya CLI.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for a pipeline run. Command line flags
// override the file values.
type Config struct {
	Debug    bool           `yaml:"debug"`
	Database string         `yaml:"database"`
	Groups   []string       `yaml:"groups"`
	Backends BackendsConfig `yaml:"backends"`
}

// BackendsConfig selects and addresses the model backends.
type BackendsConfig struct {
	LlamaServer      string `yaml:"llama_server"`
	LlamaSeed        int    `yaml:"llama_seed"`
	OllamaServer     string `yaml:"ollama_server"`
	OllamaModel      string `yaml:"ollama_model"`
	OllamaEmbedModel string `yaml:"ollama_embed_model"`
	OpenAI           bool   `yaml:"openai"`
	OpenAIRateLimit  int    `yaml:"openai_rate_limit"` // requests per minute
}

// Default returns the configuration used when no config file is given.
func Default() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}

// ApplyDefaults fills in zero values with defaults.
func ApplyDefaults(cfg *Config) {
	if cfg.Database == "" {
		cfg.Database = "./goya.db"
	}
	if len(cfg.Groups) == 0 {
		cfg.Groups = []string{"GENRE", "TOPIC", "COLOR", "MEDIA", "STYLE"}
	}
	if cfg.Backends.LlamaSeed == 0 {
		cfg.Backends.LlamaSeed = 385480504
	}
	if cfg.Backends.OllamaModel == "" {
		cfg.Backends.OllamaModel = "llava"
	}
	if cfg.Backends.OllamaEmbedModel == "" {
		cfg.Backends.OllamaEmbedModel = "nomic-embed-text"
	}
	if cfg.Backends.OpenAIRateLimit == 0 {
		cfg.Backends.OpenAIRateLimit = 20
	}
}

// Load reads and parses the config file at path and applies defaults.
// Returns an error if the file cannot be read or parsed.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	ApplyDefaults(&cfg)

	return &cfg, nil
}
