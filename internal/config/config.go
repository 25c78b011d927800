// Package config loads dashspec settings from ~/.dashspec/config.yaml and
// DASHSPEC_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Global configuration structure.
type Global struct {
	APIKey          string  `mapstructure:"api_key" yaml:"api_key"`
	DefaultModel    string  `mapstructure:"default_model" yaml:"default_model"`
	DefaultProvider string  `mapstructure:"default_provider" yaml:"default_provider"`
	MaxTokens       int     `mapstructure:"max_tokens" yaml:"max_tokens"`
	Temperature     float64 `mapstructure:"temperature" yaml:"temperature"`

	// HTTP/Retry configuration
	HTTPTimeoutSec   int `mapstructure:"http_timeout_sec" yaml:"http_timeout_sec"`
	RetryMaxAttempts int `mapstructure:"retry_max_attempts" yaml:"retry_max_attempts"`
	RetryBaseDelayMs int `mapstructure:"retry_base_delay_ms" yaml:"retry_base_delay_ms"`
	RetryMaxDelayMs  int `mapstructure:"retry_max_delay_ms" yaml:"retry_max_delay_ms"`

	// Local runtimes (Ollama)
	OllamaHost       string `mapstructure:"ollama_host" yaml:"ollama_host"`
	OllamaTimeoutSec int    `mapstructure:"ollama_timeout_sec" yaml:"ollama_timeout_sec"`

	// Compiler and profiling
	RulesFile  string `mapstructure:"rules_file" yaml:"rules_file"`
	StorePath  string `mapstructure:"store_path" yaml:"store_path"`
	SampleRows int    `mapstructure:"sample_rows" yaml:"sample_rows"`
	MaxRows    int    `mapstructure:"max_rows" yaml:"max_rows"`

	LogLevel   string `mapstructure:"log_level" yaml:"log_level"`
	LogFormat  string `mapstructure:"log_format" yaml:"log_format"`
	ListenAddr string `mapstructure:"listen_addr" yaml:"listen_addr"`
}

// Keys lists every recognised configuration key in file order.
var Keys = []string{
	"api_key", "default_model", "default_provider", "max_tokens", "temperature",
	"http_timeout_sec", "retry_max_attempts", "retry_base_delay_ms", "retry_max_delay_ms",
	"ollama_host", "ollama_timeout_sec",
	"rules_file", "store_path", "sample_rows", "max_rows",
	"log_level", "log_format", "listen_addr",
}

// Dir returns ~/.dashspec.
func Dir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home dir: %w", err)
	}
	return filepath.Join(home, ".dashspec"), nil
}

// Save writes the given configuration to the cfgFile path. If cfgFile is empty,
// it writes to ~/.dashspec/config.yaml, creating the directory if necessary.
func Save(c *Global, cfgFile string) error {
	path := cfgFile
	if path == "" {
		dir, err := Dir()
		if err != nil {
			return err
		}
		path = filepath.Join(dir, "config.yaml")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("mkdir config dir: %w", err)
	}
	b, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal yaml: %w", err)
	}
	if err := os.WriteFile(path, b, 0o600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// Load loads configuration from file, env, and defaults.
// Precedence: env > config file (cfgFile or ~/.dashspec/config.yaml) > defaults.
func Load(cfgFile string) (*Global, error) {
	v := viper.New()
	v.SetEnvPrefix("DASHSPEC")
	v.AutomaticEnv()
	for _, k := range Keys {
		// AutomaticEnv alone does not feed Unmarshal for keys without a value.
		_ = v.BindEnv(k)
	}

	v.SetDefault("default_model", "openai/gpt-4o-mini")
	v.SetDefault("default_provider", "openrouter")
	v.SetDefault("max_tokens", 1500)
	v.SetDefault("temperature", 0.2)
	v.SetDefault("http_timeout_sec", 60)
	v.SetDefault("retry_max_attempts", 3)
	v.SetDefault("retry_base_delay_ms", 500)
	v.SetDefault("retry_max_delay_ms", 4000)
	v.SetDefault("ollama_host", "http://127.0.0.1:11434")
	v.SetDefault("ollama_timeout_sec", 60)
	v.SetDefault("sample_rows", 500)
	v.SetDefault("max_rows", 100000)
	v.SetDefault("log_level", "warn")
	v.SetDefault("log_format", "console")
	v.SetDefault("listen_addr", "127.0.0.1:8080")

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		dir, err := Dir()
		if err != nil {
			return nil, err
		}
		v.AddConfigPath(dir)
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var c Global
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if c.StorePath == "" {
		dir, err := Dir()
		if err != nil {
			return nil, err
		}
		c.StorePath = filepath.Join(dir, "dashboards.db")
	}
	return &c, nil
}

// Set assigns a single key from its string form.
func (c *Global) Set(key, value string) error {
	atoi := func() (int, error) {
		n, err := strconv.Atoi(value)
		if err != nil {
			return 0, fmt.Errorf("%s must be an integer: %w", key, err)
		}
		return n, nil
	}
	var err error
	switch strings.ToLower(key) {
	case "api_key":
		c.APIKey = value
	case "default_model":
		c.DefaultModel = value
	case "default_provider":
		c.DefaultProvider = value
	case "max_tokens":
		c.MaxTokens, err = atoi()
	case "temperature":
		c.Temperature, err = strconv.ParseFloat(value, 64)
	case "http_timeout_sec":
		c.HTTPTimeoutSec, err = atoi()
	case "retry_max_attempts":
		c.RetryMaxAttempts, err = atoi()
	case "retry_base_delay_ms":
		c.RetryBaseDelayMs, err = atoi()
	case "retry_max_delay_ms":
		c.RetryMaxDelayMs, err = atoi()
	case "ollama_host":
		c.OllamaHost = value
	case "ollama_timeout_sec":
		c.OllamaTimeoutSec, err = atoi()
	case "rules_file":
		c.RulesFile = value
	case "store_path":
		c.StorePath = value
	case "sample_rows":
		c.SampleRows, err = atoi()
	case "max_rows":
		c.MaxRows, err = atoi()
	case "log_level":
		c.LogLevel = value
	case "log_format":
		c.LogFormat = value
	case "listen_addr":
		c.ListenAddr = value
	default:
		return fmt.Errorf("unknown config key %q", key)
	}
	return err
}

// Redacted returns a copy safe to print.
func (c Global) Redacted() Global {
	if n := len(c.APIKey); n > 8 {
		c.APIKey = c.APIKey[:4] + strings.Repeat("*", n-8) + c.APIKey[n-4:]
	} else if n > 0 {
		c.APIKey = "****"
	}
	return c
}
