package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

var ErrKeyWithoutBackend = errors.New("llm.api_key is set but llm.backend is empty")

// EnvPrefix prefixes every environment override, e.g. TASKFLOW_LLM_BACKEND.
const EnvPrefix = "TASKFLOW"

type Config struct {
	DBPath     string           `mapstructure:"db_path" yaml:"db_path"`
	OwnerID    int64            `mapstructure:"owner_id" yaml:"owner_id"`
	Timezone   string           `mapstructure:"timezone" yaml:"timezone"`
	Web        WebConfig        `mapstructure:"web" yaml:"web"`
	LLM        LLMConfig        `mapstructure:"llm" yaml:"llm"`
	Transcribe TranscribeConfig `mapstructure:"transcribe" yaml:"transcribe"`
	Agent      AgentConfig      `mapstructure:"agent" yaml:"agent"`
	Logging    LoggingConfig    `mapstructure:"logging" yaml:"logging"`
	Calendar   CalendarConfig   `mapstructure:"calendar" yaml:"calendar"`
}

type WebConfig struct {
	Port int `mapstructure:"port" yaml:"port"`
}

// LLMConfig selects the model backend. Backend is one of anthropic, openai,
// gemini or local; empty means detect from the vendor API key variables.
type LLMConfig struct {
	Backend        string  `mapstructure:"backend" yaml:"backend"`
	Model          string  `mapstructure:"model" yaml:"model"`
	APIKey         string  `mapstructure:"api_key" yaml:"api_key,omitempty"`
	BaseURL        string  `mapstructure:"base_url" yaml:"base_url,omitempty"`
	TimeoutSeconds int     `mapstructure:"timeout" yaml:"timeout"`
	MaxTokens      int     `mapstructure:"max_tokens" yaml:"max_tokens"`
	Temperature    float64 `mapstructure:"temperature" yaml:"temperature"`
}

func (c LLMConfig) Timeout() time.Duration {
	return seconds(c.TimeoutSeconds, 60)
}

type TranscribeConfig struct {
	APIKey         string `mapstructure:"api_key" yaml:"api_key,omitempty"`
	BaseURL        string `mapstructure:"base_url" yaml:"base_url"`
	Model          string `mapstructure:"model" yaml:"model"`
	TimeoutSeconds int    `mapstructure:"timeout" yaml:"timeout"`
}

func (c TranscribeConfig) Timeout() time.Duration {
	return seconds(c.TimeoutSeconds, 120)
}

type AgentConfig struct {
	HistoryLimit     int `mapstructure:"history_limit" yaml:"history_limit"`
	ActiveTaskLimit  int `mapstructure:"active_task_limit" yaml:"active_task_limit"`
	DefaultStartHour int `mapstructure:"default_start_hour" yaml:"default_start_hour"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

type CalendarConfig struct {
	CredentialsFile string `mapstructure:"credentials_file" yaml:"credentials_file"`
	TokenFile       string `mapstructure:"token_file" yaml:"token_file"`
	CalendarID      string `mapstructure:"calendar_id" yaml:"calendar_id"`
}

func Default() Config {
	return Config{
		OwnerID:  1,
		Timezone: "UTC",
		Web:      WebConfig{Port: 8000},
		LLM: LLMConfig{
			TimeoutSeconds: 60,
			MaxTokens:      2000,
			Temperature:    0.3,
		},
		Transcribe: TranscribeConfig{
			BaseURL:        "https://api.openai.com/v1",
			Model:          "whisper-1",
			TimeoutSeconds: 120,
		},
		Agent: AgentConfig{
			HistoryLimit:     20,
			ActiveTaskLimit:  20,
			DefaultStartHour: 9,
		},
		Logging:  LoggingConfig{Level: "info", Format: "json"},
		Calendar: CalendarConfig{CalendarID: "primary"},
	}
}

func DefaultConfigPath() (string, error) {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(configDir, "taskflow", "config.yaml"), nil
}

func EnsureDir(path string) error {
	dir := filepath.Dir(path)
	return os.MkdirAll(dir, 0o755)
}

// Load reads the YAML file at path on top of the defaults and then applies
// TASKFLOW_* environment overrides. A missing file is not an error.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v, Default())

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
				return Config{}, fmt.Errorf("read config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	cfg.applyVendorKeys()
	return cfg, nil
}

func Save(path string, cfg Config) error {
	if err := EnsureDir(path); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0o600)
}

// Validate checks the values the server cannot start without.
func (c Config) Validate() error {
	if c.OwnerID <= 0 {
		return fmt.Errorf("owner_id must be positive")
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("timezone %q: %w", c.Timezone, err)
	}
	if c.Agent.DefaultStartHour < 0 || c.Agent.DefaultStartHour > 23 {
		return fmt.Errorf("agent.default_start_hour must be within 0..23")
	}
	switch c.LLM.Backend {
	case "", "anthropic", "openai", "gemini", "local":
	default:
		return fmt.Errorf("unknown llm backend %q", c.LLM.Backend)
	}
	if c.LLM.Backend == "" && c.LLM.APIKey != "" {
		return ErrKeyWithoutBackend
	}
	return nil
}

// Every key needs a default so AutomaticEnv can override it during Unmarshal.
func setDefaults(v *viper.Viper, d Config) {
	v.SetDefault("db_path", d.DBPath)
	v.SetDefault("owner_id", d.OwnerID)
	v.SetDefault("timezone", d.Timezone)
	v.SetDefault("web.port", d.Web.Port)

	v.SetDefault("llm.backend", d.LLM.Backend)
	v.SetDefault("llm.model", d.LLM.Model)
	v.SetDefault("llm.api_key", d.LLM.APIKey)
	v.SetDefault("llm.base_url", d.LLM.BaseURL)
	v.SetDefault("llm.timeout", d.LLM.TimeoutSeconds)
	v.SetDefault("llm.max_tokens", d.LLM.MaxTokens)
	v.SetDefault("llm.temperature", d.LLM.Temperature)

	v.SetDefault("transcribe.api_key", d.Transcribe.APIKey)
	v.SetDefault("transcribe.base_url", d.Transcribe.BaseURL)
	v.SetDefault("transcribe.model", d.Transcribe.Model)
	v.SetDefault("transcribe.timeout", d.Transcribe.TimeoutSeconds)

	v.SetDefault("agent.history_limit", d.Agent.HistoryLimit)
	v.SetDefault("agent.active_task_limit", d.Agent.ActiveTaskLimit)
	v.SetDefault("agent.default_start_hour", d.Agent.DefaultStartHour)

	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.format", d.Logging.Format)

	v.SetDefault("calendar.credentials_file", d.Calendar.CredentialsFile)
	v.SetDefault("calendar.token_file", d.Calendar.TokenFile)
	v.SetDefault("calendar.calendar_id", d.Calendar.CalendarID)
}

// applyVendorKeys fills API keys from the vendor variables when the config
// leaves them empty.
func (c *Config) applyVendorKeys() {
	if c.LLM.APIKey == "" {
		switch c.LLM.Backend {
		case "anthropic":
			c.LLM.APIKey = os.Getenv("ANTHROPIC_API_KEY")
		case "openai":
			c.LLM.APIKey = os.Getenv("OPENAI_API_KEY")
		case "gemini":
			c.LLM.APIKey = os.Getenv("GEMINI_API_KEY")
		}
	}
	if c.Transcribe.APIKey == "" {
		c.Transcribe.APIKey = os.Getenv("OPENAI_API_KEY")
	}
}

func seconds(value, fallback int) time.Duration {
	if value <= 0 {
		value = fallback
	}
	return time.Duration(value) * time.Second
}
