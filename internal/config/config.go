package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

const defaultConfigRelPath = ".translator/config.yaml"

const (
	BackendMLflow = "mlflow"
	BackendSQLite = "sqlite"
)

type LLMConfig struct {
	APIKey      string        `yaml:"api_key" envconfig:"API_KEY"`
	BaseURL     string        `yaml:"base_url" envconfig:"LLM_BASE_URL"`
	Model       string        `yaml:"model" envconfig:"LLM_MODEL"`
	Temperature float64       `yaml:"temperature" envconfig:"LLM_TEMPERATURE"`
	Timeout     time.Duration `yaml:"timeout" envconfig:"LLM_TIMEOUT"` // 0 = wait indefinitely
}

type TrackingConfig struct {
	Backend    string `yaml:"backend" envconfig:"TRACKING_BACKEND"`
	URI        string `yaml:"uri" envconfig:"MLFLOW_TRACKING_URI"`
	Experiment string `yaml:"experiment" envconfig:"MLFLOW_EXPERIMENT_NAME"`
	DBPath     string `yaml:"db_path" envconfig:"TRACKING_DB_PATH"`
}

type ArtifactsConfig struct {
	Dir string `yaml:"dir" envconfig:"ARTIFACT_DIR"`
}

type ServerConfig struct {
	Host string `yaml:"host" envconfig:"SERVER_HOST"`
	Port int    `yaml:"port" envconfig:"SERVER_PORT"`
}

type SecurityConfig struct {
	RateLimit float64 `yaml:"rate_limit" envconfig:"RATE_LIMIT"` // requests/sec per client, 0 = disabled
	Burst     int     `yaml:"burst" envconfig:"RATE_LIMIT_BURST"`
}

type LogConfig struct {
	Level  string `yaml:"level" envconfig:"LOG_LEVEL"`
	Format string `yaml:"format" envconfig:"LOG_FORMAT"`
}

type Config struct {
	LLM       LLMConfig       `yaml:"llm"`
	Tracking  TrackingConfig  `yaml:"tracking"`
	Artifacts ArtifactsConfig `yaml:"artifacts"`
	Server    ServerConfig    `yaml:"server"`
	Security  SecurityConfig  `yaml:"security"`
	Log       LogConfig       `yaml:"log"`
}

// Load loads YAML config, then applies env overrides.
func Load(configPath string) (*Config, error) {
	cfg := &Config{}
	cfg.SetDefaults()

	if configPath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("resolve home dir: %w", err)
		}
		configPath = filepath.Join(home, defaultConfigRelPath)
	}

	if data, err := os.ReadFile(configPath); err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := envconfig.Process("", cfg); err != nil {
		return nil, fmt.Errorf("process env config: %w", err)
	}
	return cfg, nil
}

func (c *Config) SetDefaults() {
	if c.LLM.BaseURL == "" {
		c.LLM.BaseURL = "https://api.openai.com/v1"
	}
	if c.LLM.Model == "" {
		c.LLM.Model = "gpt-4o-mini"
	}
	if c.LLM.Temperature == 0 {
		c.LLM.Temperature = 0.3
	}
	if c.Tracking.Backend == "" {
		c.Tracking.Backend = BackendMLflow
	}
	if c.Tracking.URI == "" {
		c.Tracking.URI = "http://localhost:5000"
	}
	if c.Tracking.Experiment == "" {
		c.Tracking.Experiment = "translation_genai"
	}
	if c.Tracking.DBPath == "" {
		c.Tracking.DBPath = "./translator.db"
	}
	if c.Artifacts.Dir == "" {
		c.Artifacts.Dir = "/tmp/mlflow_artifacts"
	}
	if c.Server.Host == "" {
		c.Server.Host = "0.0.0.0"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 7860
	}
	if c.Security.Burst == 0 {
		c.Security.Burst = 10
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
}

// Validate checks everything needed to translate. A missing API key is fatal.
func (c *Config) Validate() error {
	var errs []string
	if strings.TrimSpace(c.LLM.APIKey) == "" {
		errs = append(errs, "API_KEY is not set (llm.api_key)")
	}
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, "server.port must be between 1 and 65535")
	}
	switch c.Tracking.Backend {
	case BackendMLflow, BackendSQLite:
	default:
		errs = append(errs, fmt.Sprintf("invalid tracking.backend: %s (must be mlflow or sqlite)", c.Tracking.Backend))
	}
	if strings.TrimSpace(c.Artifacts.Dir) == "" {
		errs = append(errs, "artifacts.dir cannot be empty")
	}
	if c.Security.RateLimit < 0 {
		errs = append(errs, "security.rate_limit cannot be negative")
	}
	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// Address returns the listen address.
func (c *Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}
