package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestSetDefaults(t *testing.T) {
	c := &Config{}
	c.SetDefaults()
	if c.LLM.Model != "gpt-4o-mini" {
		t.Fatalf("expected gpt-4o-mini, got %s", c.LLM.Model)
	}
	if c.LLM.Temperature != 0.3 {
		t.Fatalf("expected temperature 0.3, got %v", c.LLM.Temperature)
	}
	if c.Tracking.URI != "http://localhost:5000" {
		t.Fatalf("unexpected tracking uri %s", c.Tracking.URI)
	}
	if c.Tracking.Experiment != "translation_genai" {
		t.Fatalf("unexpected experiment %s", c.Tracking.Experiment)
	}
	if c.Server.Port != 7860 || c.Server.Host != "0.0.0.0" {
		t.Fatalf("unexpected listen address %s", c.Address())
	}
	if c.Artifacts.Dir != "/tmp/mlflow_artifacts" {
		t.Fatalf("unexpected artifact dir %s", c.Artifacts.Dir)
	}
}

func TestLoadFromYAML(t *testing.T) {
	tmp := t.TempDir()
	cfgPath := filepath.Join(tmp, "config.yaml")
	content := "llm:\n  model: gpt-4.1\n  timeout: 30s\ntracking:\n  backend: sqlite\nserver:\n  port: 8080\n"
	if err := os.WriteFile(cfgPath, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(cfgPath)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.LLM.Model != "gpt-4.1" {
		t.Fatalf("unexpected model %s", cfg.LLM.Model)
	}
	if cfg.LLM.Timeout != 30*time.Second {
		t.Fatalf("unexpected timeout %s", cfg.LLM.Timeout)
	}
	if cfg.Tracking.Backend != BackendSQLite {
		t.Fatalf("unexpected backend %s", cfg.Tracking.Backend)
	}
	if cfg.Server.Port != 8080 {
		t.Fatalf("unexpected port %d", cfg.Server.Port)
	}
	if cfg.Tracking.Experiment != "translation_genai" {
		t.Fatalf("defaults should survive a partial file, got %q", cfg.Tracking.Experiment)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("API_KEY", "sk-test")
	t.Setenv("MLFLOW_TRACKING_URI", "http://mlflow:5000")
	t.Setenv("SERVER_PORT", "9000")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.LLM.APIKey != "sk-test" {
		t.Fatalf("api key not read from env")
	}
	if cfg.Tracking.URI != "http://mlflow:5000" {
		t.Fatalf("unexpected tracking uri %s", cfg.Tracking.URI)
	}
	if cfg.Server.Port != 9000 {
		t.Fatalf("unexpected port %d", cfg.Server.Port)
	}
	if cfg.Artifacts.Dir != "/tmp/mlflow_artifacts" {
		t.Fatalf("unset env must keep defaults, got %s", cfg.Artifacts.Dir)
	}
}

func TestValidate(t *testing.T) {
	c := &Config{}
	c.SetDefaults()
	err := c.Validate()
	if err == nil {
		t.Fatalf("expected missing api key error")
	}
	if !strings.Contains(err.Error(), "API_KEY") {
		t.Fatalf("error should name API_KEY: %v", err)
	}

	c.LLM.APIKey = "sk-test"
	if err := c.Validate(); err != nil {
		t.Fatalf("validate failed: %v", err)
	}

	c.Tracking.Backend = "redis"
	if err := c.Validate(); err == nil {
		t.Fatalf("expected backend validation error")
	}
}
