package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoadEnvFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.env")
	if err := os.WriteFile(path, []byte("TRANSLATOR_TEST_VAR=from-file\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("TRANSLATOR_TEST_VAR", "")
	os.Unsetenv("TRANSLATOR_TEST_VAR")

	if err := loadEnvFile(path); err != nil {
		t.Fatalf("load: %v", err)
	}
	if got := os.Getenv("TRANSLATOR_TEST_VAR"); got != "from-file" {
		t.Fatalf("TRANSLATOR_TEST_VAR = %q", got)
	}

	if err := loadEnvFile(filepath.Join(dir, "missing.env")); err == nil {
		t.Fatal("explicit missing env file should fail")
	}

	wd, _ := os.Getwd()
	t.Cleanup(func() { _ = os.Chdir(wd) })
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	if err := loadEnvFile(""); err != nil {
		t.Fatalf("implicit .env is optional: %v", err)
	}
}

func TestLanguagesCommand(t *testing.T) {
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"languages", "--env-file", writeEmptyEnv(t)})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("execute: %v", err)
	}
	for _, want := range []string{"Inglés", "English", "Chino (Simplificado)", "Chinese (Simplified)"} {
		if !strings.Contains(out.String(), want) {
			t.Fatalf("output missing %q:\n%s", want, out.String())
		}
	}
}

func TestInitCommand(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"init", "--env-file", writeEmptyEnv(t)})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("execute: %v", err)
	}
	data, err := os.ReadFile(filepath.Join(home, ".translator", "config.yaml"))
	if err != nil {
		t.Fatalf("config not written: %v", err)
	}
	if !strings.Contains(string(data), "translation_genai") {
		t.Fatalf("unexpected config:\n%s", data)
	}
}

func TestTranslateRequiresAPIKey(t *testing.T) {
	t.Setenv("API_KEY", "")
	cmd := newRootCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetArgs([]string{"translate", "hola", "--config", filepath.Join(t.TempDir(), "none.yaml"), "--env-file", writeEmptyEnv(t)})
	err := cmd.Execute()
	if err == nil || !strings.Contains(err.Error(), "API_KEY") {
		t.Fatalf("expected missing API_KEY error, got %v", err)
	}
}

func TestRunsRequiresSQLiteBackend(t *testing.T) {
	t.Setenv("TRACKING_BACKEND", "mlflow")
	cmd := newRootCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetArgs([]string{"runs", "--config", filepath.Join(t.TempDir(), "none.yaml"), "--env-file", writeEmptyEnv(t)})
	if err := cmd.Execute(); err == nil {
		t.Fatal("runs should refuse the mlflow backend")
	}
}

func writeEmptyEnv(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "empty.env")
	if err := os.WriteFile(path, nil, 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}
