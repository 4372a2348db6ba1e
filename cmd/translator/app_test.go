package main

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/yourorg/genai-translator/internal/config"
	"github.com/yourorg/genai-translator/internal/logger"
	"github.com/yourorg/genai-translator/internal/translate"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := &config.Config{}
	cfg.SetDefaults()
	cfg.LLM.APIKey = "sk-test"
	cfg.Artifacts.Dir = filepath.Join(t.TempDir(), "artifacts")
	return cfg
}

func TestNewAppDegradesWhenTrackingUnreachable(t *testing.T) {
	ts := httptest.NewServer(http.NotFoundHandler())
	ts.Close()

	cfg := testConfig(t)
	cfg.Tracking.Backend = config.BackendMLflow
	cfg.Tracking.URI = ts.URL

	var logBuf bytes.Buffer
	a, err := newApp(context.Background(), cfg, logger.NewWithWriter(&logBuf, "info", "text"))
	if err != nil {
		t.Fatalf("unreachable tracking must not be fatal: %v", err)
	}
	defer a.Close()

	if a.experimentID != "" || a.handler.Ready() {
		t.Fatalf("handler should not be ready, experiment %q", a.experimentID)
	}
	if a.store != nil {
		t.Fatalf("mlflow backend should not open a local store")
	}
	if got := a.handler.Translate(context.Background(), "hola", "Inglés"); got != translate.MsgTrackingUnavailable {
		t.Fatalf("got %q", got)
	}
	if !strings.Contains(logBuf.String(), "tracking unavailable") {
		t.Fatalf("expected a startup warning, got:\n%s", logBuf.String())
	}
}

func TestNewAppSQLiteBackend(t *testing.T) {
	cfg := testConfig(t)
	cfg.Tracking.Backend = config.BackendSQLite
	cfg.Tracking.DBPath = filepath.Join(t.TempDir(), "translator.db")

	var logBuf bytes.Buffer
	a, err := newApp(context.Background(), cfg, logger.NewWithWriter(&logBuf, "info", "text"))
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	defer a.Close()

	if a.experimentID == "" || !a.handler.Ready() || a.store == nil {
		t.Fatalf("sqlite backend should be ready")
	}
	if strings.Contains(logBuf.String(), "sk-test") {
		t.Fatalf("api key leaked into logs")
	}
	if !strings.Contains(logBuf.String(), "api_key_configured=true") {
		t.Fatalf("expected startup log, got:\n%s", logBuf.String())
	}
}
