// Package translate turns form submissions into completion calls and tracked runs.
package translate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/yourorg/genai-translator/internal/llm"
	"github.com/yourorg/genai-translator/pkg/types"
)

// User-facing messages.
const (
	MsgEmptyInput          = "Por favor ingresa un texto para traducir"
	MsgTrackingUnavailable = "Error: MLflow no esta configurado correctamente"
	msgFailurePrefix       = "Error durante la traduccion: "
)

const (
	sourceLanguage = "auto-detect"
	previewLen     = 100
)

// ErrTrackingUnavailable means no experiment could be resolved at startup.
var ErrTrackingUnavailable = errors.New("tracking experiment not configured")

// Translator is the completion capability.
type Translator interface {
	Complete(ctx context.Context, req llm.Request) (string, error)
}

// RunLogger records one run in the tracking backend.
type RunLogger interface {
	LogRun(ctx context.Context, experimentID string, run *types.Run) error
}

// Config holds the per-process settings the handler needs.
type Config struct {
	Model        string
	Temperature  float64
	ArtifactDir  string
	ExperimentID string // empty when the tracking backend was unreachable at startup
}

// Outcome is the full result of one submission.
type Outcome struct {
	// Text is what the form displays.
	Text string
	// Err is the failure behind an error message, nil on success and on empty input.
	Err error
	// LogErr is a failure to record the error run. It never reaches the user.
	LogErr error
	// Run is the entry handed to the RunLogger, nil when nothing was logged.
	Run *types.Run
}

// Handler translates text and logs every attempt.
type Handler struct {
	cfg    Config
	llm    Translator
	runs   RunLogger
	logger *slog.Logger
	now    func() time.Time
}

// New returns a Handler. logger may be nil.
func New(cfg Config, tr Translator, runs RunLogger, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		cfg:    cfg,
		llm:    tr,
		runs:   runs,
		logger: logger,
		now:    time.Now,
	}
}

// Ready reports whether an experiment was resolved.
func (h *Handler) Ready() bool {
	return h.cfg.ExperimentID != ""
}

// Translate returns the translation or a user-facing error string.
func (h *Handler) Translate(ctx context.Context, text, targetLanguage string) string {
	return h.Handle(ctx, text, targetLanguage).Text
}

// Handle runs one submission and reports everything that happened.
func (h *Handler) Handle(ctx context.Context, text, targetLanguage string) Outcome {
	if strings.TrimSpace(text) == "" {
		return Outcome{Text: MsgEmptyInput}
	}
	if !h.Ready() {
		return Outcome{Text: MsgTrackingUnavailable, Err: ErrTrackingUnavailable}
	}

	canonical := Canonical(targetLanguage)
	prompt := BuildPrompt(canonical, text)
	fingerprint := Fingerprint(prompt)
	start := h.now()

	content, err := h.llm.Complete(ctx, llm.Request{
		Model:       h.cfg.Model,
		Temperature: h.cfg.Temperature,
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: SystemPrompt},
			{Role: llm.RoleUser, Content: prompt},
		},
	})
	if err != nil {
		return h.fail(ctx, targetLanguage, err)
	}

	translated := strings.TrimSpace(content)
	end := h.now()
	latencyMs := float64(end.Sub(start)) / float64(time.Millisecond)
	lenResponse := utf8.RuneCountInString(translated)

	path, err := writeArtifact(h.cfg.ArtifactDir, fingerprint, artifact{
		Original:    text,
		Translation: translated,
		Display:     targetLanguage,
		LatencyMs:   latencyMs,
		LenResponse: lenResponse,
	})
	if err != nil {
		return h.fail(ctx, targetLanguage, err)
	}

	run := &types.Run{
		Name:      fmt.Sprintf("translation_%d", start.Unix()),
		Status:    types.RunFinished,
		StartTime: start,
		EndTime:   end,
		Params: []types.Param{
			{Key: "target_language", Value: targetLanguage},
			{Key: "target_language_en", Value: canonical},
			{Key: "model", Value: h.cfg.Model},
			{Key: "prompt_hash", Value: fingerprint},
			{Key: "source_language", Value: sourceLanguage},
			{Key: "translated_text_preview", Value: preview(translated)},
		},
		Metrics: []types.Metric{
			{Key: "latency_ms", Value: latencyMs, Timestamp: end},
			{Key: "len_response", Value: float64(lenResponse), Timestamp: end},
			{Key: "len_input", Value: float64(utf8.RuneCountInString(text)), Timestamp: end},
		},
		Artifacts: []string{path},
	}
	// tracking writes outlive a disconnected caller
	if err := h.runs.LogRun(context.WithoutCancel(ctx), h.cfg.ExperimentID, run); err != nil {
		return h.fail(ctx, targetLanguage, fmt.Errorf("log run: %w", err))
	}

	h.logger.Info("translation logged", "run", run.Name, "run_id", run.ID, "prompt_hash", fingerprint, "latency_ms", latencyMs)
	return Outcome{Text: translated, Run: run}
}

// fail records a best-effort error run. A logging failure is kept in the outcome and logged.
func (h *Handler) fail(ctx context.Context, targetLanguage string, cause error) Outcome {
	now := h.now()
	run := &types.Run{
		Name:      fmt.Sprintf("error_%d", now.Unix()),
		Status:    types.RunFailed,
		StartTime: now,
		EndTime:   now,
		Params: []types.Param{
			{Key: "error", Value: cause.Error()},
			{Key: "target_language", Value: targetLanguage},
		},
	}
	out := Outcome{Text: msgFailurePrefix + cause.Error(), Err: cause, Run: run}
	if err := h.runs.LogRun(context.WithoutCancel(ctx), h.cfg.ExperimentID, run); err != nil {
		out.LogErr = err
		h.logger.Warn("error run dropped", "error", err, "cause", cause.Error())
	} else {
		h.logger.Warn("translation failed", "run", run.Name, "error", cause.Error())
	}
	return out
}

func preview(s string) string {
	if utf8.RuneCountInString(s) <= previewLen {
		return s
	}
	return string([]rune(s)[:previewLen]) + "..."
}
