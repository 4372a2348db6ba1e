package server

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"html/template"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/yourorg/genai-translator/internal/config"
	"github.com/yourorg/genai-translator/internal/middleware"
	"github.com/yourorg/genai-translator/internal/translate"
	"github.com/yourorg/genai-translator/pkg/types"
)

var (
	//go:embed ui.html
	uiHTML string

	uiTemplate = template.Must(template.New("ui").Parse(uiHTML))
)

// Translator is the request handler behind the form.
type Translator interface {
	Translate(ctx context.Context, text, targetLanguage string) string
	Ready() bool
}

// RunLister lists runs kept by a local tracking backend.
type RunLister interface {
	ListRuns(ctx context.Context, experimentID string, limit int) ([]types.Run, error)
}

// Server wraps the form UI and API handlers.
type Server struct {
	cfg          *config.Config
	translator   Translator
	runs         RunLister
	experimentID string
	logger       *slog.Logger
	mux          *http.ServeMux
	handler      http.Handler
}

type uiData struct {
	Model     string
	Languages []translate.Language
	Selected  string
	Text      string
	Result    string
	Ready     bool
}

// New constructs a new Server with routes registered.
func New(cfg *config.Config, tr Translator, logger *slog.Logger) (*Server, error) {
	if cfg == nil {
		return nil, errors.New("config is nil")
	}
	if tr == nil {
		return nil, errors.New("translator is nil")
	}
	if logger == nil {
		logger = slog.Default()
	}

	srv := &Server{
		cfg:        cfg,
		translator: tr,
		logger:     logger,
		mux:        http.NewServeMux(),
	}
	srv.registerRoutes()

	srv.handler = srv.mux
	if cfg.Security.RateLimit > 0 {
		srv.handler = middleware.NewRateLimiter(cfg.Security.RateLimit, cfg.Security.Burst).Middleware(srv.mux)
	}
	return srv, nil
}

// WithRuns exposes runs of experimentID under /api/runs.
func (s *Server) WithRuns(runs RunLister, experimentID string) *Server {
	s.runs = runs
	s.experimentID = experimentID
	return s
}

// Handler returns the http handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// ListenAndServe serves on addr until ctx is cancelled, then drains in-flight requests.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	httpSrv := &http.Server{
		Addr:              addr,
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func (s *Server) registerRoutes() {
	// UI routes.
	s.mux.HandleFunc("/", s.handleIndex)
	s.mux.HandleFunc("/translate", s.handleTranslateForm)

	// API routes.
	s.mux.HandleFunc("/api/translate", s.handleTranslateAPI)
	s.mux.HandleFunc("/api/languages", s.handleLanguages)
	s.mux.HandleFunc("/api/runs", s.handleRuns)
	s.mux.HandleFunc("/healthz", s.handleHealth)
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s.renderUI(w, translate.DefaultDisplay, "", "")
}

func (s *Server) handleTranslateForm(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form data", http.StatusBadRequest)
		return
	}
	text := r.FormValue("text")
	lang := r.FormValue("target_language")
	if lang == "" {
		lang = translate.DefaultDisplay
	}
	result := s.translator.Translate(r.Context(), text, lang)
	s.renderUI(w, lang, text, result)
}

func (s *Server) handleTranslateAPI(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req struct {
		Text           string `json:"text"`
		TargetLanguage string `json:"target_language"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json: "+err.Error(), http.StatusBadRequest)
		return
	}
	if req.TargetLanguage == "" {
		req.TargetLanguage = translate.DefaultDisplay
	}
	result := s.translator.Translate(r.Context(), req.Text, req.TargetLanguage)
	writeJSON(w, http.StatusOK, map[string]string{"translation": result})
}

func (s *Server) handleLanguages(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, translate.Languages())
}

func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.runs == nil {
		http.Error(w, "runs are kept by the remote tracking server", http.StatusNotFound)
		return
	}
	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			http.Error(w, "limit must be a positive integer", http.StatusBadRequest)
			return
		}
		limit = n
	}
	runs, err := s.runs.ListRuns(r.Context(), s.experimentID, limit)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if runs == nil {
		runs = []types.Run{}
	}
	writeJSON(w, http.StatusOK, runs)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":   "ok",
		"tracking": s.translator.Ready(),
	})
}

func (s *Server) renderUI(w http.ResponseWriter, selected, text, result string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	data := uiData{
		Model:     s.cfg.LLM.Model,
		Languages: translate.Languages(),
		Selected:  selected,
		Text:      text,
		Result:    result,
		Ready:     s.translator.Ready(),
	}
	if err := uiTemplate.Execute(w, data); err != nil {
		s.logger.Error("render ui", "error", err)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
