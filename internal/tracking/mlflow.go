// Package tracking logs runs to an MLflow tracking server over its REST API.
package tracking

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/yourorg/genai-translator/pkg/types"
)

// ErrorCodeNotFound is the MLflow error code for a missing resource.
const ErrorCodeNotFound = "RESOURCE_DOES_NOT_EXIST"

const (
	apiPrefix       = "/api/2.0/mlflow"
	artifactsPrefix = "/api/2.0/mlflow-artifacts/artifacts"
	proxiedScheme   = "mlflow-artifacts:"
	runNameTag      = "mlflow.runName"
)

// APIError is an error answer from the tracking server.
type APIError struct {
	StatusCode int
	Code       string `json:"error_code"`
	Message    string `json:"message"`
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("mlflow status %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("mlflow %s (status %d): %s", e.Code, e.StatusCode, e.Message)
}

// IsNotFound reports whether err is a RESOURCE_DOES_NOT_EXIST answer.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Code == ErrorCodeNotFound
}

// MLflowClient is a minimal MLflow REST client.
type MLflowClient struct {
	BaseURL    string
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// NewMLflowClient returns a client for the tracking server at baseURL.
func NewMLflowClient(baseURL string, logger *slog.Logger) *MLflowClient {
	return &MLflowClient{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		HTTPClient: http.DefaultClient,
		Logger:     logger,
	}
}

type tag struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

type metric struct {
	Key       string  `json:"key"`
	Value     float64 `json:"value"`
	Timestamp int64   `json:"timestamp"`
	Step      int64   `json:"step"`
}

type runInfo struct {
	RunID       string `json:"run_id"`
	ArtifactURI string `json:"artifact_uri"`
}

// EnsureExperiment returns the ID of the named experiment, creating it when missing.
func (c *MLflowClient) EnsureExperiment(ctx context.Context, name string) (string, error) {
	var found struct {
		Experiment struct {
			ExperimentID string `json:"experiment_id"`
		} `json:"experiment"`
	}
	q := url.Values{"experiment_name": {name}}
	err := c.do(ctx, http.MethodGet, apiPrefix+"/experiments/get-by-name?"+q.Encode(), nil, &found)
	if err == nil {
		c.log().Info("experiment exists", "experiment", name, "experiment_id", found.Experiment.ExperimentID)
		return found.Experiment.ExperimentID, nil
	}
	if !IsNotFound(err) {
		return "", fmt.Errorf("get experiment %q: %w", name, err)
	}

	var created struct {
		ExperimentID string `json:"experiment_id"`
	}
	if err := c.do(ctx, http.MethodPost, apiPrefix+"/experiments/create", map[string]string{"name": name}, &created); err != nil {
		return "", fmt.Errorf("create experiment %q: %w", name, err)
	}
	c.log().Info("experiment created", "experiment", name, "experiment_id", created.ExperimentID)
	return created.ExperimentID, nil
}

// LogRun creates a run, logs its params and metrics in one batch, uploads its
// artifacts and closes it with the run's status. run.ID is set on success.
func (c *MLflowClient) LogRun(ctx context.Context, experimentID string, run *types.Run) error {
	start := run.StartTime
	if start.IsZero() {
		start = time.Now()
	}
	var created struct {
		Run struct {
			Info runInfo `json:"info"`
		} `json:"run"`
	}
	createReq := map[string]interface{}{
		"experiment_id": experimentID,
		"run_name":      run.Name,
		"start_time":    start.UnixMilli(),
		"tags":          []tag{{Key: runNameTag, Value: run.Name}},
	}
	if err := c.do(ctx, http.MethodPost, apiPrefix+"/runs/create", createReq, &created); err != nil {
		return fmt.Errorf("create run: %w", err)
	}
	info := created.Run.Info
	run.ID = info.RunID
	run.ExperimentID = experimentID

	if err := c.logBatch(ctx, info.RunID, run); err != nil {
		c.abort(ctx, info.RunID)
		return err
	}
	for _, path := range run.Artifacts {
		if err := c.uploadArtifact(ctx, info.ArtifactURI, path); err != nil {
			c.abort(ctx, info.RunID)
			return err
		}
	}

	status := run.Status
	if status == "" {
		status = types.RunFinished
	}
	end := run.EndTime
	if end.IsZero() {
		end = time.Now()
	}
	if err := c.updateRun(ctx, info.RunID, status, end); err != nil {
		return err
	}
	c.log().Debug("run logged", "run_id", info.RunID, "run", run.Name, "status", status)
	return nil
}

func (c *MLflowClient) logBatch(ctx context.Context, runID string, run *types.Run) error {
	if len(run.Params) == 0 && len(run.Metrics) == 0 {
		return nil
	}
	params := make([]tag, 0, len(run.Params))
	for _, p := range run.Params {
		params = append(params, tag{Key: p.Key, Value: p.Value})
	}
	metrics := make([]metric, 0, len(run.Metrics))
	for _, m := range run.Metrics {
		ts := m.Timestamp
		if ts.IsZero() {
			ts = time.Now()
		}
		metrics = append(metrics, metric{Key: m.Key, Value: m.Value, Timestamp: ts.UnixMilli()})
	}
	req := map[string]interface{}{
		"run_id":  runID,
		"params":  params,
		"metrics": metrics,
	}
	if err := c.do(ctx, http.MethodPost, apiPrefix+"/runs/log-batch", req, nil); err != nil {
		return fmt.Errorf("log batch: %w", err)
	}
	return nil
}

func (c *MLflowClient) updateRun(ctx context.Context, runID, status string, end time.Time) error {
	req := map[string]interface{}{
		"run_id":   runID,
		"status":   status,
		"end_time": end.UnixMilli(),
	}
	if err := c.do(ctx, http.MethodPost, apiPrefix+"/runs/update", req, nil); err != nil {
		return fmt.Errorf("update run: %w", err)
	}
	return nil
}

func (c *MLflowClient) abort(ctx context.Context, runID string) {
	if err := c.updateRun(ctx, runID, types.RunFailed, time.Now()); err != nil {
		c.log().Warn("mark run failed", "run_id", runID, "error", err)
	}
}

// uploadArtifact stores a local file under the run's artifact root. Proxied roots
// (mlflow-artifacts:/...) go through the server, file roots are written directly.
func (c *MLflowClient) uploadArtifact(ctx context.Context, artifactURI, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read artifact: %w", err)
	}
	name := filepath.Base(path)

	switch {
	case artifactURI == "":
		return errors.New("run has no artifact root")
	case strings.HasPrefix(artifactURI, proxiedScheme):
		rest := strings.TrimPrefix(artifactURI, proxiedScheme)
		// mlflow-artifacts://host:port/path carries its own authority
		if strings.HasPrefix(rest, "//") {
			if u, err := url.Parse(artifactURI); err == nil {
				rest = u.Path
			}
		}
		endpoint := artifactsPrefix + "/" + strings.Trim(rest, "/") + "/" + url.PathEscape(name)
		if err := c.doRaw(ctx, http.MethodPut, endpoint, "application/octet-stream", data, nil); err != nil {
			return fmt.Errorf("upload artifact %s: %w", name, err)
		}
		return nil
	case strings.HasPrefix(artifactURI, "file://"), !strings.Contains(artifactURI, "://"):
		dir := artifactURI
		if strings.HasPrefix(artifactURI, "file://") {
			u, err := url.Parse(artifactURI)
			if err != nil {
				return fmt.Errorf("parse artifact uri: %w", err)
			}
			dir = u.Path
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create artifact root: %w", err)
		}
		if err := os.WriteFile(filepath.Join(dir, name), data, 0o644); err != nil {
			return fmt.Errorf("copy artifact %s: %w", name, err)
		}
		return nil
	default:
		return fmt.Errorf("unsupported artifact uri %q", artifactURI)
	}
}

func (c *MLflowClient) do(ctx context.Context, method, path string, in, out interface{}) error {
	var body []byte
	if in != nil {
		var err error
		body, err = json.Marshal(in)
		if err != nil {
			return err
		}
	}
	return c.doRaw(ctx, method, path, "application/json", body, out)
}

func (c *MLflowClient) doRaw(ctx context.Context, method, path, contentType string, body []byte, out interface{}) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", contentType)
	}

	client := c.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		if json.Unmarshal(data, apiErr) != nil || apiErr.Message == "" {
			apiErr.Message = strings.TrimSpace(string(data))
			if apiErr.Message == "" {
				apiErr.Message = strconv.Itoa(resp.StatusCode) + " " + http.StatusText(resp.StatusCode)
			}
		}
		return apiErr
	}
	if out == nil || len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, out)
}

func (c *MLflowClient) log() *slog.Logger {
	if c.Logger == nil {
		return slog.Default()
	}
	return c.Logger
}
