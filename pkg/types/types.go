package types

import "time"

// Run statuses, named as the tracking server names them.
const (
	RunFinished = "FINISHED"
	RunFailed   = "FAILED"
)

// Run is one logged translation attempt.
type Run struct {
	ID           string    `json:"id"`
	ExperimentID string    `json:"experiment_id"`
	Name         string    `json:"name"`
	Status       string    `json:"status"`
	StartTime    time.Time `json:"start_time"`
	EndTime      time.Time `json:"end_time"`
	Params       []Param   `json:"params,omitempty"`
	Metrics      []Metric  `json:"metrics,omitempty"`
	// Artifacts holds local file paths to upload with the run.
	Artifacts []string `json:"artifacts,omitempty"`
}

// Param is a string-valued run parameter.
type Param struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// Metric is a numeric run measurement.
type Metric struct {
	Key       string    `json:"key"`
	Value     float64   `json:"value"`
	Timestamp time.Time `json:"timestamp"`
}

// Param returns the value of the named parameter.
func (r *Run) Param(key string) (string, bool) {
	for _, p := range r.Params {
		if p.Key == key {
			return p.Value, true
		}
	}
	return "", false
}

// Metric returns the value of the named metric.
func (r *Run) Metric(key string) (float64, bool) {
	for _, m := range r.Metrics {
		if m.Key == key {
			return m.Value, true
		}
	}
	return 0, false
}
