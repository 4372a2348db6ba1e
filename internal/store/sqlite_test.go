package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/yourorg/genai-translator/pkg/types"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "translator.db"))
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func TestEnsureExperimentIdempotent(t *testing.T) {
	s := newTestStore(t)
	defer s.Close()
	ctx := context.Background()

	id1, err := s.EnsureExperiment(ctx, "translation_genai")
	if err != nil {
		t.Fatal(err)
	}
	id2, err := s.EnsureExperiment(ctx, "translation_genai")
	if err != nil {
		t.Fatal(err)
	}
	if id1 == "" || id1 != id2 {
		t.Fatalf("expected stable id, got %q and %q", id1, id2)
	}
	other, _ := s.EnsureExperiment(ctx, "other")
	if other == id1 {
		t.Fatalf("different names must get different ids")
	}
}

func TestLogRunRoundTrip(t *testing.T) {
	s := newTestStore(t)
	defer s.Close()
	ctx := context.Background()

	exp, _ := s.EnsureExperiment(ctx, "translation_genai")
	artifact := filepath.Join(t.TempDir(), "translation_abcd1234.txt")
	if err := os.WriteFile(artifact, []byte("=== TEXTO ORIGINAL ===\nhola\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	start := time.Unix(1700000000, 0).UTC()
	run := &types.Run{
		Name:      "translation_1700000000",
		Status:    types.RunFinished,
		StartTime: start,
		EndTime:   start.Add(300 * time.Millisecond),
		Params: []types.Param{
			{Key: "target_language", Value: "Inglés"},
			{Key: "prompt_hash", Value: "abcd1234"},
		},
		Metrics: []types.Metric{
			{Key: "latency_ms", Value: 300, Timestamp: start},
			{Key: "len_input", Value: 18, Timestamp: start},
		},
		Artifacts: []string{artifact},
	}
	if err := s.LogRun(ctx, exp, run); err != nil {
		t.Fatal(err)
	}
	if run.ID == "" || run.ExperimentID != exp {
		t.Fatalf("ids not assigned: %+v", run)
	}

	got, err := s.GetRun(ctx, run.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Name != run.Name || got.Status != types.RunFinished {
		t.Fatalf("unexpected run %+v", got)
	}
	if len(got.Params) != 2 || got.Params[0].Key != "target_language" || got.Params[0].Value != "Inglés" {
		t.Fatalf("params out of order: %+v", got.Params)
	}
	if v, ok := got.Metric("len_input"); !ok || v != 18 {
		t.Fatalf("unexpected metric %v", v)
	}
	if len(got.Artifacts) != 1 || got.Artifacts[0] != "translation_abcd1234.txt" {
		t.Fatalf("unexpected artifacts %+v", got.Artifacts)
	}
	data, err := s.GetArtifact(ctx, run.ID, "translation_abcd1234.txt")
	if err != nil || string(data) != "=== TEXTO ORIGINAL ===\nhola\n" {
		t.Fatalf("artifact content mismatch: %q %v", data, err)
	}
}

func TestListRunsNewestFirst(t *testing.T) {
	s := newTestStore(t)
	defer s.Close()
	ctx := context.Background()

	exp, _ := s.EnsureExperiment(ctx, "translation_genai")
	other, _ := s.EnsureExperiment(ctx, "other")
	base := time.Unix(1700000000, 0)
	for i := 0; i < 3; i++ {
		r := &types.Run{Name: fmt.Sprintf("translation_%d", i), StartTime: base.Add(time.Duration(i) * time.Second)}
		if err := s.LogRun(ctx, exp, r); err != nil {
			t.Fatal(err)
		}
	}
	_ = s.LogRun(ctx, other, &types.Run{Name: "elsewhere", StartTime: base})

	runs, err := s.ListRuns(ctx, exp, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 2 {
		t.Fatalf("expected limit to apply, got %d", len(runs))
	}
	if runs[0].Name != "translation_2" || runs[1].Name != "translation_1" {
		t.Fatalf("unexpected order %s, %s", runs[0].Name, runs[1].Name)
	}

	all, err := s.ListRuns(ctx, "", 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 4 {
		t.Fatalf("expected 4 runs across experiments, got %d", len(all))
	}
}

func TestDeleteRunCascades(t *testing.T) {
	s := newTestStore(t)
	defer s.Close()
	ctx := context.Background()

	exp, _ := s.EnsureExperiment(ctx, "e")
	run := &types.Run{Name: "error_1", Status: types.RunFailed, Params: []types.Param{{Key: "error", Value: "boom"}}}
	if err := s.LogRun(ctx, exp, run); err != nil {
		t.Fatal(err)
	}
	if err := s.DeleteRun(ctx, run.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := s.GetRun(ctx, run.ID); !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("expected ErrNoRows, got %v", err)
	}
}

func TestLogRunMissingArtifactRollsBack(t *testing.T) {
	s := newTestStore(t)
	defer s.Close()
	ctx := context.Background()

	exp, _ := s.EnsureExperiment(ctx, "e")
	err := s.LogRun(ctx, exp, &types.Run{Name: "r", Artifacts: []string{filepath.Join(t.TempDir(), "missing.txt")}})
	if err == nil {
		t.Fatalf("expected error for missing artifact")
	}
	runs, _ := s.ListRuns(ctx, exp, 0)
	if len(runs) != 0 {
		t.Fatalf("failed run must not be persisted, got %d", len(runs))
	}
}

func TestConcurrentLogRuns(t *testing.T) {
	s := newTestStore(t)
	defer s.Close()
	ctx := context.Background()
	exp, _ := s.EnsureExperiment(ctx, "concurrent")

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_ = s.LogRun(ctx, exp, &types.Run{Name: fmt.Sprintf("translation_%d", i), Params: []types.Param{{Key: "i", Value: fmt.Sprint(i)}}})
		}(i)
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = s.ListRuns(ctx, exp, 5)
		}()
	}
	wg.Wait()

	runs, err := s.ListRuns(ctx, exp, 100)
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) == 0 {
		t.Fatalf("expected runs")
	}
}
