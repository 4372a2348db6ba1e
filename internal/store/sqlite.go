package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/yourorg/genai-translator/pkg/types"
)

var _ Store = (*SQLiteStore)(nil)

// SQLiteStore keeps experiments and runs in a local SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	s := &SQLiteStore{db: db}
	if err := s.Init(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) Init() error {
	if _, err := s.db.Exec(`PRAGMA journal_mode=WAL;`); err != nil {
		return err
	}
	if _, err := s.db.Exec(`PRAGMA busy_timeout=5000;`); err != nil {
		return err
	}
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS experiments (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL UNIQUE,
			created_at DATETIME NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			experiment_id TEXT NOT NULL,
			name TEXT NOT NULL,
			status TEXT NOT NULL,
			start_time DATETIME NOT NULL,
			end_time DATETIME NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_runs_experiment ON runs(experiment_id, start_time);`,
		`CREATE TABLE IF NOT EXISTS run_params (
			run_id TEXT NOT NULL,
			seq INTEGER NOT NULL,
			key TEXT NOT NULL,
			value TEXT NOT NULL,
			PRIMARY KEY(run_id, key)
		);`,
		`CREATE TABLE IF NOT EXISTS run_metrics (
			run_id TEXT NOT NULL,
			seq INTEGER NOT NULL,
			key TEXT NOT NULL,
			value REAL NOT NULL,
			timestamp DATETIME NOT NULL,
			PRIMARY KEY(run_id, key)
		);`,
		`CREATE TABLE IF NOT EXISTS run_artifacts (
			run_id TEXT NOT NULL,
			name TEXT NOT NULL,
			content BLOB NOT NULL,
			PRIMARY KEY(run_id, name)
		);`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// EnsureExperiment returns the ID of the named experiment, creating it when missing.
func (s *SQLiteStore) EnsureExperiment(ctx context.Context, name string) (string, error) {
	var id string
	err := s.db.QueryRowContext(ctx, `SELECT id FROM experiments WHERE name=?`, name).Scan(&id)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return "", err
	}
	id = uuid.NewString()
	if _, err := s.db.ExecContext(ctx, `INSERT INTO experiments(id,name,created_at) VALUES(?,?,?) ON CONFLICT(name) DO NOTHING`, id, name, time.Now().UTC()); err != nil {
		return "", err
	}
	// a concurrent caller may have won the insert
	if err := s.db.QueryRowContext(ctx, `SELECT id FROM experiments WHERE name=?`, name).Scan(&id); err != nil {
		return "", err
	}
	return id, nil
}

// LogRun stores the run with its params, metrics and artifact contents in one transaction.
// Run IDs are UUIDv7 so they sort by creation time.
func (s *SQLiteStore) LogRun(ctx context.Context, experimentID string, run *types.Run) error {
	if run == nil {
		return errors.New("run is nil")
	}
	id, err := uuid.NewV7()
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	start, end := run.StartTime.UTC(), run.EndTime.UTC()
	if run.StartTime.IsZero() {
		start = now
	}
	if run.EndTime.IsZero() {
		end = now
	}
	status := run.Status
	if status == "" {
		status = types.RunFinished
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `INSERT INTO runs(id,experiment_id,name,status,start_time,end_time) VALUES(?,?,?,?,?,?)`,
		id.String(), experimentID, run.Name, status, start, end); err != nil {
		return err
	}
	for i, p := range run.Params {
		if _, err := tx.ExecContext(ctx, `INSERT INTO run_params(run_id,seq,key,value) VALUES(?,?,?,?)
		ON CONFLICT(run_id,key) DO UPDATE SET value=excluded.value`, id.String(), i, p.Key, p.Value); err != nil {
			return err
		}
	}
	for i, m := range run.Metrics {
		ts := m.Timestamp.UTC()
		if m.Timestamp.IsZero() {
			ts = end
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO run_metrics(run_id,seq,key,value,timestamp) VALUES(?,?,?,?,?)
		ON CONFLICT(run_id,key) DO UPDATE SET value=excluded.value,timestamp=excluded.timestamp`, id.String(), i, m.Key, m.Value, ts); err != nil {
			return err
		}
	}
	for _, path := range run.Artifacts {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read artifact: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO run_artifacts(run_id,name,content) VALUES(?,?,?)
		ON CONFLICT(run_id,name) DO UPDATE SET content=excluded.content`, id.String(), filepath.Base(path), data); err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	run.ID = id.String()
	run.ExperimentID = experimentID
	return nil
}

func (s *SQLiteStore) GetRun(ctx context.Context, id string) (*types.Run, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id,experiment_id,name,status,start_time,end_time FROM runs WHERE id=?`, id)
	var out types.Run
	if err := row.Scan(&out.ID, &out.ExperimentID, &out.Name, &out.Status, &out.StartTime, &out.EndTime); err != nil {
		return nil, err
	}
	if err := s.loadDetails(ctx, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListRuns returns the newest runs first. An empty experimentID lists all experiments.
func (s *SQLiteStore) ListRuns(ctx context.Context, experimentID string, limit int) ([]types.Run, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `SELECT id,experiment_id,name,status,start_time,end_time FROM runs
	WHERE (?='' OR experiment_id=?) ORDER BY start_time DESC, id DESC LIMIT ?`, experimentID, experimentID, limit)
	if err != nil {
		return nil, err
	}
	var out []types.Run
	for rows.Next() {
		var r types.Run
		if err := rows.Scan(&r.ID, &r.ExperimentID, &r.Name, &r.Status, &r.StartTime, &r.EndTime); err != nil {
			_ = rows.Close()
			return nil, err
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, err
	}
	_ = rows.Close()
	for i := range out {
		if err := s.loadDetails(ctx, &out[i]); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// loadDetails fills params, metrics and artifact names. Artifact names are reported
// without a local path; fetch contents with GetArtifact.
func (s *SQLiteStore) loadDetails(ctx context.Context, r *types.Run) error {
	rows, err := s.db.QueryContext(ctx, `SELECT key,value FROM run_params WHERE run_id=? ORDER BY seq ASC`, r.ID)
	if err != nil {
		return err
	}
	for rows.Next() {
		var p types.Param
		if err := rows.Scan(&p.Key, &p.Value); err != nil {
			_ = rows.Close()
			return err
		}
		r.Params = append(r.Params, p)
	}
	_ = rows.Close()

	rows, err = s.db.QueryContext(ctx, `SELECT key,value,timestamp FROM run_metrics WHERE run_id=? ORDER BY seq ASC`, r.ID)
	if err != nil {
		return err
	}
	for rows.Next() {
		var m types.Metric
		if err := rows.Scan(&m.Key, &m.Value, &m.Timestamp); err != nil {
			_ = rows.Close()
			return err
		}
		r.Metrics = append(r.Metrics, m)
	}
	_ = rows.Close()

	rows, err = s.db.QueryContext(ctx, `SELECT name FROM run_artifacts WHERE run_id=? ORDER BY name ASC`, r.ID)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return err
		}
		r.Artifacts = append(r.Artifacts, name)
	}
	return rows.Err()
}

func (s *SQLiteStore) GetArtifact(ctx context.Context, runID, name string) ([]byte, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx, `SELECT content FROM run_artifacts WHERE run_id=? AND name=?`, runID, name).Scan(&data)
	return data, err
}

func (s *SQLiteStore) DeleteRun(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	for _, stmt := range []string{
		`DELETE FROM run_params WHERE run_id=?`,
		`DELETE FROM run_metrics WHERE run_id=?`,
		`DELETE FROM run_artifacts WHERE run_id=?`,
		`DELETE FROM runs WHERE id=?`,
	} {
		if _, err := tx.ExecContext(ctx, stmt, id); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *SQLiteStore) Close() error {
	if s.db == nil {
		return errors.New("store is nil")
	}
	return s.db.Close()
}
