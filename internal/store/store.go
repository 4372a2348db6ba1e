package store

import (
	"context"

	"github.com/yourorg/genai-translator/pkg/types"
)

// Store is a local tracking backend.
type Store interface {
	EnsureExperiment(ctx context.Context, name string) (string, error)
	LogRun(ctx context.Context, experimentID string, run *types.Run) error

	GetRun(ctx context.Context, id string) (*types.Run, error)
	ListRuns(ctx context.Context, experimentID string, limit int) ([]types.Run, error)
	GetArtifact(ctx context.Context, runID, name string) ([]byte, error)
	DeleteRun(ctx context.Context, id string) error

	Close() error
}
