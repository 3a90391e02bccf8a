// Package store persists model artifacts and run history.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/Jihanvall/rfm-app/internal/model"
)

// ErrNotFound is returned by ArtifactStore.Load when the key has never been
// saved. It is returned unwrapped so callers can compare with errors.Is.
var ErrNotFound = errors.New("store: artifact not found")

// ArtifactStore is an opaque blob store keyed by artifact name.
type ArtifactStore interface {
	Load(ctx context.Context, key string) ([]byte, error)
	Save(ctx context.Context, key string, data []byte) error
}

// Artifact is one keyed blob in a batch write.
type Artifact struct {
	Key  string
	Data []byte
}

// BatchSaver is implemented by stores that can write several artifacts so
// that readers see either all of them or none.
type BatchSaver interface {
	SaveAll(ctx context.Context, artifacts []Artifact) error
}

// RunFilter specifies criteria for listing runs.
type RunFilter struct {
	Mode      model.Mode      `json:"mode,omitempty"`
	ModelName string          `json:"model_name,omitempty"`
	Status    model.RunStatus `json:"status,omitempty"`
	Limit     int             `json:"limit,omitempty"`
	Offset    int             `json:"offset,omitempty"`
}

// DefaultRunLimit caps ListRuns when the filter sets no limit.
const DefaultRunLimit = 100

func (f RunFilter) limit() int {
	if f.Limit <= 0 {
		return DefaultRunLimit
	}
	return f.Limit
}

// RunStore records pipeline runs.
type RunStore interface {
	RecordRun(ctx context.Context, run *model.Run) error
	ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error)
}

// Store is a backend that holds artifacts and needs explicit lifecycle
// management.
type Store interface {
	ArtifactStore
	Migrate(ctx context.Context) error
	Close() error
}

func now() time.Time {
	return time.Now().UTC()
}
