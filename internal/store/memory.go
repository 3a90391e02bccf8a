package store

import (
	"context"
	"slices"
	"sync"

	"github.com/Jihanvall/rfm-app/internal/model"
)

// MemoryStore keeps artifacts and runs in process memory. It backs tests
// and one-shot CLI runs that do not need persistence.
type MemoryStore struct {
	mu        sync.RWMutex
	artifacts map[string][]byte
	runs      []model.Run
}

// NewMemory returns an empty MemoryStore.
func NewMemory() *MemoryStore {
	return &MemoryStore{artifacts: make(map[string][]byte)}
}

func (s *MemoryStore) Load(_ context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.artifacts[key]
	if !ok {
		return nil, ErrNotFound
	}
	return slices.Clone(data), nil
}

func (s *MemoryStore) Save(_ context.Context, key string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.artifacts[key] = slices.Clone(data)
	return nil
}

func (s *MemoryStore) SaveAll(_ context.Context, artifacts []Artifact) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range artifacts {
		s.artifacts[a.Key] = slices.Clone(a.Data)
	}
	return nil
}

func (s *MemoryStore) RecordRun(_ context.Context, run *model.Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs = append(s.runs, *run)
	return nil
}

// ListRuns returns matching runs, newest first.
func (s *MemoryStore) ListRuns(_ context.Context, filter RunFilter) ([]model.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []model.Run
	for i := len(s.runs) - 1; i >= 0; i-- {
		r := s.runs[i]
		if filter.Mode != "" && r.Mode != filter.Mode {
			continue
		}
		if filter.ModelName != "" && r.ModelName != filter.ModelName {
			continue
		}
		if filter.Status != "" && r.Status != filter.Status {
			continue
		}
		out = append(out, r)
	}

	if filter.Offset >= len(out) {
		return nil, nil
	}
	out = out[filter.Offset:]
	if limit := filter.limit(); len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStore) Migrate(context.Context) error { return nil }

func (s *MemoryStore) Close() error { return nil }
