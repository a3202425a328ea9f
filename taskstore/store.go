// Package taskstore tracks generation tasks. The store holds whole task
// records: writers replace the record rather than mutating fields in place,
// so readers never observe a half-updated task.
package taskstore

import (
	"sync"
	"time"

	"shortvid-pipeline/types"
)

// Store is the task registry the server and orchestrator share.
type Store interface {
	Get(id string) (types.Task, bool)
	Put(task types.Task)
}

// MemoryStore keeps tasks in process memory. Tasks do not survive restarts.
type MemoryStore struct {
	mu    sync.RWMutex
	tasks map[string]types.Task
}

func NewMemory() *MemoryStore {
	return &MemoryStore{tasks: make(map[string]types.Task)}
}

func (s *MemoryStore) Get(id string) (types.Task, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	task, ok := s.tasks[id]
	return task, ok
}

// Put replaces the stored record. CreatedAt is stamped on first insert and
// carried forward on replacement so callers never have to thread it through.
func (s *MemoryStore) Put(task types.Task) {
	now := time.Now()
	task.UpdatedAt = now
	s.mu.Lock()
	defer s.mu.Unlock()
	if task.CreatedAt.IsZero() {
		if prev, ok := s.tasks[task.ID]; ok {
			task.CreatedAt = prev.CreatedAt
		} else {
			task.CreatedAt = now
		}
	}
	s.tasks[task.ID] = task
}
