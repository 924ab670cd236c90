package job

import (
	"context"
	"sort"
	"sync"
)

// Compile-time check that MemoryRepository implements Repository.
var _ Repository = (*MemoryRepository)(nil)

// MemoryRepository is an in-memory implementation of Repository.
// It uses a map with RWMutex for thread-safe access and forgets the oldest
// jobs once more than limit are stored. History does not survive restarts.
type MemoryRepository struct {
	mu    sync.RWMutex
	jobs  map[string]*Job
	limit int
}

// NewMemoryRepository creates a new in-memory job repository.
// A limit <= 0 keeps every job.
func NewMemoryRepository(limit int) *MemoryRepository {
	return &MemoryRepository{
		jobs:  make(map[string]*Job),
		limit: limit,
	}
}

// Save stores a snapshot of job without artifact bytes.
func (r *MemoryRepository) Save(_ context.Context, job *Job) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.jobs[job.ID] = job.Snapshot()
	r.evictLocked()
	return nil
}

// evictLocked drops the oldest jobs beyond the limit.
func (r *MemoryRepository) evictLocked() {
	if r.limit <= 0 || len(r.jobs) <= r.limit {
		return
	}
	ordered := r.sortedLocked()
	for _, j := range ordered[r.limit:] {
		delete(r.jobs, j.ID)
	}
}

// sortedLocked returns stored jobs newest first.
func (r *MemoryRepository) sortedLocked() []*Job {
	out := make([]*Job, 0, len(r.jobs))
	for _, j := range r.jobs {
		out = append(out, j)
	}
	sort.Slice(out, func(a, b int) bool {
		if out[a].CreatedAt.Equal(out[b].CreatedAt) {
			return out[a].ID > out[b].ID
		}
		return out[a].CreatedAt.After(out[b].CreatedAt)
	})
	return out
}

// FindByID retrieves a job by its ID.
// Returns a clone to prevent external mutations.
func (r *MemoryRepository) FindByID(_ context.Context, id string) (*Job, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	job, ok := r.jobs[id]
	if !ok {
		return nil, ErrJobNotFound
	}
	return job.Clone(), nil
}

// List returns all jobs in the repository, newest first.
// Returns clones to prevent external mutations.
func (r *MemoryRepository) List(_ context.Context) ([]*Job, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ordered := r.sortedLocked()
	result := make([]*Job, 0, len(ordered))
	for _, job := range ordered {
		result = append(result, job.Clone())
	}
	return result, nil
}

// Delete removes a job from storage.
func (r *MemoryRepository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.jobs[id]; !ok {
		return ErrJobNotFound
	}
	delete(r.jobs, id)
	return nil
}
