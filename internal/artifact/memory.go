package artifact

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// Compile-time check that MemoryRegistry implements Registry.
var _ Registry = (*MemoryRegistry)(nil)

// MemoryRegistry is an in-memory implementation of Registry.
// Handles are random UUIDs, so they cannot be guessed from a job ID.
type MemoryRegistry struct {
	mu        sync.RWMutex
	artifacts map[string]Artifact
}

// NewMemoryRegistry creates a new in-memory artifact registry.
func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{
		artifacts: make(map[string]Artifact),
	}
}

// Register stores a under a fresh handle.
func (r *MemoryRegistry) Register(_ context.Context, a Artifact) (Artifact, error) {
	a.Handle = uuid.NewString()
	a.Size = len(a.Data)

	r.mu.Lock()
	defer r.mu.Unlock()
	r.artifacts[a.Handle] = a
	return a, nil
}

// Open returns the artifact registered under handle.
func (r *MemoryRegistry) Open(_ context.Context, handle string) (Artifact, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.artifacts[handle]
	if !ok {
		return Artifact{}, ErrArtifactNotFound
	}
	return a, nil
}

// Revoke removes handle from the registry.
func (r *MemoryRegistry) Revoke(_ context.Context, handle string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.artifacts[handle]; !ok {
		return ErrArtifactNotFound
	}
	delete(r.artifacts, handle)
	return nil
}

// Len returns the number of live handles.
func (r *MemoryRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.artifacts)
}
