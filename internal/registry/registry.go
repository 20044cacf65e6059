// Package registry tracks the set of mints currently of interest on the
// trade stream. Persistence of which tokens exist doubles as persistence of
// what we are subscribed to, so the set is reconstructed from the tokens
// table at startup.
package registry

import (
	"context"
	"fmt"
	"sync"

	"pumpportal-archiver/internal/storage"
)

// Registry is the process-wide set of subscribed mints. Mutated only by the
// event-handling path; read concurrently by the reconnect logic and the
// stats reporter.
type Registry struct {
	mu    sync.RWMutex
	mints map[string]struct{}
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{mints: make(map[string]struct{})}
}

// Load seeds the registry from all known mints in storage. Called once
// before the first connect attempt.
func (r *Registry) Load(ctx context.Context, gw storage.Gateway) error {
	mints, err := gw.LoadMints(ctx)
	if err != nil {
		return fmt.Errorf("load mints: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, mint := range mints {
		r.mints[mint] = struct{}{}
	}
	return nil
}

// Add registers a mint. It is idempotent and reports whether the mint was
// newly added, which decides whether an outbound subscribe request is due.
func (r *Registry) Add(mint string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.mints[mint]; exists {
		return false
	}
	r.mints[mint] = struct{}{}
	return true
}

// Size returns the current number of subscribed mints.
func (r *Registry) Size() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.mints)
}

// Mints returns a snapshot of all subscribed mints, used to re-establish
// interest after a reconnect.
func (r *Registry) Mints() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, 0, len(r.mints))
	for mint := range r.mints {
		out = append(out, mint)
	}
	return out
}
