package ml

import (
	"sync"
)

// Registry is the in-memory view of the persisted models with an explicit
// reload. It replaces any notion of a process-wide model cache: construct
// one, inject it where needed, call Refresh after retraining.
type Registry struct {
	mu     sync.RWMutex
	dir    string
	models map[string]*LinearModel
	meta   Meta
	loaded bool
}

// NewRegistry creates a registry backed by the given model directory.
// Models are loaded lazily on first access.
func NewRegistry(dir string) *Registry {
	return &Registry{dir: dir, models: map[string]*LinearModel{}}
}

// Refresh force-reloads models and meta from the backing store.
func (r *Registry) Refresh() error {
	loaded, meta, err := LoadModels(r.dir)
	if err != nil {
		return err
	}

	r.mu.Lock()
	r.models = loaded
	r.meta = meta
	r.loaded = true
	r.mu.Unlock()
	return nil
}

func (r *Registry) ensureLoaded() {
	r.mu.RLock()
	loaded := r.loaded
	r.mu.RUnlock()
	if !loaded {
		_ = r.Refresh()
	}
}

// Get returns one model by name, or nil when absent.
func (r *Registry) Get(name string) *LinearModel {
	r.ensureLoaded()
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.models[name]
}

// All returns a copy of the loaded model set.
func (r *Registry) All() map[string]*LinearModel {
	r.ensureLoaded()
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]*LinearModel, len(r.models))
	for k, v := range r.models {
		out[k] = v
	}
	return out
}

// Meta returns the last training meta record.
func (r *Registry) Meta() Meta {
	r.ensureLoaded()
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.meta
}
