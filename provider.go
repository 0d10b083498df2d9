package h5ar

import (
	"sync"

	"github.com/jhdf5io/h5ar/storage"
)

// IndexProvider is the process-wide (per-archive-handle) cache of
// DirectoryIndex values, keyed by normalized group path (spec §4.3).
type IndexProvider struct {
	mu       sync.Mutex
	storage  storage.Capability
	suffix   string
	errStrat ErrorStrategy
	cache    map[string]*DirectoryIndex
}

// NewIndexProvider returns an empty provider bound to one storage
// handle.
func NewIndexProvider(storageCap storage.Capability, suffix string, errStrat ErrorStrategy) *IndexProvider {
	return &IndexProvider{
		storage:  storageCap,
		suffix:   suffix,
		errStrat: errStrat,
		cache:    make(map[string]*DirectoryIndex),
	}
}

// Get returns the cached DirectoryIndex for path, loading it (from disk
// or by group reconstruction) on first access. If the cached index was
// built without link targets and withLinkTargets is now requested, it
// is upgraded in place via LinkStore.AmendLinkTargets.
func (p *IndexProvider) Get(path string, withLinkTargets bool) (*DirectoryIndex, error) {
	path = normalizeArchivePath(path)

	p.mu.Lock()
	defer p.mu.Unlock()

	if idx, ok := p.cache[path]; ok {
		if withLinkTargets && !idx.withLinkTargets {
			if err := idx.store.AmendLinkTargets(p.storage, path); err != nil {
				return nil, err
			}
			idx.withLinkTargets = true
		}
		return idx, nil
	}

	idx, err := loadDirectoryIndex(p.storage, path, p.suffix, withLinkTargets, p.errStrat)
	if err != nil {
		return nil, err
	}
	p.cache[path] = idx
	return idx, nil
}

// Invalidate drops a cached entry (used after a group is deleted so a
// later re-creation at the same path starts from an empty index rather
// than a stale cached one).
func (p *IndexProvider) Invalidate(path string) {
	path = normalizeArchivePath(path)
	p.mu.Lock()
	delete(p.cache, path)
	p.mu.Unlock()
}

// Close flushes every cached index, collecting the first error;
// subsequent errors are suppressed but still routed through the error
// strategy so they are not silently lost (spec §4.3).
func (p *IndexProvider) Close() error {
	p.mu.Lock()
	indices := make([]*DirectoryIndex, 0, len(p.cache))
	for _, idx := range p.cache {
		indices = append(indices, idx)
	}
	p.mu.Unlock()

	var firstErr error
	for _, idx := range indices {
		if err := idx.Close(); err != nil {
			if firstErr == nil {
				firstErr = err
			} else {
				p.errStrat.Handle(err)
			}
		}
	}
	return firstErr
}

// Flush flushes every cached index without removing them from the
// cache (used by Archive.Flush, which keeps the handle open).
func (p *IndexProvider) Flush() error {
	p.mu.Lock()
	indices := make([]*DirectoryIndex, 0, len(p.cache))
	for _, idx := range p.cache {
		indices = append(indices, idx)
	}
	p.mu.Unlock()

	var firstErr error
	for _, idx := range indices {
		if err := idx.Flush(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
