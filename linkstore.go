package h5ar

import (
	"sort"

	"github.com/jacobsa/syncutil"
)

// LinkStore is the in-memory collection of LinkRecords bound to one
// archive directory. It offers O(1) lookup by name via a map, and a
// lazily rebuilt sorted view for iteration: directories first, then
// lexicographic order within each class (spec §3).
type LinkStore struct {
	mu syncutil.InvariantMutex

	byName map[string]*LinkRecord // GUARDED_BY(mu)

	// sorted is rebuilt from byName on demand. sortedValid is cleared by
	// any mutation.
	sorted      []*LinkRecord // GUARDED_BY(mu)
	sortedValid bool          // GUARDED_BY(mu)
}

// NewLinkStore returns an empty store.
func NewLinkStore() *LinkStore {
	s := &LinkStore{
		byName: make(map[string]*LinkRecord),
	}
	s.mu = syncutil.NewInvariantMutex(s.checkInvariants)
	return s
}

// checkInvariants is called by mu after every unlock.
func (s *LinkStore) checkInvariants() {
	if s.sortedValid && len(s.sorted) != len(s.byName) {
		panic("LinkStore: sorted cache length mismatch")
	}
}

// Exists reports whether a child with the given name is present.
func (s *LinkStore) Exists(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.byName[name]
	return ok
}

// TryGet returns a copy of the record for name, if present.
func (s *LinkStore) TryGet(name string) (LinkRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.byName[name]
	if !ok {
		return LinkRecord{}, false
	}
	return *r, true
}

// Update inserts or replaces one or more records, keyed by LinkName.
// Invalidates the sorted cache.
func (s *LinkStore) Update(records ...LinkRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range records {
		rec := records[i]
		s.byName[rec.LinkName] = &rec
	}
	s.sortedValid = false
}

// Remove deletes the record for name, if present. Invalidates the
// sorted cache. A no-op if name is absent.
func (s *LinkStore) Remove(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byName[name]; !ok {
		return
	}
	delete(s.byName, name)
	s.sortedValid = false
}

// Len returns the number of entries.
func (s *LinkStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.byName)
}

// rebuildSortedLocked recomputes the sorted view. REQUIRES: s.mu held.
func (s *LinkStore) rebuildSortedLocked() {
	sorted := make([]*LinkRecord, 0, len(s.byName))
	for _, r := range s.byName {
		sorted = append(sorted, r)
	}
	sort.Slice(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if a.IsDirectory() != b.IsDirectory() {
			return a.IsDirectory()
		}
		return a.LinkName < b.LinkName
	})
	s.sorted = sorted
	s.sortedValid = true
}

// LinkArray returns the sorted records without resetting verification
// state. Used by the index writer, which must not disturb fields a
// concurrent list/verify pass is about to read.
func (s *LinkStore) LinkArray() []LinkRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.sortedValid {
		s.rebuildSortedLocked()
	}
	out := make([]LinkRecord, len(s.sorted))
	for i, r := range s.sorted {
		out[i] = *r
	}
	return out
}

// Iter returns the sorted records after resetting each record's
// transient verification fields, so repeated traversals observe fresh
// verification state (spec §4.1 iteration contract).
func (s *LinkStore) Iter() []LinkRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.sortedValid {
		s.rebuildSortedLocked()
	}
	out := make([]LinkRecord, len(s.sorted))
	for i, r := range s.sorted {
		r.ResetVerification()
		out[i] = *r
	}
	return out
}

// LinkTargetResolver looks up the soft-link target for a path, as
// implemented by the storage capability.
type LinkTargetResolver interface {
	ReadSoftLinkTarget(path string) (string, error)
}

// AmendLinkTargets walks every symlink record and fills in LinkTarget by
// querying storage for the object at groupPath/name. Idempotent: calling
// it twice yields the same values as calling it once, since it always
// re-reads from storage rather than trusting a previously amended
// value.
func (s *LinkStore) AmendLinkTargets(storage LinkTargetResolver, groupPath string) error {
	s.mu.Lock()
	names := make([]string, 0, len(s.byName))
	for name, r := range s.byName {
		if r.IsSymlink() {
			names = append(names, name)
		}
	}
	s.mu.Unlock()

	for _, name := range names {
		target, err := storage.ReadSoftLinkTarget(joinArchivePath(groupPath, name))
		if err != nil {
			return err
		}
		s.mu.Lock()
		if r, ok := s.byName[name]; ok {
			r.LinkTarget = target
		}
		s.mu.Unlock()
	}
	return nil
}
