// Package memstore is an in-memory storage.Capability, used in place of
// the real HDF5-backed implementation in tests — the same role
// in-memory fakes play in jacobsa-fuse's samples/memfs, adapted here to
// the HDF5 object model (groups, opaque datasets, soft links, compound
// and string datasets) instead of a POSIX inode table.
package memstore

import (
	"fmt"
	"strings"
	"sync"

	"github.com/jhdf5io/h5ar/storage"
)

type kind int

const (
	kindGroup kind = iota
	kindDataset
	kindSoftLink
)

type entry struct {
	kind kind

	// dataset
	data []byte

	// soft link
	target string
}

// Store is an in-memory storage.Capability.
type Store struct {
	mu       sync.Mutex
	readOnly bool
	closed   bool

	entries map[string]*entry
	attrs   map[string]map[string]int32

	flushables   []storage.Flushable
	flushableIdx map[storage.Flushable]int
}

var _ storage.Capability = (*Store)(nil)

// New returns an empty, writable Store with a root group already
// present at "/".
func New() *Store {
	s := &Store{
		entries:      map[string]*entry{"/": {kind: kindGroup}},
		attrs:        map[string]map[string]int32{},
		flushableIdx: map[storage.Flushable]int{},
	}
	return s
}

// NewReadOnly wraps an existing Store's entries as a read-only view
// (used to model re-opening an archive for reading).
func NewReadOnly(src *Store) *Store {
	src.mu.Lock()
	defer src.mu.Unlock()
	clone := &Store{
		readOnly:     true,
		entries:      make(map[string]*entry, len(src.entries)),
		attrs:        make(map[string]map[string]int32, len(src.attrs)),
		flushableIdx: map[storage.Flushable]int{},
	}
	for k, v := range src.entries {
		cp := *v
		cp.data = append([]byte(nil), v.data...)
		clone.entries[k] = &cp
	}
	for k, v := range src.attrs {
		m := make(map[string]int32, len(v))
		for ak, av := range v {
			m[ak] = av
		}
		clone.attrs[k] = m
	}
	return clone
}

func (s *Store) ReadOnly() bool { return s.readOnly }

func (s *Store) guardWrite() error {
	if s.readOnly {
		return storage.ErrReadOnly
	}
	return nil
}

func (s *Store) Exists(path string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.entries[path]
	return ok
}

func (s *Store) IsGroup(path string, followSymlinks bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[path]
	if !ok {
		return false
	}
	if e.kind == kindSoftLink && followSymlinks {
		e, ok = s.entries[e.target]
		if !ok {
			return false
		}
	}
	return e.kind == kindGroup
}

func (s *Store) IsDataset(path string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[path]
	return ok && e.kind == kindDataset
}

func (s *Store) GetLinkInfo(path string) (storage.LinkInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[path]
	if !ok {
		return storage.LinkInfo{}, fmt.Errorf("memstore: %q not found", path)
	}
	return s.linkInfoLocked(lastSegment(path), e), nil
}

func lastSegment(path string) string {
	idx := strings.LastIndex(path, "/")
	return path[idx+1:]
}

func (s *Store) linkInfoLocked(name string, e *entry) storage.LinkInfo {
	li := storage.LinkInfo{Name: name, Exists: true}
	switch e.kind {
	case kindGroup:
		li.Type = storage.TypeGroup
	case kindSoftLink:
		li.Type = storage.TypeSoftLink
		li.Target = e.target
	default:
		li.Type = storage.TypeDataset
	}
	return li
}

func (s *Store) CreateGroup(path string, sizeHint int64) error {
	if err := s.guardWrite(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[path] = &entry{kind: kindGroup}
	return nil
}

func (s *Store) CreateSoftLink(target, path string) error {
	if err := s.guardWrite(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[path] = &entry{kind: kindSoftLink, target: target}
	return nil
}

func (s *Store) ReadSoftLinkTarget(path string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[path]
	if !ok || e.kind != kindSoftLink {
		return "", fmt.Errorf("memstore: %q is not a soft link", path)
	}
	return e.target, nil
}

func (s *Store) Delete(path string) error {
	if err := s.guardWrite(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[path]; !ok {
		return fmt.Errorf("memstore: %q not found", path)
	}
	prefix := path + "/"
	for k := range s.entries {
		if k == path || strings.HasPrefix(k, prefix) {
			delete(s.entries, k)
			delete(s.attrs, k)
		}
	}
	return nil
}

func (s *Store) GetGroupMembers(path string, withTargets bool) ([]storage.LinkInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.entries[path]; !ok || e.kind != kindGroup {
		return nil, fmt.Errorf("memstore: %q is not a group", path)
	}
	prefix := path
	if prefix != "/" {
		prefix += "/"
	} else {
		prefix = "/"
	}
	var out []storage.LinkInfo
	for k, e := range s.entries {
		if k == path || !strings.HasPrefix(k, prefix) {
			continue
		}
		rest := strings.TrimPrefix(k, prefix)
		if strings.Contains(rest, "/") {
			continue
		}
		out = append(out, s.linkInfoLocked(rest, e))
	}
	return out, nil
}

func (s *Store) GetDatasetSize(path string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[path]
	if !ok || e.kind != kindDataset {
		return 0, fmt.Errorf("memstore: %q is not a dataset", path)
	}
	return int64(len(e.data)), nil
}

func (s *Store) WriteCompound(path string, recordSize int, records []byte) error {
	if err := s.guardWrite(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[path] = &entry{kind: kindDataset, data: append([]byte(nil), records...)}
	s.setAttrLocked(path, "recordSize", int32(recordSize))
	return nil
}

func (s *Store) ReadCompound(path string) (int, []byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[path]
	if !ok || e.kind != kindDataset {
		return 0, nil, fmt.Errorf("memstore: %q not found", path)
	}
	recordSize, ok := s.attrs[path]["recordSize"]
	if !ok {
		return 0, nil, fmt.Errorf("memstore: %q has no record size", path)
	}
	return int(recordSize), append([]byte(nil), e.data...), nil
}

func (s *Store) WriteString(path string, data []byte, features storage.Features) error {
	if err := s.guardWrite(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[path] = &entry{kind: kindDataset, data: append([]byte(nil), data...)}
	return nil
}

func (s *Store) ReadString(path string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[path]
	if !ok || e.kind != kindDataset {
		return nil, fmt.Errorf("memstore: %q not found", path)
	}
	return append([]byte(nil), e.data...), nil
}

func (s *Store) setAttrLocked(path, name string, value int32) {
	m, ok := s.attrs[path]
	if !ok {
		m = map[string]int32{}
		s.attrs[path] = m
	}
	m[name] = value
}

func (s *Store) GetAttrInt32(path, name string) (int32, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.attrs[path]
	if !ok {
		return 0, false, nil
	}
	v, ok := m[name]
	return v, ok, nil
}

func (s *Store) SetAttrInt32(path, name string, value int32) error {
	if err := s.guardWrite(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.setAttrLocked(path, name, value)
	return nil
}

func (s *Store) CreateOpaque(path, tag string, length int64, features storage.Features) error {
	if err := s.guardWrite(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[path] = &entry{kind: kindDataset, data: make([]byte, length)}
	return nil
}

func (s *Store) CreateChunkedOpaque(path, tag string, initial, chunk int64, features storage.Features) error {
	if err := s.guardWrite(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if initial < 0 {
		initial = 0
	}
	s.entries[path] = &entry{kind: kindDataset, data: make([]byte, initial)}
	return nil
}

func (s *Store) WriteBlock(path string, buf []byte, offset int64) error {
	if err := s.guardWrite(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[path]
	if !ok || e.kind != kindDataset {
		return fmt.Errorf("memstore: %q is not a dataset", path)
	}
	need := offset + int64(len(buf))
	if need > int64(len(e.data)) {
		grown := make([]byte, need)
		copy(grown, e.data)
		e.data = grown
	}
	copy(e.data[offset:], buf)
	return nil
}

func (s *Store) ReadBlock(path string, buf []byte, datasetOffset int64) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[path]
	if !ok || e.kind != kindDataset {
		return 0, fmt.Errorf("memstore: %q is not a dataset", path)
	}
	if datasetOffset >= int64(len(e.data)) {
		return 0, nil
	}
	n := copy(buf, e.data[datasetOffset:])
	return n, nil
}

// ReadBlockAll returns the full content of a dataset at path. It is a
// test convenience, not part of storage.Capability.
func (s *Store) ReadBlockAll(path string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[path]
	if !ok || e.kind != kindDataset {
		return nil, fmt.Errorf("memstore: %q is not a dataset", path)
	}
	return append([]byte(nil), e.data...), nil
}

func (s *Store) AddFlushable(f storage.Flushable) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.flushableIdx[f]; ok {
		return
	}
	s.flushableIdx[f] = len(s.flushables)
	s.flushables = append(s.flushables, f)
}

func (s *Store) RemoveFlushable(f storage.Flushable) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i, ok := s.flushableIdx[f]
	if !ok {
		return
	}
	delete(s.flushableIdx, f)
	s.flushables = append(s.flushables[:i], s.flushables[i+1:]...)
	for k, v := range s.flushableIdx {
		if v > i {
			s.flushableIdx[k] = v - 1
		}
	}
}

func (s *Store) Flush() error {
	s.mu.Lock()
	flushables := append([]storage.Flushable(nil), s.flushables...)
	s.mu.Unlock()
	for _, f := range flushables {
		if err := f.Flush(); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) Close() error {
	if err := s.Flush(); err != nil {
		return err
	}
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

func (s *Store) IsClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
