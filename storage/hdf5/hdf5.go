// Copyright 2015 Google Inc. All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package hdf5 implements storage.Capability against
// github.com/scigolib/hdf5, a pure-Go HDF5 reader/writer. This is the
// only package that imports the HDF5 library directly; everything else
// in the module talks to storage.Capability.
package hdf5

import (
	"fmt"
	"sync"

	scihdf5 "github.com/scigolib/hdf5"
	"github.com/jhdf5io/h5ar/storage"
)

// SyncMode mirrors the storage provider's write-durability knobs (spec
// §6.1 open_for_writing).
type SyncMode int

const (
	SyncNone SyncMode = iota
	SyncOnFlush
	SyncOnEachWrite
)

// Options configures OpenForWriting.
type Options struct {
	FormatVersionLowerBound scihdf5.FormatVersion
	Sync                    SyncMode
	HousekeepingNameSuffix  string
	UTF8Encoding            bool
	GenerateMDCImage        bool
}

// handle adapts a *scihdf5.File to storage.Capability.
type handle struct {
	mu       sync.Mutex
	file     *scihdf5.File
	readOnly bool
	closed   bool

	flushables   []storage.Flushable
	flushableIdx map[storage.Flushable]int
}

// OpenForReading opens an existing archive file read-only.
func OpenForReading(path string) (storage.Capability, error) {
	f, err := scihdf5.OpenFile(path, scihdf5.ReadOnly)
	if err != nil {
		return nil, fmt.Errorf("hdf5: open %q: %w", path, err)
	}
	return &handle{file: f, readOnly: true, flushableIdx: map[storage.Flushable]int{}}, nil
}

// OpenForWriting opens (creating if absent) an archive file for
// reading and writing.
func OpenForWriting(path string, opt Options) (storage.Capability, error) {
	f, err := scihdf5.OpenOrCreateFile(path, scihdf5.ReadWrite, scihdf5.CreateOptions{
		FormatVersionLowerBound: opt.FormatVersionLowerBound,
		UTF8Encoding:            opt.UTF8Encoding,
		GenerateMDCImage:        opt.GenerateMDCImage,
	})
	if err != nil {
		return nil, fmt.Errorf("hdf5: open %q: %w", path, err)
	}
	return &handle{file: f, flushableIdx: map[storage.Flushable]int{}}, nil
}

func (h *handle) ReadOnly() bool { return h.readOnly }

func (h *handle) guardWrite() error {
	if h.readOnly {
		return storage.ErrReadOnly
	}
	return nil
}

func (h *handle) Exists(path string) bool {
	return h.file.Exists(path)
}

func (h *handle) IsGroup(path string, followSymlinks bool) bool {
	return h.file.IsGroup(path, followSymlinks)
}

func (h *handle) IsDataset(path string) bool {
	return h.file.IsDataset(path)
}

func convertLinkType(t scihdf5.ObjectType) storage.LinkType {
	switch t {
	case scihdf5.ObjectGroup:
		return storage.TypeGroup
	case scihdf5.ObjectDataset:
		return storage.TypeDataset
	case scihdf5.ObjectSoftLink:
		return storage.TypeSoftLink
	default:
		return storage.TypeOther
	}
}

func (h *handle) GetLinkInfo(path string) (storage.LinkInfo, error) {
	info, err := h.file.LinkInfo(path)
	if err != nil {
		return storage.LinkInfo{}, err
	}
	return storage.LinkInfo{
		Type:   convertLinkType(info.Type),
		Target: info.Target,
		Exists: info.Exists,
	}, nil
}

func (h *handle) CreateGroup(path string, sizeHint int64) error {
	if err := h.guardWrite(); err != nil {
		return err
	}
	if sizeHint > 0 {
		return h.file.CreateGroupWithHint(path, sizeHint)
	}
	return h.file.CreateGroup(path)
}

func (h *handle) CreateSoftLink(target, path string) error {
	if err := h.guardWrite(); err != nil {
		return err
	}
	return h.file.CreateSoftLink(target, path)
}

func (h *handle) ReadSoftLinkTarget(path string) (string, error) {
	return h.file.ReadSoftLinkTarget(path)
}

func (h *handle) Delete(path string) error {
	if err := h.guardWrite(); err != nil {
		return err
	}
	return h.file.Delete(path)
}

func (h *handle) GetGroupMembers(path string, withTargets bool) ([]storage.LinkInfo, error) {
	members, err := h.file.GroupMembers(path, withTargets)
	if err != nil {
		return nil, err
	}
	out := make([]storage.LinkInfo, len(members))
	for i, m := range members {
		out[i] = storage.LinkInfo{
			Name:   m.Name,
			Type:   convertLinkType(m.Type),
			Target: m.Target,
			Exists: true,
		}
	}
	return out, nil
}

func (h *handle) GetDatasetSize(path string) (int64, error) {
	return h.file.DatasetSize(path)
}

func featuresToLib(f storage.Features) scihdf5.StorageFeatures {
	switch f {
	case storage.GenericDeflate:
		return scihdf5.DeflateCompression
	case storage.GenericContiguous:
		return scihdf5.Contiguous
	default:
		return scihdf5.NoCompression
	}
}

func (h *handle) WriteCompound(path string, recordSize int, records []byte) error {
	if err := h.guardWrite(); err != nil {
		return err
	}
	return h.file.WriteCompoundRaw(path, recordSize, records)
}

func (h *handle) ReadCompound(path string) (int, []byte, error) {
	return h.file.ReadCompoundRaw(path)
}

func (h *handle) WriteString(path string, data []byte, features storage.Features) error {
	if err := h.guardWrite(); err != nil {
		return err
	}
	return h.file.WriteStringDataset(path, data, featuresToLib(features))
}

func (h *handle) ReadString(path string) ([]byte, error) {
	return h.file.ReadStringDataset(path)
}

func (h *handle) GetAttrInt32(path, name string) (int32, bool, error) {
	v, ok, err := h.file.GetInt32Attr(path, name)
	return v, ok, err
}

func (h *handle) SetAttrInt32(path, name string, value int32) error {
	if err := h.guardWrite(); err != nil {
		return err
	}
	return h.file.SetInt32Attr(path, name, value)
}

func (h *handle) CreateOpaque(path, tag string, length int64, features storage.Features) error {
	if err := h.guardWrite(); err != nil {
		return err
	}
	return h.file.CreateOpaqueDataset(path, tag, length, featuresToLib(features))
}

func (h *handle) CreateChunkedOpaque(path, tag string, initial, chunk int64, features storage.Features) error {
	if err := h.guardWrite(); err != nil {
		return err
	}
	return h.file.CreateChunkedOpaqueDataset(path, tag, initial, chunk, featuresToLib(features))
}

func (h *handle) WriteBlock(path string, buf []byte, offset int64) error {
	if err := h.guardWrite(); err != nil {
		return err
	}
	return h.file.WriteBlock(path, buf, offset)
}

func (h *handle) ReadBlock(path string, buf []byte, datasetOffset int64) (int, error) {
	return h.file.ReadBlock(path, buf, datasetOffset)
}

func (h *handle) AddFlushable(f storage.Flushable) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.flushableIdx[f]; ok {
		return
	}
	h.flushableIdx[f] = len(h.flushables)
	h.flushables = append(h.flushables, f)
}

func (h *handle) RemoveFlushable(f storage.Flushable) {
	h.mu.Lock()
	defer h.mu.Unlock()
	idx, ok := h.flushableIdx[f]
	if !ok {
		return
	}
	h.flushables = append(h.flushables[:idx], h.flushables[idx+1:]...)
	delete(h.flushableIdx, f)
	for ff, i := range h.flushableIdx {
		if i > idx {
			h.flushableIdx[ff] = i - 1
		}
	}
}

func (h *handle) Flush() error {
	h.mu.Lock()
	flushables := append([]storage.Flushable(nil), h.flushables...)
	h.mu.Unlock()

	var firstErr error
	for _, f := range flushables {
		if err := f.Flush(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if h.readOnly {
		return firstErr
	}
	if err := h.file.Flush(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

func (h *handle) IsClosed() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.closed
}

func (h *handle) Close() error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil
	}
	h.closed = true
	h.mu.Unlock()

	if err := h.Flush(); err != nil {
		return err
	}
	return h.file.Close()
}
