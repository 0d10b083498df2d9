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

// Package storage names the HDF5 capability the archive engine consumes
// (spec §6.1): group/dataset existence and creation, compound and
// opaque array I/O, string datasets, scalar attributes, and a
// flushable-registration hook. The engine never talks to an HDF5
// library directly; it only ever holds a Capability.
package storage

import "errors"

// ErrReadOnly is returned by any mutating call on a Capability opened
// for reading only.
var ErrReadOnly = errors.New("storage: handle is read-only")

// Features selects the on-disk representation for an opaque or string
// dataset: deflate-compressed, uncompressed-chunked, or contiguous
// (single block, no chunking).
type Features int

const (
	GenericDeflate Features = iota
	GenericNoCompression
	GenericContiguous
)

// LinkType classifies what a path resolves to within the container.
type LinkType int

const (
	TypeGroup LinkType = iota
	TypeDataset
	TypeSoftLink
	TypeOther
)

// LinkInfo describes one child of a group, as returned by
// GetGroupMembers, or the result of resolving a single path with
// GetLinkInfo.
type LinkInfo struct {
	Name   string
	Type   LinkType
	Target string // only for TypeSoftLink
	Exists bool
}

// Flushable is registered on a Capability so that the capability's own
// Flush call invokes external writers before persisting its own state.
// The archive engine's streaming file writers do not register here;
// they register on their parent directory's index.
type Flushable interface {
	Flush() error
}

// Capability is the full set of HDF5 operations the archive engine
// requires. A read-only handle still implements every method; mutating
// methods return ErrReadOnly.
type Capability interface {
	ReadOnly() bool

	Exists(path string) bool
	IsGroup(path string, followSymlinks bool) bool
	IsDataset(path string) bool
	GetLinkInfo(path string) (LinkInfo, error)

	CreateGroup(path string, sizeHint int64) error
	CreateSoftLink(target, path string) error
	ReadSoftLinkTarget(path string) (string, error)
	Delete(path string) error

	// GetGroupMembers lists the direct children of a group, including
	// any housekeeping-suffixed index datasets; callers that want only
	// archived entries filter those out by name.
	GetGroupMembers(path string, withTargets bool) ([]LinkInfo, error)

	GetDatasetSize(path string) (int64, error)

	// Compound array I/O. recordSize is the on-disk (padded) size of
	// one record; records is the flattened, concatenated encoding of
	// every record. Both read and write operate on raw bytes so the
	// caller (the index codec) controls field layout and CRC framing.
	WriteCompound(path string, recordSize int, records []byte) error
	ReadCompound(path string) (recordSize int, records []byte, err error)

	WriteString(path string, data []byte, features Features) error
	ReadString(path string) ([]byte, error)

	GetAttrInt32(path, name string) (value int32, ok bool, err error)
	SetAttrInt32(path, name string, value int32) error

	CreateOpaque(path, tag string, length int64, features Features) error
	CreateChunkedOpaque(path, tag string, initial, chunk int64, features Features) error
	WriteBlock(path string, buf []byte, offset int64) error
	ReadBlock(path string, buf []byte, datasetOffset int64) (int, error)

	AddFlushable(f Flushable)
	RemoveFlushable(f Flushable)

	Close() error
	Flush() error
	IsClosed() bool
}
