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

// Package oscap abstracts the UNIX system calls the archive engine uses
// to inspect and restore filesystem metadata (spec §6.2), so that the
// engine can be tested against a fake, non-operational environment
// instead of the real OS (spec §9 "Global state").
package oscap

import "time"

// LinkType mirrors h5ar.FileLinkType without importing the root
// package, to avoid a dependency cycle (the root package imports
// oscap, not the reverse).
type LinkType int

const (
	TypeDirectory LinkType = iota
	TypeRegular
	TypeSymlink
	TypeOther
)

// Info is the result of a Stat call.
type Info struct {
	LinkType       LinkType
	Size           int64
	ModTime        time.Time
	Uid            int
	Gid            int
	Permissions    uint32
	SymlinkTarget  string
}

// Capability is the set of OS operations the archive engine consumes.
// A non-operational Capability (Operational() == false) represents a
// host with no UNIX semantics; archive/extract/verify code must degrade
// gracefully rather than call any other method.
type Capability interface {
	Operational() bool

	Uid() int
	Gid() int

	Stat(path string, followSymlinks bool) (Info, error)
	ReadSymlink(path string) (string, error)
	CreateSymlink(target, path string) error

	SetLinkTimestamps(path string, atime, mtime time.Time) error
	SetAccessMode(path string, mode uint32) error
	SetLinkOwner(path string, uid, gid int) error

	UserByUid(uid int) (name string, ok bool)
	GroupByGid(gid int) (name string, ok bool)

	// IsMemberOfGroup reports whether the current process user belongs
	// to gid, consulting a cached list of the user's group ids (spec
	// §4.9 attribute restoration).
	IsMemberOfGroup(gid int) bool
}
