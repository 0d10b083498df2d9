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

// Package h5ar implements a filesystem-style archive format layered on top
// of an HDF5 container: directories become groups, regular files become
// tagged opaque datasets, symlinks become soft links, and every group
// carries a CRC32-guarded index of its children's UNIX-style metadata.
//
// The package is organized leaves-first:
//
//   - LinkRecord (record.go) is the per-entry metadata value type.
//   - LinkStore (linkstore.go) is a per-directory collection of records.
//   - DirectoryIndex (index.go) serializes one LinkStore to/from the two
//     HDF5 datasets that make up a group's on-disk index.
//   - IndexProvider (provider.go) caches DirectoryIndex values by group
//     path.
//   - Updater (updater.go) and Deleter (deleter.go) mutate the archive.
//   - Traverser (traverser.go) walks the archive depth-first, delegating
//     to a Processor (list.go, verify.go, extract.go).
//   - Archive (facade.go) ties all of the above to one storage handle and
//     exposes the top-level operations.
//
// The HDF5 container itself and the host's UNIX metadata calls (stat,
// symlinks, ownership, mode, timestamps) are treated as external
// capabilities, abstracted by the storage and oscap packages
// respectively. This package never talks to HDF5 directly; it does use
// package os directly to read and write file content and to create and
// remove directories and files.
package h5ar
