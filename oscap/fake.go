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

package oscap

import (
	"fmt"
	"sync"
	"time"
)

// Fake is an in-memory Capability for tests, including a
// non-operational mode that exercises the "no UNIX calls" degradation
// path (spec §9 "Global state" / "inject a capability trait").
type Fake struct {
	mu           sync.Mutex
	operational  bool
	uid, gid     int
	infos        map[string]Info
	symlinks     map[string]string
	timestamps   map[string][2]time.Time
	modes        map[string]uint32
	owners       map[string][2]int
	users        map[int]string
	groupNames   map[int]string
	memberOf     map[int]bool
}

// NewFake returns an operational fake with the given process uid/gid.
func NewFake(uid, gid int) *Fake {
	return &Fake{
		operational: true,
		uid:         uid,
		gid:         gid,
		infos:       map[string]Info{},
		symlinks:    map[string]string{},
		timestamps:  map[string][2]time.Time{},
		modes:       map[string]uint32{},
		owners:      map[string][2]int{},
		users:       map[int]string{},
		groupNames:  map[int]string{},
		memberOf:    map[int]bool{},
	}
}

// NewNonOperational returns a Capability modeling a host with no UNIX
// system calls available: Operational reports false, Stat and
// ReadSymlink fail, lookups report not found and Uid/Gid return 0. Its
// maps are never allocated, so the mutating methods panic if called.
func NewNonOperational() Capability {
	return &Fake{operational: false}
}

func (f *Fake) Operational() bool { return f.operational }
func (f *Fake) Uid() int          { return f.uid }
func (f *Fake) Gid() int          { return f.gid }

func (f *Fake) SetInfo(path string, info Info) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.infos[path] = info
}

func (f *Fake) SetMember(gid int, member bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.memberOf[gid] = member
}

func (f *Fake) Stat(path string, followSymlinks bool) (Info, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	info, ok := f.infos[path]
	if !ok {
		return Info{}, fmt.Errorf("oscap: fake stat %q: not found", path)
	}
	return info, nil
}

func (f *Fake) ReadSymlink(path string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	target, ok := f.symlinks[path]
	if !ok {
		return "", fmt.Errorf("oscap: fake readlink %q: not found", path)
	}
	return target, nil
}

func (f *Fake) CreateSymlink(target, path string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.symlinks[path] = target
	info := f.infos[path]
	info.LinkType = TypeSymlink
	info.SymlinkTarget = target
	f.infos[path] = info
	return nil
}

func (f *Fake) SetLinkTimestamps(path string, atime, mtime time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.timestamps[path] = [2]time.Time{atime, mtime}
	return nil
}

func (f *Fake) SetAccessMode(path string, mode uint32) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.modes[path] = mode
	return nil
}

func (f *Fake) SetLinkOwner(path string, uid, gid int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.owners[path] = [2]int{uid, gid}
	return nil
}

func (f *Fake) UserByUid(uid int) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	name, ok := f.users[uid]
	return name, ok
}

func (f *Fake) GroupByGid(gid int) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	name, ok := f.groupNames[gid]
	return name, ok
}

func (f *Fake) IsMemberOfGroup(gid int) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.memberOf[gid]
}
