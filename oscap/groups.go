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
	"os/user"
	"strconv"
	"sync"
)

// groupCache answers "is the current process a member of gid" without
// re-querying the user database on every extracted entry. Shaped on
// buffer.DefaultMessageProvider's get-or-fill pattern: a mutex-guarded
// list of the current user's group ids, loaded once on first use.
type groupCache struct {
	mu      sync.Mutex
	current []string // current user's group ids, loaded once
	loaded  bool
}

func newGroupCache() *groupCache {
	return &groupCache{}
}

func (c *groupCache) isMember(gid int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.loaded {
		c.current = currentUserGroupIDs()
		c.loaded = true
	}

	gidStr := strconv.Itoa(gid)
	for _, g := range c.current {
		if g == gidStr {
			return true
		}
	}
	return false
}

func currentUserGroupIDs() []string {
	u, err := user.Current()
	if err != nil {
		return nil
	}
	ids, err := u.GroupIds()
	if err != nil {
		return nil
	}
	return ids
}

func lookupUserName(uid int) (string, bool) {
	u, err := user.LookupId(strconv.Itoa(uid))
	if err != nil {
		return "", false
	}
	return u.Username, true
}

func lookupGroupName(gid int) (string, bool) {
	g, err := user.LookupGroupId(strconv.Itoa(gid))
	if err != nil {
		return "", false
	}
	return g.Name, true
}
