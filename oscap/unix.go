//go:build linux || darwin

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
	"os"
	"time"

	"golang.org/x/sys/unix"
)

// unixCapability is the real, syscall-backed Capability implementation.
type unixCapability struct {
	uid    int
	gid    int
	groups *groupCache
}

// NewUnix returns a Capability backed by golang.org/x/sys/unix. Always
// operational on the platforms this file builds for.
func NewUnix() Capability {
	return &unixCapability{
		uid:    os.Getuid(),
		gid:    os.Getgid(),
		groups: newGroupCache(),
	}
}

func (u *unixCapability) Operational() bool { return true }
func (u *unixCapability) Uid() int          { return u.uid }
func (u *unixCapability) Gid() int          { return u.gid }

func convertMode(mode uint32) LinkType {
	switch mode & unix.S_IFMT {
	case unix.S_IFDIR:
		return TypeDirectory
	case unix.S_IFLNK:
		return TypeSymlink
	case unix.S_IFREG:
		return TypeRegular
	default:
		return TypeOther
	}
}

func (u *unixCapability) Stat(path string, followSymlinks bool) (Info, error) {
	var st unix.Stat_t
	var err error
	if followSymlinks {
		err = unix.Stat(path, &st)
	} else {
		err = unix.Lstat(path, &st)
	}
	if err != nil {
		return Info{}, fmt.Errorf("oscap: stat %q: %w", path, err)
	}

	info := Info{
		LinkType:    convertMode(st.Mode),
		Size:        st.Size,
		ModTime:     time.Unix(st.Mtim.Sec, st.Mtim.Nsec),
		Uid:         int(st.Uid),
		Gid:         int(st.Gid),
		Permissions: st.Mode & 0o7777,
	}
	if info.LinkType == TypeSymlink {
		target, err := u.ReadSymlink(path)
		if err == nil {
			info.SymlinkTarget = target
		}
	}
	return info, nil
}

func (u *unixCapability) ReadSymlink(path string) (string, error) {
	buf := make([]byte, 1024)
	for {
		n, err := unix.Readlink(path, buf)
		if err != nil {
			return "", fmt.Errorf("oscap: readlink %q: %w", path, err)
		}
		if n < len(buf) {
			return string(buf[:n]), nil
		}
		buf = make([]byte, len(buf)*2)
	}
}

func (u *unixCapability) CreateSymlink(target, path string) error {
	if err := unix.Symlink(target, path); err != nil {
		return fmt.Errorf("oscap: symlink %q -> %q: %w", path, target, err)
	}
	return nil
}

func (u *unixCapability) SetLinkTimestamps(path string, atime, mtime time.Time) error {
	ts := []unix.Timespec{
		unix.NsecToTimespec(atime.UnixNano()),
		unix.NsecToTimespec(mtime.UnixNano()),
	}
	if err := unix.UtimesNanoAt(unix.AT_FDCWD, path, ts, unix.AT_SYMLINK_NOFOLLOW); err != nil {
		return fmt.Errorf("oscap: set timestamps %q: %w", path, err)
	}
	return nil
}

func (u *unixCapability) SetAccessMode(path string, mode uint32) error {
	if err := unix.Chmod(path, mode); err != nil {
		return fmt.Errorf("oscap: chmod %q: %w", path, err)
	}
	return nil
}

func (u *unixCapability) SetLinkOwner(path string, uid, gid int) error {
	if err := unix.Lchown(path, uid, gid); err != nil {
		return fmt.Errorf("oscap: lchown %q: %w", path, err)
	}
	return nil
}

func (u *unixCapability) UserByUid(uid int) (string, bool) {
	return lookupUserName(uid)
}

func (u *unixCapability) GroupByGid(gid int) (string, bool) {
	return lookupGroupName(gid)
}

func (u *unixCapability) IsMemberOfGroup(gid int) bool {
	return u.groups.isMember(gid)
}
