package h5ar

import "strings"

// normalizeArchivePath maps the empty path to the root path "/" and
// strips any trailing slash (except for the root itself), per spec §4.3.
func normalizeArchivePath(p string) string {
	if p == "" {
		return "/"
	}
	if len(p) > 1 && strings.HasSuffix(p, "/") {
		p = strings.TrimRight(p, "/")
		if p == "" {
			p = "/"
		}
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return p
}

// splitArchivePath splits a normalized path into its parent group path
// and leaf name. The root path has no name; callers must special-case
// it (ErrNoName).
func splitArchivePath(p string) (parent, name string, err error) {
	p = normalizeArchivePath(p)
	if p == "/" {
		return "", "", ErrNoName
	}
	idx := strings.LastIndex(p, "/")
	name = p[idx+1:]
	if idx == 0 {
		parent = "/"
	} else {
		parent = p[:idx]
	}
	return parent, name, nil
}

// joinArchivePath joins a parent group path and a leaf name into a
// normalized child path.
func joinArchivePath(parent, name string) string {
	if parent == "/" {
		return "/" + name
	}
	return parent + "/" + name
}
