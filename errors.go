package h5ar

import "errors"

// Sentinel errors surfaced by the archive engine. Callers may test for
// these with errors.Is; the error strategy (see strategy.go) decides
// whether they propagate or are logged and swallowed.
var (
	// ErrNotFound is returned when a path has no corresponding entry in
	// the archive.
	ErrNotFound = errors.New("h5ar: object not found")

	// ErrNoName is returned when a path cannot be split into a parent
	// group and a leaf name (e.g. the empty path used anywhere but as
	// the archive root).
	ErrNoName = errors.New("h5ar: path has no name")

	// ErrChecksumMismatch is returned when an index dataset's CRC32
	// attribute does not match either the field-by-field or legacy
	// whole-buffer digest of its payload.
	ErrChecksumMismatch = errors.New("h5ar: index checksum mismatch")

	// ErrSymlinkCycle names a symlink target chain that loops back on
	// itself. Archive's symlink resolution does not return it: a cycle
	// is reported as a nil result with a nil error.
	ErrSymlinkCycle = errors.New("h5ar: symlink cycle")

	// ErrMissingLinkTarget is returned when a symlink record has no
	// target, which should never happen for an entry with LinkType ==
	// Symlink.
	ErrMissingLinkTarget = errors.New("h5ar: symlink record has no target")
)
