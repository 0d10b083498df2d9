package h5ar

import "fmt"

// Unknown is the sentinel value for optional integer fields (Size,
// LastModified, Permissions, Uid, Gid) that were not available when the
// record was created.
const Unknown = -1

// FileLinkType classifies the kind of object a LinkRecord describes.
type FileLinkType int32

const (
	Directory FileLinkType = iota
	RegularFile
	Symlink
	Other
)

func (t FileLinkType) String() string {
	switch t {
	case Directory:
		return "DIRECTORY"
	case RegularFile:
		return "REGULAR_FILE"
	case Symlink:
		return "SYMLINK"
	default:
		return "OTHER"
	}
}

// Completeness describes which optional attributes a record carries. It
// is derived from the record's fields, never stored directly.
type Completeness int

const (
	// Base: no last-modified time.
	Base Completeness = iota
	// LastModified: mtime present, but permissions, uid or gid absent.
	LastModified
	// Full: every optional attribute present.
	Full
)

func (c Completeness) String() string {
	switch c {
	case Base:
		return "BASE"
	case LastModified:
		return "LAST_MODIFIED"
	default:
		return "FULL"
	}
}

// LinkRecord is one entry in a directory's index: the metadata for
// exactly one child of that directory.
type LinkRecord struct {
	LinkName string
	LinkType FileLinkType

	// Size is the byte length of a regular file's content, or Unknown
	// for any other link type or when unavailable.
	Size int64

	// LastModifiedSec is seconds since the UNIX epoch, or Unknown.
	LastModifiedSec int64

	// Uid and Gid are ownership ids, or Unknown.
	Uid int64
	Gid int64

	// Permissions holds the low 16 bits of a UNIX mode, or Unknown.
	Permissions int32

	// CRC32 is the IEEE CRC32 of the file's content. Only meaningful
	// when HasCRC32 is set.
	CRC32    uint32
	HasCRC32 bool

	// LinkTarget is the symlink destination. Only meaningful when
	// LinkType == Symlink.
	LinkTarget string

	// Transient verification fields, populated by list-with-test,
	// verify, or extract. VerifiedTypeSet/VerifiedCRC32Set distinguish
	// "not yet checked" from a checked-and-zero value.
	VerifiedType             FileLinkType
	VerifiedTypeSet          bool
	VerifiedSize             int64
	VerifiedCRC32            uint32
	VerifiedCRC32Set         bool
	VerifiedLastModifiedSec  int64
	VerifiedLastModifiedSet  bool

	// status carries a human-readable verification/list failure, if
	// any. Empty means OK.
	status string
}

// Clone returns a deep copy (LinkRecord has no reference fields besides
// strings, which are immutable, so this is a plain value copy).
func (r LinkRecord) Clone() LinkRecord {
	return r
}

// ResetVerification clears all transient verification fields and the
// status string, as required before a fresh traversal (spec: LinkStore
// iteration contract).
func (r *LinkRecord) ResetVerification() {
	r.VerifiedType = 0
	r.VerifiedTypeSet = false
	r.VerifiedSize = 0
	r.VerifiedCRC32 = 0
	r.VerifiedCRC32Set = false
	r.VerifiedLastModifiedSec = 0
	r.VerifiedLastModifiedSet = false
	r.status = ""
}

// Completeness derives which optional attributes this record carries.
func (r LinkRecord) Completeness() Completeness {
	if r.LastModifiedSec == Unknown {
		return Base
	}
	if r.Permissions == Unknown || r.Uid == Unknown || r.Gid == Unknown {
		return LastModified
	}
	return Full
}

func (r LinkRecord) IsDirectory() bool { return r.LinkType == Directory }
func (r LinkRecord) IsSymlink() bool   { return r.LinkType == Symlink }
func (r LinkRecord) IsRegular() bool   { return r.LinkType == RegularFile }

// setStatus appends a failure reason; multiple calls accumulate,
// separated by "; ", matching the "ERROR: <msg>" / "WRONG ..." status
// vocabulary from the error-handling design.
func (r *LinkRecord) setStatus(kind string) {
	if r.status == "" {
		r.status = kind
		return
	}
	r.status = r.status + "; " + kind
}

// Status returns the entry's verification status: "OK" if nothing was
// flagged, otherwise the accumulated failure description. When verbose
// is true the numeric uid/gid and permissions are appended.
func (r LinkRecord) Status(verbose bool) string {
	s := r.status
	if s == "" {
		s = "OK"
	}
	if verbose {
		s = fmt.Sprintf("%s (uid=%d gid=%d mode=%o)", s, r.Uid, r.Gid, r.Permissions)
	}
	return s
}

// LinkAttributes is the subset of LinkRecord that callers supply when
// archiving a new entry; size, CRC32 and link type are derived by the
// updater from the actual content being written.
type LinkAttributes struct {
	Uid             int64
	Gid             int64
	Permissions     int32
	LastModifiedSec int64
}

// propagatedDirectoryRecord builds a directory record from attrs: only
// name/uid/gid/mtime/permissions are set, Size is Unknown and no CRC32
// is carried. Updater.propagate does not use it: ancestor records keep
// their own uid/gid/permissions and only have their mtime restamped
// from the updater's clock; the leaf's attributes are not passed up.
func propagatedDirectoryRecord(name string, attrs LinkAttributes) LinkRecord {
	return LinkRecord{
		LinkName:        name,
		LinkType:        Directory,
		Size:            Unknown,
		LastModifiedSec: attrs.LastModifiedSec,
		Uid:             attrs.Uid,
		Gid:             attrs.Gid,
		Permissions:     attrs.Permissions,
		CRC32:           0,
		HasCRC32:        false,
	}
}
