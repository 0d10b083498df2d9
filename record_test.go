package h5ar

import "testing"

func TestLinkRecordCompleteness(t *testing.T) {
	base := LinkRecord{LastModifiedSec: Unknown, Uid: Unknown, Gid: Unknown, Permissions: Unknown}
	if got := base.Completeness(); got != Base {
		t.Errorf("Completeness() = %v, want Base", got)
	}

	withMTime := base
	withMTime.LastModifiedSec = 1000
	if got := withMTime.Completeness(); got != LastModified {
		t.Errorf("Completeness() = %v, want LastModified", got)
	}

	full := withMTime
	full.Uid, full.Gid, full.Permissions = 0, 0, 0o644
	if got := full.Completeness(); got != Full {
		t.Errorf("Completeness() = %v, want Full", got)
	}
}

func TestLinkRecordStatusAndVerification(t *testing.T) {
	var r LinkRecord
	if got := r.Status(false); got != "OK" {
		t.Errorf("fresh record Status() = %q, want OK", got)
	}

	r.setStatus("WRONG SIZE")
	r.setStatus("WRONG CRC32")
	if got := r.Status(false); got != "WRONG SIZE; WRONG CRC32" {
		t.Errorf("Status() = %q", got)
	}

	r.VerifiedTypeSet = true
	r.VerifiedCRC32Set = true
	r.ResetVerification()
	if r.VerifiedTypeSet || r.VerifiedCRC32Set || r.Status(false) != "OK" {
		t.Errorf("ResetVerification did not clear transient state: %+v", r)
	}
}

func TestLinkTypePredicates(t *testing.T) {
	d := LinkRecord{LinkType: Directory}
	f := LinkRecord{LinkType: RegularFile}
	s := LinkRecord{LinkType: Symlink}

	if !d.IsDirectory() || d.IsRegular() || d.IsSymlink() {
		t.Errorf("directory predicates wrong: %+v", d)
	}
	if !f.IsRegular() || f.IsDirectory() || f.IsSymlink() {
		t.Errorf("regular file predicates wrong: %+v", f)
	}
	if !s.IsSymlink() || s.IsDirectory() || s.IsRegular() {
		t.Errorf("symlink predicates wrong: %+v", s)
	}
}

func TestPropagatedDirectoryRecord(t *testing.T) {
	attrs := LinkAttributes{Uid: 1, Gid: 2, Permissions: 0o755, LastModifiedSec: 42}
	rec := propagatedDirectoryRecord("sub", attrs)
	if rec.LinkName != "sub" || !rec.IsDirectory() || rec.Size != Unknown {
		t.Fatalf("unexpected record: %+v", rec)
	}
	if rec.Uid != 1 || rec.Gid != 2 || rec.Permissions != 0o755 || rec.LastModifiedSec != 42 {
		t.Fatalf("attrs not carried through: %+v", rec)
	}
	if rec.HasCRC32 {
		t.Fatalf("directory record must not carry a CRC32")
	}
}
