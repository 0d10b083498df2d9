package memstore

import (
	"bytes"
	"testing"

	"github.com/jhdf5io/h5ar/storage"
)

func TestStoreGroupAndDatasetLifecycle(t *testing.T) {
	s := New()
	if err := s.CreateGroup("/dir", 0); err != nil {
		t.Fatalf("CreateGroup: %v", err)
	}
	if !s.IsGroup("/dir", false) {
		t.Fatalf("/dir should be a group")
	}

	if err := s.CreateChunkedOpaque("/dir/f", "FILE", 0, 8, storage.GenericDeflate); err != nil {
		t.Fatalf("CreateChunkedOpaque: %v", err)
	}
	if err := s.WriteBlock("/dir/f", []byte("hello"), 0); err != nil {
		t.Fatalf("WriteBlock: %v", err)
	}
	if err := s.WriteBlock("/dir/f", []byte("!"), 5); err != nil {
		t.Fatalf("WriteBlock: %v", err)
	}

	buf := make([]byte, 16)
	n, err := s.ReadBlock("/dir/f", buf, 0)
	if err != nil || !bytes.Equal(buf[:n], []byte("hello!")) {
		t.Fatalf("ReadBlock = %q (%d), %v", buf[:n], n, err)
	}

	members, err := s.GetGroupMembers("/dir", false)
	if err != nil || len(members) != 1 || members[0].Name != "f" {
		t.Fatalf("GetGroupMembers = %+v, %v", members, err)
	}

	if err := s.Delete("/dir/f"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if s.Exists("/dir/f") {
		t.Fatalf("/dir/f should be gone after Delete")
	}
}

func TestStoreAttributesAndCompound(t *testing.T) {
	s := New()
	if err := s.WriteCompound("/idx", 40, make([]byte, 80)); err != nil {
		t.Fatalf("WriteCompound: %v", err)
	}
	if err := s.SetAttrInt32("/idx", "CRC32", 12345); err != nil {
		t.Fatalf("SetAttrInt32: %v", err)
	}
	v, ok, err := s.GetAttrInt32("/idx", "CRC32")
	if err != nil || !ok || v != 12345 {
		t.Fatalf("GetAttrInt32 = %d, %v, %v", v, ok, err)
	}

	recSize, records, err := s.ReadCompound("/idx")
	if err != nil || recSize != 40 || len(records) != 80 {
		t.Fatalf("ReadCompound = %d, %d bytes, %v", recSize, len(records), err)
	}
}

func TestStoreReadOnlyRejectsWrites(t *testing.T) {
	s := New()
	s.CreateGroup("/dir", 0)
	ro := NewReadOnly(s)

	if !ro.ReadOnly() {
		t.Fatalf("NewReadOnly should produce a read-only store")
	}
	if err := ro.CreateGroup("/other", 0); err != storage.ErrReadOnly {
		t.Fatalf("CreateGroup on read-only store = %v, want ErrReadOnly", err)
	}
	if !ro.IsGroup("/dir", false) {
		t.Fatalf("read-only clone should still see entries copied from the source")
	}
}

func TestStoreFlushablesInvokedOnFlush(t *testing.T) {
	s := New()
	f := &countingFlushable{}
	s.AddFlushable(f)
	s.AddFlushable(f) // duplicate add must be a no-op
	if err := s.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if f.called != 1 {
		t.Fatalf("flushable invoked %d times, want 1", f.called)
	}

	s.RemoveFlushable(f)
	if err := s.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if f.called != 1 {
		t.Fatalf("flushable invoked after removal, count = %d", f.called)
	}
}

// countingFlushable is a pointer-identity Flushable, matching how the
// only real implementation (a *h5ar.StreamWriter) registers itself —
// storage.Capability keys its flushable set by pointer identity, which
// requires a comparable, hashable dynamic type.
type countingFlushable struct{ called int }

func (f *countingFlushable) Flush() error { f.called++; return nil }
