package h5ar

import (
	"testing"

	"github.com/jhdf5io/h5ar/storage/memstore"
)

func TestDeleterRemovesEntryAndIndexRecord(t *testing.T) {
	mem := memstore.New()
	u, provider := newTestUpdater(mem)
	if _, err := u.ArchiveFile("/f.txt", []byte("hi"), LinkAttributes{LastModifiedSec: Unknown, Uid: Unknown, Gid: Unknown, Permissions: Unknown}); err != nil {
		t.Fatalf("ArchiveFile: %v", err)
	}

	d := NewDeleter(mem, provider, FailFastErrorStrategy{})
	var deleted []string
	if err := d.Delete([]string{"/f.txt"}, func(p string) { deleted = append(deleted, p) }); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if len(deleted) != 1 || deleted[0] != "/f.txt" {
		t.Fatalf("onDeleted callback = %v", deleted)
	}

	if mem.Exists("/f.txt") {
		t.Fatalf("dataset should be gone from storage")
	}
	idx, _ := provider.Get("/", false)
	if _, ok := idx.Store().TryGet("f.txt"); ok {
		t.Fatalf("parent index should no longer list f.txt")
	}
}

func TestDeleterContinuesPastMissingEntry(t *testing.T) {
	mem := memstore.New()
	u, provider := newTestUpdater(mem)
	if _, err := u.ArchiveFile("/f.txt", []byte("hi"), LinkAttributes{LastModifiedSec: Unknown, Uid: Unknown, Gid: Unknown, Permissions: Unknown}); err != nil {
		t.Fatalf("ArchiveFile: %v", err)
	}

	d := NewDeleter(mem, provider, ContinueErrorStrategy{})
	var deleted []string
	err := d.Delete([]string{"/missing.txt", "/f.txt"}, func(p string) { deleted = append(deleted, p) })
	if err != nil {
		t.Fatalf("Delete with ContinueErrorStrategy should not abort, got: %v", err)
	}
	if len(deleted) != 1 || deleted[0] != "/f.txt" {
		t.Fatalf("expected only f.txt to be deleted, got %v", deleted)
	}
}

func TestDeleterOnReadOnlyStorageFails(t *testing.T) {
	mem := memstore.New()
	u, _ := newTestUpdater(mem)
	if _, err := u.ArchiveFile("/f.txt", []byte("hi"), LinkAttributes{LastModifiedSec: Unknown, Uid: Unknown, Gid: Unknown, Permissions: Unknown}); err != nil {
		t.Fatalf("ArchiveFile: %v", err)
	}

	ro := memstore.NewReadOnly(mem)
	provider := NewIndexProvider(ro, "", FailFastErrorStrategy{})
	d := NewDeleter(ro, provider, FailFastErrorStrategy{})
	if err := d.Delete([]string{"/f.txt"}, nil); err == nil {
		t.Fatalf("Delete on read-only storage should fail")
	}
}
