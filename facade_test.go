package h5ar

import (
	"testing"

	"github.com/jhdf5io/h5ar/oscap"
	"github.com/jhdf5io/h5ar/storage/memstore"
)

func newTestArchive(t *testing.T) *Archive {
	t.Helper()
	mem := memstore.New()
	return NewFromCapability(mem, "/archive.h5ar", Options{
		Strategy: DefaultArchivingStrategy(),
		OS:       oscap.NewNonOperational(),
	})
}

func TestArchiveCreateAndList(t *testing.T) {
	a := newTestArchive(t)
	attrs := LinkAttributes{LastModifiedSec: Unknown, Uid: Unknown, Gid: Unknown, Permissions: Unknown}

	if _, err := a.ArchiveDirectory("/dir", attrs); err != nil {
		t.Fatalf("ArchiveDirectory: %v", err)
	}
	if _, err := a.ArchiveFile("/dir/f.txt", []byte("hi"), attrs); err != nil {
		t.Fatalf("ArchiveFile: %v", err)
	}

	var seen []string
	if err := a.List("/", true, false, false, func(parentPath, path string, rec LinkRecord) {
		seen = append(seen, path)
	}); err != nil {
		t.Fatalf("List: %v", err)
	}
	want := map[string]bool{"/": true, "/dir": true, "/dir/f.txt": true}
	if len(seen) != len(want) {
		t.Fatalf("List visited = %v", seen)
	}
	for _, p := range seen {
		if !want[p] {
			t.Errorf("unexpected path in listing: %q", p)
		}
	}

	if !a.Exists("/dir/f.txt") || !a.IsRegularFile("/dir/f.txt") {
		t.Errorf("f.txt should exist and be a regular file")
	}
	if !a.IsDirectory("/dir") {
		t.Errorf("/dir should be a directory")
	}
}

func TestArchiveSymlinkCycleDetection(t *testing.T) {
	a := newTestArchive(t)
	attrs := LinkAttributes{LastModifiedSec: Unknown, Uid: Unknown, Gid: Unknown, Permissions: Unknown}
	if _, err := a.ArchiveSymlink("/a", "b", attrs); err != nil {
		t.Fatalf("ArchiveSymlink a: %v", err)
	}
	if _, err := a.ArchiveSymlink("/b", "a", attrs); err != nil {
		t.Fatalf("ArchiveSymlink b: %v", err)
	}

	resolved, err := a.TryGetResolvedEntry("/a", false)
	if err != nil {
		t.Fatalf("TryGetResolvedEntry: %v", err)
	}
	if resolved != nil {
		t.Fatalf("cyclic symlink should resolve to nil, got %+v", resolved)
	}
}

func TestArchiveSymlinkResolvesToTarget(t *testing.T) {
	a := newTestArchive(t)
	attrs := LinkAttributes{LastModifiedSec: Unknown, Uid: Unknown, Gid: Unknown, Permissions: Unknown}
	if _, err := a.ArchiveFile("/real.txt", []byte("content"), attrs); err != nil {
		t.Fatalf("ArchiveFile: %v", err)
	}
	if _, err := a.ArchiveSymlink("/alias.txt", "real.txt", attrs); err != nil {
		t.Fatalf("ArchiveSymlink: %v", err)
	}

	resolved, err := a.TryGetResolvedEntry("/alias.txt", false)
	if err != nil || resolved == nil {
		t.Fatalf("TryGetResolvedEntry: %+v, %v", resolved, err)
	}
	if resolved.LinkName != "real.txt" || !resolved.IsRegular() {
		t.Fatalf("resolved entry = %+v, want real.txt", resolved)
	}

	keepPath, err := a.TryGetResolvedEntry("/alias.txt", true)
	if err != nil || keepPath == nil {
		t.Fatalf("TryGetResolvedEntry(keepPath): %+v, %v", keepPath, err)
	}
	if keepPath.LinkName != "alias.txt" || !keepPath.IsRegular() {
		t.Fatalf("keep-path resolved entry = %+v, want name alias.txt", keepPath)
	}
}

func TestArchiveDanglingSymlinkResolvesToNil(t *testing.T) {
	a := newTestArchive(t)
	attrs := LinkAttributes{LastModifiedSec: Unknown, Uid: Unknown, Gid: Unknown, Permissions: Unknown}
	if _, err := a.ArchiveSymlink("/dangling", "nowhere", attrs); err != nil {
		t.Fatalf("ArchiveSymlink: %v", err)
	}
	resolved, err := a.TryGetResolvedEntry("/dangling", false)
	if err != nil {
		t.Fatalf("TryGetResolvedEntry: %v", err)
	}
	if resolved != nil {
		t.Fatalf("dangling symlink should resolve to nil, got %+v", resolved)
	}
}

func TestArchiveDeletePropagatesToIndex(t *testing.T) {
	a := newTestArchive(t)
	attrs := LinkAttributes{LastModifiedSec: Unknown, Uid: Unknown, Gid: Unknown, Permissions: Unknown}
	if _, err := a.ArchiveFile("/f.txt", []byte("x"), attrs); err != nil {
		t.Fatalf("ArchiveFile: %v", err)
	}
	if !a.Exists("/f.txt") {
		t.Fatalf("f.txt should exist before delete")
	}
	if err := a.Delete([]string{"/f.txt"}, nil); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if a.Exists("/f.txt") {
		t.Fatalf("f.txt should be gone after delete")
	}
}

func TestArchiveCloseFlushesBeforeClosing(t *testing.T) {
	mem := memstore.New()
	a := Open2ForTest(mem, "/archive.h5ar")
	attrs := LinkAttributes{LastModifiedSec: Unknown, Uid: Unknown, Gid: Unknown, Permissions: Unknown}
	if _, err := a.ArchiveFile("/f.txt", []byte("x"), attrs); err != nil {
		t.Fatalf("ArchiveFile: %v", err)
	}
	if err := a.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if !mem.Exists(indexDatasetPath("/", "")) {
		t.Fatalf("Close should have flushed the dirty root index before closing")
	}
	if !mem.IsClosed() {
		t.Fatalf("Close should close a self-opened storage handle")
	}
}

// Open2ForTest builds an Archive that owns (and will Close) the given
// storage handle, mirroring what Open does without going through the
// real HDF5 library.
func Open2ForTest(mem *memstore.Store, path string) *Archive {
	a := NewFromCapability(mem, path, Options{Strategy: DefaultArchivingStrategy(), OS: oscap.NewNonOperational()})
	a.closeStorageOnClose = true
	return a
}
