package h5ar

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jhdf5io/h5ar/oscap"
	"github.com/jhdf5io/h5ar/storage/memstore"
)

func TestExtractProcessorWritesRegularFileAndSymlink(t *testing.T) {
	mem := memstore.New()
	u, _ := newTestUpdater(mem)
	attrs := LinkAttributes{LastModifiedSec: time.Now().Unix(), Uid: 1000, Gid: 1000, Permissions: 0o640}
	fileRec, err := u.ArchiveFile("/f.txt", []byte("payload"), attrs)
	if err != nil {
		t.Fatalf("ArchiveFile: %v", err)
	}
	linkRec, err := u.ArchiveSymlink("/link", "f.txt", attrs)
	if err != nil {
		t.Fatalf("ArchiveSymlink: %v", err)
	}

	destRoot := t.TempDir()
	os_ := oscap.NewFake(1000, 1000)
	proc := NewExtractProcessor("/", destRoot, mem, os_, ArchivingStrategy{}, FailFastErrorStrategy{})

	if _, err := proc.Process("/", "/f.txt", fileRec); err != nil {
		t.Fatalf("Process(file): %v", err)
	}
	got, err := os.ReadFile(filepath.Join(destRoot, "f.txt"))
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(got) != "payload" {
		t.Fatalf("extracted content = %q, want payload", got)
	}

	if _, err := proc.Process("/", "/link", linkRec); err != nil {
		t.Fatalf("Process(symlink): %v", err)
	}
	target, err := os_.ReadSymlink(filepath.Join(destRoot, "link"))
	if err != nil {
		t.Fatalf("ReadSymlink: %v", err)
	}
	if target != "f.txt" {
		t.Fatalf("symlink target = %q, want f.txt", target)
	}
}

func TestExtractProcessorSymlinkFallsBackToPlainFileWhenOSNonOperational(t *testing.T) {
	mem := memstore.New()
	u, _ := newTestUpdater(mem)
	attrs := LinkAttributes{LastModifiedSec: Unknown, Uid: Unknown, Gid: Unknown, Permissions: Unknown}
	linkRec, err := u.ArchiveSymlink("/link", "f.txt", attrs)
	if err != nil {
		t.Fatalf("ArchiveSymlink: %v", err)
	}

	destRoot := t.TempDir()
	proc := NewExtractProcessor("/", destRoot, mem, oscap.NewNonOperational(), ArchivingStrategy{}, FailFastErrorStrategy{})
	if _, err := proc.Process("/", "/link", linkRec); err != nil {
		t.Fatalf("Process(symlink, non-operational os): %v", err)
	}

	got, err := os.ReadFile(filepath.Join(destRoot, "link"))
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(got) != "f.txt" {
		t.Fatalf("fallback file content = %q, want the symlink target f.txt", got)
	}
}

func TestExtractProcessorSymlinkWithNoTargetErrorsEvenWhenNonOperational(t *testing.T) {
	mem := memstore.New()
	linkRec := LinkRecord{LinkName: "dangling", LinkType: Symlink, LastModifiedSec: Unknown, Uid: Unknown, Gid: Unknown, Permissions: Unknown}

	destRoot := t.TempDir()
	proc := NewExtractProcessor("/", destRoot, mem, oscap.NewNonOperational(), ArchivingStrategy{}, FailFastErrorStrategy{})
	if _, err := proc.Process("/", "/dangling", linkRec); err != ErrMissingLinkTarget {
		t.Fatalf("Process(symlink with no target) = %v, want ErrMissingLinkTarget", err)
	}
}

func TestExtractProcessorFlagsSizeMismatch(t *testing.T) {
	mem := memstore.New()
	u, _ := newTestUpdater(mem)
	attrs := LinkAttributes{LastModifiedSec: Unknown, Uid: Unknown, Gid: Unknown, Permissions: Unknown}
	rec, err := u.ArchiveFile("/f.txt", []byte("payload"), attrs)
	if err != nil {
		t.Fatalf("ArchiveFile: %v", err)
	}
	rec.Size = 999 // force a mismatch against the actual dataset size

	destRoot := t.TempDir()
	proc := NewExtractProcessor("/", destRoot, mem, oscap.NewNonOperational(), ArchivingStrategy{}, ContinueErrorStrategy{})
	if _, err := proc.Process("/", "/f.txt", rec); err != nil {
		t.Fatalf("Process with ContinueErrorStrategy should not abort, got: %v", err)
	}
}

func TestExtractProcessorRespectsStrategyExclusion(t *testing.T) {
	mem := memstore.New()
	u, _ := newTestUpdater(mem)
	attrs := LinkAttributes{LastModifiedSec: Unknown, Uid: Unknown, Gid: Unknown, Permissions: Unknown}
	rec, err := u.ArchiveFile("/skip.zip", []byte("x"), attrs)
	if err != nil {
		t.Fatalf("ArchiveFile: %v", err)
	}

	destRoot := t.TempDir()
	strategy := ArchivingStrategy{FileBlacklist: []string{"*.zip"}}
	proc := NewExtractProcessor("/", destRoot, mem, oscap.NewNonOperational(), strategy, FailFastErrorStrategy{})

	cont, err := proc.Process("/", "/skip.zip", rec)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if cont {
		t.Fatalf("excluded entry should report cont=false")
	}
	if _, err := os.Stat(filepath.Join(destRoot, "skip.zip")); err == nil {
		t.Fatalf("excluded entry should not have been written to disk")
	}
}
