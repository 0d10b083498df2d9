package h5ar

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/jhdf5io/h5ar/oscap"
)

func TestVerifyProcessorDetectsMismatchesAndMissing(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "match.txt"), []byte("same"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "mismatch.txt"), []byte("different"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "extra.txt"), []byte("unexpected"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	missing := map[string]struct{}{
		filepath.Join(dir, "match.txt"):    {},
		filepath.Join(dir, "mismatch.txt"): {},
		filepath.Join(dir, "extra.txt"):    {},
		filepath.Join(dir, "absent.txt"):   {},
	}

	// The fake capability only knows what it is told: register the files
	// that exist on disk so Stat finds them.
	fakeOS := oscap.NewFake(1000, 1000)
	fakeOS.SetInfo(filepath.Join(dir, "match.txt"), oscap.Info{LinkType: oscap.TypeRegular, Size: 4})
	fakeOS.SetInfo(filepath.Join(dir, "mismatch.txt"), oscap.Info{LinkType: oscap.TypeRegular, Size: 9})
	fakeOS.SetInfo(filepath.Join(dir, "extra.txt"), oscap.Info{LinkType: oscap.TypeRegular, Size: 10})

	var results []LinkRecord
	proc := NewVerifyProcessor("/", dir, fakeOS, VerifyOptions{}, missing, func(parentPath, path string, rec LinkRecord) {
		results = append(results, rec)
	})

	crc := func(data string) uint32 {
		rec := LinkRecord{}
		proc.verifyContent(filepath.Join(dir, data), &rec)
		return rec.VerifiedCRC32
	}

	recs := map[string]LinkRecord{
		"match.txt":    {LinkName: "match.txt", LinkType: RegularFile, Size: 4, HasCRC32: true, CRC32: crc("match.txt")},
		"mismatch.txt": {LinkName: "mismatch.txt", LinkType: RegularFile, Size: 4, HasCRC32: true, CRC32: 0x1},
		"absent.txt":   {LinkName: "absent.txt", LinkType: RegularFile, Size: 1, HasCRC32: true},
	}
	for name, rec := range recs {
		if _, err := proc.Process("/", "/"+name, rec); err != nil {
			t.Fatalf("Process(%s): %v", name, err)
		}
	}

	for _, r := range results {
		switch r.LinkName {
		case "match.txt":
			if r.Status(false) != "OK" {
				t.Errorf("match.txt status = %q, want OK", r.Status(false))
			}
		case "mismatch.txt":
			if r.Status(false) == "OK" {
				t.Errorf("mismatch.txt should have failed verification")
			}
		case "absent.txt":
			if r.Status(false) != "does not exist" {
				t.Errorf("absent.txt status = %q, want %q", r.Status(false), "does not exist")
			}
		}
	}

	if _, stillMissing := missing[filepath.Join(dir, "extra.txt")]; !stillMissing {
		t.Errorf("extra.txt should remain in the missing-on-disk set")
	}
	if _, stillMissing := missing[filepath.Join(dir, "match.txt")]; stillMissing {
		t.Errorf("match.txt should have been removed from the missing-on-disk set")
	}
}
