package oscap

import (
	"testing"
	"time"
)

func TestFakeStatAndSymlink(t *testing.T) {
	f := NewFake(500, 500)
	f.SetInfo("/a", Info{LinkType: TypeRegular, Size: 10})

	info, err := f.Stat("/a", false)
	if err != nil || info.Size != 10 {
		t.Fatalf("Stat(/a) = %+v, %v", info, err)
	}

	if err := f.CreateSymlink("target", "/link"); err != nil {
		t.Fatalf("CreateSymlink: %v", err)
	}
	target, err := f.ReadSymlink("/link")
	if err != nil || target != "target" {
		t.Fatalf("ReadSymlink = %q, %v", target, err)
	}
	info, err = f.Stat("/link", false)
	if err != nil || info.LinkType != TypeSymlink || info.SymlinkTarget != "target" {
		t.Fatalf("Stat(/link) = %+v, %v", info, err)
	}
}

func TestFakeOwnershipAndMembership(t *testing.T) {
	f := NewFake(0, 0)
	f.SetMember(42, true)
	if !f.IsMemberOfGroup(42) {
		t.Fatalf("expected membership in gid 42")
	}
	if f.IsMemberOfGroup(43) {
		t.Fatalf("unexpected membership in gid 43")
	}

	if err := f.SetLinkOwner("/a", 1, 2); err != nil {
		t.Fatalf("SetLinkOwner: %v", err)
	}
	if err := f.SetAccessMode("/a", 0o755); err != nil {
		t.Fatalf("SetAccessMode: %v", err)
	}
	now := time.Now()
	if err := f.SetLinkTimestamps("/a", now, now); err != nil {
		t.Fatalf("SetLinkTimestamps: %v", err)
	}
}

func TestNonOperationalRefusesStat(t *testing.T) {
	f := NewNonOperational()
	if f.Operational() {
		t.Fatalf("NewNonOperational should report Operational() == false")
	}
	if _, err := f.Stat("/a", false); err == nil {
		t.Fatalf("Stat on a non-operational fake should fail")
	}
}
