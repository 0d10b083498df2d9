package h5ar

import "testing"

func TestArchivingStrategyShouldCompress(t *testing.T) {
	nothing := ArchivingStrategy{Compression: CompressNothing}
	if nothing.ShouldCompress("/a.txt") {
		t.Errorf("CompressNothing should never compress")
	}

	all := ArchivingStrategy{Compression: CompressAll}
	if !all.ShouldCompress("/a.zip") {
		t.Errorf("CompressAll should always compress")
	}

	lists := DefaultArchivingStrategy()
	if lists.ShouldCompress("/archive.zip") {
		t.Errorf("*.zip is blacklisted, should not compress")
	}
	if !lists.ShouldCompress("/notes.txt") {
		t.Errorf("plain file should compress under the default blacklist-only policy")
	}
}

func TestArchivingStrategyShouldInclude(t *testing.T) {
	s := ArchivingStrategy{
		FileWhitelist: []string{"*.go"},
		FileBlacklist: []string{"*_generated.go"},
		DirBlacklist:  []string{".git"},
	}
	if !s.ShouldInclude("/main.go", false) {
		t.Errorf("main.go should be included")
	}
	if s.ShouldInclude("/foo_generated.go", false) {
		t.Errorf("foo_generated.go is blacklisted")
	}
	if s.ShouldInclude("/README.md", false) {
		t.Errorf("README.md is not on the whitelist")
	}
	if s.ShouldInclude("/.git", true) {
		t.Errorf(".git directory is blacklisted")
	}
	if !s.ShouldInclude("/src", true) {
		t.Errorf("directories with no whitelist should be included by default")
	}
	if !s.ShouldInclude("/main_test.go", false) {
		t.Errorf("main_test.go should match the *.go whitelist and not the *_generated.go blacklist")
	}
}

func TestErrorStrategies(t *testing.T) {
	if err := (FailFastErrorStrategy{}).Handle(ErrNotFound); err != ErrNotFound {
		t.Errorf("FailFastErrorStrategy should re-throw, got %v", err)
	}
	if err := (ContinueErrorStrategy{}).Handle(ErrNotFound); err != nil {
		t.Errorf("ContinueErrorStrategy should swallow, got %v", err)
	}
}
