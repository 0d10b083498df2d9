package h5ar

import (
	"fmt"
	"os"
	"path"
	"strings"

	"github.com/jacobsa/timeutil"
	"github.com/jhdf5io/h5ar/oscap"
	"github.com/jhdf5io/h5ar/storage"
	"github.com/jhdf5io/h5ar/storage/hdf5"
)

// Options configures an Archive (spec §6, §7). Zero values take the
// documented defaults: FailFastErrorStrategy, a real clock, and a real
// oscap.Capability. Strategy is used as given; its zero value
// compresses nothing and includes everything, so callers that want
// DefaultArchivingStrategy pass it explicitly.
type Options struct {
	Suffix             string
	BufferSize         int64
	ImmediateGroupOnly bool
	Strategy           ArchivingStrategy
	ErrorStrategy      ErrorStrategy
	OS                 oscap.Capability
	Clock              timeutil.Clock
}

// Archive is the top-level facade (spec §2 C9): it owns the storage
// handle and wires together the IndexProvider, Updater, Deleter and
// Traverser that do the actual work. It is the only type most callers
// need.
type Archive struct {
	path    string
	storage storage.Capability
	closeStorageOnClose bool

	provider  *IndexProvider
	updater   *Updater
	deleter   *Deleter
	traverser *Traverser
	os        oscap.Capability
	strategy  ArchivingStrategy
	errStrat  ErrorStrategy
}

func resolveOptions(opt Options) (oscap.Capability, ErrorStrategy) {
	os_ := opt.OS
	if os_ == nil {
		os_ = oscap.NewUnix()
	}
	errStrat := opt.ErrorStrategy
	if errStrat == nil {
		errStrat = FailFastErrorStrategy{}
	}
	return os_, errStrat
}

func newArchive(storageCap storage.Capability, closeStorageOnClose bool, archivePath string, opt Options) *Archive {
	os_, errStrat := resolveOptions(opt)
	provider := NewIndexProvider(storageCap, opt.Suffix, errStrat)
	return &Archive{
		path:                archivePath,
		storage:             storageCap,
		closeStorageOnClose: closeStorageOnClose,
		provider:            provider,
		updater: NewUpdater(storageCap, provider, UpdaterOptions{
			Suffix:             opt.Suffix,
			BufferSize:         opt.BufferSize,
			ImmediateGroupOnly: opt.ImmediateGroupOnly,
			Strategy:           opt.Strategy,
			Clock:              opt.Clock,
			ErrorStrategy:      errStrat,
		}),
		deleter:   NewDeleter(storageCap, provider, errStrat),
		traverser: NewTraverser(provider),
		os:        os_,
		strategy:  opt.Strategy,
		errStrat:  errStrat,
	}
}

// Open opens (creating if absent) an archive file for reading and
// writing.
func Open(archivePath string, opt Options) (*Archive, error) {
	cap_, err := hdf5.OpenForWriting(archivePath, hdf5.Options{
		HousekeepingNameSuffix: opt.Suffix,
	})
	if err != nil {
		return nil, err
	}
	return newArchive(cap_, true, archivePath, opt), nil
}

// OpenReadOnly opens an existing archive file for reading only.
func OpenReadOnly(archivePath string, opt Options) (*Archive, error) {
	cap_, err := hdf5.OpenForReading(archivePath)
	if err != nil {
		return nil, err
	}
	return newArchive(cap_, true, archivePath, opt), nil
}

// NewFromCapability wraps an already-open storage.Capability (e.g. one
// the caller opened directly against scigolib/hdf5 for options this
// package doesn't expose). The Archive never closes a capability it
// did not open itself.
func NewFromCapability(storageCap storage.Capability, archivePath string, opt Options) *Archive {
	return newArchive(storageCap, false, archivePath, opt)
}

// rootEntry synthesizes the record for "/" (spec §4.3 "Root entry"):
// the archive's own filesystem attributes if the host is operational,
// otherwise all-Unknown fields.
func (a *Archive) rootEntry() LinkRecord {
	rec := LinkRecord{LinkName: "", LinkType: Directory, Size: Unknown, LastModifiedSec: Unknown, Uid: Unknown, Gid: Unknown, Permissions: Unknown}
	if !a.os.Operational() {
		return rec
	}
	info, err := a.os.Stat(a.path, true)
	if err != nil {
		return rec
	}
	rec.LastModifiedSec = info.ModTime.Unix()
	rec.Uid = int64(info.Uid)
	rec.Gid = int64(info.Gid)
	rec.Permissions = int32(info.Permissions)
	return rec
}

// TryGetEntry returns the record for path, if one exists. readLinkTarget
// requests that a symlink's target be populated, at the cost of an
// extra storage round trip the first time a given group is loaded.
func (a *Archive) TryGetEntry(p string, readLinkTarget bool) (LinkRecord, bool, error) {
	p = normalizeArchivePath(p)
	if p == "/" {
		return a.rootEntry(), true, nil
	}
	parent, name, err := splitArchivePath(p)
	if err != nil {
		return LinkRecord{}, false, err
	}
	idx, err := a.provider.Get(parent, readLinkTarget)
	if err != nil {
		return LinkRecord{}, false, nil
	}
	rec, ok := idx.Store().TryGet(name)
	return rec, ok, nil
}

// Exists reports whether path has a corresponding entry.
func (a *Archive) Exists(p string) bool {
	_, ok, err := a.TryGetEntry(p, false)
	return err == nil && ok
}

func (a *Archive) linkTypeOf(p string) (FileLinkType, bool) {
	rec, ok, err := a.TryGetEntry(p, false)
	if err != nil || !ok {
		return 0, false
	}
	return rec.LinkType, true
}

// IsDirectory reports whether path exists and is a directory.
func (a *Archive) IsDirectory(p string) bool { t, ok := a.linkTypeOf(p); return ok && t == Directory }

// IsRegularFile reports whether path exists and is a regular file.
func (a *Archive) IsRegularFile(p string) bool { t, ok := a.linkTypeOf(p); return ok && t == RegularFile }

// IsSymlink reports whether path exists and is a symlink (unresolved).
func (a *Archive) IsSymlink(p string) bool { t, ok := a.linkTypeOf(p); return ok && t == Symlink }

// resolveRelative resolves a symlink target against the group path it
// was found in, per spec §4.6: an absolute target is resolved from the
// archive root; a relative target is resolved relative to its
// containing directory.
func resolveRelative(parentPath, target string) string {
	if strings.HasPrefix(target, "/") {
		return normalizeArchivePath(path.Clean(target))
	}
	return normalizeArchivePath(path.Clean(parentPath + "/" + target))
}

// resolve follows a chain of symlinks starting at entry (found in
// parentPath), detecting cycles (spec §4.6 "Cycle avoidance"). It
// returns (nil, nil) for a dangling target, a target whose group index
// cannot be loaded, or a detected cycle — all "could not resolve", not
// hard errors — and a non-nil error for a symlink record with no
// target (ErrMissingLinkTarget) or a target path that cannot be split.
func (a *Archive) resolve(entry LinkRecord, parentPath string) (*LinkRecord, error) {
	visited := make(map[string]bool)
	cur := entry
	curParent := parentPath

	for cur.IsSymlink() {
		key := joinArchivePath(curParent, cur.LinkName)
		if visited[key] {
			return nil, nil
		}
		visited[key] = true

		target := cur.LinkTarget
		if target == "" {
			return nil, ErrMissingLinkTarget
		}
		resolvedPath := resolveRelative(curParent, target)

		if resolvedPath == "/" {
			root := a.rootEntry()
			return &root, nil
		}
		nextParent, nextName, err := splitArchivePath(resolvedPath)
		if err != nil {
			return nil, err
		}
		idx, err := a.provider.Get(nextParent, true)
		if err != nil {
			return nil, nil
		}
		next, ok := idx.Store().TryGet(nextName)
		if !ok {
			return nil, nil
		}
		cur = next
		curParent = nextParent
	}
	return &cur, nil
}

// TryResolveLink follows entry (found under parentPath) through any
// chain of symlinks to the non-symlink record at the end of the chain.
// If entry is not itself a symlink it is returned unchanged; it returns
// (nil, nil) for a dangling target or a cycle.
func (a *Archive) TryResolveLink(parentPath string, entry LinkRecord) (*LinkRecord, error) {
	if !entry.IsSymlink() {
		return &entry, nil
	}
	return a.resolve(entry, parentPath)
}

// TryGetResolvedEntry looks up path and, if it is a symlink, follows it
// to its target (spec §4.6). When keepPath is true the returned
// record's LinkName is left as the original query's name (a "keep_path"
// lookup: report the resolved type/size/attributes, but show the
// symlink's own name, the way `ls -L` on a single path does).
func (a *Archive) TryGetResolvedEntry(p string, keepPath bool) (*LinkRecord, error) {
	p = normalizeArchivePath(p)
	var entry LinkRecord
	var parent string
	if p == "/" {
		entry = a.rootEntry()
	} else {
		var name string
		var err error
		parent, name, err = splitArchivePath(p)
		if err != nil {
			return nil, err
		}
		idx, err := a.provider.Get(parent, true)
		if err != nil {
			return nil, nil
		}
		rec, ok := idx.Store().TryGet(name)
		if !ok {
			return nil, nil
		}
		entry = rec
	}

	if !entry.IsSymlink() {
		return &entry, nil
	}
	resolved, err := a.resolve(entry, parent)
	if err != nil || resolved == nil {
		return resolved, err
	}
	if keepPath {
		synthetic := *resolved
		synthetic.LinkName = entry.LinkName
		return &synthetic, nil
	}
	return resolved, nil
}

// resolveForRecursion adapts Archive.resolve to the Traverser's
// ResolveForRecursion hook.
func (a *Archive) resolveForRecursion(parentPath string, rec LinkRecord) (bool, LinkRecord, error) {
	resolved, err := a.resolve(rec, parentPath)
	if err != nil {
		if err == ErrMissingLinkTarget {
			return false, rec, nil
		}
		return false, rec, err
	}
	if resolved == nil {
		return false, rec, nil
	}
	return resolved.IsDirectory(), *resolved, nil
}

func (a *Archive) walkOptions(recursive, followSymlinks, readLinkTargets bool) WalkOptions {
	opt := WalkOptions{Recursive: recursive, ReadLinkTargets: readLinkTargets, FollowSymlinks: followSymlinks}
	if followSymlinks {
		opt.Resolve = a.resolveForRecursion
	}
	return opt
}

func (a *Archive) startEntry(rootPath string) (parent, path string, rec LinkRecord, err error) {
	rootPath = normalizeArchivePath(rootPath)
	if rootPath == "/" {
		return "", "/", a.rootEntry(), nil
	}
	parent, name, err := splitArchivePath(rootPath)
	if err != nil {
		return "", "", LinkRecord{}, err
	}
	idx, err := a.provider.Get(parent, true)
	if err != nil {
		return "", "", LinkRecord{}, err
	}
	rec, ok := idx.Store().TryGet(name)
	if !ok {
		return "", "", LinkRecord{}, fmt.Errorf("h5ar: %w: %s", ErrNotFound, rootPath)
	}
	return parent, rootPath, rec, nil
}

// List visits every entry at and (if recursive) below root, calling
// visitor for each. checkArchive additionally self-verifies regular
// files' content against their stored size/CRC32 (spec §4.7).
func (a *Archive) List(root string, recursive, followSymlinks, checkArchive bool, visitor ListVisitor) error {
	parent, p, rec, err := a.startEntry(root)
	if err != nil {
		return err
	}
	proc := NewListProcessor(a.storage, checkArchive, visitor)
	return a.traverser.Walk(parent, p, rec, a.walkOptions(recursive, followSymlinks, true), proc)
}

// Test is List restricted to entries that fail self-verification (spec
// §4.7 "test" operation).
func (a *Archive) Test(root string, recursive, followSymlinks bool, visitor ListVisitor) error {
	filtering := func(parentPath, p string, rec LinkRecord) {
		if rec.Status(false) != "OK" {
			visitor(parentPath, p, rec)
		}
	}
	return a.List(root, recursive, followSymlinks, true, filtering)
}

// VerifyAgainstFilesystem compares every archive entry under
// archiveRoot to the filesystem tree rooted at fsRoot (spec §4.8),
// calling visitor for each. It returns the set of filesystem paths
// under fsRoot that have no corresponding archive entry.
func (a *Archive) VerifyAgainstFilesystem(archiveRoot, fsRoot string, opt VerifyOptions, recursive bool, visitor ListVisitor) ([]string, error) {
	parent, p, rec, err := a.startEntry(archiveRoot)
	if err != nil {
		return nil, err
	}

	missing := make(map[string]struct{})
	if a.os.Operational() {
		collectFilesystemPaths(fsRoot, missing)
	}

	proc := NewVerifyProcessor(archiveRoot, fsRoot, a.os, opt, missing, visitor)
	if err := a.traverser.Walk(parent, p, rec, a.walkOptions(recursive, false, false), proc); err != nil {
		return nil, err
	}

	out := make([]string, 0, len(missing))
	for k := range missing {
		out = append(out, k)
	}
	return out, nil
}

func collectFilesystemPaths(root string, out map[string]struct{}) {
	filepathWalkTolerant(root, func(p string) {
		out[p] = struct{}{}
	})
}

// filepathWalkTolerant walks root, calling visit for every entry
// (including root itself); any per-entry error is swallowed, since a
// missing-on-disk accounting pass should not abort on a permission
// error halfway through.
func filepathWalkTolerant(root string, visit func(path string)) {
	info, err := os.Lstat(root)
	if err != nil {
		return
	}
	visit(root)
	if !info.IsDir() {
		return
	}
	entries, err := os.ReadDir(root)
	if err != nil {
		return
	}
	for _, e := range entries {
		filepathWalkTolerant(root+string(os.PathSeparator)+e.Name(), visit)
	}
}

// ExtractToFilesystem materializes every archive entry under
// archiveRoot into destRoot (spec §4.9).
func (a *Archive) ExtractToFilesystem(archiveRoot, destRoot string, recursive, followSymlinks bool) error {
	parent, p, rec, err := a.startEntry(archiveRoot)
	if err != nil {
		return err
	}
	proc := NewExtractProcessor(archiveRoot, destRoot, a.storage, a.os, a.strategy, a.errStrat)
	return a.traverser.Walk(parent, p, rec, a.walkOptions(recursive, followSymlinks, true), proc)
}

// ArchiveFromFilesystemBelowDirectory ingests the filesystem tree
// rooted at fsRoot into the archive at archiveRoot (spec §4.5).
func (a *Archive) ArchiveFromFilesystemBelowDirectory(archiveRoot, fsRoot string) error {
	return a.updater.ArchiveTree(archiveRoot, fsRoot, a.os)
}

// ArchiveFile writes data as a regular file at path.
func (a *Archive) ArchiveFile(p string, data []byte, attrs LinkAttributes) (LinkRecord, error) {
	return a.updater.ArchiveFile(p, data, attrs)
}

// ArchiveSymlink records a soft link at path pointing at target.
func (a *Archive) ArchiveSymlink(p, target string, attrs LinkAttributes) (LinkRecord, error) {
	return a.updater.ArchiveSymlink(p, target, attrs)
}

// ArchiveDirectory creates a group at path.
func (a *Archive) ArchiveDirectory(p string, attrs LinkAttributes) (LinkRecord, error) {
	return a.updater.ArchiveDirectory(p, attrs, 0, 0)
}

// OpenStreamWriter begins a streaming write at path, for a caller that
// does not know its content length in advance (spec §4.5 "Streaming
// write").
func (a *Archive) OpenStreamWriter(p string, sizeHint int64, attrs LinkAttributes) (*StreamWriter, error) {
	return a.updater.OpenStreamWriter(p, sizeHint, attrs)
}

// Delete removes each of paths from the archive.
func (a *Archive) Delete(paths []string, onDeleted func(path string)) error {
	return a.deleter.Delete(paths, onDeleted)
}

// Flush persists every pending change without closing the underlying
// storage handle.
func (a *Archive) Flush() error {
	if err := a.provider.Flush(); err != nil {
		return err
	}
	return a.storage.Flush()
}

// Close flushes every pending change and, if this Archive opened the
// underlying storage handle itself, closes it. Close always attempts
// the flush first, even on the path that does not own the handle,
// since an Archive built with NewFromCapability still owns the
// in-memory index cache (spec §9 "Close must flush before closing").
func (a *Archive) Close() error {
	flushErr := a.provider.Flush()
	if !a.closeStorageOnClose {
		if flushErr != nil {
			return flushErr
		}
		return a.storage.Flush()
	}
	closeErr := a.storage.Close()
	if flushErr != nil {
		return flushErr
	}
	return closeErr
}
