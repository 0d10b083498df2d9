package h5ar

import "fmt"

// Processor is the pluggable per-entry callback driven by Traverser.
// It collapses the original design's family of exception-factory
// methods (spec §9 "Dynamic dispatch on processors") into the two
// traversal hooks plus whatever error a Process call itself returns.
type Processor interface {
	// Process is called once per entry, including the start-of-walk
	// entry. parentPath is the entry's containing group; rec is its
	// link record. Returning cont == false stops descending into this
	// branch (but sibling branches still run).
	Process(parentPath, path string, rec LinkRecord) (cont bool, err error)

	// PostProcessDirectory is called after a directory's children (and
	// their subtrees) have all been visited.
	PostProcessDirectory(path string, rec LinkRecord) error
}

// ResolveForRecursion reports whether a record should be recursed into
// when traversal is recursive: true for directories, and — when
// followSymlinks is set — true for symlinks that resolve to a
// directory. Implemented by the Facade, which alone does cycle-safe
// symlink resolution (spec §4.6 "Cycle avoidance"). parentPath is the
// group path rec was found in, needed to resolve a relative symlink
// target.
type ResolveForRecursion func(parentPath string, rec LinkRecord) (isDir bool, resolved LinkRecord, err error)

// Traverser is the generic depth-first walker over archive entries
// (spec §4.6).
type Traverser struct {
	provider *IndexProvider
}

// NewTraverser builds a Traverser over the given index provider.
func NewTraverser(provider *IndexProvider) *Traverser {
	return &Traverser{provider: provider}
}

// WalkOptions configures one traversal.
type WalkOptions struct {
	Recursive       bool
	ReadLinkTargets bool
	FollowSymlinks  bool
	Resolve         ResolveForRecursion // required when FollowSymlinks is set
}

// Walk traverses starting at startRecord (already resolved by the
// caller — this is how the Facade supplies the synthetic root entry
// without the Traverser needing special-case root handling), calling
// proc for every entry reached.
func (t *Traverser) Walk(startParent, startPath string, startRecord LinkRecord, opt WalkOptions, proc Processor) error {
	if opt.FollowSymlinks {
		opt.ReadLinkTargets = true
	}

	cont, err := proc.Process(startParent, startPath, startRecord)
	if err != nil {
		return err
	}
	if !cont {
		return nil
	}

	isDir := startRecord.IsDirectory()
	if !isDir && opt.FollowSymlinks && startRecord.IsSymlink() {
		resolvedIsDir, _, err := opt.Resolve(startParent, startRecord)
		if err != nil {
			return err
		}
		isDir = resolvedIsDir
	}
	if !isDir {
		return nil
	}

	return t.walkChildren(startPath, startRecord, opt, proc)
}

func (t *Traverser) walkChildren(groupPath string, groupRecord LinkRecord, opt WalkOptions, proc Processor) error {
	idx, err := t.provider.Get(groupPath, opt.ReadLinkTargets)
	if err != nil {
		return fmt.Errorf("h5ar: %w: %s", ErrNotFound, groupPath)
	}

	for _, child := range idx.Store().Iter() {
		childPath := joinArchivePath(groupPath, child.LinkName)

		cont, err := proc.Process(groupPath, childPath, child)
		if err != nil {
			return err
		}
		if !cont {
			continue
		}

		if !opt.Recursive {
			continue
		}

		isDir := child.IsDirectory()
		if !isDir && opt.FollowSymlinks && child.IsSymlink() {
			resolvedIsDir, _, err := opt.Resolve(groupPath, child)
			if err != nil {
				return err
			}
			isDir = resolvedIsDir
		}
		if !isDir {
			continue
		}

		if err := t.walkChildren(childPath, child, opt, proc); err != nil {
			return err
		}
		if err := proc.PostProcessDirectory(childPath, child); err != nil {
			return err
		}
	}
	return nil
}
