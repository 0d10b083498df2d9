package h5ar

import (
	"fmt"
	"hash"
	"hash/crc32"
	"io"

	"github.com/jacobsa/timeutil"
	"github.com/jhdf5io/h5ar/oscap"
	"github.com/jhdf5io/h5ar/storage"
)

const (
	// defaultBufferSize caps both the chunk size used for chunked
	// opaque datasets and the small-file contiguous threshold input
	// (spec §4.5).
	defaultBufferSize = 10 << 20 // 10 MiB

	// smallFileThreshold: payloads at or below this size (and no larger
	// than the updater's buffer) are written contiguously, to avoid
	// chunk overhead exceeding the saving (spec §4.5, §8 boundary
	// behavior: 4096 bytes is contiguous, 4097 is chunked).
	smallFileThreshold = 4096

	fileDatasetTag = "FILE"
)

// Updater is the archive-mutation state machine (spec §4.5): it writes
// file content into chunked or contiguous opaque datasets, computes a
// running CRC32, and propagates link-record updates up every parent
// directory.
type Updater struct {
	storage  storage.Capability
	provider *IndexProvider
	clock    timeutil.Clock
	errStrat ErrorStrategy
	strategy ArchivingStrategy

	suffix              string
	bufferSize          int64
	immediateGroupOnly  bool
}

// UpdaterOptions configures NewUpdater. Zero values take the documented
// defaults.
type UpdaterOptions struct {
	Suffix             string
	BufferSize         int64 // <= 0 means defaultBufferSize
	ImmediateGroupOnly bool
	Strategy           ArchivingStrategy
	Clock              timeutil.Clock
	ErrorStrategy      ErrorStrategy
}

// NewUpdater builds an Updater over a shared storage handle and index
// provider.
func NewUpdater(storageCap storage.Capability, provider *IndexProvider, opt UpdaterOptions) *Updater {
	bufSize := opt.BufferSize
	if bufSize <= 0 {
		bufSize = defaultBufferSize
	}
	clock := opt.Clock
	if clock == nil {
		clock = timeutil.RealClock()
	}
	errStrat := opt.ErrorStrategy
	if errStrat == nil {
		errStrat = FailFastErrorStrategy{}
	}
	return &Updater{
		storage:            storageCap,
		provider:           provider,
		clock:              clock,
		errStrat:           errStrat,
		strategy:           opt.Strategy,
		suffix:             opt.Suffix,
		bufferSize:         bufSize,
		immediateGroupOnly: opt.ImmediateGroupOnly,
	}
}

func (u *Updater) featuresFor(path string, compress bool) storage.Features {
	if !compress {
		return storage.GenericContiguous
	}
	if u.strategy.ShouldCompress(path) {
		return storage.GenericDeflate
	}
	return storage.GenericNoCompression
}

// ArchiveFile writes data as a regular file at path and propagates the
// resulting link record up the parent chain.
func (u *Updater) ArchiveFile(path string, data []byte, attrs LinkAttributes) (LinkRecord, error) {
	if u.storage.ReadOnly() {
		return LinkRecord{}, storage.ErrReadOnly
	}
	_, name, err := splitArchivePath(path)
	if err != nil {
		return LinkRecord{}, err
	}

	crc := crc32.ChecksumIEEE(data)
	small := int64(len(data)) <= u.bufferSize && len(data) <= smallFileThreshold
	compress := u.strategy.ShouldCompress(path)

	if small || !compress {
		// small||!compress excludes compress&&!small, so this path is
		// always uncompressed (spec §4.5 "Small-file optimization").
		if err := u.storage.CreateOpaque(path, fileDatasetTag, int64(len(data)), storage.GenericContiguous); err != nil {
			return LinkRecord{}, err
		}
		if len(data) > 0 {
			if err := u.storage.WriteBlock(path, data, 0); err != nil {
				return LinkRecord{}, err
			}
		}
	} else {
		chunk := u.bufferSize
		if err := u.storage.CreateChunkedOpaque(path, fileDatasetTag, 0, chunk, u.featuresFor(path, true)); err != nil {
			return LinkRecord{}, err
		}
		for off := int64(0); off < int64(len(data)); off += chunk {
			end := off + chunk
			if end > int64(len(data)) {
				end = int64(len(data))
			}
			if err := u.storage.WriteBlock(path, data[off:end], off); err != nil {
				return LinkRecord{}, err
			}
		}
	}

	rec := LinkRecord{
		LinkName:        name,
		LinkType:        RegularFile,
		Size:            int64(len(data)),
		LastModifiedSec: attrs.LastModifiedSec,
		Uid:             attrs.Uid,
		Gid:             attrs.Gid,
		Permissions:     attrs.Permissions,
		CRC32:           crc,
		HasCRC32:        true,
	}
	if err := u.propagate(path, rec); err != nil {
		return LinkRecord{}, err
	}
	return rec, nil
}

// ArchiveSymlink records a soft link at path pointing at target.
func (u *Updater) ArchiveSymlink(path, target string, attrs LinkAttributes) (LinkRecord, error) {
	if u.storage.ReadOnly() {
		return LinkRecord{}, storage.ErrReadOnly
	}
	_, name, err := splitArchivePath(path)
	if err != nil {
		return LinkRecord{}, err
	}
	if err := u.storage.CreateSoftLink(target, path); err != nil {
		return LinkRecord{}, err
	}
	rec := LinkRecord{
		LinkName:        name,
		LinkType:        Symlink,
		Size:            Unknown,
		LastModifiedSec: attrs.LastModifiedSec,
		Uid:             attrs.Uid,
		Gid:             attrs.Gid,
		Permissions:     attrs.Permissions,
		LinkTarget:      target,
	}
	if err := u.propagate(path, rec); err != nil {
		return LinkRecord{}, err
	}
	return rec, nil
}

// ArchiveDirectory creates a group at path. hintEntryCount and
// hintNameLenSum implement the pre-create size-hint rule of spec §4.5
// step 1 (used by ArchiveTree; direct callers may pass 0/0 for a plain
// group).
func (u *Updater) ArchiveDirectory(path string, attrs LinkAttributes, hintEntryCount int, hintNameLenSum int64) (LinkRecord, error) {
	if u.storage.ReadOnly() {
		return LinkRecord{}, storage.ErrReadOnly
	}
	_, name, err := splitArchivePath(path)
	if err != nil {
		return LinkRecord{}, err
	}

	var sizeHint int64
	if hintEntryCount > 100 {
		sizeHint = hintNameLenSum * 5
	}
	if err := u.storage.CreateGroup(path, sizeHint); err != nil {
		return LinkRecord{}, err
	}

	rec := LinkRecord{
		LinkName:        name,
		LinkType:        Directory,
		Size:            Unknown,
		LastModifiedSec: attrs.LastModifiedSec,
		Uid:             attrs.Uid,
		Gid:             attrs.Gid,
		Permissions:     attrs.Permissions,
	}
	if err := u.propagate(path, rec); err != nil {
		return LinkRecord{}, err
	}
	return rec, nil
}

// ArchiveStream archives content read from r, which need not know its
// length in advance. A positive sizeHint no larger than the small-file
// threshold and the buffer size routes the content through ArchiveFile;
// otherwise it is streamed into a chunked dataset, and a positive
// sizeHint seeds that dataset's initial size.
func (u *Updater) ArchiveStream(path string, r io.Reader, sizeHint int64, attrs LinkAttributes) (LinkRecord, error) {
	if sizeHint > 0 && sizeHint <= smallFileThreshold && sizeHint <= u.bufferSize {
		// Small payloads are read whole and go through ArchiveFile, so
		// they get its contiguous small-file layout.
		data, err := io.ReadAll(r)
		if err != nil {
			return LinkRecord{}, err
		}
		return u.ArchiveFile(path, data, attrs)
	}
	sw, err := u.OpenStreamWriter(path, sizeHint, attrs)
	if err != nil {
		return LinkRecord{}, err
	}
	buf := make([]byte, u.bufferSize)
	if _, err := io.CopyBuffer(sw, r, buf); err != nil {
		sw.Close()
		return LinkRecord{}, err
	}
	if err := sw.Close(); err != nil {
		return LinkRecord{}, err
	}
	return sw.Record(), nil
}

// propagate applies leafRecord to its immediate parent's index, then —
// unless immediateGroupOnly — bumps the mtime of every ancestor
// directory's own record, all the way up to root (spec §4.5
// "Propagation").
func (u *Updater) propagate(leafPath string, leafRecord LinkRecord) error {
	parent, _, err := splitArchivePath(leafPath)
	if err != nil {
		return err
	}
	idx, err := u.provider.Get(parent, false)
	if err != nil {
		return err
	}
	idx.Store().Update(leafRecord)
	idx.MarkDirty()

	if u.immediateGroupOnly {
		return nil
	}
	return u.propagateMTimeUp(parent)
}

func (u *Updater) propagateMTimeUp(path string) error {
	for path != "/" {
		parent, name, err := splitArchivePath(path)
		if err != nil {
			return err
		}
		idx, err := u.provider.Get(parent, false)
		if err != nil {
			return err
		}
		rec, ok := idx.Store().TryGet(name)
		if !ok {
			rec = LinkRecord{
				LinkName:        name,
				LinkType:        Directory,
				Size:            Unknown,
				LastModifiedSec: Unknown,
				Uid:             Unknown,
				Gid:             Unknown,
				Permissions:     Unknown,
			}
		}
		rec.LastModifiedSec = u.clock.Now().Unix()
		idx.Store().Update(rec)
		idx.MarkDirty()
		path = parent
	}
	return nil
}

// StreamWriter is a push-style writable sink for open-ended input
// (spec §4.5 "Streaming write"). It is kept as a sink rather than a
// pull iterator because the running CRC32 and size must observe the
// exact byte stream (spec §9 "Coroutine / streaming control flow").
type StreamWriter struct {
	u        *Updater
	path     string
	name     string
	parent   string // parent directory's group path
	parentIdx *DirectoryIndex // index of parent; AddFlushable/RemoveFlushable target

	crcHash hash.Hash32
	size    int64
	offset  int64
	buf     []byte
	chunk   int64

	attrs  LinkAttributes
	closed bool
	record LinkRecord
}

// OpenStreamWriter begins a streaming write at path. sizeHint, if
// positive, is used as the dataset's initial size.
func (u *Updater) OpenStreamWriter(path string, sizeHint int64, attrs LinkAttributes) (*StreamWriter, error) {
	if u.storage.ReadOnly() {
		return nil, storage.ErrReadOnly
	}
	parent, name, err := splitArchivePath(path)
	if err != nil {
		return nil, err
	}
	idx, err := u.provider.Get(parent, false)
	if err != nil {
		return nil, err
	}

	chunk := u.bufferSize
	if err := u.storage.CreateChunkedOpaque(path, fileDatasetTag, sizeHint, chunk, u.featuresFor(path, true)); err != nil {
		return nil, err
	}

	sw := &StreamWriter{
		u:         u,
		path:      path,
		name:      name,
		parent:    parent,
		parentIdx: idx,
		crcHash:   crc32.NewIEEE(),
		chunk:     chunk,
		attrs:     attrs,
	}
	idx.AddFlushable(sw)
	return sw, nil
}

// Write implements io.Writer. Short writes are buffered until a full
// chunk accumulates; the final, possibly short, chunk is written on
// Flush/Close.
func (w *StreamWriter) Write(p []byte) (int, error) {
	if w.closed {
		return 0, fmt.Errorf("h5ar: write to closed stream %s", w.path)
	}
	n := len(p)
	w.buf = append(w.buf, p...)
	for int64(len(w.buf)) >= w.chunk {
		if err := w.writeBlock(w.buf[:w.chunk]); err != nil {
			return 0, err
		}
		w.buf = append([]byte(nil), w.buf[w.chunk:]...)
	}
	return n, nil
}

func (w *StreamWriter) writeBlock(b []byte) error {
	if len(b) == 0 {
		return nil
	}
	if err := w.u.storage.WriteBlock(w.path, b, w.offset); err != nil {
		return err
	}
	w.crcHash.Write(b)
	w.size += int64(len(b))
	w.offset += int64(len(b))
	return nil
}

// Flush implements storage.Flushable / h5ar.Flushable: write any
// buffered partial chunk, stamp the link record with the running
// CRC32/size, and propagate it up the parent chain (spec §4.5
// "Streaming write" step 3).
func (w *StreamWriter) Flush() error {
	if len(w.buf) > 0 {
		if err := w.writeBlock(w.buf); err != nil {
			return err
		}
		w.buf = nil
	}

	w.record = LinkRecord{
		LinkName:        w.name,
		LinkType:        RegularFile,
		Size:            w.size,
		LastModifiedSec: w.attrs.LastModifiedSec,
		Uid:             w.attrs.Uid,
		Gid:             w.attrs.Gid,
		Permissions:     w.attrs.Permissions,
		CRC32:           w.crcHash.Sum32(),
		HasCRC32:        true,
	}
	return w.u.propagate(w.path, w.record)
}

// Close flushes, then unregisters the writer from the parent index's
// flushable set using the same key it registered with — resolving the
// latent mismatched-key bug noted in spec §9.
func (w *StreamWriter) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	if err := w.Flush(); err != nil {
		return err
	}
	w.parentIdx.RemoveFlushable(w)
	return nil
}

// Record returns the link record as stamped by the most recent Flush.
func (w *StreamWriter) Record() LinkRecord { return w.record }

// osAttrs converts an oscap.Info into the LinkAttributes an Updater
// method expects.
func osAttrsFrom(info oscap.Info) LinkAttributes {
	return LinkAttributes{
		Uid:             int64(info.Uid),
		Gid:             int64(info.Gid),
		Permissions:     int32(info.Permissions),
		LastModifiedSec: info.ModTime.Unix(),
	}
}
