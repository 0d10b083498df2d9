package h5ar

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"

	"github.com/jacobsa/syncutil"
	"github.com/jhdf5io/h5ar/storage"
)

// recordSize is the on-disk size of one compound INDEX record, field
// order as specified in spec §3: linkNameLength(i32) linkType(i32)
// size(i64) lastModified(i64) uid(i32) gid(i32) permissions(i16)
// [2 bytes padding to keep crc32 4-byte aligned] crc32(i32).
const recordSize = 40

// padOffset/padLen mark the padding gap that a real C compound layout
// would insert before the trailing i32; the field-by-field CRC (see
// spec §4.2) must skip exactly these bytes, while the legacy
// whole-buffer CRC covers them.
const (
	padOffset = 34
	padLen    = 2
)

const indexNameCRCAttr = "CRC32"

func indexDatasetPath(groupPath, suffix string) string {
	return joinArchivePath(groupPath, "INDEX"+suffix)
}

func namesDatasetPath(groupPath, suffix string) string {
	return joinArchivePath(groupPath, "INDEXNAMES"+suffix)
}

// encodeRecord writes one record's fixed fields (everything but the
// name, which is carried by INDEXNAMES) into a recordSize-byte buffer.
func encodeRecord(r LinkRecord, nameLen int32) []byte {
	buf := make([]byte, recordSize)
	le := binary.LittleEndian
	le.PutUint32(buf[0:4], uint32(nameLen))
	le.PutUint32(buf[4:8], uint32(r.LinkType))
	le.PutUint64(buf[8:16], uint64(r.Size))
	le.PutUint64(buf[16:24], uint64(r.LastModifiedSec))
	le.PutUint32(buf[24:28], uint32(r.Uid))
	le.PutUint32(buf[28:32], uint32(r.Gid))
	le.PutUint16(buf[32:34], uint16(r.Permissions))
	// buf[34:36] left zero: padding.
	crc := int32(0)
	if r.HasCRC32 {
		crc = int32(r.CRC32)
	}
	le.PutUint32(buf[36:40], uint32(crc))
	return buf
}

type decodedFields struct {
	nameLen         int32
	linkType        FileLinkType
	size            int64
	lastModified    int64
	uid             int64
	gid             int64
	permissions     int32
	crc32           uint32
	hasCRC32        bool
}

func decodeRecord(buf []byte) decodedFields {
	le := binary.LittleEndian
	crc := int32(le.Uint32(buf[36:40]))
	return decodedFields{
		nameLen:      int32(le.Uint32(buf[0:4])),
		linkType:     FileLinkType(le.Uint32(buf[4:8])),
		size:         int64(le.Uint64(buf[8:16])),
		lastModified: int64(le.Uint64(buf[16:24])),
		uid:          int64(int32(le.Uint32(buf[24:28]))),
		gid:          int64(int32(le.Uint32(buf[28:32]))),
		permissions:  int32(int16(le.Uint16(buf[32:34]))),
		crc32:        uint32(crc),
		// Zero is the on-disk sentinel for "no CRC32 recorded" (the
		// compound record has no spare bit for it); this misreads a
		// genuine zero-byte file's CRC32.ChecksumIEEE(nil) == 0 as
		// HasCRC32 == false. See DESIGN.md.
		hasCRC32: crc != 0,
	}
}

// fieldCRCBytes returns the subset of one record's bytes that
// contribute to the field-by-field CRC: everything except the padding
// gap.
func fieldCRCBytes(buf []byte) []byte {
	out := make([]byte, 0, recordSize-padLen)
	out = append(out, buf[:padOffset]...)
	out = append(out, buf[padOffset+padLen:]...)
	return out
}

// crcFieldByField digests every record's member bytes (skipping
// padding), in record order.
func crcFieldByField(records [][]byte) uint32 {
	h := crc32.NewIEEE()
	for _, r := range records {
		h.Write(fieldCRCBytes(r))
	}
	return h.Sum32()
}

// crcWholeBuffer digests the raw concatenated record bytes including
// padding, for compatibility with legacy writers (spec §4.2).
func crcWholeBuffer(records [][]byte) uint32 {
	h := crc32.NewIEEE()
	for _, r := range records {
		h.Write(r)
	}
	return h.Sum32()
}

// DirectoryIndex is the serialized index of one archive group: a
// LinkStore plus the bookkeeping to read/verify/write it as the
// group's two index datasets.
type DirectoryIndex struct {
	mu syncutil.InvariantMutex

	groupPath string
	suffix    string
	storage   storage.Capability // non-owning back-reference
	errStrat  ErrorStrategy

	store           *LinkStore
	withLinkTargets bool
	dirty           bool // GUARDED_BY(mu)

	flushables []Flushable // GUARDED_BY(mu), insertion order
}

// Flushable is an external writer that must be flushed before a
// DirectoryIndex persists itself (spec §4.2 "Flushables"); StreamWriter
// is the only implementation in this package.
type Flushable interface {
	Flush() error
}

func (idx *DirectoryIndex) checkInvariants() {
	// No cross-field invariant beyond what LinkStore itself checks;
	// dirty is a plain bool with no shape to validate.
}

// newEmptyIndex constructs a DirectoryIndex with no on-disk backing,
// used both for fresh groups and as the target of rebuildFromGroup.
func newEmptyIndex(storageCap storage.Capability, groupPath, suffix string, withLinkTargets bool, errStrat ErrorStrategy) *DirectoryIndex {
	idx := &DirectoryIndex{
		groupPath:       groupPath,
		suffix:          suffix,
		storage:         storageCap,
		errStrat:        errStrat,
		store:           NewLinkStore(),
		withLinkTargets: withLinkTargets,
	}
	idx.mu = syncutil.NewInvariantMutex(idx.checkInvariants)
	return idx
}

// loadDirectoryIndex implements the read path of spec §4.2: read both
// datasets and verify their CRCs (field-by-field, falling back to the
// legacy whole-buffer digest), or rebuild from the group listing if
// either dataset is missing or unreadable.
func loadDirectoryIndex(storageCap storage.Capability, groupPath, suffix string, withLinkTargets bool, errStrat ErrorStrategy) (*DirectoryIndex, error) {
	idx := newEmptyIndex(storageCap, groupPath, suffix, withLinkTargets, errStrat)

	indexPath := indexDatasetPath(groupPath, suffix)
	namesPath := namesDatasetPath(groupPath, suffix)

	if !storageCap.Exists(indexPath) || !storageCap.Exists(namesPath) {
		if err := idx.rebuildFromGroup(); err != nil {
			return nil, err
		}
		return idx, nil
	}

	recSize, raw, err := storageCap.ReadCompound(indexPath)
	if err != nil {
		return idx.recoverOrFail(err)
	}
	if recSize != recordSize || len(raw)%recSize != 0 {
		return idx.recoverOrFail(fmt.Errorf("h5ar: unreadable compound record in %s", indexPath))
	}

	n := len(raw) / recSize
	records := make([][]byte, n)
	for i := 0; i < n; i++ {
		records[i] = raw[i*recSize : (i+1)*recSize]
	}

	attr, ok, err := storageCap.GetAttrInt32(indexPath, indexNameCRCAttr)
	if err != nil || !ok {
		return idx.recoverOrFail(fmt.Errorf("%w: missing CRC32 attribute on %s", ErrChecksumMismatch, indexPath))
	}
	want := uint32(attr)
	if crcFieldByField(records) != want && crcWholeBuffer(records) != want {
		return idx.recoverOrFail(ErrChecksumMismatch)
	}

	namesRaw, err := storageCap.ReadString(namesPath)
	if err != nil {
		return idx.recoverOrFail(err)
	}
	namesAttr, ok, err := storageCap.GetAttrInt32(namesPath, indexNameCRCAttr)
	if err != nil || !ok {
		return idx.recoverOrFail(fmt.Errorf("%w: missing CRC32 attribute on %s", ErrChecksumMismatch, namesPath))
	}
	if crc32.ChecksumIEEE(namesRaw) != uint32(namesAttr) {
		return idx.recoverOrFail(ErrChecksumMismatch)
	}

	recs := make([]LinkRecord, n)
	pos := 0
	for i, raw := range records {
		d := decodeRecord(raw)
		if pos+int(d.nameLen) > len(namesRaw) {
			return idx.recoverOrFail(fmt.Errorf("h5ar: name slice out of range in %s", namesPath))
		}
		name := string(namesRaw[pos : pos+int(d.nameLen)])
		pos += int(d.nameLen)

		recs[i] = LinkRecord{
			LinkName:        name,
			LinkType:        d.linkType,
			Size:            d.size,
			LastModifiedSec: d.lastModified,
			Uid:             d.uid,
			Gid:             d.gid,
			Permissions:     d.permissions,
			CRC32:           d.crc32,
			HasCRC32:        d.hasCRC32,
		}
	}
	idx.store.Update(recs...)

	if withLinkTargets {
		if err := idx.store.AmendLinkTargets(storageCap, groupPath); err != nil {
			return idx.recoverOrFail(err)
		}
	}

	return idx, nil
}

// recoverOrFail applies the injected error strategy to a read failure:
// on continue, the index becomes an empty, freshly-rebuilt store and
// the operation proceeds (spec §4.2 "Failure semantics").
func (idx *DirectoryIndex) recoverOrFail(cause error) (*DirectoryIndex, error) {
	if err := idx.errStrat.Handle(cause); err != nil {
		return nil, err
	}
	if err := idx.rebuildFromGroup(); err != nil {
		return nil, err
	}
	return idx, nil
}

// rebuildFromGroup reconstructs the index by enumerating the HDF5
// group's members directly, used when the index datasets are absent or
// corrupt (spec §4.2 step 3, §8 boundary behavior).
func (idx *DirectoryIndex) rebuildFromGroup() error {
	members, err := idx.storage.GetGroupMembers(idx.groupPath, idx.withLinkTargets)
	if err != nil {
		return err
	}

	recs := make([]LinkRecord, 0, len(members))
	for _, m := range members {
		if m.Name == "INDEX"+idx.suffix || m.Name == "INDEXNAMES"+idx.suffix {
			continue
		}
		rec := LinkRecord{LinkName: m.Name, Size: Unknown, LastModifiedSec: Unknown, Uid: Unknown, Gid: Unknown, Permissions: Unknown}
		switch m.Type {
		case storage.TypeGroup:
			rec.LinkType = Directory
		case storage.TypeSoftLink:
			rec.LinkType = Symlink
			rec.LinkTarget = m.Target
		case storage.TypeDataset:
			rec.LinkType = RegularFile
			if size, err := idx.storage.GetDatasetSize(joinArchivePath(idx.groupPath, m.Name)); err == nil {
				rec.Size = size
			}
		default:
			rec.LinkType = Other
		}
		recs = append(recs, rec)
	}
	idx.store.Update(recs...)
	idx.mu.Lock()
	idx.dirty = true
	idx.mu.Unlock()
	return nil
}

// Store returns the underlying LinkStore.
func (idx *DirectoryIndex) Store() *LinkStore { return idx.store }

// MarkDirty transitions the index to the DIRTY state (spec §4.2 state
// machine).
func (idx *DirectoryIndex) MarkDirty() {
	idx.mu.Lock()
	idx.dirty = true
	idx.mu.Unlock()
}

// AddFlushable registers an external flushable (a streaming writer)
// to be flushed before this index persists itself.
func (idx *DirectoryIndex) AddFlushable(f Flushable) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	for _, existing := range idx.flushables {
		if existing == f {
			return
		}
	}
	idx.flushables = append(idx.flushables, f)
}

// RemoveFlushable unregisters a previously added flushable.
func (idx *DirectoryIndex) RemoveFlushable(f Flushable) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	for i, existing := range idx.flushables {
		if existing == f {
			idx.flushables = append(idx.flushables[:i], idx.flushables[i+1:]...)
			return
		}
	}
}

// Flush implements the write path of spec §4.2: invoke registered
// flushables first (swallowing their errors, per spec), then, if
// dirty, serialize the store back to the two datasets and clear dirty.
func (idx *DirectoryIndex) Flush() error {
	idx.mu.Lock()
	flushables := append([]Flushable(nil), idx.flushables...)
	idx.mu.Unlock()

	for _, f := range flushables {
		if err := f.Flush(); err != nil {
			// External flushable errors are logged and swallowed; they
			// must never abort the index's own flush (spec §4.2).
			ContinueErrorStrategy{}.Handle(fmt.Errorf("flushable: %w", err))
		}
	}

	// Read dirty only now: a flushable may have just updated this index.
	idx.mu.Lock()
	dirty := idx.dirty
	idx.mu.Unlock()

	if !dirty {
		return nil
	}

	recs := idx.store.LinkArray()

	namesBuf := make([]byte, 0, 64*len(recs))
	recordBufs := make([][]byte, len(recs))
	for i, r := range recs {
		nameBytes := []byte(r.LinkName)
		recordBufs[i] = encodeRecord(r, int32(len(nameBytes)))
		namesBuf = append(namesBuf, nameBytes...)
	}

	namesPath := namesDatasetPath(idx.groupPath, idx.suffix)
	if err := idx.storage.WriteString(namesPath, namesBuf, storage.GenericDeflate); err != nil {
		return err
	}
	namesCRC := crc32.ChecksumIEEE(namesBuf)
	if err := idx.storage.SetAttrInt32(namesPath, indexNameCRCAttr, int32(namesCRC)); err != nil {
		return err
	}

	flat := make([]byte, 0, recordSize*len(recordBufs))
	for _, r := range recordBufs {
		flat = append(flat, r...)
	}
	indexPath := indexDatasetPath(idx.groupPath, idx.suffix)
	if err := idx.storage.WriteCompound(indexPath, recordSize, flat); err != nil {
		return err
	}
	indexCRC := crcFieldByField(recordBufs)
	if err := idx.storage.SetAttrInt32(indexPath, indexNameCRCAttr, int32(indexCRC)); err != nil {
		return err
	}

	idx.mu.Lock()
	idx.dirty = false
	idx.mu.Unlock()
	return nil
}

// Close flushes the index. The index is not registered in the storage
// handle's flushable set (IndexProvider flushes it directly), so there
// is nothing to detach.
func (idx *DirectoryIndex) Close() error {
	return idx.Flush()
}
