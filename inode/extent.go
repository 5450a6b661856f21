package inode

import (
	"encoding/binary"

	"github.com/sfs-fs/sfs/bitmap"
	"github.com/sfs-fs/sfs/errors"
	"github.com/sfs-fs/sfs/storage"
)

// Tree maps an inode's logical block indices onto physical blocks through
// the direct / indirect / doubly-indirect extent layout described by
// RawInode.Data, allocating new physical blocks on demand from the
// data-block bitmap.
//
// A Tree does not know about individual inodes' sizes; it only ever grows
// the tail by one block at a time (Extend) or shrinks it by one block at a
// time (used internally by Truncate). Callers drive it from the page
// mapper, which knows the target file size.
type Tree struct {
	cache *storage.Cache
	alloc *bitmap.Region
}

// NewTree creates a Tree over the data-block region fronted by cache, with
// block IDs allocated from alloc (the data bitmap, whose bit index equals
// the physical block number directly).
func NewTree(cache *storage.Cache, alloc *bitmap.Region) *Tree {
	return &Tree{cache: cache, alloc: alloc}
}

func pairsFromWords(words []uint32) []Extent {
	pairs := make([]Extent, len(words)/2)
	for i := range pairs {
		pairs[i] = Extent{Start: words[2*i], Count: words[2*i+1]}
	}
	return pairs
}

func wordsFromPairs(pairs []Extent, words []uint32) {
	for i, p := range pairs {
		words[2*i] = p.Start
		words[2*i+1] = p.Count
	}
}

// DecodeExtentBlock unpacks a 4096-byte indirect block into its up-to-512
// extent pairs, for callers outside the package walking the raw tree (e.g.
// a Check pass).
func DecodeExtentBlock(buf []byte) []Extent {
	return decodeExtentBlock(buf)
}

// DecodePointerBlock unpacks a 4096-byte doubly-indirect block into its
// up-to-1024 indirect-block pointers.
func DecodePointerBlock(buf []byte) []uint32 {
	return decodePointerBlock(buf)
}

func decodeExtentBlock(buf []byte) []Extent {
	pairs := make([]Extent, extentsPerIndirectBlock)
	for i := range pairs {
		pairs[i].Start = binary.LittleEndian.Uint32(buf[i*8 : i*8+4])
		pairs[i].Count = binary.LittleEndian.Uint32(buf[i*8+4 : i*8+8])
	}
	return pairs
}

func encodeExtentsInto(buf []byte, pairs []Extent) {
	for i, p := range pairs {
		binary.LittleEndian.PutUint32(buf[i*8:i*8+4], p.Start)
		binary.LittleEndian.PutUint32(buf[i*8+4:i*8+8], p.Count)
	}
}

func decodePointerBlock(buf []byte) []uint32 {
	ptrs := make([]uint32, pointersPerDoublyIndirectBlock)
	for i := range ptrs {
		ptrs[i] = binary.LittleEndian.Uint32(buf[i*4 : i*4+4])
	}
	return ptrs
}

func encodePointerAt(buf []byte, idx int, v uint32) {
	binary.LittleEndian.PutUint32(buf[idx*4:idx*4+4], v)
}

// scanExtents walks pairs, stopping at the first zero pair (Start == 0 is
// only ever the zero pair since block 0 is the superblock and never
// allocatable), looking for the extent covering logical block `at`. If not
// found, it returns the remaining logical offset for the caller to
// continue into the next tier.
func scanExtents(pairs []Extent, at uint32) (physical uint32, found bool, remaining uint32) {
	for _, p := range pairs {
		if p.IsZero() {
			break
		}
		if at < p.Count {
			return p.Start + at, true, 0
		}
		at -= p.Count
	}
	return 0, false, at
}

// appendToPairs tries to record a newly allocated physical block as the
// next logical block covered by pairs: merging it onto the tail extent if
// it's the tail's physical successor, or writing it into the first empty
// slot otherwise. It reports full=true if pairs has no tail extent to
// merge with and no empty slot left.
func appendToPairs(pairs []Extent, phys uint32) (full bool) {
	tailIdx := -1
	for i, p := range pairs {
		if p.IsZero() {
			break
		}
		tailIdx = i
	}
	if tailIdx >= 0 {
		tail := pairs[tailIdx]
		if tail.Start+tail.Count == phys {
			pairs[tailIdx].Count++
			return false
		}
	}
	nextIdx := tailIdx + 1
	if nextIdx >= len(pairs) {
		return true
	}
	pairs[nextIdx] = Extent{Start: phys, Count: 1}
	return false
}

// Find translates logical block `at` into a physical block number.
// Returns errors.ErrNotFound if `at` is past the end of the allocated
// extents (a hole, or past EOF).
func (t *Tree) Find(inode *Inode, at uint32) (uint32, error) {
	direct := pairsFromWords(inode.Data[0:8])
	phys, ok, rem := scanExtents(direct, at)
	if ok {
		return phys, nil
	}
	at = rem

	if inode.Data[indirectSlot] == 0 {
		return 0, errors.ErrNotFound
	}
	buf, err := t.cache.Get(storage.BlockNum(inode.Data[indirectSlot]))
	if err != nil {
		return 0, err
	}
	indPairs := decodeExtentBlock(buf)
	phys, ok, rem = scanExtents(indPairs, at)
	if ok {
		return phys, nil
	}
	at = rem

	if inode.Data[doublyIndirectSlot] == 0 {
		return 0, errors.ErrNotFound
	}
	buf2, err := t.cache.Get(storage.BlockNum(inode.Data[doublyIndirectSlot]))
	if err != nil {
		return 0, err
	}
	for _, ptr := range decodePointerBlock(buf2) {
		if ptr == 0 {
			break
		}
		ibuf, err := t.cache.Get(storage.BlockNum(ptr))
		if err != nil {
			return 0, err
		}
		ipairs := decodeExtentBlock(ibuf)
		phys, ok, rem = scanExtents(ipairs, at)
		if ok {
			return phys, nil
		}
		at = rem
	}
	return 0, errors.ErrNotFound
}

// totalBlocks returns the number of logical blocks currently mapped by
// inode's extent tree.
func (t *Tree) totalBlocks(inode *Inode) (uint32, error) {
	total := uint32(0)
	direct := pairsFromWords(inode.Data[0:8])
	for _, p := range direct {
		if p.IsZero() {
			return total, nil
		}
		total += p.Count
	}
	if inode.Data[indirectSlot] == 0 {
		return total, nil
	}
	buf, err := t.cache.Get(storage.BlockNum(inode.Data[indirectSlot]))
	if err != nil {
		return 0, err
	}
	for _, p := range decodeExtentBlock(buf) {
		if p.IsZero() {
			return total, nil
		}
		total += p.Count
	}
	if inode.Data[doublyIndirectSlot] == 0 {
		return total, nil
	}
	buf2, err := t.cache.Get(storage.BlockNum(inode.Data[doublyIndirectSlot]))
	if err != nil {
		return 0, err
	}
	for _, ptr := range decodePointerBlock(buf2) {
		if ptr == 0 {
			return total, nil
		}
		ibuf, err := t.cache.Get(storage.BlockNum(ptr))
		if err != nil {
			return 0, err
		}
		for _, p := range decodeExtentBlock(ibuf) {
			if p.IsZero() {
				return total, nil
			}
			total += p.Count
		}
	}
	return total, nil
}

// lastPhysical returns the physical block number at the very end of
// inode's extent tree, for use as an Extend allocation hint.
func (t *Tree) lastPhysical(inode *Inode) (uint32, bool) {
	direct := pairsFromWords(inode.Data[0:8])
	directTail := -1
	for i, p := range direct {
		if p.IsZero() {
			break
		}
		directTail = i
	}
	if inode.Data[indirectSlot] == 0 {
		if directTail < 0 {
			return 0, false
		}
		e := direct[directTail]
		return e.Start + e.Count - 1, true
	}

	buf, err := t.cache.Get(storage.BlockNum(inode.Data[indirectSlot]))
	if err != nil {
		return 0, false
	}
	indPairs := decodeExtentBlock(buf)
	indTail := -1
	for i, p := range indPairs {
		if p.IsZero() {
			break
		}
		indTail = i
	}
	if inode.Data[doublyIndirectSlot] == 0 {
		if indTail < 0 {
			if directTail < 0 {
				return 0, false
			}
			e := direct[directTail]
			return e.Start + e.Count - 1, true
		}
		e := indPairs[indTail]
		return e.Start + e.Count - 1, true
	}

	buf2, err := t.cache.Get(storage.BlockNum(inode.Data[doublyIndirectSlot]))
	if err != nil {
		return 0, false
	}
	pointers := decodePointerBlock(buf2)
	lastPtr := -1
	for i, p := range pointers {
		if p == 0 {
			break
		}
		lastPtr = i
	}
	if lastPtr < 0 {
		if indTail < 0 {
			return 0, false
		}
		e := indPairs[indTail]
		return e.Start + e.Count - 1, true
	}
	ibuf, err := t.cache.Get(storage.BlockNum(pointers[lastPtr]))
	if err != nil {
		return 0, false
	}
	ipairs := decodeExtentBlock(ibuf)
	iTail := -1
	for i, p := range ipairs {
		if p.IsZero() {
			break
		}
		iTail = i
	}
	if iTail < 0 {
		return 0, false
	}
	e := ipairs[iTail]
	return e.Start + e.Count - 1, true
}

func (t *Tree) allocZeroed() (uint32, error) {
	id, err := t.alloc.Acquire()
	if err != nil {
		return 0, err
	}
	if err := t.cache.Put(storage.BlockNum(id), make([]byte, storage.BlockSize)); err != nil {
		return 0, err
	}
	return id, nil
}

// Extend grows inode's extent tree by exactly one logical block, preferring
// a physical block that's the successor of the current tail extent so
// sequential writes stay contiguous. It returns the newly mapped logical
// block index and its physical block number; inode.Data is updated in
// place (the caller must still persist the inode itself via Store).
func (t *Tree) Extend(inode *Inode) (logical uint32, physical uint32, err error) {
	hint := uint32(0)
	if last, ok := t.lastPhysical(inode); ok {
		hint = last + 1
	}

	var phys uint32
	if hint != 0 {
		phys, err = t.alloc.AcquireAfter(hint)
	} else {
		phys, err = t.alloc.Acquire()
	}
	if err != nil {
		return 0, 0, err
	}
	if err := t.cache.Put(storage.BlockNum(phys), make([]byte, storage.BlockSize)); err != nil {
		return 0, 0, err
	}

	logical, err = t.totalBlocks(inode)
	if err != nil {
		return 0, 0, err
	}

	// Only the last tier in use may take the new block: merging it onto an
	// earlier tier's tail would map it ahead of blocks already held by a
	// later tier.
	if inode.Data[indirectSlot] == 0 {
		direct := pairsFromWords(inode.Data[0:8])
		if full := appendToPairs(direct, phys); !full {
			wordsFromPairs(direct, inode.Data[0:8])
			return logical, phys, nil
		}
	}

	if inode.Data[indirectSlot] == 0 {
		id, err := t.allocZeroed()
		if err != nil {
			return 0, 0, err
		}
		inode.Data[indirectSlot] = id
	}
	indBlock := storage.BlockNum(inode.Data[indirectSlot])
	ibuf, err := t.cache.Get(indBlock)
	if err != nil {
		return 0, 0, err
	}
	indPairs := decodeExtentBlock(ibuf)
	if inode.Data[doublyIndirectSlot] == 0 {
		if full := appendToPairs(indPairs, phys); !full {
			encodeExtentsInto(ibuf, indPairs)
			if err := t.cache.MarkDirty(indBlock); err != nil {
				return 0, 0, err
			}
			return logical, phys, nil
		}
	}

	if inode.Data[doublyIndirectSlot] == 0 {
		id, err := t.allocZeroed()
		if err != nil {
			return 0, 0, err
		}
		inode.Data[doublyIndirectSlot] = id
	}
	dbBlock := storage.BlockNum(inode.Data[doublyIndirectSlot])
	dbuf, err := t.cache.Get(dbBlock)
	if err != nil {
		return 0, 0, err
	}
	pointers := decodePointerBlock(dbuf)
	lastPtr := -1
	for i, p := range pointers {
		if p == 0 {
			break
		}
		lastPtr = i
	}
	if lastPtr >= 0 {
		iBlock := storage.BlockNum(pointers[lastPtr])
		buf3, err := t.cache.Get(iBlock)
		if err != nil {
			return 0, 0, err
		}
		ipairs := decodeExtentBlock(buf3)
		if full := appendToPairs(ipairs, phys); !full {
			encodeExtentsInto(buf3, ipairs)
			if err := t.cache.MarkDirty(iBlock); err != nil {
				return 0, 0, err
			}
			return logical, phys, nil
		}
	}

	nextPtr := lastPtr + 1
	if nextPtr >= pointersPerDoublyIndirectBlock {
		return 0, 0, errors.ErrFileTooLarge
	}
	newIndID, err := t.allocZeroed()
	if err != nil {
		return 0, 0, err
	}
	newIPairs := make([]Extent, extentsPerIndirectBlock)
	appendToPairs(newIPairs, phys)
	nbuf, err := t.cache.Get(storage.BlockNum(newIndID))
	if err != nil {
		return 0, 0, err
	}
	encodeExtentsInto(nbuf, newIPairs)
	if err := t.cache.MarkDirty(storage.BlockNum(newIndID)); err != nil {
		return 0, 0, err
	}
	encodePointerAt(dbuf, nextPtr, newIndID)
	if err := t.cache.MarkDirty(dbBlock); err != nil {
		return 0, 0, err
	}
	return logical, phys, nil
}

// popTail releases the single last logical block of inode's extent tree,
// freeing now-empty indirect/doubly-indirect blocks as it goes.
func (t *Tree) popTail(inode *Inode) error {
	direct := pairsFromWords(inode.Data[0:8])

	if inode.Data[indirectSlot] == 0 {
		tailIdx := -1
		for i, p := range direct {
			if p.IsZero() {
				break
			}
			tailIdx = i
		}
		if tailIdx < 0 {
			return errors.ErrInvalid.WithMessage("truncate: extent tree already empty")
		}
		e := direct[tailIdx]
		if err := t.alloc.Release(e.Start + e.Count - 1); err != nil {
			return err
		}
		if e.Count == 1 {
			direct[tailIdx] = Extent{}
		} else {
			direct[tailIdx].Count--
		}
		wordsFromPairs(direct, inode.Data[0:8])
		return nil
	}

	indBlock := storage.BlockNum(inode.Data[indirectSlot])
	ibuf, err := t.cache.Get(indBlock)
	if err != nil {
		return err
	}
	indPairs := decodeExtentBlock(ibuf)

	if inode.Data[doublyIndirectSlot] == 0 {
		tailIdx := -1
		for i, p := range indPairs {
			if p.IsZero() {
				break
			}
			tailIdx = i
		}
		if tailIdx < 0 {
			if err := t.alloc.Release(uint32(indBlock)); err != nil {
				return err
			}
			inode.Data[indirectSlot] = 0
			return t.popTail(inode)
		}
		e := indPairs[tailIdx]
		if err := t.alloc.Release(e.Start + e.Count - 1); err != nil {
			return err
		}
		if e.Count == 1 {
			indPairs[tailIdx] = Extent{}
		} else {
			indPairs[tailIdx].Count--
		}
		encodeExtentsInto(ibuf, indPairs)
		return t.cache.MarkDirty(indBlock)
	}

	dbBlock := storage.BlockNum(inode.Data[doublyIndirectSlot])
	dbuf, err := t.cache.Get(dbBlock)
	if err != nil {
		return err
	}
	pointers := decodePointerBlock(dbuf)
	lastPtr := -1
	for i, p := range pointers {
		if p == 0 {
			break
		}
		lastPtr = i
	}
	if lastPtr < 0 {
		if err := t.alloc.Release(uint32(dbBlock)); err != nil {
			return err
		}
		inode.Data[doublyIndirectSlot] = 0
		return t.popTail(inode)
	}

	iBlock := storage.BlockNum(pointers[lastPtr])
	ibuf2, err := t.cache.Get(iBlock)
	if err != nil {
		return err
	}
	ipairs := decodeExtentBlock(ibuf2)
	tailIdx := -1
	for i, p := range ipairs {
		if p.IsZero() {
			break
		}
		tailIdx = i
	}
	if tailIdx < 0 {
		if err := t.alloc.Release(uint32(iBlock)); err != nil {
			return err
		}
		encodePointerAt(dbuf, lastPtr, 0)
		if err := t.cache.MarkDirty(dbBlock); err != nil {
			return err
		}
		return t.popTail(inode)
	}
	e := ipairs[tailIdx]
	if err := t.alloc.Release(e.Start + e.Count - 1); err != nil {
		return err
	}
	if e.Count == 1 {
		ipairs[tailIdx] = Extent{}
	} else {
		ipairs[tailIdx].Count--
	}
	encodeExtentsInto(ibuf2, ipairs)
	return t.cache.MarkDirty(iBlock)
}

// Truncate shrinks inode's extent tree so it maps exactly `keep` logical
// blocks, freeing everything past that point. It's a no-op if the tree
// already maps keep or fewer blocks (Truncate never grows the file; the
// page mapper uses Extend for that).
func (t *Tree) Truncate(inode *Inode, keep uint32) error {
	for {
		total, err := t.totalBlocks(inode)
		if err != nil {
			return err
		}
		if total <= keep {
			return nil
		}
		if err := t.popTail(inode); err != nil {
			return err
		}
	}
}
