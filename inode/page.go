package inode

import (
	"github.com/sfs-fs/sfs/storage"
)

// PageMapper turns an inode's extent tree into addressable byte ranges:
// ReadAt/WriteAt compute the logical block sequence a range touches, fault
// each one in or allocate it as needed, and copy bytes into or out of the
// block buffer.
type PageMapper struct {
	tree  *Tree
	cache *storage.Cache
}

// NewPageMapper creates a PageMapper over tree, reusing tree's data cache
// for the block buffers it reads and writes.
func NewPageMapper(tree *Tree, cache *storage.Cache) *PageMapper {
	return &PageMapper{tree: tree, cache: cache}
}

// ReadAt copies min(len(buf), inode.Size-offset) bytes starting at offset
// into buf, returning the number of bytes actually copied. Reads entirely
// past EOF return (0, nil); this package has no notion of io.EOF, that's
// for a higher-level wrapper to add if it wants os.File semantics.
func (pm *PageMapper) ReadAt(inode *Inode, offset uint64, buf []byte) (int, error) {
	if offset >= uint64(inode.Size) {
		return 0, nil
	}
	remaining := uint64(inode.Size) - offset
	if uint64(len(buf)) > remaining {
		buf = buf[:remaining]
	}

	total := 0
	for len(buf) > 0 {
		logical := uint32(offset / storage.BlockSize)
		inBlock := int(offset % storage.BlockSize)
		n := storage.BlockSize - inBlock
		if n > len(buf) {
			n = len(buf)
		}

		phys, err := pm.tree.Find(inode, logical)
		if err != nil {
			// A hole: the spec's extent tree never leaves logical gaps
			// within an allocated file, but treat it defensively as
			// zero-filled rather than propagating NotFound mid-read.
			for i := 0; i < n; i++ {
				buf[i] = 0
			}
		} else {
			block, err := pm.cache.Get(storage.BlockNum(phys))
			if err != nil {
				return total, err
			}
			copy(buf[:n], block[inBlock:inBlock+n])
		}

		buf = buf[n:]
		offset += uint64(n)
		total += n
	}
	return total, nil
}

// WriteAt copies buf into inode's data starting at offset, extending the
// extent tree (and inode.Size) as needed to cover the write. It does not
// persist the inode itself; callers go through Store.WriteInode once the
// Size/Mtime fields are updated.
func (pm *PageMapper) WriteAt(inode *Inode, offset uint64, buf []byte) (int, error) {
	total := 0
	for len(buf) > 0 {
		logical := uint32(offset / storage.BlockSize)
		inBlock := int(offset % storage.BlockSize)
		n := storage.BlockSize - inBlock
		if n > len(buf) {
			n = len(buf)
		}

		phys, err := pm.tree.Find(inode, logical)
		if err != nil {
			// Extend maps one block at a time at the end of the tree, so
			// keep going until the target block is mapped; any blocks in
			// between come out zero-filled.
			for {
				mapped, newPhys, err := pm.tree.Extend(inode)
				if err != nil {
					return total, err
				}
				if mapped >= logical {
					phys = newPhys
					break
				}
			}
		}

		block, err := pm.cache.Get(storage.BlockNum(phys))
		if err != nil {
			return total, err
		}
		copy(block[inBlock:inBlock+n], buf[:n])
		if err := pm.cache.MarkDirty(storage.BlockNum(phys)); err != nil {
			return total, err
		}

		buf = buf[n:]
		offset += uint64(n)
		total += n
	}

	if offset > uint64(inode.Size) {
		inode.Size = uint32(offset)
	}
	return total, nil
}
