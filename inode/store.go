package inode

import (
	"github.com/sfs-fs/sfs/bitmap"
	"github.com/sfs-fs/sfs/errors"
	"github.com/sfs-fs/sfs/storage"
)

// Store reads and writes inodes by number and manages their lifecycle
// (allocation and release of inode IDs).
type Store struct {
	cache   *storage.Cache
	alloc   *bitmap.Region
	base    storage.BlockNum
	ninodes uint32
}

// NewStore creates a Store over the inode table, which starts at block
// base and is fronted by cache. alloc is the inode bitmap region.
func NewStore(cache *storage.Cache, alloc *bitmap.Region, base storage.BlockNum, ninodes uint32) *Store {
	return &Store{cache: cache, alloc: alloc, base: base, ninodes: ninodes}
}

func (s *Store) locate(id Num) (storage.BlockNum, uint32) {
	block := s.base + storage.BlockNum(uint32(id)/PerBlock)
	slot := uint32(id) % PerBlock
	return block, slot
}

// ReadRaw loads the inode with the given number from the inode table.
func (s *Store) ReadRaw(id Num) (*Inode, error) {
	if id == NumNull || uint32(id) >= s.ninodes {
		return nil, errors.ErrInvalid.WithMessage("inode number out of range")
	}
	block, slot := s.locate(id)
	buf, err := s.cache.Get(block)
	if err != nil {
		return nil, err
	}
	raw := DecodeRawInode(buf[slot*RawSize : (slot+1)*RawSize])
	return fromRaw(id, raw), nil
}

// WriteInode persists every in-memory field of inode back to its slot in
// the inode table and marks the containing block dirty.
func (s *Store) WriteInode(inode *Inode) error {
	block, slot := s.locate(inode.Num)
	buf, err := s.cache.Get(block)
	if err != nil {
		return err
	}
	EncodeRawInode(inode.toRaw(), buf[slot*RawSize:(slot+1)*RawSize])
	return s.cache.MarkDirty(block)
}

// NewInode acquires a fresh inode ID from the bitmap and returns a
// zeroed-out in-memory inode with nlink=0 and the given mode/uid/gid.
// Callers are responsible for calling WriteInode once wiring (link count,
// directory entry) is complete; on any failure before that, call FreeInode
// to unwind.
func (s *Store) NewInode(mode uint16, uid, gid uint16, now uint32) (*Inode, error) {
	id, err := s.alloc.Acquire()
	if err != nil {
		return nil, err
	}
	inode := &Inode{
		Num:   Num(id),
		Mode:  mode,
		Nlink: 0,
		Uid:   uid,
		Gid:   gid,
		Atime: now,
		Mtime: now,
		Ctime: now,
	}
	if err := s.WriteInode(inode); err != nil {
		_ = s.alloc.Release(id)
		return nil, err
	}
	return inode, nil
}

// FreeInode releases an inode's bitmap bit. The caller must already have
// driven Nlink to 0 and truncated its extents to empty.
func (s *Store) FreeInode(inode *Inode) error {
	if inode.Nlink != 0 {
		return errors.ErrInvalid.WithMessage("cannot free inode with nonzero nlink")
	}
	return s.alloc.Release(uint32(inode.Num))
}
