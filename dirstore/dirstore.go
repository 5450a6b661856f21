// Package dirstore implements the directory entry store: variable-length,
// NUL-terminated entries packed linearly inside each 4096-byte directory
// page, on top of the inode package's extent tree.
package dirstore

import (
	"encoding/binary"

	"github.com/sfs-fs/sfs/errors"
	"github.com/sfs-fs/sfs/inode"
	"github.com/sfs-fs/sfs/storage"
)

// terminatorSize is the width of the zero d_ino sentinel that must follow
// every entry written (and precede every entry read).
const terminatorSize = 4

// Store implements directory operations on top of an inode's extent tree.
// A directory page and a logical block coincide 1:1, since the block size
// equals the page size.
type Store struct {
	tree  *inode.Tree
	cache *storage.Cache
}

// NewStore creates a directory Store sharing tree and cache with the
// file-data layer; directories are just inodes whose bytes happen to be
// packed entries instead of arbitrary content.
func NewStore(tree *inode.Tree, cache *storage.Cache) *Store {
	return &Store{tree: tree, cache: cache}
}

// parseEntry reads the entry at byte offset in page buffer buf. ok is
// false if the entry is the zero-ino terminator.
func parseEntry(buf []byte, offset int) (ino uint32, name string, size int, ok bool) {
	ino = binary.LittleEndian.Uint32(buf[offset : offset+4])
	if ino == 0 {
		return 0, "", 0, false
	}
	start := offset + 4
	end := start
	for end < len(buf) && buf[end] != 0 {
		end++
	}
	name = string(buf[start:end])
	return ino, name, 4 + len(name) + 1, true
}

func writeEntry(buf []byte, offset int, ino uint32, name string) int {
	binary.LittleEndian.PutUint32(buf[offset:offset+4], ino)
	n := copy(buf[offset+4:], name)
	buf[offset+4+n] = 0
	return 4 + n + 1
}

func (s *Store) pageBuffer(dir *inode.Inode, page uint32) ([]byte, storage.BlockNum, error) {
	phys, err := s.tree.Find(dir, page)
	if err != nil {
		return nil, 0, err
	}
	block := storage.BlockNum(phys)
	buf, err := s.cache.Get(block)
	if err != nil {
		return nil, 0, err
	}
	return buf, block, nil
}

// FindEntry scans every page of dir for name, returning the page index and
// byte offset of the matching entry, and its inode number.
func (s *Store) FindEntry(dir *inode.Inode, name string) (page uint32, offset uint32, ino uint32, found bool, err error) {
	totalPages := dir.Size / storage.BlockSize
	for p := uint32(0); p < totalPages; p++ {
		buf, _, err := s.pageBuffer(dir, p)
		if err != nil {
			return 0, 0, 0, false, err
		}
		off := 0
		for {
			entryIno, entryName, size, ok := parseEntry(buf, off)
			if !ok {
				break
			}
			if entryName == name {
				return p, uint32(off), entryIno, true, nil
			}
			off += size
		}
	}
	return 0, 0, 0, false, nil
}

// AddEntry inserts (name, ino) into the first page with room, or grows dir
// by one page if none has room. maxNameLen is s_namelen; 0 means unlimited.
func (s *Store) AddEntry(dir *inode.Inode, name string, ino uint32, maxNameLen uint32) error {
	if maxNameLen > 0 && uint32(len(name)) >= maxNameLen {
		return errors.ErrNameTooLong
	}
	entrySize := 4 + len(name) + 1
	if entrySize+terminatorSize > storage.BlockSize {
		return errors.ErrNameTooLong
	}

	totalPages := dir.Size / storage.BlockSize
	for p := uint32(0); p < totalPages; p++ {
		buf, block, err := s.pageBuffer(dir, p)
		if err != nil {
			return err
		}
		off := 0
		for {
			_, _, size, ok := parseEntry(buf, off)
			if !ok {
				break
			}
			off += size
		}
		if storage.BlockSize-off >= entrySize+terminatorSize {
			written := writeEntry(buf, off, ino, name)
			binary.LittleEndian.PutUint32(buf[off+written:off+written+4], 0)
			return s.cache.MarkDirty(block)
		}
	}

	// No page had room: grow the directory by one (zeroed) page.
	_, phys, err := s.tree.Extend(dir)
	if err != nil {
		return err
	}
	block := storage.BlockNum(phys)
	buf, err := s.cache.Get(block)
	if err != nil {
		return err
	}
	writeEntry(buf, 0, ino, name)
	dir.Size += storage.BlockSize
	return s.cache.MarkDirty(block)
}

// DeleteEntry removes the entry at (page, offset), compacting the rest of
// the page leftward over it.
func (s *Store) DeleteEntry(dir *inode.Inode, page uint32, offset uint32) error {
	buf, block, err := s.pageBuffer(dir, page)
	if err != nil {
		return err
	}
	_, _, size, ok := parseEntry(buf, int(offset))
	if !ok {
		return errors.ErrInvalid.WithMessage("no entry at given page offset")
	}

	copy(buf[offset:], buf[int(offset)+size:])
	for i := len(buf) - size; i < len(buf); i++ {
		buf[i] = 0
	}
	return s.cache.MarkDirty(block)
}

// Readdir returns the entry at cookie and the cookie for the next call.
// Cookies 0 and 1 are reserved to synthesize "." and ".."; real entries
// start at cookie 2, encoding (page, offset) as 2 + (page<<12 | offset).
// end is true once there are no more entries.
func (s *Store) Readdir(dir *inode.Inode, selfIno, parentIno uint32, cookie uint64) (name string, ino uint32, next uint64, end bool, err error) {
	switch cookie {
	case 0:
		return ".", selfIno, 1, false, nil
	case 1:
		return "..", parentIno, 2, false, nil
	}

	v := cookie - 2
	page := uint32(v >> 12)
	offset := uint32(v & 0xFFF)
	totalPages := dir.Size / storage.BlockSize

	for page < totalPages {
		buf, _, err := s.pageBuffer(dir, page)
		if err != nil {
			return "", 0, 0, true, err
		}
		entryIno, entryName, size, ok := parseEntry(buf, int(offset))
		if !ok {
			page++
			offset = 0
			continue
		}
		nextOffset := offset + uint32(size)
		var nextCookie uint64
		if nextOffset >= storage.BlockSize {
			nextCookie = 2 + uint64(page+1)<<12
		} else {
			nextCookie = 2 + (uint64(page)<<12 | uint64(nextOffset))
		}
		return entryName, entryIno, nextCookie, false, nil
	}
	return "", 0, 0, true, nil
}

// IsEmpty reports whether dir has no entries, per the spec's page-0-only
// check: the insert algorithm always fills page 0 before growing, so an
// empty page 0 implies an empty directory.
func (s *Store) IsEmpty(dir *inode.Inode) (bool, error) {
	if dir.Size == 0 {
		return true, nil
	}
	buf, _, err := s.pageBuffer(dir, 0)
	if err != nil {
		return false, err
	}
	_, _, _, ok := parseEntry(buf, 0)
	return !ok, nil
}
