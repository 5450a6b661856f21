// Package inode implements the inode store, the extent tree, and the page
// mapper: everything needed to turn an inode number into readable and
// writable byte ranges.
package inode

import (
	"encoding/binary"
	"os"
	"time"

	"github.com/sfs-fs/sfs"
)

// Num is an inode ID. IDs 0 and 1 are reserved (0 is the sentinel/free
// marker, 1 is a historical bad-block tag); 2 is always the root directory.
type Num uint32

const (
	// NumNull marks an unallocated inode slot.
	NumNull Num = 0
	// NumBadBlocks is reserved for historical compatibility and never
	// allocated.
	NumBadBlocks Num = 1
	// NumRoot is always the root directory's inode.
	NumRoot Num = 2
)

// RawSize is the on-disk size of one inode, in bytes. 64 inodes fit in one
// 4096-byte block.
const RawSize = 64

// PerBlock is the number of inodes packed into one block.
const PerBlock = 4096 / RawSize

// Extent describes a contiguous run of count physical blocks starting at
// block start. A zero extent (start == 0 && count == 0) means "unused".
type Extent struct {
	Start uint32
	Count uint32
}

func (e Extent) IsZero() bool {
	return e.Start == 0 && e.Count == 0
}

// directExtents is how many (start, count) pairs live directly in the raw
// inode's Data array before the indirect/doubly-indirect pointers.
const directExtents = 4

// indirectSlot and doublyIndirectSlot are the Data[] indices holding the
// physical block numbers of the indirect and doubly-indirect blocks.
const (
	indirectSlot       = 8
	doublyIndirectSlot = 9
)

// extentsPerIndirectBlock is how many (start, count) pairs fit in one
// indirect block (4096 / 8).
const extentsPerIndirectBlock = 4096 / 8

// pointersPerDoublyIndirectBlock is how many u32 pointers to indirect
// blocks fit in one doubly-indirect block (4096 / 4).
const pointersPerDoublyIndirectBlock = 4096 / 4

// RawInode is the exact 64-byte on-disk inode layout.
type RawInode struct {
	Mode  uint16
	Nlink uint16
	Uid   uint16
	Gid   uint16
	Size  uint32
	Atime uint32
	Mtime uint32
	Ctime uint32
	Data  [10]uint32
}

// DecodeRawInode unpacks RawSize bytes of little-endian wire data into a
// RawInode.
func DecodeRawInode(buf []byte) RawInode {
	var raw RawInode
	raw.Mode = binary.LittleEndian.Uint16(buf[0:2])
	raw.Nlink = binary.LittleEndian.Uint16(buf[2:4])
	raw.Uid = binary.LittleEndian.Uint16(buf[4:6])
	raw.Gid = binary.LittleEndian.Uint16(buf[6:8])
	raw.Size = binary.LittleEndian.Uint32(buf[8:12])
	raw.Atime = binary.LittleEndian.Uint32(buf[12:16])
	raw.Mtime = binary.LittleEndian.Uint32(buf[16:20])
	raw.Ctime = binary.LittleEndian.Uint32(buf[20:24])
	for i := 0; i < 10; i++ {
		raw.Data[i] = binary.LittleEndian.Uint32(buf[24+i*4 : 28+i*4])
	}
	return raw
}

// EncodeRawInode packs raw into RawSize bytes of buf.
func EncodeRawInode(raw RawInode, buf []byte) {
	binary.LittleEndian.PutUint16(buf[0:2], raw.Mode)
	binary.LittleEndian.PutUint16(buf[2:4], raw.Nlink)
	binary.LittleEndian.PutUint16(buf[4:6], raw.Uid)
	binary.LittleEndian.PutUint16(buf[6:8], raw.Gid)
	binary.LittleEndian.PutUint32(buf[8:12], raw.Size)
	binary.LittleEndian.PutUint32(buf[12:16], raw.Atime)
	binary.LittleEndian.PutUint32(buf[16:20], raw.Mtime)
	binary.LittleEndian.PutUint32(buf[20:24], raw.Ctime)
	for i := 0; i < 10; i++ {
		binary.LittleEndian.PutUint32(buf[24+i*4:28+i*4], raw.Data[i])
	}
}

// Inode is the in-memory, decoded form of a RawInode plus its number.
// Callers get one from Store.ReadRaw / Store.NewInode and pass
// it back to Store.WriteInode to persist changes.
type Inode struct {
	Num   Num
	Mode  uint16
	Nlink uint16
	Uid   uint16
	Gid   uint16
	Size  uint32
	Atime uint32
	Mtime uint32
	Ctime uint32
	Data  [10]uint32
}

// fsEpoch is the reference point for the inode's second-granularity
// timestamps.
var fsEpoch = time.Unix(0, 0).UTC()

func fromRaw(num Num, raw RawInode) *Inode {
	return &Inode{
		Num:   num,
		Mode:  raw.Mode,
		Nlink: raw.Nlink,
		Uid:   raw.Uid,
		Gid:   raw.Gid,
		Size:  raw.Size,
		Atime: raw.Atime,
		Mtime: raw.Mtime,
		Ctime: raw.Ctime,
		Data:  raw.Data,
	}
}

func (inode *Inode) toRaw() RawInode {
	return RawInode{
		Mode:  inode.Mode,
		Nlink: inode.Nlink,
		Uid:   inode.Uid,
		Gid:   inode.Gid,
		Size:  inode.Size,
		Atime: inode.Atime,
		Mtime: inode.Mtime,
		Ctime: inode.Ctime,
		Data:  inode.Data,
	}
}

// ModeFlags returns Mode as an os.FileMode, for callers working in Go's
// file-mode vocabulary rather than the raw on-disk bits.
func (inode *Inode) ModeFlags() os.FileMode {
	perm := os.FileMode(inode.Mode & 0777)
	switch inode.Mode & sfs.S_IFMT {
	case sfs.S_IFDIR:
		return perm | os.ModeDir
	case sfs.S_IFLNK:
		return perm | os.ModeSymlink
	default:
		return perm
	}
}

func (inode *Inode) IsDir() bool {
	return inode.Mode&sfs.S_IFMT == sfs.S_IFDIR
}

func (inode *Inode) IsSymlink() bool {
	return inode.Mode&sfs.S_IFMT == sfs.S_IFLNK
}

// Stat converts the inode into a sfs.FileStat for callers outside the
// package.
func (inode *Inode) Stat() sfs.FileStat {
	return sfs.FileStat{
		InodeNumber:  uint64(inode.Num),
		Nlinks:       uint64(inode.Nlink),
		ModeFlags:    inode.ModeFlags(),
		Uid:          uint32(inode.Uid),
		Gid:          uint32(inode.Gid),
		Size:         int64(inode.Size),
		BlockSize:    4096,
		NumBlocks:    int64((uint64(inode.Size) + 4095) / 4096),
		CreatedAt:    sfs.UndefinedTimestamp,
		LastAccessed: fsEpoch.Add(time.Second * time.Duration(inode.Atime)),
		LastModified: fsEpoch.Add(time.Second * time.Duration(inode.Mtime)),
		LastChanged:  fsEpoch.Add(time.Second * time.Duration(inode.Ctime)),
	}
}
