package sfs

import (
	"math"
	"os"
	"time"
)

// FileStat is a platform-independent form of [syscall.Stat_t], returned by
// volume.Stat.
type FileStat struct {
	InodeNumber  uint64
	Nlinks       uint64
	ModeFlags    os.FileMode
	Uid          uint32
	Gid          uint32
	Size         int64
	BlockSize    int64
	NumBlocks    int64
	CreatedAt    time.Time
	LastAccessed time.Time
	LastModified time.Time
	LastChanged  time.Time
}

func (stat *FileStat) IsDir() bool {
	return stat.ModeFlags.IsDir()
}

func (stat *FileStat) IsFile() bool {
	return stat.ModeFlags.IsRegular()
}

func (stat *FileStat) IsSymlink() bool {
	return stat.ModeFlags&os.ModeType == os.ModeSymlink
}

// FSStat is a platform-independent form of [syscall.Statfs_t], returned by
// volume.FSStat.
type FSStat struct {
	// BlockSize is the size of a logical block on the file system, in bytes.
	// Always 4096 for SFS.
	BlockSize int64
	// TotalBlocks is the total number of blocks on the disk image.
	TotalBlocks uint64
	// BlocksFree is the number of unallocated blocks on the image.
	BlocksFree uint64
	// Files is the total number of allocated inodes on the file system.
	Files uint64
	// FilesFree is the number of remaining inodes available for use.
	FilesFree uint64
	// MaxNameLength is the longest possible name for a directory entry, in
	// bytes. 0 means unlimited, matching s_namelen's on-disk meaning.
	MaxNameLength int64
}

// UndefinedTimestamp is used as an invalid/unset timestamp value, like nil
// for pointers. SFS has no notion of creation time, so this shows up in
// FileStat.CreatedAt, a field the format just doesn't carry.
var UndefinedTimestamp = time.UnixMicro(math.MaxInt64)
