// Package volume is the top of the stack: it mounts a device, wires
// together the bitmap allocators, inode store, extent tree, page mapper,
// and directory store, and exposes the namespace operations (lookup,
// mknod, mkdir, link, unlink, ...) a caller needs to drive a filesystem.
package volume

import (
	"sync"
	"time"

	"github.com/sfs-fs/sfs"
	"github.com/sfs-fs/sfs/bitmap"
	"github.com/sfs-fs/sfs/dirstore"
	"github.com/sfs-fs/sfs/errors"
	"github.com/sfs-fs/sfs/inode"
	"github.com/sfs-fs/sfs/storage"
)

// fsEpoch matches inode.fsEpoch; the on-disk timestamps are seconds since
// the Unix epoch.
var fsEpoch = time.Unix(0, 0).UTC()

func currentTimestamp() uint32 {
	return uint32(time.Now().UTC().Sub(fsEpoch).Seconds())
}

// Volume is a mounted SFS filesystem image. It owns every in-memory
// structure needed to serve namespace operations and serializes all of
// them behind a single coarse mutex, per the format's concurrency model.
type Volume struct {
	device *storage.Device
	sb     Superblock
	flags  sfs.MountFlags

	imap *bitmap.Region
	bmap *bitmap.Region

	inodeCache *storage.Cache
	dataCache  *storage.Cache

	inodes *inode.Store
	tree   *inode.Tree
	pager  *inode.PageMapper
	dirs   *dirstore.Store

	mu sync.RWMutex
}

// Mount loads the superblock from device, validates its geometry, and
// wires up the rest of the layer stack. On a writable mount the MOUNTED
// bit is set and the superblock written back at once; callers must
// eventually call Unmount.
func Mount(device *storage.Device, flags sfs.MountFlags) (*Volume, error) {
	sb, flags, err := loadSuperblock(device, flags)
	if err != nil {
		return nil, err
	}

	imapBase := storage.BlockNum(1)
	bmapBase := imapBase + storage.BlockNum(sb.ImapBlocks)
	inodeTableBase := bmapBase + storage.BlockNum(sb.BmapBlocks)

	imap, err := bitmap.Load(device, imapBase, storage.BlockNum(sb.ImapBlocks), sb.NumInodes)
	if err != nil {
		return nil, err
	}
	bmap, err := bitmap.Load(device, bmapBase, storage.BlockNum(sb.BmapBlocks), sb.NumBlocks)
	if err != nil {
		return nil, err
	}

	inodeCache := storage.NewCache(device, inodeTableBase, storage.BlockNum(sb.InodeBlocks))
	dataCache := storage.NewCache(device, storage.BlockNum(sb.FirstDataBlock),
		storage.BlockNum(sb.NumBlocks)-storage.BlockNum(sb.FirstDataBlock))

	inodes := inode.NewStore(inodeCache, imap, inodeTableBase, sb.NumInodes)
	tree := inode.NewTree(dataCache, bmap)
	pager := inode.NewPageMapper(tree, dataCache)
	dirs := dirstore.NewStore(tree, dataCache)

	vol := &Volume{
		device:     device,
		sb:         sb,
		flags:      flags,
		imap:       imap,
		bmap:       bmap,
		inodeCache: inodeCache,
		dataCache:  dataCache,
		inodes:     inodes,
		tree:       tree,
		pager:      pager,
		dirs:       dirs,
	}

	if flags.CanWrite() {
		vol.sb.State |= sfs.StateMounted
		if err := persistSuperblock(device, vol.sb); err != nil {
			return nil, err
		}
	}

	return vol, nil
}

// Unmount flushes every dirty block back to the device. On a writable
// mount it also writes back the bitmaps, clears the MOUNTED flag, and
// restores VALID.
func (v *Volume) Unmount() error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if err := v.inodeCache.Flush(); err != nil {
		return err
	}
	if err := v.dataCache.Flush(); err != nil {
		return err
	}
	if v.flags.CanWrite() {
		if err := v.imap.Persist(); err != nil {
			return err
		}
		if err := v.bmap.Persist(); err != nil {
			return err
		}
		v.sb.State &^= sfs.StateMounted
		v.sb.State |= sfs.StateValid
		if err := persistSuperblock(v.device, v.sb); err != nil {
			return err
		}
	}
	return v.device.Flush()
}

// FSStat reports aggregate volume statistics.
func (v *Volume) FSStat() sfs.FSStat {
	v.mu.RLock()
	defer v.mu.RUnlock()

	freeBlocks := uint64(0)
	for b := uint32(0); b < v.sb.NumBlocks; b++ {
		if !v.bmap.IsSet(b) {
			freeBlocks++
		}
	}
	freeInodes := uint64(0)
	for i := uint32(0); i < v.sb.NumInodes; i++ {
		if !v.imap.IsSet(i) {
			freeInodes++
		}
	}

	return sfs.FSStat{
		BlockSize:     storage.BlockSize,
		TotalBlocks:   uint64(v.sb.NumBlocks),
		BlocksFree:    freeBlocks,
		Files:         uint64(v.sb.NumInodes) - freeInodes,
		FilesFree:     freeInodes,
		MaxNameLength: int64(v.sb.NameLen),
	}
}

// Stat returns FileStat for the inode with the given number.
func (v *Volume) Stat(id inode.Num) (sfs.FileStat, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()

	in, err := v.inodes.ReadRaw(id)
	if err != nil {
		return sfs.FileStat{}, err
	}
	return in.Stat(), nil
}

// ReadFile reads up to len(buf) bytes from the file at id, starting at
// offset.
func (v *Volume) ReadFile(id inode.Num, offset uint64, buf []byte) (int, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()

	in, err := v.inodes.ReadRaw(id)
	if err != nil {
		return 0, err
	}
	if in.IsDir() {
		return 0, errors.ErrIsADirectory
	}
	return v.pager.ReadAt(in, offset, buf)
}

// WriteFile writes buf to the file at id starting at offset, growing the
// file and its extent tree as needed.
func (v *Volume) WriteFile(id inode.Num, offset uint64, buf []byte) (int, error) {
	if !v.flags.CanWrite() {
		return 0, errors.ErrReadOnly
	}
	v.mu.Lock()
	defer v.mu.Unlock()

	in, err := v.inodes.ReadRaw(id)
	if err != nil {
		return 0, err
	}
	if in.IsDir() {
		return 0, errors.ErrIsADirectory
	}
	n, err := v.pager.WriteAt(in, offset, buf)
	if err != nil {
		return n, err
	}
	now := currentTimestamp()
	in.Mtime = now
	in.Ctime = now
	if err := v.inodes.WriteInode(in); err != nil {
		return n, err
	}
	return n, nil
}

// Truncate resizes the file at id to newSize, freeing extents past the new
// end (or leaving it unchanged if newSize is not smaller than the current
// size — this layer never zero-extends a file's allocation on its own;
// WriteFile does that implicitly as writes land past EOF).
func (v *Volume) Truncate(id inode.Num, newSize uint32) error {
	if !v.flags.CanWrite() {
		return errors.ErrReadOnly
	}
	v.mu.Lock()
	defer v.mu.Unlock()

	in, err := v.inodes.ReadRaw(id)
	if err != nil {
		return err
	}
	if in.IsDir() {
		return errors.ErrIsADirectory
	}
	keep := (newSize + storage.BlockSize - 1) / storage.BlockSize
	if err := v.tree.Truncate(in, keep); err != nil {
		return err
	}
	now := currentTimestamp()
	in.Size = newSize
	in.Ctime = now
	in.Mtime = now
	return v.inodes.WriteInode(in)
}
