package volume

import (
	"fmt"

	gobitmap "github.com/boljen/go-bitmap"
	"github.com/noxer/bytewriter"

	"github.com/sfs-fs/sfs"
	"github.com/sfs-fs/sfs/errors"
	"github.com/sfs-fs/sfs/inode"
	"github.com/sfs-fs/sfs/storage"
)

// FormatOptions controls the offline formatter. Callers (typically
// cmd/mkfssfs) are responsible for working out totalBlocks/InodeCount from
// device geometry or user-supplied flags; Format itself just validates and
// writes.
type FormatOptions struct {
	// InodeCount is the number of inodes to allocate room for; must be a
	// positive multiple of inode.PerBlock.
	InodeCount uint32
	// MaxNameLen caps directory entry names; 0 means unlimited.
	MaxNameLen uint16
}

func blocksFor(bits, bitsPerBlock uint32) uint32 {
	return (bits + bitsPerBlock - 1) / bitsPerBlock
}

// Format writes a fresh, empty, valid SFS image covering totalBlocks
// blocks to device.
func Format(device *storage.Device, totalBlocks uint32, opts FormatOptions) error {
	if opts.InodeCount == 0 || opts.InodeCount%inode.PerBlock != 0 {
		return errors.ErrInvalid.WithMessage(
			fmt.Sprintf("inode count must be a positive multiple of %d, got %d",
				inode.PerBlock, opts.InodeCount))
	}

	imapBlocks := blocksFor(opts.InodeCount, storage.BlockSize*8)
	bmapBlocks := blocksFor(totalBlocks, storage.BlockSize*8)
	inodeBlocks := opts.InodeCount / inode.PerBlock
	firstDataBlock := 1 + imapBlocks + bmapBlocks + inodeBlocks

	if firstDataBlock >= totalBlocks {
		return errors.ErrBadGeometry.WithMessage(
			fmt.Sprintf("metadata alone needs %d blocks, image only has %d",
				firstDataBlock, totalBlocks))
	}

	sb := Superblock{
		NumBlocks:      totalBlocks,
		NumInodes:      opts.InodeCount,
		InodeBlocks:    inodeBlocks,
		ImapBlocks:     imapBlocks,
		BmapBlocks:     bmapBlocks,
		FirstDataBlock: firstDataBlock,
		State:          sfs.StateValid,
		NameLen:        opts.MaxNameLen,
		Magic:          Magic,
	}

	prefixBlocks := firstDataBlock
	image := make([]byte, uint64(prefixBlocks)*storage.BlockSize)
	writer := bytewriter.New(image)

	sbBuf := make([]byte, storage.BlockSize)
	encodeSuperblock(sb, sbBuf[:RawSize])
	if _, err := writer.Write(sbBuf); err != nil {
		return errors.ErrIOFailed.WrapError(err)
	}

	imap := gobitmap.New(int(imapBlocks) * storage.BlockSize * 8)
	imap.Set(int(inode.NumNull), true)
	imap.Set(int(inode.NumBadBlocks), true)
	imap.Set(int(inode.NumRoot), true)
	if _, err := writer.Write(imap.Data(false)[:imapBlocks*storage.BlockSize]); err != nil {
		return errors.ErrIOFailed.WrapError(err)
	}

	bmap := gobitmap.New(int(bmapBlocks) * storage.BlockSize * 8)
	for b := uint32(0); b < firstDataBlock; b++ {
		bmap.Set(int(b), true)
	}
	if _, err := writer.Write(bmap.Data(false)[:bmapBlocks*storage.BlockSize]); err != nil {
		return errors.ErrIOFailed.WrapError(err)
	}

	now := currentTimestamp()
	rootInode := inode.RawInode{
		Mode:  sfs.S_IFDIR | sfs.S_IRWXU | sfs.S_IRGRP | sfs.S_IXGRP | sfs.S_IROTH | sfs.S_IXOTH,
		Nlink: 2,
		Atime: now,
		Mtime: now,
		Ctime: now,
	}
	rootBuf := make([]byte, inode.RawSize)
	inode.EncodeRawInode(rootInode, rootBuf)

	emptyInode := make([]byte, inode.RawSize)
	for i := uint32(0); i < opts.InodeCount; i++ {
		buf := emptyInode
		if i == uint32(inode.NumRoot) {
			buf = rootBuf
		}
		if _, err := writer.Write(buf); err != nil {
			return errors.ErrIOFailed.WrapError(err)
		}
	}

	if err := device.WriteBlocks(0, image); err != nil {
		return err
	}
	return device.Flush()
}
