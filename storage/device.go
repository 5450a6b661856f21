// Package storage is the lowest layer of the volume: it turns a raw
// io.ReadWriteSeeker into a fixed-size, block-addressable device and
// provides a write-back cache on top of it.
package storage

import (
	"fmt"
	"io"

	"github.com/sfs-fs/sfs/errors"
)

// BlockNum is a physical block number on the device. Block 0 holds the
// superblock; it is a valid BlockNum but storage never treats it specially,
// that's the volume layer's job.
type BlockNum uint32

// BlockSize is the fixed logical block size SFS volumes are built from.
const BlockSize = 4096

// Device wraps a seekable stream (a disk image file, or an in-memory buffer
// in tests) and exposes it as a sequence of fixed-size blocks.
//
// The exposed fields are informational only; never modify them directly.
type Device struct {
	// TotalBlocks is the number of BlockSize-byte blocks addressable on this
	// device.
	TotalBlocks BlockNum
	stream      io.ReadWriteSeeker
}

// NewDevice wraps stream as a Device with totalBlocks addressable blocks.
func NewDevice(stream io.ReadWriteSeeker, totalBlocks BlockNum) *Device {
	return &Device{TotalBlocks: totalBlocks, stream: stream}
}

// DetermineBlockCount returns how many whole BlockSize-byte blocks fit in
// stream, for sizing a Device over an existing image file.
func DetermineBlockCount(stream io.Seeker) (BlockNum, error) {
	offset, err := stream.Seek(0, io.SeekEnd)
	if err != nil {
		return 0, err
	}
	return BlockNum(offset / BlockSize), nil
}

func (d *Device) checkBounds(block BlockNum, numBlocks uint) error {
	if block >= d.TotalBlocks {
		return errors.ErrIOFailed.WithMessage(
			fmt.Sprintf("block %d not in range [0, %d)", block, d.TotalBlocks))
	}
	if uint64(block)+uint64(numBlocks) > uint64(d.TotalBlocks) {
		return errors.ErrIOFailed.WithMessage(
			fmt.Sprintf("block range [%d, %d) extends past end of device (%d blocks)",
				block, uint64(block)+uint64(numBlocks), d.TotalBlocks))
	}
	return nil
}

func (d *Device) seekToBlock(block BlockNum) error {
	_, err := d.stream.Seek(int64(block)*BlockSize, io.SeekStart)
	return err
}

// ReadBlocks reads numBlocks blocks starting at block into a freshly
// allocated buffer.
func (d *Device) ReadBlocks(block BlockNum, numBlocks uint) ([]byte, error) {
	if err := d.checkBounds(block, numBlocks); err != nil {
		return nil, err
	}
	if err := d.seekToBlock(block); err != nil {
		return nil, errors.ErrIOFailed.WrapError(err)
	}

	buffer := make([]byte, uint(BlockSize)*numBlocks)
	if _, err := io.ReadFull(d.stream, buffer); err != nil {
		return nil, errors.ErrIOFailed.WrapError(err)
	}
	return buffer, nil
}

// WriteBlocks writes data to the device starting at block. len(data) must be
// a positive multiple of BlockSize.
func (d *Device) WriteBlocks(block BlockNum, data []byte) error {
	if len(data)%BlockSize != 0 {
		return errors.ErrInvalid.WithMessage(
			fmt.Sprintf("write of %d bytes is not a multiple of the block size (%d)",
				len(data), BlockSize))
	}
	numBlocks := uint(len(data) / BlockSize)
	if err := d.checkBounds(block, numBlocks); err != nil {
		return err
	}
	if err := d.seekToBlock(block); err != nil {
		return errors.ErrIOFailed.WrapError(err)
	}
	if _, err := d.stream.Write(data); err != nil {
		return errors.ErrIOFailed.WrapError(err)
	}
	return nil
}

// Flush syncs the underlying stream if it supports it (e.g. *os.File). It's
// a no-op for streams that don't implement an explicit sync method.
func (d *Device) Flush() error {
	type syncer interface {
		Sync() error
	}
	if s, ok := d.stream.(syncer); ok {
		if err := s.Sync(); err != nil {
			return errors.ErrIOFailed.WrapError(err)
		}
	}
	return nil
}
