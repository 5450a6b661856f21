package storage

import (
	"fmt"

	"github.com/boljen/go-bitmap"

	"github.com/sfs-fs/sfs/errors"
)

// Cache is a write-back block cache sitting in front of a Device. The
// volume reads inode-table blocks and data blocks (file contents,
// directory pages, indirect blocks) through one of these rather than
// hitting the Device directly, so repeated access to hot blocks doesn't
// round-trip to the backing stream. The superblock and the bitmaps are
// read from the Device directly, not through a Cache.
//
// A Cache is not safe for concurrent use; callers serialize access with
// their own lock (the volume package holds one coarse sync.RWMutex per
// mounted volume).
type Cache struct {
	device  *Device
	present bitmap.Bitmap
	dirty   bitmap.Bitmap
	data    []byte
	first   BlockNum
	count   BlockNum
}

// NewCache creates a cache fronting numBlocks consecutive blocks of device,
// starting at firstBlock. Nothing is loaded until it's read.
func NewCache(device *Device, firstBlock BlockNum, numBlocks BlockNum) *Cache {
	return &Cache{
		device:  device,
		present: bitmap.NewSlice(int(numBlocks)),
		dirty:   bitmap.NewSlice(int(numBlocks)),
		data:    make([]byte, int(numBlocks)*BlockSize),
		first:   firstBlock,
		count:   numBlocks,
	}
}

func (c *Cache) checkRange(block BlockNum, numBlocks uint) error {
	if block < c.first || uint64(block-c.first)+uint64(numBlocks) > uint64(c.count) {
		return errors.ErrIOFailed.WithMessage(
			fmt.Sprintf("block %d (+%d) outside cache range [%d, %d)",
				block, numBlocks, c.first, c.first+c.count))
	}
	return nil
}

func (c *Cache) localIndex(block BlockNum) int {
	return int(block - c.first)
}

func (c *Cache) slice(block BlockNum, numBlocks uint) []byte {
	start := c.localIndex(block) * BlockSize
	end := start + int(numBlocks)*BlockSize
	return c.data[start:end]
}

func (c *Cache) ensureLoaded(block BlockNum, numBlocks uint) error {
	if err := c.checkRange(block, numBlocks); err != nil {
		return err
	}
	for i := uint(0); i < numBlocks; i++ {
		b := block + BlockNum(i)
		idx := c.localIndex(b)
		if c.present.Get(idx) {
			continue
		}
		buf, err := c.device.ReadBlocks(b, 1)
		if err != nil {
			return err
		}
		copy(c.slice(b, 1), buf)
		c.present.Set(idx, true)
		c.dirty.Set(idx, false)
	}
	return nil
}

// Get returns the contents of the block, loading it from the device first
// if it isn't already cached. The returned slice aliases the cache's
// internal buffer, so in-place changes need a MarkDirty to be flushed.
func (c *Cache) Get(block BlockNum) ([]byte, error) {
	if err := c.ensureLoaded(block, 1); err != nil {
		return nil, err
	}
	return c.slice(block, 1), nil
}

// Put overwrites the contents of block and marks it dirty. data must be
// exactly BlockSize bytes.
func (c *Cache) Put(block BlockNum, data []byte) error {
	if len(data) != BlockSize {
		return errors.ErrInvalid.WithMessage(
			fmt.Sprintf("block write must be exactly %d bytes, got %d", BlockSize, len(data)))
	}
	if err := c.checkRange(block, 1); err != nil {
		return err
	}
	copy(c.slice(block, 1), data)
	idx := c.localIndex(block)
	c.present.Set(idx, true)
	c.dirty.Set(idx, true)
	return nil
}

// MarkDirty flags an already-loaded block as dirty without rewriting its
// contents, for callers that mutate a slice returned by Get in place.
func (c *Cache) MarkDirty(block BlockNum) error {
	if err := c.checkRange(block, 1); err != nil {
		return err
	}
	idx := c.localIndex(block)
	c.present.Set(idx, true)
	c.dirty.Set(idx, true)
	return nil
}

// Flush writes every dirty block back to the device and clears the dirty
// bits. It does not call Device.Flush; the caller decides when to fsync.
func (c *Cache) Flush() error {
	for i := 0; i < int(c.count); i++ {
		if !c.dirty.Get(i) {
			continue
		}
		block := c.first + BlockNum(i)
		if err := c.device.WriteBlocks(block, c.slice(block, 1)); err != nil {
			return err
		}
		c.dirty.Set(i, false)
	}
	return nil
}
