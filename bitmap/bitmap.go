// Package bitmap implements the inode and data-block allocator: two
// identical-shaped bitmap regions, one bit per object ID, loaded once at
// mount and pinned in memory for the life of the mount.
package bitmap

import (
	"fmt"

	gobitmap "github.com/boljen/go-bitmap"

	"github.com/sfs-fs/sfs/errors"
	"github.com/sfs-fs/sfs/storage"
)

// Region is one bitmap (either the inode map or the data-block map). Bit k
// corresponds to object ID k; bit order within a byte is LSB-first, i.e.
// bit k lives in byte k>>3 at 1<<(k&7) — this is exactly go-bitmap's own
// convention, so Region's backing array doubles as a gobitmap.Bitmap with
// no translation.
type Region struct {
	device    *storage.Device
	base      storage.BlockNum
	numBlocks storage.BlockNum
	limit     uint32
	data      []byte
	dirty     []bool
}

// Load reads numBlocks blocks starting at base from device into memory as a
// Region covering limit valid object IDs (the remaining bits, if any, in
// the last block are never scanned or addressed).
func Load(device *storage.Device, base, numBlocks storage.BlockNum, limit uint32) (*Region, error) {
	data, err := device.ReadBlocks(base, uint(numBlocks))
	if err != nil {
		return nil, err
	}
	return &Region{
		device:    device,
		base:      base,
		numBlocks: numBlocks,
		limit:     limit,
		data:      data,
		dirty:     make([]bool, numBlocks),
	}, nil
}

func (r *Region) bits() gobitmap.Bitmap {
	return gobitmap.Bitmap(r.data)
}

func (r *Region) markDirty(id uint32) {
	blockIdx := (id / 8) / storage.BlockSize
	r.dirty[blockIdx] = true
}

// acquireFrom scans bits starting at bit index `start`, skipping 0xFF bytes
// wholesale, and returns the first clear bit found before limit.
func (r *Region) acquireFrom(start uint32) (uint32, error) {
	bm := r.bits()
	byteStart := start / 8

scan:
	for byteIdx := int(byteStart); byteIdx < len(r.data); byteIdx++ {
		if r.data[byteIdx] == 0xFF {
			continue
		}
		for bit := uint32(0); bit < 8; bit++ {
			id := uint32(byteIdx)*8 + bit
			if id < start {
				continue
			}
			if id >= r.limit {
				break scan
			}
			if !bm.Get(int(id)) {
				bm.Set(int(id), true)
				r.markDirty(id)
				return id, nil
			}
		}
	}
	return 0, errors.ErrNoSpace
}

// Acquire finds the first free bit, sets it, and returns its ID. Returns
// ErrNoSpace if every bit in [0, limit) is set.
func (r *Region) Acquire() (uint32, error) {
	return r.acquireFrom(0)
}

// AcquireAfter prefers a bit at or after hint (e.g. the physical successor
// of an extent's last block), falling back to a full scan from 0 if the
// tail of the bitmap has nothing free.
func (r *Region) AcquireAfter(hint uint32) (uint32, error) {
	if id, err := r.acquireFrom(hint); err == nil {
		return id, nil
	}
	return r.Acquire()
}

// Release clears the bit for id. Returns ErrInvalid if id is out of range
// or already clear.
func (r *Region) Release(id uint32) error {
	if id >= r.limit {
		return errors.ErrInvalid.WithMessage(
			fmt.Sprintf("id %d not in range [0, %d)", id, r.limit))
	}
	bm := r.bits()
	if !bm.Get(int(id)) {
		return errors.ErrInvalid.WithMessage(fmt.Sprintf("id %d is already free", id))
	}
	bm.Set(int(id), false)
	r.markDirty(id)
	return nil
}

// IsSet reports whether id's bit is currently set, for fsck-style checks.
func (r *Region) IsSet(id uint32) bool {
	if id >= r.limit {
		return false
	}
	return r.bits().Get(int(id))
}

// Limit returns the number of valid object IDs this region addresses.
func (r *Region) Limit() uint32 {
	return r.limit
}

// Persist writes back every block touched since Load or the last Persist.
func (r *Region) Persist() error {
	for i, isDirty := range r.dirty {
		if !isDirty {
			continue
		}
		block := r.base + storage.BlockNum(i)
		start := i * storage.BlockSize
		if err := r.device.WriteBlocks(block, r.data[start:start+storage.BlockSize]); err != nil {
			return err
		}
		r.dirty[i] = false
	}
	return nil
}
