package volume

import (
	"fmt"

	"github.com/hashicorp/go-multierror"

	"github.com/sfs-fs/sfs/errors"
	"github.com/sfs-fs/sfs/inode"
	"github.com/sfs-fs/sfs/storage"
)

// Check walks every allocated inode from the root up and its extent tree,
// verifying the invariants the format promises (extents inside the data
// region, data-bitmap ownership, no two inodes sharing a block, extent
// counts matching i_size). It never
// repairs anything — it's a read-only diagnostic, not a full fsck — and
// returns every violation it finds rather than stopping at the first one.
func (v *Volume) Check() error {
	v.mu.RLock()
	defer v.mu.RUnlock()

	var result *multierror.Error
	claimed := make(map[uint32]inode.Num)

	for id := uint32(inode.NumRoot); id < v.sb.NumInodes; id++ {
		if !v.imap.IsSet(id) {
			continue
		}

		in, err := v.inodes.ReadRaw(inode.Num(id))
		if err != nil {
			result = multierror.Append(result, fmt.Errorf("inode %d: %w", id, err))
			continue
		}

		var blockCount uint32
		err = v.walkExtents(in, func(e inode.Extent) error {
			blockCount += e.Count
			for b := e.Start; b < e.Start+e.Count; b++ {
				if b < v.sb.FirstDataBlock || b >= v.sb.NumBlocks {
					result = multierror.Append(result, fmt.Errorf(
						"inode %d: extent block %d outside data region [%d, %d)",
						id, b, v.sb.FirstDataBlock, v.sb.NumBlocks))
					continue
				}
				if !v.bmap.IsSet(b) {
					result = multierror.Append(result, fmt.Errorf(
						"inode %d: claims block %d but its data-bitmap bit is clear",
						id, b))
				}
				if owner, ok := claimed[b]; ok {
					result = multierror.Append(result, fmt.Errorf(
						"inode %d: block %d already claimed by inode %d",
						id, b, owner))
				} else {
					claimed[b] = inode.Num(id)
				}
			}
			return nil
		})
		if err != nil {
			result = multierror.Append(result, fmt.Errorf("inode %d: %w", id, err))
			continue
		}

		wantBlocks := (in.Size + storage.BlockSize - 1) / storage.BlockSize
		if blockCount != wantBlocks {
			result = multierror.Append(result, fmt.Errorf(
				"inode %d: extents cover %d blocks, size %d implies %d",
				id, blockCount, in.Size, wantBlocks))
		}
	}

	if result != nil {
		return errors.ErrCorrupted.WrapError(result.ErrorOrNil())
	}
	return nil
}

// walkExtents visits every populated extent of inode's tree across all
// three tiers, in order.
func (v *Volume) walkExtents(in *inode.Inode, visit func(inode.Extent) error) error {
	for i := 0; i < 4; i++ {
		e := inode.Extent{Start: in.Data[2*i], Count: in.Data[2*i+1]}
		if e.IsZero() {
			return nil
		}
		if err := visit(e); err != nil {
			return err
		}
	}

	if in.Data[8] == 0 {
		return nil
	}
	indBuf, err := v.dataCache.Get(storage.BlockNum(in.Data[8]))
	if err != nil {
		return err
	}
	for _, e := range inode.DecodeExtentBlock(indBuf) {
		if e.IsZero() {
			break
		}
		if err := visit(e); err != nil {
			return err
		}
	}

	if in.Data[9] == 0 {
		return nil
	}
	dbBuf, err := v.dataCache.Get(storage.BlockNum(in.Data[9]))
	if err != nil {
		return err
	}
	for _, ptr := range inode.DecodePointerBlock(dbBuf) {
		if ptr == 0 {
			break
		}
		ibuf, err := v.dataCache.Get(storage.BlockNum(ptr))
		if err != nil {
			return err
		}
		for _, e := range inode.DecodeExtentBlock(ibuf) {
			if e.IsZero() {
				break
			}
			if err := visit(e); err != nil {
				return err
			}
		}
	}
	return nil
}
