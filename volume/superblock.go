package volume

import (
	"encoding/binary"
	"fmt"

	"github.com/sfs-fs/sfs"
	"github.com/sfs-fs/sfs/errors"
	"github.com/sfs-fs/sfs/storage"
)

// Magic is the volume signature stored in the superblock.
const Magic uint16 = 0x3234

// RawSize is the on-disk size of the superblock; the remainder of block 0
// is padding.
const RawSize = 32

// Superblock is the 32-byte volume header living at block 0.
type Superblock struct {
	NumBlocks      uint32
	NumInodes      uint32
	InodeBlocks    uint32
	ImapBlocks     uint32
	BmapBlocks     uint32
	FirstDataBlock uint32
	State          uint16
	NameLen        uint16
	Magic          uint16
	Unused         uint16
}

func decodeSuperblock(buf []byte) Superblock {
	return Superblock{
		NumBlocks:      binary.LittleEndian.Uint32(buf[0:4]),
		NumInodes:      binary.LittleEndian.Uint32(buf[4:8]),
		InodeBlocks:    binary.LittleEndian.Uint32(buf[8:12]),
		ImapBlocks:     binary.LittleEndian.Uint32(buf[12:16]),
		BmapBlocks:     binary.LittleEndian.Uint32(buf[16:20]),
		FirstDataBlock: binary.LittleEndian.Uint32(buf[20:24]),
		State:          binary.LittleEndian.Uint16(buf[24:26]),
		NameLen:        binary.LittleEndian.Uint16(buf[26:28]),
		Magic:          binary.LittleEndian.Uint16(buf[28:30]),
		Unused:         binary.LittleEndian.Uint16(buf[30:32]),
	}
}

func encodeSuperblock(sb Superblock, buf []byte) {
	binary.LittleEndian.PutUint32(buf[0:4], sb.NumBlocks)
	binary.LittleEndian.PutUint32(buf[4:8], sb.NumInodes)
	binary.LittleEndian.PutUint32(buf[8:12], sb.InodeBlocks)
	binary.LittleEndian.PutUint32(buf[12:16], sb.ImapBlocks)
	binary.LittleEndian.PutUint32(buf[16:20], sb.BmapBlocks)
	binary.LittleEndian.PutUint32(buf[20:24], sb.FirstDataBlock)
	binary.LittleEndian.PutUint16(buf[24:26], sb.State)
	binary.LittleEndian.PutUint16(buf[26:28], sb.NameLen)
	binary.LittleEndian.PutUint16(buf[28:30], sb.Magic)
	binary.LittleEndian.PutUint16(buf[30:32], sb.Unused)
}

// loadSuperblock reads and validates block 0 of device. It returns the
// effective mount flags: a dirty shutdown (MOUNTED still set from a prior
// mount) forces a downgrade to read-only regardless of what the caller
// asked for.
func loadSuperblock(device *storage.Device, flags sfs.MountFlags) (Superblock, sfs.MountFlags, error) {
	raw, err := device.ReadBlocks(0, 1)
	if err != nil {
		return Superblock{}, flags, err
	}
	sb := decodeSuperblock(raw)

	if sb.Magic != Magic {
		return Superblock{}, flags, errors.ErrBadMagic.WithMessage(
			fmt.Sprintf("got magic 0x%04x, expected 0x%04x", sb.Magic, Magic))
	}
	if sb.FirstDataBlock >= sb.NumBlocks {
		return Superblock{}, flags, errors.ErrBadGeometry.WithMessage(
			fmt.Sprintf("s_firstdatablock (%d) must be < s_nblocks (%d)",
				sb.FirstDataBlock, sb.NumBlocks))
	}

	if sb.State&sfs.StateMounted != 0 {
		// Dirty shutdown: the last mount never cleared MOUNTED. Downgrade
		// to read-only unless the caller already asked for that.
		if flags.CanWrite() {
			flags = sfs.MountReadOnly
		}
		sb.State &^= sfs.StateValid
	} else if sb.State&sfs.StateValid == 0 {
		sb.State &^= sfs.StateValid
	}

	return sb, flags, nil
}

// persistSuperblock writes sb back to block 0.
func persistSuperblock(device *storage.Device, sb Superblock) error {
	buf := make([]byte, storage.BlockSize)
	encodeSuperblock(sb, buf[:RawSize])
	return device.WriteBlocks(0, buf)
}
