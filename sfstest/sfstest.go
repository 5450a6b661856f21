// Package sfstest provides in-memory SFS images for tests, the way the
// teacher's testing package built random/fixture images over an
// io.ReadWriteSeeker for its own block cache tests.
package sfstest

import (
	"crypto/rand"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/xaionaro-go/bytesextra"

	"github.com/sfs-fs/sfs"
	"github.com/sfs-fs/sfs/inode"
	"github.com/sfs-fs/sfs/storage"
	"github.com/sfs-fs/sfs/volume"
)

// RandomImage returns totalBlocks*storage.BlockSize bytes of random data,
// useful as backing storage for tests that only care about structured
// regions a format pass will overwrite anyway.
func RandomImage(t *testing.T, totalBlocks uint32) []byte {
	buf := make([]byte, uint64(totalBlocks)*storage.BlockSize)
	_, err := rand.Read(buf)
	require.NoError(t, err, "failed to fill %d blocks with random bytes", totalBlocks)
	return buf
}

// NewDevice wraps a fresh in-memory image of totalBlocks blocks as a
// storage.Device. The image starts out random, not zeroed, so tests that
// forget to format it will see an invalid superblock rather than a
// deceptively clean all-zero one.
func NewDevice(t *testing.T, totalBlocks uint32) *storage.Device {
	backing := RandomImage(t, totalBlocks)
	stream := bytesextra.NewReadWriteSeeker(backing)
	return storage.NewDevice(stream, storage.BlockNum(totalBlocks))
}

// FormatOptions are the options FormattedDevice/MountedVolume use when the
// caller doesn't need to override them.
func defaultFormatOptions(totalBlocks uint32) volume.FormatOptions {
	inodeCount := totalBlocks / 100
	if inodeCount < inode.PerBlock {
		inodeCount = inode.PerBlock
	}
	if rem := inodeCount % inode.PerBlock; rem != 0 {
		inodeCount += inode.PerBlock - rem
	}
	return volume.FormatOptions{InodeCount: inodeCount}
}

// FormattedDevice returns a freshly formatted in-memory device of totalBlocks
// blocks, ready to Mount.
func FormattedDevice(t *testing.T, totalBlocks uint32) *storage.Device {
	device := NewDevice(t, totalBlocks)
	err := volume.Format(device, totalBlocks, defaultFormatOptions(totalBlocks))
	require.NoError(t, err, "formatting %d-block test image", totalBlocks)
	return device
}

// MountedVolume formats a fresh in-memory image and mounts it read-write,
// registering a cleanup that unmounts it when the test finishes.
func MountedVolume(t *testing.T, totalBlocks uint32) *volume.Volume {
	device := FormattedDevice(t, totalBlocks)
	vol, err := volume.Mount(device, sfs.MountFlagsAllowWrite)
	require.NoError(t, err, "mounting freshly formatted test image")
	t.Cleanup(func() {
		require.NoError(t, vol.Unmount(), "unmounting test volume")
	})
	return vol
}
