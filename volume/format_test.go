package volume_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xaionaro-go/bytesextra"

	"github.com/sfs-fs/sfs"
	"github.com/sfs-fs/sfs/inode"
	"github.com/sfs-fs/sfs/storage"
	"github.com/sfs-fs/sfs/volume"
)

func newFormatTestDevice(t *testing.T, totalBlocks uint32) *storage.Device {
	t.Helper()
	backing := make([]byte, int(totalBlocks)*storage.BlockSize)
	stream := bytesextra.NewReadWriteSeeker(backing)
	return storage.NewDevice(stream, storage.BlockNum(totalBlocks))
}

func TestFormat_RejectsNonMultipleInodeCount(t *testing.T) {
	device := newFormatTestDevice(t, 256)
	err := volume.Format(device, 256, volume.FormatOptions{InodeCount: 65})
	assert.Error(t, err)
}

func TestFormat_RejectsGeometryThatDoesNotFit(t *testing.T) {
	device := newFormatTestDevice(t, 4)
	err := volume.Format(device, 4, volume.FormatOptions{InodeCount: inode.PerBlock})
	assert.Error(t, err)
}

func TestFormat_ThenMountSucceeds(t *testing.T) {
	device := newFormatTestDevice(t, 256)
	require.NoError(t, volume.Format(device, 256, volume.FormatOptions{InodeCount: 64}))

	vol, err := volume.Mount(device, sfs.MountFlagsAllowWrite)
	require.NoError(t, err)
	defer vol.Unmount()

	st, err := vol.Stat(inode.NumRoot)
	require.NoError(t, err)
	assert.True(t, st.IsDir())
	assert.EqualValues(t, 2, st.Nlinks)
}

func TestFormat_RootDirectoryIsInitiallyEmpty(t *testing.T) {
	device := newFormatTestDevice(t, 256)
	require.NoError(t, volume.Format(device, 256, volume.FormatOptions{InodeCount: 64}))

	vol, err := volume.Mount(device, sfs.MountFlagsAllowWrite)
	require.NoError(t, err)
	defer vol.Unmount()

	entries, _, done, err := vol.ReadDir(inode.NumRoot, inode.NumRoot, 2, 10)
	require.NoError(t, err)
	assert.True(t, done)
	assert.Empty(t, entries)
}
