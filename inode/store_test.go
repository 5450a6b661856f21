package inode_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xaionaro-go/bytesextra"

	"github.com/sfs-fs/sfs"
	"github.com/sfs-fs/sfs/bitmap"
	"github.com/sfs-fs/sfs/inode"
	"github.com/sfs-fs/sfs/storage"
)

func newTestStore(t *testing.T, ninodes uint32) *inode.Store {
	t.Helper()
	inodeBlocks := storage.BlockNum((ninodes + inode.PerBlock - 1) / inode.PerBlock)
	backing := make([]byte, int(inodeBlocks+1)*storage.BlockSize)
	stream := bytesextra.NewReadWriteSeeker(backing)
	device := storage.NewDevice(stream, storage.BlockNum(len(backing)/storage.BlockSize))

	imap, err := bitmap.Load(device, 0, 1, ninodes)
	require.NoError(t, err)
	// Reserve inode IDs 0 and 1 the way Format does.
	for i := 0; i < 2; i++ {
		_, err := imap.Acquire()
		require.NoError(t, err)
	}
	cache := storage.NewCache(device, 1, inodeBlocks)
	return inode.NewStore(cache, imap, 1, ninodes)
}

func TestStore_NewInodeThenReadRaw(t *testing.T) {
	store := newTestStore(t, 32)
	in, err := store.NewInode(sfs.S_IFREG|0644, 1, 2, 100)
	require.NoError(t, err)
	require.NotZero(t, in.Num)

	got, err := store.ReadRaw(in.Num)
	require.NoError(t, err)
	assert.Equal(t, in.Mode, got.Mode)
	assert.EqualValues(t, 1, got.Uid)
	assert.EqualValues(t, 2, got.Gid)
	assert.EqualValues(t, 100, got.Atime)
}

func TestStore_WriteInodePersists(t *testing.T) {
	store := newTestStore(t, 32)
	in, err := store.NewInode(sfs.S_IFREG|0644, 0, 0, 0)
	require.NoError(t, err)

	in.Nlink = 3
	in.Size = 4096
	require.NoError(t, store.WriteInode(in))

	got, err := store.ReadRaw(in.Num)
	require.NoError(t, err)
	assert.EqualValues(t, 3, got.Nlink)
	assert.EqualValues(t, 4096, got.Size)
}

func TestStore_FreeInodeRequiresZeroNlink(t *testing.T) {
	store := newTestStore(t, 32)
	in, err := store.NewInode(sfs.S_IFREG|0644, 0, 0, 0)
	require.NoError(t, err)
	in.Nlink = 1

	err = store.FreeInode(in)
	assert.Error(t, err)

	in.Nlink = 0
	assert.NoError(t, store.FreeInode(in))
}

func TestStore_ReadRawRejectsNullAndOutOfRange(t *testing.T) {
	store := newTestStore(t, 32)
	_, err := store.ReadRaw(inode.NumNull)
	assert.Error(t, err)
	_, err = store.ReadRaw(inode.Num(1000))
	assert.Error(t, err)
}
