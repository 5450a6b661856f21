package dirstore_test

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xaionaro-go/bytesextra"

	"github.com/sfs-fs/sfs/bitmap"
	"github.com/sfs-fs/sfs/dirstore"
	sfserrors "github.com/sfs-fs/sfs/errors"
	"github.com/sfs-fs/sfs/inode"
	"github.com/sfs-fs/sfs/storage"
)

func newTestStore(t *testing.T, numBlocks uint32) (*dirstore.Store, *inode.Inode) {
	t.Helper()
	bmapBlocks := storage.BlockNum((numBlocks + storage.BlockSize*8 - 1) / (storage.BlockSize * 8))
	backing := make([]byte, int(bmapBlocks+storage.BlockNum(numBlocks))*storage.BlockSize)
	stream := bytesextra.NewReadWriteSeeker(backing)
	device := storage.NewDevice(stream, storage.BlockNum(len(backing)/storage.BlockSize))

	// Data blocks 0..numBlocks-1 first (bitmap bit k is block k), then the
	// bitmap.
	bmap, err := bitmap.Load(device, storage.BlockNum(numBlocks), bmapBlocks, numBlocks)
	require.NoError(t, err)
	cache := storage.NewCache(device, 0, storage.BlockNum(numBlocks))
	tree := inode.NewTree(cache, bmap)
	store := dirstore.NewStore(tree, cache)
	return store, &inode.Inode{}
}

func TestDirStore_AddThenFindEntry(t *testing.T) {
	store, dir := newTestStore(t, 16)
	require.NoError(t, store.AddEntry(dir, "foo.txt", 42, 0))

	page, _, ino, found, err := store.FindEntry(dir, "foo.txt")
	require.NoError(t, err)
	assert.True(t, found)
	assert.EqualValues(t, 0, page)
	assert.EqualValues(t, 42, ino)
}

func TestDirStore_FindEntryMiss(t *testing.T) {
	store, dir := newTestStore(t, 16)
	require.NoError(t, store.AddEntry(dir, "foo.txt", 42, 0))

	_, _, _, found, err := store.FindEntry(dir, "bar.txt")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestDirStore_AddEntryRejectsNameTooLong(t *testing.T) {
	store, dir := newTestStore(t, 16)
	err := store.AddEntry(dir, "this-name-is-too-long", 1, 8)
	assert.ErrorIs(t, err, sfserrors.ErrNameTooLong)
}

func TestDirStore_DeleteEntryCompactsPage(t *testing.T) {
	store, dir := newTestStore(t, 16)
	require.NoError(t, store.AddEntry(dir, "a", 1, 0))
	require.NoError(t, store.AddEntry(dir, "b", 2, 0))

	page, offset, _, found, err := store.FindEntry(dir, "a")
	require.NoError(t, err)
	require.True(t, found)
	require.NoError(t, store.DeleteEntry(dir, page, offset))

	_, _, _, found, err = store.FindEntry(dir, "a")
	require.NoError(t, err)
	assert.False(t, found)

	_, _, ino, found, err := store.FindEntry(dir, "b")
	require.NoError(t, err)
	assert.True(t, found)
	assert.EqualValues(t, 2, ino)
}

func TestDirStore_ReaddirSynthesizesDotAndDotDot(t *testing.T) {
	store, dir := newTestStore(t, 16)
	require.NoError(t, store.AddEntry(dir, "child", 9, 0))

	name, ino, next, end, err := store.Readdir(dir, 2, 1, 0)
	require.NoError(t, err)
	assert.Equal(t, ".", name)
	assert.EqualValues(t, 2, ino)
	assert.False(t, end)

	name, ino, next, end, err = store.Readdir(dir, 2, 1, next)
	require.NoError(t, err)
	assert.Equal(t, "..", name)
	assert.EqualValues(t, 1, ino)
	assert.False(t, end)

	name, ino, next, end, err = store.Readdir(dir, 2, 1, next)
	require.NoError(t, err)
	assert.Equal(t, "child", name)
	assert.EqualValues(t, 9, ino)
	assert.False(t, end)

	_, _, _, end, err = store.Readdir(dir, 2, 1, next)
	require.NoError(t, err)
	assert.True(t, end)
}

func TestDirStore_IsEmpty(t *testing.T) {
	store, dir := newTestStore(t, 16)
	empty, err := store.IsEmpty(dir)
	require.NoError(t, err)
	assert.True(t, empty)

	require.NoError(t, store.AddEntry(dir, "x", 3, 0))
	empty, err = store.IsEmpty(dir)
	require.NoError(t, err)
	assert.False(t, empty)
}

func TestDirStore_AddEntryGrowsPageWhenFull(t *testing.T) {
	store, dir := newTestStore(t, 32)
	// Long names fill page 0 quickly, forcing a second page.
	count := 0
	for i := 0; i < 200; i++ {
		name := fmt.Sprintf("012345678901234567890123456789-%d", i)
		if err := store.AddEntry(dir, name, uint32(i+1), 0); err != nil {
			break
		}
		count++
	}
	assert.Greater(t, count, 100)
	assert.Greater(t, dir.Size, uint32(storage.BlockSize))
}
