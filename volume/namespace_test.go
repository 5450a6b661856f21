package volume_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sfs-fs/sfs"
	"github.com/sfs-fs/sfs/errors"
	"github.com/sfs-fs/sfs/inode"
	"github.com/sfs-fs/sfs/sfstest"
	"github.com/sfs-fs/sfs/volume"
)

func TestVolume_MknodAndLookup(t *testing.T) {
	vol := sfstest.MountedVolume(t, 256)

	ino, err := vol.Mknod(inode.NumRoot, "hello.txt", sfs.S_IFREG|0644, 0, 0)
	require.NoError(t, err)

	found, err := vol.Lookup(inode.NumRoot, "hello.txt")
	require.NoError(t, err)
	assert.Equal(t, ino, found)
}

func TestVolume_MknodDuplicateNameFails(t *testing.T) {
	vol := sfstest.MountedVolume(t, 256)
	_, err := vol.Mknod(inode.NumRoot, "dup", sfs.S_IFREG|0644, 0, 0)
	require.NoError(t, err)

	_, err = vol.Mknod(inode.NumRoot, "dup", sfs.S_IFREG|0644, 0, 0)
	assert.ErrorIs(t, err, errors.ErrExists)
}

func TestVolume_LookupMissingNameFails(t *testing.T) {
	vol := sfstest.MountedVolume(t, 256)
	_, err := vol.Lookup(inode.NumRoot, "nope")
	assert.ErrorIs(t, err, errors.ErrNotFound)
}

func TestVolume_MknodRejectsDeviceAndFifoModes(t *testing.T) {
	vol := sfstest.MountedVolume(t, 256)

	for _, mode := range []uint16{sfs.S_IFCHR | 0644, sfs.S_IFBLK | 0644, sfs.S_IFIFO | 0644} {
		_, err := vol.Mknod(inode.NumRoot, "dev", mode, 0, 0)
		assert.ErrorIs(t, err, errors.ErrNotSupported)
	}
}

func TestVolume_MkdirRmdir(t *testing.T) {
	vol := sfstest.MountedVolume(t, 256)
	sub, err := vol.Mkdir(inode.NumRoot, "subdir", sfs.S_IRWXU, 0, 0)
	require.NoError(t, err)

	rootStat, err := vol.Stat(inode.NumRoot)
	require.NoError(t, err)
	assert.EqualValues(t, 3, rootStat.Nlinks) // ".", "..", and subdir's ".."

	require.NoError(t, vol.Rmdir(inode.NumRoot, "subdir"))
	_, err = vol.Lookup(inode.NumRoot, "subdir")
	assert.ErrorIs(t, err, errors.ErrNotFound)

	freedStat, err := vol.Stat(sub)
	require.NoError(t, err)
	assert.Zero(t, freedStat.Nlinks)
	assert.Zero(t, freedStat.Size)
}

func TestVolume_RmdirRequiresEmpty(t *testing.T) {
	vol := sfstest.MountedVolume(t, 256)
	_, err := vol.Mkdir(inode.NumRoot, "subdir", sfs.S_IRWXU, 0, 0)
	require.NoError(t, err)
	sub, err := vol.Lookup(inode.NumRoot, "subdir")
	require.NoError(t, err)
	_, err = vol.Mknod(sub, "file", sfs.S_IFREG|0644, 0, 0)
	require.NoError(t, err)

	err = vol.Rmdir(inode.NumRoot, "subdir")
	assert.ErrorIs(t, err, errors.ErrNotEmpty)
}

func TestVolume_LinkAndUnlink(t *testing.T) {
	vol := sfstest.MountedVolume(t, 256)
	target, err := vol.Mknod(inode.NumRoot, "original", sfs.S_IFREG|0644, 0, 0)
	require.NoError(t, err)

	require.NoError(t, vol.Link(inode.NumRoot, "alias", target))
	st, err := vol.Stat(target)
	require.NoError(t, err)
	assert.EqualValues(t, 2, st.Nlinks)

	require.NoError(t, vol.Unlink(inode.NumRoot, "original"))
	st, err = vol.Stat(target)
	require.NoError(t, err)
	assert.EqualValues(t, 1, st.Nlinks)

	require.NoError(t, vol.Unlink(inode.NumRoot, "alias"))
	freedStat, err := vol.Stat(target)
	require.NoError(t, err)
	assert.Zero(t, freedStat.Nlinks)
}

func TestVolume_SymlinkAndReadlink(t *testing.T) {
	vol := sfstest.MountedVolume(t, 256)
	link, err := vol.Symlink(inode.NumRoot, "link", "/some/target", 0, 0)
	require.NoError(t, err)

	target, err := vol.Readlink(link)
	require.NoError(t, err)
	assert.Equal(t, "/some/target", target)
}

func TestVolume_WriteReadFile(t *testing.T) {
	vol := sfstest.MountedVolume(t, 256)
	id, err := vol.Mknod(inode.NumRoot, "data.bin", sfs.S_IFREG|0644, 0, 0)
	require.NoError(t, err)

	payload := []byte("some file contents")
	n, err := vol.WriteFile(id, 0, payload)
	require.NoError(t, err)
	assert.Equal(t, len(payload), n)

	buf := make([]byte, len(payload))
	n, err = vol.ReadFile(id, 0, buf)
	require.NoError(t, err)
	assert.Equal(t, payload, buf[:n])

	st, err := vol.Stat(id)
	require.NoError(t, err)
	assert.EqualValues(t, len(payload), st.Size)
}

func TestVolume_TruncateShrinksFile(t *testing.T) {
	vol := sfstest.MountedVolume(t, 256)
	id, err := vol.Mknod(inode.NumRoot, "data.bin", sfs.S_IFREG|0644, 0, 0)
	require.NoError(t, err)
	_, err = vol.WriteFile(id, 0, make([]byte, 5000))
	require.NoError(t, err)

	require.NoError(t, vol.Truncate(id, 10))
	st, err := vol.Stat(id)
	require.NoError(t, err)
	assert.EqualValues(t, 10, st.Size)
}

func TestVolume_ReadOnlyMountRejectsWrites(t *testing.T) {
	device := sfstest.FormattedDevice(t, 256)
	vol, err := volume.Mount(device, sfs.MountReadOnly)
	require.NoError(t, err)
	defer vol.Unmount()

	_, err = vol.Mknod(inode.NumRoot, "nope", sfs.S_IFREG|0644, 0, 0)
	assert.ErrorIs(t, err, errors.ErrReadOnly)
}
