package volume_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sfs-fs/sfs"
	"github.com/sfs-fs/sfs/inode"
	"github.com/sfs-fs/sfs/sfstest"
)

func TestVolume_CheckCleanVolumePasses(t *testing.T) {
	vol := sfstest.MountedVolume(t, 256)
	id, err := vol.Mknod(inode.NumRoot, "a", sfs.S_IFREG|0644, 0, 0)
	require.NoError(t, err)
	_, err = vol.WriteFile(id, 0, make([]byte, 20000))
	require.NoError(t, err)

	assert.NoError(t, vol.Check())
}

func TestVolume_CheckAfterRemovalsStillPasses(t *testing.T) {
	vol := sfstest.MountedVolume(t, 256)
	id, err := vol.Mknod(inode.NumRoot, "a", sfs.S_IFREG|0644, 0, 0)
	require.NoError(t, err)
	_, err = vol.WriteFile(id, 0, make([]byte, 9000))
	require.NoError(t, err)
	require.NoError(t, vol.Unlink(inode.NumRoot, "a"))

	assert.NoError(t, vol.Check())
}
