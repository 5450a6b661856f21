package presets_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sfs-fs/sfs/volume/presets"
)

func TestDefault_HasKnownPresets(t *testing.T) {
	table := presets.Default()
	require.Contains(t, table, "tiny")
	assert.Equal(t, "tiny", table["tiny"].Name)
	assert.Greater(t, table["large"].TotalBlocks, table["tiny"].TotalBlocks)
}

func TestFind_CaseInsensitive(t *testing.T) {
	p, ok := presets.Find("FLOPPY")
	require.True(t, ok)
	assert.Equal(t, "floppy", p.Name)
}

func TestFind_UnknownReturnsFalse(t *testing.T) {
	_, ok := presets.Find("nonexistent")
	assert.False(t, ok)
}

func TestNames_IncludesEveryDefaultEntry(t *testing.T) {
	names := presets.Names()
	table := presets.Default()
	assert.Len(t, names, len(table))
	for _, name := range names {
		_, ok := table[name]
		assert.True(t, ok, "name %q from Names() missing from Default()", name)
	}
}

func TestLoad_CustomTable(t *testing.T) {
	csv := "name,description,total_blocks,inode_count\ncustom,a custom size,512,128\n"
	table, err := presets.Load(csv)
	require.NoError(t, err)
	require.Contains(t, table, "custom")
	assert.EqualValues(t, 512, table["custom"].TotalBlocks)
	assert.EqualValues(t, 128, table["custom"].InodeCount)
}

func TestLoad_InvalidCSVFails(t *testing.T) {
	_, err := presets.Load("not,even,close\nto,a,valid,csv,shape,here\n")
	assert.Error(t, err)
}
