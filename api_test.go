package sfs_test

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sfs-fs/sfs"
)

func TestFileStat_TypeChecks(t *testing.T) {
	dir := sfs.FileStat{ModeFlags: os.ModeDir | 0755}
	assert.True(t, dir.IsDir())
	assert.False(t, dir.IsFile())

	file := sfs.FileStat{ModeFlags: 0644}
	assert.True(t, file.IsFile())
	assert.False(t, file.IsDir())

	link := sfs.FileStat{ModeFlags: os.ModeSymlink | 0777}
	assert.True(t, link.IsSymlink())
	assert.False(t, link.IsDir())
}

func TestUndefinedTimestamp_IsStable(t *testing.T) {
	assert.Equal(t, sfs.UndefinedTimestamp, sfs.UndefinedTimestamp)
}
