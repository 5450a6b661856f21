package sfs_test

import (
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sfs-fs/sfs"
)

func TestNewError_UsesErrnoMessage(t *testing.T) {
	err := sfs.NewError(syscall.ENOENT)
	assert.Equal(t, syscall.ENOENT, err.Errno)
	assert.Equal(t, syscall.ENOENT.Error(), err.Error())
}

func TestNewErrorWithMessage_AppendsContext(t *testing.T) {
	err := sfs.NewErrorWithMessage(syscall.ENOSPC, "allocating block 12")
	assert.Contains(t, err.Error(), "allocating block 12")
	assert.Contains(t, err.Error(), syscall.ENOSPC.Error())
}
