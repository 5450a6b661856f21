package storage_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sfs-fs/sfs/storage"
)

func TestCache_GetLoadsFromDevice(t *testing.T) {
	device := newTestDevice(t, 4)
	payload := make([]byte, storage.BlockSize)
	payload[0] = 0x42
	require.NoError(t, device.WriteBlocks(2, payload))

	cache := storage.NewCache(device, 0, 4)
	got, err := cache.Get(2)
	require.NoError(t, err)
	assert.Equal(t, byte(0x42), got[0])
}

func TestCache_PutMarksDirtyAndFlushWrites(t *testing.T) {
	device := newTestDevice(t, 4)
	cache := storage.NewCache(device, 0, 4)

	payload := make([]byte, storage.BlockSize)
	payload[5] = 0x99
	require.NoError(t, cache.Put(1, payload))
	require.NoError(t, cache.Flush())

	onDisk, err := device.ReadBlocks(1, 1)
	require.NoError(t, err)
	assert.Equal(t, byte(0x99), onDisk[5])
}

func TestCache_MarkDirtyPersistsInPlaceMutation(t *testing.T) {
	device := newTestDevice(t, 4)
	cache := storage.NewCache(device, 0, 4)

	buf, err := cache.Get(0)
	require.NoError(t, err)
	buf[10] = 0x7

	require.NoError(t, cache.MarkDirty(0))
	require.NoError(t, cache.Flush())

	onDisk, err := device.ReadBlocks(0, 1)
	require.NoError(t, err)
	assert.Equal(t, byte(0x7), onDisk[10])
}

func TestCache_PutRejectsWrongSize(t *testing.T) {
	device := newTestDevice(t, 1)
	cache := storage.NewCache(device, 0, 1)
	err := cache.Put(0, make([]byte, storage.BlockSize-1))
	assert.Error(t, err)
}

func TestCache_OutOfRangeBlock(t *testing.T) {
	device := newTestDevice(t, 4)
	cache := storage.NewCache(device, 1, 2)
	_, err := cache.Get(0)
	assert.Error(t, err)
	_, err = cache.Get(3)
	assert.Error(t, err)
}
