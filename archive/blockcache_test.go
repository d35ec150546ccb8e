package archive

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeHandle is an in-memory vfsio.Handle backed by a byte slice, for
// exercising the block cache without touching TileDB's VFS.
type fakeHandle struct {
	data  []byte
	reads int
}

func (f *fakeHandle) ReadAt(p []byte, off int64) (int, error) {
	f.reads++
	if off < 0 || int(off) > len(f.data) {
		return 0, fmt.Errorf("out of range")
	}
	n := copy(p, f.data[off:])
	return n, nil
}

func (f *fakeHandle) Close() error { return nil }

func (f *fakeHandle) Size() (uint64, error) { return uint64(len(f.data)), nil }

func newFakeHandle(size int) *fakeHandle {
	data := make([]byte, size)
	for i := range data {
		data[i] = byte(i % 251)
	}
	return &fakeHandle{data: data}
}

func TestBlockCacheReadExactBytes(t *testing.T) {
	h := newFakeHandle(4 << 20)
	c := NewBlockCache(h, nil)

	got, err := c.Read(1000, 32)
	require.NoError(t, err)
	assert.Equal(t, h.data[1000:1032], got)
}

func TestBlockCacheL1Hit(t *testing.T) {
	h := newFakeHandle(4 << 20)
	c := NewBlockCache(h, nil)

	_, err := c.Read(100, 16)
	require.NoError(t, err)
	readsAfterFirst := h.reads

	got, err := c.Read(200, 16)
	require.NoError(t, err)
	assert.Equal(t, h.data[200:216], got)
	assert.Equal(t, readsAfterFirst, h.reads, "second read within the same L1 line should not touch storage")
}

func TestBlockCacheL2PreferredForLargeReads(t *testing.T) {
	h := newFakeHandle(200 << 20)
	c := NewBlockCache(h, nil)

	size := L1LineSize + 10
	got, err := c.Read(0, size)
	require.NoError(t, err)
	assert.Equal(t, h.data[:size], got)

	_, inL2 := c.l2.lookup(0)
	assert.True(t, inL2, "a read of at least L1LineSize should be installed into L2")
	_, inL1 := c.l1.lookup(0)
	assert.False(t, inL1, "a storage fetch is installed into one level only")
}

func TestLevelEviction(t *testing.T) {
	lv := newLevel(1024, 2)
	lv.install(0, make([]byte, 1024))
	lv.install(1024, make([]byte, 1024))
	lv.install(2048, make([]byte, 1024))

	_, ok := lv.lookup(0)
	assert.False(t, ok, "oldest line should have been evicted")

	_, ok = lv.lookup(2048)
	assert.True(t, ok)
}
