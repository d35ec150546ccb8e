package archive

import (
	"container/list"
	"sync"

	"github.com/orbitalpipe/granule-pipeline/internal/metrics"
	"github.com/orbitalpipe/granule-pipeline/internal/vfsio"
)

// Cache level sizing (spec.md §4.3's two-level table).
const (
	L1LineSize = 1 << 20 // 1 MiB
	L1Entries  = 160
	L2LineSize = 128 << 20 // 128 MiB
	L2Entries  = 16
)

// lineKey identifies one cached byte range, aligned to its level's
// line size.
type lineKey struct {
	alignedOffset int64
}

type line struct {
	key  lineKey
	data []byte
}

// level is one LRU level of the block cache, guarded by its own
// mutex. Grounded on protomaps-go-pmtiles' pmtiles/loop.go
// cache/evictList pair (container/list front-is-newest, eviction from
// the back), generalized to two independently sized levels instead of
// loop.go's single byte-budget cache.
type level struct {
	mu        sync.Mutex
	lineSize  int64
	capacity  int
	entries   map[lineKey]*list.Element
	evictList *list.List
}

func newLevel(lineSize int64, capacity int) *level {
	return &level{
		lineSize:  lineSize,
		capacity:  capacity,
		entries:   make(map[lineKey]*list.Element),
		evictList: list.New(),
	}
}

func (lv *level) align(offset int64) int64 {
	return (offset / lv.lineSize) * lv.lineSize
}

// lookup returns the full cached line covering offset, if resident.
func (lv *level) lookup(offset int64) ([]byte, bool) {
	key := lineKey{alignedOffset: lv.align(offset)}

	lv.mu.Lock()
	defer lv.mu.Unlock()

	el, ok := lv.entries[key]
	if !ok {
		return nil, false
	}
	lv.evictList.MoveToFront(el)
	return el.Value.(*line).data, true
}

// install inserts a freshly fetched line, evicting the least-recently
// used entry if the level is at capacity. No lock is held across the
// I/O call that produced data (spec.md §5 "No lock is held across an
// I/O call except the per-cache-line critical section that installs a
// newly fetched line").
func (lv *level) install(offset int64, data []byte) {
	key := lineKey{alignedOffset: lv.align(offset)}

	lv.mu.Lock()
	defer lv.mu.Unlock()

	if el, ok := lv.entries[key]; ok {
		lv.evictList.MoveToFront(el)
		el.Value.(*line).data = data
		return
	}

	el := lv.evictList.PushFront(&line{key: key, data: data})
	lv.entries[key] = el

	for lv.evictList.Len() > lv.capacity {
		back := lv.evictList.Back()
		if back == nil {
			break
		}
		lv.evictList.Remove(back)
		delete(lv.entries, back.Value.(*line).key)
	}
}

// BlockCache is the per-granule-context two-level cache in front of
// one Handle. A context with no explicit sharing gets a fresh,
// short-lived BlockCache (spec.md §4.3 "a request with no context gets
// a fresh, short-lived one").
type BlockCache struct {
	handle  vfsio.Handle
	metrics *metrics.Registry
	l1      *level
	l2      *level

	// ioMu serializes ReadAt calls on handle, which keeps a single
	// read cursor; level mutexes are never held while it is.
	ioMu sync.Mutex
}

// NewBlockCache wraps handle with a fresh two-level cache. metrics may
// be nil.
func NewBlockCache(handle vfsio.Handle, reg *metrics.Registry) *BlockCache {
	return &BlockCache{
		handle:  handle,
		metrics: reg,
		l1:      newLevel(L1LineSize, L1Entries),
		l2:      newLevel(L2LineSize, L2Entries),
	}
}

// Read returns exactly size bytes starting at offset, consulting L1
// then L2 before falling back to storage. The request size steers
// which level a storage fetch is installed into: requests at or above
// L1LineSize prefer L2.
func (c *BlockCache) Read(offset int64, size int) ([]byte, error) {
	if data, ok := c.sliceFromLevel(c.l1, offset, size); ok {
		c.metrics.BlockCacheHit("l1")
		return data, nil
	}
	if data, ok := c.sliceFromLevel(c.l2, offset, size); ok {
		c.metrics.BlockCacheHit("l2")
		if l2Line, ok := c.l2.lookup(offset); ok {
			l1Aligned := c.l1.align(offset)
			start := l1Aligned - c.l2.align(offset)
			end := min64(start+L1LineSize, int64(len(l2Line)))
			c.l1.install(l1Aligned, l2Line[start:end])
		}
		return data[:size], nil
	}

	c.metrics.BlockCacheMiss("l1")

	lv := c.l1
	lineSize := L1LineSize
	if size >= L1LineSize {
		lv = c.l2
		lineSize = L2LineSize
	}

	aligned := lv.align(offset)
	fetchLen := lineSize
	if rem := remainingLen(c.handle, aligned); rem < int64(fetchLen) {
		fetchLen = int(rem)
	}
	need := int(offset-aligned) + size
	if fetchLen < need {
		fetchLen = need
	}

	buf := make([]byte, fetchLen)
	c.ioMu.Lock()
	_, err := c.handle.ReadAt(buf, aligned)
	c.ioMu.Unlock()
	if err != nil {
		return nil, newErr(KindReadTimeout, "", err)
	}
	lv.install(aligned, buf)

	start := offset - aligned
	return buf[start : start+int64(size)], nil
}

func (c *BlockCache) sliceFromLevel(lv *level, offset int64, size int) ([]byte, bool) {
	data, ok := lv.lookup(offset)
	if !ok {
		return nil, false
	}
	aligned := lv.align(offset)
	start := offset - aligned
	if start+int64(size) > int64(len(data)) {
		return nil, false
	}
	return data[start : start+int64(size)], true
}

func remainingLen(h vfsio.Handle, from int64) int64 {
	size, err := h.Size()
	if err != nil {
		return 1 << 40 // unknown; let the short read surface its own error
	}
	rem := int64(size) - from
	if rem < 0 {
		return 0
	}
	return rem
}

func min64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}
