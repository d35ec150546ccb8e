package raster

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/RoaringBitmap/roaring"
	"github.com/alitto/pond"
	"github.com/orbitalpipe/granule-pipeline/internal/metrics"
	"github.com/orbitalpipe/granule-pipeline/internal/vfsio"
)

const (
	// MaxCacheEntries is the sampler bank's soft ceiling before the
	// group-atomic eviction scan runs (original_source/GeoIndexedRaster.h
	// sizes its reader pool at MAX_READER_THREADS=200; this module ties
	// the cache ceiling to the same figure since a request touches at
	// most as many tiles as it has readers to serve them).
	MaxCacheEntries = 200

	// MaxReaderThreads bounds the bounded reader pool the sampler bank
	// dispatches enabled cache entries to.
	MaxReaderThreads = 200

	// MaxSubsetPoolBytes is the global hard cap on bytes allocated for
	// windowed/zonal reads (original_source/RasterSample.h "static
	// const int64_t maxsize = oneGB * 6").
	MaxSubsetPoolBytes = 6 * (1 << 30)

	// DefaultSampleRadius is used when a request's sampling_radius is
	// unset or zero.
	DefaultSampleRadius = 0.0

	// DefaultWaitTimeout bounds how long Sample waits for its dispatched
	// readers before giving up on the stragglers (spec.md §4.7 step 6
	// "wait for all workers or timeout").
	DefaultWaitTimeout = 30 * time.Second
)

// cacheEntry is one tile's cached raster handle plus the bookkeeping
// the sampler bank's group-atomic eviction and enable/disable cycle
// needs (original_source/GeoIndexedRaster.h's cacheitem_t).
type cacheEntry struct {
	url     string
	group   string
	flagsURL string
	time    float64

	disabled bool // guarded by SamplerBank.mu
	lastUse  time.Time

	openOnce sync.Once
	openErr  error
	handle   *rasterHandle

	mu     sync.Mutex // guards sample/zonal/sampleErr, set by the worker goroutine
	sample *Sample
	zonal  *ZonalSample
	sampleErr error
}

// SamplerBank is the cache of open raster tiles shared by every source of one sampling request (spec.md
// §4.7, component C7): entries keyed by tile URL, a group reverse
// index mirroring original_source/GeoIndexedRaster.h's rasters_group_t
// eviction unit, a bounded reader pool grown lazily and never shrunk,
// a dense file_id dictionary backed by github.com/RoaringBitmap/roaring,
// and a global byte pool bounding windowed/zonal reads.
type SamplerBank struct {
	cfg     *vfsio.Config
	metrics *metrics.Registry

	// requestMu serializes whole request cycles (disable-all through
	// evict), mirroring original_source/GeoIndexedRaster.h's
	// samplingMutex: "at most one cache mutex per thread" (spec.md §5).
	requestMu sync.Mutex

	mu      sync.Mutex
	byURL   map[string]*cacheEntry
	byGroup map[string][]*cacheEntry

	pool     *pond.WorkerPool
	poolSize int

	fileIDs    map[string]uint64
	byFileID   map[uint64]string
	nextFileID uint64
	touched    *roaring.Bitmap

	poolBytesUsed int64 // atomic; bytes currently charged against MaxSubsetPoolBytes

	waitTimeout time.Duration
}

// NewSamplerBank constructs an empty bank. metrics may be nil.
func NewSamplerBank(cfg *vfsio.Config, reg *metrics.Registry) *SamplerBank {
	return &SamplerBank{
		cfg:         cfg,
		metrics:     reg,
		byURL:       make(map[string]*cacheEntry),
		byGroup:     make(map[string][]*cacheEntry),
		fileIDs:     make(map[string]uint64),
		byFileID:    make(map[uint64]string),
		touched:     roaring.New(),
		waitTimeout: DefaultWaitTimeout,
	}
}

// acquireBytes reserves n bytes from the global subset pool, refusing
// once MaxSubsetPoolBytes would be exceeded (spec.md §4.7 "allocation
// failure fails only that tile's sample, not the whole request").
func (b *SamplerBank) acquireBytes(n int64) bool {
	for {
		used := atomic.LoadInt64(&b.poolBytesUsed)
		if used+n > MaxSubsetPoolBytes {
			return false
		}
		if atomic.CompareAndSwapInt64(&b.poolBytesUsed, used, used+n) {
			b.metrics.SetSubsetPoolBytesUsed(used + n)
			return true
		}
	}
}

func (b *SamplerBank) releaseBytes(n int64) {
	used := atomic.AddInt64(&b.poolBytesUsed, -n)
	b.metrics.SetSubsetPoolBytesUsed(used)
}

// getOrCreate returns the cache entry for td, creating one if this is
// the first time the bank has seen its URL.
func (b *SamplerBank) getOrCreate(td TileDescriptor) *cacheEntry {
	b.mu.Lock()
	defer b.mu.Unlock()

	e, ok := b.byURL[td.URL]
	if ok {
		e.disabled = false
		return e
	}
	e = &cacheEntry{url: td.URL, group: td.GroupID, flagsURL: td.FlagsURL, time: td.Time}
	b.byURL[td.URL] = e
	b.byGroup[td.GroupID] = append(b.byGroup[td.GroupID], e)
	return e
}

// disableAll marks every cached entry disabled, step 1 of spec.md
// §4.7's per-request sequence ("mark all cached entries disabled").
func (b *SamplerBank) disableAll() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, e := range b.byURL {
		e.disabled = true
	}
}

// ensurePoolSize grows the reader pool to at least n workers, up to
// MaxReaderThreads, and never shrinks it (spec.md §4.7 "a bounded pool
// ... grown lazily per request, never shrunk"). github.com/alitto/pond
// has no live-resize primitive, so growth recreates the pool after
// draining the old one -- the same StopAndWait barrier the subsetter
// (C5) and fan-out proxy (C9) use, here triggered only when demand
// exceeds the current size.
func (b *SamplerBank) ensurePoolSize(n int) {
	if n > MaxReaderThreads {
		n = MaxReaderThreads
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if n <= b.poolSize {
		return
	}
	if b.pool != nil {
		b.pool.StopAndWait()
	}
	b.pool = pond.New(n, 0, pond.MinWorkers(n))
	b.poolSize = n
}

// assignFileID returns the dense file_id for url, assigning the next
// available id on first sight (spec.md §4.7 step 7 "assign file_id
// densely"). touched records every file_id referenced by the current
// request so the caller can emit a complete file-directory record.
func (b *SamplerBank) assignFileID(url string) uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	id, ok := b.fileIDs[url]
	if !ok {
		id = b.nextFileID
		b.nextFileID++
		b.fileIDs[url] = id
		b.byFileID[id] = url
	}
	b.touched.Add(uint32(id))
	return id
}

// FileURL returns the URL a previously assigned file_id maps to, for
// building the trailing file-directory record (spec.md §4.8 "a file
// directory record mapping every file_id assigned during the request
// to its URL").
func (b *SamplerBank) FileURL(id uint64) (string, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	url, ok := b.byFileID[id]
	return url, ok
}

// FileDirectory returns every file_id this bank has assigned to a URL,
// keyed by id (spec.md §4.8's dispatcher step "emits a file directory
// record mapping every file_id assigned during the request to its
// URL"). A SamplerBank is constructed fresh per sampling request
// (mirroring archive.Archive's per-request-context convention, spec.md
// §3), so every id this method returns was assigned "during the
// request" by construction.
func (b *SamplerBank) FileDirectory() map[uint64]string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make(map[uint64]string, len(b.byFileID))
	it := b.touched.Iterator()
	for it.HasNext() {
		id := uint64(it.Next())
		if url, ok := b.byFileID[id]; ok {
			out[id] = url
		}
	}
	return out
}

// Sample runs one sampler-bank request cycle against candidates
// (spec.md §4.7 steps 1-7): disable-all, enable/create per candidate,
// dispatch to the bounded pool, wait (bounded by ctx or
// DefaultWaitTimeout), assemble per-group results.
func (b *SamplerBank) Sample(ctx context.Context, candidates []TileDescriptor, lon, lat float64, opts SampleOptions) ([]Sample, []ZonalSample, error) {
	b.requestMu.Lock()
	defer b.requestMu.Unlock()

	b.disableAll()

	entries := make([]*cacheEntry, 0, len(candidates))
	for _, td := range candidates {
		e := b.getOrCreate(td)
		entries = append(entries, e)
	}

	b.ensurePoolSize(len(entries))

	b.mu.Lock()
	pool := b.pool
	b.mu.Unlock()

	var wg sync.WaitGroup
	for _, e := range entries {
		e := e
		e.mu.Lock()
		e.sample, e.zonal, e.sampleErr = nil, nil, nil
		e.mu.Unlock()
		wg.Add(1)
		pool.Submit(func() {
			defer wg.Done()
			b.readEntry(e, lon, lat, opts)
		})
	}

	done := make(chan struct{})
	go func() { wg.Wait(); close(done) }()

	waitCtx, cancel := context.WithTimeout(ctx, b.waitTimeout)
	defer cancel()
	select {
	case <-done:
	case <-waitCtx.Done():
		// spec.md §4.7 step 6: stragglers are abandoned, not aborted;
		// whatever entries finished in time still contribute samples.
	}

	var plain []Sample
	var zonal []ZonalSample
	for _, e := range entries {
		e.mu.Lock()
		s, z, err := e.sample, e.zonal, e.sampleErr
		e.mu.Unlock()
		if err != nil {
			continue // this tile's failure does not fail the request
		}
		if z != nil {
			zonal = append(zonal, *z)
		} else if s != nil {
			plain = append(plain, *s)
		}
	}

	b.evictIfNeeded()
	return plain, zonal, nil
}

// readEntry opens (if needed) and reads e's tile, filling e.sample or
// e.zonal under e.mu (spec.md §4.7 step 7 "workers fill their own
// cache entry's sample field under its own lock").
func (b *SamplerBank) readEntry(e *cacheEntry, lon, lat float64, opts SampleOptions) {
	e.openOnce.Do(func() {
		e.handle, e.openErr = openRasterHandle(b.cfg, e.url)
		if b.metrics != nil {
			b.mu.Lock()
			n := len(b.byURL)
			b.mu.Unlock()
			b.metrics.SetOpenTileHandles(n)
		}
	})

	e.mu.Lock()
	defer e.mu.Unlock()
	e.lastUse = time.Now()

	if e.openErr != nil {
		e.sampleErr = e.openErr
		e.sample, e.zonal = nil, nil
		return
	}

	var value float64
	var ok bool
	switch opts.Algo {
	case "", "nearest":
		value, ok = e.handle.nearest(lon, lat)
	case "average", "mode":
		values, acquired := e.handle.windowValues(lon, lat, opts.Radius, b)
		if !acquired {
			e.sampleErr = newErr(KindOutOfMemory, e.url, nil)
			return
		}
		if len(values) == 0 {
			e.sampleErr = newErr(KindResourceMissing, e.url, nil)
			return
		}
		value, ok = meanOrMode(values, opts.Algo), true
	default: // bilinear, cubic, cubic-spline, lanczos: see handle.go's bilinear doc.
		value, ok = e.handle.bilinear(lon, lat)
	}
	if !ok {
		e.sampleErr = newErr(KindResourceMissing, e.url, nil)
		return
	}

	var flags uint32
	if e.flagsURL != "" {
		flags = b.readFlags(e.flagsURL, lon, lat)
	}

	fileID := b.assignFileID(e.url)
	base := Sample{GroupID: e.group, URL: e.url, Value: value, Time: e.time, FileID: fileID, Flags: flags}

	if opts.Zonal {
		values, acquired := e.handle.windowValues(lon, lat, opts.Radius, b)
		if !acquired {
			e.sampleErr = newErr(KindOutOfMemory, e.url, nil)
			return
		}
		z := zonalStats(values)
		z.Sample = base
		e.zonal = &z
		e.sample = nil
		return
	}
	e.sample = &base
	e.zonal = nil
}

// readFlags opens the tile's companion flags raster (if any) as an
// uncached, direct read -- the flags channel is small and read once
// per sample, so it is not itself subject to group-atomic eviction the
// way the value raster is.
func (b *SamplerBank) readFlags(url string, lon, lat float64) uint32 {
	h, err := openRasterHandle(b.cfg, url)
	if err != nil {
		return 0
	}
	v, ok := h.nearest(lon, lat)
	if !ok {
		return 0
	}
	return uint32(v)
}

func meanOrMode(values []float64, algo string) float64 {
	if algo == "mode" {
		counts := make(map[float64]int, len(values))
		var best float64
		var bestCount int
		for _, v := range values {
			counts[v]++
			if counts[v] > bestCount {
				bestCount = counts[v]
				best = v
			}
		}
		return best
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// evictIfNeeded repeatedly evicts the oldest disabled entry's whole
// group until the cache is back under MaxCacheEntries or no disabled
// group remains (spec.md §4.7 "when len(cache) > N_MAX, repeatedly
// evict oldest disabled entry's whole group until under limit or no
// disabled groups remain").
func (b *SamplerBank) evictIfNeeded() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for len(b.byURL) > MaxCacheEntries {
		oldestGroup, oldestTime, found := "", time.Time{}, false
		for group, members := range b.byGroup {
			if !allDisabled(members) {
				continue
			}
			groupTime := oldestLastUse(members)
			if !found || groupTime.Before(oldestTime) {
				found = true
				oldestGroup = group
				oldestTime = groupTime
			}
		}
		if !found {
			return // no disabled group left to evict
		}
		for _, e := range b.byGroup[oldestGroup] {
			delete(b.byURL, e.url)
		}
		delete(b.byGroup, oldestGroup)
	}
}

func allDisabled(members []*cacheEntry) bool {
	for _, e := range members {
		if !e.disabled {
			return false
		}
	}
	return true
}

func oldestLastUse(members []*cacheEntry) time.Time {
	min := members[0].lastUse
	for _, e := range members[1:] {
		if e.lastUse.Before(min) {
			min = e.lastUse
		}
	}
	return min
}
