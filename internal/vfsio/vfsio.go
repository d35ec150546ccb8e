// Package vfsio is the cloud-aware byte-range file abstraction shared
// by the archive reader (C3) and the raster tile index/sampler bank
// (C6/C7). It wraps TileDB's VFS, the same local/S3/GCS/Azure-agnostic
// file handle the teacher archive format used for its own streamed
// reads, so every component in this repo opens files the same way
// regardless of where they live.
package vfsio

import (
	"fmt"
	"io"

	tiledb "github.com/TileDB-Inc/TileDB-Go"
)

// Handle is a seekable, readable byte source over one opened file. It
// is deliberately narrow: callers issue ReadAt for slab reads rather
// than relying on an internal cursor, since every reader in this
// module (the block cache included) addresses files by absolute
// offset.
type Handle interface {
	io.ReaderAt
	io.Closer
	Size() (uint64, error)
}

// Config wraps a tiledb.Config/Context/VFS triple. One Config is
// created per process (or per distinct object-store credential set)
// and Open is called once per file.
type Config struct {
	config *tiledb.Config
	ctx    *tiledb.Context
	vfs    *tiledb.VFS
}

// NewConfig builds a Config from an optional TileDB config file URI.
// An empty configURI yields the library defaults, sufficient for
// anonymous/public object store access and local disk.
func NewConfig(configURI string) (*Config, error) {
	var (
		cfg *tiledb.Config
		err error
	)
	if configURI == "" {
		cfg, err = tiledb.NewConfig()
	} else {
		cfg, err = tiledb.LoadConfig(configURI)
	}
	if err != nil {
		return nil, fmt.Errorf("vfsio: loading config: %w", err)
	}

	ctx, err := tiledb.NewContext(cfg)
	if err != nil {
		cfg.Free()
		return nil, fmt.Errorf("vfsio: creating context: %w", err)
	}

	vfs, err := tiledb.NewVFS(ctx, cfg)
	if err != nil {
		ctx.Free()
		cfg.Free()
		return nil, fmt.Errorf("vfsio: creating vfs: %w", err)
	}

	return &Config{config: cfg, ctx: ctx, vfs: vfs}, nil
}

// Free releases the underlying TileDB resources. Safe to call once
// the Config is no longer used to Open files.
func (c *Config) Free() {
	if c == nil {
		return
	}
	c.vfs.Free()
	c.ctx.Free()
	c.config.Free()
}

type fileHandle struct {
	uri  string
	vfs  *tiledb.VFS
	fh   *tiledb.VFSfh
	size uint64
}

// Open opens uri for reading. The returned Handle is not safe for
// concurrent ReadAt calls from multiple goroutines — callers that
// fan out concurrent slab reads (the block cache) serialize access
// with their own mutex around the underlying VFSfh, since a single
// tiledb file handle keeps one read cursor.
func Open(c *Config, uri string) (Handle, error) {
	fh, err := c.vfs.Open(uri, tiledb.TILEDB_VFS_READ)
	if err != nil {
		return nil, fmt.Errorf("vfsio: opening %s: %w", uri, err)
	}
	size, err := c.vfs.FileSize(uri)
	if err != nil {
		fh.Close()
		return nil, fmt.Errorf("vfsio: stat %s: %w", uri, err)
	}
	return &fileHandle{uri: uri, vfs: c.vfs, fh: fh, size: size}, nil
}

func (f *fileHandle) Size() (uint64, error) { return f.size, nil }

func (f *fileHandle) Close() error { return f.fh.Close() }

// ReadAt issues one seek+read against the underlying VFS handle. The
// handle's Seek/Read pair is not goroutine-safe; the block cache
// serializes reads per context via its own mutex (see
// archive.BlockCache).
func (f *fileHandle) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 || uint64(off) > f.size {
		return 0, fmt.Errorf("vfsio: offset %d out of range for %s (size %d)", off, f.uri, f.size)
	}
	if _, err := f.fh.Seek(off, io.SeekStart); err != nil {
		return 0, fmt.Errorf("vfsio: seek %s: %w", f.uri, err)
	}
	n, err := io.ReadFull(f.fh, p)
	if err == io.ErrUnexpectedEOF {
		err = nil
	}
	if err != nil {
		return n, fmt.Errorf("vfsio: read %s: %w", f.uri, err)
	}
	return n, nil
}

// List enumerates files under uri matching pattern (glob matched
// against the basename), recursing into every sub-directory the VFS
// reports. Grounded on the teacher's search.trawl.
func List(c *Config, uri, pattern string) ([]string, error) {
	var items []string
	if err := trawl(c.vfs, uri, pattern, &items); err != nil {
		return nil, err
	}
	return items, nil
}

func trawl(vfs *tiledb.VFS, uri, pattern string, items *[]string) error {
	dirs, files, err := vfs.List(uri)
	if err != nil {
		return fmt.Errorf("vfsio: listing %s: %w", uri, err)
	}
	for _, f := range files {
		match, err := globMatch(pattern, f)
		if err != nil {
			return err
		}
		if match {
			*items = append(*items, f)
		}
	}
	for _, d := range dirs {
		if err := trawl(vfs, d, pattern, items); err != nil {
			return err
		}
	}
	return nil
}
