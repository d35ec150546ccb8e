package archive

import (
	"context"
	"encoding/binary"
	"math"
	"sync"
	"time"
)

// JoinStatus is the outcome of ArrayHandle.Join (spec.md §4.4 "join
// returns kOk, kTimeout, or kError").
type JoinStatus int

const (
	JoinOK JoinStatus = iota
	JoinTimeout
	JoinError
)

// ArrayHandle is one lazy, one-shot background read of a sub-slab of a
// named dataset (spec.md §4.4). Constructing a handle immediately
// schedules its read; Join blocks until that read completes, times
// out, or errors. A handle cannot be reissued after its first Join.
type ArrayHandle struct {
	archive  *Archive
	path     string
	firstRow uint64
	numRows  uint64

	done  chan struct{}
	once  sync.Once
	err   error
	data  []byte
	info  *DatasetInfo
	base  uint64 // row index into data after Trim shifts, relative to firstRow
}

// NewArrayHandle constructs a handle and immediately starts its
// background read against a. col is accepted for interface symmetry
// with a compound dataset's named member but is otherwise unused by
// this reader, since every dataset this pipeline reads is a simple
// scalar or fixed-width vector per row.
func NewArrayHandle(a *Archive, path string, col string, firstRow, numRows uint64) *ArrayHandle {
	h := &ArrayHandle{
		archive:  a,
		path:     path,
		firstRow: firstRow,
		numRows:  numRows,
		done:     make(chan struct{}),
	}
	go h.run()
	return h
}

func (h *ArrayHandle) run() {
	defer close(h.done)
	info, err := h.archive.Dataset(h.path)
	if err != nil {
		h.err = err
		return
	}
	h.info = info

	data, err := h.archive.ReadRows(h.path, h.firstRow, h.numRows)
	if err != nil {
		h.err = err
		return
	}
	h.data = data
}

// Join blocks until the background read completes or timeout elapses.
func (h *ArrayHandle) Join(timeout time.Duration) JoinStatus {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return h.JoinContext(ctx)
}

// JoinContext is Join parameterized by an external context, letting
// callers tie a handle's wait to a request-level cancellation signal.
func (h *ArrayHandle) JoinContext(ctx context.Context) JoinStatus {
	select {
	case <-h.done:
		if h.err != nil {
			if IsKind(h.err, KindReadTimeout) {
				return JoinTimeout
			}
			return JoinError
		}
		return JoinOK
	case <-ctx.Done():
		return JoinTimeout
	}
}

// Err returns the error the background read failed with, if any. Only
// meaningful after Join returns JoinError or JoinTimeout.
func (h *ArrayHandle) Err() error { return h.err }

// Size returns the number of rows currently available, post-Trim.
func (h *ArrayHandle) Size() uint64 {
	return h.numRows - h.base
}

// ElementType returns the dataset's element datatype.
func (h *ArrayHandle) ElementType() Datatype {
	if h.info == nil {
		return Datatype{}
	}
	return h.info.Datatype
}

// Trim discards the first k rows in-place. Must be called after Join;
// calling it before the background read completes is a programming
// error since Size/indexing are undefined until then.
func (h *ArrayHandle) Trim(k uint64) {
	h.base += k
}

// rowBytes returns the byte width of one row (element size times row
// stride); it does not depend on Trim's base offset.
func (h *ArrayHandle) rowBytes() uint64 {
	if h.info == nil {
		return 0
	}
	return uint64(h.info.Datatype.Size) * h.info.RowStride()
}

// Row returns the raw, host-endian-normalized bytes of row i
// (post-Trim, 0-indexed).
func (h *ArrayHandle) Row(i uint64) []byte {
	rb := h.rowBytes()
	start := (h.base + i) * rb
	end := start + rb
	if end > uint64(len(h.data)) {
		return nil
	}
	raw := h.data[start:end]
	return normalizeEndian(raw, h.info.Datatype)
}

// Float64At interprets row i as a single float32/float64 element,
// promoted to float64. Intended for scalar geolocation/height columns.
func (h *ArrayHandle) Float64At(i uint64) float64 {
	raw := h.Row(i)
	switch h.info.Datatype.Size {
	case 4:
		return float64(math.Float32frombits(binary.LittleEndian.Uint32(raw)))
	case 8:
		return math.Float64frombits(binary.LittleEndian.Uint64(raw))
	default:
		return 0
	}
}

// Uint64At interprets row i as an unsigned integer element, promoted
// to uint64. Intended for classification/flag columns.
func (h *ArrayHandle) Uint64At(i uint64) uint64 {
	raw := h.Row(i)
	switch len(raw) {
	case 1:
		return uint64(raw[0])
	case 2:
		return uint64(binary.LittleEndian.Uint16(raw))
	case 4:
		return uint64(binary.LittleEndian.Uint32(raw))
	case 8:
		return binary.LittleEndian.Uint64(raw)
	default:
		return 0
	}
}

// Serialize writes the raw element bytes for [row, row+count) into
// dst, host-endian-normalized, for later embedding into a
// record.Record (spec.md §4.4 "serialize(dst, row, count) writes the
// raw element bytes into dst for later embedding into a record").
// dst must be at least count*rowBytes long.
func (h *ArrayHandle) Serialize(dst []byte, row, count uint64) error {
	rb := h.rowBytes()
	for i := uint64(0); i < count; i++ {
		raw := h.Row(row + i)
		if raw == nil {
			return newErr(KindDatasetNotFound, h.path, nil)
		}
		copy(dst[i*rb:(i+1)*rb], raw)
	}
	return nil
}

// normalizeEndian returns a byte-swapped copy of raw (raw itself is
// left unchanged) if the datatype's declared
// endianness differs from the host, per spec.md §4.3 "swap on read if
// it differs from host". This module always runs on little-endian
// hosts in practice, so BigEndian datatypes are the only case that
// swaps.
func normalizeEndian(raw []byte, dt Datatype) []byte {
	if !dt.BigEndian || dt.Size <= 1 {
		return raw
	}
	out := make([]byte, len(raw))
	for i := 0; i < len(raw); i += dt.Size {
		for b := 0; b < dt.Size; b++ {
			out[i+b] = raw[i+dt.Size-1-b]
		}
	}
	return out
}
