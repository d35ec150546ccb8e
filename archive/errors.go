// Package archive implements the cloud-aware block-cached archive
// reader (spec.md §4.3, component C3) and the lazy array handle built
// on top of it (spec.md §4.4, component C4).
//
// The on-disk format is the hierarchical scientific archive used by
// the original_source/ implementation (H5Lite/H5Lib's reliance on the
// HDF5 file format): an 8-byte superblock signature, OHDR object
// headers, FRHP/FHDB fractal heaps for link storage, OCHK
// continuation blocks, B-tree v1 chunk indices, and a small filter
// pipeline (inflate, shuffle, Fletcher32). Grounded on the teacher's
// file.go/reader.go for the "wrap a tiledb.VFSfh behind a small Stream
// interface, read headers with binary.Read" idiom, generalized from
// one fixed GSF record layout to an on-demand metadata tree walk.
package archive

import "errors"

// Kind classifies an archive-reader failure (spec.md §4.3).
type Kind int

const (
	KindNone Kind = iota
	KindBadSignature
	KindUnsupportedVersion
	KindDatasetNotFound
	KindReadTimeout
	KindFilterError
	KindChecksumMismatch
	KindUnsupportedFilter
	KindUnsupportedLayout
)

func (k Kind) String() string {
	switch k {
	case KindBadSignature:
		return "bad_signature"
	case KindUnsupportedVersion:
		return "unsupported_version"
	case KindDatasetNotFound:
		return "dataset_not_found"
	case KindReadTimeout:
		return "read_timeout"
	case KindFilterError:
		return "filter_error"
	case KindChecksumMismatch:
		return "checksum_mismatch"
	case KindUnsupportedFilter:
		return "unsupported_filter"
	case KindUnsupportedLayout:
		return "unsupported_layout"
	default:
		return "none"
	}
}

// Error wraps a Kind with the path and underlying cause, if any. None
// of these are process-fatal: per spec.md §4.3 "the reader retains no
// failed state" — a fresh request against the same archive is
// expected to succeed once the transient cause clears.
type Error struct {
	Kind Kind
	Path string
	Err  error
}

func (e *Error) Error() string {
	msg := e.Kind.String()
	if e.Path != "" {
		msg += " (" + e.Path + ")"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

func newErr(kind Kind, path string, cause error) *Error {
	return &Error{Kind: kind, Path: path, Err: cause}
}

// IsKind reports whether err is an *Error of the given Kind.
func IsKind(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}
