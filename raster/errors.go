// Package raster implements the geo-indexed raster tile index (spec.md
// §4.6, component C6) and the process-wide raster sampler bank
// (spec.md §4.7, component C7). Together they give a query point
// (lon, lat[, gps_time]) a list of samples drawn from whichever raster
// tiles cover it, subject to url/time/closest-time filtering applied
// group-atomically (original_source/GeoIndexedRaster.h's
// rasters_group_t).
package raster

import "errors"

// Kind classifies a raster-package failure (spec.md §7's process-wide
// kinds, restricted to the ones the tile index/sampler bank can
// themselves raise).
type Kind int

const (
	KindNone Kind = iota
	KindTimeout
	KindResourceMissing
	KindUnsupportedFormat
	KindOutOfMemory
)

func (k Kind) String() string {
	switch k {
	case KindTimeout:
		return "timeout"
	case KindResourceMissing:
		return "resource_missing"
	case KindUnsupportedFormat:
		return "unsupported_format"
	case KindOutOfMemory:
		return "out_of_memory"
	default:
		return "none"
	}
}

// Error wraps a Kind with the failing tile URL and cause.
type Error struct {
	Kind Kind
	URL  string
	Err  error
}

func (e *Error) Error() string {
	msg := e.Kind.String()
	if e.URL != "" {
		msg += " (" + e.URL + ")"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

func newErr(kind Kind, url string, cause error) *Error {
	return &Error{Kind: kind, URL: url, Err: cause}
}

// IsKind reports whether err is a raster *Error of the given Kind.
func IsKind(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}
