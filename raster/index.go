package raster

import (
	"io"
	"strings"
	"time"

	"github.com/orbitalpipe/granule-pipeline/internal/gpstime"
	"github.com/orbitalpipe/granule-pipeline/internal/vfsio"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/samber/lo"
)

// parseDatetime accepts RFC3339 (GeoJSON's conventional datetime
// encoding); a tile whose datetime attribute fails to parse keeps its
// zero-value Time rather than failing the whole index load.
func parseDatetime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339, s)
}

// TileDescriptor is one feature of the tile index's vector file: a
// polygon footprint plus the attributes spec.md §6 requires (datetime,
// url, optional flags_url/group_id). Grounded on
// original_source/GeoIndexedRaster.h's raster_info_t.
type TileDescriptor struct {
	URL      string
	FlagsURL string
	GroupID  string
	Time     float64 // GPS seconds, converted from the feature's datetime attribute
	Footprint orb.Polygon
}

// TileIndex is the geo-indexed vector layer backing C6: one feature
// per candidate tile, queried by point-in-polygon containment and then
// filtered by url substring / temporal window / closest-time, all
// applied group-atomically (original_source/GeoIndexedRaster.h's
// rasters_group_t: one excluded tile drops its whole acquisition
// group). This module narrows spec.md §6's "any OGR-readable vector
// layer" to GeoJSON specifically (the one vector format the retrieval
// pack's paulmach/orb dependency can read), a deliberate simplification
// recorded in DESIGN.md.
type TileIndex struct {
	tiles []TileDescriptor
}

// tileProperties names the GeoJSON feature attributes this index reads
// (spec.md §6 "required attributes: datetime, url; optional:
// flags_url, group_id").
const (
	propDatetime = "datetime"
	propURL      = "url"
	propFlagsURL = "flags_url"
	propGroupID  = "group_id"
)

// OpenTileIndex reads uri through cfg (local disk, S3, GCS, or Azure,
// whichever vfsio.Open resolves), parses it as a GeoJSON
// FeatureCollection, and builds a TileIndex from its polygon features.
// Per spec.md §6 "the first layer is authoritative": a GeoJSON file has
// exactly one implicit layer, so every feature in the collection is
// read.
func OpenTileIndex(cfg *vfsio.Config, uri string) (*TileIndex, error) {
	h, err := vfsio.Open(cfg, uri)
	if err != nil {
		return nil, newErr(KindResourceMissing, uri, err)
	}
	defer h.Close()

	size, err := h.Size()
	if err != nil {
		return nil, newErr(KindResourceMissing, uri, err)
	}
	buf := make([]byte, size)
	if _, err := h.ReadAt(buf, 0); err != nil && err != io.EOF {
		return nil, newErr(KindResourceMissing, uri, err)
	}

	fc, err := geojson.UnmarshalFeatureCollection(buf)
	if err != nil {
		return nil, newErr(KindUnsupportedFormat, uri, err)
	}

	tiles := make([]TileDescriptor, 0, len(fc.Features))
	for _, f := range fc.Features {
		poly, ok := f.Geometry.(orb.Polygon)
		if !ok {
			continue // only polygon footprints are tile candidates
		}
		td := TileDescriptor{
			URL:       f.Properties.MustString(propURL, ""),
			FlagsURL:  f.Properties.MustString(propFlagsURL, ""),
			GroupID:   f.Properties.MustString(propGroupID, ""),
			Footprint: poly,
		}
		if td.GroupID == "" {
			td.GroupID = td.URL // ungrouped tiles are their own singleton group
		}
		if dt := f.Properties.MustString(propDatetime, ""); dt != "" {
			if t, err := parseDatetime(dt); err == nil {
				td.Time = gpstime.FromTime(t)
			}
		}
		if td.URL == "" {
			continue
		}
		tiles = append(tiles, td)
	}
	return &TileIndex{tiles: tiles}, nil
}

// Query returns every tile whose footprint contains (lon, lat),
// filtered by opts.URLSubstring and the [T0, T1] temporal window,
// dropping an entire group if any one of its tiles fails a filter
// (spec.md §4.6 "filtering is group-atomic: one dropped tile in a
// group drops the whole group"). If opts.ClosestTime is set, only the
// surviving group whose minimum member time is closest to *opts.T0 is
// kept (measured from GPS time 0 when T0 is nil); no per-extent query
// time is consulted. Among equally close groups the one with the
// smaller minimum time is kept (the Open Question decision recorded in
// DESIGN.md).
func (idx *TileIndex) Query(lon, lat float64, opts SampleOptions) ([]TileDescriptor, error) {
	point := orb.Point{lon, lat}

	contained := lo.Filter(idx.tiles, func(td TileDescriptor, _ int) bool {
		return polygonContains(td.Footprint, point)
	})

	groups := lo.GroupBy(contained, func(td TileDescriptor) string { return td.GroupID })

	var survivors []TileDescriptor
	for _, members := range groups {
		if groupPasses(members, opts) {
			survivors = append(survivors, members...)
		}
	}

	if !opts.ClosestTime || len(survivors) == 0 {
		return survivors, nil
	}

	bestGroups := lo.GroupBy(survivors, func(td TileDescriptor) string { return td.GroupID })
	var bestGroupID string
	var bestDelta, bestMinT float64
	first := true
	for gid, members := range bestGroups {
		minT := groupMinTime(members)
		delta := minT - 0
		if opts.T0 != nil {
			// the reference instant is the temporal window's lower
			// bound; a request without T0 (OptionsFromParams leaves it
			// nil) measures from GPS time 0 instead.
			delta = minT - *opts.T0
		}
		if delta < 0 {
			delta = -delta
		}
		if first || delta < bestDelta || (delta == bestDelta && minT < bestMinT) {
			first = false
			bestDelta = delta
			bestMinT = minT
			bestGroupID = gid
		}
	}
	return bestGroups[bestGroupID], nil
}

// groupPasses reports whether every member of a group satisfies the
// url-substring and temporal-window filters (group-atomic: any one
// failing drops the whole group).
func groupPasses(members []TileDescriptor, opts SampleOptions) bool {
	for _, td := range members {
		if opts.URLSubstring != "" && !strings.Contains(td.URL, opts.URLSubstring) {
			return false
		}
		if opts.T0 != nil && td.Time < *opts.T0 {
			return false
		}
		if opts.T1 != nil && td.Time > *opts.T1 {
			return false
		}
	}
	return true
}

// groupMinTime returns the minimum acquisition time among a group's
// members, the Open Question resolution for tie-breaking closest-time
// selection across disagreeing group members.
func groupMinTime(members []TileDescriptor) float64 {
	min := members[0].Time
	for _, td := range members[1:] {
		if td.Time < min {
			min = td.Time
		}
	}
	return min
}

// polygonContains is a standard even-odd ray-casting containment test
// over a polygon's outer ring and holes, matching subset.PolygonMask's
// algorithm but operating directly in the tile index's WGS84
// footprints (tile footprints are small enough that no polar
// projection is needed for containment, unlike the subsetter's
// long-baseline along-track polygon).
func polygonContains(poly orb.Polygon, p orb.Point) bool {
	if len(poly) == 0 {
		return false
	}
	if !ringContains(poly[0], p) {
		return false
	}
	for _, hole := range poly[1:] {
		if ringContains(hole, p) {
			return false
		}
	}
	return true
}

func ringContains(ring orb.Ring, p orb.Point) bool {
	in := false
	n := len(ring)
	for i, j := 0, n-1; i < n; j, i = i, i+1 {
		pi, pj := ring[i], ring[j]
		if (pi[1] > p[1]) != (pj[1] > p[1]) {
			slopeX := (pj[0]-pi[0])*(p[1]-pi[1])/(pj[1]-pi[1]) + pi[0]
			if p[0] < slopeX {
				in = !in
			}
		}
	}
	return in
}
