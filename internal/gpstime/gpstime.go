// Package gpstime converts between the GPS-seconds-since-epoch values
// carried on every extent and sample record (spec.md §3, §4.7) and
// Go's time.Time, and exposes Julian Day numbers for components that
// need them (tile acquisition-time comparisons in the raster index).
package gpstime

import (
	"time"

	"github.com/soniakeys/meeus/v3/julian"
)

// Epoch is midnight UTC on 1980-01-06, the start of the GPS time
// scale.
var Epoch = time.Date(1980, time.January, 6, 0, 0, 0, 0, time.UTC)

// LeapSeconds is the constant GPS-UTC offset applied when converting
// to/from GPS time. GPS time does not observe leap seconds once
// started, so the gap between GPS and UTC grows by one second at
// every leap-second insertion; 18 is current as of the last insertion
// (2017-01-01) and is the value SlideRule-derived pipelines have
// historically hard-coded rather than fetching a live leap-second
// table, which this module does not have a source for.
const LeapSeconds = 18 * time.Second

// ToTime converts GPS seconds since Epoch to a UTC time.Time.
func ToTime(gpsSeconds float64) time.Time {
	d := time.Duration(gpsSeconds * float64(time.Second))
	return Epoch.Add(d - LeapSeconds)
}

// FromTime converts a UTC time.Time to GPS seconds since Epoch.
func FromTime(t time.Time) float64 {
	d := t.Sub(Epoch) + LeapSeconds
	return d.Seconds()
}

// JulianDay returns the Julian Day number for t, used by the raster
// tile index when comparing acquisition times expressed in mixed
// representations.
func JulianDay(t time.Time) float64 {
	return julian.TimeToJD(t)
}
