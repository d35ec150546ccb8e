package sample

import (
	"strings"
	"testing"

	"github.com/orbitalpipe/granule-pipeline/raster"
	"github.com/orbitalpipe/granule-pipeline/record"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefineSampleTypesIsIdempotent(t *testing.T) {
	reg := record.NewRegistry()
	d1, err := DefineSampleTypes(reg)
	require.NoError(t, err)

	d2, err := DefineSampleTypes(reg)
	require.NoError(t, err)

	assert.Same(t, d1.Sample, d2.Sample)
	assert.Same(t, d1.ZonalSample, d2.ZonalSample)
	assert.Same(t, d1.FileEntry, d2.FileEntry)
	assert.Same(t, d1.FileDirectory, d2.FileDirectory)
}

func TestFixedStringRoundTrip(t *testing.T) {
	reg := record.NewRegistry()
	defs, err := DefineSampleTypes(reg)
	require.NoError(t, err)

	rec := record.NewRecord(defs.Sample)
	require.NoError(t, setFixedString(rec, defs.Sample, "URL", "s3://bucket/tile.tif"))

	got, err := getFixedString(rec, defs.Sample, "URL")
	require.NoError(t, err)
	assert.Equal(t, "s3://bucket/tile.tif", got)
}

func TestFixedStringTruncatesOverlongValue(t *testing.T) {
	reg := record.NewRegistry()
	defs, err := DefineSampleTypes(reg)
	require.NoError(t, err)

	rec := record.NewRecord(defs.Sample)
	long := "s3://bucket/" + strings.Repeat("x", maxURLLen)
	require.NoError(t, setFixedString(rec, defs.Sample, "URL", long))

	got, err := getFixedString(rec, defs.Sample, "URL")
	require.NoError(t, err)
	assert.Len(t, got, maxURLLen)
	assert.Equal(t, long[:maxURLLen], got)
}

func TestBuildSampleRecordRoundTrip(t *testing.T) {
	reg := record.NewRegistry()
	defs, err := DefineSampleTypes(reg)
	require.NoError(t, err)

	s := raster.Sample{GroupID: "g1", URL: "mem://tile", Value: 12.5, Time: 100, FileID: 3, Flags: 7}
	rec, err := buildSampleRecord(defs.Sample, 42, "dem", s)
	require.NoError(t, err)

	serialized, err := rec.Serialize(nil, record.ModeCopy)
	require.NoError(t, err)

	out, err := record.Deserialize(reg, serialized)
	require.NoError(t, err)

	extentID, _ := out.GetUint64("ExtentID")
	assert.Equal(t, uint64(42), extentID)
	key, _ := getFixedString(out, defs.Sample, "SourceKey")
	assert.Equal(t, "dem", key)
	url, _ := getFixedString(out, defs.Sample, "URL")
	assert.Equal(t, "mem://tile", url)
	value, _ := out.GetFloat64("Value")
	assert.Equal(t, 12.5, value)
	fileID, _ := out.GetUint64("FileID")
	assert.Equal(t, uint64(3), fileID)
}

func TestBuildZonalSampleRecordRoundTrip(t *testing.T) {
	reg := record.NewRegistry()
	defs, err := DefineSampleTypes(reg)
	require.NoError(t, err)

	z := raster.ZonalSample{
		Sample: raster.Sample{GroupID: "g1", URL: "mem://tile", Value: 5, Time: 1, FileID: 9},
		Count:  10, Min: 1, Max: 9, Mean: 5, Median: 5, StdDev: 2, MAD: 1,
	}
	rec, err := buildZonalSampleRecord(defs.ZonalSample, 7, "dem", z)
	require.NoError(t, err)

	serialized, err := rec.Serialize(nil, record.ModeCopy)
	require.NoError(t, err)

	out, err := record.Deserialize(reg, serialized)
	require.NoError(t, err)

	count, _ := out.GetUint64("Count")
	assert.Equal(t, uint64(10), count)
	mean, _ := out.GetFloat64("Mean")
	assert.Equal(t, 5.0, mean)
	fileID, _ := out.GetUint64("FileID")
	assert.Equal(t, uint64(9), fileID)
}

func TestBuildFileDirectoryRecordRoundTrip(t *testing.T) {
	reg := record.NewRegistry()
	defs, err := DefineSampleTypes(reg)
	require.NoError(t, err)

	directory := map[uint64]string{0: "mem://a", 1: "mem://b"}
	rec, err := buildFileDirectoryRecord(defs.FileDirectory, defs.FileEntry, "dem", directory)
	require.NoError(t, err)

	serialized, err := rec.Serialize(nil, record.ModeCopy)
	require.NoError(t, err)

	out, err := record.Deserialize(reg, serialized)
	require.NoError(t, err)

	key, _ := getFixedString(out, defs.FileDirectory, "SourceKey")
	assert.Equal(t, "dem", key)
	require.Equal(t, 2, out.BatchLen())

	seen := map[uint64]string{}
	for i := 0; i < out.BatchLen(); i++ {
		raw, err := out.BatchRow(i)
		require.NoError(t, err)
		row := record.NewRecord(defs.FileEntry)
		copy(row.Bytes(), raw)
		id, _ := row.GetUint64("FileID")
		url, _ := getFixedString(row, defs.FileEntry, "URL")
		seen[id] = url
	}
	assert.Equal(t, directory, seen)
}
