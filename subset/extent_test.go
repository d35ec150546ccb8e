package subset

import (
	"testing"

	"github.com/orbitalpipe/granule-pipeline/record"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMakeExtentIDRoundTrip(t *testing.T) {
	id := MakeExtentID(117, 14, 3, 2, 1, 42, ClassElevation)
	rgt, cycle, region, track, pair, counter, class := SplitExtentID(id)
	assert.Equal(t, 117, rgt)
	assert.Equal(t, 14, cycle)
	assert.Equal(t, 3, region)
	assert.Equal(t, 2, track)
	assert.Equal(t, 1, pair)
	assert.Equal(t, uint32(42), counter)
	assert.Equal(t, ClassElevation, class)
}

func TestExtentIDPrefixIgnoresCounter(t *testing.T) {
	a := MakeExtentID(1, 2, 3, 1, 0, 5, ClassElevation)
	b := MakeExtentID(1, 2, 3, 1, 0, 999, ClassElevation)
	assert.Equal(t, ExtentIDPrefix(a), ExtentIDPrefix(b))

	c := MakeExtentID(1, 2, 3, 2, 0, 5, ClassElevation)
	assert.NotEqual(t, ExtentIDPrefix(a), ExtentIDPrefix(c))
}

func TestDefineExtentTypesIdempotent(t *testing.T) {
	reg := record.NewRegistry()
	extentDef, photonDef, err := DefineExtentTypes(reg)
	require.NoError(t, err)
	require.NotNil(t, extentDef)
	require.NotNil(t, photonDef)

	extentDef2, photonDef2, err := DefineExtentTypes(reg)
	require.NoError(t, err)
	assert.Same(t, extentDef, extentDef2)
	assert.Same(t, photonDef, photonDef2)
}

func TestBuildExtentRecordRoundTrip(t *testing.T) {
	reg := record.NewRegistry()
	extentDef, photonDef, err := DefineExtentTypes(reg)
	require.NoError(t, err)

	e := Extent{
		ExtentID:  MakeExtentID(1, 2, 3, 1, 0, 0, ClassElevation),
		Rgt:       1,
		Cycle:     2,
		Region:    3,
		Track:     1,
		Pair:      1,
		SegmentID: 77,
		Latitude:  -70.5,
		Longitude: 150.25,
		GPSTime:   123456.0,
		Height:    12.5,
		Photons: []Photon{
			{Height: 12.1, Confidence: 4},
			{Height: 12.9, Confidence: 3},
		},
	}

	rec, err := buildExtentRecord(extentDef, photonDef, e)
	require.NoError(t, err)
	assert.Equal(t, 2, rec.BatchLen())

	got, err := rec.GetUint64("ExtentID")
	require.NoError(t, err)
	assert.Equal(t, e.ExtentID, got)

	lat, err := rec.GetFloat64("Latitude")
	require.NoError(t, err)
	assert.Equal(t, e.Latitude, lat)

	wire, err := rec.Serialize(nil, record.ModeCopy)
	require.NoError(t, err)

	back, err := record.Deserialize(reg, wire)
	require.NoError(t, err)
	assert.Equal(t, 2, back.BatchLen())
}
