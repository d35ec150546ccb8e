package subset

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseResourceGlobals(t *testing.T) {
	rgt, cycle, region, err := ParseResourceGlobals("ATL03_20190605060447_10380310_005_01.h5")
	require.NoError(t, err)
	assert.Equal(t, 1038, rgt)
	assert.Equal(t, 3, cycle)
	assert.Equal(t, 10, region)
}

func TestParseResourceGlobalsFromURI(t *testing.T) {
	rgt, cycle, region, err := ParseResourceGlobals("s3://bucket/path/ATL03_20190605060447_10380310_005_01.h5")
	require.NoError(t, err)
	assert.Equal(t, 1038, rgt)
	assert.Equal(t, 3, cycle)
	assert.Equal(t, 10, region)
}

func TestParseResourceGlobalsTooShort(t *testing.T) {
	_, _, _, err := ParseResourceGlobals("short.h5")
	assert.Error(t, err)
}

func TestParseResourceGlobalsBadDigits(t *testing.T) {
	_, _, _, err := ParseResourceGlobals("ATL03_20190605060447_XXXX0310_005_01.h5")
	assert.Error(t, err)
}
