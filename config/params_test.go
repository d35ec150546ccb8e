package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDefaults(t *testing.T) {
	p, err := Parse(nil)
	require.NoError(t, err)
	assert.Equal(t, SamplingNearest, p.SamplingAlgo)
	assert.Equal(t, DefaultBatchSize, p.BatchSize)
	assert.Equal(t, DefaultReadTimeout, p.ReadTimeout())
}

func TestParseOverrides(t *testing.T) {
	blob := []byte(`{"track":2,"photon_count":10,"sampling_algo":"cubic","batch_size":64,"read_timeout":5}`)
	p, err := Parse(blob)
	require.NoError(t, err)
	assert.Equal(t, 2, p.Track)
	assert.Equal(t, 10, p.PhotonCount)
	assert.Equal(t, SamplingAlgo("cubic"), p.SamplingAlgo)
	assert.Equal(t, 64, p.BatchSize)
	assert.Equal(t, 5, int(p.ReadTimeout().Seconds()))
}

func TestParseOversizeRejected(t *testing.T) {
	blob := make([]byte, MaxParameterSize+1)
	_, err := Parse(blob)
	assert.Error(t, err)
}

func TestWantsPair(t *testing.T) {
	all := &Parameters{}
	assert.True(t, all.WantsPair(1))
	assert.True(t, all.WantsPair(3))

	single := &Parameters{Track: 2}
	assert.False(t, single.WantsPair(1))
	assert.True(t, single.WantsPair(2))

	specificPair := &Parameters{Pair: 3}
	assert.False(t, specificPair.WantsPair(1))
	assert.True(t, specificPair.WantsPair(3))
}
