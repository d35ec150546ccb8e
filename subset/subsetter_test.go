package subset

import (
	"testing"

	"github.com/orbitalpipe/granule-pipeline/config"
	"github.com/stretchr/testify/assert"
)

func TestWantsWorkerDefaultsToAll(t *testing.T) {
	p := &config.Parameters{}
	assert.True(t, wantsWorker(p, 1, 1))
	assert.True(t, wantsWorker(p, 3, 2))
}

func TestWantsWorkerFiltersTrack(t *testing.T) {
	p := &config.Parameters{Track: 2}
	assert.False(t, wantsWorker(p, 1, 1))
	assert.True(t, wantsWorker(p, 2, 1))
	assert.True(t, wantsWorker(p, 2, 2))
}

func TestWantsWorkerFiltersPair(t *testing.T) {
	p := &config.Parameters{Pair: 1}
	assert.True(t, wantsWorker(p, 1, 1))
	assert.False(t, wantsWorker(p, 1, 2))
}

func TestWantsWorkerFiltersBoth(t *testing.T) {
	p := &config.Parameters{Track: 3, Pair: 2}
	assert.True(t, wantsWorker(p, 3, 2))
	assert.False(t, wantsWorker(p, 3, 1))
	assert.False(t, wantsWorker(p, 1, 2))
}
