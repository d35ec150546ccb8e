package subset

import (
	"context"
	"testing"
	"time"

	"github.com/orbitalpipe/granule-pipeline/queue"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestArrayPathsUsesTrackPrefix(t *testing.T) {
	paths := arrayPaths("/gt2r")
	require.Len(t, paths, 16)
	assert.Equal(t, "/gt2r/geolocation/segment_id", paths[pSegmentID])
	assert.Equal(t, "/gt2r/heights/h_ph", paths[pHPh])
	assert.Equal(t, "/gt2r/heights/signal_conf_ph", paths[pConf])
	assert.Equal(t, "/gt2r/heights/ph_segment_index", paths[pPhSegIdx])
}

func TestMeanHeight(t *testing.T) {
	assert.Equal(t, 0.0, meanHeight(nil))
	got := meanHeight([]photonCandidate{{Height: 1}, {Height: 3}})
	assert.Equal(t, 2.0, got)
}

func TestPostWithRetrySucceedsImmediately(t *testing.T) {
	q := queue.New("extents", 4, queue.OfConfidence)
	q.Subscribe()

	retried, err := postWithRetry(context.Background(), q, []byte("hello"))
	require.NoError(t, err)
	assert.Equal(t, 0, retried)
}

func TestPostWithRetryGivesUpWhenContextDone(t *testing.T) {
	q := queue.New("extents", 1, queue.OfConfidence)
	q.Subscribe() // never drained, so the one-slot buffer fills immediately

	require.NoError(t, q.Post(context.Background(), []byte("fill the buffer")))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := postWithRetry(ctx, q, []byte("second"))
	assert.Error(t, err)
}
