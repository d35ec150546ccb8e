package proxy

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/orbitalpipe/granule-pipeline/config"
	"github.com/orbitalpipe/granule-pipeline/queue"
	"github.com/orbitalpipe/granule-pipeline/record"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeLocker grants a fixed node URL for any resource, or fails
// every lock/unlock if told to.
type fakeLocker struct {
	failLock   bool
	failUnlock bool
	locked     []string
	unlocked   []string
}

func (f *fakeLocker) Lock(ctx context.Context, resource string, timeout time.Duration) (string, error) {
	if f.failLock {
		return "", errors.New("orchestrator unreachable")
	}
	f.locked = append(f.locked, resource)
	return "node://" + resource, nil
}

func (f *fakeLocker) Unlock(ctx context.Context, nodeURL string) error {
	if f.failUnlock {
		return errors.New("unlock failed")
	}
	f.unlocked = append(f.unlocked, nodeURL)
	return nil
}

func drainContainers(t *testing.T, sub *queue.Subscriber, timeout time.Duration) ([]*record.Container, bool) {
	t.Helper()
	var containers []*record.Container
	for {
		ref, err := sub.ReceiveTimeout(timeout)
		require.NoError(t, err)
		if ref.IsTerminator() {
			ref.Dereference()
			return containers, true
		}
		c, err := record.ParseContainer(ref.Payload())
		require.NoError(t, err)
		containers = append(containers, c)
		ref.Dereference()
	}
}

func TestRunLocksDispatchesAndUnlocksEverySlot(t *testing.T) {
	reg := record.NewRegistry()
	out := queue.New("proxy-out", 8, queue.OfConfidence)
	outSub := out.Subscribe()

	locker := &fakeLocker{}
	var seen []string
	sub := func(ctx context.Context, nodeURL, resource string, params *config.Parameters) error {
		seen = append(seen, resource+"@"+nodeURL)
		return nil
	}

	stats, err := Run(context.Background(), Input{
		Resources:    []string{"granule-a", "granule-b"},
		Out:          out,
		Orchestrator: locker,
		Reg:          reg,
		SubRequest:   sub,
	})
	require.NoError(t, err)
	assert.Equal(t, 2, stats.SlotsTotal)
	assert.Equal(t, 2, stats.SlotsSucceeded)
	assert.Equal(t, 0, stats.SlotsFailed)
	assert.ElementsMatch(t, []string{"granule-a", "granule-b"}, locker.locked)
	assert.ElementsMatch(t, []string{"node://granule-a", "node://granule-b"}, locker.unlocked)
	assert.ElementsMatch(t, []string{"granule-a@node://granule-a", "granule-b@node://granule-b"}, seen)

	containers, terminated := drainContainers(t, outSub, time.Second)
	require.True(t, terminated)
	assert.Empty(t, containers, "no failures, so no exception records")
}

func TestRunSurvivesLockFailure(t *testing.T) {
	reg := record.NewRegistry()
	out := queue.New("proxy-out", 8, queue.OfConfidence)
	outSub := out.Subscribe()

	locker := &fakeLocker{failLock: true}
	var calls int
	sub := func(ctx context.Context, nodeURL, resource string, params *config.Parameters) error {
		calls++
		return nil
	}

	stats, err := Run(context.Background(), Input{
		Resources:    []string{"granule-a"},
		Out:          out,
		Orchestrator: locker,
		Reg:          reg,
		SubRequest:   sub,
	})
	require.NoError(t, err, "Run itself succeeds even though the slot failed")
	assert.Equal(t, 1, stats.SlotsTotal)
	assert.Equal(t, 0, stats.SlotsSucceeded)
	assert.Equal(t, 1, stats.SlotsFailed)
	assert.Equal(t, 0, calls, "sub-request is never issued when the lock fails")

	containers, terminated := drainContainers(t, outSub, time.Second)
	require.True(t, terminated)
	require.Len(t, containers, 1)
	assert.Equal(t, 1, containers[0].Len())

	recs, err := containers[0].Decode(reg)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	kind, _ := recs[0].GetUint64("Kind")
	assert.Equal(t, uint64(KindOrchestratorUnavailable), kind)
	resource, err := getFixedString(recs[0], recs[0].Definition(), "Resource")
	require.NoError(t, err)
	assert.Equal(t, "granule-a", resource)
}

func TestRunUnlocksEvenWhenSubRequestFails(t *testing.T) {
	reg := record.NewRegistry()
	out := queue.New("proxy-out", 8, queue.OfConfidence)
	outSub := out.Subscribe()

	locker := &fakeLocker{}
	sub := func(ctx context.Context, nodeURL, resource string, params *config.Parameters) error {
		return errors.New("sub-request failed")
	}

	stats, err := Run(context.Background(), Input{
		Resources:    []string{"granule-a"},
		Out:          out,
		Orchestrator: locker,
		Reg:          reg,
		SubRequest:   sub,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, stats.SlotsFailed)
	assert.ElementsMatch(t, []string{"node://granule-a"}, locker.unlocked, "unlock still runs after a sub-request error")

	containers, terminated := drainContainers(t, outSub, time.Second)
	require.True(t, terminated)
	require.Len(t, containers, 1)
}

func TestRunRejectsOversizedParameterBlob(t *testing.T) {
	reg := record.NewRegistry()
	out := queue.New("proxy-out", 1, queue.OfConfidence)

	_, err := Run(context.Background(), Input{
		Resources:    []string{"granule-a"},
		ParamsBlob:   make([]byte, config.MaxParameterSize+1),
		Out:          out,
		Orchestrator: &fakeLocker{},
		Reg:          reg,
		SubRequest: func(ctx context.Context, nodeURL, resource string, params *config.Parameters) error {
			return nil
		},
	})
	require.Error(t, err)
	assert.True(t, IsKind(err, KindOutOfMemory))
}
