package proxy

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/alitto/pond"
	"github.com/orbitalpipe/granule-pipeline/config"
	"github.com/orbitalpipe/granule-pipeline/internal/xlog"
	"github.com/orbitalpipe/granule-pipeline/queue"
	"github.com/orbitalpipe/granule-pipeline/record"
)

// CPULoadFactor is the number of concurrent sub-requests dispatched
// per CPU (Atl06Proxy.h's CPU_LOAD_FACTOR, fixed at 10 in the
// original rather than left configurable).
const CPULoadFactor = 10

// SubRequestFunc issues one resource's sub-request against the node
// the orchestrator granted and forwards its output records into the
// proxy's output queue. The proxy itself knows nothing about granule
// internals, array handles, or the record fabric beyond its own
// exception type; a caller wires this to subset.Run (and sample.Run,
// chained after it, when sampling is requested), matching spec.md
// §3's control-flow summary "proxy (C9) dispatches one granule per
// worker; on a worker, the subsetter (C5) spawns...".
type SubRequestFunc func(ctx context.Context, nodeURL, resource string, params *config.Parameters) error

// Input bundles one fan-out request.
type Input struct {
	Resources  []string
	ParamsBlob []byte
	Out        *queue.Queue

	Orchestrator Locker
	// LockTimeout overrides config.DefaultLockTimeout when positive.
	LockTimeout time.Duration

	Reg        *record.Registry
	SubRequest SubRequestFunc

	// Log may be nil; xlog.Logger's nil-receiver no-op covers it.
	Log *xlog.Logger
}

// Stats summarizes one fan-out run's slot outcomes.
type Stats struct {
	SlotsTotal     int
	SlotsSucceeded int
	SlotsFailed    int
}

// Run holds in.Resources' request slots across a pool sized
// CPULoadFactor*runtime.NumCPU() (spec.md §4.9 "a shared pool sized to
// CPU_LOAD_FACTOR × cores"), and for each slot: locks a node, issues
// the sub-request, unlocks the node on success or error, and records
// the outcome. A slot failure is surfaced as an exception record on
// in.Out and does not abort sibling slots (spec.md §4.9 "Sub-request
// failures... do not abort sibling sub-requests"). Run posts the
// stream terminator once every slot has completed.
func Run(ctx context.Context, in Input) (Stats, error) {
	var stats Stats
	stats.SlotsTotal = len(in.Resources)

	if len(in.ParamsBlob) > config.MaxParameterSize {
		return stats, newErr(KindOutOfMemory, "", fmt.Errorf("parameter blob of %d bytes exceeds %d byte limit", len(in.ParamsBlob), config.MaxParameterSize))
	}
	params, err := config.Parse(in.ParamsBlob)
	if err != nil {
		return stats, err
	}

	defs, err := DefineProxyTypes(in.Reg)
	if err != nil {
		return stats, err
	}

	lockTimeout := in.LockTimeout
	if lockTimeout <= 0 {
		lockTimeout = config.DefaultLockTimeout
	}

	size := CPULoadFactor * runtime.NumCPU()
	if size < 1 {
		size = 1
	}
	pool := pond.New(size, 0, pond.MinWorkers(size), pond.Context(ctx))
	defer pool.StopAndWait()

	var mu sync.Mutex
	for _, resource := range in.Resources {
		resource := resource
		pool.Submit(func() {
			slotErr := runSlot(ctx, in, params, defs, resource, lockTimeout)

			mu.Lock()
			defer mu.Unlock()
			if slotErr != nil {
				stats.SlotsFailed++
				in.Log.Warnf("proxy: slot %s failed: %v", resource, slotErr)
				return
			}
			stats.SlotsSucceeded++
		})
	}

	pool.StopAndWait()

	if err := in.Out.PostTerminator(); err != nil {
		return stats, err
	}
	in.Log.Infof("proxy: request done, slots=%d succeeded=%d failed=%d", stats.SlotsTotal, stats.SlotsSucceeded, stats.SlotsFailed)
	return stats, nil
}

// runSlot carries out one resource's slot lifecycle (spec.md §4.9
// steps 1-4: lock, issue sub-request, unlock on success or error,
// mark complete).
func runSlot(ctx context.Context, in Input, params *config.Parameters, defs Definitions, resource string, lockTimeout time.Duration) error {
	lockCtx, cancel := context.WithTimeout(ctx, lockTimeout)
	defer cancel()

	nodeURL, err := in.Orchestrator.Lock(lockCtx, resource, lockTimeout)
	if err != nil {
		wrapped := newErr(KindOrchestratorUnavailable, resource, err)
		postException(ctx, in, defs, resource, wrapped)
		return wrapped
	}

	var subErr error
	func() {
		defer func() {
			// Unlock always runs on success or error (spec.md §4.9
			// step 3), using a background context so a caller-canceled
			// ctx never leaks a held node grant.
			if uerr := in.Orchestrator.Unlock(context.Background(), nodeURL); uerr != nil {
				in.Log.Warnf("proxy: unlock %s: %v", nodeURL, uerr)
			}
		}()
		subErr = in.SubRequest(ctx, nodeURL, resource, params)
	}()

	if subErr != nil {
		wrapped := newErr(KindResourceMissing, resource, subErr)
		postException(ctx, in, defs, resource, wrapped)
		return wrapped
	}
	return nil
}

// postException serializes a structured exception record for a
// failed slot onto in.Out (spec.md §5 "the worker emits a structured
// exception record... and then exits its own loop"). A post failure
// here is logged, not propagated: the slot has already failed, and
// failing twice over would not help a caller already draining in.Out.
func postException(ctx context.Context, in Input, defs Definitions, resource string, err *Error) {
	rec, buildErr := buildExceptionRecord(defs.Exception, resource, err.Kind, uint32(xlogLevelFor(err.Kind)), err.Error())
	if buildErr != nil {
		in.Log.Warnf("proxy: building exception record for %s: %v", resource, buildErr)
		return
	}
	serialized, serErr := rec.Serialize(nil, record.ModeCopy)
	if serErr != nil {
		in.Log.Warnf("proxy: serializing exception record for %s: %v", resource, serErr)
		return
	}
	container := record.NewContainer()
	container.Add(serialized)
	if postErr := in.Out.Post(ctx, container.Serialize()); postErr != nil {
		in.Log.Warnf("proxy: posting exception record for %s: %v", resource, postErr)
	}
}

// xlogLevelFor maps a slot Kind to the exception record's severity
// level; orchestrator unavailability and out-of-memory are errors,
// everything else is a warning.
func xlogLevelFor(kind Kind) xlog.Level {
	switch kind {
	case KindOrchestratorUnavailable, KindOutOfMemory:
		return xlog.LevelError
	default:
		return xlog.LevelWarn
	}
}
