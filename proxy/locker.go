package proxy

import (
	"context"
	"time"
)

// Locker abstracts the external orchestrator's node lock/unlock
// protocol (spec.md §6 "REST-style lock/unlock over HTTPS:
// lock(resource) -> node_url | error, unlock(node_url) -> ok |
// error"). A fan-out run never talks to the orchestrator directly,
// only through this interface, so tests can substitute a fake without
// a network round trip.
type Locker interface {
	// Lock asks the orchestrator for a worker node to run resource on.
	// The grant is bounded by timeout; the caller must not hold it
	// past that and must always pair a successful Lock with an
	// eventual Unlock.
	Lock(ctx context.Context, resource string, timeout time.Duration) (nodeURL string, err error)

	// Unlock releases a node previously returned by Lock.
	Unlock(ctx context.Context, nodeURL string) error
}
