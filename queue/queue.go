// Package queue implements the bounded, reference-counted
// multi-producer/multi-subscriber pub/sub fabric (spec.md §4.2,
// component C2) that every stage posts its record.Record output
// through. A Queue fans every posted message out to every registered
// Subscriber, each through its own buffered channel. Under
// kOfConfidence, Post delivers to the subscribers in turn and blocks on
// a full channel, so one slow subscriber holds back delivery to the
// subscribers after it.
//
// Grounded on the single-goroutine channel-request/response loop in
// protomaps-go-pmtiles' pmtiles/loop.go (Loop.Start's req/resp
// channels and container/list eviction) for the "own goroutine owns
// the data structure, channels are the only cross-goroutine access"
// idiom; the reference-counted message and terminator semantics are
// carried over from original_source/MsgQ.h (Subscriber::receiveRef /
// dereference, the zero-length terminator).
package queue

import (
	"context"
	"sync"
	"time"
)

// Mode selects a Queue's behavior when a subscriber's channel is full.
type Mode int

const (
	// OfConfidence blocks Post until the subscriber drains or the
	// caller's timeout expires, guaranteeing delivery.
	OfConfidence Mode = iota
	// OfOpportunity drops the subscriber's oldest buffered message to
	// make room for the new one; delivery is best-effort.
	OfOpportunity
)

// Message is one posted payload. Payload is nil (zero length) for a
// terminator message. refCount tracks outstanding Refs handed out
// across every subscriber; it is owned by the Queue, not by any one
// Subscriber.
type Message struct {
	Payload []byte

	refCount int32
}

// IsTerminator reports whether m is the well-known zero-length
// end-of-stream marker.
func (m *Message) IsTerminator() bool { return m == nil || len(m.Payload) == 0 }

// Queue is one named, bounded, multi-subscriber channel. Producers
// call Post/PostTerminator; consumers call Subscribe once and then
// ReceiveRef repeatedly on the returned Subscriber.
type Queue struct {
	name     string
	capacity int
	mode     Mode

	mu     sync.Mutex
	subs   []*Subscriber
	closed bool
}

// New constructs a Queue with the given per-subscriber buffer capacity
// and back-pressure mode.
func New(name string, capacity int, mode Mode) *Queue {
	return &Queue{name: name, capacity: capacity, mode: mode}
}

// Name returns the Queue's name, used as the output-queue key in
// per-request routing (spec.md §6 "output queue name").
func (q *Queue) Name() string { return q.name }

// Subscriber receives messages posted to a Queue. Each Subscriber has
// its own buffered channel; under OfConfidence a full channel blocks
// Post, which delays delivery to the subscribers after it.
type Subscriber struct {
	ch chan *Message
}

// Subscribe registers a new Subscriber against q. Subscribing after
// messages have already been posted only yields messages posted from
// that point on; there is no replay.
func (q *Queue) Subscribe() *Subscriber {
	sub := &Subscriber{ch: make(chan *Message, q.capacity)}
	q.mu.Lock()
	q.subs = append(q.subs, sub)
	q.mu.Unlock()
	return sub
}

// Post fans payload out to every current subscriber as one shared
// Message (refCount set to the subscriber count so the message is
// only eligible for release once every subscriber has dereferenced
// it). Under OfConfidence, Post blocks per-subscriber until there is
// room or ctx is done, returning ErrTimeout if any subscriber could
// not accept within the deadline. Under OfOpportunity, a full
// subscriber channel has its oldest message dropped to make room;
// Post never blocks.
func (q *Queue) Post(ctx context.Context, payload []byte) error {
	return q.post(ctx, payload)
}

// PostTerminator posts the well-known zero-length terminator message,
// which every subscriber must treat as end-of-stream (spec.md §7
// "exactly one terminator").
func (q *Queue) PostTerminator() error {
	return q.post(context.Background(), nil)
}

func (q *Queue) post(ctx context.Context, payload []byte) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return ErrClosed
	}
	subs := make([]*Subscriber, len(q.subs))
	copy(subs, q.subs)
	q.mu.Unlock()

	msg := &Message{Payload: payload, refCount: int32(len(subs))}
	if len(subs) == 0 {
		return nil
	}

	for _, sub := range subs {
		if err := sub.deliver(ctx, msg, q.mode); err != nil {
			return err
		}
	}
	return nil
}

func (s *Subscriber) deliver(ctx context.Context, msg *Message, mode Mode) error {
	switch mode {
	case OfOpportunity:
		for {
			select {
			case s.ch <- msg:
				return nil
			default:
				select {
				case <-s.ch:
				default:
				}
			}
		}
	default: // OfConfidence
		select {
		case s.ch <- msg:
			return nil
		case <-ctx.Done():
			return ErrTimeout
		}
	}
}

// ReceiveRef blocks until a message is available or ctx is done,
// returning a reference-counted Ref the caller must Dereference on
// every exit path (spec.md §9 "Every queue reference obtained by a
// worker must be released on all exit paths").
func (s *Subscriber) ReceiveRef(ctx context.Context) (*Ref, error) {
	select {
	case msg := <-s.ch:
		return &Ref{msg: msg}, nil
	case <-ctx.Done():
		return nil, ErrTimeout
	}
}

// ReceiveTimeout is a convenience wrapper around ReceiveRef for
// callers that work in terms of a duration rather than a Context.
func (s *Subscriber) ReceiveTimeout(timeout time.Duration) (*Ref, error) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return s.ReceiveRef(ctx)
}

// Close marks q closed; further Post/PostTerminator calls return
// ErrClosed. Existing subscriber channels are left open so buffered
// messages already delivered can still be drained.
func (q *Queue) Close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
}
