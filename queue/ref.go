package queue

import "sync/atomic"

// Ref is a reference-counted view of a Message handed out by
// ReceiveRef. Exactly one Dereference call per Ref is mandatory;
// double-dereferencing is a programming error and panics, matching
// the original implementation's assertion that a reference is
// released exactly once.
type Ref struct {
	msg      *Message
	dereffed int32
}

// Payload returns the referenced message's bytes. A terminator Ref
// has a nil Payload.
func (r *Ref) Payload() []byte { return r.msg.Payload }

// IsTerminator reports whether this Ref refers to the end-of-stream
// marker.
func (r *Ref) IsTerminator() bool { return r.msg.IsTerminator() }

// Dereference releases this Ref's hold on the underlying Message. Once
// every Subscriber that received the Message has dereferenced it, the
// Message's refCount reaches zero and it becomes eligible for reuse
// by whatever pool allocated its Payload.
func (r *Ref) Dereference() {
	if !atomic.CompareAndSwapInt32(&r.dereffed, 0, 1) {
		panic("queue: Ref dereferenced more than once")
	}
	atomic.AddInt32(&r.msg.refCount, -1)
}

// RefCount reports the Message's current outstanding reference count.
// Intended for tests and diagnostics, not for flow control.
func (r *Ref) RefCount() int32 { return atomic.LoadInt32(&r.msg.refCount) }
