package queue

import "errors"

// ErrTimeout is returned by Post under OfConfidence when a subscriber
// did not drain in time, and by ReceiveRef/ReceiveTimeout when no
// message arrived before the deadline. Retrying is the caller's
// responsibility (spec.md §4.2 "Back-pressure is visible to producers
// as a timeout return code; retries are the producer's
// responsibility").
var ErrTimeout = errors.New("queue: timeout")

// ErrClosed is returned by Post/PostTerminator once Close has been
// called.
var ErrClosed = errors.New("queue: closed")
