package main

import (
	"context"
	"encoding/binary"
	"os"

	"github.com/orbitalpipe/granule-pipeline/queue"
)

// drainToFile reads sub until the stream terminator, appending each
// container's already-self-delimiting Serialize() bytes to path
// behind a 4-byte big-endian length prefix (record.Container frames
// its own member records; this prefix only frames the sequence of
// containers written to one file, mirroring the teacher's convert_gsf
// writing one output artifact per processing stage). It returns the
// number of containers written.
func drainToFile(ctx context.Context, sub *queue.Subscriber, path string) (int, error) {
	f, err := os.Create(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	var n int
	var lenBuf [4]byte
	for {
		ref, err := sub.ReceiveRef(ctx)
		if err != nil {
			return n, err
		}
		if ref.IsTerminator() {
			ref.Dereference()
			return n, nil
		}
		payload := ref.Payload()
		binary.BigEndian.PutUint32(lenBuf[:], uint32(len(payload)))
		if _, err := f.Write(lenBuf[:]); err != nil {
			ref.Dereference()
			return n, err
		}
		if _, err := f.Write(payload); err != nil {
			ref.Dereference()
			return n, err
		}
		ref.Dereference()
		n++
	}
}

// forwardContainers reads sub until the stream terminator, re-posting
// every non-terminator payload onto dst without forwarding that
// terminator itself -- the proxy fan-out's "merge result streams"
// step (spec.md §3), since only the fan-out's own completion, not any
// one slot's, should end dst's stream.
func forwardContainers(ctx context.Context, sub *queue.Subscriber, dst *queue.Queue) error {
	for {
		ref, err := sub.ReceiveRef(ctx)
		if err != nil {
			return err
		}
		if ref.IsTerminator() {
			ref.Dereference()
			return nil
		}
		payload := append([]byte(nil), ref.Payload()...)
		ref.Dereference()
		if err := dst.Post(ctx, payload); err != nil {
			return err
		}
	}
}
