//go:build linux

package ring

import (
	"fmt"
)

// Stream adapts an AsyncRing into an io.Reader that yields exactly one
// packet payload per Read call. When the final record of a block has
// been delivered the block is consumed before the next wait, so the
// kernel gets its blocks back without the caller tracking them. A ripe
// block carrying no records is consumed and skipped.
type Stream struct {
	ring *AsyncRing
	cur  *ConsumingIter
}

// Stream wraps the ring for sequential payload reads. The Stream and
// direct RecvBlock calls must not be mixed.
func (a *AsyncRing) Stream() *Stream {
	return &Stream{ring: a}
}

// Read copies the next packet payload into p and returns its length.
// A payload longer than p is truncated to len(p).
func (s *Stream) Read(p []byte) (int, error) {
	for {
		if s.cur != nil {
			if s.cur.Next() {
				n := copy(p, s.cur.Packet().Payload())
				if s.cur.IsLast() {
					s.cur.Close()
					s.cur = nil
				}
				return n, nil
			}
			// Only reachable for a block with no records: consume it
			// and move on.
			s.cur.Close()
			s.cur = nil
		}

		var blk *Block
		err := s.ring.rc.Read(func(uintptr) bool {
			blk = s.ring.ring.checkCurrentBlock()
			return blk != nil
		})
		if err != nil {
			return 0, fmt.Errorf("ring: stream wait readable: %w", err)
		}
		s.cur = blk.ConsumingIter()
	}
}

// Close consumes the in-flight block, if any. The underlying ring
// stays open.
func (s *Stream) Close() error {
	if s.cur != nil {
		s.cur.Close()
		s.cur = nil
	}
	return nil
}
