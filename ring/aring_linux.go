//go:build linux

package ring

import (
	"context"
	"fmt"
	"os"
	"syscall"
	"time"

	"github.com/sofiworker/afring/tpacket"
)

// AsyncRing drives the same mapped ring through the Go runtime's
// descriptor poller instead of blocking poll: a goroutine waiting in
// RecvBlock is parked by the netpoller, not a thread in poll(2). The
// descriptor must be non-blocking, which BuildAsync takes care of.
type AsyncRing struct {
	ring *Ring
	file *os.File
	rc   syscall.RawConn
}

func newAsyncRing(r *Ring) (*AsyncRing, error) {
	f := os.NewFile(uintptr(r.sock.Fd()), r.sock.IfName())
	rc, err := f.SyscallConn()
	if err != nil {
		return nil, fmt.Errorf("ring: register with runtime poller: %w", err)
	}
	return &AsyncRing{ring: r, file: f, rc: rc}, nil
}

// AsyncFromIfName brings up a poller-driven ring on the named
// interface with default settings.
func AsyncFromIfName(ifName string) (*AsyncRing, error) {
	b, err := NewBuilder(ifName)
	if err != nil {
		return nil, err
	}
	return b.BuildAsync()
}

// AsyncFromSettings brings up a poller-driven ring from explicit
// settings.
func AsyncFromSettings(s Settings) (*AsyncRing, error) {
	b, err := BuilderFromSettings(s)
	if err != nil {
		return nil, err
	}
	return b.BuildAsync()
}

// RecvBlock suspends the calling goroutine until the block at the
// cursor is released to userspace, then hands it out. Readiness-layer
// failures surface as errors; ctx cancellation unblocks the wait.
func (a *AsyncRing) RecvBlock(ctx context.Context) (*Block, error) {
	if blk := a.ring.checkCurrentBlock(); blk != nil {
		return blk, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	stop := func() bool { return true }
	if ctx.Done() != nil {
		stop = context.AfterFunc(ctx, func() {
			a.file.SetReadDeadline(time.Now())
		})
	}

	var blk *Block
	err := a.rc.Read(func(uintptr) bool {
		blk = a.ring.checkCurrentBlock()
		return blk != nil
	})

	if !stop() {
		// The cancel hook fired; clear the poisoned deadline so the
		// ring stays usable.
		a.file.SetReadDeadline(time.Time{})
	}
	if err != nil {
		if cerr := ctx.Err(); cerr != nil {
			return nil, cerr
		}
		return nil, fmt.Errorf("ring: wait readable: %w", err)
	}
	return blk, nil
}

// BlocksCount returns the number of blocks in the ring.
func (a *AsyncRing) BlocksCount() uint32 {
	return a.ring.BlocksCount()
}

// BufferSaturationThreshold estimates the percentage of ripe blocks
// ahead of the cursor; see Ring.BufferSaturationThreshold.
func (a *AsyncRing) BufferSaturationThreshold(stepPercent uint8) uint8 {
	return a.ring.BufferSaturationThreshold(stepPercent)
}

// Stats reads and resets the kernel's receive counters.
func (a *AsyncRing) Stats() (tpacket.StatsV3, error) {
	return a.ring.Stats()
}

// Fd returns the socket descriptor.
func (a *AsyncRing) Fd() int {
	return a.ring.Fd()
}

// Close unmaps the ring and closes the descriptor through the runtime
// poller, waking any goroutine parked in RecvBlock.
func (a *AsyncRing) Close() error {
	a.ring.unmap()
	return a.file.Close()
}
