//go:build linux

package ring

import (
	"fmt"

	"golang.org/x/sys/unix"

	"github.com/sofiworker/afring/socket"
	"github.com/sofiworker/afring/tpacket"
)

// Ring owns one mapped TPACKET_V3 ring: the socket, the block slices
// and the consumer cursor. It may move between goroutines but must not
// be used by two at once; the in-kernel ring is single-consumer.
type Ring struct {
	sock    *socket.Socket
	blocks  []rawBlock
	req     tpacket.Req3
	curIdx  uint32
	mapping []byte
}

// FromIfName brings up a ring on the named interface with default
// settings, putting the interface into promiscuous mode.
func FromIfName(ifName string) (*Ring, error) {
	b, err := NewBuilder(ifName)
	if err != nil {
		return nil, err
	}
	return b.Build()
}

// FromSettings brings up a ring from explicit settings.
func FromSettings(s Settings) (*Ring, error) {
	b, err := BuilderFromSettings(s)
	if err != nil {
		return nil, err
	}
	return b.Build()
}

// RecvBlock waits until the block at the cursor is released to
// userspace and hands it out, advancing the cursor. It never fails;
// the poll wake-up result is deliberately ignored and the block check
// repeated.
func (r *Ring) RecvBlock() *Block {
	for {
		// In a busy capture the next block is usually already ripe;
		// checking first saves the poll syscall.
		if blk := r.checkCurrentBlock(); blk != nil {
			return blk
		}
		r.waitForBlock()
	}
}

func (r *Ring) checkCurrentBlock() *Block {
	raw := &r.blocks[r.curIdx]
	if !raw.ready() {
		return nil
	}
	r.curIdx = (r.curIdx + 1) % r.req.BlockNr
	return raw.view()
}

func (r *Ring) waitForBlock() {
	pfd := []unix.PollFd{{
		Fd:     int32(r.sock.Fd()),
		Events: unix.POLLIN | unix.POLLERR,
	}}
	// Wake-up only; the ready check decides what happens next.
	unix.Poll(pfd, -1)
}

// BlocksCount returns the number of blocks in the ring.
func (r *Ring) BlocksCount() uint32 {
	return r.req.BlockNr
}

// BufferSaturationThreshold estimates the percentage of ripe blocks
// ahead of the cursor by probing at strides of stepPercent of the
// ring, so a large ring is not touched block by block. The result is
// approximate and rounds up to the stride. stepPercent must be below
// 50.
func (r *Ring) BufferSaturationThreshold(stepPercent uint8) uint8 {
	if stepPercent >= 50 {
		panic("ring: saturation step percent must be below 50")
	}
	step := uint32(uint64(r.req.BlockNr) * uint64(stepPercent) / 100)
	if step == 0 {
		step = 1
	}

	var n uint32
	idx := (r.curIdx + step) % r.req.BlockNr
	for n < r.req.BlockNr {
		n += step
		if n > r.req.BlockNr {
			n = r.req.BlockNr
		}
		if !r.blocks[idx].ready() {
			break
		}
		idx = (idx + step) % r.req.BlockNr
	}
	return uint8(n * 100 / r.req.BlockNr)
}

// Stats reads and resets the kernel's receive counters for the ring's
// socket.
func (r *Ring) Stats() (tpacket.StatsV3, error) {
	return r.sock.RxStatistics()
}

// Fd returns the socket descriptor for integration with external
// pollers.
func (r *Ring) Fd() int {
	return r.sock.Fd()
}

// Close unmaps the ring and closes the socket. Blocks handed out
// earlier must not be touched afterwards.
func (r *Ring) Close() error {
	r.unmap()
	return r.sock.Close()
}

func (r *Ring) unmap() {
	if r.mapping == nil {
		return
	}
	unix.Munmap(r.mapping)
	r.mapping = nil
	r.blocks = nil
}

// GetRxStatistics reads PACKET_STATISTICS off an arbitrary packet
// socket descriptor. The kernel resets the counters on every read.
func GetRxStatistics(fd int) (tpacket.StatsV3, error) {
	st, err := unix.GetsockoptTpacketStatsV3(fd, unix.SOL_PACKET, tpacket.PacketStatistics)
	if err != nil {
		return tpacket.StatsV3{}, fmt.Errorf("ring: PACKET_STATISTICS: %w", err)
	}
	return tpacket.StatsV3{
		Packets:    st.Packets,
		Drops:      st.Drops,
		FreezeQCnt: st.Freeze_q_cnt,
	}, nil
}
