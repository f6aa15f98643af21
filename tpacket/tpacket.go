// Package tpacket describes the Linux TPACKET_V3 packet ring ABI: the
// ring request, the per-block descriptor the kernel writes at the head
// of every block, the per-packet record header, and the status word
// used to pass block ownership between kernel and userspace.
package tpacket

// Values from <linux/if_packet.h>. They are kernel ABI and fixed.
const (
	// Block status word. Zero means the kernel owns the block, bit 0
	// means it has been released to userspace.
	StatusKernel uint32 = 0
	StatusUser   uint32 = 1

	Version3 = 2

	PacketRxRing     = 5
	PacketStatistics = 6
	PacketVersion    = 10
	PacketFanout     = 18

	FanoutHash = 0
	FanoutLB   = 1
	FanoutCPU  = 2

	// FeatureFillRXHash asks the kernel to fill tp_rxhash in every
	// packet record.
	FeatureFillRXHash uint32 = 1
)

// Req3 mirrors tpacket_req3, the PACKET_RX_RING request for a V3 ring.
// BlockSize*BlockNr must equal FrameSize*FrameNr; FrameNr is derived,
// not chosen.
type Req3 struct {
	BlockSize      uint32
	BlockNr        uint32
	FrameSize      uint32
	FrameNr        uint32
	RetireBlkTov   uint32 // block retire timeout, milliseconds
	SizeofPriv     uint32
	FeatureReqWord uint32
}

// DefaultReq3 returns the stock ring sizing: 32 KiB blocks, 10000 of
// them, 2 KiB frames, 100 ms retire timeout, RX hash on.
func DefaultReq3() Req3 {
	return Req3{
		BlockSize:      32 * 1024,
		BlockNr:        10000,
		FrameSize:      2048,
		FrameNr:        160000,
		RetireBlkTov:   100,
		SizeofPriv:     0,
		FeatureReqWord: FeatureFillRXHash,
	}
}

// FrameCount derives tp_frame_nr from the sizing fields.
func (r Req3) FrameCount() uint32 {
	return r.BlockSize * r.BlockNr / r.FrameSize
}

// RingSize is the byte length of the mapping backing the ring.
func (r Req3) RingSize() int {
	return int(r.BlockSize) * int(r.BlockNr)
}

// FanoutID packs a PACKET_FANOUT group id: pid in the low 16 bits,
// fanout mode in the high 16. Sockets of one process that install the
// same id join one dispatcher group.
func FanoutID(pid, mode int) int {
	return (pid & 0xFFFF) | mode<<16
}

// StatsV3 mirrors tpacket_stats_v3 as returned by PACKET_STATISTICS.
// The kernel resets the counters on every read.
type StatsV3 struct {
	Packets    uint32
	Drops      uint32
	FreezeQCnt uint32
}
