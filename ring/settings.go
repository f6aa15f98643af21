// Package ring implements a zero-copy receive path on the Linux
// TPACKET_V3 packet ring. The kernel delivers frames into a shared
// memory region organized as a ring of blocks; consumers walk packet
// records in place and hand each block back by flipping its status
// word. One Ring is one mapped ring plus a cursor, normally one per
// worker; rings built with the same fanout mode in one process form a
// kernel fanout group.
package ring

import (
	"golang.org/x/net/bpf"

	"github.com/sofiworker/afring/tpacket"
)

// DefaultInterface is used by DefaultSettings only.
const DefaultInterface = "eth0"

// Settings carries everything needed to bring up one ring.
type Settings struct {
	// IfName is the interface to capture on.
	IfName string
	// FanoutMode selects how the kernel spreads packets across the
	// rings of one fanout group: tpacket.FanoutHash pins flows to one
	// ring, FanoutLB round-robins, FanoutCPU pins by source CPU.
	FanoutMode int
	// Req sizes the ring. FrameNr is derived during build and need not
	// be set.
	Req tpacket.Req3
	// Filter is an optional pre-assembled classic BPF program.
	Filter []bpf.RawInstruction
	// Promiscuous puts the interface into promiscuous mode during
	// build. The flag is not restored on teardown.
	Promiscuous bool
}

// DefaultSettings captures on eth0 with hash fanout, stock ring sizing
// and promiscuous mode on.
func DefaultSettings() Settings {
	return Settings{
		IfName:      DefaultInterface,
		FanoutMode:  tpacket.FanoutHash,
		Req:         tpacket.DefaultReq3(),
		Promiscuous: true,
	}
}
