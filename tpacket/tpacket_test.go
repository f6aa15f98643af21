package tpacket

import (
	"testing"
	"unsafe"
)

// Struct sizes are kernel ABI. A failure here means a field or padding
// change broke the layout.
func TestLayoutSizes(t *testing.T) {
	if s := unsafe.Sizeof(BlockDesc{}); s != 48 {
		t.Fatalf("sizeof tpacket_block_desc = %d, want 48", s)
	}
	if s := unsafe.Sizeof(BDHeader{}); s != 40 {
		t.Fatalf("sizeof tpacket_hdr_v1 = %d, want 40", s)
	}
	if s := unsafe.Sizeof(PacketHeader{}); s != 48 {
		t.Fatalf("sizeof tpacket3_hdr = %d, want 48", s)
	}
	if s := unsafe.Sizeof(HdrVariant1{}); s != 12 {
		t.Fatalf("sizeof tpacket_hdr_variant1 = %d, want 12", s)
	}
	if s := unsafe.Sizeof(Req3{}); s != 28 {
		t.Fatalf("sizeof tpacket_req3 = %d, want 28", s)
	}
	if s := unsafe.Sizeof(StatsV3{}); s != 12 {
		t.Fatalf("sizeof tpacket_stats_v3 = %d, want 12", s)
	}
	if off := unsafe.Offsetof(BlockDesc{}.Hdr); off != 8 {
		t.Fatalf("offsetof hdr = %d, want 8", off)
	}
}

func TestDefaultReq3(t *testing.T) {
	req := DefaultReq3()
	if req.BlockSize != 32*1024 || req.BlockNr != 10000 || req.FrameSize != 2048 {
		t.Fatalf("unexpected defaults: %+v", req)
	}
	if req.BlockSize*req.BlockNr != req.FrameSize*req.FrameNr {
		t.Fatalf("sizing invariant violated: %+v", req)
	}
	if req.RetireBlkTov != 100 {
		t.Fatalf("unexpected retire timeout: %d", req.RetireBlkTov)
	}
	if req.FeatureReqWord != FeatureFillRXHash {
		t.Fatalf("unexpected feature word: %d", req.FeatureReqWord)
	}
}

func TestFrameCount(t *testing.T) {
	req := DefaultReq3()
	if got := req.FrameCount(); got != req.BlockSize*req.BlockNr/req.FrameSize {
		t.Fatalf("frame count = %d", got)
	}
	req = Req3{BlockSize: 4096, BlockNr: 8, FrameSize: 2048}
	if got := req.FrameCount(); got != 16 {
		t.Fatalf("frame count = %d, want 16", got)
	}
	if got := req.RingSize(); got != 4096*8 {
		t.Fatalf("ring size = %d", got)
	}
}

func TestFanoutID(t *testing.T) {
	id := FanoutID(0x12345, FanoutLB)
	if id&0xFFFF != 0x2345 {
		t.Fatalf("low 16 bits = %#x, want pid & 0xFFFF", id&0xFFFF)
	}
	if id>>16 != FanoutLB {
		t.Fatalf("high 16 bits = %#x, want mode", id>>16)
	}
	if got := FanoutID(42, FanoutCPU); got != 42|FanoutCPU<<16 {
		t.Fatalf("fanout id = %#x", got)
	}
}

func TestBlockDescView(t *testing.T) {
	block := make([]byte, 4096)
	desc := BlockDescOf(block)
	desc.Version = Version3
	desc.Hdr.NumPkts = 3
	desc.Hdr.OffsetToFirstPkt = 48
	desc.Hdr.BlkLen = 256
	desc.Hdr.SeqNum = 7

	// The view aliases the buffer, so a second view sees the writes.
	again := BlockDescOf(block)
	if again.Hdr.NumPkts != 3 || again.Hdr.BlkLen != 256 || again.Hdr.SeqNum != 7 {
		t.Fatalf("descriptor did not round-trip: %+v", again.Hdr)
	}

	if desc.Hdr.Ready() {
		t.Fatalf("fresh block must be kernel-owned")
	}
	desc.Hdr.BlockStatus = StatusUser
	if !desc.Hdr.Ready() {
		t.Fatalf("status user not observed")
	}
	desc.Hdr.Release()
	if desc.Hdr.BlockStatus != StatusKernel {
		t.Fatalf("release did not store kernel status")
	}
}

func TestPacketHeaderView(t *testing.T) {
	block := make([]byte, 4096)
	hdr := PacketHeaderAt(block, 48)
	hdr.NextOffset = 96
	hdr.Snaplen = 60
	hdr.Len = 1514
	hdr.Mac = 64
	hdr.Hv1.RXHash = 0xdeadbeef

	again := PacketHeaderAt(block, 48)
	if again.NextOffset != 96 || again.Snaplen != 60 || again.Len != 1514 {
		t.Fatalf("record header did not round-trip: %+v", again)
	}
	if again.Hv1.RXHash != 0xdeadbeef {
		t.Fatalf("rx hash did not round-trip")
	}
}

func TestPacketHeaderAtBounds(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic for overrunning offset")
		}
	}()
	PacketHeaderAt(make([]byte, 64), 32)
}
