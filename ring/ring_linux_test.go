//go:build linux

package ring

import (
	"bytes"
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"golang.org/x/sys/unix"

	"github.com/sofiworker/afring/socket"
	"github.com/sofiworker/afring/tpacket"
)

func fakeRing(t *testing.T, ready []bool) *Ring {
	t.Helper()
	blocks := make([]rawBlock, len(ready))
	for i, rdy := range ready {
		buf := make([]byte, 4096)
		desc := tpacket.BlockDescOf(buf)
		desc.Hdr.BlkLen = 48
		if rdy {
			desc.Hdr.BlockStatus = tpacket.StatusUser
		}
		blocks[i] = rawBlock{buf: buf}
	}
	return &Ring{
		blocks: blocks,
		req:    tpacket.Req3{BlockSize: 4096, BlockNr: uint32(len(ready))},
	}
}

func allReady(n int) []bool {
	r := make([]bool, n)
	for i := range r {
		r[i] = true
	}
	return r
}

func TestCursorAdvancesOnHandOut(t *testing.T) {
	r := fakeRing(t, allReady(4))
	for i := 1; i <= 7; i++ {
		if blk := r.RecvBlock(); blk == nil {
			t.Fatalf("recv %d returned nil", i)
		}
		if want := uint32(i % 4); r.curIdx != want {
			t.Fatalf("cursor after %d receives = %d, want %d", i, r.curIdx, want)
		}
	}
}

func TestCursorWrap(t *testing.T) {
	r := fakeRing(t, allReady(5))
	for i := 0; i < 5; i++ {
		r.RecvBlock()
	}
	if r.curIdx != 0 {
		t.Fatalf("cursor after a full lap = %d, want 0", r.curIdx)
	}
}

func TestBlocksCount(t *testing.T) {
	r := fakeRing(t, allReady(7))
	if r.BlocksCount() != 7 {
		t.Fatalf("blocks count = %d", r.BlocksCount())
	}
}

func TestSaturationHalfRipe(t *testing.T) {
	// Blocks 0-4 ripe, 5-9 not, cursor at 0, 10% stride.
	ready := make([]bool, 10)
	for i := 0; i < 5; i++ {
		ready[i] = true
	}
	r := fakeRing(t, ready)

	got := r.BufferSaturationThreshold(10)
	if got < 50 || got > 60 {
		t.Fatalf("saturation = %d%%, want within [50, 60]", got)
	}
}

func TestSaturationMonotonic(t *testing.T) {
	prev := uint8(0)
	for ripe := 0; ripe <= 10; ripe++ {
		ready := make([]bool, 10)
		for i := 0; i < ripe; i++ {
			ready[i] = true
		}
		got := fakeRing(t, ready).BufferSaturationThreshold(10)
		if got < prev {
			t.Fatalf("saturation dropped from %d%% to %d%% at %d ripe blocks", prev, got, ripe)
		}
		prev = got
	}
}

func TestSaturationStepPrecondition(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic for step percent >= 50")
		}
	}()
	fakeRing(t, allReady(4)).BufferSaturationThreshold(50)
}

// testPair returns a connected socket pair; fds[0] backs the ring's
// descriptor, writes to fds[1] make it readable.
func testPair(t *testing.T) (int, int) {
	t.Helper()
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	if err != nil {
		t.Fatalf("socketpair: %v", err)
	}
	t.Cleanup(func() { unix.Close(fds[1]) })
	return fds[0], fds[1]
}

func TestRecvBlockWakesOnPoll(t *testing.T) {
	rfd, wfd := testPair(t)
	r := fakeRing(t, []bool{false, false})
	r.sock = socket.FromFd(rfd, "test0", 1)
	defer r.sock.Close()

	go func() {
		time.Sleep(20 * time.Millisecond)
		tpacket.BlockDescOf(r.blocks[0].buf).Hdr.BlockStatus = tpacket.StatusUser
		unix.Write(wfd, []byte{1})
	}()

	done := make(chan *Block, 1)
	go func() { done <- r.RecvBlock() }()

	select {
	case blk := <-done:
		if blk == nil {
			t.Fatalf("nil block")
		}
		if r.curIdx != 1 {
			t.Fatalf("cursor = %d, want 1", r.curIdx)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("RecvBlock did not wake")
	}
}

func fakeAsyncRing(t *testing.T, ready []bool) (*AsyncRing, int) {
	t.Helper()
	rfd, wfd := testPair(t)
	if err := unix.SetNonblock(rfd, true); err != nil {
		t.Fatalf("set nonblock: %v", err)
	}
	r := fakeRing(t, ready)
	r.sock = socket.FromFd(rfd, "test0", 1)
	f := os.NewFile(uintptr(rfd), "test0")
	rc, err := f.SyscallConn()
	if err != nil {
		t.Fatalf("syscall conn: %v", err)
	}
	a := &AsyncRing{ring: r, file: f, rc: rc}
	t.Cleanup(func() { f.Close() })
	return a, wfd
}

func TestAsyncRecvBlockReadiness(t *testing.T) {
	a, wfd := fakeAsyncRing(t, []bool{false, false})

	go func() {
		time.Sleep(20 * time.Millisecond)
		tpacket.BlockDescOf(a.ring.blocks[0].buf).Hdr.BlockStatus = tpacket.StatusUser
		unix.Write(wfd, []byte{1})
	}()

	blk, err := a.RecvBlock(context.Background())
	if err != nil {
		t.Fatalf("recv block: %v", err)
	}
	if blk.Desc() != tpacket.BlockDescOf(a.ring.blocks[0].buf) {
		t.Fatalf("returned block is not block 0")
	}
}

func TestAsyncRecvBlockContextCancel(t *testing.T) {
	a, _ := fakeAsyncRing(t, []bool{false})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	if _, err := a.RecvBlock(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline error, got %v", err)
	}

	// The ring must stay usable after a cancelled wait.
	tpacket.BlockDescOf(a.ring.blocks[0].buf).Hdr.BlockStatus = tpacket.StatusUser
	if blk, err := a.RecvBlock(context.Background()); err != nil || blk == nil {
		t.Fatalf("recv after cancel: %v", err)
	}
}

func TestStreamYieldsOnePayloadPerRead(t *testing.T) {
	a, _ := fakeAsyncRing(t, allReady(2))

	// Block 0 is ripe but empty and must be skipped, block 1 carries
	// two packets.
	buf1 := a.ring.blocks[1].buf
	desc := tpacket.BlockDescOf(buf1)
	desc.Hdr.NumPkts = 2
	desc.Hdr.OffsetToFirstPkt = 48
	desc.Hdr.BlkLen = 224
	h0 := tpacket.PacketHeaderAt(buf1, 48)
	h0.NextOffset = 96
	h0.Mac = 32
	copy(buf1[80:], []byte{0xaa, 0xbb, 0xcc})
	h1 := tpacket.PacketHeaderAt(buf1, 144)
	h1.Mac = 32
	copy(buf1[176:], []byte{0x11, 0x22})

	st := a.Stream()
	p := make([]byte, 64)

	n, err := st.Read(p)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !bytes.Equal(p[:3], []byte{0xaa, 0xbb, 0xcc}) {
		t.Fatalf("first payload = % x", p[:n])
	}
	if got := tpacket.BlockDescOf(a.ring.blocks[0].buf).Hdr.BlockStatus; got != tpacket.StatusKernel {
		t.Fatalf("empty block not consumed: status %d", got)
	}

	if _, err = st.Read(p); err != nil {
		t.Fatalf("read: %v", err)
	}
	if !bytes.Equal(p[:2], []byte{0x11, 0x22}) {
		t.Fatalf("second payload = % x", p[:2])
	}
	// Final record delivered, so the block went back to the kernel.
	if desc.Hdr.BlockStatus != tpacket.StatusKernel {
		t.Fatalf("block 1 not consumed after last packet")
	}
}
