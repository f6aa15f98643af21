//go:build linux

package ring

import (
	"fmt"
	"os"

	"golang.org/x/net/bpf"
	"golang.org/x/sys/unix"

	"github.com/sofiworker/afring/socket"
	"github.com/sofiworker/afring/tpacket"
)

// Builder sequences the kernel-mandated ring setup. The step order in
// prepare is part of the kernel contract; do not rearrange it.
type Builder struct {
	sock     *socket.Socket
	settings Settings
}

// NewBuilder opens a socket on ifName and starts from default
// settings.
func NewBuilder(ifName string) (*Builder, error) {
	s := DefaultSettings()
	s.IfName = ifName
	return BuilderFromSettings(s)
}

// BuilderFromSettings opens a socket for the given settings.
func BuilderFromSettings(s Settings) (*Builder, error) {
	sock, err := socket.Open(s.IfName)
	if err != nil {
		return nil, err
	}
	return &Builder{sock: sock, settings: s}, nil
}

// Promiscuous toggles putting the interface into promiscuous mode
// during build (on by default).
func (b *Builder) Promiscuous(flag bool) *Builder {
	b.settings.Promiscuous = flag
	return b
}

// FanoutMode selects the fanout policy for the ring's group.
func (b *Builder) FanoutMode(mode int) *Builder {
	b.settings.FanoutMode = mode
	return b
}

// BlockSize sets tp_block_size in bytes.
func (b *Builder) BlockSize(size uint32) *Builder {
	b.settings.Req.BlockSize = size
	return b
}

// BlockCount sets tp_block_nr.
func (b *Builder) BlockCount(count uint32) *Builder {
	b.settings.Req.BlockNr = count
	return b
}

// FrameSize sets tp_frame_size in bytes.
func (b *Builder) FrameSize(size uint32) *Builder {
	b.settings.Req.FrameSize = size
	return b
}

// Timeout sets the block retire timeout in milliseconds.
func (b *Builder) Timeout(ms uint32) *Builder {
	b.settings.Req.RetireBlkTov = ms
	return b
}

// Filter sets a pre-assembled BPF program to attach after bind.
func (b *Builder) Filter(raw []bpf.RawInstruction) *Builder {
	b.settings.Filter = raw
	return b
}

// Build finishes setup and returns a blocking Ring.
func (b *Builder) Build() (*Ring, error) {
	return b.prepare(false)
}

// BuildAsync finishes setup with a non-blocking descriptor and returns
// a Ring driven by the runtime poller.
func (b *Builder) BuildAsync() (*AsyncRing, error) {
	r, err := b.prepare(true)
	if err != nil {
		return nil, err
	}
	ar, err := newAsyncRing(r)
	if err != nil {
		r.Close()
		return nil, err
	}
	return ar, nil
}

func (b *Builder) prepare(nonblocking bool) (*Ring, error) {
	r, err := b.prepareSocket(nonblocking)
	if err != nil {
		b.sock.Close()
		return nil, err
	}
	return r, nil
}

func (b *Builder) prepareSocket(nonblocking bool) (*Ring, error) {
	if nonblocking {
		if err := b.sock.SetNonblocking(); err != nil {
			return nil, err
		}
	}

	if b.settings.Promiscuous {
		if err := b.sock.SetFlag(unix.IFF_PROMISC); err != nil {
			return nil, err
		}
	}

	req := b.settings.Req
	req.FrameNr = req.FrameCount()

	if err := b.sock.SetPacketOptInt(tpacket.PacketVersion, tpacket.Version3); err != nil {
		return nil, err
	}
	if err := b.sock.SetRxRing(req); err != nil {
		return nil, err
	}

	mapping, err := unix.Mmap(b.sock.Fd(), 0, req.RingSize(),
		unix.PROT_READ|unix.PROT_WRITE,
		unix.MAP_SHARED|unix.MAP_LOCKED|unix.MAP_NORESERVE)
	if err != nil {
		return nil, fmt.Errorf("ring: mmap %d bytes: %w", req.RingSize(), err)
	}

	blocks := make([]rawBlock, req.BlockNr)
	bs := int(req.BlockSize)
	for i := range blocks {
		blocks[i] = rawBlock{buf: mapping[i*bs : (i+1)*bs : (i+1)*bs]}
	}

	if err := b.sock.Bind(); err != nil {
		unix.Munmap(mapping)
		return nil, err
	}

	fanout := tpacket.FanoutID(os.Getpid(), b.settings.FanoutMode)
	if err := b.sock.SetPacketOptInt(tpacket.PacketFanout, fanout); err != nil {
		unix.Munmap(mapping)
		return nil, err
	}

	if len(b.settings.Filter) > 0 {
		if err := b.sock.AttachFilter(b.settings.Filter); err != nil {
			unix.Munmap(mapping)
			return nil, err
		}
	}

	return &Ring{
		sock:    b.sock,
		blocks:  blocks,
		req:     req,
		mapping: mapping,
	}, nil
}
