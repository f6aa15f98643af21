//go:build linux

// Package socket wraps one AF_PACKET/SOCK_RAW descriptor: open, bind,
// interface flag toggles, socket options and filter attachment. The
// ring layer above owns the descriptor's lifecycle.
package socket

import (
	"fmt"
	"net"
	"strings"

	"golang.org/x/sys/unix"

	"github.com/sofiworker/afring/tpacket"
)

// Socket owns a raw packet descriptor bound to one interface. It is
// not safe for concurrent use and is not cloneable; the descriptor is
// closed exactly once via Close.
type Socket struct {
	fd      int
	ifName  string
	ifIndex int
	closed  bool
}

// Open creates an AF_PACKET/SOCK_RAW socket receiving every protocol
// (ETH_P_ALL) and resolves the interface index for ifName.
func Open(ifName string) (*Socket, error) {
	if len(ifName) >= unix.IFNAMSIZ {
		return nil, ErrNameTooLong
	}
	if strings.IndexByte(ifName, 0) >= 0 {
		return nil, ErrNameNUL
	}

	fd, err := unix.Socket(unix.AF_PACKET, unix.SOCK_RAW, int(hostToNet16(unix.ETH_P_ALL)))
	if err != nil {
		return nil, fmt.Errorf("socket: open: %w", err)
	}

	iface, err := net.InterfaceByName(ifName)
	if err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("socket: interface %s: %w", ifName, err)
	}

	return &Socket{
		fd:      fd,
		ifName:  ifName,
		ifIndex: iface.Index,
	}, nil
}

// FromFd wraps an externally-opened descriptor. The caller keeps the
// descriptor non-aliased: the returned Socket owns it and closes it.
func FromFd(fd int, ifName string, ifIndex int) *Socket {
	return &Socket{fd: fd, ifName: ifName, ifIndex: ifIndex}
}

// Fd returns the raw descriptor for external pollers. Ownership stays
// with the Socket.
func (s *Socket) Fd() int { return s.fd }

// IfName returns the interface the socket was opened for.
func (s *Socket) IfName() string { return s.ifName }

// IfIndex returns the resolved interface index.
func (s *Socket) IfIndex() int { return s.ifIndex }

// SetFlag reads the interface flags, ORs in flag and writes them back.
func (s *Socket) SetFlag(flag uint16) error {
	flags, err := s.Flags()
	if err != nil {
		return err
	}
	return s.setFlags(flags | flag)
}

// SetNonblocking puts the descriptor into non-blocking mode.
func (s *Socket) SetNonblocking() error {
	fl, err := unix.FcntlInt(uintptr(s.fd), unix.F_GETFL, 0)
	if err != nil {
		return fmt.Errorf("socket: F_GETFL: %w", err)
	}
	if _, err := unix.FcntlInt(uintptr(s.fd), unix.F_SETFL, fl|unix.O_NONBLOCK); err != nil {
		return fmt.Errorf("socket: F_SETFL: %w", err)
	}
	return nil
}

// SetPacketOptInt sets an integer SOL_PACKET option.
func (s *Socket) SetPacketOptInt(opt, value int) error {
	if err := unix.SetsockoptInt(s.fd, unix.SOL_PACKET, opt, value); err != nil {
		return fmt.Errorf("socket: setsockopt %d: %w", opt, err)
	}
	return nil
}

// SetRxRing installs the PACKET_RX_RING request on the socket.
func (s *Socket) SetRxRing(req tpacket.Req3) error {
	ur := unix.TpacketReq3{
		Block_size:       req.BlockSize,
		Block_nr:         req.BlockNr,
		Frame_size:       req.FrameSize,
		Frame_nr:         req.FrameNr,
		Retire_blk_tov:   req.RetireBlkTov,
		Sizeof_priv:      req.SizeofPriv,
		Feature_req_word: req.FeatureReqWord,
	}
	if err := unix.SetsockoptTpacketReq3(s.fd, unix.SOL_PACKET, tpacket.PacketRxRing, &ur); err != nil {
		return fmt.Errorf("socket: PACKET_RX_RING: %w", err)
	}
	return nil
}

// RxStatistics reads and resets the kernel's PACKET_STATISTICS
// counters for the socket.
func (s *Socket) RxStatistics() (tpacket.StatsV3, error) {
	st, err := unix.GetsockoptTpacketStatsV3(s.fd, unix.SOL_PACKET, tpacket.PacketStatistics)
	if err != nil {
		return tpacket.StatsV3{}, fmt.Errorf("socket: PACKET_STATISTICS: %w", err)
	}
	return tpacket.StatsV3{
		Packets:    st.Packets,
		Drops:      st.Drops,
		FreezeQCnt: st.Freeze_q_cnt,
	}, nil
}

// Bind attaches the socket to its interface for all protocols.
func (s *Socket) Bind() error {
	sa := unix.SockaddrLinklayer{
		Protocol: hostToNet16(unix.ETH_P_ALL),
		Ifindex:  s.ifIndex,
	}
	if err := unix.Bind(s.fd, &sa); err != nil {
		return fmt.Errorf("socket: bind %s: %w", s.ifName, err)
	}
	return nil
}

// Close releases the descriptor. Safe to call more than once.
func (s *Socket) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	if err := unix.Close(s.fd); err != nil {
		return fmt.Errorf("socket: close: %w", err)
	}
	return nil
}

func hostToNet16(i uint16) uint16 {
	return (i<<8)&0xff00 | i>>8
}
