//go:build linux

package socket

import (
	"encoding/binary"
	"fmt"
	"unsafe"

	"golang.org/x/sys/unix"
)

// ifreq's data field is a 24-byte union in the kernel; for the flag
// ioctls only the leading short matters. The flag word has always been
// round-tripped here by reading the first two union bytes as a
// big-endian short and swapping back to host order, and writing in the
// same layout.
const ifReqUnionSize = 24

type ifReq struct {
	Name [unix.IFNAMSIZ]byte
	Data [ifReqUnionSize]byte
}

func newIfReq(name string) (ifReq, error) {
	var req ifReq
	if len(name) >= len(req.Name) {
		return req, ErrNameTooLong
	}
	copy(req.Name[:], name)
	return req, nil
}

func (r *ifReq) flags() uint16 {
	return hostToNet16(binary.BigEndian.Uint16(r.Data[:2]))
}

func (r *ifReq) setFlags(flags uint16) {
	binary.BigEndian.PutUint16(r.Data[:2], hostToNet16(flags))
}

func (s *Socket) ioctl(ident uintptr, req *ifReq) error {
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(s.fd), ident, uintptr(unsafe.Pointer(req)))
	if errno != 0 {
		return fmt.Errorf("socket: ioctl %#x on %s: %w", ident, s.ifName, errno)
	}
	return nil
}

// Flags reads the interface flags via SIOCGIFFLAGS.
func (s *Socket) Flags() (uint16, error) {
	req, err := newIfReq(s.ifName)
	if err != nil {
		return 0, err
	}
	if err := s.ioctl(unix.SIOCGIFFLAGS, &req); err != nil {
		return 0, err
	}
	return req.flags(), nil
}

func (s *Socket) setFlags(flags uint16) error {
	req, err := newIfReq(s.ifName)
	if err != nil {
		return err
	}
	req.setFlags(flags)
	return s.ioctl(unix.SIOCSIFFLAGS, &req)
}
