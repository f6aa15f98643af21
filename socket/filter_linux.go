//go:build linux

package socket

import (
	"fmt"

	"golang.org/x/net/bpf"
	"golang.org/x/sys/unix"
)

// AttachFilter installs a pre-assembled classic BPF program on the
// socket. Compiling the program is the caller's concern.
func (s *Socket) AttachFilter(raw []bpf.RawInstruction) error {
	if len(raw) == 0 {
		return nil
	}

	flt := make([]unix.SockFilter, len(raw))
	for i, ins := range raw {
		flt[i] = unix.SockFilter{
			Code: ins.Op,
			Jt:   ins.Jt,
			Jf:   ins.Jf,
			K:    ins.K,
		}
	}
	prog := unix.SockFprog{
		Len:    uint16(len(flt)),
		Filter: &flt[0],
	}
	if err := unix.SetsockoptSockFprog(s.fd, unix.SOL_SOCKET, unix.SO_ATTACH_FILTER, &prog); err != nil {
		return fmt.Errorf("socket: SO_ATTACH_FILTER: %w", err)
	}
	return nil
}
