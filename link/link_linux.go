//go:build linux

package link

import (
	"fmt"
	"net"

	"github.com/vishvananda/netlink"
	"golang.org/x/sys/unix"
)

func byName(name string) (*Link, error) {
	nll, err := netlink.LinkByName(name)
	if err != nil {
		return nil, fmt.Errorf("link: lookup %s: %w", name, err)
	}
	return fromNetlink(nll), nil
}

func fromNetlink(nll netlink.Link) *Link {
	attrs := nll.Attrs()
	return &Link{
		Index:        attrs.Index,
		Name:         attrs.Name,
		MTU:          attrs.MTU,
		HardwareAddr: normalizeHardwareAddr(attrs.HardwareAddr),
		Flags:        attrs.Flags,
		OperState:    attrs.OperState.String(),
		Up: attrs.Flags&net.FlagUp != 0 &&
			attrs.OperState != netlink.OperDown &&
			attrs.OperState != netlink.OperNotPresent,
		Promiscuous: attrs.Promisc != 0 || attrs.RawFlags&unix.IFF_PROMISC != 0,
	}
}

func normalizeHardwareAddr(hw net.HardwareAddr) net.HardwareAddr {
	if len(hw) == 0 {
		return nil
	}
	for _, b := range hw {
		if b != 0 {
			cp := make(net.HardwareAddr, len(hw))
			copy(cp, hw)
			return cp
		}
	}
	return nil
}
