// Package pcap writes captured packets in the classic libpcap file
// format. Only the write path exists here; the capture runner streams
// ring payloads through it.
package pcap

import (
	"encoding/binary"
	"time"
)

const (
	// Magic numbers as they appear for a little-endian writer.
	MagicMicroseconds uint32 = 0xa1b2c3d4
	MagicNanoseconds  uint32 = 0xa1b23c4d

	versionMajor uint16 = 2
	versionMinor uint16 = 4

	// LinkTypeEthernet is LINKTYPE_ETHERNET, the default for AF_PACKET
	// captures.
	LinkTypeEthernet uint32 = 1

	fileHeaderSize   = 24
	packetHeaderSize = 16
)

// FileHeader is the 24-byte global header leading a capture file.
type FileHeader struct {
	MagicNumber  uint32
	VersionMajor uint16
	VersionMinor uint16
	ThisZone     int32
	SigFigs      uint32
	SnapLen      uint32
	Network      uint32
}

// TimestampResolution derives the sub-second unit from the magic.
func (h FileHeader) TimestampResolution() time.Duration {
	if h.MagicNumber == MagicNanoseconds {
		return time.Nanosecond
	}
	return time.Microsecond
}

func (h *FileHeader) marshal(buf []byte) {
	binary.LittleEndian.PutUint32(buf[0:4], h.MagicNumber)
	binary.LittleEndian.PutUint16(buf[4:6], h.VersionMajor)
	binary.LittleEndian.PutUint16(buf[6:8], h.VersionMinor)
	binary.LittleEndian.PutUint32(buf[8:12], uint32(h.ThisZone))
	binary.LittleEndian.PutUint32(buf[12:16], h.SigFigs)
	binary.LittleEndian.PutUint32(buf[16:20], h.SnapLen)
	binary.LittleEndian.PutUint32(buf[20:24], h.Network)
}

// packetHeader is the 16-byte per-record header.
type packetHeader struct {
	tsSec   uint32
	tsFrac  uint32
	inclLen uint32
	origLen uint32
}

func (h *packetHeader) setTimestamp(ts time.Time, resolution time.Duration) {
	h.tsSec = uint32(ts.Unix())
	if resolution == time.Nanosecond {
		h.tsFrac = uint32(ts.Nanosecond())
	} else {
		h.tsFrac = uint32(ts.Nanosecond() / 1000)
	}
}

func (h *packetHeader) marshal(buf []byte) {
	binary.LittleEndian.PutUint32(buf[0:4], h.tsSec)
	binary.LittleEndian.PutUint32(buf[4:8], h.tsFrac)
	binary.LittleEndian.PutUint32(buf[8:12], h.inclLen)
	binary.LittleEndian.PutUint32(buf[12:16], h.origLen)
}
