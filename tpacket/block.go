package tpacket

import (
	"fmt"
	"unsafe"
)

// BlockDesc mirrors tpacket_block_desc, the header the kernel writes
// at offset 0 of every ring block.
type BlockDesc struct {
	Version      uint32
	OffsetToPriv uint32
	Hdr          BDHeader
}

// BDHeader mirrors tpacket_hdr_v1. BlockStatus is the ownership word:
// userspace may read the rest only after the kernel has set StatusUser
// in it, and hands the block back by storing StatusKernel.
type BDHeader struct {
	BlockStatus      uint32
	NumPkts          uint32
	OffsetToFirstPkt uint32
	BlkLen           uint32
	SeqNum           uint64
	TsFirstPkt       BDTS
	TsLastPkt        BDTS
}

// BDTS mirrors tpacket_bd_ts.
type BDTS struct {
	Sec  uint32
	Nsec uint32
}

// Ready reports whether the block has been released to userspace.
func (h *BDHeader) Ready() bool {
	return h.BlockStatus&StatusUser != 0
}

// Release hands the block back to the kernel.
func (h *BDHeader) Release() {
	h.BlockStatus = StatusKernel
}

// PacketHeader mirrors tpacket3_hdr, the fixed-size record header in
// front of every captured packet within a block.
type PacketHeader struct {
	NextOffset uint32 // offset to the next record, relative to this one
	Sec        uint32
	Nsec       uint32
	Snaplen    uint32 // captured length
	Len        uint32 // wire length
	Status     uint32
	Mac        uint16 // offset from the record start to the MAC header
	Net        uint16 // offset from the record start to the network header
	Hv1        HdrVariant1
	_          [8]byte
}

// HdrVariant1 mirrors tpacket_hdr_variant1: the RX hash (when
// FeatureFillRXHash is requested) and VLAN tags.
type HdrVariant1 struct {
	RXHash   uint32
	VlanTCI  uint32
	VlanTPID uint16
	_        uint16
}

const (
	blockDescSize    = int(unsafe.Sizeof(BlockDesc{}))
	packetHeaderSize = int(unsafe.Sizeof(PacketHeader{}))
)

// BlockDescOf interprets the head of a ring block. The returned
// descriptor aliases block and stays valid only while the backing
// memory does.
func BlockDescOf(block []byte) *BlockDesc {
	if len(block) < blockDescSize {
		panic(fmt.Sprintf("tpacket: block of %d bytes shorter than descriptor", len(block)))
	}
	return (*BlockDesc)(unsafe.Pointer(&block[0]))
}

// PacketHeaderAt interprets the record header at offset within block.
func PacketHeaderAt(block []byte, offset uint32) *PacketHeader {
	if int(offset)+packetHeaderSize > len(block) {
		panic(fmt.Sprintf("tpacket: record header at %d overruns block of %d bytes", offset, len(block)))
	}
	return (*PacketHeader)(unsafe.Pointer(&block[offset]))
}
