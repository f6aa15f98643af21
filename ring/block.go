package ring

import (
	"fmt"
	"math"

	"github.com/sofiworker/afring/tpacket"
)

// rawBlock is one block-sized slice of the ring mapping. It lives for
// the Ring's lifetime; Block views into it are short-lived borrows.
type rawBlock struct {
	buf []byte
}

func (b *rawBlock) desc() *tpacket.BlockDesc {
	return tpacket.BlockDescOf(b.buf)
}

func (b *rawBlock) ready() bool {
	return b.desc().Hdr.Ready()
}

func (b *rawBlock) view() *Block {
	desc := b.desc()
	return &Block{desc: desc, data: b.buf[:desc.Hdr.BlkLen]}
}

// Block is a borrowed view of one ring block while userspace owns it.
// The packet slices it hands out alias kernel-shared memory and must
// not be used after the block is consumed.
type Block struct {
	desc *tpacket.BlockDesc
	data []byte
}

// BlockOf views a block laid out in buf, which must start with a
// tpacket_block_desc whose BlkLen fits in buf. Intended for fabricated
// block memory in tests and for external ring integrations; blocks of
// a live Ring come from RecvBlock.
func BlockOf(buf []byte) *Block {
	desc := tpacket.BlockDescOf(buf)
	if int(desc.Hdr.BlkLen) > len(buf) {
		panic(fmt.Sprintf("ring: blk_len %d overruns buffer of %d bytes", desc.Hdr.BlkLen, len(buf)))
	}
	return &Block{desc: desc, data: buf[:desc.Hdr.BlkLen]}
}

// Desc exposes the kernel's block descriptor.
func (b *Block) Desc() *tpacket.BlockDesc { return b.desc }

// Consume hands the block back to the kernel. Exactly one Consume must
// happen per received block or the kernel eventually runs out of
// blocks and drops packets; ConsumingIter takes care of it.
func (b *Block) Consume() {
	b.desc.Hdr.Release()
}

// PacketIter iterates the block's records without consuming it.
func (b *Block) PacketIter() *PacketIter {
	return &PacketIter{
		data:       b.data,
		nextOffset: b.desc.Hdr.OffsetToFirstPkt,
		count:      b.desc.Hdr.NumPkts,
	}
}

// ConsumingIter converts the block into an iterator that returns the
// block to the kernel on Close, however far iteration got.
func (b *Block) ConsumingIter() *ConsumingIter {
	return &ConsumingIter{PacketIter: *b.PacketIter(), block: b}
}

// RawPackets collects every record of the block. The payload slices
// stay valid until the block is consumed.
func (b *Block) RawPackets() []RawPacket {
	pkts := make([]RawPacket, 0, b.desc.Hdr.NumPkts)
	it := b.PacketIter()
	for it.Next() {
		pkts = append(pkts, it.Packet())
	}
	return pkts
}

// RawPacket is one captured record: its fixed-size header and the
// payload bytes starting at the MAC header. Both alias the containing
// block.
type RawPacket struct {
	hdr     *tpacket.PacketHeader
	payload []byte
}

// Header returns the record header (timestamps, lengths, offsets, RX
// hash, VLAN tags).
func (p RawPacket) Header() *tpacket.PacketHeader { return p.hdr }

// Payload returns the packet bytes from the MAC header to the next
// record (or the block end for the last record).
func (p RawPacket) Payload() []byte { return p.payload }

// PacketIter walks the record chain of one block. Records link through
// tp_next_offset; the last record's reach is bounded by blk_len
// instead.
type PacketIter struct {
	data       []byte
	nextOffset uint32
	curIdx     uint32
	count      uint32
	cur        RawPacket
}

// Next advances to the following record. It returns false once all
// NumPkts records were yielded.
func (it *PacketIter) Next() bool {
	if it.curIdx >= it.count {
		return false
	}

	off := it.nextOffset
	if off == 0 || off == uint32(len(it.data)) {
		panic(fmt.Sprintf("ring: record offset %d out of range", off))
	}
	hdr := tpacket.PacketHeaderAt(it.data, off)

	var next uint32
	if it.curIdx < it.count-1 {
		next = off + hdr.NextOffset
	} else {
		next = uint32(len(it.data))
	}

	payloadOff := off + uint32(hdr.Mac)
	if payloadOff > math.MaxInt32 || payloadOff > next || next > uint32(len(it.data)) {
		panic(fmt.Sprintf("ring: record at %d has payload [%d:%d] outside block of %d bytes",
			off, payloadOff, next, len(it.data)))
	}

	it.cur = RawPacket{hdr: hdr, payload: it.data[payloadOff:next]}
	it.nextOffset = next
	it.curIdx++
	return true
}

// Packet returns the record produced by the last successful Next.
func (it *PacketIter) Packet() RawPacket { return it.cur }

// IsLast reports whether iteration has yielded every record.
func (it *PacketIter) IsLast() bool { return it.curIdx == it.count }

// ConsumingIter is a PacketIter that owns its Block and returns it to
// the kernel on Close.
type ConsumingIter struct {
	PacketIter
	block *Block
	done  bool
}

// Close consumes the block. Idempotent; safe to defer right after
// ConsumingIter.
func (it *ConsumingIter) Close() {
	if it.done {
		return
	}
	it.done = true
	it.block.Consume()
}
