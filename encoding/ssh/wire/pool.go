package wire

import (
	"encoding/binary"

	"github.com/pkg/errors"

	"github.com/sshmux/sshmux/internal/sync"
)

// DefaultMaxPacketSize is the size of the largest packet every implementation must accept.
//
// Defined in https://tools.ietf.org/html/rfc4253#section-6.1
const DefaultMaxPacketSize = 35000

// Pool recycles the buffers that back Packets.
// A nil *Pool is valid, and allocates a new buffer for every Packet.
//
// A Pool is safe for use by multiple goroutines simultaneously.
type Pool struct {
	slices *sync.SlicePool[[]byte, byte]
	size   int
}

// NewPool returns a Pool that keeps up to depth buffers,
// each of them preallocated to hold a packet of size bytes.
// Buffers that grew beyond twice the size are discarded instead of being kept.
func NewPool(depth, size int) *Pool {
	if size <= headerLength {
		size = DefaultMaxPacketSize
	}

	return &Pool{
		slices: sync.NewSlicePool[[]byte](depth, 2*size),
		size:   size,
	}
}

// Rent returns an empty, writable Packet.
// Its header bytes are zero until WriteHeaderAndPadding or Frame is called.
// The caller must Release it.
func (p *Pool) Rent() *Packet {
	var b []byte
	size := DefaultMaxPacketSize

	if p != nil {
		b = p.slices.Get()
		size = p.size
	}

	if b == nil {
		b = make([]byte, 0, size)
	}

	b = append(b, 0, 0, 0, 0, 0)

	return &Packet{
		buf:  Buffer{b: b},
		pool: p,
	}
}

// RentFrame returns a read-only Packet holding a copy of the given framed binary packet.
// It validates that packet_length matches the size of frame,
// and that the padding fits inside the packet.
func (p *Pool) RentFrame(frame []byte) (*Packet, error) {
	if len(frame) < headerLength+1 {
		return nil, ErrShortPacket
	}

	length := binary.BigEndian.Uint32(frame)
	switch {
	case uint64(length) > uint64(len(frame)-4):
		return nil, ErrShortPacket
	case uint64(length) < uint64(len(frame)-4):
		return nil, ErrLongPacket
	}

	if int(frame[paddingOffset])+1 >= int(length) {
		return nil, errors.Errorf("padding length %d exceeds packet length %d", frame[paddingOffset], length)
	}

	pkt := p.Rent()
	pkt.buf.b = append(pkt.buf.b[:0], frame...)

	return pkt, nil
}

// RentPayload returns a read-only Packet framed around a copy of the given payload,
// with the minimum padding.
func (p *Pool) RentPayload(payload []byte) (*Packet, error) {
	pkt := p.Rent()

	w, err := pkt.Writer()
	if err != nil {
		pkt.Release()
		return nil, err
	}

	w.AppendBytes(payload)

	if err := pkt.Frame(minBlockSize); err != nil {
		pkt.Release()
		return nil, err
	}

	return pkt, nil
}

// Hits reports how many rented packets reused a pooled buffer, out of all rented packets.
// Both are zero unless built with the "sshmux.sync.metrics" tag.
func (p *Pool) Hits() (hits, total uint64) {
	if p == nil {
		return 0, 0
	}

	return p.slices.Hits()
}

func (p *Pool) put(b []byte) {
	if p == nil {
		return
	}

	p.slices.Put(b)
}
