package wire

import (
	"crypto/rand"
	"encoding/binary"

	"github.com/pkg/errors"

	"github.com/sshmux/sshmux/internal/pragma"
)

const (
	headerLength  = 5 // uint32(packet_length) + byte(padding_length)
	paddingOffset = 4
	msgIDOffset   = headerLength

	// MinPadding is the least amount of random padding a binary packet may carry.
	MinPadding = 4

	minBlockSize = 8
)

// Packet holds exactly one SSH binary packet:
//
//	uint32    packet_length
//	byte      padding_length
//	byte[n1]  payload; n1 = packet_length - padding_length - 1
//	byte[n2]  random padding; n2 = padding_length
//
// A Packet is exclusively owned.
// A function either borrows it read-only, takes it over through Move, or receives a duplicate through Clone.
// Whoever owns a Packet must Release it exactly once.
//
// A Packet must not be copied; pass it by pointer.
type Packet struct {
	noCopy pragma.DoNotCopy

	buf  Buffer
	pool *Pool
}

func (p *Packet) released() bool {
	return p == nil || p.buf.b == nil
}

// Release returns the underlying buffer to the pool the Packet was rented from.
// The Packet holds no data afterwards.
// Calling Release on a released or moved Packet is a no-op.
func (p *Packet) Release() {
	if p.released() {
		return
	}

	b := p.buf.b
	p.buf = Buffer{}

	p.pool.put(b)
}

// Move transfers ownership of the underlying buffer to a new Packet.
// The receiver is left empty, and releasing it is a no-op.
func (p *Packet) Move() *Packet {
	if p.released() {
		return &Packet{}
	}

	q := &Packet{
		buf:  p.buf,
		pool: p.pool,
	}

	p.buf = Buffer{}

	return q
}

// Clone returns an independent Packet holding a copy of the same bytes.
// The caller owns the clone, and must Release it.
func (p *Packet) Clone() *Packet {
	if p.released() {
		return &Packet{}
	}

	q := p.pool.Rent()
	q.buf.b = append(q.buf.b[:0], p.buf.b...)

	return q
}

// Len returns the number of bytes in the Packet, header and padding included.
func (p *Packet) Len() int {
	if p.released() {
		return 0
	}

	return len(p.buf.b)
}

// Bytes returns the whole framed Packet.
// The slice aliases the Packet, and is only valid until the Packet is released.
func (p *Packet) Bytes() []byte {
	if p.released() {
		return nil
	}

	return p.buf.b
}

// Writer returns a Buffer that appends to the payload of the Packet.
//
// It returns ErrReadOnly if the header has already been written,
// as is the case for every inbound Packet.
func (p *Packet) Writer() (*Buffer, error) {
	if p.released() {
		return nil, ErrReleased
	}

	for _, c := range p.buf.b[:headerLength] {
		if c != 0 {
			return nil, ErrReadOnly
		}
	}

	return &p.buf, nil
}

// WriteHeaderAndPadding appends paddingLength bytes of random padding,
// and then writes the packet_length and padding_length fields.
// After this call, the Packet is read-only.
func (p *Packet) WriteHeaderAndPadding(paddingLength uint8) error {
	w, err := p.Writer()
	if err != nil {
		return err
	}

	start := len(w.b)
	w.b = append(w.b, make([]byte, paddingLength)...)
	if _, err := rand.Read(w.b[start:]); err != nil {
		return errors.Wrap(err, "padding")
	}

	binary.BigEndian.PutUint32(w.b, uint32(len(w.b)-4))
	w.b[paddingOffset] = paddingLength

	return nil
}

// Frame writes the header with the smallest padding for the given cipher block size,
// such that the whole packet is a multiple of the block size,
// and carries at least MinPadding bytes of padding.
// Block sizes smaller than 8 are treated as 8.
func (p *Packet) Frame(blockSize int) error {
	if p.released() {
		return ErrReleased
	}

	if blockSize < minBlockSize {
		blockSize = minBlockSize
	}

	if blockSize > 255-MinPadding {
		return errors.Errorf("block size %d too large", blockSize)
	}

	padding := blockSize - len(p.buf.b)%blockSize
	if padding < MinPadding {
		padding += blockSize
	}

	return p.WriteHeaderAndPadding(uint8(padding))
}

// PayloadLength returns the length of the payload, message number included.
// It is computed from the framed bytes without copying.
func (p *Packet) PayloadLength() int {
	if p.released() || len(p.buf.b) < headerLength {
		return 0
	}

	n := len(p.buf.b) - headerLength - int(p.buf.b[paddingOffset])
	if n < 0 {
		return 0
	}

	return n
}

// Payload returns the payload region of the Packet, excluding header and padding.
// The slice aliases the Packet.
func (p *Packet) Payload() []byte {
	n := p.PayloadLength()
	if n == 0 {
		return nil
	}

	return p.buf.b[msgIDOffset : msgIDOffset+n : msgIDOffset+n]
}

// MessageID returns the message number in the first byte of the payload.
// It returns 0, which no message uses, if the Packet has no payload.
func (p *Packet) MessageID() MessageID {
	if p.PayloadLength() < 1 {
		return 0
	}

	return MessageID(p.buf.b[msgIDOffset])
}

// Reader returns a cursor over the payload region only.
// The first value it yields is the message number.
func (p *Packet) Reader() *Buffer {
	return NewBuffer(p.Payload())
}
