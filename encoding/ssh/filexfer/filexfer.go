// Package filexfer implements the wire encoding for the SSH File Transfer Protocol,
// as run inside the data stream of one SSH channel.
//
// Defined in https://tools.ietf.org/html/draft-ietf-secsh-filexfer-02
package filexfer

import (
	"github.com/sshmux/sshmux/encoding/ssh/wire"
)

// DefaultMaxPacketLength is the length of the largest packet every implementation must accept,
// excluding the uint32(length) itself.
//
// Defined in https://tools.ietf.org/html/draft-ietf-secsh-filexfer-02#section-3
const DefaultMaxPacketLength = 34000

// DefaultMaxDataLength is the largest amount of data a read request should ask for.
const DefaultMaxDataLength = 32768

// Packet defines the behavior of an SFTP packet carrying a request id.
type Packet interface {
	// Type returns the SSH_FXP_xy value associated with this packet type.
	Type() PacketType

	// MarshalInto appends the packet body, everything after the uint32(request-id), to the given Buffer.
	MarshalInto(buf *wire.Buffer)

	// UnmarshalPacketBody unmarshals the packet body from the given Buffer.
	// It is assumed that the uint32(request-id) has already been consumed.
	UnmarshalPacketBody(buf *wire.Buffer) error
}

// appendFramed appends uint32(length) + byte(type), then calls body,
// and finally backfills the length.
func appendFramed(buf *wire.Buffer, typ PacketType, body func(*wire.Buffer)) {
	start := buf.Size()

	buf.AppendUint32(0)
	buf.AppendUint8(uint8(typ))

	body(buf)

	// Cannot fail: the four bytes at start were just appended.
	_ = buf.PutUint32At(start, uint32(buf.Size()-start-4))
}

// AppendPacket appends the full length-prefixed encoding of p with the given request id to buf.
func AppendPacket(buf *wire.Buffer, reqid uint32, p Packet) {
	appendFramed(buf, p.Type(), func(b *wire.Buffer) {
		b.AppendUint32(reqid)
		p.MarshalInto(b)
	})
}

// MarshalPacket returns the full length-prefixed encoding of p with the given request id.
func MarshalPacket(reqid uint32, p Packet) []byte {
	var buf wire.Buffer
	AppendPacket(&buf, reqid, p)
	return buf.Bytes()
}
