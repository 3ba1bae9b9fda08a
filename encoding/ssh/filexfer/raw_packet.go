package filexfer

import (
	"encoding/binary"

	"github.com/sshmux/sshmux/encoding/ssh/wire"
)

// RawPacket implements the general packet format from draft-ietf-secsh-filexfer-02
//
// Defined in https://tools.ietf.org/html/draft-ietf-secsh-filexfer-02#section-3
type RawPacket struct {
	Type      PacketType
	RequestID uint32

	Data wire.Buffer
}

// UnmarshalFrom decodes a RawPacket from the given Buffer into p.
// It is assumed that the uint32(length) has already been consumed.
//
// The Data field will take ownership of the underlying byte slice of buf.
// The caller should not use buf after this call.
func (p *RawPacket) UnmarshalFrom(buf *wire.Buffer) error {
	typ, err := buf.ConsumeUint8()
	if err != nil {
		return err
	}

	p.Type = PacketType(typ)

	if p.RequestID, err = buf.ConsumeUint32(); err != nil {
		return err
	}

	p.Data = *buf
	return nil
}

// UnmarshalBinary decodes a full raw packet out of the given data.
// It is assumed that the uint32(length) has already been consumed to receive the data.
//
// NOTE: To avoid extra allocations, UnmarshalBinary aliases the given byte slice.
func (p *RawPacket) UnmarshalBinary(data []byte) error {
	return p.UnmarshalFrom(wire.NewBuffer(data))
}

// SplitPacket extracts the first complete packet from a stream of length-prefixed SFTP packets.
// It returns the packet without its uint32(length), and the bytes following it.
//
// If data does not yet hold a complete packet, SplitPacket returns a nil packet and data unchanged,
// so that more of the stream can be appended before trying again.
// A declared length of zero returns ErrShortPacket,
// and a declared length greater than maxLength returns ErrLongPacket.
// Neither can be recovered from, since the framing of the stream is lost.
func SplitPacket(data []byte, maxLength uint32) (packet, rest []byte, err error) {
	if len(data) < 4 {
		return nil, data, nil
	}

	length := binary.BigEndian.Uint32(data)
	switch {
	case length < 1:
		return nil, data, wire.ErrShortPacket
	case length > maxLength:
		return nil, data, wire.ErrLongPacket
	}

	if uint64(len(data)-4) < uint64(length) {
		return nil, data, nil
	}

	end := 4 + int(length)
	return data[4:end:end], data[end:], nil
}
