package filexfer

import (
	"github.com/pkg/errors"

	"github.com/sshmux/sshmux/encoding/ssh/wire"
)

func newPacketFromType(typ PacketType) (Packet, error) {
	switch typ {
	case PacketTypeOpen:
		return new(OpenPacket), nil
	case PacketTypeClose:
		return new(ClosePacket), nil
	case PacketTypeRead:
		return new(ReadPacket), nil
	case PacketTypeOpendir:
		return new(OpenDirPacket), nil
	case PacketTypeReaddir:
		return new(ReadDirPacket), nil
	case PacketTypeStat:
		return new(StatPacket), nil
	case PacketTypeLstat:
		return new(LStatPacket), nil
	case PacketTypeStatus:
		return new(StatusPacket), nil
	case PacketTypeHandle:
		return new(HandlePacket), nil
	case PacketTypeData:
		return new(DataPacket), nil
	case PacketTypeName:
		return new(NamePacket), nil
	case PacketTypeAttrs:
		return new(AttrsPacket), nil
	default:
		return nil, errors.Errorf("unsupported packet type: %v", typ)
	}
}

// RequestPacket pairs a decoded Packet with its request id.
//
// It decodes both the requests a client sends and the responses a server sends,
// for the packet types this package implements.
type RequestPacket struct {
	RequestID uint32

	Request Packet
}

// UnmarshalFrom decodes a RequestPacket from the given Buffer into p.
// It is assumed that the uint32(length) has already been consumed,
// and that buf holds exactly one packet.
func (p *RequestPacket) UnmarshalFrom(buf *wire.Buffer) error {
	typ, err := buf.ConsumeUint8()
	if err != nil {
		return err
	}

	p.Request, err = newPacketFromType(PacketType(typ))
	if err != nil {
		return err
	}

	if p.RequestID, err = buf.ConsumeUint32(); err != nil {
		return err
	}

	if err := p.Request.UnmarshalPacketBody(buf); err != nil {
		return err
	}

	return buf.ConsumeEnd()
}

// UnmarshalBinary decodes a full packet out of the given data.
// It is assumed that the uint32(length) has already been consumed to receive the data.
//
// NOTE: To avoid extra allocations, UnmarshalBinary may alias the given byte slice.
func (p *RequestPacket) UnmarshalBinary(data []byte) error {
	return p.UnmarshalFrom(wire.NewBuffer(data))
}

// MarshalBinary returns the full length-prefixed encoding of p.
func (p *RequestPacket) MarshalBinary() ([]byte, error) {
	if p.Request == nil {
		return nil, errors.New("empty request packet")
	}

	return MarshalPacket(p.RequestID, p.Request), nil
}
