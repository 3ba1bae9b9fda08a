package filexfer

import (
	"github.com/sshmux/sshmux/encoding/ssh/wire"
)

// ClosePacket defines the SSH_FXP_CLOSE packet.
type ClosePacket struct {
	Handle []byte
}

// Type returns the SSH_FXP_xy value associated with this packet type.
func (p *ClosePacket) Type() PacketType {
	return PacketTypeClose
}

// MarshalInto appends the packet body to the given Buffer.
func (p *ClosePacket) MarshalInto(buf *wire.Buffer) {
	buf.AppendByteSlice(p.Handle)
}

// UnmarshalPacketBody unmarshals the packet body from the given Buffer.
// It is assumed that the uint32(request-id) has already been consumed.
func (p *ClosePacket) UnmarshalPacketBody(buf *wire.Buffer) (err error) {
	p.Handle, err = buf.ConsumeByteSliceCopy()
	return err
}

// ReadPacket defines the SSH_FXP_READ packet.
type ReadPacket struct {
	Handle []byte
	Offset uint64
	Length uint32
}

// Type returns the SSH_FXP_xy value associated with this packet type.
func (p *ReadPacket) Type() PacketType {
	return PacketTypeRead
}

// MarshalInto appends the packet body to the given Buffer.
func (p *ReadPacket) MarshalInto(buf *wire.Buffer) {
	buf.AppendByteSlice(p.Handle)
	buf.AppendUint64(p.Offset)
	buf.AppendUint32(p.Length)
}

// UnmarshalPacketBody unmarshals the packet body from the given Buffer.
// It is assumed that the uint32(request-id) has already been consumed.
func (p *ReadPacket) UnmarshalPacketBody(buf *wire.Buffer) (err error) {
	if p.Handle, err = buf.ConsumeByteSliceCopy(); err != nil {
		return err
	}

	if p.Offset, err = buf.ConsumeUint64(); err != nil {
		return err
	}

	if p.Length, err = buf.ConsumeUint32(); err != nil {
		return err
	}

	return nil
}

// ReadDirPacket defines the SSH_FXP_READDIR packet.
type ReadDirPacket struct {
	Handle []byte
}

// Type returns the SSH_FXP_xy value associated with this packet type.
func (p *ReadDirPacket) Type() PacketType {
	return PacketTypeReaddir
}

// MarshalInto appends the packet body to the given Buffer.
func (p *ReadDirPacket) MarshalInto(buf *wire.Buffer) {
	buf.AppendByteSlice(p.Handle)
}

// UnmarshalPacketBody unmarshals the packet body from the given Buffer.
// It is assumed that the uint32(request-id) has already been consumed.
func (p *ReadDirPacket) UnmarshalPacketBody(buf *wire.Buffer) (err error) {
	p.Handle, err = buf.ConsumeByteSliceCopy()
	return err
}
