package filexfer

import (
	"github.com/sshmux/sshmux/encoding/ssh/wire"
)

// StatPacket defines the SSH_FXP_STAT packet.
type StatPacket struct {
	Path string
}

// Type returns the SSH_FXP_xy value associated with this packet type.
func (p *StatPacket) Type() PacketType {
	return PacketTypeStat
}

// MarshalInto appends the packet body to the given Buffer.
func (p *StatPacket) MarshalInto(buf *wire.Buffer) {
	buf.AppendString(p.Path)
}

// UnmarshalPacketBody unmarshals the packet body from the given Buffer.
// It is assumed that the uint32(request-id) has already been consumed.
func (p *StatPacket) UnmarshalPacketBody(buf *wire.Buffer) (err error) {
	p.Path, err = buf.ConsumeString()
	return err
}

// LStatPacket defines the SSH_FXP_LSTAT packet.
type LStatPacket struct {
	Path string
}

// Type returns the SSH_FXP_xy value associated with this packet type.
func (p *LStatPacket) Type() PacketType {
	return PacketTypeLstat
}

// MarshalInto appends the packet body to the given Buffer.
func (p *LStatPacket) MarshalInto(buf *wire.Buffer) {
	buf.AppendString(p.Path)
}

// UnmarshalPacketBody unmarshals the packet body from the given Buffer.
// It is assumed that the uint32(request-id) has already been consumed.
func (p *LStatPacket) UnmarshalPacketBody(buf *wire.Buffer) (err error) {
	p.Path, err = buf.ConsumeString()
	return err
}
