package filexfer

import (
	"github.com/sshmux/sshmux/encoding/ssh/wire"
)

// StatusPacket defines the SSH_FXP_STATUS packet.
//
// Specified in https://tools.ietf.org/html/draft-ietf-secsh-filexfer-02#section-7
type StatusPacket struct {
	StatusCode   Status
	ErrorMessage string
	LanguageTag  string
}

// Type returns the SSH_FXP_xy value associated with this packet type.
func (p *StatusPacket) Type() PacketType {
	return PacketTypeStatus
}

// MarshalInto appends the packet body to the given Buffer.
func (p *StatusPacket) MarshalInto(buf *wire.Buffer) {
	buf.AppendUint32(uint32(p.StatusCode))
	buf.AppendString(p.ErrorMessage)
	buf.AppendString(p.LanguageTag)
}

// UnmarshalPacketBody unmarshals the packet body from the given Buffer.
// It is assumed that the uint32(request-id) has already been consumed.
//
// Servers speaking version 2 or earlier omit the message and language tag,
// so they are optional here.
func (p *StatusPacket) UnmarshalPacketBody(buf *wire.Buffer) (err error) {
	statusCode, err := buf.ConsumeUint32()
	if err != nil {
		return err
	}

	*p = StatusPacket{
		StatusCode: Status(statusCode),
	}

	if buf.Len() == 0 {
		return nil
	}

	if p.ErrorMessage, err = buf.ConsumeString(); err != nil {
		return err
	}

	if p.LanguageTag, err = buf.ConsumeString(); err != nil {
		return err
	}

	return nil
}

// HandlePacket defines the SSH_FXP_HANDLE packet.
type HandlePacket struct {
	Handle []byte
}

// Type returns the SSH_FXP_xy value associated with this packet type.
func (p *HandlePacket) Type() PacketType {
	return PacketTypeHandle
}

// MarshalInto appends the packet body to the given Buffer.
func (p *HandlePacket) MarshalInto(buf *wire.Buffer) {
	buf.AppendByteSlice(p.Handle)
}

// UnmarshalPacketBody unmarshals the packet body from the given Buffer.
// It is assumed that the uint32(request-id) has already been consumed.
//
// The handle is copied, so it stays valid after buf is reused.
func (p *HandlePacket) UnmarshalPacketBody(buf *wire.Buffer) (err error) {
	p.Handle, err = buf.ConsumeByteSliceCopy()
	return err
}

// DataPacket defines the SSH_FXP_DATA packet.
type DataPacket struct {
	Data []byte
}

// Type returns the SSH_FXP_xy value associated with this packet type.
func (p *DataPacket) Type() PacketType {
	return PacketTypeData
}

// MarshalInto appends the packet body to the given Buffer.
func (p *DataPacket) MarshalInto(buf *wire.Buffer) {
	buf.AppendByteSlice(p.Data)
}

// UnmarshalPacketBody unmarshals the packet body from the given Buffer.
// It is assumed that the uint32(request-id) has already been consumed.
//
// NOTE: To avoid extra allocations, the Data field aliases buf.
func (p *DataPacket) UnmarshalPacketBody(buf *wire.Buffer) (err error) {
	p.Data, err = buf.ConsumeByteSlice()
	return err
}

// NamePacket defines the SSH_FXP_NAME packet.
type NamePacket struct {
	Entries []*NameEntry
}

// Type returns the SSH_FXP_xy value associated with this packet type.
func (p *NamePacket) Type() PacketType {
	return PacketTypeName
}

// MarshalInto appends the packet body to the given Buffer.
func (p *NamePacket) MarshalInto(buf *wire.Buffer) {
	buf.AppendUint32(uint32(len(p.Entries)))

	for _, e := range p.Entries {
		e.MarshalInto(buf)
	}
}

// UnmarshalPacketBody unmarshals the packet body from the given Buffer.
// It is assumed that the uint32(request-id) has already been consumed.
func (p *NamePacket) UnmarshalPacketBody(buf *wire.Buffer) (err error) {
	count, err := buf.ConsumeUint32()
	if err != nil {
		return err
	}

	// Each entry takes at least twelve bytes, which bounds a hostile count.
	if uint64(count)*12 > uint64(buf.Len()) {
		return wire.ErrShortPacket
	}

	p.Entries = make([]*NameEntry, 0, count)

	for i := uint32(0); i < count; i++ {
		var e NameEntry
		if err := e.UnmarshalFrom(buf); err != nil {
			return err
		}

		p.Entries = append(p.Entries, &e)
	}

	return nil
}

// AttrsPacket defines the SSH_FXP_ATTRS packet.
type AttrsPacket struct {
	Attrs Attributes
}

// Type returns the SSH_FXP_xy value associated with this packet type.
func (p *AttrsPacket) Type() PacketType {
	return PacketTypeAttrs
}

// MarshalInto appends the packet body to the given Buffer.
func (p *AttrsPacket) MarshalInto(buf *wire.Buffer) {
	p.Attrs.MarshalInto(buf)
}

// UnmarshalPacketBody unmarshals the packet body from the given Buffer.
// It is assumed that the uint32(request-id) has already been consumed.
func (p *AttrsPacket) UnmarshalPacketBody(buf *wire.Buffer) (err error) {
	return p.Attrs.UnmarshalFrom(buf)
}
