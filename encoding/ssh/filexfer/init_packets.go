package filexfer

import (
	"github.com/pkg/errors"

	"github.com/sshmux/sshmux/encoding/ssh/wire"
)

// InitPacket defines the SSH_FXP_INIT packet.
type InitPacket struct {
	Version    uint32
	Extensions []*ExtensionPair
}

// AppendTo appends the full length-prefixed encoding of p to buf.
func (p *InitPacket) AppendTo(buf *wire.Buffer) {
	appendFramed(buf, PacketTypeInit, func(b *wire.Buffer) {
		b.AppendUint32(p.Version)

		for _, ext := range p.Extensions {
			ext.MarshalInto(b)
		}
	})
}

// UnmarshalPacketBody unmarshals the packet body from the given Buffer.
// It is assumed that the uint8(type) has already been consumed.
func (p *InitPacket) UnmarshalPacketBody(buf *wire.Buffer) (err error) {
	if p.Version, err = buf.ConsumeUint32(); err != nil {
		return err
	}

	p.Extensions, err = unmarshalExtensions(buf)
	return err
}

// VersionPacket defines the SSH_FXP_VERSION packet.
type VersionPacket struct {
	Version    uint32
	Extensions []*ExtensionPair
}

// AppendTo appends the full length-prefixed encoding of p to buf.
func (p *VersionPacket) AppendTo(buf *wire.Buffer) {
	appendFramed(buf, PacketTypeVersion, func(b *wire.Buffer) {
		b.AppendUint32(p.Version)

		for _, ext := range p.Extensions {
			ext.MarshalInto(b)
		}
	})
}

// UnmarshalPacketBody unmarshals the packet body from the given Buffer.
// It is assumed that the uint8(type) has already been consumed.
//
// Extension pairs are only defined for versions 3 and 6.
// For those, the pairs must consume the rest of buf exactly,
// and any other version must carry no extension data at all.
// Anything else returns ErrInvalidLength.
func (p *VersionPacket) UnmarshalPacketBody(buf *wire.Buffer) (err error) {
	if p.Version, err = buf.ConsumeUint32(); err != nil {
		return err
	}

	p.Extensions = nil

	if p.Version != 3 && p.Version != 6 {
		if buf.Len() != 0 {
			return ErrInvalidLength
		}
		return nil
	}

	p.Extensions, err = unmarshalExtensions(buf)
	return err
}

func unmarshalExtensions(buf *wire.Buffer) ([]*ExtensionPair, error) {
	var exts []*ExtensionPair

	for buf.Len() > 0 {
		var ext ExtensionPair
		if err := ext.UnmarshalFrom(buf); err != nil {
			if errors.Is(err, wire.ErrShortPacket) {
				return nil, ErrInvalidLength
			}
			return nil, err
		}

		exts = append(exts, &ext)
	}

	return exts, nil
}
