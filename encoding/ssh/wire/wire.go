// Package wire implements the binary packet layer of the SSH protocol.
//
// It provides a Buffer with typed readers and writers for the data types of
// https://tools.ietf.org/html/rfc4251#section-5, and a pooled, exclusively owned Packet
// holding exactly one binary packet as framed by https://tools.ietf.org/html/rfc4253#section-6.
package wire

import (
	"github.com/pkg/errors"
)

// Various encoding errors.
var (
	ErrShortPacket = errors.New("packet too short")
	ErrLongPacket  = errors.New("packet too long")
	ErrInvalidUTF8 = errors.New("string is not valid utf-8")
	ErrExtraData   = errors.New("unexpected extra data at end of packet")
)

// Packet ownership errors.
var (
	ErrReadOnly = errors.New("packet is read-only: header is already written")
	ErrReleased = errors.New("packet has been released or moved")
)
