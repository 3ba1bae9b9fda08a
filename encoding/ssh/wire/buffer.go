package wire

import (
	"encoding/binary"
	"unicode/utf8"
)

// Buffer wraps up the various encoding details of the SSH format.
//
// Data types are encoded as per section 5 from https://tools.ietf.org/html/rfc4251#section-5
type Buffer struct {
	b   []byte
	off int
}

// NewBuffer creates and initializes a new Buffer using buf as its initial contents.
// The new Buffer takes ownership of buf, and the caller should not use buf after this call.
//
// In most cases, new(Buffer) (or just declaring a Buffer variable) is sufficient to initialize a Buffer.
func NewBuffer(buf []byte) *Buffer {
	return &Buffer{
		b: buf,
	}
}

// Bytes returns a slice of length b.Len() holding the unconsumed bytes in the Buffer.
// The slice is valid for use only until the next buffer modification
// (that is, only until the next call to an Append or Consume method).
func (b *Buffer) Bytes() []byte {
	return b.b[b.off:]
}

// Len returns the number of unconsumed bytes in the Buffer.
func (b *Buffer) Len() int {
	return len(b.b) - b.off
}

// Cap returns the capacity of the underlying byte slice.
func (b *Buffer) Cap() int {
	return cap(b.b)
}

// Reset empties the Buffer, retaining the underlying storage for reuse.
func (b *Buffer) Reset() {
	b.b = b.b[:0]
	b.off = 0
}

// Size returns the total number of bytes appended to the Buffer, consumed or not.
// It is the absolute offset at which the next Append will write.
func (b *Buffer) Size() int {
	return len(b.b)
}

// Offset returns the number of bytes consumed so far.
func (b *Buffer) Offset() int {
	return b.off
}

// Skip discards the next n bytes of the Buffer.
// If Buffer does not have enough data, it will return ErrShortPacket.
func (b *Buffer) Skip(n int) error {
	if n < 0 || b.Len() < n {
		return ErrShortPacket
	}

	b.off += n
	return nil
}

// ConsumeEnd asserts that every byte of the Buffer has been consumed.
// If any bytes remain, it will return ErrExtraData.
func (b *Buffer) ConsumeEnd() error {
	if b.Len() != 0 {
		return ErrExtraData
	}

	return nil
}

// ConsumeUint8 consumes a single byte from the Buffer.
// If Buffer does not have enough data, it will return ErrShortPacket.
func (b *Buffer) ConsumeUint8() (uint8, error) {
	if b.Len() < 1 {
		return 0, ErrShortPacket
	}

	var v uint8
	v, b.off = b.b[b.off], b.off+1
	return v, nil
}

// AppendUint8 appends a single byte into the Buffer.
func (b *Buffer) AppendUint8(v uint8) {
	b.b = append(b.b, v)
}

// ConsumeMessageID consumes a single message number from the Buffer.
func (b *Buffer) ConsumeMessageID() (MessageID, error) {
	v, err := b.ConsumeUint8()
	return MessageID(v), err
}

// AppendMessageID appends a single message number into the Buffer.
func (b *Buffer) AppendMessageID(id MessageID) {
	b.AppendUint8(uint8(id))
}

// ConsumeBool consumes a single byte from the Buffer, and returns true if that byte is non-zero.
// If Buffer does not have enough data, it will return ErrShortPacket.
func (b *Buffer) ConsumeBool() (bool, error) {
	v, err := b.ConsumeUint8()
	if err != nil {
		return false, err
	}

	return v != 0, nil
}

// AppendBool appends a single bool into the Buffer.
// It encodes it as a single byte, with false as 0, and true as 1.
func (b *Buffer) AppendBool(v bool) {
	if v {
		b.AppendUint8(1)
	} else {
		b.AppendUint8(0)
	}
}

// ConsumeUint32 consumes a single uint32 from the Buffer, in network byte order (big-endian).
// If Buffer does not have enough data, it will return ErrShortPacket.
func (b *Buffer) ConsumeUint32() (uint32, error) {
	if b.Len() < 4 {
		return 0, ErrShortPacket
	}

	v := binary.BigEndian.Uint32(b.b[b.off:])
	b.off += 4
	return v, nil
}

// AppendUint32 appends a single uint32 into the Buffer, in network byte order (big-endian).
func (b *Buffer) AppendUint32(v uint32) {
	b.b = binary.BigEndian.AppendUint32(b.b, v)
}

// PutUint32At overwrites four already appended bytes at the absolute offset off
// with v, in network byte order (big-endian).
// It is used to backfill a length prefix once the size of what follows is known.
func (b *Buffer) PutUint32At(off int, v uint32) error {
	if off < 0 || len(b.b)-off < 4 {
		return ErrShortPacket
	}

	binary.BigEndian.PutUint32(b.b[off:], v)
	return nil
}

// ConsumeUint64 consumes a single uint64 from the Buffer, in network byte order (big-endian).
// If Buffer does not have enough data, it will return ErrShortPacket.
func (b *Buffer) ConsumeUint64() (uint64, error) {
	if b.Len() < 8 {
		return 0, ErrShortPacket
	}

	v := binary.BigEndian.Uint64(b.b[b.off:])
	b.off += 8
	return v, nil
}

// AppendUint64 appends a single uint64 into the Buffer, in network byte order (big-endian).
func (b *Buffer) AppendUint64(v uint64) {
	b.b = binary.BigEndian.AppendUint64(b.b, v)
}

// ConsumeBytes consumes n raw bytes from the Buffer, with no length prefix.
// The returned slice aliases the Buffer.
// If Buffer does not have enough data, it will return ErrShortPacket.
func (b *Buffer) ConsumeBytes(n int) ([]byte, error) {
	if n < 0 || b.Len() < n {
		return nil, ErrShortPacket
	}

	v := b.b[b.off : b.off+n : b.off+n]
	b.off += n
	return v, nil
}

// AppendBytes appends raw bytes into the Buffer, with no length prefix.
func (b *Buffer) AppendBytes(v []byte) {
	b.b = append(b.b, v...)
}

// ConsumeByteSlice consumes a single string of raw binary data from the Buffer.
// A string is a uint32 length, followed by that number of raw bytes.
// If Buffer does not have enough data, or defines a length larger than available, it will return ErrShortPacket.
//
// The returned slice aliases the Buffer.
func (b *Buffer) ConsumeByteSlice() ([]byte, error) {
	length, err := b.ConsumeUint32()
	if err != nil {
		return nil, err
	}

	if uint64(b.Len()) < uint64(length) {
		return nil, ErrShortPacket
	}

	return b.ConsumeBytes(int(length))
}

// ConsumeByteSliceCopy consumes a single string of raw binary data from the Buffer,
// and returns a copy that does not alias the Buffer.
func (b *Buffer) ConsumeByteSliceCopy() ([]byte, error) {
	v, err := b.ConsumeByteSlice()
	if err != nil {
		return nil, err
	}

	return append([]byte(nil), v...), nil
}

// AppendByteSlice appends a single string of raw binary data into the Buffer.
// A string is a uint32 length, followed by that number of raw bytes.
func (b *Buffer) AppendByteSlice(v []byte) {
	b.AppendUint32(uint32(len(v)))
	b.b = append(b.b, v...)
}

// ConsumeString consumes a single string of binary data from the Buffer.
// A string is a uint32 length, followed by that number of raw bytes.
// If Buffer does not have enough data, or defines a length larger than available, it will return ErrShortPacket.
//
// NOTE: Go implicitly assumes that strings contain UTF-8 encoded data.
// All caveats on using arbitrary binary data in Go strings applies.
// Use ConsumeUTF8String where the protocol requires UTF-8.
func (b *Buffer) ConsumeString() (string, error) {
	v, err := b.ConsumeByteSlice()
	if err != nil {
		return "", err
	}

	return string(v), nil
}

// ConsumeUTF8String consumes a single string from the Buffer,
// and validates that it holds well-formed UTF-8.
// If it does not, it will return ErrInvalidUTF8.
func (b *Buffer) ConsumeUTF8String() (string, error) {
	v, err := b.ConsumeByteSlice()
	if err != nil {
		return "", err
	}

	if !utf8.Valid(v) {
		return "", ErrInvalidUTF8
	}

	return string(v), nil
}

// SkipString discards a single string from the Buffer without copying it.
func (b *Buffer) SkipString() error {
	_, err := b.ConsumeByteSlice()
	return err
}

// AppendString appends a single string of binary data into the Buffer.
// A string is a uint32 length, followed by that number of raw bytes.
func (b *Buffer) AppendString(v string) {
	b.AppendUint32(uint32(len(v)))
	b.b = append(b.b, v...)
}

// MarshalBinary returns the remaining binary data in the Buffer as a byte slice.
// This aliases the internal buffer, and so comes with the same caveats as Bytes().
//
// This function is a thin wrapper of Bytes() solely to implement encoding.BinaryMarshaler.
func (b *Buffer) MarshalBinary() ([]byte, error) {
	return b.Bytes(), nil
}

// UnmarshalBinary sets the internal buffer of b to be data, and zeros any internal offset.
// To avoid additional allocations,
// UnmarshalBinary takes ownership of buf, and the caller should not use buf after this call.
func (b *Buffer) UnmarshalBinary(data []byte) error {
	b.b = data
	b.off = 0
	return nil
}
