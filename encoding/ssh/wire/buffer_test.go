package wire

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBufferRoundTrip(t *testing.T) {
	var buf Buffer

	buf.AppendMessageID(MsgChannelData)
	buf.AppendBool(true)
	buf.AppendUint32(0xDEADBEEF)
	buf.AppendUint64(0x0102030405060708)
	buf.AppendString("héllo")
	buf.AppendByteSlice([]byte{0x01, 0x02})
	buf.AppendBytes([]byte{0xFF})

	want := []byte{
		94,
		0x01,
		0xDE, 0xAD, 0xBE, 0xEF,
		0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08,
		0x00, 0x00, 0x00, 0x06, 'h', 0xC3, 0xA9, 'l', 'l', 'o',
		0x00, 0x00, 0x00, 0x02, 0x01, 0x02,
		0xFF,
	}
	require.Equal(t, want, buf.Bytes())

	id, err := buf.ConsumeMessageID()
	require.NoError(t, err)
	assert.Equal(t, MsgChannelData, id)

	b, err := buf.ConsumeBool()
	require.NoError(t, err)
	assert.True(t, b)

	u32, err := buf.ConsumeUint32()
	require.NoError(t, err)
	assert.Equal(t, uint32(0xDEADBEEF), u32)

	u64, err := buf.ConsumeUint64()
	require.NoError(t, err)
	assert.Equal(t, uint64(0x0102030405060708), u64)

	s, err := buf.ConsumeUTF8String()
	require.NoError(t, err)
	assert.Equal(t, "héllo", s)

	bs, err := buf.ConsumeByteSliceCopy()
	require.NoError(t, err)
	assert.Equal(t, []byte{0x01, 0x02}, bs)

	assert.ErrorIs(t, buf.ConsumeEnd(), ErrExtraData)
	require.NoError(t, buf.Skip(1))
	assert.NoError(t, buf.ConsumeEnd())
}

func TestBufferShort(t *testing.T) {
	tests := []struct {
		name    string
		data    []byte
		consume func(*Buffer) error
	}{
		{
			name: "uint8",
			consume: func(b *Buffer) error {
				_, err := b.ConsumeUint8()
				return err
			},
		},
		{
			name: "uint32",
			data: []byte{0, 0, 0},
			consume: func(b *Buffer) error {
				_, err := b.ConsumeUint32()
				return err
			},
		},
		{
			name: "uint64",
			data: []byte{0, 0, 0, 0, 0, 0, 0},
			consume: func(b *Buffer) error {
				_, err := b.ConsumeUint64()
				return err
			},
		},
		{
			name: "string length beyond data",
			data: []byte{0, 0, 0, 4, 'a', 'b'},
			consume: func(b *Buffer) error {
				_, err := b.ConsumeString()
				return err
			},
		},
		{
			name: "huge string length",
			data: []byte{0xFF, 0xFF, 0xFF, 0xFF, 'a'},
			consume: func(b *Buffer) error {
				return b.SkipString()
			},
		},
		{
			name: "skip",
			data: []byte{1, 2},
			consume: func(b *Buffer) error {
				return b.Skip(3)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.consume(NewBuffer(tt.data))
			assert.ErrorIs(t, err, ErrShortPacket)
		})
	}
}

func TestBufferInvalidUTF8(t *testing.T) {
	buf := NewBuffer([]byte{0, 0, 0, 2, 0xC3, 0x28})

	_, err := buf.ConsumeUTF8String()
	assert.ErrorIs(t, err, ErrInvalidUTF8)

	// The same bytes are acceptable as an opaque string.
	buf = NewBuffer([]byte{0, 0, 0, 2, 0xC3, 0x28})
	s, err := buf.ConsumeString()
	assert.NoError(t, err)
	assert.Equal(t, "\xC3\x28", s)
}

func TestBufferPutUint32At(t *testing.T) {
	var buf Buffer
	buf.AppendUint32(0)
	buf.AppendString("abc")

	require.NoError(t, buf.PutUint32At(0, uint32(buf.Len()-4)))
	assert.Equal(t, []byte{0, 0, 0, 7, 0, 0, 0, 3, 'a', 'b', 'c'}, buf.Bytes())

	assert.ErrorIs(t, buf.PutUint32At(8, 1), ErrShortPacket)
}
