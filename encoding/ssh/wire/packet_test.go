package wire

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeChannelData(t *testing.T, pkt *Packet, channel uint32, data string) {
	t.Helper()

	w, err := pkt.Writer()
	require.NoError(t, err)

	w.AppendMessageID(MsgChannelData)
	w.AppendUint32(channel)
	w.AppendString(data)
}

func TestPacketFraming(t *testing.T) {
	pool := NewPool(4, 64)

	pkt := pool.Rent()
	defer pkt.Release()

	assert.Equal(t, 5, pkt.Len())
	assert.Equal(t, MessageID(0), pkt.MessageID())

	writeChannelData(t, pkt, 7, "hi")
	assert.Equal(t, MsgChannelData, pkt.MessageID(), "message number is readable before framing")
	assert.Equal(t, 1+4+4+2, pkt.PayloadLength())

	require.NoError(t, pkt.WriteHeaderAndPadding(6))

	b := pkt.Bytes()
	assert.Equal(t, uint32(len(b)-4), binary.BigEndian.Uint32(b))
	assert.Equal(t, byte(6), b[4])
	assert.Equal(t, 1+4+4+2, pkt.PayloadLength())
	assert.Equal(t, MsgChannelData, pkt.MessageID())

	r := pkt.Reader()
	id, err := r.ConsumeMessageID()
	require.NoError(t, err)
	assert.Equal(t, MsgChannelData, id)
	ch, err := r.ConsumeUint32()
	require.NoError(t, err)
	assert.Equal(t, uint32(7), ch)
	data, err := r.ConsumeString()
	require.NoError(t, err)
	assert.Equal(t, "hi", data)
	assert.NoError(t, r.ConsumeEnd(), "reader must exclude the padding")

	_, err = pkt.Writer()
	assert.ErrorIs(t, err, ErrReadOnly)
	assert.ErrorIs(t, pkt.WriteHeaderAndPadding(4), ErrReadOnly)
}

func TestPacketFrame(t *testing.T) {
	for _, blockSize := range []int{0, 8, 16, 32} {
		for n := 0; n < 40; n++ {
			pkt := NewPool(1, 128).Rent()

			w, err := pkt.Writer()
			require.NoError(t, err)
			w.AppendMessageID(MsgChannelEOF)
			w.AppendBytes(make([]byte, n))

			require.NoError(t, pkt.Frame(blockSize))

			bs := max(blockSize, 8)
			padding := int(pkt.Bytes()[4])
			assert.GreaterOrEqual(t, padding, MinPadding)
			assert.Zero(t, pkt.Len()%bs, "block size %d payload %d", bs, n)
			assert.Equal(t, 1+n, pkt.PayloadLength())

			pkt.Release()
		}
	}
}

func TestPacketMoveAndClone(t *testing.T) {
	pool := NewPool(4, 64)

	pkt := pool.Rent()
	writeChannelData(t, pkt, 1, "data")
	require.NoError(t, pkt.Frame(8))

	clone := pkt.Clone()
	defer clone.Release()

	moved := pkt.Move()
	defer moved.Release()

	assert.Zero(t, pkt.Len())
	assert.Nil(t, pkt.Payload())
	_, err := pkt.Writer()
	assert.ErrorIs(t, err, ErrReleased)
	pkt.Release() // no-op on a moved packet

	assert.Equal(t, moved.Bytes(), clone.Bytes())

	clone.Bytes()[5] = byte(MsgChannelEOF)
	assert.Equal(t, MsgChannelData, moved.MessageID(), "clone must not alias the original")
}

func TestPacketRelease(t *testing.T) {
	pool := NewPool(1, 64)

	pkt := pool.Rent()
	writeChannelData(t, pkt, 1, "x")
	require.NoError(t, pkt.Frame(8))

	pkt.Release()
	pkt.Release()

	again := pool.Rent()
	defer again.Release()

	assert.Equal(t, 5, again.Len())
	_, err := again.Writer()
	assert.NoError(t, err, "a recycled buffer must come back with a zeroed header")
}

func TestPoolRentFrame(t *testing.T) {
	pool := NewPool(1, 64)

	src, err := pool.RentPayload([]byte{byte(MsgChannelClose), 0, 0, 0, 3})
	require.NoError(t, err)
	defer src.Release()

	pkt, err := pool.RentFrame(src.Bytes())
	require.NoError(t, err)
	defer pkt.Release()

	assert.Equal(t, MsgChannelClose, pkt.MessageID())
	assert.Equal(t, []byte{byte(MsgChannelClose), 0, 0, 0, 3}, pkt.Payload())

	_, err = pool.RentFrame(src.Bytes()[:src.Len()-1])
	assert.ErrorIs(t, err, ErrShortPacket)

	_, err = pool.RentFrame(append(append([]byte(nil), src.Bytes()...), 0))
	assert.ErrorIs(t, err, ErrLongPacket)

	_, err = pool.RentFrame([]byte{0, 0, 0, 2, 1, 9})
	assert.Error(t, err, "padding must leave room for a message number")
}

func TestNilPool(t *testing.T) {
	var pool *Pool

	pkt := pool.Rent()
	writeChannelData(t, pkt, 3, "")
	require.NoError(t, pkt.Frame(8))
	pkt.Release()

	hits, total := pool.Hits()
	assert.Zero(t, hits)
	assert.Zero(t, total)
}

func TestPoolHits(t *testing.T) {
	pool := NewPool(2, 64)

	pool.Rent().Release()
	pool.Rent().Release()

	// Without the metrics build tag both stay zero; with it, the second rent reused the first buffer.
	hits, total := pool.Hits()
	assert.LessOrEqual(t, hits, total)
	assert.Contains(t, []uint64{0, 2}, total)
}
