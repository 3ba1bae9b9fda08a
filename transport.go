package sshmux

import (
	"context"
	"encoding/binary"
	"io"

	"github.com/pkg/errors"

	"github.com/sshmux/sshmux/encoding/ssh/wire"
	"github.com/sshmux/sshmux/internal/sync"
)

// Transport carries whole SSH binary packets between the two ends of a connection.
//
// It is the boundary to key exchange, encryption, and integrity checks:
// packets read from it are already decrypted and verified,
// and packets written to it are already framed.
type Transport interface {
	// ReadPacket returns the next inbound packet.
	// The caller owns the returned packet, and must release it.
	// ReadPacket is only ever called from one goroutine at a time.
	ReadPacket(ctx context.Context) (*wire.Packet, error)

	// WritePacket takes ownership of the framed packet, and transmits it.
	// WritePacket may be called concurrently,
	// and must not interleave the bytes of one packet with those of another.
	WritePacket(ctx context.Context, pkt *wire.Packet) error

	// Close closes the Transport.
	// Any blocked ReadPacket or WritePacket returns with an error.
	Close() error
}

type pipeEnd struct {
	in  <-chan *wire.Packet
	out chan<- *wire.Packet

	once   *sync.Once
	closed chan struct{}
}

// NewPipe returns two connected in-memory Transports.
// Packets written to one are read from the other, in order.
// Closing either end closes both.
func NewPipe() (Transport, Transport) {
	a2b := make(chan *wire.Packet, DefaultPacketPoolDepth)
	b2a := make(chan *wire.Packet, DefaultPacketPoolDepth)

	once := new(sync.Once)
	closed := make(chan struct{})

	return &pipeEnd{in: b2a, out: a2b, once: once, closed: closed},
		&pipeEnd{in: a2b, out: b2a, once: once, closed: closed}
}

func (p *pipeEnd) ReadPacket(ctx context.Context) (*wire.Packet, error) {
	select {
	case pkt := <-p.in:
		return pkt, nil

	case <-ctx.Done():
		return nil, ctx.Err()

	case <-p.closed:
		// Deliver what was written before the close.
		select {
		case pkt := <-p.in:
			return pkt, nil
		default:
			return nil, io.EOF
		}
	}
}

func (p *pipeEnd) WritePacket(ctx context.Context, pkt *wire.Packet) error {
	select {
	case <-p.closed:
		pkt.Release()
		return io.ErrClosedPipe
	default:
	}

	select {
	case p.out <- pkt:
		return nil

	case <-ctx.Done():
		pkt.Release()
		return ctx.Err()

	case <-p.closed:
		pkt.Release()
		return io.ErrClosedPipe
	}
}

func (p *pipeEnd) Close() error {
	p.once.Do(func() {
		close(p.closed)
	})
	return nil
}

// streamTransport frames packets onto an unencrypted byte stream,
// as with the "none" cipher and MAC.
type streamTransport struct {
	rwc io.ReadWriteCloser

	pool    *wire.Pool
	maxSize uint32
	rbuf    []byte

	mu sync.Mutex // serialises writes
}

// NewStreamTransport returns a Transport that reads and writes binary packets on rwc without encryption.
// Inbound packets larger than maxPacketSize are rejected.
// Its ReadPacket cannot be interrupted by the context once a read has started;
// closing the Transport closes rwc, which unblocks it.
func NewStreamTransport(rwc io.ReadWriteCloser, maxPacketSize int) Transport {
	if maxPacketSize <= 0 {
		maxPacketSize = wire.DefaultMaxPacketSize
	}

	return &streamTransport{
		rwc:     rwc,
		pool:    wire.NewPool(DefaultPacketPoolDepth, maxPacketSize),
		maxSize: uint32(maxPacketSize),
	}
}

func (t *streamTransport) ReadPacket(ctx context.Context) (*wire.Packet, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var hdr [4]byte
	if _, err := io.ReadFull(t.rwc, hdr[:]); err != nil {
		return nil, err
	}

	length := binary.BigEndian.Uint32(hdr[:])
	if length > t.maxSize {
		return nil, errors.Wrapf(wire.ErrLongPacket, "packet length %d", length)
	}

	if cap(t.rbuf) < 4+int(length) {
		t.rbuf = make([]byte, 4+int(length))
	}

	frame := t.rbuf[:4+int(length)]
	copy(frame, hdr[:])

	if _, err := io.ReadFull(t.rwc, frame[4:]); err != nil {
		return nil, errors.Wrap(err, "read packet")
	}

	return t.pool.RentFrame(frame)
}

func (t *streamTransport) WritePacket(ctx context.Context, pkt *wire.Packet) error {
	defer pkt.Release()

	if err := ctx.Err(); err != nil {
		return err
	}

	if _, err := pkt.Writer(); err == nil {
		return errors.New("sshmux: packet has not been framed")
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	_, err := t.rwc.Write(pkt.Bytes())
	return err
}

func (t *streamTransport) Close() error {
	return t.rwc.Close()
}
