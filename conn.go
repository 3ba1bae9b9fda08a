package sshmux

import (
	"context"
	"sync/atomic"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/crypto/ssh"

	"github.com/sshmux/sshmux/encoding/ssh/wire"
	"github.com/sshmux/sshmux/internal/sync"
)

// blockSize is the cipher block size packets are padded to.
// Transports with larger blocks are expected to reframe.
const blockSize = 8

// Conn multiplexes channels over one Transport.
//
// A single goroutine reads every inbound packet from the Transport,
// and routes each channel-scoped message to its Channel by recipient channel id.
// Writes may come from any goroutine.
type Conn struct {
	t      Transport
	logger *zap.Logger

	windowSize uint32
	maxPacket  uint32
	poolDepth  int
	pool       *wire.Pool

	chanID   atomic.Uint32
	channels sync.Map[uint32, *Channel]

	// ctx is canceled, with the teardown reason as cause, when the connection ends.
	ctx    context.Context
	cancel context.CancelCauseFunc

	done chan struct{}
	err  error // set before done is closed
}

// NewConn starts multiplexing channels over t.
// The Conn owns t from now on, and closes it when the connection ends.
func NewConn(t Transport, opts ...ConnOption) (*Conn, error) {
	c := &Conn{
		t:      t,
		logger: zap.NewNop(),

		windowSize: DefaultWindowSize,
		maxPacket:  DefaultMaxPacketSize,
		poolDepth:  DefaultPacketPoolDepth,

		done: make(chan struct{}),
	}

	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}

	if c.windowSize < c.maxPacket {
		return nil, errors.Errorf("sshmux: window size %d is smaller than max packet size %d", c.windowSize, c.maxPacket)
	}

	// header + message number + recipient + data length + maximum padding
	c.pool = wire.NewPool(c.poolDepth, int(c.maxPacket)+5+1+4+4+255)

	c.ctx, c.cancel = context.WithCancelCause(context.Background())

	go c.loop()

	return c, nil
}

// OpenSession opens a "session" channel, as used for exec and subsystems.
func (c *Conn) OpenSession(ctx context.Context) (*Channel, error) {
	return c.openChannel(ctx, sessionOpen{})
}

// OpenDirectTCPIP opens a "direct-tcpip" channel,
// asking the peer to connect to host:port on behalf of originIP:originPort.
func (c *Conn) OpenDirectTCPIP(ctx context.Context, host string, port uint32, originIP string, originPort uint32) (*Channel, error) {
	return c.openChannel(ctx, directTCPIPOpen{
		Host:       host,
		Port:       port,
		OriginIP:   originIP,
		OriginPort: originPort,
	})
}

// OpenDirectStreamLocal opens a "direct-streamlocal@openssh.com" channel,
// asking the peer to connect to the unix domain socket at socketPath.
func (c *Conn) OpenDirectStreamLocal(ctx context.Context, socketPath string) (*Channel, error) {
	return c.openChannel(ctx, directStreamLocalOpen{
		SocketPath: socketPath,
	})
}

// openChannel sends an SSH_MSG_CHANNEL_OPEN, and waits for the peer to confirm or reject it.
// A rejection is returned as an *ssh.OpenChannelError.
func (c *Conn) openChannel(ctx context.Context, m channelOpen) (*Channel, error) {
	if c.ctx.Err() != nil {
		return nil, context.Cause(c.ctx)
	}

	id := c.chanID.Add(1) - 1

	ch := newChannel(c, id, m.chanType())
	c.channels.Store(id, ch)

	pkt, w := c.rent()
	marshalChannelOpen(w, m, id, c.windowSize, c.maxPacket)

	if err := c.writePacket(ctx, pkt); err != nil {
		c.channels.Delete(id)
		return nil, err
	}

	c.logger.Debug("channel open sent", zap.Uint32("channel", id), zap.String("type", m.chanType()))

	if err := ch.opened.Wait(ctx, c.ctx); err != nil {
		if ctx.Err() == nil {
			// The connection ended first.
			c.channels.Delete(id)
			return nil, context.Cause(c.ctx)
		}

		ch.abandon()
		return nil, err
	}

	if ch.openErr != nil {
		return nil, ch.openErr
	}

	return ch, nil
}

// Close tears down the connection, failing every open channel.
func (c *Conn) Close() error {
	c.cancel(&ConnError{})

	err := c.t.Close()
	<-c.done

	return err
}

// Done returns a channel that is closed once the connection has ended.
func (c *Conn) Done() <-chan struct{} {
	return c.done
}

// Wait blocks until the connection has ended, and returns why.
// The returned error always matches ErrConnClosed.
func (c *Conn) Wait() error {
	<-c.done
	return c.err
}

func (c *Conn) rent() (*wire.Packet, *wire.Buffer) {
	pkt := c.pool.Rent()

	// A freshly rented packet is always writable.
	w, _ := pkt.Writer()

	return pkt, w
}

// writePacket frames the packet if necessary, and hands it to the Transport.
// It takes ownership of pkt.
func (c *Conn) writePacket(ctx context.Context, pkt *wire.Packet) error {
	if _, err := pkt.Writer(); err == nil {
		if err := pkt.Frame(blockSize); err != nil {
			pkt.Release()
			return err
		}
	}

	if err := c.t.WritePacket(ctx, pkt); err != nil {
		if c.ctx.Err() != nil {
			return context.Cause(c.ctx)
		}

		return errors.Wrap(err, "sshmux: write packet")
	}

	return nil
}

func (c *Conn) loop() {
	defer close(c.done)

	err := c.recvLoop()
	c.teardown(err)
}

func (c *Conn) recvLoop() error {
	for {
		pkt, err := c.t.ReadPacket(c.ctx)
		if err != nil {
			return err
		}

		if err := c.dispatch(pkt); err != nil {
			return err
		}
	}
}

// teardown fails every channel with the reason the connection ended.
func (c *Conn) teardown(err error) {
	reason := context.Cause(c.ctx)
	if reason == nil {
		reason = &ConnError{Err: err}
		c.cancel(reason)

		c.logger.Warn("connection lost", zap.Error(err))
	} else {
		c.logger.Debug("connection closed")
	}

	c.err = reason

	if err := c.t.Close(); err != nil {
		c.logger.Debug("closing transport", zap.Error(err))
	}

	c.channels.Range(func(id uint32, ch *Channel) bool {
		ch.fail(reason)
		c.channels.Delete(id)
		return true
	})

	if hits, total := c.pool.Hits(); total > 0 {
		c.logger.Debug("packet pool", zap.Uint64("reused", hits), zap.Uint64("rented", total))
	}
}

// dispatch routes one inbound packet, and takes ownership of it.
// An error return ends the connection.
func (c *Conn) dispatch(pkt *wire.Packet) error {
	id := pkt.MessageID()

	if !id.IsChannelScoped() {
		defer pkt.Release()
		return c.handleGlobal(id, pkt.Reader())
	}

	r := pkt.Reader()

	_, recipient, err := consumeHeader(r)
	if err != nil {
		pkt.Release()
		return errors.Wrapf(err, "sshmux: %v", id)
	}

	ch, ok := c.channels.Load(recipient)
	if !ok {
		c.logger.Debug("dropping message for unknown channel", zap.Uint32("channel", recipient), zap.Stringer("msg", id))
		pkt.Release()
		return nil
	}

	switch id {
	case wire.MsgChannelOpenConfirm:
		defer pkt.Release()

		m, err := parseOpenConfirm(r)
		if err != nil {
			return errors.Wrapf(err, "sshmux: %v", id)
		}

		ch.confirm(m)

	case wire.MsgChannelOpenFailure:
		defer pkt.Release()

		rejection, err := parseOpenFailure(r)
		if err != nil {
			ch.reject(errors.Wrapf(err, "sshmux: %v", id))
		} else {
			ch.reject(rejection)
		}

		c.channels.Delete(recipient)

	case wire.MsgChannelWindowAdjust:
		defer pkt.Release()

		n, err := r.ConsumeUint32()
		if err != nil {
			return errors.Wrapf(err, "sshmux: %v", id)
		}

		ch.adjustRemote(n)

	case wire.MsgChannelData, wire.MsgChannelExtendedData:
		n, err := dataLength(id, r)
		if err != nil {
			pkt.Release()
			return errors.Wrapf(err, "sshmux: %v", id)
		}

		return ch.deliverData(pkt, uint32(n))

	case wire.MsgChannelClose:
		c.channels.Delete(recipient)
		ch.remoteClose(pkt)

	default:
		ch.enqueue(pkt)
	}

	return nil
}

func (c *Conn) handleGlobal(id wire.MessageID, r *wire.Buffer) error {
	switch id {
	case wire.MsgChannelOpen:
		m, err := parseChannelOpenRequest(r)
		if err != nil {
			return errors.Wrapf(err, "sshmux: %v", id)
		}

		c.logger.Debug("rejecting channel open from peer", zap.String("type", m.ChanType))

		pkt, w := c.rent()
		marshalOpenFailure(w, m.Sender, ssh.Prohibited, "channel open requests are not accepted")
		return c.writePacket(c.ctx, pkt)

	case wire.MsgGlobalRequest:
		m, err := parseGlobalRequest(r)
		if err != nil {
			return errors.Wrapf(err, "sshmux: %v", id)
		}

		if !m.WantReply {
			return nil
		}

		c.logger.Debug("refusing global request", zap.String("request", m.Request))

		pkt, w := c.rent()
		w.AppendMessageID(wire.MsgRequestFailure)
		return c.writePacket(c.ctx, pkt)

	default:
		c.logger.Debug("dropping message", zap.Stringer("msg", id))
		return nil
	}
}
