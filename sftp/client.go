// Package sftp implements an SSH File Transfer Protocol client
// running on one channel of an sshmux.Conn.
//
// Many requests may be in flight at once from any number of goroutines.
// One receive loop per Client reads the channel,
// and hands each response to the request it answers by request id.
package sftp

import (
	"context"
	"slices"
	"sync/atomic"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/sshmux/sshmux"
	"github.com/sshmux/sshmux/encoding/ssh/filexfer"
	"github.com/sshmux/sshmux/encoding/ssh/wire"
	"github.com/sshmux/sshmux/internal/sync"
)

// Settings are what the server announced in SSH_FXP_VERSION.
type Settings struct {
	Version    uint32
	Extensions []filexfer.ExtensionPair
}

// Client represents an SFTP session on one sshmux channel.
// A client may be called concurrently from multiple goroutines.
type Client struct {
	ch     *sshmux.Channel
	logger *zap.Logger

	reqid   atomic.Uint32
	pending sync.Map[uint32, *operation]

	resPool *sync.WorkPool[result]
	opPool  *sync.Pool[operation]
	bufPool *sync.SlicePool[[]byte, byte]

	// wsem serialises writes, so that the channel data of one request
	// is never interleaved with that of another.
	wsem chan struct{}

	maxPacket   uint32
	maxDataLen  int
	maxInflight int
	version     uint32

	settings Settings

	// ctx bounds every write and the receive loop. It is canceled at teardown.
	ctx    context.Context
	cancel context.CancelFunc

	closed chan struct{} // closed at teardown
	err    error         // set before closed is closed
	done   chan struct{} // closed once the receive loop has returned
}

// NewClient opens a session channel on conn, starts the "sftp" subsystem on it,
// and negotiates the protocol version.
// The context is only used during initialization and handshake.
func NewClient(ctx context.Context, conn *sshmux.Conn, opts ...ClientOption) (*Client, error) {
	ch, err := conn.OpenSession(ctx)
	if err != nil {
		return nil, err
	}

	if err := ch.RequestSubsystem(ctx, "sftp"); err != nil {
		ch.Close(ctx)
		return nil, err
	}

	cl, err := NewClientChannel(ctx, ch, opts...)
	if err != nil {
		ch.Close(ctx)
		return nil, err
	}

	return cl, nil
}

// NewClientChannel runs an SFTP session on ch, which must already be running the sftp subsystem.
// The client takes over ch, and closes it on Close.
// The context is only used during the handshake.
func NewClientChannel(ctx context.Context, ch *sshmux.Channel, opts ...ClientOption) (*Client, error) {
	cl := &Client{
		ch:     ch,
		logger: zap.NewNop(),

		wsem: make(chan struct{}, 1),

		maxPacket:   filexfer.DefaultMaxPacketLength,
		maxDataLen:  filexfer.DefaultMaxDataLength,
		maxInflight: DefaultMaxInflight,
		version:     DefaultProtocolVersion,

		closed: make(chan struct{}),
		done:   make(chan struct{}),
	}

	for _, opt := range opts {
		if err := opt(cl); err != nil {
			return nil, err
		}
	}

	if err := cl.handshake(ctx); err != nil {
		return nil, err
	}

	cl.resPool = sync.NewWorkPool[result](cl.maxInflight)
	cl.opPool = sync.NewPool[operation](cl.maxInflight)
	cl.bufPool = sync.NewSlicePool[[]byte](cl.maxInflight, int(cl.maxPacket))

	cl.ctx, cl.cancel = context.WithCancel(context.Background())

	go cl.loop()

	return cl, nil
}

// handshake sends SSH_FXP_INIT, and expects SSH_FXP_VERSION in the next channel data.
func (cl *Client) handshake(ctx context.Context) error {
	var buf wire.Buffer

	initPkt := &filexfer.InitPacket{
		Version: cl.version,
	}
	initPkt.AppendTo(&buf)

	if _, err := cl.ch.WriteData(ctx, buf.Bytes()); err != nil {
		return errors.Wrap(err, "sftp: send init")
	}

	for {
		pkt, err := cl.ch.ReceivePacket(ctx)
		if err != nil {
			return errors.Wrap(err, "sftp: receive version")
		}

		if pkt.MessageID() != wire.MsgChannelData {
			cl.logger.Debug("ignoring message during handshake", zap.Stringer("msg", pkt.MessageID()))

			isClose := pkt.MessageID() == wire.MsgChannelClose
			pkt.Release()

			if isClose {
				return errors.Wrap(sshmux.ErrChannelClosed, "sftp: receive version")
			}
			continue
		}

		err = cl.parseVersion(pkt)
		pkt.Release()

		return err
	}
}

func (cl *Client) parseVersion(pkt *wire.Packet) error {
	data, err := sshmux.ParseData(pkt)
	if err != nil {
		return err
	}

	buf := wire.NewBuffer(data)

	length, err := buf.ConsumeUint32()
	if err != nil {
		return filexfer.ErrInvalidLength
	}

	if int64(length) != int64(buf.Len()) {
		return errors.Wrapf(filexfer.ErrInvalidLength, "version packet length %d with %d bytes", length, buf.Len())
	}

	typ, err := buf.ConsumeUint8()
	if err != nil {
		return filexfer.ErrInvalidLength
	}

	if filexfer.PacketType(typ) != filexfer.PacketTypeVersion {
		return &UnexpectedPacketError{
			Want: []filexfer.PacketType{filexfer.PacketTypeVersion},
			Got:  filexfer.PacketType(typ),
		}
	}

	var verPkt filexfer.VersionPacket
	if err := verPkt.UnmarshalPacketBody(buf); err != nil {
		return err
	}

	if verPkt.Version > cl.version {
		return errors.Errorf("sftp: unexpected server version: got %d, offered %d", verPkt.Version, cl.version)
	}

	cl.settings.Version = verPkt.Version
	for _, ext := range verPkt.Extensions {
		cl.settings.Extensions = append(cl.settings.Extensions, *ext)
	}

	cl.logger.Debug("sftp session started",
		zap.Uint32("version", verPkt.Version),
		zap.Int("extensions", len(verPkt.Extensions)),
	)

	return nil
}

// Settings returns the protocol version and extensions the server announced.
func (cl *Client) Settings() Settings {
	s := cl.settings
	s.Extensions = slices.Clone(s.Extensions)
	return s
}

// HasExtension reports whether the server announced the named extension.
func (cl *Client) HasExtension(name string) bool {
	return slices.ContainsFunc(cl.settings.Extensions, func(ext filexfer.ExtensionPair) bool {
		return ext.Name == name
	})
}

// Close closes the SFTP session and its channel,
// failing every request still outstanding.
func (cl *Client) Close() error {
	return cl.CloseContext(context.Background())
}

// CloseContext is Close, bounded by ctx while waiting for the server to close the channel.
func (cl *Client) CloseContext(ctx context.Context) error {
	err := cl.ch.Close(ctx)

	cl.cancel()
	<-cl.done

	return err
}

// Wait blocks until the session has ended, and returns why.
// The returned error always matches ErrConnectionClosed.
func (cl *Client) Wait() error {
	<-cl.done
	return cl.err
}

func (cl *Client) closedErr() error {
	<-cl.closed
	return cl.err
}

func (cl *Client) loop() {
	defer close(cl.done)

	err := cl.recvLoop()
	cl.disconnect(err)
}

// disconnect fails every outstanding request, exactly once each.
func (cl *Client) disconnect(err error) {
	cl.err = &ClosedError{Err: err}
	close(cl.closed)
	cl.cancel()

	switch {
	case errors.Is(err, sshmux.ErrChannelClosed), errors.Is(err, context.Canceled):
		cl.logger.Debug("sftp session closed")

	case errors.Is(err, sshmux.ErrConnClosed):
		cl.logger.Warn("sftp session lost", zap.Error(err))

	default:
		cl.logger.Warn("sftp session lost", zap.Error(err))

		// The stream can no longer be framed, so the channel goes too.
		if err := cl.ch.SendClose(context.Background()); err != nil {
			cl.logger.Debug("closing channel", zap.Error(err))
		}
	}

	cl.pending.Range(func(reqid uint32, _ *operation) bool {
		if op, ok := cl.pending.LoadAndDelete(reqid); ok {
			op.resolve(result{err: cl.err})
		}
		return true
	})

	// Wait for callers to collect their results.
	cl.resPool.Close()
}

func (cl *Client) recvLoop() error {
	var stream []byte

	for {
		pkt, err := cl.ch.ReceivePacket(cl.ctx)
		if err != nil {
			return err
		}

		switch id := pkt.MessageID(); id {
		case wire.MsgChannelData:
			data, err := sshmux.ParseData(pkt)
			if err != nil {
				pkt.Release()
				return err
			}

			stream = append(stream, data...)
			pkt.Release()

			if stream, err = cl.dispatch(stream); err != nil {
				cl.logger.Error("malformed sftp packet stream", zap.Error(err))
				return err
			}

		case wire.MsgChannelRequest:
			req, err := sshmux.ParseChannelRequest(pkt)
			if err != nil {
				pkt.Release()
				return err
			}

			wantReply := req.WantReply
			cl.logger.Debug("channel request from server", zap.String("type", req.Type))
			pkt.Release()

			if wantReply {
				if err := cl.ch.SendChannelFailure(cl.ctx); err != nil {
					cl.logger.Debug("refusing channel request", zap.Error(err))
				}
			}

		case wire.MsgChannelClose:
			pkt.Release()
			return sshmux.ErrChannelClosed

		default:
			cl.logger.Debug("dropping channel message", zap.Stringer("msg", id))
			pkt.Release()
		}
	}
}

// dispatch resolves the operations answered by every complete packet in stream,
// and returns the incomplete remainder, moved to the front of stream.
func (cl *Client) dispatch(stream []byte) ([]byte, error) {
	for {
		data, rest, err := filexfer.SplitPacket(stream, cl.maxPacket)
		if err != nil {
			return nil, err
		}

		if data == nil {
			return append(stream[:0], rest...), nil
		}

		var raw filexfer.RawPacket
		if err := raw.UnmarshalBinary(data); err != nil {
			return nil, err
		}

		op, ok := cl.pending.LoadAndDelete(raw.RequestID)
		if !ok {
			cl.logger.Debug("dropping response for unknown request",
				zap.Uint32("reqid", raw.RequestID),
				zap.Stringer("type", raw.Type),
			)
		} else {
			op.handleResponse(raw.Type, &raw.Data)
		}

		stream = rest
	}
}

// send registers an operation of the given kind, sends req for it, and waits for its result.
// buf is the destination of a read, and is nil for other kinds.
func (cl *Client) send(ctx context.Context, kind opKind, buf []byte, req filexfer.Packet) (result, error) {
	res, ok := cl.resPool.Get()
	if !ok {
		return result{}, cl.closedErr()
	}

	op := cl.opPool.Get()
	op.kind = kind
	op.buf = buf
	op.res = res
	op.reqid = cl.reqid.Add(1)

	// Registered before sending, so a fast response always finds it.
	cl.pending.Store(op.reqid, op)

	select {
	case <-cl.closed:
		return cl.abandon(op, cl.err)
	default:
	}

	if err := cl.write(ctx, op.reqid, req); err != nil {
		return cl.abandon(op, err)
	}

	select {
	case r := <-res:
		cl.release(op)
		return r, r.err

	case <-ctx.Done():
		return cl.abandon(op, ctx.Err())
	}
}

// abandon takes op back out of the pending table.
// If the receive loop got to it first, abandon waits for the result,
// so that neither op nor its read buffer is still in use once it returns.
func (cl *Client) abandon(op *operation, err error) (result, error) {
	if _, ok := cl.pending.LoadAndDelete(op.reqid); !ok {
		<-op.res
	}

	cl.release(op)
	return result{}, err
}

func (cl *Client) release(op *operation) {
	cl.resPool.Put(op.res)
	cl.opPool.Put(op)
}

// write sends one request packet as channel data.
// Once any of it has been sent, the rest is sent regardless of ctx,
// since a partial packet would corrupt the stream.
func (cl *Client) write(ctx context.Context, reqid uint32, req filexfer.Packet) error {
	select {
	case cl.wsem <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	case <-cl.closed:
		return cl.err
	}
	defer func() { <-cl.wsem }()

	buf := wire.NewBuffer(cl.bufPool.Get())
	filexfer.AppendPacket(buf, reqid, req)

	_, err := cl.ch.WriteData(cl.ctx, buf.Bytes())

	cl.bufPool.Put(buf.Bytes())

	if err != nil {
		select {
		case <-cl.closed:
			return cl.err
		default:
		}

		return errors.Wrapf(err, "sftp: send %v", req.Type())
	}

	return nil
}
