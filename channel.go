package sshmux

import (
	"context"
	"fmt"
	"math"
	"sync/atomic"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/sshmux/sshmux/encoding/ssh/wire"
	"github.com/sshmux/sshmux/internal/sync"
)

// ChannelState is the lifecycle state of a Channel.
type ChannelState int32

// Channel states. A channel only ever moves forward through them.
const (
	StateOpening ChannelState = iota
	StateOpen
	StateClosing // a close has been sent, and the peer's close is awaited
	StateClosed
)

func (s ChannelState) String() string {
	switch s {
	case StateOpening:
		return "opening"
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("ChannelState(%d)", int32(s))
	}
}

// atomicState is an atomic.Int32 typed as a ChannelState.
type atomicState struct {
	v atomic.Int32
}

func (a *atomicState) Load() ChannelState { return ChannelState(a.v.Load()) }

func (a *atomicState) Store(s ChannelState) { a.v.Store(int32(s)) }

func (a *atomicState) Swap(s ChannelState) ChannelState { return ChannelState(a.v.Swap(int32(s))) }

func (a *atomicState) CompareAndSwap(old, s ChannelState) bool {
	return a.v.CompareAndSwap(int32(old), int32(s))
}

type inbound struct {
	pkt *wire.Packet
	n   uint32 // bytes of channel data carried, counted against the local window
}

// Channel is one logical stream multiplexed over a Conn.
//
// The send side and the receive side are independent,
// and may each be used from their own goroutine.
type Channel struct {
	conn   *Conn
	logger *zap.Logger
	typ    string

	localID  uint32
	remoteID uint32 // set once, before opened

	state atomicState

	opened  sync.Event
	openErr error // set before opened

	closed sync.Event

	mu          sync.Mutex // guards the receive side
	queue       []inbound
	notify      chan struct{}
	localWindow uint32 // bytes the peer may still send
	consumed    uint32 // bytes received since the last window adjustment
	closeErr    error

	wmu             sync.Mutex // guards the send side
	remoteWindow    uint32
	remoteMaxPacket uint32
	windowNotify    chan struct{}
}

func newChannel(c *Conn, id uint32, typ string) *Channel {
	return &Channel{
		conn:   c,
		logger: c.logger.With(zap.Uint32("channel", id)),
		typ:    typ,

		localID: id,

		notify:      make(chan struct{}, 1),
		localWindow: c.windowSize,

		windowNotify: make(chan struct{}, 1),
	}
}

// LocalID returns the channel number this side allocated.
func (ch *Channel) LocalID() uint32 { return ch.localID }

// RemoteID returns the channel number the peer allocated.
// It is only meaningful once the channel is open.
func (ch *Channel) RemoteID() uint32 {
	ch.wmu.Lock()
	defer ch.wmu.Unlock()

	return ch.remoteID
}

// Type returns the channel type, such as "session".
func (ch *Channel) Type() string { return ch.typ }

// State returns the current lifecycle state.
func (ch *Channel) State() ChannelState { return ch.state.Load() }

// LocalWindow returns how many more bytes of data the peer may send before it must wait for a window adjustment.
func (ch *Channel) LocalWindow() uint32 {
	ch.mu.Lock()
	defer ch.mu.Unlock()

	return ch.localWindow
}

// LocalMaxPacket returns the largest data payload this side accepts.
func (ch *Channel) LocalMaxPacket() uint32 { return ch.conn.maxPacket }

// RemoteWindow returns how many more bytes of data may be sent to the peer.
func (ch *Channel) RemoteWindow() uint32 {
	ch.wmu.Lock()
	defer ch.wmu.Unlock()

	return ch.remoteWindow
}

// RemoteMaxPacket returns the largest data payload the peer accepts.
func (ch *Channel) RemoteMaxPacket() uint32 {
	ch.wmu.Lock()
	defer ch.wmu.Unlock()

	return ch.remoteMaxPacket
}

// RentPacket returns an empty packet from the connection's pool,
// ready to have a channel message written into it.
func (ch *Channel) RentPacket() *wire.Packet {
	return ch.conn.pool.Rent()
}

// newMessage rents a packet, and writes the channel message header addressed to the peer.
func (ch *Channel) newMessage(id wire.MessageID) (*wire.Packet, *wire.Buffer) {
	pkt, w := ch.conn.rent()
	marshalChannelHeader(w, id, ch.RemoteID())
	return pkt, w
}

// SendPacket sends a channel message, which must be addressed to RemoteID.
// It takes ownership of pkt, even on error.
//
// Sending SSH_MSG_CHANNEL_CLOSE moves the channel to StateClosing.
// Once the channel is closing or closed, ErrChannelClosed is returned.
func (ch *Channel) SendPacket(ctx context.Context, pkt *wire.Packet) error {
	if pkt.MessageID() == wire.MsgChannelClose {
		if !ch.state.CompareAndSwap(StateOpen, StateClosing) {
			pkt.Release()
			return ErrChannelClosed
		}

		// Wake writers waiting for window, so they see the channel closing.
		ch.signalWindow()

		return ch.conn.writePacket(ctx, pkt)
	}

	if ch.state.Load() != StateOpen {
		pkt.Release()
		return ErrChannelClosed
	}

	return ch.conn.writePacket(ctx, pkt)
}

// ReceivePacket returns the next message the peer sent on this channel, in arrival order.
// The caller owns the returned packet, and must release it.
//
// Receiving data may send a window adjustment to the peer.
// The peer's SSH_MSG_CHANNEL_CLOSE is delivered like any other message;
// after it, ReceivePacket returns ErrChannelClosed,
// or a ConnError if the connection ended first.
func (ch *Channel) ReceivePacket(ctx context.Context) (*wire.Packet, error) {
	for {
		ch.mu.Lock()

		if len(ch.queue) > 0 {
			in := ch.queue[0]
			ch.queue[0] = inbound{}
			ch.queue = ch.queue[1:]

			var adjust uint32

			if in.n > 0 {
				ch.consumed += in.n

				if ch.consumed >= ch.conn.windowSize/2 && ch.closeErr == nil {
					adjust = ch.consumed
					ch.localWindow += adjust
					ch.consumed = 0
				}
			}

			ch.mu.Unlock()

			if adjust > 0 {
				if err := ch.sendWindowAdjust(adjust); err != nil {
					ch.logger.Warn("sending window adjustment", zap.Error(err))
				}
			}

			return in.pkt, nil
		}

		err := ch.closeErr
		ch.mu.Unlock()

		if err != nil {
			return nil, err
		}

		select {
		case <-ch.notify:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

func (ch *Channel) sendWindowAdjust(n uint32) error {
	if ch.state.Load() != StateOpen {
		return nil
	}

	pkt, w := ch.newMessage(wire.MsgChannelWindowAdjust)
	w.AppendUint32(n)

	return ch.conn.writePacket(ch.conn.ctx, pkt)
}

// ReserveWindow blocks until some of the peer's window is available,
// and then takes up to want bytes of it, never more than RemoteMaxPacket.
// It returns how many bytes were reserved.
// The caller must then send exactly that much channel data.
func (ch *Channel) ReserveWindow(ctx context.Context, want int) (int, error) {
	if want <= 0 {
		return 0, nil
	}

	for {
		if ch.state.Load() != StateOpen {
			// Pass the wakeup on to the next waiting writer.
			ch.signalWindow()
			return 0, ErrChannelClosed
		}

		ch.wmu.Lock()

		if ch.remoteWindow > 0 {
			limit := ch.remoteMaxPacket
			if limit == 0 {
				limit = ch.remoteWindow
			}

			n := uint32(min(int64(want), math.MaxUint32))
			n = min(n, ch.remoteWindow, limit)

			ch.remoteWindow -= n
			more := ch.remoteWindow > 0
			ch.wmu.Unlock()

			if more {
				// Let the next writer in line see what is left.
				ch.signalWindow()
			}

			return int(n), nil
		}

		ch.wmu.Unlock()

		select {
		case <-ch.windowNotify:
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	}
}

func (ch *Channel) signalWindow() {
	select {
	case ch.windowNotify <- struct{}{}:
	default:
	}
}

func (ch *Channel) signalReceive() {
	select {
	case ch.notify <- struct{}{}:
	default:
	}
}

// WriteData sends data to the peer as SSH_MSG_CHANNEL_DATA,
// splitting it as the peer's window and maximum packet size require.
// It returns how many bytes were sent.
func (ch *Channel) WriteData(ctx context.Context, data []byte) (int, error) {
	var written int

	for len(data) > 0 {
		n, err := ch.ReserveWindow(ctx, len(data))
		if err != nil {
			return written, err
		}

		pkt, w := ch.newMessage(wire.MsgChannelData)
		w.AppendByteSlice(data[:n])

		if err := ch.SendPacket(ctx, pkt); err != nil {
			return written, err
		}

		data = data[n:]
		written += n
	}

	return written, nil
}

// Exec asks the peer to run cmd on this session channel, and waits for its answer.
func (ch *Channel) Exec(ctx context.Context, cmd string) error {
	return ch.request(ctx, requestExec, cmd)
}

// RequestSubsystem asks the peer to start the named subsystem on this session channel,
// such as "sftp", and waits for its answer.
func (ch *Channel) RequestSubsystem(ctx context.Context, name string) error {
	return ch.request(ctx, requestSubsystem, name)
}

// request sends a channel request with want-reply set,
// and expects the very next message on the channel to be the reply.
func (ch *Channel) request(ctx context.Context, request, arg string) error {
	pkt, w := ch.conn.rent()
	marshalChannelRequest(w, ch.RemoteID(), request, true, arg)

	if err := ch.SendPacket(ctx, pkt); err != nil {
		return err
	}

	reply, err := ch.ReceivePacket(ctx)
	if err != nil {
		return err
	}
	defer reply.Release()

	switch id := reply.MessageID(); id {
	case wire.MsgChannelSuccess:
		return nil
	case wire.MsgChannelFailure:
		return errors.Wrap(ErrRequestFailed, request)
	case wire.MsgChannelClose:
		return errors.Wrap(ErrChannelClosed, request)
	default:
		return &UnexpectedMessageError{
			Want: []wire.MessageID{wire.MsgChannelSuccess, wire.MsgChannelFailure},
			Got:  id,
		}
	}
}

func (ch *Channel) sendMessage(ctx context.Context, id wire.MessageID) error {
	pkt, _ := ch.newMessage(id)
	return ch.SendPacket(ctx, pkt)
}

// SendEOF tells the peer no more data will be sent on this channel.
func (ch *Channel) SendEOF(ctx context.Context) error {
	return ch.sendMessage(ctx, wire.MsgChannelEOF)
}

// SendChannelFailure answers a peer's channel request that wanted a reply.
func (ch *Channel) SendChannelFailure(ctx context.Context) error {
	return ch.sendMessage(ctx, wire.MsgChannelFailure)
}

// SendClose sends SSH_MSG_CHANNEL_CLOSE if it has not been sent yet,
// without waiting for the peer's close.
func (ch *Channel) SendClose(ctx context.Context) error {
	if err := ch.sendMessage(ctx, wire.MsgChannelClose); err != nil && !errors.Is(err, ErrChannelClosed) {
		return err
	}

	return nil
}

// Close sends SSH_MSG_CHANNEL_CLOSE if it has not been sent yet,
// and waits until the peer's close has been received or the connection has ended.
// Messages still queued remain available to ReceivePacket.
func (ch *Channel) Close(ctx context.Context) error {
	if err := ch.SendClose(ctx); err != nil {
		return err
	}

	return ch.closed.Wait(ctx, nil)
}

// abandon gives up on a channel whose open is still in flight, or has just completed.
func (ch *Channel) abandon() {
	if ch.state.CompareAndSwap(StateOpening, StateClosing) {
		// The receive loop closes it once confirmed, or forgets it once rejected.
		return
	}

	if err := ch.sendMessage(ch.conn.ctx, wire.MsgChannelClose); err != nil && !errors.Is(err, ErrChannelClosed) {
		ch.logger.Debug("closing abandoned channel", zap.Error(err))
	}
}

// The methods below are only called from the connection's receive loop.

func (ch *Channel) confirm(m openConfirmMsg) {
	ch.wmu.Lock()
	ch.remoteID = m.Sender
	ch.remoteWindow = m.Window
	ch.remoteMaxPacket = m.MaxPacket
	ch.wmu.Unlock()

	if ch.state.CompareAndSwap(StateOpening, StateOpen) {
		ch.logger.Debug("channel open", zap.Uint32("remote", m.Sender))
		ch.opened.Set()
		return
	}

	// Abandoned while the open was in flight.
	pkt, _ := ch.newMessage(wire.MsgChannelClose)
	if err := ch.conn.writePacket(ch.conn.ctx, pkt); err != nil {
		ch.logger.Debug("closing abandoned channel", zap.Error(err))
	}
}

func (ch *Channel) reject(err error) {
	ch.logger.Debug("channel open rejected", zap.Error(err))

	ch.state.Store(StateClosed)
	ch.openErr = err

	ch.mu.Lock()
	ch.closeErr = err
	ch.mu.Unlock()

	ch.opened.Set()
	ch.closed.Set()
}

func (ch *Channel) adjustRemote(n uint32) {
	ch.wmu.Lock()
	ch.remoteWindow = uint32(min(uint64(ch.remoteWindow)+uint64(n), math.MaxUint32))
	ch.wmu.Unlock()

	ch.signalWindow()
}

// deliverData queues a data message, after checking it against the local window.
// A peer that overruns the window has broken the protocol, which ends the connection.
func (ch *Channel) deliverData(pkt *wire.Packet, n uint32) error {
	ch.mu.Lock()

	if ch.closeErr != nil {
		ch.mu.Unlock()
		pkt.Release()
		return nil
	}

	if n > ch.conn.maxPacket || n > ch.localWindow {
		window := ch.localWindow
		ch.mu.Unlock()
		pkt.Release()

		return errors.Wrapf(ErrWindowExceeded, "channel %d: %d bytes with %d bytes of window", ch.localID, n, window)
	}

	ch.localWindow -= n
	ch.queue = append(ch.queue, inbound{pkt: pkt, n: n})
	ch.mu.Unlock()

	ch.signalReceive()
	return nil
}

func (ch *Channel) enqueue(pkt *wire.Packet) {
	ch.mu.Lock()

	if ch.closeErr != nil {
		ch.mu.Unlock()
		pkt.Release()
		return
	}

	ch.queue = append(ch.queue, inbound{pkt: pkt})
	ch.mu.Unlock()

	ch.signalReceive()
}

// remoteClose handles the peer's SSH_MSG_CHANNEL_CLOSE,
// answering it if this side has not sent its own close yet.
func (ch *Channel) remoteClose(pkt *wire.Packet) {
	switch ch.state.Swap(StateClosed) {
	case StateOpen:
		reply, _ := ch.newMessage(wire.MsgChannelClose)
		if err := ch.conn.writePacket(ch.conn.ctx, reply); err != nil {
			ch.logger.Debug("answering channel close", zap.Error(err))
		}

	case StateOpening:
		ch.openErr = ErrChannelClosed
		ch.opened.Set()
	}

	ch.logger.Debug("channel closed")

	ch.mu.Lock()
	if ch.closeErr == nil {
		ch.closeErr = ErrChannelClosed
		ch.queue = append(ch.queue, inbound{pkt: pkt})
	} else {
		pkt.Release()
	}
	ch.mu.Unlock()

	ch.signalReceive()
	ch.signalWindow()
	ch.closed.Set()
}

// fail ends the channel because the connection ended.
func (ch *Channel) fail(reason error) {
	if ch.state.Swap(StateClosed) == StateOpening {
		ch.openErr = reason
	}

	ch.mu.Lock()
	if ch.closeErr == nil {
		ch.closeErr = reason
	}
	ch.mu.Unlock()

	ch.signalReceive()
	ch.signalWindow()
	ch.opened.Set()
	ch.closed.Set()
}
