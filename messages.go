package sshmux

import (
	"github.com/pkg/errors"
	"golang.org/x/crypto/ssh"

	"github.com/sshmux/sshmux/encoding/ssh/wire"
)

// Channel types.
const (
	chanTypeSession           = "session"
	chanTypeDirectTCPIP       = "direct-tcpip"
	chanTypeDirectStreamLocal = "direct-streamlocal@openssh.com"
)

// Channel request types.
const (
	requestExec      = "exec"
	requestSubsystem = "subsystem"
)

// channelOpen is the type-specific part of an SSH_MSG_CHANNEL_OPEN.
type channelOpen interface {
	chanType() string
	marshalInto(w *wire.Buffer)
}

type sessionOpen struct{}

func (sessionOpen) chanType() string { return chanTypeSession }

func (sessionOpen) marshalInto(*wire.Buffer) {}

// directTCPIPOpen asks the peer to connect to host:port on our behalf.
//
// Defined in https://tools.ietf.org/html/rfc4254#section-7.2
type directTCPIPOpen struct {
	Host       string
	Port       uint32
	OriginIP   string
	OriginPort uint32
}

func (directTCPIPOpen) chanType() string { return chanTypeDirectTCPIP }

func (m directTCPIPOpen) marshalInto(w *wire.Buffer) {
	w.AppendString(m.Host)
	w.AppendUint32(m.Port)
	w.AppendString(m.OriginIP)
	w.AppendUint32(m.OriginPort)
}

// directStreamLocalOpen asks the peer to connect to a unix domain socket on our behalf.
//
// Defined in OpenSSH PROTOCOL, section 2.4.
type directStreamLocalOpen struct {
	SocketPath string
}

func (directStreamLocalOpen) chanType() string { return chanTypeDirectStreamLocal }

func (m directStreamLocalOpen) marshalInto(w *wire.Buffer) {
	w.AppendString(m.SocketPath)
	w.AppendString("") // reserved
	w.AppendUint32(0)  // reserved
}

//	byte      SSH_MSG_CHANNEL_OPEN
//	string    channel type
//	uint32    sender channel
//	uint32    initial window size
//	uint32    maximum packet size
//	....      channel type specific data follows
func marshalChannelOpen(w *wire.Buffer, m channelOpen, sender, window, maxPacket uint32) {
	w.AppendMessageID(wire.MsgChannelOpen)
	w.AppendString(m.chanType())
	w.AppendUint32(sender)
	w.AppendUint32(window)
	w.AppendUint32(maxPacket)
	m.marshalInto(w)
}

// marshalChannelHeader writes the message number and recipient channel
// that begin every channel-scoped message.
func marshalChannelHeader(w *wire.Buffer, id wire.MessageID, recipient uint32) {
	w.AppendMessageID(id)
	w.AppendUint32(recipient)
}

//	byte      SSH_MSG_CHANNEL_REQUEST
//	uint32    recipient channel
//	string    request type
//	boolean   want reply
//	string    request specific argument
func marshalChannelRequest(w *wire.Buffer, recipient uint32, request string, wantReply bool, arg string) {
	marshalChannelHeader(w, wire.MsgChannelRequest, recipient)
	w.AppendString(request)
	w.AppendBool(wantReply)
	w.AppendString(arg)
}

//	byte      SSH_MSG_CHANNEL_OPEN_FAILURE
//	uint32    recipient channel
//	uint32    reason code
//	string    description
//	string    language tag
func marshalOpenFailure(w *wire.Buffer, recipient uint32, reason ssh.RejectionReason, msg string) {
	marshalChannelHeader(w, wire.MsgChannelOpenFailure, recipient)
	w.AppendUint32(uint32(reason))
	w.AppendString(msg)
	w.AppendString("")
}

// consumeHeader reads the message number and recipient channel of a channel-scoped message.
func consumeHeader(r *wire.Buffer) (wire.MessageID, uint32, error) {
	id, err := r.ConsumeMessageID()
	if err != nil {
		return 0, 0, err
	}

	recipient, err := r.ConsumeUint32()
	if err != nil {
		return 0, 0, err
	}

	return id, recipient, nil
}

type openConfirmMsg struct {
	Sender    uint32
	Window    uint32
	MaxPacket uint32
}

// parseOpenConfirm decodes the body of an SSH_MSG_CHANNEL_OPEN_CONFIRMATION,
// after the recipient channel.
// Channel type specific data may follow, and is ignored.
func parseOpenConfirm(r *wire.Buffer) (m openConfirmMsg, err error) {
	if m.Sender, err = r.ConsumeUint32(); err != nil {
		return m, err
	}

	if m.Window, err = r.ConsumeUint32(); err != nil {
		return m, err
	}

	if m.MaxPacket, err = r.ConsumeUint32(); err != nil {
		return m, err
	}

	return m, nil
}

// parseOpenFailure decodes the body of an SSH_MSG_CHANNEL_OPEN_FAILURE,
// after the recipient channel.
// The language tag is read and discarded. Trailing bytes are a protocol error.
func parseOpenFailure(r *wire.Buffer) (*ssh.OpenChannelError, error) {
	reason, err := r.ConsumeUint32()
	if err != nil {
		return nil, err
	}

	msg, err := r.ConsumeUTF8String()
	if err != nil {
		return nil, err
	}

	if err := r.SkipString(); err != nil {
		return nil, err
	}

	if err := r.ConsumeEnd(); err != nil {
		return nil, err
	}

	return &ssh.OpenChannelError{
		Reason:  ssh.RejectionReason(reason),
		Message: msg,
	}, nil
}

// dataLength returns the length of the data carried by an SSH_MSG_CHANNEL_DATA
// or SSH_MSG_CHANNEL_EXTENDED_DATA, after the recipient channel,
// and checks that the packet holds exactly that much data.
func dataLength(id wire.MessageID, r *wire.Buffer) (int, error) {
	if id == wire.MsgChannelExtendedData {
		if _, err := r.ConsumeUint32(); err != nil { // data type code
			return 0, err
		}
	}

	data, err := r.ConsumeByteSlice()
	if err != nil {
		return 0, err
	}

	if err := r.ConsumeEnd(); err != nil {
		return 0, err
	}

	return len(data), nil
}

// ParseData returns the data of an SSH_MSG_CHANNEL_DATA packet.
// The slice aliases pkt, and is only valid until it is released.
func ParseData(pkt *wire.Packet) ([]byte, error) {
	r := pkt.Reader()

	id, _, err := consumeHeader(r)
	if err != nil {
		return nil, err
	}

	if id != wire.MsgChannelData {
		return nil, &UnexpectedMessageError{
			Want: []wire.MessageID{wire.MsgChannelData},
			Got:  id,
		}
	}

	return r.ConsumeByteSlice()
}

type globalRequestMsg struct {
	Request   string
	WantReply bool
}

func parseGlobalRequest(r *wire.Buffer) (m globalRequestMsg, err error) {
	if _, err := r.ConsumeMessageID(); err != nil {
		return m, err
	}

	if m.Request, err = r.ConsumeString(); err != nil {
		return m, err
	}

	if m.WantReply, err = r.ConsumeBool(); err != nil {
		return m, err
	}

	return m, nil
}

type channelOpenRequestMsg struct {
	ChanType string
	Sender   uint32
}

func parseChannelOpenRequest(r *wire.Buffer) (m channelOpenRequestMsg, err error) {
	if _, err := r.ConsumeMessageID(); err != nil {
		return m, err
	}

	if m.ChanType, err = r.ConsumeString(); err != nil {
		return m, err
	}

	if m.Sender, err = r.ConsumeUint32(); err != nil {
		return m, err
	}

	return m, nil
}

// ChannelRequest is an SSH_MSG_CHANNEL_REQUEST sent by the peer, such as "exit-status".
type ChannelRequest struct {
	Type      string
	WantReply bool
	Payload   []byte
}

// ParseChannelRequest decodes an SSH_MSG_CHANNEL_REQUEST packet.
// The Payload aliases pkt, and is only valid until it is released.
func ParseChannelRequest(pkt *wire.Packet) (*ChannelRequest, error) {
	r := pkt.Reader()

	id, _, err := consumeHeader(r)
	if err != nil {
		return nil, err
	}

	if id != wire.MsgChannelRequest {
		return nil, &UnexpectedMessageError{
			Want: []wire.MessageID{wire.MsgChannelRequest},
			Got:  id,
		}
	}

	req := new(ChannelRequest)

	if req.Type, err = r.ConsumeString(); err != nil {
		return nil, errors.Wrap(err, "channel request type")
	}

	if req.WantReply, err = r.ConsumeBool(); err != nil {
		return nil, errors.Wrap(err, "channel request want reply")
	}

	req.Payload = r.Bytes()

	return req, nil
}
