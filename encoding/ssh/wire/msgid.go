package wire

import (
	"fmt"
)

// MessageID is the message number carried in the first byte of every SSH packet payload.
type MessageID uint8

// Connection protocol message numbers.
//
// Defined in https://tools.ietf.org/html/rfc4254#section-9
const (
	MsgGlobalRequest       MessageID = 80
	MsgRequestSuccess      MessageID = 81
	MsgRequestFailure      MessageID = 82
	MsgChannelOpen         MessageID = 90
	MsgChannelOpenConfirm  MessageID = 91
	MsgChannelOpenFailure  MessageID = 92
	MsgChannelWindowAdjust MessageID = 93
	MsgChannelData         MessageID = 94
	MsgChannelExtendedData MessageID = 95
	MsgChannelEOF          MessageID = 96
	MsgChannelClose        MessageID = 97
	MsgChannelRequest      MessageID = 98
	MsgChannelSuccess      MessageID = 99
	MsgChannelFailure      MessageID = 100
)

// IsChannelScoped reports whether messages with this number begin with a recipient channel id.
func (id MessageID) IsChannelScoped() bool {
	return id >= MsgChannelOpenConfirm && id <= MsgChannelFailure
}

func (id MessageID) String() string {
	switch id {
	case MsgGlobalRequest:
		return "SSH_MSG_GLOBAL_REQUEST"
	case MsgRequestSuccess:
		return "SSH_MSG_REQUEST_SUCCESS"
	case MsgRequestFailure:
		return "SSH_MSG_REQUEST_FAILURE"
	case MsgChannelOpen:
		return "SSH_MSG_CHANNEL_OPEN"
	case MsgChannelOpenConfirm:
		return "SSH_MSG_CHANNEL_OPEN_CONFIRMATION"
	case MsgChannelOpenFailure:
		return "SSH_MSG_CHANNEL_OPEN_FAILURE"
	case MsgChannelWindowAdjust:
		return "SSH_MSG_CHANNEL_WINDOW_ADJUST"
	case MsgChannelData:
		return "SSH_MSG_CHANNEL_DATA"
	case MsgChannelExtendedData:
		return "SSH_MSG_CHANNEL_EXTENDED_DATA"
	case MsgChannelEOF:
		return "SSH_MSG_CHANNEL_EOF"
	case MsgChannelClose:
		return "SSH_MSG_CHANNEL_CLOSE"
	case MsgChannelRequest:
		return "SSH_MSG_CHANNEL_REQUEST"
	case MsgChannelSuccess:
		return "SSH_MSG_CHANNEL_SUCCESS"
	case MsgChannelFailure:
		return "SSH_MSG_CHANNEL_FAILURE"
	default:
		return fmt.Sprintf("SSH_MSG_UNKNOWN(%d)", uint8(id))
	}
}
