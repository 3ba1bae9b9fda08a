package sshmux

import (
	"fmt"

	"github.com/pkg/errors"

	"github.com/sshmux/sshmux/encoding/ssh/wire"
)

// Channel and connection errors.
var (
	// ErrChannelClosed is returned when sending on a channel for which a close has been sent or received.
	ErrChannelClosed = errors.New("sshmux: channel closed")

	// ErrConnClosed is matched by every error that reports the end of the connection.
	ErrConnClosed = errors.New("sshmux: connection closed")

	// ErrRequestFailed is returned when the peer answers a channel request with SSH_MSG_CHANNEL_FAILURE.
	ErrRequestFailed = errors.New("sshmux: channel request failed")

	// ErrWindowExceeded is returned when the peer sends more data than the window it was granted.
	ErrWindowExceeded = errors.New("sshmux: peer exceeded channel window")
)

// ConnError reports that the connection carrying a channel has ended.
// It matches ErrConnClosed through errors.Is.
type ConnError struct {
	// Err is why the connection ended.
	// It is nil if the connection was closed locally.
	Err error
}

func (e *ConnError) Error() string {
	if e.Err == nil {
		return ErrConnClosed.Error()
	}

	return fmt.Sprintf("%s: %v", ErrConnClosed, e.Err)
}

// Unwrap returns the reason the connection ended.
func (e *ConnError) Unwrap() error {
	return e.Err
}

// Is reports whether target is ErrConnClosed.
func (e *ConnError) Is(target error) bool {
	return target == ErrConnClosed
}

// UnexpectedMessageError reports a message that is not valid at this point of the protocol.
type UnexpectedMessageError struct {
	Want []wire.MessageID
	Got  wire.MessageID
}

func (e *UnexpectedMessageError) Error() string {
	return fmt.Sprintf("sshmux: unexpected message %v, expected one of %v", e.Got, e.Want)
}
