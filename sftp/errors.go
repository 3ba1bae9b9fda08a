package sftp

import (
	"fmt"
	"io"
	"io/fs"

	"github.com/pkg/errors"

	"github.com/sshmux/sshmux/encoding/ssh/filexfer"
)

var (
	// ErrConnectionClosed is matched by every error that reports the end of the SFTP session.
	ErrConnectionClosed = errors.New("sftp: connection closed")

	// ErrHandleClosed is returned when a File is used after it has been closed.
	// It is fs.ErrClosed, following the io/fs convention.
	ErrHandleClosed = fs.ErrClosed
)

// ClosedError reports that the SFTP session ended while, or before, a request was outstanding.
// It matches ErrConnectionClosed through errors.Is.
type ClosedError struct {
	// Err is why the session ended:
	// sshmux.ErrChannelClosed when the channel was closed,
	// an sshmux.ConnError when the connection failed,
	// a context error when the client was closed locally,
	// or the protocol error that made the packet stream unreadable.
	Err error
}

func (e *ClosedError) Error() string {
	if e.Err == nil {
		return ErrConnectionClosed.Error()
	}

	return fmt.Sprintf("%s: %v", ErrConnectionClosed, e.Err)
}

// Unwrap returns why the session ended.
func (e *ClosedError) Unwrap() error {
	return e.Err
}

// Is reports whether target is ErrConnectionClosed.
func (e *ClosedError) Is(target error) bool {
	return target == ErrConnectionClosed
}

// StatusError is a failure reported by the server in an SSH_FXP_STATUS packet.
//
// It unwraps to its filexfer.Status code,
// and matches fs.ErrNotExist and fs.ErrPermission for the corresponding codes.
type StatusError struct {
	Code    filexfer.Status
	Message string
	Lang    string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("sftp: %v", e.Code)
	}

	return fmt.Sprintf("sftp: %v: %s", e.Code, e.Message)
}

// Unwrap returns the status code.
func (e *StatusError) Unwrap() error {
	return e.Code
}

// Is maps status codes onto their io/fs equivalents.
func (e *StatusError) Is(target error) bool {
	switch e.Code {
	case filexfer.StatusNoSuchFile:
		return target == fs.ErrNotExist
	case filexfer.StatusPermissionDenied:
		return target == fs.ErrPermission
	}

	return false
}

func statusToError(status *filexfer.StatusPacket) error {
	return &StatusError{
		Code:    status.StatusCode,
		Message: status.ErrorMessage,
		Lang:    status.LanguageTag,
	}
}

// UnexpectedPacketError reports a response of a type the request does not allow.
type UnexpectedPacketError struct {
	Want []filexfer.PacketType
	Got  filexfer.PacketType
}

func (e *UnexpectedPacketError) Error() string {
	return fmt.Sprintf("sftp: unexpected packet type %v, expected one of %v", e.Got, e.Want)
}

func wrapPathError(op, path string, err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, io.EOF) {
		// Callers compare against io.EOF directly.
		return io.EOF
	}

	return &fs.PathError{Op: op, Path: path, Err: err}
}
