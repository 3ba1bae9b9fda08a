package sftp

import (
	"math"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/sshmux/sshmux/encoding/ssh/filexfer"
)

// maxPacketLengthOverhead is the room kept in a packet for the fields around the data of a read.
const maxPacketLengthOverhead = filexfer.DefaultMaxPacketLength - filexfer.DefaultMaxDataLength

// Defaults for the client options.
const (
	DefaultMaxInflight     = 64
	DefaultProtocolVersion = 3
)

// ClientOption specifies an option that can be set on a client.
type ClientOption func(*Client) error

// WithLogger sets the logger used by the client.
// By default, nothing is logged.
func WithLogger(logger *zap.Logger) ClientOption {
	return func(cl *Client) error {
		if logger == nil {
			return errors.New("sftp: logger cannot be nil")
		}

		cl.logger = logger
		return nil
	}
}

// WithMaxInflight sets the maximum number of requests outstanding at one time.
// Further requests wait until one completes.
//
// It will generate an error if one attempts to set it to a value less than one.
func WithMaxInflight(count int) ClientOption {
	return func(cl *Client) error {
		if count < 1 {
			return errors.Errorf("sftp: max inflight packets cannot be less than 1, was: %d", count)
		}

		cl.maxInflight = count
		return nil
	}
}

// WithMaxDataLength sets the maximum length of data that will be asked for in SSH_FXP_READ requests.
// This will also raise the maximum packet length to at least the data length plus the packet overhead.
//
// The maximum data length can only be increased;
// setting a value lower than the current one does nothing.
func WithMaxDataLength(length int) ClientOption {
	withPktLen := WithMaxPacketLength(length + maxPacketLengthOverhead)

	return func(cl *Client) error {
		if err := withPktLen(cl); err != nil {
			return err
		}

		// int64 keeps this test valid on 32-bit archs.
		if int64(length) > math.MaxUint32 {
			return errors.Errorf("sftp: max data length must fit in a uint32: %d", length)
		}

		cl.maxDataLen = max(cl.maxDataLen, length)
		return nil
	}
}

// WithMaxPacketLength sets the maximum length of a packet that the client will accept.
//
// The maximum packet length can only be increased;
// setting a value lower than the current one does nothing.
func WithMaxPacketLength(length int) ClientOption {
	return func(cl *Client) error {
		if int64(length) > math.MaxUint32 {
			return errors.Errorf("sftp: max packet length must fit in a uint32: %d", length)
		}

		if length < 0 {
			return nil
		}

		cl.maxPacket = max(cl.maxPacket, uint32(length))
		return nil
	}
}

// WithProtocolVersion sets the protocol version offered in SSH_FXP_INIT.
// The server may answer with a lower version, but not a higher one.
func WithProtocolVersion(version uint32) ClientOption {
	return func(cl *Client) error {
		if version < 1 {
			return errors.Errorf("sftp: invalid protocol version: %d", version)
		}

		cl.version = version
		return nil
	}
}
