package sshmux

import (
	"math"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// Default channel sizing, used for every channel a Conn opens.
const (
	DefaultWindowSize      = 2 * 1024 * 1024
	DefaultMaxPacketSize   = 32 * 1024
	DefaultPacketPoolDepth = 64
)

// ConnOption specifies an option that can be set on a Conn.
type ConnOption func(*Conn) error

// WithLogger sets the logger used by the Conn and its channels.
// By default, nothing is logged.
func WithLogger(logger *zap.Logger) ConnOption {
	return func(c *Conn) error {
		if logger == nil {
			return errors.New("sshmux: logger cannot be nil")
		}

		c.logger = logger
		return nil
	}
}

// WithWindowSize sets the initial window each channel grants its peer.
//
// It will generate an error if one attempts to set it to a value less than the max packet size.
func WithWindowSize(size int) ConnOption {
	return func(c *Conn) error {
		if size < 1 || int64(size) > math.MaxUint32 {
			return errors.Errorf("sshmux: window size out of range: %d", size)
		}

		c.windowSize = uint32(size)
		return nil
	}
}

// WithMaxPacketSize sets the largest data payload each channel will accept from its peer.
func WithMaxPacketSize(size int) ConnOption {
	return func(c *Conn) error {
		if size < 1 || int64(size) > math.MaxUint32 {
			return errors.Errorf("sshmux: max packet size out of range: %d", size)
		}

		c.maxPacket = uint32(size)
		return nil
	}
}

// WithPacketPoolDepth sets how many packet buffers the Conn keeps around for reuse.
func WithPacketPoolDepth(depth int) ConnOption {
	return func(c *Conn) error {
		if depth < 0 {
			return errors.Errorf("sshmux: packet pool depth cannot be negative: %d", depth)
		}

		c.poolDepth = depth
		return nil
	}
}
