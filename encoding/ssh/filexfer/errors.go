package filexfer

import (
	"github.com/pkg/errors"
)

// ErrInvalidLength is returned when the declared length of a packet disagrees with its contents.
var ErrInvalidLength = errors.New("sftp: invalid packet length")
