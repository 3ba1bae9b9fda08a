package sftp

import (
	"io"
	"io/fs"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"

	"github.com/sshmux/sshmux"
	"github.com/sshmux/sshmux/encoding/ssh/filexfer"
)

func TestClosedError(t *testing.T) {
	err := &ClosedError{Err: sshmux.ErrChannelClosed}

	assert.ErrorIs(t, err, ErrConnectionClosed)
	assert.ErrorIs(t, err, sshmux.ErrChannelClosed)
	assert.Equal(t, "sftp: connection closed: "+sshmux.ErrChannelClosed.Error(), err.Error())

	assert.Equal(t, ErrConnectionClosed.Error(), (&ClosedError{}).Error())
}

func TestStatusError(t *testing.T) {
	err := statusToError(&filexfer.StatusPacket{
		StatusCode:   filexfer.StatusPermissionDenied,
		ErrorMessage: "denied",
	})

	assert.ErrorIs(t, err, fs.ErrPermission)
	assert.ErrorIs(t, err, filexfer.StatusPermissionDenied)
	assert.NotErrorIs(t, err, fs.ErrNotExist)
	assert.Equal(t, "sftp: SSH_FX_PERMISSION_DENIED: denied", err.Error())
}

func TestWrapPathError(t *testing.T) {
	assert.NoError(t, wrapPathError("open", "/x", nil))
	assert.Equal(t, io.EOF, wrapPathError("read", "/x", errors.Wrap(io.EOF, "short")))

	err := wrapPathError("stat", "/x", ErrHandleClosed)

	var pathErr *fs.PathError
	assert.ErrorAs(t, err, &pathErr)
	assert.Equal(t, "stat", pathErr.Op)
	assert.ErrorIs(t, err, fs.ErrClosed)
}
