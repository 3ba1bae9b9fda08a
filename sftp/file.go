package sftp

import (
	"context"
	"io"
	"io/fs"
	"sync/atomic"
	"weak"

	"github.com/pkg/errors"

	"github.com/sshmux/sshmux/encoding/ssh/filexfer"
)

type handle struct {
	value atomic.Pointer[[]byte]
}

func (h *handle) init(handle []byte) {
	h.value.Store(&handle)
}

func (h *handle) get() ([]byte, error) {
	p := h.value.Load()
	if p == nil {
		return nil, ErrHandleClosed
	}
	return *p, nil
}

// close invalidates the handle, and sends SSH_FXP_CLOSE for it.
func (h *handle) close(cl *Client) error {
	// The server forgets the handle on close whatever the outcome,
	// so it is invalidated locally first, and only one caller can get past the swap.
	handle := h.value.Swap(nil)
	if handle == nil {
		return ErrHandleClosed
	}

	// No caller context: the close must reach the server, or it leaks the handle.
	return cl.closeHandle(context.Background(), *handle)
}

func (cl *Client) closeHandle(ctx context.Context, handle []byte) error {
	_, err := cl.send(ctx, opClose, nil, &filexfer.ClosePacket{
		Handle: handle,
	})
	return err
}

// File is an open file on the server.
//
// A File does not keep its Client alive.
// Once the Client is closed, or garbage collected, every method fails.
//
// The methods of File are safe for concurrent use.
type File struct {
	cl     weak.Pointer[Client]
	name   string
	handle handle
}

// Open opens the named file with the given SSH_FXF_* flags, such as filexfer.FlagRead.
func (cl *Client) Open(ctx context.Context, name string, pflags uint32) (*File, error) {
	res, err := cl.send(ctx, opOpen, nil, &filexfer.OpenPacket{
		Filename: name,
		PFlags:   pflags,
	})
	if err != nil {
		return nil, wrapPathError("open", name, err)
	}

	f := &File{
		cl:   weak.Make(cl),
		name: name,
	}
	f.handle.init(res.handle)

	return f, nil
}

// client returns the Client of f, or why it can no longer be used.
func (f *File) client() (*Client, error) {
	cl := f.cl.Value()
	if cl == nil {
		return nil, &ClosedError{}
	}

	select {
	case <-cl.closed:
		return nil, cl.err
	default:
	}

	return cl, nil
}

func (f *File) wrapErr(op string, err error) error {
	return wrapPathError(op, f.name, err)
}

// Name returns the name of the file as presented to Open.
func (f *File) Name() string {
	return f.name
}

// Handle returns the opaque handle the server assigned to the file.
// It returns nil once the file is closed.
func (f *File) Handle() []byte {
	h, _ := f.handle.get()
	return h
}

// Read reads up to len(b) bytes from offset off into b, in one SSH_FXP_READ request.
// Reads are capped at the client's maximum data length.
//
// Reading at or past the end of the file returns 0 and eof set, not an error.
// The server may return fewer bytes than asked for, even before the end of the file.
func (f *File) Read(ctx context.Context, off int64, b []byte) (n int, eof bool, err error) {
	cl, err := f.client()
	if err != nil {
		return 0, false, f.wrapErr("read", err)
	}

	h, err := f.handle.get()
	if err != nil {
		return 0, false, f.wrapErr("read", err)
	}

	if off < 0 {
		return 0, false, f.wrapErr("read", errors.Wrapf(fs.ErrInvalid, "negative offset %d", off))
	}

	if len(b) == 0 {
		return 0, false, nil
	}

	if len(b) > cl.maxDataLen {
		b = b[:cl.maxDataLen]
	}

	res, err := cl.send(ctx, opRead, b, &filexfer.ReadPacket{
		Handle: h,
		Offset: uint64(off),
		Length: uint32(len(b)),
	})
	if err != nil {
		return 0, false, f.wrapErr("read", err)
	}

	return res.n, res.eof, nil
}

// ReadAtContext reads len(b) bytes from offset off, issuing as many reads as it takes.
// It returns io.EOF if the end of the file is reached first.
func (f *File) ReadAtContext(ctx context.Context, b []byte, off int64) (int, error) {
	var read int

	for read < len(b) {
		n, eof, err := f.Read(ctx, off+int64(read), b[read:])
		read += n

		if err != nil {
			return read, err
		}

		if eof {
			return read, io.EOF
		}
	}

	return read, nil
}

// ReadAt implements io.ReaderAt.
func (f *File) ReadAt(b []byte, off int64) (int, error) {
	return f.ReadAtContext(context.Background(), b, off)
}

// Close closes the file, and waits for the server to confirm it.
// Any later use of f returns ErrHandleClosed.
func (f *File) Close() error {
	cl, err := f.client()
	if err != nil {
		if f.handle.value.Swap(nil) == nil {
			err = ErrHandleClosed
		}
		return f.wrapErr("close", err)
	}

	return f.wrapErr("close", f.handle.close(cl))
}
