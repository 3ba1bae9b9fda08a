package sftp

import (
	"context"
	"io"
	"sync/atomic"

	"github.com/pkg/errors"
	"github.com/spf13/afero"
	"golang.org/x/sync/errgroup"

	"github.com/sshmux/sshmux/encoding/ssh/filexfer"
)

// Download copies the remote file into the file local of dst, creating or truncating it.
// It returns the number of bytes copied.
//
// When the server reports the size of the file, chunks are read concurrently,
// up to the client's inflight limit. Otherwise the file is read sequentially.
func (cl *Client) Download(ctx context.Context, remote string, dst afero.Fs, local string) (int64, error) {
	f, err := cl.Open(ctx, remote, filexfer.FlagRead)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	info, err := cl.Stat(ctx, remote)
	if err != nil {
		return 0, err
	}

	out, err := dst.Create(local)
	if err != nil {
		return 0, err
	}

	var written int64

	attrs := info.Sys().(*filexfer.Attributes)
	if attrs.Flags&filexfer.AttrSize != 0 {
		written, err = cl.downloadChunks(ctx, f, out, int64(attrs.Size))
	} else {
		written, err = cl.downloadSequential(ctx, f, out)
	}

	if closeErr := out.Close(); err == nil {
		err = closeErr
	}

	return written, err
}

func (cl *Client) downloadChunks(ctx context.Context, f *File, out io.WriterAt, size int64) (int64, error) {
	var written atomic.Int64

	chunk := int64(cl.maxDataLen)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(cl.maxInflight)

	for off := int64(0); off < size; off += chunk {
		g.Go(func() error {
			b := make([]byte, min(chunk, size-off))

			n, err := f.ReadAtContext(gctx, b, off)
			if err != nil && !errors.Is(err, io.EOF) {
				return err
			}

			n, err = out.WriteAt(b[:n], off)
			written.Add(int64(n))

			return err
		})
	}

	err := g.Wait()
	return written.Load(), err
}

func (cl *Client) downloadSequential(ctx context.Context, f *File, out io.Writer) (int64, error) {
	var written int64

	b := make([]byte, cl.maxDataLen)

	for {
		n, eof, err := f.Read(ctx, written, b)
		if err != nil {
			return written, err
		}

		if eof {
			return written, nil
		}

		n, err = out.Write(b[:n])
		written += int64(n)

		if err != nil {
			return written, err
		}
	}
}
