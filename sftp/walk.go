package sftp

import (
	"context"
	"os"
	"path"

	"github.com/kr/fs"
)

// Walk returns a new Walker rooted at root.
// Every request it makes is bounded by ctx.
func (cl *Client) Walk(ctx context.Context, root string) *fs.Walker {
	return fs.WalkFS(root, &walkFS{ctx: ctx, cl: cl})
}

// walkFS adapts a Client to fs.FileSystem.
type walkFS struct {
	ctx context.Context
	cl  *Client
}

func (w *walkFS) ReadDir(dirname string) ([]os.FileInfo, error) {
	entries, err := w.cl.ReadDir(w.ctx, dirname)
	if err != nil {
		return nil, err
	}

	infos := make([]os.FileInfo, 0, len(entries))
	for _, e := range entries {
		if e.Filename == "." || e.Filename == ".." {
			continue
		}

		infos = append(infos, newFileInfo(e.Filename, &e.Attrs))
	}

	return infos, nil
}

func (w *walkFS) Lstat(name string) (os.FileInfo, error) {
	return w.cl.Lstat(w.ctx, name)
}

func (w *walkFS) Join(elem ...string) string {
	return path.Join(elem...)
}
