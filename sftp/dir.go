package sftp

import (
	"context"
	"io/fs"
	"path"
	"time"

	"github.com/sshmux/sshmux/encoding/ssh/filexfer"
)

// ReadDir lists the directory name: it opens it, reads entries until the server reports the end,
// and closes it again. Entries are returned in the order the server sent them,
// including "." and ".." if the server sends them.
func (cl *Client) ReadDir(ctx context.Context, name string) ([]*filexfer.NameEntry, error) {
	res, err := cl.send(ctx, opOpen, nil, &filexfer.OpenDirPacket{
		Path: name,
	})
	if err != nil {
		return nil, wrapPathError("opendir", name, err)
	}

	entries, err := cl.readDir(ctx, res.handle)

	// The handle is closed whatever happened to the listing.
	closeErr := cl.closeHandle(context.WithoutCancel(ctx), res.handle)

	if err != nil {
		return nil, wrapPathError("readdir", name, err)
	}

	if closeErr != nil {
		return nil, wrapPathError("close", name, closeErr)
	}

	return entries, nil
}

func (cl *Client) readDir(ctx context.Context, handle []byte) ([]*filexfer.NameEntry, error) {
	var entries []*filexfer.NameEntry

	for {
		res, err := cl.send(ctx, opReadDir, nil, &filexfer.ReadDirPacket{
			Handle: handle,
		})
		if err != nil {
			return nil, err
		}

		if res.eof {
			return entries, nil
		}

		entries = append(entries, res.entries...)
	}
}

// List returns the names of the entries of the directory name,
// in the order the server sent them, without "." and "..".
func (cl *Client) List(ctx context.Context, name string) ([]string, error) {
	entries, err := cl.ReadDir(ctx, name)
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.Filename == "." || e.Filename == ".." {
			continue
		}

		names = append(names, e.Filename)
	}

	return names, nil
}

// Stat returns a FileInfo describing the named file, following symbolic links.
func (cl *Client) Stat(ctx context.Context, name string) (fs.FileInfo, error) {
	res, err := cl.send(ctx, opStat, nil, &filexfer.StatPacket{
		Path: name,
	})
	if err != nil {
		return nil, wrapPathError("stat", name, err)
	}

	return newFileInfo(path.Base(name), &res.attrs), nil
}

// Lstat returns a FileInfo describing the named file, without following symbolic links.
func (cl *Client) Lstat(ctx context.Context, name string) (fs.FileInfo, error) {
	res, err := cl.send(ctx, opStat, nil, &filexfer.LStatPacket{
		Path: name,
	})
	if err != nil {
		return nil, wrapPathError("lstat", name, err)
	}

	return newFileInfo(path.Base(name), &res.attrs), nil
}

// fileInfo is an fs.FileInfo over SFTP attributes.
type fileInfo struct {
	name  string
	attrs filexfer.Attributes
}

func newFileInfo(name string, attrs *filexfer.Attributes) *fileInfo {
	return &fileInfo{
		name:  name,
		attrs: *attrs,
	}
}

func (fi *fileInfo) Name() string { return fi.name }

func (fi *fileInfo) Size() int64 { return int64(fi.attrs.Size) }

func (fi *fileInfo) Mode() fs.FileMode { return fi.attrs.FileMode() }

func (fi *fileInfo) ModTime() time.Time { return time.Unix(int64(fi.attrs.MTime), 0) }

func (fi *fileInfo) IsDir() bool { return fi.Mode().IsDir() }

// Sys returns the *filexfer.Attributes the server sent.
func (fi *fileInfo) Sys() any { return &fi.attrs }
