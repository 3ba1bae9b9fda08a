package sftp

import (
	"bytes"
	"context"
	"path"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"golang.org/x/crypto/ssh"

	"github.com/sshmux/sshmux"
	"github.com/sshmux/sshmux/encoding/ssh/filexfer"
	"github.com/sshmux/sshmux/encoding/ssh/wire"
)

// Channel messages as the server sees them, decoded with golang.org/x/crypto/ssh.

type openMsg struct {
	ChanType      string `sshtype:"90"`
	PeersID       uint32
	PeersWindow   uint32
	MaxPacketSize uint32
	TypeSpecific  []byte `ssh:"rest"`
}

type openConfirmMsg struct {
	PeersID       uint32 `sshtype:"91"`
	MyID          uint32
	MyWindow      uint32
	MaxPacketSize uint32
}

type dataMsg struct {
	PeersID uint32 `sshtype:"94"`
	Data    []byte
}

type closeMsg struct {
	PeersID uint32 `sshtype:"97"`
}

type channelRequestMsg struct {
	PeersID   uint32 `sshtype:"98"`
	Request   string
	WantReply bool
	Payload   []byte `ssh:"rest"`
}

type channelSuccessMsg struct {
	PeersID uint32 `sshtype:"99"`
}

type channelFailureMsg struct {
	PeersID uint32 `sshtype:"100"`
}

const (
	testTimeout = 5 * time.Second

	serverChannelID = 100

	// maxChannelData is the most data the server puts in one channel message,
	// the client's default max packet size.
	maxChannelData = sshmux.DefaultMaxPacketSize
)

func testContext(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
	t.Cleanup(cancel)
	return ctx
}

type outcome[T any] struct {
	v   T
	err error
}

// goDo runs fn in its own goroutine, and delivers its results on the returned channel.
func goDo[T any](fn func() (T, error)) <-chan outcome[T] {
	c := make(chan outcome[T], 1)

	go func() {
		v, err := fn()
		c <- outcome[T]{v, err}
	}()

	return c
}

// fakeServer plays the server end of an SSH connection running the sftp subsystem.
type fakeServer struct {
	t  *testing.T
	tr sshmux.Transport

	client uint32 // the client's channel id
	stream []byte
}

func versionPacket(version uint32, exts ...*filexfer.ExtensionPair) []byte {
	var buf wire.Buffer

	pkt := &filexfer.VersionPacket{
		Version:    version,
		Extensions: exts,
	}
	pkt.AppendTo(&buf)

	return buf.Bytes()
}

// dialClient connects a Client to a fakeServer, which answers the handshake with version.
// If the handshake is expected to fail, the server also answers the channel close that follows.
func dialClient(t *testing.T, version []byte, fail bool, opts ...ClientOption) (*Client, *fakeServer, error) {
	t.Helper()
	ctx := testContext(t)

	a, b := sshmux.NewPipe()

	conn, err := sshmux.NewConn(a, sshmux.WithLogger(zaptest.NewLogger(t)))
	require.NoError(t, err)

	srv := &fakeServer{t: t, tr: b}

	opts = append([]ClientOption{WithLogger(zaptest.NewLogger(t))}, opts...)

	res := goDo(func() (*Client, error) {
		return NewClient(ctx, conn, opts...)
	})

	var open openMsg
	srv.expect(&open)
	require.Equal(t, "session", open.ChanType)

	srv.client = open.PeersID
	srv.send(&openConfirmMsg{
		PeersID:       open.PeersID,
		MyID:          serverChannelID,
		MyWindow:      1 << 20,
		MaxPacketSize: 1 << 15,
	})

	var req channelRequestMsg
	srv.expect(&req)
	require.Equal(t, "subsystem", req.Request)
	require.True(t, req.WantReply)
	require.Equal(t, ssh.Marshal(struct{ Name string }{"sftp"}), req.Payload)

	srv.send(&channelSuccessMsg{PeersID: srv.client})

	data, err := srv.readPacketBytes(ctx)
	require.NoError(t, err)
	require.Equal(t, byte(filexfer.PacketTypeInit), data[0])

	var initPkt filexfer.InitPacket
	require.NoError(t, initPkt.UnmarshalPacketBody(wire.NewBuffer(data[1:])))
	require.Equal(t, uint32(3), initPkt.Version)

	require.NoError(t, srv.sendData(ctx, version))

	if fail {
		var cm closeMsg
		srv.expect(&cm)
		require.Equal(t, uint32(serverChannelID), cm.PeersID)

		srv.send(&closeMsg{PeersID: srv.client})
	}

	r := <-res

	t.Cleanup(func() {
		conn.Close()
		if r.v != nil {
			r.v.Close()
		}
	})

	return r.v, srv, r.err
}

func startClient(t *testing.T, exts ...*filexfer.ExtensionPair) (*Client, *fakeServer) {
	t.Helper()

	cl, srv, err := dialClient(t, versionPacket(3, exts...), false)
	require.NoError(t, err)

	return cl, srv
}

func (s *fakeServer) expect(msg any) {
	s.t.Helper()

	pkt, err := s.tr.ReadPacket(testContext(s.t))
	require.NoError(s.t, err)
	defer pkt.Release()

	require.NoError(s.t, ssh.Unmarshal(bytes.Clone(pkt.Payload()), msg))
}

func (s *fakeServer) send(msg any) {
	s.t.Helper()
	require.NoError(s.t, s.sendMsg(testContext(s.t), msg))
}

func (s *fakeServer) sendMsg(ctx context.Context, msg any) error {
	pkt, err := (*wire.Pool)(nil).RentPayload(ssh.Marshal(msg))
	if err != nil {
		return err
	}

	return s.tr.WritePacket(ctx, pkt)
}

// sendData sends data on the channel, split as the client's max packet size requires.
func (s *fakeServer) sendData(ctx context.Context, data []byte) error {
	for len(data) > 0 {
		n := min(len(data), maxChannelData)

		if err := s.sendMsg(ctx, &dataMsg{PeersID: s.client, Data: data[:n]}); err != nil {
			return err
		}

		data = data[n:]
	}

	return nil
}

// readPacketBytes returns the next SFTP packet the client sent, without its length.
// Channel messages other than data are skipped.
func (s *fakeServer) readPacketBytes(ctx context.Context) ([]byte, error) {
	for {
		data, rest, err := filexfer.SplitPacket(s.stream, 1<<20)
		if err != nil {
			return nil, err
		}

		if data != nil {
			data = bytes.Clone(data)
			s.stream = append(s.stream[:0], rest...)
			return data, nil
		}

		pkt, err := s.tr.ReadPacket(ctx)
		if err != nil {
			return nil, err
		}

		if pkt.MessageID() == wire.MsgChannelData {
			var m dataMsg
			if err := ssh.Unmarshal(pkt.Payload(), &m); err != nil {
				pkt.Release()
				return nil, err
			}

			s.stream = append(s.stream, m.Data...)
		}

		pkt.Release()
	}
}

func (s *fakeServer) readRequest(ctx context.Context) (*filexfer.RequestPacket, error) {
	data, err := s.readPacketBytes(ctx)
	if err != nil {
		return nil, err
	}

	req := new(filexfer.RequestPacket)
	if err := req.UnmarshalBinary(data); err != nil {
		return nil, err
	}

	return req, nil
}

// request returns the next request the client sent.
func (s *fakeServer) request() (uint32, filexfer.Packet) {
	s.t.Helper()

	req, err := s.readRequest(testContext(s.t))
	require.NoError(s.t, err)

	return req.RequestID, req.Request
}

func (s *fakeServer) reply(reqid uint32, p filexfer.Packet) {
	s.t.Helper()
	require.NoError(s.t, s.sendData(testContext(s.t), filexfer.MarshalPacket(reqid, p)))
}

func (s *fakeServer) replyStatus(reqid uint32, code filexfer.Status) {
	s.t.Helper()
	s.reply(reqid, &filexfer.StatusPacket{StatusCode: code, ErrorMessage: code.String()})
}

// memFS is an in-memory tree served by fakeServer.serve.
type memFS struct {
	files map[string]string
	dirs  map[string][]string
}

func (fsys *memFS) attrs(name string) (filexfer.Attributes, bool) {
	if content, ok := fsys.files[name]; ok {
		return filexfer.Attributes{
			Flags:       filexfer.AttrSize | filexfer.AttrPermissions | filexfer.AttrACModTime,
			Size:        uint64(len(content)),
			Permissions: filexfer.ModeRegular | 0644,
			MTime:       1700000000,
		}, true
	}

	if _, ok := fsys.dirs[name]; ok {
		return filexfer.Attributes{
			Flags:       filexfer.AttrPermissions,
			Permissions: filexfer.ModeDir | 0755,
		}, true
	}

	return filexfer.Attributes{}, false
}

// serve answers requests from fsys until the connection ends.
// It runs on its own goroutine, so it reports nothing through s.t.
func (s *fakeServer) serve(fsys *memFS) {
	ctx := context.Background()

	handles := make(map[string]string)
	listed := make(map[string]bool)
	next := 0

	newHandle := func(name string) []byte {
		next++
		h := string(rune('A'+next)) + name
		handles[h] = name
		return []byte(h)
	}

	status := func(code filexfer.Status) filexfer.Packet {
		return &filexfer.StatusPacket{StatusCode: code}
	}

	for {
		req, err := s.readRequest(ctx)
		if err != nil {
			return
		}

		var resp filexfer.Packet

		switch p := req.Request.(type) {
		case *filexfer.OpenPacket:
			resp = status(filexfer.StatusNoSuchFile)
			if _, ok := fsys.files[p.Filename]; ok {
				resp = &filexfer.HandlePacket{Handle: newHandle(p.Filename)}
			}

		case *filexfer.OpenDirPacket:
			resp = status(filexfer.StatusNoSuchFile)
			if _, ok := fsys.dirs[p.Path]; ok {
				resp = &filexfer.HandlePacket{Handle: newHandle(p.Path)}
			}

		case *filexfer.ReadPacket:
			content := fsys.files[handles[string(p.Handle)]]

			if p.Offset >= uint64(len(content)) {
				resp = status(filexfer.StatusEOF)
				break
			}

			end := min(p.Offset+uint64(p.Length), uint64(len(content)))
			resp = &filexfer.DataPacket{Data: []byte(content[p.Offset:end])}

		case *filexfer.ReadDirPacket:
			h := string(p.Handle)
			if listed[h] {
				resp = status(filexfer.StatusEOF)
				break
			}
			listed[h] = true

			dir := handles[h]
			dot, _ := fsys.attrs(dir)

			name := &filexfer.NamePacket{
				Entries: []*filexfer.NameEntry{
					{Filename: ".", Attrs: dot},
					{Filename: "..", Attrs: dot},
				},
			}

			for _, child := range fsys.dirs[dir] {
				attrs, _ := fsys.attrs(path.Join(dir, child))
				name.Entries = append(name.Entries, &filexfer.NameEntry{
					Filename: child,
					Longname: child,
					Attrs:    attrs,
				})
			}

			resp = name

		case *filexfer.ClosePacket:
			delete(handles, string(p.Handle))
			resp = status(filexfer.StatusOK)

		case *filexfer.StatPacket:
			resp = status(filexfer.StatusNoSuchFile)
			if attrs, ok := fsys.attrs(p.Path); ok {
				resp = &filexfer.AttrsPacket{Attrs: attrs}
			}

		case *filexfer.LStatPacket:
			resp = status(filexfer.StatusNoSuchFile)
			if attrs, ok := fsys.attrs(p.Path); ok {
				resp = &filexfer.AttrsPacket{Attrs: attrs}
			}

		default:
			resp = status(filexfer.StatusOPUnsupported)
		}

		if err := s.sendData(ctx, filexfer.MarshalPacket(req.RequestID, resp)); err != nil {
			return
		}
	}
}

// startServing runs s.serve until the test ends.
func (s *fakeServer) startServing(fsys *memFS) {
	done := make(chan struct{})

	go func() {
		defer close(done)
		s.serve(fsys)
	}()

	s.t.Cleanup(func() {
		s.tr.Close()
		<-done
	})
}
