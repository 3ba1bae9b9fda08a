package sftp

import (
	"fmt"
	"sync/atomic"

	"github.com/pkg/errors"

	"github.com/sshmux/sshmux/encoding/ssh/filexfer"
	"github.com/sshmux/sshmux/encoding/ssh/wire"
)

// opKind selects how the response to a request is decoded.
type opKind uint8

const (
	opOpen    opKind = iota // SSH_FXP_OPEN, SSH_FXP_OPENDIR
	opRead                  // SSH_FXP_READ
	opClose                 // SSH_FXP_CLOSE
	opReadDir               // SSH_FXP_READDIR
	opStat                  // SSH_FXP_STAT, SSH_FXP_LSTAT
)

func (k opKind) String() string {
	switch k {
	case opOpen:
		return "open"
	case opRead:
		return "read"
	case opClose:
		return "close"
	case opReadDir:
		return "readdir"
	case opStat:
		return "stat"
	default:
		return fmt.Sprintf("opKind(%d)", uint8(k))
	}
}

// responseType is the packet type of a successful response, other than SSH_FXP_STATUS.
func (k opKind) responseType() filexfer.PacketType {
	switch k {
	case opOpen:
		return filexfer.PacketTypeHandle
	case opRead:
		return filexfer.PacketTypeData
	case opReadDir:
		return filexfer.PacketTypeName
	case opStat:
		return filexfer.PacketTypeAttrs
	default:
		return filexfer.PacketTypeStatus
	}
}

type result struct {
	handle  []byte
	n       int
	eof     bool
	entries []*filexfer.NameEntry
	attrs   filexfer.Attributes
	err     error
}

// operation is one outstanding request.
// It is owned by the pending table from registration until one response, or the teardown, resolves it.
type operation struct {
	kind  opKind
	reqid uint32

	// buf receives the data of a read.
	// The caller waiting on res owns it, and does not touch it until res resolves.
	buf []byte

	res      chan result
	resolved atomic.Bool
}

// resolve delivers the one result of the operation.
func (op *operation) resolve(res result) {
	if !op.resolved.CompareAndSwap(false, true) {
		panic(fmt.Sprintf("sftp: %v request %d resolved twice", op.kind, op.reqid))
	}

	op.res <- res
}

// handleResponse decodes the response fields, and resolves the operation with them.
// Nothing decoded aliases data once it returns.
func (op *operation) handleResponse(typ filexfer.PacketType, data *wire.Buffer) {
	op.resolve(op.decode(typ, data))
}

func (op *operation) decode(typ filexfer.PacketType, data *wire.Buffer) result {
	want := op.kind.responseType()

	if typ == filexfer.PacketTypeStatus {
		var status filexfer.StatusPacket
		if err := status.UnmarshalPacketBody(data); err != nil {
			return result{err: errors.Wrap(err, "sftp: decode status")}
		}

		switch status.StatusCode {
		case filexfer.StatusOK:
			if op.kind == opClose {
				return result{}
			}

		case filexfer.StatusEOF:
			if op.kind == opRead || op.kind == opReadDir {
				return result{eof: true}
			}
		}

		return result{err: statusToError(&status)}
	}

	if typ != want {
		return result{err: &UnexpectedPacketError{
			Want: []filexfer.PacketType{want, filexfer.PacketTypeStatus},
			Got:  typ,
		}}
	}

	var res result
	var err error

	switch op.kind {
	case opOpen:
		var p filexfer.HandlePacket
		err = p.UnmarshalPacketBody(data)
		res.handle = p.Handle

	case opRead:
		var p filexfer.DataPacket
		if err = p.UnmarshalPacketBody(data); err != nil {
			break
		}

		if len(p.Data) > len(op.buf) {
			err = errors.Errorf("sftp: server returned %d bytes for a read of %d bytes", len(p.Data), len(op.buf))
			break
		}

		res.n = copy(op.buf, p.Data)

	case opReadDir:
		var p filexfer.NamePacket
		err = p.UnmarshalPacketBody(data)
		res.entries = p.Entries

	case opStat:
		var p filexfer.AttrsPacket
		err = p.UnmarshalPacketBody(data)
		res.attrs = p.Attrs
	}

	if err == nil {
		err = data.ConsumeEnd()
	}

	if err != nil {
		return result{err: errors.Wrapf(err, "sftp: decode %v", typ)}
	}

	return res
}
