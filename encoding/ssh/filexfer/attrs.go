package filexfer

import (
	"github.com/sshmux/sshmux/encoding/ssh/wire"
)

// Attributes related flags.
const (
	AttrSize        = 1 << iota // SSH_FILEXFER_ATTR_SIZE
	AttrUIDGID                  // SSH_FILEXFER_ATTR_UIDGID
	AttrPermissions             // SSH_FILEXFER_ATTR_PERMISSIONS
	AttrACModTime               // SSH_FILEXFER_ACMODTIME

	AttrExtended = 1 << 31 // SSH_FILEXFER_ATTR_EXTENDED
)

// Attributes defines the file attributes type defined in draft-ietf-secsh-filexfer-02
//
// Fields not covered by Flags are zero.
//
// Defined in: https://tools.ietf.org/html/draft-ietf-secsh-filexfer-02#section-5
type Attributes struct {
	Flags uint32

	// AttrSize
	Size uint64

	// AttrUIDGID
	UID uint32
	GID uint32

	// AttrPermissions
	Permissions uint32

	// AttrACmodTime
	ATime uint32
	MTime uint32

	// AttrExtended
	ExtendedAttributes []ExtendedAttribute
}

// IsDir reports whether the permissions carry the directory file type bit.
func (a *Attributes) IsDir() bool {
	return a.Flags&AttrPermissions != 0 && a.Permissions&ModeType == ModeDir
}

// MarshalInto marshals a onto the end of the given Buffer.
func (a *Attributes) MarshalInto(buf *wire.Buffer) {
	buf.AppendUint32(a.Flags)

	if a.Flags&AttrSize != 0 {
		buf.AppendUint64(a.Size)
	}

	if a.Flags&AttrUIDGID != 0 {
		buf.AppendUint32(a.UID)
		buf.AppendUint32(a.GID)
	}

	if a.Flags&AttrPermissions != 0 {
		buf.AppendUint32(a.Permissions)
	}

	if a.Flags&AttrACModTime != 0 {
		buf.AppendUint32(a.ATime)
		buf.AppendUint32(a.MTime)
	}

	if a.Flags&AttrExtended != 0 {
		buf.AppendUint32(uint32(len(a.ExtendedAttributes)))

		for _, ext := range a.ExtendedAttributes {
			ext.MarshalInto(buf)
		}
	}
}

// UnmarshalFrom unmarshals an Attributes from the given Buffer into a.
// Only the fields named by the flags are read from the wire.
func (a *Attributes) UnmarshalFrom(buf *wire.Buffer) (err error) {
	*a = Attributes{}

	if a.Flags, err = buf.ConsumeUint32(); err != nil {
		return err
	}

	if a.Flags&AttrSize != 0 {
		if a.Size, err = buf.ConsumeUint64(); err != nil {
			return err
		}
	}

	if a.Flags&AttrUIDGID != 0 {
		if a.UID, err = buf.ConsumeUint32(); err != nil {
			return err
		}

		if a.GID, err = buf.ConsumeUint32(); err != nil {
			return err
		}
	}

	if a.Flags&AttrPermissions != 0 {
		if a.Permissions, err = buf.ConsumeUint32(); err != nil {
			return err
		}
	}

	if a.Flags&AttrACModTime != 0 {
		if a.ATime, err = buf.ConsumeUint32(); err != nil {
			return err
		}

		if a.MTime, err = buf.ConsumeUint32(); err != nil {
			return err
		}
	}

	if a.Flags&AttrExtended != 0 {
		count, err := buf.ConsumeUint32()
		if err != nil {
			return err
		}

		// Each pair takes at least eight bytes, which bounds a hostile count.
		if uint64(count)*8 > uint64(buf.Len()) {
			return wire.ErrShortPacket
		}

		a.ExtendedAttributes = make([]ExtendedAttribute, count)
		for i := range a.ExtendedAttributes {
			if err := a.ExtendedAttributes[i].UnmarshalFrom(buf); err != nil {
				return err
			}
		}
	}

	return nil
}

// ExtendedAttribute defines the extended file attribute type defined in draft-ietf-secsh-filexfer-02
//
// Defined in: https://tools.ietf.org/html/draft-ietf-secsh-filexfer-02#section-5
type ExtendedAttribute struct {
	Type string
	Data string
}

// MarshalInto marshals e onto the end of the given Buffer.
func (e *ExtendedAttribute) MarshalInto(buf *wire.Buffer) {
	buf.AppendString(e.Type)
	buf.AppendString(e.Data)
}

// UnmarshalFrom unmarshals an ExtendedAttribute from the given Buffer into e.
func (e *ExtendedAttribute) UnmarshalFrom(buf *wire.Buffer) (err error) {
	if e.Type, err = buf.ConsumeString(); err != nil {
		return err
	}

	if e.Data, err = buf.ConsumeString(); err != nil {
		return err
	}

	return nil
}

// NameEntry implements the SSH_FXP_NAME repeated data type from draft-ietf-secsh-filexfer-02
//
// This type is incompatible with versions 4 or higher.
type NameEntry struct {
	Filename string
	Longname string
	Attrs    Attributes
}

// MarshalInto marshals e onto the end of the given Buffer.
func (e *NameEntry) MarshalInto(buf *wire.Buffer) {
	buf.AppendString(e.Filename)
	buf.AppendString(e.Longname)

	e.Attrs.MarshalInto(buf)
}

// UnmarshalFrom unmarshals a NameEntry from the given Buffer into e.
func (e *NameEntry) UnmarshalFrom(buf *wire.Buffer) (err error) {
	if e.Filename, err = buf.ConsumeString(); err != nil {
		return err
	}

	if e.Longname, err = buf.ConsumeString(); err != nil {
		return err
	}

	return e.Attrs.UnmarshalFrom(buf)
}
