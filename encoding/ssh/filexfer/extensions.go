package filexfer

import (
	"github.com/sshmux/sshmux/encoding/ssh/wire"
)

// ExtensionPair defines the extension-pair type defined in draft-ietf-secsh-filexfer-13.
// This type is backwards-compatible with how draft-ietf-secsh-filexfer-02 defines extensions.
//
// Defined in: https://tools.ietf.org/html/draft-ietf-secsh-filexfer-13#section-4.2
type ExtensionPair struct {
	Name string
	Data string
}

// Len returns the number of bytes e would marshal into.
func (e *ExtensionPair) Len() int {
	return 4 + len(e.Name) + 4 + len(e.Data)
}

// MarshalInto marshals e onto the end of the given Buffer.
func (e *ExtensionPair) MarshalInto(buf *wire.Buffer) {
	buf.AppendString(e.Name)
	buf.AppendString(e.Data)
}

// UnmarshalFrom unmarshals an ExtensionPair from the given Buffer into e.
// The name must be valid UTF-8, the data is opaque.
func (e *ExtensionPair) UnmarshalFrom(buf *wire.Buffer) (err error) {
	if e.Name, err = buf.ConsumeUTF8String(); err != nil {
		return err
	}

	if e.Data, err = buf.ConsumeString(); err != nil {
		return err
	}

	return nil
}
