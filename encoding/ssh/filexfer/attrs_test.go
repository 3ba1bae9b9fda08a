package filexfer

import (
	"io/fs"
	"testing"

	"github.com/sshmux/sshmux/encoding/ssh/wire"
)

func TestAttributesAbsentFieldsAreZero(t *testing.T) {
	// flags = ACMODTIME only; nothing else may be read from the wire.
	buf := wire.NewBuffer([]byte{
		0x00, 0x00, 0x00, 0x08,
		0x00, 0x00, 0x00, 0x01,
		0x00, 0x00, 0x00, 0x02,
		0xAA, // belongs to whatever follows the attributes
	})

	a := Attributes{Size: 99, UID: 5}
	if err := a.UnmarshalFrom(buf); err != nil {
		t.Fatal("unexpected error:", err)
	}

	if a.Size != 0 || a.UID != 0 || a.GID != 0 || a.Permissions != 0 {
		t.Errorf("absent fields were not zeroed: %+v", a)
	}

	if a.ATime != 1 || a.MTime != 2 {
		t.Errorf("ATime, MTime = %d, %d, expected 1, 2", a.ATime, a.MTime)
	}

	if buf.Len() != 1 {
		t.Errorf("consumed too much: %d bytes left, expected 1", buf.Len())
	}
}

func TestAttributesExtended(t *testing.T) {
	in := Attributes{
		Flags:       AttrSize | AttrUIDGID | AttrPermissions | AttrACModTime | AttrExtended,
		Size:        1 << 40,
		UID:         1000,
		GID:         100,
		Permissions: ModeDir | 0755,
		ATime:       3,
		MTime:       4,
		ExtendedAttributes: []ExtendedAttribute{
			{Type: "foo@example.com", Data: "bar"},
		},
	}

	var buf wire.Buffer
	in.MarshalInto(&buf)

	var out Attributes
	if err := out.UnmarshalFrom(&buf); err != nil {
		t.Fatal("unexpected error:", err)
	}

	if err := buf.ConsumeEnd(); err != nil {
		t.Fatal("unexpected error:", err)
	}

	if out.Size != in.Size || out.UID != in.UID || out.GID != in.GID || out.MTime != in.MTime {
		t.Errorf("UnmarshalFrom() = %+v, expected %+v", out, in)
	}

	if len(out.ExtendedAttributes) != 1 || out.ExtendedAttributes[0] != in.ExtendedAttributes[0] {
		t.Errorf("ExtendedAttributes = %+v", out.ExtendedAttributes)
	}

	if !out.IsDir() {
		t.Error("IsDir() = false, expected true")
	}

	if mode := out.FileMode(); mode != fs.ModeDir|0755 {
		t.Errorf("FileMode() = %v, expected %v", mode, fs.ModeDir|0755)
	}
}

func TestAttributesTruncatedExtended(t *testing.T) {
	buf := wire.NewBuffer([]byte{
		0x80, 0x00, 0x00, 0x00,
		0x00, 0x00, 0x00, 0x01,
		0x00, 0x00, 0x00, 0x03, 'f', 'o', 'o',
	})

	var a Attributes
	if err := a.UnmarshalFrom(buf); err == nil {
		t.Fatal("expected an error for a truncated extended pair")
	}
}
