package filexfer

import (
	"bytes"
	"errors"
	"testing"

	"github.com/sshmux/sshmux/encoding/ssh/wire"
)

func TestStatusPacket(t *testing.T) {
	data := MarshalPacket(9, &StatusPacket{
		StatusCode:   StatusEOF,
		ErrorMessage: "eof",
	})

	want := []byte{
		0x00, 0x00, 0x00, 20,
		101,
		0x00, 0x00, 0x00, 9,
		0x00, 0x00, 0x00, 1,
		0x00, 0x00, 0x00, 3, 'e', 'o', 'f',
		0x00, 0x00, 0x00, 0,
	}

	if !bytes.Equal(data, want) {
		t.Fatalf("MarshalPacket() = %X, but wanted %X", data, want)
	}

	var p StatusPacket
	if err := p.UnmarshalPacketBody(wire.NewBuffer(data[9:])); err != nil {
		t.Fatal("unexpected error:", err)
	}

	if p.StatusCode != StatusEOF || p.ErrorMessage != "eof" {
		t.Errorf("UnmarshalPacketBody() = %+v", p)
	}

	// version 2 servers send only the code.
	if err := p.UnmarshalPacketBody(wire.NewBuffer([]byte{0, 0, 0, 2})); err != nil {
		t.Fatal("unexpected error:", err)
	}

	if p.StatusCode != StatusNoSuchFile || p.ErrorMessage != "" {
		t.Errorf("UnmarshalPacketBody() = %+v", p)
	}
}

func TestNamePacket(t *testing.T) {
	in := &NamePacket{
		Entries: []*NameEntry{
			{
				Filename: "a",
				Longname: "-rw-r--r-- 1 u g 4 Jan 1 00:00 a",
				Attrs: Attributes{
					Flags: AttrSize | AttrPermissions,
					Size:  4,

					Permissions: ModeRegular | 0644,
				},
			},
			{
				Filename: "dir",
				Longname: "drwxr-xr-x 2 u g 0 Jan 1 00:00 dir",
			},
		},
	}

	data := MarshalPacket(3, in)

	var req RequestPacket
	if err := req.UnmarshalBinary(data[4:]); err != nil {
		t.Fatal("unexpected error:", err)
	}

	out := req.Request.(*NamePacket)
	if len(out.Entries) != 2 {
		t.Fatalf("UnmarshalBinary(): got %d entries, expected 2", len(out.Entries))
	}

	for i, e := range out.Entries {
		if e.Filename != in.Entries[i].Filename || e.Longname != in.Entries[i].Longname {
			t.Errorf("entry %d: got %q %q", i, e.Filename, e.Longname)
		}
	}

	if got := out.Entries[0].Attrs; got.Size != 4 || got.Permissions != ModeRegular|0644 || got.UID != 0 {
		t.Errorf("entry 0 attrs = %+v", got)
	}
}

func TestNamePacketHostileCount(t *testing.T) {
	var p NamePacket

	err := p.UnmarshalPacketBody(wire.NewBuffer([]byte{0xFF, 0xFF, 0xFF, 0xFF}))
	if !errors.Is(err, wire.ErrShortPacket) {
		t.Fatalf("UnmarshalPacketBody() = %v, expected %v", err, wire.ErrShortPacket)
	}
}
