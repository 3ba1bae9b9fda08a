package filexfer

import (
	"errors"
	"testing"

	"github.com/sshmux/sshmux/encoding/ssh/wire"
)

func TestInitPacket(t *testing.T) {
	var buf wire.Buffer
	(&InitPacket{Version: 3}).AppendTo(&buf)

	want := []byte{0x00, 0x00, 0x00, 5, 1, 0x00, 0x00, 0x00, 3}
	if got := buf.Bytes(); string(got) != string(want) {
		t.Fatalf("AppendTo() = %X, but wanted %X", got, want)
	}
}

func TestVersionPacket(t *testing.T) {
	in := &VersionPacket{
		Version: 3,
		Extensions: []*ExtensionPair{
			{Name: "posix-rename@openssh.com", Data: "1"},
			{Name: "statvfs@openssh.com", Data: "2"},
		},
	}

	var buf wire.Buffer
	in.AppendTo(&buf)

	data := buf.Bytes()
	if data[4] != uint8(PacketTypeVersion) {
		t.Fatalf("type byte = %d, expected %d", data[4], PacketTypeVersion)
	}

	var out VersionPacket
	if err := out.UnmarshalPacketBody(wire.NewBuffer(data[5:])); err != nil {
		t.Fatal("unexpected error:", err)
	}

	if out.Version != 3 || len(out.Extensions) != 2 {
		t.Fatalf("UnmarshalPacketBody() = %+v", out)
	}

	for i, ext := range out.Extensions {
		if *ext != *in.Extensions[i] {
			t.Errorf("extension %d = %+v, expected %+v", i, ext, in.Extensions[i])
		}
	}
}

func TestExtensionPairBinaryData(t *testing.T) {
	var buf wire.Buffer
	(&ExtensionPair{Name: "hash@example.com", Data: "\xff\xfe\x00"}).MarshalInto(&buf)

	var ext ExtensionPair
	if err := ext.UnmarshalFrom(wire.NewBuffer(buf.Bytes())); err != nil {
		t.Fatal("unexpected error:", err)
	}

	if ext.Data != "\xff\xfe\x00" {
		t.Errorf("Data = %q, expected %q", ext.Data, "\xff\xfe\x00")
	}

	buf = wire.Buffer{}
	(&ExtensionPair{Name: "\xff", Data: "1"}).MarshalInto(&buf)

	if err := ext.UnmarshalFrom(wire.NewBuffer(buf.Bytes())); !errors.Is(err, wire.ErrInvalidUTF8) {
		t.Errorf("UnmarshalFrom() = %v, expected %v", err, wire.ErrInvalidUTF8)
	}
}

func TestVersionPacketInvalidLength(t *testing.T) {
	tests := []struct {
		name string
		body []byte
	}{
		{
			name: "truncated extension",
			body: []byte{0, 0, 0, 3, 0, 0, 0, 4, 'a', 'b'},
		},
		{
			name: "dangling bytes",
			body: []byte{0, 0, 0, 6, 0, 0},
		},
		{
			name: "extension data for version 2",
			body: []byte{0, 0, 0, 2, 0, 0, 0, 0, 0, 0, 0, 0},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var p VersionPacket

			err := p.UnmarshalPacketBody(wire.NewBuffer(tt.body))
			if !errors.Is(err, ErrInvalidLength) {
				t.Fatalf("UnmarshalPacketBody() = %v, expected %v", err, ErrInvalidLength)
			}
		})
	}
}

func TestVersionPacketInvalidUTF8(t *testing.T) {
	var p VersionPacket

	err := p.UnmarshalPacketBody(wire.NewBuffer([]byte{0, 0, 0, 3, 0, 0, 0, 1, 0xFF, 0, 0, 0, 0}))
	if !errors.Is(err, wire.ErrInvalidUTF8) {
		t.Fatalf("UnmarshalPacketBody() = %v, expected %v", err, wire.ErrInvalidUTF8)
	}
}
