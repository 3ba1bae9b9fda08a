package filexfer

import (
	"bytes"
	"testing"
)

var _ Packet = &StatPacket{}
var _ Packet = &LStatPacket{}

func TestPathPackets(t *testing.T) {
	const (
		id   = 42
		path = "/foo"
	)

	tests := []struct {
		p   Packet
		typ byte
	}{
		{&StatPacket{Path: path}, 17},
		{&LStatPacket{Path: path}, 7},
	}

	for _, tt := range tests {
		data := MarshalPacket(id, tt.p)

		want := []byte{
			0x00, 0x00, 0x00, 13,
			tt.typ,
			0x00, 0x00, 0x00, 42,
			0x00, 0x00, 0x00, 4, '/', 'f', 'o', 'o',
		}

		if !bytes.Equal(data, want) {
			t.Fatalf("MarshalPacket(%T) = %X, but wanted %X", tt.p, data, want)
		}

		var req RequestPacket

		if err := req.UnmarshalBinary(data[4:]); err != nil {
			t.Fatal("unexpected error:", err)
		}

		var got string
		switch p := req.Request.(type) {
		case *StatPacket:
			got = p.Path
		case *LStatPacket:
			got = p.Path
		default:
			t.Fatalf("UnmarshalBinary(): Request was %T", req.Request)
		}

		if got != path {
			t.Errorf("UnmarshalBinary(%T): Path was %q, but expected %q", tt.p, got, path)
		}
	}
}

var _ Packet = &AttrsPacket{}

func TestAttrsPacket(t *testing.T) {
	const id = 42

	p := &AttrsPacket{
		Attrs: Attributes{
			Flags:       AttrPermissions | AttrSize,
			Size:        5,
			Permissions: ModeDir | 0755,
		},
	}

	data := MarshalPacket(id, p)

	want := []byte{
		0x00, 0x00, 0x00, 21,
		105,
		0x00, 0x00, 0x00, 42,
		0x00, 0x00, 0x00, 0x05,
		0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x05,
		0x00, 0x00, 0x41, 0xed,
	}

	if !bytes.Equal(data, want) {
		t.Fatalf("MarshalPacket() = %X, but wanted %X", data, want)
	}

	var req RequestPacket

	if err := req.UnmarshalBinary(data[4:]); err != nil {
		t.Fatal("unexpected error:", err)
	}

	got, ok := req.Request.(*AttrsPacket)
	if !ok {
		t.Fatalf("UnmarshalBinary(): Request was %T, but expected *AttrsPacket", req.Request)
	}

	if !got.Attrs.IsDir() {
		t.Error("UnmarshalBinary(): Attrs.IsDir() was false")
	}

	if got.Attrs.Size != 5 {
		t.Errorf("UnmarshalBinary(): Attrs.Size was %d, but expected 5", got.Attrs.Size)
	}
}
