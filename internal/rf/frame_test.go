package rf

import (
	"bytes"
	"testing"
)

func TestFrameRoundTrip(t *testing.T) {
	f := NewFrame(AddressFromUint16(1234), AddressFromUint16(5678), 3, 1, []byte("hi there"))
	wire := f.Bytes()
	if len(wire) != FrameBytes {
		t.Fatalf("expected wire frame of %d bytes, got %d", FrameBytes, len(wire))
	}
	got, err := ParseFrame(wire)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if got.Target != f.Target || got.Src != f.Src || got.Total != f.Total || got.Number != f.Number {
		t.Fatalf("round-trip mismatch: got %+v want %+v", got, f)
	}
	if !bytes.Equal(got.Body[:], f.Body[:]) {
		t.Fatalf("body mismatch: got %v want %v", got.Body, f.Body)
	}
}

func TestParseFrameRejectsBadParity(t *testing.T) {
	f := NewFrame(AddressFromUint16(1), AddressFromUint16(2), 1, 0, []byte("12345678"))
	wire := f.Bytes()
	wire[len(wire)-1] ^= 0xFF
	if _, err := ParseFrame(wire); err == nil {
		t.Fatalf("expected parity mismatch to be rejected")
	}
}

func TestParseFrameRejectsWrongLength(t *testing.T) {
	if _, err := ParseFrame([]byte{1, 2, 3}); err == nil {
		t.Fatalf("expected short frame to be rejected")
	}
}

func TestFrameListFromMessageFragmentsAndPads(t *testing.T) {
	target, src := AddressFromUint16(1), AddressFromUint16(2)
	list := FrameListFromMessage(target, src, []byte("0123456789"), 0x00)
	if list.Len() != 2 {
		t.Fatalf("expected 2 frames for a 10-byte message, got %d", list.Len())
	}
	msg := list.ToMessage()
	if !bytes.Equal(msg[:10], []byte("0123456789")) {
		t.Fatalf("reassembled prefix mismatch: %q", msg[:10])
	}
	if msg[10] != 0x00 || msg[11] != 0x00 {
		t.Fatalf("expected zero padding on the final frame, got %v", msg[10:])
	}
}

func TestFrameListAddDeduplicatesByNumber(t *testing.T) {
	var l FrameList
	a := NewFrame(AddressFromUint16(1), AddressFromUint16(2), 2, 0, []byte("aaaaaaaa"))
	b := NewFrame(AddressFromUint16(1), AddressFromUint16(2), 2, 0, []byte("bbbbbbbb"))
	l.Add(a)
	l.Add(b)
	if l.Len() != 1 {
		t.Fatalf("expected duplicate frame number to be dropped, got %d frames", l.Len())
	}
	if !bytes.Equal(l.Frames()[0].Body[:], a.Body[:]) {
		t.Fatalf("expected the first-added frame to win")
	}
}

func TestFrameListIsValidMessage(t *testing.T) {
	target, src := AddressFromUint16(1), AddressFromUint16(2)
	complete := FrameListFromMessage(target, src, []byte("abcdefghij"), 0x00)
	if !complete.IsValidMessage() {
		t.Fatalf("expected a fully collected message to be valid")
	}

	var partial FrameList
	partial.Add(complete.Frames()[0])
	if partial.IsValidMessage() {
		t.Fatalf("expected a partial collection to be invalid")
	}

	var empty FrameList
	if empty.IsValidMessage() {
		t.Fatalf("expected an empty collection to be invalid")
	}
}

func TestFrameListRemove(t *testing.T) {
	target, src := AddressFromUint16(1), AddressFromUint16(2)
	list := FrameListFromMessage(target, src, []byte("0123456789abcdef"), 0x00)
	if list.Len() != 2 {
		t.Fatalf("setup: expected 2 frames, got %d", list.Len())
	}
	list.Remove(0)
	if list.Len() != 1 || list.Has(0) {
		t.Fatalf("expected frame 0 to be removed, got %d frames, has(0)=%v", list.Len(), list.Has(0))
	}
}

func TestAddressRoundTrip(t *testing.T) {
	a := AddressFromUint16(0xBEEF)
	if a.Uint16() != 0xBEEF {
		t.Fatalf("expected 0xBEEF round trip, got 0x%04X", a.Uint16())
	}
}

func TestBitBufferShiftsInBits(t *testing.T) {
	bb := newBitBuffer(1) // 8 bits
	for _, bit := range []byte{1, 0, 1, 0, 1, 0, 1, 1} {
		bb.append(bit)
	}
	if !bb.isFull() {
		t.Fatalf("expected buffer to report full after 8 bits for a 1-byte buffer")
	}
	want := byte(0b10101011)
	if bb.bytes()[0] != want {
		t.Fatalf("expected packed byte %08b, got %08b", want, bb.bytes()[0])
	}
}

func TestBitBufferStartsWith(t *testing.T) {
	bb := newBitBuffer(2)
	// first byte 0xAB, second byte 0xCD
	for _, b := range []byte{0xAB, 0xCD} {
		for i := 7; i >= 0; i-- {
			bb.append((b >> i) & 1)
		}
	}
	if !bb.startsWith([]byte{0xAB}) {
		t.Fatalf("expected buffer to start with 0xAB")
	}
	if bb.startsWith([]byte{0xFF}) {
		t.Fatalf("expected mismatched prefix to fail")
	}
}
