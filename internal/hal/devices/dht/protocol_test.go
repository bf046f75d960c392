package dht

import "testing"

func TestDecodeValidFrame(t *testing.T) {
	// humidity 65.3% -> 653 -> 0x02,0x8D ; temp 23.4C -> 234 -> 0x00,0xEA
	data := [5]byte{0x02, 0x8D, 0x00, 0xEA, (0x02 + 0x8D + 0x00 + 0xEA) & 0xFF}
	temp, hum, err := decode(data)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if temp != 23.4 {
		t.Fatalf("expected temp 23.4, got %v", temp)
	}
	if hum != 65.3 {
		t.Fatalf("expected humidity 65.3, got %v", hum)
	}
}

func TestDecodeNegativeTemperature(t *testing.T) {
	data := [5]byte{0x01, 0x90, 0x80, 0x05, byte((0x01 + 0x90 + 0x80 + 0x05) & 0xFF)}
	temp, _, err := decode(data)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if temp != -0.5 {
		t.Fatalf("expected temp -0.5, got %v", temp)
	}
}

func TestDecodeChecksumMismatch(t *testing.T) {
	data := [5]byte{0x02, 0x8D, 0x00, 0xEA, 0x00}
	if _, _, err := decode(data); err != errChecksum {
		t.Fatalf("expected errChecksum, got %v", err)
	}
}

func TestPackBytesRoundTrips(t *testing.T) {
	want := [5]byte{0x02, 0x8D, 0x00, 0xEA, 0x6F}
	var bits [40]bool
	for i, b := range want {
		for bit := 0; bit < 8; bit++ {
			bits[i*8+bit] = b&(1<<uint(7-bit)) != 0
		}
	}
	got := packBytes(bits)
	if got != want {
		t.Fatalf("packBytes mismatch: got %v want %v", got, want)
	}
}
