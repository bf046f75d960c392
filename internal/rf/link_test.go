package rf

import (
	"testing"

	"github.com/Martinelllo/smarthome-multi-platform-installer/internal/iohub"
)

// recorderPin records every level written via Set/ConfigureOutput; Get is
// unused by these tests.
type recorderPin struct {
	levels []bool
}

func (p *recorderPin) ConfigureInput(iohub.Pull) error { return nil }
func (p *recorderPin) ConfigureOutput(initial bool) error {
	p.levels = append(p.levels, initial)
	return nil
}
func (p *recorderPin) Set(level bool) { p.levels = append(p.levels, level) }
func (p *recorderPin) Get() bool      { return false }

// scriptedPin replays a precomputed sequence of line levels on successive
// Get calls; Set and ConfigureOutput/Input are no-ops.
type scriptedPin struct {
	levels []bool
	idx    int
}

func (p *scriptedPin) ConfigureInput(iohub.Pull) error  { return nil }
func (p *scriptedPin) ConfigureOutput(bool) error        { return nil }
func (p *scriptedPin) Set(bool)                          {}
func (p *scriptedPin) Get() bool {
	if p.idx >= len(p.levels) {
		if len(p.levels) == 0 {
			return false
		}
		return p.levels[len(p.levels)-1]
	}
	v := p.levels[p.idx]
	p.idx++
	return v
}

// encodeLevels reproduces the differential line encoding sendFrame writes:
// a 1 bit toggles the line, a 0 bit holds it, starting from level false.
func encodeLevels(data []byte) []bool {
	level := false
	out := make([]bool, 0, len(data)*8)
	for _, b := range data {
		for i := 7; i >= 0; i-- {
			if (b>>uint(i))&1 == 1 {
				level = !level
			}
			out = append(out, level)
		}
	}
	return out
}

// decodeLevels reverses encodeLevels, reconstructing the original bytes
// from a sequence of line levels sampled starting from level false.
func decodeLevels(levels []bool) []byte {
	prev := false
	bits := make([]byte, len(levels))
	for i, lv := range levels {
		if lv != prev {
			bits[i] = 1
		}
		prev = lv
	}
	out := make([]byte, (len(bits)+7)/8)
	for i, bit := range bits {
		if bit == 1 {
			out[i/8] |= 1 << uint(7-(i%8))
		}
	}
	return out
}

func TestSendFrameEncodesDifferentialBits(t *testing.T) {
	rec := &recorderPin{}
	l := &Link{pin: rec, addr: AddressFromUint16(1)}

	f := NewFrame(AddressFromUint16(1111), AddressFromUint16(2222), 4, 1, []byte("testbody"))
	l.sendFrame(f)

	want := f.Bytes()
	got := decodeLevels(rec.levels)
	if len(got) != len(want) {
		t.Fatalf("decoded %d bytes, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("byte %d: decoded %08b, want %08b", i, got[i], want[i])
		}
	}
}

func TestReadBitDecodesLineTransitions(t *testing.T) {
	script := &scriptedPin{levels: []bool{false, true, true, false, false, false, true}}
	l := &Link{pin: script, addr: AddressFromUint16(1)}

	want := []byte{0, 1, 0, 1, 0, 0, 1}
	for i, w := range want {
		if got := l.readBit(); got != w {
			t.Fatalf("bit %d: got %d want %d", i, got, w)
		}
	}
}

func TestWaitForNextFrameRecognizesAddressedFrame(t *testing.T) {
	me := AddressFromUint16(5678)
	f := NewFrame(me, AddressFromUint16(1234), 1, 0, []byte("payload!"))
	levels := encodeLevels(f.Bytes())

	script := &scriptedPin{levels: levels}
	l := &Link{pin: script, addr: me}

	got, ok := l.waitForNextFrame(2*SilenceTime, nil)
	if !ok {
		t.Fatalf("expected waitForNextFrame to complete without stop signal")
	}
	if got == nil {
		t.Fatalf("expected a frame to be recognized, got nil")
	}
	if got.Src != f.Src || got.Number != f.Number || got.Total != f.Total {
		t.Fatalf("decoded frame mismatch: got %+v want %+v", got, f)
	}
}

func TestWaitForNextFrameIgnoresFrameForOtherAddress(t *testing.T) {
	other := AddressFromUint16(9999)
	f := NewFrame(other, AddressFromUint16(1234), 1, 0, []byte("payload!"))
	levels := encodeLevels(f.Bytes())

	script := &scriptedPin{levels: levels}
	l := &Link{pin: script, addr: AddressFromUint16(5678)}

	got, ok := l.waitForNextFrame(5*BitSendTime*8*17, nil)
	if !ok {
		t.Fatalf("expected waitForNextFrame to complete without stop signal")
	}
	if got != nil {
		t.Fatalf("expected no frame to match a different target address, got %+v", got)
	}
}

func TestWaitForNextFrameHonorsStopSignal(t *testing.T) {
	l := &Link{pin: &scriptedPin{}, addr: AddressFromUint16(1)}
	stop := make(chan struct{})
	close(stop)

	_, ok := l.waitForNextFrame(SilenceTime, stop)
	if ok {
		t.Fatalf("expected stop signal to short-circuit the wait")
	}
}
