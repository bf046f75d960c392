package rf

import (
	"fmt"
	"sync"
	"time"

	"github.com/Martinelllo/smarthome-multi-platform-installer/internal/iohub"
	"github.com/Martinelllo/smarthome-multi-platform-installer/internal/logging"
)

var log = logging.WithComponent("rf")

// Handler receives a reassembled message, its originating address, and the
// number of frames the retransmit loop reports as lost, mirroring the
// callback signature RFClient.on_message registers against.
type Handler func(src Address, message []byte, lostPackages int)

// pin is the subset of iohub.GPIOHandle the link needs; send and listen
// share one physical line (send_gpio may equal read_gpio in the original),
// so the two directions are time-division multiplexed rather than run on
// separate pins.
type pin interface {
	ConfigureInput(pull iohub.Pull) error
	ConfigureOutput(initial bool) error
	Set(level bool)
	Get() bool
}

// Link is one device's half-duplex RF endpoint: a send/listen state machine
// bit-banged over a shared GPIO line, addressed by a 2-byte device address.
// Construct with NewLink; it starts listening immediately and keeps
// listening between SendMessage calls, mirroring RFClient's background
// __read_bit_stream thread.
type Link struct {
	pin  pin
	addr Address

	sendMu   sync.Mutex // serializes SendMessage calls and excludes the listener
	lastSend bool
	lastRead bool

	subsMu sync.Mutex
	subs   []Handler

	loopMu sync.Mutex // guards stop/wg against concurrent start/stop
	stop   chan struct{}
	wg     sync.WaitGroup
}

// NewLink wraps an already-claimed GPIO pin as an RF endpoint for addr and
// starts the background listener.
func NewLink(p pin, addr Address) *Link {
	l := &Link{pin: p, addr: addr}
	l.startListening()
	return l
}

// OnMessage registers a callback invoked for every reassembled inbound
// message, in registration order.
func (l *Link) OnMessage(h Handler) {
	l.subsMu.Lock()
	l.subs = append(l.subs, h)
	l.subsMu.Unlock()
}

func (l *Link) notify(src Address, message []byte, lost int) {
	l.subsMu.Lock()
	subs := append([]Handler(nil), l.subs...)
	l.subsMu.Unlock()
	for _, h := range subs {
		h(src, message, lost)
	}
}

// Close stops the background listener permanently. The caller is
// responsible for releasing the underlying pin via iohub afterward.
func (l *Link) Close() {
	l.stopListening()
}

func (l *Link) startListening() {
	l.loopMu.Lock()
	defer l.loopMu.Unlock()
	l.stop = make(chan struct{})
	l.wg.Add(1)
	go l.listenLoop(l.stop)
}

func (l *Link) stopListening() {
	l.loopMu.Lock()
	stop := l.stop
	l.loopMu.Unlock()
	if stop == nil {
		return
	}
	close(stop)
	l.wg.Wait()
}

// readBit decodes one differential bit: a level change since the last
// sample is a 1, a held level is a 0.
func (l *Link) readBit() byte {
	level := l.pin.Get()
	if level != l.lastRead {
		l.lastRead = level
		return 1
	}
	return 0
}

// sendFrame transmits one frame MSB-first, toggling the line on every 1 bit
// and holding it on every 0 bit.
func (l *Link) sendFrame(f Frame) {
	for _, b := range f.Bytes() {
		for i := 7; i >= 0; i-- {
			if (b>>i)&1 == 1 {
				l.lastSend = !l.lastSend
			}
			l.pin.Set(l.lastSend)
			time.Sleep(BitSendTime)
		}
	}
}

// waitForNextFrame samples bits until a valid frame addressed to this link
// appears or timeout elapses. ok is false only when stop fires mid-wait;
// a plain timeout with no frame returns (nil, true).
func (l *Link) waitForNextFrame(timeout time.Duration, stop <-chan struct{}) (*Frame, bool) {
	deadline := time.Now().Add(timeout)
	addrBytes := []byte{l.addr[0], l.addr[1]}
	bb := newBitBuffer(FrameBytes)
	for {
		select {
		case <-stop:
			return nil, false
		default:
		}
		bit := l.readBit()
		bb.append(bit)
		if bb.isFull() && bb.startsWith(addrBytes) {
			if f, err := ParseFrame(bb.bytes()); err == nil {
				return &f, true
			}
		}
		if time.Now().After(deadline) {
			return nil, true
		}
		time.Sleep(BitSendTime)
	}
}

// listenLoop is the background burst-reassembly state machine, mirroring
// RFClient.__read_bit_stream: collect frames until the line falls silent,
// ack what arrived, and on a complete message hand it to subscribers.
func (l *Link) listenLoop(stop chan struct{}) {
	defer l.wg.Done()
	var burst FrameList
	lost := 0

	for {
		if err := l.pin.ConfigureInput(iohub.PullDown); err != nil {
			log.WithError(err).Warn("rf: failed to switch to input mode")
		}
		frame, ok := l.waitForNextFrame(SilenceTime, stop)
		if !ok {
			return
		}
		if frame != nil {
			burst.Add(*frame)
			continue
		}
		if burst.Len() == 0 {
			continue
		}

		first := burst.Frames()[0]
		lost += int(first.Total) - burst.Len()

		var numberBytes []byte
		for _, n := range burst.Numbers() {
			numberBytes = append(numberBytes, byte(n>>8), byte(n))
		}
		ack := FrameListFromMessage(first.Src, l.addr, numberBytes, 0xFF)

		if err := l.pin.ConfigureOutput(l.lastSend); err != nil {
			log.WithError(err).Warn("rf: failed to switch to output mode")
		}
		if !burst.IsValidMessage() {
			for _, f := range ack.Frames() {
				l.sendFrame(f)
			}
			time.Sleep(SilenceTime)
			continue
		}

		// Send the ack three times over, so a sender that missed the first
		// copy still sees one before giving up and retransmitting.
		for i := 0; i < 3; i++ {
			for _, f := range ack.Frames() {
				l.sendFrame(f)
			}
		}
		message := burst.ToMessage()
		l.notify(first.Src, message, lost)
		time.Sleep(SilenceTime)

		burst = FrameList{}
		lost = 0
	}
}

// SendMessage fragments message into frames addressed to target, transmits
// them, and retries whatever the target's ack reports missing until either
// everything arrives or SendTimeout elapses. It returns the number of
// frames the target's acks reported missing, summed over every round whose
// ack arrived: a frame missing in two rounds counts twice, and a round with
// no ack adds nothing.
func (l *Link) SendMessage(target Address, message []byte) (lostPackages int, err error) {
	l.sendMu.Lock()
	defer l.sendMu.Unlock()

	l.stopListening()
	defer l.startListening()

	packages := FrameListFromMessage(target, l.addr, message, 0x00)
	lost := 0
	deadline := time.Now().Add(SendTimeout)

	for packages.Len() > 0 {
		if err := l.pin.ConfigureOutput(l.lastSend); err != nil {
			return 0, fmt.Errorf("rf: switch to output mode: %w", err)
		}
		for _, f := range packages.Frames() {
			l.sendFrame(f)
		}

		if err := l.pin.ConfigureInput(iohub.PullDown); err != nil {
			return 0, fmt.Errorf("rf: switch to input mode: %w", err)
		}
		time.Sleep(SilenceTime)

		var response FrameList
		for {
			frame, _ := l.waitForNextFrame(SilenceTime, nil)
			if frame == nil {
				break
			}
			response.Add(*frame)
		}

		if response.Len() > 0 {
			body := response.ToMessage()
			current := make(map[uint16]bool, packages.Len())
			for _, n := range packages.Numbers() {
				current[n] = true
			}
			var confirmed []uint16
			for i := 0; i+1 < len(body); i += 2 {
				n := uint16(body[i])<<8 | uint16(body[i+1])
				if n != 0xFFFF && current[n] {
					confirmed = append(confirmed, n)
				}
			}
			lost += packages.Len() - len(confirmed)
			for _, n := range confirmed {
				packages.Remove(n)
			}
		}

		if time.Now().After(deadline) {
			return 0, fmt.Errorf("rf: send to %v timed out after %s", target, SendTimeout)
		}
	}
	return lost, nil
}
