// Package iohub is the process-wide broker for GPIO, I2C and SPI handles,
// grounded on the teacher's ResourceRegistry
// (services/hal/internal/core/resources.go): a claim/release ledger over a
// small set of shared bus singletons, generalized here from the teacher's
// PWM/GPIO-only function set to also cover I2C and SPI bus ownership per
// §4.A. Each bus/pin handle is created lazily on first claim and shared
// until its owner releases it or Shutdown tears everything down in reverse
// init order.
package iohub

import (
	"sync"

	"github.com/Martinelllo/smarthome-multi-platform-installer/internal/errs"
	"github.com/Martinelllo/smarthome-multi-platform-installer/internal/logging"
	"github.com/Martinelllo/smarthome-multi-platform-installer/internal/pinmap"
)

var log = logging.WithComponent("iohub")

// Pull mirrors the teacher's GPIO pull-resistor enum.
type Pull uint8

const (
	PullNone Pull = iota
	PullUp
	PullDown
)

// PinFunc narrows a claimed physical pin to one function. Ownership is
// tracked per owner id, not per function: claiming a pin that a different
// owner holds is a §3 ownership violation and fails with IoInit.
type PinFunc uint8

const (
	FuncGPIOIn PinFunc = iota
	FuncGPIOOut
	FuncPWM
)

// EdgeKind selects which transitions a GPIOEdges subscription reports.
type EdgeKind uint8

const (
	EdgeRising EdgeKind = iota
	EdgeFalling
	EdgeBoth
)

// EdgeEvent is delivered on an unknown goroutine (the GPIO daemon's own
// callback thread per §5); handlers must only stash the timestamp/level and
// let tick() consume it, never block or raise from here.
type EdgeEvent struct {
	Level  bool
	AtNano int64
}

// GPIOHandle is a claimed, function-configured GPIO line.
type GPIOHandle interface {
	Number() int
	ConfigureInput(pull Pull) error
	ConfigureOutput(initial bool) error
	Set(level bool)
	Get() bool
}

// GPIOEdges is a live subscription to edge events on a claimed input pin.
// Errors is a monotonic count of internal faults the edge poller detected
// (e.g. a failed read of the line's value) bumped from its own goroutine
// per §9's "error counters are bumped instead of raising from the
// handler" rule; a caller samples the delta across a measurement window
// to tell "no edge arrived" from "the edge subsystem itself is broken".
type GPIOEdges interface {
	Events() <-chan EdgeEvent
	Errors() uint64
	Close()
}

// PWMHandle drives a software PWM channel on a claimed pin, mirroring
// pigpio's set_PWM_frequency/set_PWM_dutycycle pair used by the original
// pwm_control_module.py.
type PWMHandle interface {
	SetFrequency(hz uint32) error
	SetDutyCycle(pct uint8) error // 0..100
}

// I2CHandle is the shared I2C-1 bus singleton.
type I2CHandle interface {
	Tx(addr uint16, w, r []byte) error
}

// SPIHandle is a shared SPI bus singleton, addressed by chip-select.
type SPIHandle interface {
	Tx(w, r []byte) error
}

// backend is implemented once per platform (linux_*.go, sim.go); the Hub
// itself only tracks ownership and delegates the actual I/O.
type backend interface {
	openGPIO(gpioNum int) (GPIOHandle, error)
	openGPIOEdges(gpioNum int, edge EdgeKind) (GPIOEdges, error)
	openPWM(gpioNum int) (PWMHandle, error)
	openI2C() (I2CHandle, error)
	openSPI(bus int) (SPIHandle, error)
	close()
}

// Hub is the process-wide broker named in §4.A. Construct one with New and
// share it by reference with every component that touches hardware.
type Hub struct {
	mu    sync.Mutex
	pins  *pinmap.Map
	be    backend
	owner map[int]string // physical pin -> owning module id

	i2c      I2CHandle
	i2cErr   error
	spi      map[int]SPIHandle
	gpioOpen map[int]GPIOHandle
}

// New constructs a Hub bound to the given pin map, selecting the real
// hardware backend on Linux targets and falling back to an in-memory
// simulation everywhere else (and on a Linux host missing the device
// nodes), per §4.A's expansion clause.
func New(pins *pinmap.Map) *Hub {
	return &Hub{
		pins:     pins,
		be:       newPlatformBackend(),
		owner:    make(map[int]string),
		spi:      make(map[int]SPIHandle),
		gpioOpen: make(map[int]GPIOHandle),
	}
}

// claim records physical-pin ownership, enforcing the §3 "at most one
// Module per pin" invariant.
func (h *Hub) claim(ownerID string, physicalPin int) (int, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if existing, ok := h.owner[physicalPin]; ok && existing != ownerID {
		return 0, errs.IoInit("pin-owned-by:" + existing)
	}
	gpioNum, err := h.pins.GPIO(physicalPin)
	if err != nil {
		return 0, err
	}
	h.owner[physicalPin] = ownerID
	return gpioNum, nil
}

// ClaimGPIO resolves physicalPin to a GPIO line and returns a handle
// configured for fn's direction. It is the caller's job to call
// ReleasePin when done (typically from on_destroy).
func (h *Hub) ClaimGPIO(ownerID string, physicalPin int, fn PinFunc) (GPIOHandle, error) {
	gpioNum, err := h.claim(ownerID, physicalPin)
	if err != nil {
		return nil, err
	}
	handle, err := h.be.openGPIO(gpioNum)
	if err != nil {
		h.releasePinLocked(physicalPin)
		return nil, errs.IoInit("gpio:" + err.Error())
	}
	switch fn {
	case FuncGPIOOut:
		if err := handle.ConfigureOutput(false); err != nil {
			return nil, errs.IoInit("gpio-out:" + err.Error())
		}
	default:
		if err := handle.ConfigureInput(PullNone); err != nil {
			return nil, errs.IoInit("gpio-in:" + err.Error())
		}
	}
	h.mu.Lock()
	h.gpioOpen[physicalPin] = handle
	h.mu.Unlock()
	return handle, nil
}

// ClaimGPIOEdges subscribes to edge events on an already-claimed input pin.
func (h *Hub) ClaimGPIOEdges(physicalPin int, edge EdgeKind) (GPIOEdges, error) {
	gpioNum, err := h.pins.GPIO(physicalPin)
	if err != nil {
		return nil, err
	}
	ev, err := h.be.openGPIOEdges(gpioNum, edge)
	if err != nil {
		return nil, errs.IoInit("gpio-edges:" + err.Error())
	}
	return ev, nil
}

// ClaimPWM resolves physicalPin to a GPIO line and returns a software PWM
// channel on it.
func (h *Hub) ClaimPWM(ownerID string, physicalPin int) (PWMHandle, error) {
	gpioNum, err := h.claim(ownerID, physicalPin)
	if err != nil {
		return nil, err
	}
	pwm, err := h.be.openPWM(gpioNum)
	if err != nil {
		h.releasePinLocked(physicalPin)
		return nil, errs.IoInit("pwm:" + err.Error())
	}
	return pwm, nil
}

// ReleasePin returns physicalPin to input mode and drops its ownership
// record, satisfying §8 property 2 (on_destroy releases every output pin).
func (h *Hub) ReleasePin(physicalPin int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if handle, ok := h.gpioOpen[physicalPin]; ok {
		_ = handle.ConfigureInput(PullNone)
		delete(h.gpioOpen, physicalPin)
	}
	h.releasePinLocked(physicalPin)
}

func (h *Hub) releasePinLocked(physicalPin int) {
	delete(h.owner, physicalPin)
}

// I2C returns the shared I2C-1 bus handle, opening it lazily on first call.
func (h *Hub) I2C() (I2CHandle, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.i2c != nil || h.i2cErr != nil {
		return h.i2c, h.i2cErr
	}
	h.i2c, h.i2cErr = h.be.openI2C()
	if h.i2cErr != nil {
		h.i2cErr = errs.IoInit("i2c:" + h.i2cErr.Error())
	}
	return h.i2c, h.i2cErr
}

// SPI returns the shared handle for the given SPI bus number, opening it
// lazily on first call.
func (h *Hub) SPI(bus int) (SPIHandle, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if s, ok := h.spi[bus]; ok {
		return s, nil
	}
	s, err := h.be.openSPI(bus)
	if err != nil {
		return nil, errs.IoInit("spi:" + err.Error())
	}
	h.spi[bus] = s
	return s, nil
}

// Shutdown releases every handle in reverse init order: SPI, then I2C,
// then the GPIO daemon connection itself.
func (h *Hub) Shutdown() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for pin, handle := range h.gpioOpen {
		_ = handle.ConfigureInput(PullNone)
		delete(h.gpioOpen, pin)
	}
	h.owner = make(map[int]string)
	h.spi = make(map[int]SPIHandle)
	h.i2c = nil
	h.be.close()
	log.Info("io hub shut down")
}
