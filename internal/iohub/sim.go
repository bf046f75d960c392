package iohub

import (
	"sync"
	"sync/atomic"
)

// simBackend is an in-memory stand-in for the GPIO daemon/I2C/SPI buses,
// used on non-Linux builds and as the fallback when a Linux host has no
// /dev/gpiochip*, /dev/i2c-*, or /dev/spidev* nodes (e.g. CI, unit tests).
// It has no pack analog — small enough (plain maps/channels) that none was
// needed — and exists purely so the rest of the tree builds and is
// testable off a real board.
type simBackend struct{}

func newSimBackend() backend { return &simBackend{} }

func (b *simBackend) openGPIO(gpioNum int) (GPIOHandle, error) {
	return &simGPIO{num: gpioNum}, nil
}

func (b *simBackend) openGPIOEdges(gpioNum int, edge EdgeKind) (GPIOEdges, error) {
	return &simEdges{ch: make(chan EdgeEvent, 8)}, nil
}

// InjectEdgeError lets a test simulate a faulty edge read without wiring a
// real faulty backend; it's the sim-side hook for the §9 error-counter
// path.
func InjectEdgeError(e GPIOEdges) {
	if se, ok := e.(*simEdges); ok {
		se.errs.Add(1)
	}
}

func (b *simBackend) openPWM(gpioNum int) (PWMHandle, error) {
	return &simPWM{}, nil
}

func (b *simBackend) openI2C() (I2CHandle, error) {
	return &simI2C{}, nil
}

func (b *simBackend) openSPI(bus int) (SPIHandle, error) {
	return &simSPI{}, nil
}

func (b *simBackend) close() {}

type simGPIO struct {
	mu    sync.Mutex
	num   int
	level bool
}

func (g *simGPIO) Number() int                      { return g.num }
func (g *simGPIO) ConfigureInput(pull Pull) error   { return nil }
func (g *simGPIO) ConfigureOutput(initial bool) error {
	g.mu.Lock()
	g.level = initial
	g.mu.Unlock()
	return nil
}
func (g *simGPIO) Set(level bool) {
	g.mu.Lock()
	g.level = level
	g.mu.Unlock()
}
func (g *simGPIO) Get() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.level
}

type simEdges struct {
	ch   chan EdgeEvent
	errs atomic.Uint64
}

func (e *simEdges) Events() <-chan EdgeEvent { return e.ch }
func (e *simEdges) Errors() uint64           { return e.errs.Load() }
func (e *simEdges) Close()                   { close(e.ch) }

type simPWM struct {
	mu   sync.Mutex
	hz   uint32
	duty uint8
}

func (p *simPWM) SetFrequency(hz uint32) error {
	p.mu.Lock()
	p.hz = hz
	p.mu.Unlock()
	return nil
}

func (p *simPWM) SetDutyCycle(pct uint8) error {
	p.mu.Lock()
	p.duty = pct
	p.mu.Unlock()
	return nil
}

type simI2C struct{}

func (i *simI2C) Tx(addr uint16, w, r []byte) error { return nil }

type simSPI struct{}

func (s *simSPI) Tx(w, r []byte) error { return nil }
