// Package hcsr04 implements the HC-SR04 module kind: an ultrasonic
// distance sensor driven by a trigger pulse and timed via the echo pin's
// rising/falling edges. Grounded on
// original_source/hardware_modules/hc_sr04_module.py.
package hcsr04

import (
	"context"
	"fmt"
	"time"

	"github.com/Martinelllo/smarthome-multi-platform-installer/internal/config"
	"github.com/Martinelllo/smarthome-multi-platform-installer/internal/hal"
	"github.com/Martinelllo/smarthome-multi-platform-installer/internal/iohub"
	"github.com/Martinelllo/smarthome-multi-platform-installer/internal/logging"
)

const Kind = "HC-SR04"

// soundSpeedUsPerMm is the speed-of-sound factor the echo pulse width in
// microseconds is multiplied by (0.0343, the distance sound covers per
// microsecond in centimeters; the same factor as in the original).
const soundSpeedUsPerMm = 0.0343

// echoTimeout bounds a single round trip: a 4m max range gives roughly
// 23.3ms of round-trip time; the original sleeps a flat 150ms after
// triggering, which this mirrors as the maximum time to wait for an echo.
const echoTimeout = 150 * time.Millisecond

var log = logging.WithComponent("hal.hcsr04")

func init() {
	hal.RegisterBuilder(Kind, builder{})
}

type builder struct{}

func (builder) Build(in hal.BuildInput) (hal.Module, error) {
	trigPin, ok := in.Config.Pin("trigger_pin")
	if !ok {
		return nil, fmt.Errorf("hcsr04: module %d missing trigger_pin", in.Config.ID)
	}
	echoPin, ok := in.Config.Pin("echo_pin")
	if !ok {
		return nil, fmt.Errorf("hcsr04: module %d missing echo_pin", in.Config.ID)
	}
	owner := fmt.Sprintf("%s:%d", Kind, in.Config.ID)

	trigger, err := in.IO.ClaimGPIO(owner, int(trigPin), iohub.FuncGPIOOut)
	if err != nil {
		return nil, err
	}
	trigger.Set(true)

	if _, err := in.IO.ClaimGPIO(owner, int(echoPin), iohub.FuncGPIOIn); err != nil {
		return nil, err
	}
	edges, err := in.IO.ClaimGPIOEdges(int(echoPin), iohub.EdgeBoth)
	if err != nil {
		return nil, err
	}

	return &module{
		cfg:       in.Config,
		store:     in.Store,
		io:        in.IO,
		trigPhys:  int(trigPin),
		echoPhys:  int(echoPin),
		trigger:   trigger,
		echo:      edges,
		interval:  hal.NewIntervalGate(time.Duration(in.Config.IntervalMs) * time.Millisecond),
	}, nil
}

type storeAppender interface {
	Append(sensorID uint32, value float64, createdAtMs uint64) error
}

type module struct {
	cfg      config.ModuleConfig
	store    storeAppender
	io       *iohub.Hub
	trigPhys int
	echoPhys int
	trigger  iohub.GPIOHandle
	echo     iohub.GPIOEdges
	interval *hal.IntervalGate
}

func (m *module) Config() config.ModuleConfig { return m.cfg }

func (m *module) PatchConfig(n config.ModuleConfig) {
	m.cfg.Patch(n)
	m.interval.SetInterval(time.Duration(m.cfg.IntervalMs) * time.Millisecond)
}

func (m *module) Tick(ctx context.Context) error {
	now := time.Now()
	if !m.interval.Due(now) {
		return nil
	}
	if len(m.cfg.Sensors) == 0 {
		return nil
	}
	sensor := m.cfg.Sensors[0]

	echoUs, status := m.measure()
	m.interval.Advance()

	switch status {
	case measureEdgeFault:
		// §4.H: "If any edge handler observed an internal error, tick()
		// surfaces a fatal module error" - distinct from the plain
		// no-echo-within-timeout case below, which is not fatal.
		return fmt.Errorf("hcsr04: module %d: echo edge handler reported an internal error", m.cfg.ID)
	case measureNoEcho:
		return nil
	}

	distanceMm := float64(echoUs) * soundSpeedUsPerMm / 2
	if err := m.store.Append(sensor.ID, distanceMm, uint64(now.UnixMilli())); err != nil {
		log.WithError(err).WithField("module_id", m.cfg.ID).Warn("failed to buffer hc-sr04 reading")
	}
	return nil
}

// measureStatus classifies the outcome of one measure() call.
type measureStatus int

const (
	measureOK measureStatus = iota
	// measureNoEcho means no rising+falling pair arrived before
	// echoTimeout - the boundary case §8 requires to "produce no
	// reading and not raise".
	measureNoEcho
	// measureEdgeFault means the echo edge subscription itself failed
	// (its channel closed, or its error counter advanced) while waiting
	// for a pulse - a hardware/driver fault, not a missing echo.
	measureEdgeFault
)

// measure triggers one ping and returns the echo pulse width in
// microseconds alongside how the attempt concluded.
func (m *module) measure() (int64, measureStatus) {
	startErrs := m.echo.Errors()

	m.trigger.Set(false)
	time.Sleep(10 * time.Microsecond)
	m.trigger.Set(true)

	deadline := time.After(echoTimeout)
	var start int64
	haveStart := false
	for {
		select {
		case ev, chOk := <-m.echo.Events():
			if !chOk {
				return 0, measureEdgeFault
			}
			if m.echo.Errors() != startErrs {
				return 0, measureEdgeFault
			}
			if ev.Level {
				start = ev.AtNano
				haveStart = true
				continue
			}
			if haveStart {
				return (ev.AtNano - start) / 1000, measureOK
			}
		case <-deadline:
			if m.echo.Errors() != startErrs {
				return 0, measureEdgeFault
			}
			return 0, measureNoEcho
		}
	}
}

func (m *module) OnDestroy() {
	m.echo.Close()
	m.io.ReleasePin(m.trigPhys)
	m.io.ReleasePin(m.echoPhys)
}
