// Package dht implements the DHT module kind: a single-wire
// temperature/humidity sensor (DHT11/DHT22 family), bit-banged the same way
// internal/rf reads its half-duplex line — busy-polling the line level with
// wall-clock timestamps rather than relying on kernel edge IRQs, since the
// bit timings involved (tens of microseconds) are well inside what a Go
// goroutine can track without a dedicated driver. Grounded on
// original_source/hardware_modules/dht_module.py; the original delegates
// the actual protocol to an unretrieved custom_libs.dht_reader.DHTSensor, so
// the decode here follows the well-documented DHT11/DHT22 one-wire
// protocol directly (start pulse, sensor response, 40 data bits, 8-bit
// checksum) rather than translating unavailable source.
package dht

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/Martinelllo/smarthome-multi-platform-installer/internal/config"
	"github.com/Martinelllo/smarthome-multi-platform-installer/internal/hal"
	"github.com/Martinelllo/smarthome-multi-platform-installer/internal/iohub"
	"github.com/Martinelllo/smarthome-multi-platform-installer/internal/logging"
)

const Kind = "DHT"

var log = logging.WithComponent("hal.dht")

func init() {
	hal.RegisterBuilder(Kind, builder{})
}

type builder struct{}

func (builder) Build(in hal.BuildInput) (hal.Module, error) {
	physPin, ok := in.Config.Pin("PIN")
	if !ok {
		return nil, fmt.Errorf("dht: module %d missing PIN", in.Config.ID)
	}
	owner := fmt.Sprintf("%s:%d", Kind, in.Config.ID)
	handle, err := in.IO.ClaimGPIO(owner, int(physPin), iohub.FuncGPIOOut)
	if err != nil {
		return nil, err
	}
	handle.Set(true)
	return &module{
		cfg:      in.Config,
		store:    in.Store,
		io:       in.IO,
		physPin:  int(physPin),
		pin:      handle,
		interval: hal.NewIntervalGate(time.Duration(in.Config.IntervalMs) * time.Millisecond),
	}, nil
}

type storeAppender interface {
	Append(sensorID uint32, value float64, createdAtMs uint64) error
}

type module struct {
	cfg      config.ModuleConfig
	store    storeAppender
	io       *iohub.Hub
	physPin  int
	pin      iohub.GPIOHandle
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
	tempC, humidity, err := read(m.pin)
	if err != nil {
		log.WithError(err).WithField("module_id", m.cfg.ID).Warn("dht read failed")
		m.interval.Advance()
		return nil
	}
	for _, sensor := range m.cfg.Sensors {
		switch {
		case sensor.Is("Temperatur"):
			if err := m.store.Append(sensor.ID, round2(tempC), uint64(now.UnixMilli())); err != nil {
				log.WithError(err).Warn("dht: failed to buffer temperature reading")
			}
		case sensor.Is("Relative Luftfeuchtigkeit"):
			if err := m.store.Append(sensor.ID, round2(humidity), uint64(now.UnixMilli())); err != nil {
				log.WithError(err).Warn("dht: failed to buffer humidity reading")
			}
		}
	}
	m.interval.Advance()
	return nil
}

func (m *module) OnDestroy() {
	m.io.ReleasePin(m.physPin)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
