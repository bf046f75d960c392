// Package bme280 implements the BME280 module kind: a combined
// temperature/humidity/pressure I2C sensor at address 0x76 in normal (free-
// running) mode. Grounded on
// original_source/hardware_modules/bme280_module.py, which itself wraps
// Adafruit's adafruit_bme280 CircuitPython driver; the register map and
// compensation formulas here follow the sensor's public datasheet directly
// rather than translating that (unretrieved) driver's source.
package bme280

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

const Kind = "BME280"

const i2cAddr = 0x76

var log = logging.WithComponent("hal.bme280")

func init() {
	hal.RegisterBuilder(Kind, builder{})
}

type builder struct{}

func (builder) Build(in hal.BuildInput) (hal.Module, error) {
	bus, err := in.IO.I2C()
	if err != nil {
		return nil, err
	}
	dev := &device{bus: bus}
	if err := dev.init(); err != nil {
		return nil, fmt.Errorf("bme280: module %d init failed: %w", in.Config.ID, err)
	}
	// Give the first measurement cycle time to land, matching the
	// original's time.sleep(0.5) after construction.
	time.Sleep(500 * time.Millisecond)

	return &module{
		cfg:      in.Config,
		store:    in.Store,
		dev:      dev,
		interval: hal.NewIntervalGate(time.Duration(in.Config.IntervalMs) * time.Millisecond),
	}, nil
}

type storeAppender interface {
	Append(sensorID uint32, value float64, createdAtMs uint64) error
}

type module struct {
	cfg      config.ModuleConfig
	store    storeAppender
	dev      *device
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
	temp, humidity, pressure, err := m.dev.read()
	if err != nil {
		log.WithError(err).WithField("module_id", m.cfg.ID).Warn("bme280 read failed")
		m.interval.Advance()
		return nil
	}
	for _, sensor := range m.cfg.Sensors {
		var v float64
		switch {
		case sensor.Is("Temperatur"):
			v = round2(temp)
		case sensor.Is("Relative Luftfeuchtigkeit"):
			v = round2(humidity)
		case sensor.Is("Luftdruck"):
			v = round2(pressure)
		default:
			continue
		}
		if err := m.store.Append(sensor.ID, v, uint64(now.UnixMilli())); err != nil {
			log.WithError(err).Warn("bme280: failed to buffer reading")
		}
	}
	m.interval.Advance()
	return nil
}

func (m *module) OnDestroy() {}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
