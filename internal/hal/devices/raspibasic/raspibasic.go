// Package raspibasic implements the RASPI_BASIC module kind: a host
// telemetry reader with a single "CPU Temp" sensor, sampled from the SoC's
// thermal zone once per reading interval. Grounded on
// original_source/hardware_modules/raspi_basic_module.py and
// original_source/helper/platform_detector.py's get_cpu_temperature.
package raspibasic

import (
	"context"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/Martinelllo/smarthome-multi-platform-installer/internal/config"
	"github.com/Martinelllo/smarthome-multi-platform-installer/internal/hal"
	"github.com/Martinelllo/smarthome-multi-platform-installer/internal/logging"
)

const Kind = "RASPI_BASIC"

// thermalZonePath is the SoC's primary thermal zone, reported in millidegree
// Celsius.
const thermalZonePath = "/sys/class/thermal/thermal_zone0/temp"

var log = logging.WithComponent("hal.raspibasic")

func init() {
	hal.RegisterBuilder(Kind, builder{})
}

type builder struct{}

func (builder) Build(in hal.BuildInput) (hal.Module, error) {
	return &module{
		cfg:      in.Config,
		store:    in.Store,
		interval: hal.NewIntervalGate(time.Duration(in.Config.IntervalMs) * time.Millisecond),
	}, nil
}

type storeAppender interface {
	Append(sensorID uint32, value float64, createdAtMs uint64) error
}

type module struct {
	cfg      config.ModuleConfig
	store    storeAppender
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
	for _, sensor := range m.cfg.Sensors {
		if !sensor.Is("CPU Temp") {
			continue
		}
		temp, err := cpuTemperature()
		if err != nil {
			log.WithError(err).Warn("raspibasic: failed to read cpu temperature")
			continue
		}
		if err := m.store.Append(sensor.ID, round2(temp), uint64(now.UnixMilli())); err != nil {
			log.WithError(err).WithField("module_id", m.cfg.ID).Warn("failed to buffer cpu temperature reading")
		}
	}
	m.interval.Advance()
	return nil
}

func (m *module) OnDestroy() {}

func cpuTemperature() (float64, error) {
	data, err := os.ReadFile(thermalZonePath)
	if err != nil {
		return 0, err
	}
	milliC, err := strconv.ParseFloat(strings.TrimSpace(string(data)), 64)
	if err != nil {
		return 0, err
	}
	return milliC / 1000, nil
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
