// Package boolread implements the BOOLEAN_READ module kind: a single digital
// input pin, sampled once per reading interval and inverted the way the
// original does (pi.read(gpio) ^ 1), so the reported value is 1 when the
// line is pulled low. Grounded on
// original_source/hardware_modules/boolean_read_module.py.
package boolread

import (
	"context"
	"fmt"
	"time"

	"github.com/Martinelllo/smarthome-multi-platform-installer/internal/config"
	"github.com/Martinelllo/smarthome-multi-platform-installer/internal/hal"
	"github.com/Martinelllo/smarthome-multi-platform-installer/internal/iohub"
	"github.com/Martinelllo/smarthome-multi-platform-installer/internal/logging"
)

const Kind = "BOOLEAN_READ"

var log = logging.WithComponent("hal.boolread")

func init() {
	hal.RegisterBuilder(Kind, builder{})
}

type builder struct{}

func (builder) Build(in hal.BuildInput) (hal.Module, error) {
	pin, ok := in.Config.Pin("PIN")
	if !ok {
		return nil, fmt.Errorf("boolread: module %d missing PIN", in.Config.ID)
	}
	owner := fmt.Sprintf("%s:%d", Kind, in.Config.ID)
	handle, err := in.IO.ClaimGPIO(owner, int(pin), iohub.FuncGPIOIn)
	if err != nil {
		return nil, err
	}
	m := &module{
		cfg:      in.Config,
		store:    in.Store,
		io:       in.IO,
		physPin:  int(pin),
		pin:      handle,
		interval: hal.NewIntervalGate(time.Duration(in.Config.IntervalMs) * time.Millisecond),
	}
	return m, nil
}

// storeAppender is the narrow slice of *store.Store this module needs,
// named here so it can be faked in tests without a real sqlite store.
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
	if len(m.cfg.Sensors) == 0 {
		return nil
	}
	sensor := m.cfg.Sensors[0]

	// XOR with 1: a pulled-low line reads as logical 1, matching the
	// original's pi.read(gpio) ^ 1.
	value := 0.0
	if !m.pin.Get() {
		value = 1
	}

	if err := m.store.Append(sensor.ID, value, uint64(now.UnixMilli())); err != nil {
		log.WithError(err).WithField("module_id", m.cfg.ID).Warn("failed to buffer boolean reading")
	}
	m.interval.Advance()
	return nil
}

// OnDestroy releases the claimed pin. The original never did this (a known
// bug: BooleanReadingModule.on_destroy is a no-op, leaking the pin claim
// across a config reload that reassigns the same physical pin to another
// module kind) — fixed here rather than reproduced.
func (m *module) OnDestroy() {
	m.io.ReleasePin(m.physPin)
}
