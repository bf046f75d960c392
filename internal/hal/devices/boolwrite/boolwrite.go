// Package boolwrite implements the BOOLEAN_WRITE module kind: an H-bridge-
// style four-pin digital output (PIN1/PIN2 driven to the task value, nPIN1/
// nPIN2 driven to its complement), controlled entirely by MQTT jobs posted
// to "/module/{id}" — tick is a no-op, matching the original. Grounded on
// original_source/hardware_modules/boolean_control_module.py.
package boolwrite

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/Martinelllo/smarthome-multi-platform-installer/internal/config"
	"github.com/Martinelllo/smarthome-multi-platform-installer/internal/hal"
	"github.com/Martinelllo/smarthome-multi-platform-installer/internal/iohub"
	"github.com/Martinelllo/smarthome-multi-platform-installer/internal/job"
	"github.com/Martinelllo/smarthome-multi-platform-installer/internal/logging"
	"github.com/Martinelllo/smarthome-multi-platform-installer/internal/mqttrouter"
)

const Kind = "BOOLEAN_WRITE"

var log = logging.WithComponent("hal.boolwrite")

func init() {
	hal.RegisterBuilder(Kind, builder{})
}

type builder struct{}

func (builder) Build(in hal.BuildInput) (hal.Module, error) {
	m := &module{
		cfg:   in.Config,
		io:    in.IO,
		mqtt:  in.MQTT,
		topic: fmt.Sprintf("/module/%d", in.Config.ID),
	}
	if err := m.claimPins(); err != nil {
		return nil, err
	}
	m.applyDefault()
	m.mqtt.Subscribe(m.topic, m.onJob)
	return m, nil
}

var pinKeys = [4]string{"PIN1", "PIN2", "nPIN1", "nPIN2"}

type pinSet struct {
	phys   [4]int
	handle [4]iohub.GPIOHandle
}

type module struct {
	cfg    config.ModuleConfig
	io     *iohub.Hub
	mqtt   *mqttrouter.Router
	topic  string
	pins   pinSet
	runner hal.JobRunner
}

func (m *module) claimPins() error {
	owner := fmt.Sprintf("%s:%d", Kind, m.cfg.ID)
	for i, key := range pinKeys {
		pin, ok := m.cfg.Pin(key)
		if !ok {
			return fmt.Errorf("boolwrite: module %d missing %s", m.cfg.ID, key)
		}
		handle, err := m.io.ClaimGPIO(owner, int(pin), iohub.FuncGPIOOut)
		if err != nil {
			return err
		}
		m.pins.phys[i] = int(pin)
		m.pins.handle[i] = handle
	}
	return nil
}

func (m *module) Config() config.ModuleConfig { return m.cfg }

func (m *module) PatchConfig(n config.ModuleConfig) {
	m.cfg.Patch(n)
	m.applyDefault()
}

func (m *module) Tick(context.Context) error { return nil }

func (m *module) onJob(payload map[string]any) {
	data, err := json.Marshal(payload)
	if err != nil {
		log.WithError(err).Warn("boolwrite: could not re-marshal job payload")
		return
	}
	j, err := job.Parse(data)
	if err != nil {
		log.WithError(err).Warn("boolwrite: invalid job payload")
		return
	}
	m.runner.Start(context.Background(), j, func(_ context.Context, t job.Task) error {
		m.setValue(truthy(t.Value))
		return nil
	}, m.applyDefault)
}

func truthy(v any) bool {
	switch n := v.(type) {
	case bool:
		return n
	case float64:
		return n != 0
	default:
		return false
	}
}

func (m *module) setValue(on bool) {
	m.pins.handle[0].Set(on)
	m.pins.handle[1].Set(on)
	m.pins.handle[2].Set(!on)
	m.pins.handle[3].Set(!on)
}

func (m *module) applyDefault() {
	if len(m.cfg.Controllers) == 0 {
		return
	}
	c := m.cfg.Controllers[0]
	if !c.HasDefault() {
		return
	}
	v, ok := c.DefaultValueFor("value")
	if !ok {
		return
	}
	m.setValue(truthy(v))
}

// OnDestroy releases every claimed pin and unsubscribes the job topic. The
// original's on_destroy only releases one of the four configured pins
// (self.gpio_number, an attribute that does not even exist — it raises
// AttributeError the one time a module of this kind is ever torn down) —
// fixed here rather than reproduced.
func (m *module) OnDestroy() {
	m.runner.Stop()
	for _, phys := range m.pins.phys {
		m.io.ReleasePin(phys)
	}
	m.mqtt.Unsubscribe(m.topic)
}
