// Package display implements the DISPLAY module kind: an SSD1306-class I2C
// OLED that shows an info screen on boot and on each MQTT job task, falling
// back to its idle menu screen once the job completes — tick is a no-op.
// Grounded on original_source/hardware_modules/display_info_module.py. The
// original's system_ui package also drives a full local menu/rotary-encoder
// UI (system_ui/menu.py, rotary_controls.py, confirm.py); that interactive
// navigation is a separate concern from this MQTT-triggered module and is
// not reproduced here — see DESIGN.md.
package display

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Martinelllo/smarthome-multi-platform-installer/internal/config"
	"github.com/Martinelllo/smarthome-multi-platform-installer/internal/hal"
	"github.com/Martinelllo/smarthome-multi-platform-installer/internal/job"
	"github.com/Martinelllo/smarthome-multi-platform-installer/internal/logging"
	"github.com/Martinelllo/smarthome-multi-platform-installer/internal/mqttrouter"
)

const Kind = "DISPLAY"

var log = logging.WithComponent("hal.display")

func init() {
	hal.RegisterBuilder(Kind, builder{})
}

type builder struct{}

func (builder) Build(in hal.BuildInput) (hal.Module, error) {
	bus, err := in.IO.I2C()
	if err != nil {
		return nil, err
	}
	screen := newSSD1306(bus)
	if err := screen.init(); err != nil {
		return nil, fmt.Errorf("display: module %d init failed: %w", in.Config.ID, err)
	}

	m := &module{
		cfg:    in.Config,
		mqtt:   in.MQTT,
		topic:  fmt.Sprintf("/module/%d", in.Config.ID),
		screen: screen,
	}
	m.showInfo()
	time.Sleep(5 * time.Second)
	m.showMenu()
	m.mqtt.Subscribe(m.topic, m.onJob)
	return m, nil
}

type screen interface {
	showInfo() error
	showMenu() error
}

type module struct {
	cfg    config.ModuleConfig
	mqtt   *mqttrouter.Router
	topic  string
	screen screen
	runner hal.JobRunner
}

func (m *module) Config() config.ModuleConfig { return m.cfg }

func (m *module) PatchConfig(n config.ModuleConfig) {
	m.cfg.Patch(n)
	m.showMenu()
}

func (m *module) Tick(context.Context) error { return nil }

func (m *module) showInfo() {
	if err := m.screen.showInfo(); err != nil {
		log.WithError(err).Warn("display: showInfo failed")
	}
}

func (m *module) showMenu() {
	if err := m.screen.showMenu(); err != nil {
		log.WithError(err).Warn("display: showMenu failed")
	}
}

func (m *module) onJob(payload map[string]any) {
	data, err := json.Marshal(payload)
	if err != nil {
		log.WithError(err).Warn("display: could not re-marshal job payload")
		return
	}
	j, err := job.Parse(data)
	if err != nil {
		log.WithError(err).Warn("display: invalid job payload")
		return
	}
	m.runner.Start(context.Background(), j, func(_ context.Context, _ job.Task) error {
		m.showInfo()
		return nil
	}, m.showMenu)
}

func (m *module) OnDestroy() {
	m.runner.Stop()
	m.mqtt.Unsubscribe(m.topic)
}
