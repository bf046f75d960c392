// Package openclose implements the OPEN_CLOSE module kind: a two-relay
// motor direction controller (control_open_pin/control_close_pin) with two
// optional physical buttons (button_open_pin/button_close_pin) that drive
// the same direction logic as an MQTT job would. Tick is a no-op; movement
// is entirely button- and job-driven. Grounded on
// original_source/hardware_modules/open_close_control_module.py.
package openclose

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Martinelllo/smarthome-multi-platform-installer/internal/config"
	"github.com/Martinelllo/smarthome-multi-platform-installer/internal/hal"
	"github.com/Martinelllo/smarthome-multi-platform-installer/internal/iohub"
	"github.com/Martinelllo/smarthome-multi-platform-installer/internal/job"
	"github.com/Martinelllo/smarthome-multi-platform-installer/internal/logging"
	"github.com/Martinelllo/smarthome-multi-platform-installer/internal/mqttrouter"
)

const Kind = "OPEN_CLOSE"

// directionSwitchDelay is the pause between de-energizing one relay and
// energizing the other, matching the original's stopper.wait(0.1).
const directionSwitchDelay = 100 * time.Millisecond

var log = logging.WithComponent("hal.openclose")

func init() {
	hal.RegisterBuilder(Kind, builder{})
}

type builder struct{}

func (builder) Build(in hal.BuildInput) (hal.Module, error) {
	openPin, ok := in.Config.Pin("control_open_pin")
	if !ok {
		return nil, fmt.Errorf("openclose: module %d missing control_open_pin", in.Config.ID)
	}
	closePin, ok := in.Config.Pin("control_close_pin")
	if !ok {
		return nil, fmt.Errorf("openclose: module %d missing control_close_pin", in.Config.ID)
	}
	owner := fmt.Sprintf("%s:%d", Kind, in.Config.ID)

	openHandle, err := in.IO.ClaimGPIO(owner, int(openPin), iohub.FuncGPIOOut)
	if err != nil {
		return nil, err
	}
	closeHandle, err := in.IO.ClaimGPIO(owner, int(closePin), iohub.FuncGPIOOut)
	if err != nil {
		return nil, err
	}

	m := &module{
		cfg:          in.Config,
		io:           in.IO,
		mqtt:         in.MQTT,
		topic:        fmt.Sprintf("/module/%d", in.Config.ID),
		openPhys:     int(openPin),
		closePhys:    int(closePin),
		openHandle:   openHandle,
		closeHandle:  closeHandle,
	}

	if phys, ok := in.Config.Pin("button_open_pin"); ok {
		edges, err := m.wireButton(int(phys), "open")
		if err != nil {
			log.WithError(err).Warn("openclose: button_open_pin wiring failed")
		} else {
			m.buttonEdges = append(m.buttonEdges, edges)
			m.buttonPhys = append(m.buttonPhys, int(phys))
		}
	} else {
		log.Warn("button_open_gpio is not set on the interface!")
	}
	if phys, ok := in.Config.Pin("button_close_pin"); ok {
		edges, err := m.wireButton(int(phys), "close")
		if err != nil {
			log.WithError(err).Warn("openclose: button_close_pin wiring failed")
		} else {
			m.buttonEdges = append(m.buttonEdges, edges)
			m.buttonPhys = append(m.buttonPhys, int(phys))
		}
	} else {
		log.Warn("button_close_gpio is not set on the interface!")
	}

	m.applyDefault()
	m.mqtt.Subscribe(m.topic, m.onJob)
	return m, nil
}

// wireButton claims physPin as an input, starts its rising/falling edge
// subscription, and launches the goroutine that turns edges into direction
// changes (pressed -> dir, released -> hold), mirroring the original's
// FALLING_EDGE/RISING_EDGE pigpio callbacks on a pull-up input.
func (m *module) wireButton(physPin int, dir string) (iohub.GPIOEdges, error) {
	owner := fmt.Sprintf("%s:%d:button", Kind, m.cfg.ID)
	handle, err := m.io.ClaimGPIO(owner, physPin, iohub.FuncGPIOIn)
	if err != nil {
		return nil, err
	}
	_ = handle.ConfigureInput(iohub.PullUp)
	edges, err := m.io.ClaimGPIOEdges(physPin, iohub.EdgeBoth)
	if err != nil {
		return nil, err
	}
	go func() {
		for ev := range edges.Events() {
			if ev.Level {
				m.setDirection(context.Background(), "hold")
			} else {
				m.setDirection(context.Background(), dir)
			}
		}
	}()
	return edges, nil
}

type module struct {
	cfg   config.ModuleConfig
	io    *iohub.Hub
	mqtt  *mqttrouter.Router
	topic string

	openPhys, closePhys     int
	openHandle, closeHandle iohub.GPIOHandle
	buttonEdges             []iohub.GPIOEdges
	buttonPhys              []int

	runner hal.JobRunner
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
		log.WithError(err).Warn("openclose: could not re-marshal job payload")
		return
	}
	j, err := job.Parse(data)
	if err != nil {
		log.WithError(err).Warn("openclose: invalid job payload")
		return
	}
	m.runner.Start(context.Background(), j, func(ctx context.Context, t job.Task) error {
		dir, _ := dirOf(t.Value)
		m.setDirection(ctx, dir)
		return nil
	}, m.applyDefault)
}

func dirOf(v any) (string, bool) {
	task, ok := v.(map[string]any)
	if !ok {
		return "", false
	}
	dir, ok := task["dir"].(string)
	return dir, ok
}

// setDirection applies dir, holding both relays off for directionSwitchDelay
// before energizing the new one when switching to "open" or "close";
// anything else (including "hold") just holds both relays off.
func (m *module) setDirection(ctx context.Context, dir string) {
	switch dir {
	case "open":
		m.closeHandle.Set(true)
		sleep(ctx, directionSwitchDelay)
		m.openHandle.Set(false)
	case "close":
		m.openHandle.Set(true)
		sleep(ctx, directionSwitchDelay)
		m.closeHandle.Set(false)
	default:
		m.openHandle.Set(true)
		m.closeHandle.Set(true)
	}
}

func sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}

func (m *module) applyDefault() {
	if len(m.cfg.Controllers) == 0 {
		return
	}
	c := m.cfg.Controllers[0]
	if !c.HasDefault() {
		return
	}
	dir, _ := c.DefaultValueFor("dir")
	s, _ := dir.(string)
	m.setDirection(context.Background(), s)
}

// OnDestroy holds both relays off, releases every claimed pin (control and
// button), stops the button edge goroutines, and unsubscribes the job
// topic.
func (m *module) OnDestroy() {
	m.runner.Stop()
	m.setDirection(context.Background(), "hold")
	for _, e := range m.buttonEdges {
		e.Close()
	}
	for _, phys := range m.buttonPhys {
		m.io.ReleasePin(phys)
	}
	m.io.ReleasePin(m.openPhys)
	m.io.ReleasePin(m.closePhys)
	m.mqtt.Unsubscribe(m.topic)
}
