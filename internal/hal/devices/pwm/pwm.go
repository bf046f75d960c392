// Package pwm implements the PWM module kind: a single GPIO line driven by
// software PWM, purely reactive to MQTT jobs posted to "/module/{id}" —
// tick is a no-op. Each task carries a frequency and a 0..100 duty cycle,
// applied in sequence; the controller's default frequency/duty cycle is
// restored once the job finishes. Grounded on
// original_source/hardware_modules/pwm_control_module.py.
package pwm

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
	"github.com/Martinelllo/smarthome-multi-platform-installer/internal/mathx"
	"github.com/Martinelllo/smarthome-multi-platform-installer/internal/mqttrouter"
	"github.com/Martinelllo/smarthome-multi-platform-installer/internal/ramp"
)

// rampStepMs is the target duration of one ramp step; the step count is
// derived from a task's DurationMs so a 2s transition moves in finer
// increments than a 200ms one.
const rampStepMs = 50

const Kind = "PWM"

var log = logging.WithComponent("hal.pwm")

func init() {
	hal.RegisterBuilder(Kind, builder{})
}

type builder struct{}

func (builder) Build(in hal.BuildInput) (hal.Module, error) {
	physPin, ok := in.Config.Pin("PIN")
	if !ok {
		return nil, fmt.Errorf("pwm: module %d missing PIN", in.Config.ID)
	}
	owner := fmt.Sprintf("%s:%d", Kind, in.Config.ID)
	handle, err := in.IO.ClaimPWM(owner, int(physPin))
	if err != nil {
		return nil, err
	}
	m := &module{
		cfg:     in.Config,
		io:      in.IO,
		mqtt:    in.MQTT,
		topic:   fmt.Sprintf("/module/%d", in.Config.ID),
		physPin: int(physPin),
		pwm:     handle,
	}
	m.applyDefault()
	m.mqtt.Subscribe(m.topic, m.onJob)
	return m, nil
}

type module struct {
	cfg     config.ModuleConfig
	io      *iohub.Hub
	mqtt    *mqttrouter.Router
	topic   string
	physPin int
	pwm     iohub.PWMHandle
	runner  hal.JobRunner
	duty    uint16 // last applied duty cycle, 0..100; ramp start point
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
		log.WithError(err).Warn("pwm: could not re-marshal job payload")
		return
	}
	j, err := job.Parse(data)
	if err != nil {
		log.WithError(err).Warn("pwm: invalid job payload")
		return
	}
	m.runner.Start(context.Background(), j, func(ctx context.Context, t job.Task) error {
		if t.Transition {
			m.applyTransition(ctx, t.Value, t.DurationMs)
		} else {
			m.applyTask(t.Value)
		}
		return nil
	}, m.applyDefault)
}

func (m *module) applyTask(v any) {
	task, ok := v.(map[string]any)
	if !ok {
		return
	}
	if hz, ok := numberOf(task["pwm_frequency"]); ok {
		if err := m.pwm.SetFrequency(uint32(hz)); err != nil {
			log.WithError(err).Warn("pwm: set frequency failed")
		}
	}
	if duty, ok := numberOf(task["value"]); ok {
		m.setDuty(uint16(mathx.Clamp(int32(duty), 0, 100)))
	}
}

// applyTransition ramps the duty cycle from its last-applied value to the
// task's target over durationMs instead of snapping, per the Task's
// "transition" flag (§3). Frequency still applies immediately; only duty
// is smoothed. Cancellation of ctx (job preemption or on_destroy) stops
// the ramp mid-step, leaving the duty cycle at whatever level it last
// reached.
func (m *module) applyTransition(ctx context.Context, v any, durationMs uint32) {
	task, ok := v.(map[string]any)
	if !ok {
		return
	}
	if hz, ok := numberOf(task["pwm_frequency"]); ok {
		if err := m.pwm.SetFrequency(uint32(hz)); err != nil {
			log.WithError(err).Warn("pwm: set frequency failed")
		}
	}
	duty, ok := numberOf(task["value"])
	if !ok {
		return
	}
	target := uint16(mathx.Clamp(int32(duty), 0, 100))
	steps := uint16(mathx.Clamp(int32(durationMs/rampStepMs), 1, 100))
	ramp.StartLinear(m.duty, target, 100, durationMs, steps, func(d time.Duration) bool {
		tm := time.NewTimer(d)
		defer tm.Stop()
		select {
		case <-tm.C:
			return true
		case <-ctx.Done():
			return false
		}
	}, m.setDuty)
}

func (m *module) setDuty(level uint16) {
	if err := m.pwm.SetDutyCycle(uint8(level)); err != nil {
		log.WithError(err).Warn("pwm: set duty cycle failed")
	}
	m.duty = level
}

func numberOf(v any) (float64, bool) {
	n, ok := v.(float64)
	return n, ok
}

func (m *module) applyDefault() {
	if len(m.cfg.Controllers) == 0 {
		return
	}
	c := m.cfg.Controllers[0]
	if !c.HasDefault() {
		return
	}
	m.applyTask(map[string]any(c.DefaultValue))
}

// OnDestroy releases the pin back to input mode (matching the original's
// set_mode(INPUT)+set_pull_up_down(PUD_OFF)) and unsubscribes the job
// topic.
func (m *module) OnDestroy() {
	m.runner.Stop()
	m.io.ReleasePin(m.physPin)
	m.mqtt.Unsubscribe(m.topic)
}
