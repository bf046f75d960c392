package pwm

import (
	"context"
	"testing"

	"github.com/Martinelllo/smarthome-multi-platform-installer/internal/config"
)

type fakePWM struct {
	hz   uint32
	duty uint8
}

func (f *fakePWM) SetFrequency(hz uint32) error { f.hz = hz; return nil }
func (f *fakePWM) SetDutyCycle(pct uint8) error { f.duty = pct; return nil }

func TestApplyTaskSetsFrequencyAndDutyCycle(t *testing.T) {
	fp := &fakePWM{}
	m := &module{cfg: config.ModuleConfig{ID: 1}, pwm: fp}

	m.applyTask(map[string]any{"pwm_frequency": 800.0, "value": 50.0})
	if fp.hz != 800 {
		t.Fatalf("expected frequency 800, got %d", fp.hz)
	}
	if fp.duty != 50 {
		t.Fatalf("expected duty cycle 50, got %d", fp.duty)
	}
}

func TestApplyDefaultAppliesControllerDefault(t *testing.T) {
	fp := &fakePWM{}
	m := &module{
		cfg: config.ModuleConfig{
			ID: 1,
			Controllers: []config.ControllerConfig{{
				ID:           1,
				DefaultValue: map[string]any{"pwm_frequency": 1000.0, "value": 25.0},
			}},
		},
		pwm: fp,
	}
	m.applyDefault()
	if fp.hz != 1000 || fp.duty != 25 {
		t.Fatalf("expected default frequency/duty applied, got hz=%d duty=%d", fp.hz, fp.duty)
	}
}

func TestApplyTransitionRampsToTargetDuty(t *testing.T) {
	fp := &fakePWM{}
	m := &module{cfg: config.ModuleConfig{ID: 1}, pwm: fp, duty: 0}

	m.applyTransition(context.Background(), map[string]any{"pwm_frequency": 500.0, "value": 80.0}, 100)

	if fp.hz != 500 {
		t.Fatalf("expected frequency 500, got %d", fp.hz)
	}
	if fp.duty != 80 || m.duty != 80 {
		t.Fatalf("expected ramp to land on duty 80, got field=%d module=%d", fp.duty, m.duty)
	}
}

func TestApplyTransitionStopsOnCancel(t *testing.T) {
	fp := &fakePWM{}
	m := &module{cfg: config.ModuleConfig{ID: 1}, pwm: fp, duty: 0}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	m.applyTransition(ctx, map[string]any{"value": 100.0}, 5000)

	if fp.duty == 100 {
		t.Fatalf("expected ramp to stop short of target after cancellation, got %d", fp.duty)
	}
}

func TestApplyTaskIgnoresNonObjectValue(t *testing.T) {
	fp := &fakePWM{hz: 42, duty: 7}
	m := &module{cfg: config.ModuleConfig{ID: 1}, pwm: fp}
	m.applyTask("not-an-object")
	if fp.hz != 42 || fp.duty != 7 {
		t.Fatalf("expected no change for a non-object task value, got hz=%d duty=%d", fp.hz, fp.duty)
	}
}
