package boolwrite

import (
	"context"
	"testing"
	"time"

	"github.com/Martinelllo/smarthome-multi-platform-installer/internal/config"
	"github.com/Martinelllo/smarthome-multi-platform-installer/internal/iohub"
	"github.com/Martinelllo/smarthome-multi-platform-installer/internal/job"
)

type recorderPin struct {
	levels []bool
}

func (p *recorderPin) Number() int                     { return 0 }
func (p *recorderPin) ConfigureInput(iohub.Pull) error { return nil }
func (p *recorderPin) ConfigureOutput(bool) error      { return nil }
func (p *recorderPin) Set(level bool)                  { p.levels = append(p.levels, level) }
func (p *recorderPin) Get() bool                        { return false }

func (p *recorderPin) last() bool {
	if len(p.levels) == 0 {
		return false
	}
	return p.levels[len(p.levels)-1]
}

func newTestModule() (*module, [4]*recorderPin) {
	var pins [4]*recorderPin
	m := &module{cfg: config.ModuleConfig{ID: 1, Kind: Kind}}
	for i := range pins {
		pins[i] = &recorderPin{}
		m.pins.handle[i] = pins[i]
	}
	return m, pins
}

func TestSetValueDrivesComplementaryPins(t *testing.T) {
	m, pins := newTestModule()
	m.setValue(true)
	if !pins[0].last() || !pins[1].last() {
		t.Fatalf("expected PIN1/PIN2 driven high")
	}
	if pins[2].last() || pins[3].last() {
		t.Fatalf("expected nPIN1/nPIN2 driven low")
	}
}

func TestApplyDefaultUsesControllerDefaultValue(t *testing.T) {
	m, pins := newTestModule()
	m.cfg.Controllers = []config.ControllerConfig{{
		ID:           1,
		DefaultValue: map[string]any{"value": true},
	}}
	m.applyDefault()
	if !pins[0].last() {
		t.Fatalf("expected default value to drive PIN1 high")
	}
}

func TestOnJobRunsTasksThenRestoresDefault(t *testing.T) {
	m, pins := newTestModule()
	m.cfg.Controllers = []config.ControllerConfig{{
		ID:           1,
		DefaultValue: map[string]any{"value": false},
	}}

	done := make(chan struct{})
	m.runner.Start(context.Background(), job.Job{
		Tasks: []job.Task{{DurationMs: 1, Value: true}},
	}, func(_ context.Context, t job.Task) error {
		m.setValue(truthy(t.Value))
		return nil
	}, func() {
		m.applyDefault()
		close(done)
	})

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("expected onDone to fire after the job's single task")
	}
	if pins[0].last() {
		t.Fatalf("expected the controller default (false) to be restored after the job")
	}
}
