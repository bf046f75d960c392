package openclose

import (
	"context"
	"testing"

	"github.com/Martinelllo/smarthome-multi-platform-installer/internal/config"
	"github.com/Martinelllo/smarthome-multi-platform-installer/internal/iohub"
)

type recorderPin struct{ levels []bool }

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

func newTestModule() (*module, *recorderPin, *recorderPin) {
	open, close_ := &recorderPin{}, &recorderPin{}
	m := &module{
		cfg:         config.ModuleConfig{ID: 1, Kind: Kind},
		openHandle:  open,
		closeHandle: close_,
	}
	return m, open, close_
}

func TestSetDirectionOpenDeenergizesCloseThenEnergizesOpen(t *testing.T) {
	m, open, close_ := newTestModule()
	m.setDirection(context.Background(), "open")
	if !close_.last() {
		t.Fatalf("expected close relay held off (true/de-energized) before switching")
	}
	if open.last() {
		t.Fatalf("expected open relay energized (false) after the switch delay")
	}
}

func TestSetDirectionHoldTurnsBothRelaysOff(t *testing.T) {
	m, open, close_ := newTestModule()
	m.setDirection(context.Background(), "hold")
	if !open.last() || !close_.last() {
		t.Fatalf("expected both relays held off on hold")
	}
}

func TestApplyDefaultUsesControllerDir(t *testing.T) {
	m, open, close_ := newTestModule()
	m.cfg.Controllers = []config.ControllerConfig{{
		ID:           1,
		DefaultValue: map[string]any{"dir": "close"},
	}}
	m.applyDefault()
	if !open.last() {
		t.Fatalf("expected open relay held off before the close switch")
	}
	if close_.last() {
		t.Fatalf("expected close relay energized after the switch delay")
	}
}
