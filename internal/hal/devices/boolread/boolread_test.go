package boolread

import (
	"context"
	"testing"
	"time"

	"github.com/Martinelllo/smarthome-multi-platform-installer/internal/config"
	"github.com/Martinelllo/smarthome-multi-platform-installer/internal/hal"
	"github.com/Martinelllo/smarthome-multi-platform-installer/internal/iohub"
)

type fakeStore struct {
	sensorID uint32
	value    float64
	called   int
}

func (f *fakeStore) Append(sensorID uint32, value float64, createdAtMs uint64) error {
	f.sensorID = sensorID
	f.value = value
	f.called++
	return nil
}

type fakePin struct{ level bool }

func newModule(fs *fakeStore, pin *fakePin, cfg config.ModuleConfig) *module {
	return &module{
		cfg:      cfg,
		store:    fs,
		interval: hal.NewIntervalGate(time.Duration(cfg.IntervalMs) * time.Millisecond),
		pin:      pinAdapter{pin},
	}
}

type pinAdapter struct{ p *fakePin }

func (a pinAdapter) Number() int                      { return 0 }
func (a pinAdapter) ConfigureInput(iohub.Pull) error  { return nil }
func (a pinAdapter) ConfigureOutput(bool) error       { return nil }
func (a pinAdapter) Set(bool)                         {}
func (a pinAdapter) Get() bool                        { return a.p.level }

func testConfig() config.ModuleConfig {
	return config.ModuleConfig{
		ID:         1,
		Kind:       Kind,
		IntervalMs: 1,
		Sensors:    []config.SensorConfig{{ID: 9, Kind: "BOOLEAN"}},
	}
}

func TestTickInvertsLineLevel(t *testing.T) {
	fs := &fakeStore{}
	pin := &fakePin{level: false}
	m := newModule(fs, pin, testConfig())

	m.Tick(context.Background())
	if fs.called != 1 {
		t.Fatalf("expected one reading to be buffered, got %d", fs.called)
	}
	if fs.value != 1 {
		t.Fatalf("expected a low line to report 1, got %v", fs.value)
	}
	if fs.sensorID != 9 {
		t.Fatalf("expected sensor id 9, got %d", fs.sensorID)
	}

	pin.level = true
	time.Sleep(2 * time.Millisecond)
	m.Tick(context.Background())
	if fs.called != 2 {
		t.Fatalf("expected a second reading once the interval elapsed, got %d", fs.called)
	}
	if fs.value != 0 {
		t.Fatalf("expected a high line to report 0, got %v", fs.value)
	}
}

func TestTickSkipsBeforeIntervalElapses(t *testing.T) {
	fs := &fakeStore{}
	pin := &fakePin{}
	cfg := testConfig()
	cfg.IntervalMs = 60000
	m := newModule(fs, pin, cfg)

	m.Tick(context.Background())
	m.Tick(context.Background())
	if fs.called != 1 {
		t.Fatalf("expected exactly one reading before the interval elapses, got %d", fs.called)
	}
}
