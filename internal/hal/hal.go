// Package hal is the agent's hardware abstraction and module lifecycle
// layer (§4.H/§4.I). It mirrors the teacher's open builder registry
// (services/hal/registry.go: Builder, RegisterBuilder, BuildInput/
// BuildOutput) instead of the original Python's __create_module if/elif
// chain (original_source/core/module_manager.py), so a new device kind is
// added by registering a builder in its own package's init(), never by
// editing this one. Reconciliation (destroy-missing / patch-existing /
// create-new) follows module_manager.py's setup_modules exactly.
package hal

import (
	"context"
	"fmt"
	"sync"

	"github.com/Martinelllo/smarthome-multi-platform-installer/internal/bus"
	"github.com/Martinelllo/smarthome-multi-platform-installer/internal/config"
	"github.com/Martinelllo/smarthome-multi-platform-installer/internal/errs"
	"github.com/Martinelllo/smarthome-multi-platform-installer/internal/iohub"
	"github.com/Martinelllo/smarthome-multi-platform-installer/internal/logging"
	"github.com/Martinelllo/smarthome-multi-platform-installer/internal/mqttrouter"
	"github.com/Martinelllo/smarthome-multi-platform-installer/internal/rfbus"
	"github.com/Martinelllo/smarthome-multi-platform-installer/internal/store"
)

var log = logging.WithComponent("hal")

// Module is one live hardware module: a sensor reader, a controller, or a
// hybrid of both. Tick is called roughly every 500ms through Manager.Tick
// from cmd/agent's main loop (§4.K); a Module that only reacts to MQTT jobs (controllers)
// treats it as a no-op, matching the original's "tick returns None" shape.
type Module interface {
	Tick(ctx context.Context) error
	Config() config.ModuleConfig
	PatchConfig(config.ModuleConfig)
	OnDestroy()
}

// BuildInput bundles every shared dependency a builder might need, plus the
// module's own config. Builders take what they need and ignore the rest.
type BuildInput struct {
	Config config.ModuleConfig
	IO     *iohub.Hub
	Store  *store.Store
	MQTT   *mqttrouter.Router
	RF     *rfbus.Bridge
	Bus    *bus.Connection
}

// Builder constructs a Module from a BuildInput.
type Builder interface {
	Build(in BuildInput) (Module, error)
}

var (
	muBuilders sync.RWMutex
	builders   = map[string]Builder{}
)

// RegisterBuilder installs b for the given module kind string (e.g.
// "BOOLEAN_READ"). Called from a device package's init(); panics on an
// empty kind or a duplicate registration since both are startup mistakes,
// not runtime conditions.
func RegisterBuilder(kind string, b Builder) {
	muBuilders.Lock()
	defer muBuilders.Unlock()
	if kind == "" {
		panic("hal: empty module kind for builder")
	}
	if _, exists := builders[kind]; exists {
		panic(fmt.Sprintf("hal: builder already registered for kind %q", kind))
	}
	builders[kind] = b
}

func findBuilder(kind string) (Builder, bool) {
	muBuilders.RLock()
	defer muBuilders.RUnlock()
	b, ok := builders[kind]
	return b, ok
}

// Manager owns the live module set and reconciles it against the
// server-delivered DeviceConfig, grounded on module_manager.py's
// ModuleManager singleton (generalized here to an explicit value rather
// than a process-wide singleton, since nothing else in this codebase needs
// one).
type Manager struct {
	shared BuildInput // Config is left zero; filled in per-module on build

	mu      sync.Mutex
	modules []Module
}

// NewManager wires the dependencies every builder may draw on.
func NewManager(io *iohub.Hub, st *store.Store, mq *mqttrouter.Router, rf *rfbus.Bridge, busConn *bus.Connection) *Manager {
	return &Manager{shared: BuildInput{IO: io, Store: st, MQTT: mq, RF: rf, Bus: busConn}}
}

// Reconcile applies d: modules whose id has disappeared from d are torn
// down, surviving modules are patched in place, and modules for new ids are
// built via the open registry. Returns the first build error encountered;
// callers treat that as ModuleInit-fatal the same way boot-time
// construction does (§8).
func (m *Manager) Reconcile(d config.DeviceConfig) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	kept := m.modules[:0]
	for _, mod := range m.modules {
		if _, ok := d.ModuleByID(mod.Config().ID); ok {
			kept = append(kept, mod)
			continue
		}
		log.WithField("module_id", mod.Config().ID).Info("module removed from config, destroying")
		mod.OnDestroy()
	}
	m.modules = kept

	for _, cfg := range d.Modules {
		if existing := m.findLocked(cfg.ID); existing != nil {
			existing.PatchConfig(cfg)
			continue
		}
		mod, err := m.buildLocked(cfg)
		if err != nil {
			return err
		}
		m.modules = append(m.modules, mod)
		log.WithField("module_id", cfg.ID).WithField("kind", cfg.Kind).Info("module initialized")
	}
	return nil
}

func (m *Manager) findLocked(id uint32) Module {
	for _, mod := range m.modules {
		if mod.Config().ID == id {
			return mod
		}
	}
	return nil
}

func (m *Manager) buildLocked(cfg config.ModuleConfig) (Module, error) {
	b, ok := findBuilder(cfg.Kind)
	if !ok {
		// An unrecognized kind string is a malformed config, not a
		// peripheral that failed to come up (§4.I: "Unknown kind ->
		// ConfigInvalid").
		return nil, errs.ConfigInvalid(fmt.Sprintf("module %d: unknown kind %q", cfg.ID, cfg.Kind))
	}
	in := m.shared
	in.Config = cfg
	mod, err := b.Build(in)
	if err != nil {
		return nil, errs.ModuleInit(cfg.Kind, cfg.Name)
	}
	return mod, nil
}

// Tick runs every live module's Tick in insertion order and stops at the
// first one that fails: per §4.I, "an exception from a module is logged
// with the module id and re-raised, causing main-loop fatal escalation",
// so a failing module's error is returned (wrapped as ModuleInit, the
// kind §7 treats as a fatal required-subsystem failure) rather than
// swallowed, and modules after it in insertion order do not tick this
// cycle. A module that panics during Tick is treated the same way: the
// panic is recovered and reported as a tick failure instead of crashing
// the process, mirroring how the original's single-threaded loop would
// have surfaced an unhandled exception to its caller.
func (m *Manager) Tick(ctx context.Context) error {
	m.mu.Lock()
	mods := append([]Module(nil), m.modules...)
	m.mu.Unlock()

	for _, mod := range mods {
		if err := m.tickOne(ctx, mod); err != nil {
			return err
		}
	}
	return nil
}

func (m *Manager) tickOne(ctx context.Context, mod Module) (err error) {
	cfg := mod.Config()
	defer func() {
		if r := recover(); r != nil {
			log.WithField("module_id", cfg.ID).Errorf("module panicked during tick: %v", r)
			err = errs.ModuleInit(cfg.Kind, cfg.Name)
		}
	}()
	if tickErr := mod.Tick(ctx); tickErr != nil {
		log.WithField("module_id", cfg.ID).WithError(tickErr).Error("module tick failed")
		return errs.ModuleInit(cfg.Kind, cfg.Name)
	}
	return nil
}

// Shutdown destroys every live module, in insertion order, and clears the
// set.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, mod := range m.modules {
		mod.OnDestroy()
	}
	m.modules = nil
}
