// Package config models the device/module/sensor/controller configuration
// delivered by the control plane, following the validate-on-construct
// discipline the teacher repo uses for its own HALConfig/Device shapes
// (services/hal/internal/core/types.go), generalized with the patch-in-place
// semantics the original Python entities implement (without reproducing
// their bugs — see DESIGN.md).
package config

import (
	"encoding/json"
	"fmt"

	"github.com/Martinelllo/smarthome-multi-platform-installer/internal/errs"
)

// SensorConfig is immutable after construction; it is owned by its
// ModuleConfig and never patched in place.
type SensorConfig struct {
	ID   uint32 `json:"id"`
	Kind string `json:"type"`
}

// Is reports whether the sensor declares the given kind.
func (s SensorConfig) Is(kind string) bool { return s.Kind == kind }

// ControllerConfig is mutable via Patch; DefaultValue may be nil.
type ControllerConfig struct {
	ID           uint32         `json:"id"`
	Kind         string         `json:"type"`
	DefaultValue map[string]any `json:"defaultValue,omitempty"`
}

// Is reports whether the controller declares the given kind.
func (c ControllerConfig) Is(kind string) bool { return c.Kind == kind }

// HasDefault reports whether a non-empty DefaultValue was supplied.
func (c ControllerConfig) HasDefault() bool { return len(c.DefaultValue) > 0 }

// DefaultValueFor looks up a single key out of DefaultValue.
func (c ControllerConfig) DefaultValueFor(key string) (any, bool) {
	v, ok := c.DefaultValue[key]
	return v, ok
}

// Patch overwrites the kind/default value in place, preserving identity.
func (c *ControllerConfig) Patch(n ControllerConfig) {
	c.Kind = n.Kind
	c.DefaultValue = n.DefaultValue
}

// ModuleConfig is reconciled in place by the Module Manager; identity is ID.
type ModuleConfig struct {
	ID          uint32             `json:"moduleId"`
	Name        string             `json:"name"`
	Kind        string             `json:"type"`
	IntervalMs  uint32             `json:"readingInterval"`
	Pins        map[string]uint8   `json:"interface"`
	Sensors     []SensorConfig     `json:"sensors"`
	Controllers []ControllerConfig `json:"controllers"`
}

// Is reports whether the module declares the given kind.
func (m ModuleConfig) Is(kind string) bool { return m.Kind == kind }

// Pin resolves a named physical pin from the module's interface map.
// ok is false if the key is absent.
func (m ModuleConfig) Pin(key string) (uint8, bool) {
	v, ok := m.Pins[key]
	return v, ok
}

// SensorByID returns the sensor with the given id, if any.
func (m ModuleConfig) SensorByID(id uint32) (SensorConfig, bool) {
	for _, s := range m.Sensors {
		if s.ID == id {
			return s, true
		}
	}
	return SensorConfig{}, false
}

// ControllerByID returns a pointer to the controller with the given id so
// callers can mutate it via Patch, or nil if absent.
func (m *ModuleConfig) ControllerByID(id uint32) *ControllerConfig {
	for i := range m.Controllers {
		if m.Controllers[i].ID == id {
			return &m.Controllers[i]
		}
	}
	return nil
}

// Patch reconciles m in place against n: matching-id sensors/controllers are
// patched (identity preserved), unmatched ones from n are appended. Sensors
// are immutable per §3 so a matching sensor id is left untouched rather than
// overwritten; only its presence is checked. This is what lets a Module's
// patch_config avoid tearing down GPIO state on every config refresh.
func (m *ModuleConfig) Patch(n ModuleConfig) {
	m.Name = n.Name
	m.Kind = n.Kind
	m.IntervalMs = n.IntervalMs
	m.Pins = n.Pins

	for _, ns := range n.Sensors {
		if _, exists := m.SensorByID(ns.ID); !exists {
			m.Sensors = append(m.Sensors, ns)
		}
	}

	for _, nc := range n.Controllers {
		if existing := m.ControllerByID(nc.ID); existing != nil {
			existing.Patch(nc)
		} else {
			m.Controllers = append(m.Controllers, nc)
		}
	}
}

// DeviceConfig is the top-level configuration delivered by the server.
type DeviceConfig struct {
	ID      uint32         `json:"id"`
	Name    string         `json:"name"`
	Modules []ModuleConfig `json:"modules"`
}

// ModuleByID returns the module with the given id, if any.
func (d DeviceConfig) ModuleByID(id uint32) (ModuleConfig, bool) {
	for _, m := range d.Modules {
		if m.ID == id {
			return m, true
		}
	}
	return ModuleConfig{}, false
}

// ParseDeviceConfig decodes and validates a server-delivered device
// description. Required-field validation mirrors the original entity
// constructors (src/entities/config_entity.py): missing name/id/type/
// interval/sensors-as-list fails with ConfigInvalid{path}.
func ParseDeviceConfig(data []byte) (DeviceConfig, error) {
	var d DeviceConfig
	if err := json.Unmarshal(data, &d); err != nil {
		return d, errs.ConfigInvalid("device-config: " + err.Error())
	}
	if err := validateDevice(d); err != nil {
		return d, err
	}
	return d, nil
}

func validateDevice(d DeviceConfig) error {
	if d.ID == 0 {
		return errs.ConfigInvalid("device.id")
	}
	if d.Name == "" {
		return errs.ConfigInvalid("device.name")
	}
	for i, m := range d.Modules {
		if err := validateModule(m); err != nil {
			return errs.ConfigInvalid(fmt.Sprintf("device.modules[%d]: %v", i, err))
		}
	}
	return nil
}

func validateModule(m ModuleConfig) error {
	if m.Name == "" {
		return fmt.Errorf("module needs a name")
	}
	if m.ID == 0 {
		return fmt.Errorf("module needs a moduleId")
	}
	if m.Kind == "" {
		return fmt.Errorf("module needs a type")
	}
	if m.IntervalMs == 0 {
		return fmt.Errorf("module needs a readingInterval")
	}
	for i, s := range m.Sensors {
		if s.ID == 0 || s.Kind == "" {
			return fmt.Errorf("sensors[%d] needs an id and a type", i)
		}
	}
	for i, c := range m.Controllers {
		if c.ID == 0 || c.Kind == "" {
			return fmt.Errorf("controllers[%d] needs an id and a type", i)
		}
	}
	return nil
}
