// Package prefs persists the TUI-adjacent device preferences (display
// contrast, auto-off timer, WLAN credentials) to config.json, independent
// of the server-delivered DeviceConfig reconciled by internal/hal (§4.N).
// Follows the same patch-in-place, validate-on-construct discipline
// internal/config uses for ModuleConfig.
package prefs

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/Martinelllo/smarthome-multi-platform-installer/internal/logging"
)

var log = logging.WithComponent("prefs")

// MaxContrast and MaxAutoOff bound the 0..5 dial ranges named by §3.
const (
	MaxContrast = 5
	MaxAutoOff  = 5
)

// Preferences is the full set of locally-adjustable settings.
type Preferences struct {
	DisplayContrast int    `json:"display_contrast"`
	AutoOffTime     int    `json:"auto_off_time"`
	WLANSSID        string `json:"WLAN_SSID"`
	WLANPasswd      string `json:"WLAN_passwd"`
}

// Default returns the preferences applied when config.json is absent or
// cannot be parsed.
func Default() Preferences {
	return Preferences{DisplayContrast: 3, AutoOffTime: 2}
}

func (p *Preferences) clamp() {
	if p.DisplayContrast < 0 {
		p.DisplayContrast = 0
	}
	if p.DisplayContrast > MaxContrast {
		p.DisplayContrast = MaxContrast
	}
	if p.AutoOffTime < 0 {
		p.AutoOffTime = 0
	}
	if p.AutoOffTime > MaxAutoOff {
		p.AutoOffTime = MaxAutoOff
	}
}

// Store is the process-wide config.json handle: loaded once at boot, then
// mutated in place and flushed to disk on every change.
type Store struct {
	mu   sync.Mutex
	path string
	prefs Preferences
}

// Load reads dir/config.json, falling back to Default (and logging a
// warning) if the file is absent or malformed. It never returns an error:
// a broken preferences file is not fatal to boot.
func Load(dir string) *Store {
	path := filepath.Join(dir, "config.json")
	s := &Store{path: path, prefs: Default()}

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			log.WithError(err).Warn("failed to read config.json, using defaults")
		}
		return s
	}
	var p Preferences
	if err := json.Unmarshal(data, &p); err != nil {
		log.WithError(err).Warn("config.json is malformed, using defaults")
		return s
	}
	p.clamp()
	s.prefs = p
	return s
}

// Get returns a copy of the current preferences.
func (s *Store) Get() Preferences {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.prefs
}

// Patch applies n over the current preferences in place (overwrite, not
// merge-by-field — every field of n is authoritative, mirroring
// ControllerConfig.Patch's identity-preserving overwrite) and persists the
// result. Out-of-range dial values are clamped rather than rejected.
func (s *Store) Patch(n Preferences) error {
	n.clamp()
	s.mu.Lock()
	s.prefs = n
	data, err := json.MarshalIndent(s.prefs, "", "  ")
	s.mu.Unlock()
	if err != nil {
		return err
	}
	return os.WriteFile(s.path, data, 0o644)
}

// SetDisplayContrast patches just the contrast dial.
func (s *Store) SetDisplayContrast(v int) error {
	p := s.Get()
	p.DisplayContrast = v
	return s.Patch(p)
}

// SetAutoOffTime patches just the auto-off dial.
func (s *Store) SetAutoOffTime(v int) error {
	p := s.Get()
	p.AutoOffTime = v
	return s.Patch(p)
}

// SetWLANCredentials patches the WLAN SSID/password pair.
func (s *Store) SetWLANCredentials(ssid, passwd string) error {
	p := s.Get()
	p.WLANSSID = ssid
	p.WLANPasswd = passwd
	return s.Patch(p)
}
