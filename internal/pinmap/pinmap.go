// Package pinmap maps a board's physical header pin numbers, as used in
// ModuleConfig.Pins, to the SoC's GPIO line numbers.
package pinmap

import "github.com/Martinelllo/smarthome-multi-platform-installer/internal/errs"

// Revision identifies a supported board layout. Only one layout ships
// today; the type exists so a second board can be added without changing
// callers.
type Revision string

const RevisionPi40Header Revision = "pi-40-header"

// raspberryPi40 is the standard 40-pin header physical-pin -> BCM GPIO
// table, carried over from the original firmware's pin table.
var raspberryPi40 = map[int]int{
	3: 2, 5: 3, 7: 4, 8: 14, 10: 15,
	11: 17, 12: 18, 13: 27, 15: 22, 16: 23,
	18: 24, 19: 10, 21: 9, 22: 25, 23: 11,
	24: 8, 26: 7, 29: 5, 31: 6, 32: 12,
	33: 13, 35: 19, 36: 16, 37: 26, 38: 20,
	40: 21,
}

// Map is a board's physical-pin -> GPIO lookup table.
type Map struct {
	revision Revision
	table    map[int]int
}

// Load returns the Map for rev, or IoInit if the revision is unknown.
func Load(rev Revision) (*Map, error) {
	switch rev {
	case RevisionPi40Header, "":
		return &Map{revision: RevisionPi40Header, table: raspberryPi40}, nil
	default:
		return nil, errs.IoInit("pin-map:" + string(rev))
	}
}

// GPIO resolves a physical pin number to its GPIO line number.
func (m *Map) GPIO(physicalPin int) (int, error) {
	gpio, ok := m.table[physicalPin]
	if !ok {
		return 0, errs.IoInit("pin")
	}
	return gpio, nil
}
