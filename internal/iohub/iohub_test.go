package iohub

import (
	"testing"

	"github.com/Martinelllo/smarthome-multi-platform-installer/internal/errs"
	"github.com/Martinelllo/smarthome-multi-platform-installer/internal/pinmap"
)

func testHub(t *testing.T) *Hub {
	t.Helper()
	pm, err := pinmap.Load(pinmap.RevisionPi40Header)
	if err != nil {
		t.Fatalf("load pinmap: %v", err)
	}
	return New(pm)
}

func TestClaimGPIOIsExclusive(t *testing.T) {
	h := testHub(t)
	if _, err := h.ClaimGPIO("mod-a", 11, FuncGPIOOut); err != nil {
		t.Fatalf("first claim: %v", err)
	}
	if _, err := h.ClaimGPIO("mod-b", 11, FuncGPIOIn); !errs.Is(err, errs.KindIoInit) {
		t.Fatalf("expected IoInit on double-claim, got %v", err)
	}
}

func TestReleasePinAllowsReclaim(t *testing.T) {
	h := testHub(t)
	if _, err := h.ClaimGPIO("mod-a", 11, FuncGPIOOut); err != nil {
		t.Fatalf("claim: %v", err)
	}
	h.ReleasePin(11)
	if _, err := h.ClaimGPIO("mod-b", 11, FuncGPIOIn); err != nil {
		t.Fatalf("reclaim after release: %v", err)
	}
}

func TestI2CIsSharedSingleton(t *testing.T) {
	h := testHub(t)
	a, err := h.I2C()
	if err != nil {
		t.Fatalf("i2c: %v", err)
	}
	b, err := h.I2C()
	if err != nil {
		t.Fatalf("i2c: %v", err)
	}
	if a != b {
		t.Fatalf("expected shared I2C handle across calls")
	}
}

func TestUnknownPhysicalPinFails(t *testing.T) {
	h := testHub(t)
	if _, err := h.ClaimGPIO("mod-a", 1, FuncGPIOOut); !errs.Is(err, errs.KindIoInit) {
		t.Fatalf("expected IoInit for unmapped pin, got %v", err)
	}
}

func TestShutdownReleasesEverything(t *testing.T) {
	h := testHub(t)
	if _, err := h.ClaimGPIO("mod-a", 11, FuncGPIOOut); err != nil {
		t.Fatalf("claim: %v", err)
	}
	h.Shutdown()
	if _, err := h.ClaimGPIO("mod-b", 11, FuncGPIOIn); err != nil {
		t.Fatalf("reclaim after shutdown: %v", err)
	}
}
