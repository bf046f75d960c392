package prefs

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	dir := t.TempDir()
	s := Load(dir)
	if s.Get() != Default() {
		t.Fatalf("expected defaults for a missing config.json, got %+v", s.Get())
	}
}

func TestLoadMalformedFileUsesDefaults(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "config.json"), []byte("{not json"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	s := Load(dir)
	if s.Get() != Default() {
		t.Fatalf("expected defaults for a malformed config.json, got %+v", s.Get())
	}
}

func TestPatchPersistsAndClamps(t *testing.T) {
	dir := t.TempDir()
	s := Load(dir)

	if err := s.Patch(Preferences{DisplayContrast: 99, AutoOffTime: -3, WLANSSID: "home"}); err != nil {
		t.Fatalf("patch: %v", err)
	}
	got := s.Get()
	if got.DisplayContrast != MaxContrast {
		t.Fatalf("expected contrast clamped to %d, got %d", MaxContrast, got.DisplayContrast)
	}
	if got.AutoOffTime != 0 {
		t.Fatalf("expected auto-off clamped to 0, got %d", got.AutoOffTime)
	}

	data, err := os.ReadFile(filepath.Join(dir, "config.json"))
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	var onDisk Preferences
	if err := json.Unmarshal(data, &onDisk); err != nil {
		t.Fatalf("unmarshal persisted file: %v", err)
	}
	if onDisk != got {
		t.Fatalf("on-disk preferences %+v do not match in-memory %+v", onDisk, got)
	}
}

func TestLoadReadsPersistedValues(t *testing.T) {
	dir := t.TempDir()
	first := Load(dir)
	if err := first.SetWLANCredentials("myssid", "secret"); err != nil {
		t.Fatalf("set wlan: %v", err)
	}

	second := Load(dir)
	got := second.Get()
	if got.WLANSSID != "myssid" || got.WLANPasswd != "secret" {
		t.Fatalf("expected persisted WLAN credentials to survive reload, got %+v", got)
	}
}

func TestSetDisplayContrastOnlyChangesThatField(t *testing.T) {
	dir := t.TempDir()
	s := Load(dir)
	if err := s.SetWLANCredentials("net", "pw"); err != nil {
		t.Fatalf("set wlan: %v", err)
	}
	if err := s.SetDisplayContrast(1); err != nil {
		t.Fatalf("set contrast: %v", err)
	}
	got := s.Get()
	if got.DisplayContrast != 1 {
		t.Fatalf("expected contrast=1, got %d", got.DisplayContrast)
	}
	if got.WLANSSID != "net" || got.WLANPasswd != "pw" {
		t.Fatalf("expected WLAN credentials to be preserved, got %+v", got)
	}
}
