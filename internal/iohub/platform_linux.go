//go:build linux

package iohub

import "os"

// newPlatformBackend prefers the real character-device backend, but falls
// back to the simulation if this host has no GPIO chip (e.g. a dev
// container or CI runner built with GOOS=linux but no actual board).
func newPlatformBackend() backend {
	if _, err := os.Stat(defaultGPIOChip); err != nil {
		log.Warn("no GPIO character device found, using simulated IO backend")
		return newSimBackend()
	}
	lb, err := newLinuxBackend()
	if err != nil {
		log.WithError(err).Warn("linux IO backend init failed, falling back to simulation")
		return newSimBackend()
	}
	return lb
}
