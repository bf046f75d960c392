//go:build !linux

package iohub

// newPlatformBackend always returns the simulation off Linux; the real
// backend is built on the GPIO/I2C/SPI character-device ABI, which is
// Linux-specific.
func newPlatformBackend() backend { return newSimBackend() }
