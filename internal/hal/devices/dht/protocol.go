package dht

import (
	"errors"
	"time"

	"github.com/Martinelllo/smarthome-multi-platform-installer/internal/iohub"
)

// pollPeriod is the busy-poll granularity used while timing line-level
// transitions; well under the shortest pulse the protocol produces (~26us).
const pollPeriod = 2 * time.Microsecond

var (
	errNoResponse  = errors.New("dht: sensor did not respond to the start signal")
	errShortFrame  = errors.New("dht: incomplete 40-bit frame")
	errChecksum    = errors.New("dht: checksum mismatch")
)

// read drives pin through one full DHT11/DHT22 transaction and decodes the
// 40-bit frame into Celsius/percent-relative-humidity. pin must already be
// claimed and idling high (output mode).
func read(pin iohub.GPIOHandle) (tempC, humidity float64, err error) {
	pin.Set(false)
	time.Sleep(18 * time.Millisecond)
	pin.Set(true)
	time.Sleep(30 * time.Microsecond)

	if err := pin.ConfigureInput(iohub.PullUp); err != nil {
		return 0, 0, err
	}
	defer pin.ConfigureOutput(true)

	if !waitForLevel(pin, false, 200*time.Microsecond) {
		return 0, 0, errNoResponse
	}
	if !waitForLevel(pin, true, 200*time.Microsecond) {
		return 0, 0, errNoResponse
	}
	if !waitForLevel(pin, false, 200*time.Microsecond) {
		return 0, 0, errNoResponse
	}

	var bits [40]bool
	for i := range bits {
		if !waitForLevel(pin, true, 100*time.Microsecond) {
			return 0, 0, errShortFrame
		}
		high := measureLevel(pin, true, 100*time.Microsecond)
		bits[i] = high > 50*time.Microsecond
		if !waitForLevel(pin, false, 100*time.Microsecond) {
			// Last bit's trailing low edge may be absent if the bus is
			// released immediately; only a failure before the final bit
			// is fatal.
			if i != len(bits)-1 {
				return 0, 0, errShortFrame
			}
		}
	}

	return decode(packBytes(bits))
}

// decode turns the 5 raw frame bytes (humidity hi/lo, temperature hi/lo,
// checksum) into Celsius/percent-relative-humidity, validating the
// checksum first.
func decode(data [5]byte) (tempC, humidity float64, err error) {
	if data[0]+data[1]+data[2]+data[3] != data[4] {
		return 0, 0, errChecksum
	}
	humidity = float64(uint16(data[0])<<8|uint16(data[1])) / 10
	raw := int16(uint16(data[2]&0x7f)<<8 | uint16(data[3]))
	tempC = float64(raw) / 10
	if data[2]&0x80 != 0 {
		tempC = -tempC
	}
	return tempC, humidity, nil
}

func packBytes(bits [40]bool) [5]byte {
	var out [5]byte
	for i, b := range bits {
		if b {
			out[i/8] |= 1 << uint(7-(i%8))
		}
	}
	return out
}

// waitForLevel busy-polls pin until it reads level, returning false if
// timeout elapses first.
func waitForLevel(pin iohub.GPIOHandle, level bool, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if pin.Get() == level {
			return true
		}
		time.Sleep(pollPeriod)
	}
	return pin.Get() == level
}

// measureLevel assumes pin currently reads level and returns how long it
// continues to, up to timeout.
func measureLevel(pin iohub.GPIOHandle, level bool, timeout time.Duration) time.Duration {
	start := time.Now()
	deadline := start.Add(timeout)
	for time.Now().Before(deadline) {
		if pin.Get() != level {
			return time.Since(start)
		}
		time.Sleep(pollPeriod)
	}
	return timeout
}
