// Package dwhal defines the hardware-abstraction contract the DW3000 driver
// depends on (spec §6): the three directly-controlled GPIO lines (RSTn,
// IRQ, WAKEUP), the raw SPI byte-stream transactor, a millisecond clock,
// and a microsecond busy-wait. It also provides a periph.io-backed
// implementation for Linux SPI/GPIO hosts and a software Fake for tests.
package dwhal

import "time"

// Pin is one of the three GPIO lines the driver drives or reads directly.
// CSn/CLK/MISO/MOSI are not modeled here: they are owned by the hardware
// SPI peripheral behind Bus, the same way periph.io's spi.Conn owns chip
// select internally (see dwhal.Host and lcd.go in the teacher corpus,
// which never toggles CS by hand once a spi.Conn is in use).
type Pin interface {
	// OutputLow configures the pin as a driven output and pulls it low.
	OutputLow()
	// InputPullup configures the pin as an input with an internal pull-up,
	// releasing it to be driven by the remote end (open-drain style).
	InputPullup()
	// Input configures the pin as a floating input.
	Input()
	// Read returns the current logic level, true for high.
	Read() bool
}

// Bus is the chip's raw SPI transactor. Tx drives out exactly len(tx)
// bytes while capturing the same count into rx (rx may be shorter than tx,
// or nil, for a write-only transaction whose response is discarded).
// Chip-select is asserted for the duration of exactly one Tx call.
type Bus interface {
	Tx(tx, rx []byte) error
}

// HAL bundles the external facilities spec §6 requires of the host:
// pin control for RSTn/IRQ/WAKEUP, the SPI bus, a monotonic millisecond
// clock, and a cooperative microsecond delay. A zero HAL is not usable;
// build one with Open (real hardware) or NewFake (tests).
type HAL struct {
	Bus    Bus
	RSTn   Pin
	IRQ    Pin
	WAKEUP Pin

	// Millis returns a monotonically non-decreasing millisecond counter.
	// Wraparound within a single process run is not a concern.
	Millis func() uint32

	// DelayMicroseconds busy-waits for at least the given number of
	// microseconds before returning.
	DelayMicroseconds func(us int)
}

// SleepMicroseconds is a DelayMicroseconds implementation backed by
// time.Sleep, suitable for any HAL built on a general-purpose OS.
func SleepMicroseconds(us int) {
	time.Sleep(time.Duration(us) * time.Microsecond)
}
