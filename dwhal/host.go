package dwhal

import (
	"fmt"
	"log"
	"time"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/host/v3"
)

// busHz is the DW3000's specified SPI clock, mode 0, MSB-first (spec §4.1).
const busHz = 36 * physic.MegaHertz

// Host is a HAL backed by periph.io: the SPI bus through the system's
// spireg-registered port, and RSTn/IRQ/WAKEUP as periph.io gpio.PinIO
// lines. Construction follows lcd.Open's host.Init + spireg.Open + Connect
// sequence.
type Host struct {
	port  spi.PortCloser
	conn  spi.Conn
	start time.Time
}

// Open initializes the periph.io host drivers and connects to the first
// available SPI port, returning a HAL driven by it and the three given
// GPIO lines. The caller selects the concrete pins (e.g. bcm283x.GPIOxx on
// a Raspberry Pi) the way driver/wshat and lcd.go do.
func Open(rstn, irq, wakeup gpio.PinIO) (*HAL, *Host, error) {
	if _, err := host.Init(); err != nil {
		return nil, nil, fmt.Errorf("dwhal: %w", err)
	}
	p, err := spireg.Open("")
	if err != nil {
		return nil, nil, fmt.Errorf("dwhal: %w", err)
	}
	c, err := p.Connect(busHz, spi.Mode0, 8)
	if err != nil {
		p.Close()
		return nil, nil, fmt.Errorf("dwhal: %w", err)
	}
	log.Printf("dwhal: opened SPI port at %s", busHz)

	h := &Host{port: p, conn: c, start: time.Now()}
	hal := &HAL{
		Bus:               busAdapter{c},
		RSTn:              periphPin{rstn},
		IRQ:               periphPin{irq},
		WAKEUP:            periphPin{wakeup},
		Millis:            h.millis,
		DelayMicroseconds: SleepMicroseconds,
	}
	return hal, h, nil
}

// Close releases the underlying SPI port.
func (h *Host) Close() error {
	return h.port.Close()
}

func (h *Host) millis() uint32 {
	return uint32(time.Since(h.start).Milliseconds())
}

type busAdapter struct{ conn spi.Conn }

func (b busAdapter) Tx(tx, rx []byte) error {
	return b.conn.Tx(tx, rx)
}

type periphPin struct{ pin gpio.PinIO }

func (p periphPin) OutputLow() {
	if err := p.pin.Out(gpio.Low); err != nil {
		log.Printf("dwhal: %s: output-low: %v", p.pin, err)
	}
}

func (p periphPin) InputPullup() {
	if err := p.pin.In(gpio.PullUp, gpio.NoEdge); err != nil {
		log.Printf("dwhal: %s: input-pullup: %v", p.pin, err)
	}
}

func (p periphPin) Input() {
	if err := p.pin.In(gpio.Float, gpio.NoEdge); err != nil {
		log.Printf("dwhal: %s: input: %v", p.pin, err)
	}
}

func (p periphPin) Read() bool {
	return p.pin.Read() == gpio.High
}
