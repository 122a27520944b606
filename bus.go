package dw3000

import (
	"tinyuwb.dev/dw3000/dwhal"
	"tinyuwb.dev/dw3000/dwreg"
)

// bus wraps a dwhal.Bus with the DW3000's SPI header framing (spec §4.1):
// a fast-command byte, or a one/two-byte address header followed by the
// read or write payload. This mirrors dw3k_spi.cpp's add_header/add_byte
// accumulation, but builds one contiguous buffer per call instead of
// streaming bytes into a hardware FIFO one at a time, since periph.io's
// spi.Conn (and dwhal.Fake) both take a single whole-transaction buffer.
type bus struct {
	hal *dwhal.HAL
}

func newBus(hal *dwhal.HAL) *bus {
	return &bus{hal: hal}
}

// fastCommand issues a one-byte command with no register addressing.
func (b *bus) fastCommand(cmd dwreg.FastCommand) error {
	tx := []byte{0x81 | byte(cmd)<<1}
	return b.hal.Bus.Tx(tx, nil)
}

// header returns the address header for addr: the 1-byte short form when
// addr has offset 0 and the write is not masked, else the 2-byte long form.
func header(addr dwreg.RegisterAddress, write bool, mbits byte) []byte {
	if addr.Short() && mbits == 0 {
		b0 := byte(addr.File) << 1
		if write {
			b0 |= 0x80
		}
		return []byte{b0}
	}
	b0 := byte(addr.File)<<1 | byte(addr.Offset>>6)
	if write {
		b0 |= 0xC0
	} else {
		b0 |= 0x40
	}
	b1 := byte(addr.Offset<<2) | mbits
	return []byte{b0, b1}
}

// read fills out with len(out) bytes read starting at addr.
func (b *bus) read(addr dwreg.RegisterAddress, out []byte) error {
	hdr := header(addr, false, 0)
	tx := make([]byte, len(hdr)+len(out))
	copy(tx, hdr)
	rx := make([]byte, len(tx))
	if err := b.hal.Bus.Tx(tx, rx); err != nil {
		return err
	}
	copy(out, rx[len(hdr):])
	return nil
}

// write sends data as the full contents of the register starting at addr.
func (b *bus) write(addr dwreg.RegisterAddress, data []byte) error {
	hdr := header(addr, true, 0)
	tx := make([]byte, len(hdr)+len(data))
	copy(tx, hdr)
	copy(tx[len(hdr):], data)
	return b.hal.Bus.Tx(tx, nil)
}

// maskWrite performs a masked read-modify-write: the chip computes
// new = (old & mask) | set, for width bytes (1, 2, or 4) starting at addr.
func (b *bus) maskWrite(addr dwreg.RegisterAddress, mask, set []byte) error {
	var mbits byte
	switch len(mask) {
	case 1:
		mbits = 1
	case 2:
		mbits = 2
	case 4:
		mbits = 3
	default:
		return errInvalidMaskWidth
	}
	hdr := header(addr, true, mbits)
	tx := make([]byte, 0, len(hdr)+len(mask)+len(set))
	tx = append(tx, hdr...)
	tx = append(tx, mask...)
	tx = append(tx, set...)
	return b.hal.Bus.Tx(tx, nil)
}
