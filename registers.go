package dw3000

import (
	"encoding/binary"

	"tinyuwb.dev/dw3000/dwreg"
)

// The accessors below are the Go equivalent of dw3k_spi.h's templated
// dw3k_read<T>/dw3k_write<T> helpers: one function per width, encoding and
// decoding little-endian words over the bus's generic byte transactor.

func (b *bus) read8(addr dwreg.RegisterAddress) (uint8, error) {
	var buf [1]byte
	if err := b.read(addr, buf[:]); err != nil {
		return 0, err
	}
	return buf[0], nil
}

func (b *bus) read16(addr dwreg.RegisterAddress) (uint16, error) {
	var buf [2]byte
	if err := b.read(addr, buf[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(buf[:]), nil
}

func (b *bus) read32(addr dwreg.RegisterAddress) (uint32, error) {
	var buf [4]byte
	if err := b.read(addr, buf[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(buf[:]), nil
}

// read40 reads a 5-byte field (e.g. a t40 timestamp) into the low 40 bits
// of a uint64.
func (b *bus) read40(addr dwreg.RegisterAddress) (uint64, error) {
	var buf [5]byte
	if err := b.read(addr, buf[:]); err != nil {
		return 0, err
	}
	var v uint64
	for i := 4; i >= 0; i-- {
		v = v<<8 | uint64(buf[i])
	}
	return v, nil
}

func (b *bus) read48(addr dwreg.RegisterAddress) (uint64, error) {
	var buf [6]byte
	if err := b.read(addr, buf[:]); err != nil {
		return 0, err
	}
	var v uint64
	for i := 5; i >= 0; i-- {
		v = v<<8 | uint64(buf[i])
	}
	return v, nil
}

func (b *bus) write8(addr dwreg.RegisterAddress, v uint8) error {
	return b.write(addr, []byte{v})
}

func (b *bus) write16(addr dwreg.RegisterAddress, v uint16) error {
	var buf [2]byte
	binary.LittleEndian.PutUint16(buf[:], v)
	return b.write(addr, buf[:])
}

func (b *bus) write32(addr dwreg.RegisterAddress, v uint32) error {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], v)
	return b.write(addr, buf[:])
}

func (b *bus) maskWrite8(addr dwreg.RegisterAddress, mask, set uint8) error {
	return b.maskWrite(addr, []byte{mask}, []byte{set})
}

func (b *bus) maskWrite16(addr dwreg.RegisterAddress, mask, set uint16) error {
	var m, s [2]byte
	binary.LittleEndian.PutUint16(m[:], mask)
	binary.LittleEndian.PutUint16(s[:], set)
	return b.maskWrite(addr, m[:], s[:])
}

func (b *bus) maskWrite32(addr dwreg.RegisterAddress, mask, set uint32) error {
	var m, s [4]byte
	binary.LittleEndian.PutUint32(m[:], mask)
	binary.LittleEndian.PutUint32(s[:], set)
	return b.maskWrite(addr, m[:], s[:])
}

// readOTP performs the indirect OTP read sequence: latch the index into
// OTP_ADDR, pulse the manual-read bit in OTP_CFG, then read back OTP_RDATA.
func (b *bus) readOTP(idx dwreg.OTPAddress) (uint32, error) {
	if err := b.write16(dwreg.OTPAddr, uint16(idx)); err != nil {
		return 0, err
	}
	const otpManualRead = 0x0002
	if err := b.write16(dwreg.OTPCfg, otpManualRead); err != nil {
		return 0, err
	}
	return b.read32(dwreg.OTPRdata)
}
