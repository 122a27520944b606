package dwhal

import (
	"sync"
	"time"

	"tinyuwb.dev/dw3000/dwreg"
)

// Fake is a software stand-in for a DW3000 chip, decoding the same SPI
// header encoding the real bus layer produces (spec §4.1) and emulating
// just enough of the register/status behavior to drive the polled state
// machine through a full reset/init/TX/RX cycle. It follows the style of
// driver/mjolnir's NewSimulator and driver/otp's resetOTP fakes in the
// teacher corpus: a test double reachable through the same interface as
// the real hardware, not a parallel mock API.
type Fake struct {
	mu sync.Mutex

	mem map[regKey]byte
	otp map[dwreg.OTPAddress]uint32

	devID     uint32
	rstnInput bool // true once RSTn has been released to input-pullup

	pllPending int
	calPending int
	calFail    bool

	txStage   int // -1 too late, 0 idle, 1 started, 2 sent, 3 done
	txTooLate bool

	rxStage int // 0 idle, 1 preamble, 2 received, 3 acknowledged
}

type regKey struct {
	file uint8
	off  uint16
}

// NewFake returns a Fake pre-seeded with a valid device ID and the OTP
// calibration words the init sequence requires, so Reset+Poll alone drives
// it to Ready.
func NewFake() *Fake {
	f := &Fake{
		mem: make(map[regKey]byte),
		otp: make(map[dwreg.OTPAddress]uint32),
	}
	f.devID = dwreg.DevIDRevA
	f.otp[dwreg.OTPLDOTuneLo] = 0x1234
	f.otp[dwreg.OTPLDOTuneHi] = 0x5678
	f.otp[dwreg.OTPBiasTune] = 0x0012_0000 // bits[20:16] carry the tune value
	f.otp[dwreg.OTPXtalTrim] = 0x2E
	f.setReg32(dwreg.RxCalResI, 0x0000_1234)
	f.setReg32(dwreg.RxCalResQ, 0x0000_5678)
	return f
}

// HAL returns a dwhal.HAL wired to this fake.
func (f *Fake) HAL() *HAL {
	return &HAL{
		Bus:               f,
		RSTn:              fakeRSTn{f},
		IRQ:               fakeIRQ{f},
		WAKEUP:            &fakeDummyPin{},
		Millis:            f.millis,
		DelayMicroseconds: func(int) {},
	}
}

var fakeStart = time.Now()

func (f *Fake) millis() uint32 {
	return uint32(time.Since(fakeStart).Milliseconds())
}

// SetDevID overrides the simulated DEV_ID, e.g. to exercise the bad-ID path.
func (f *Fake) SetDevID(id uint32) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.devID = id
}

// SetOTP overrides a simulated OTP word, e.g. to exercise the
// missing-calibration path by setting one to zero.
func (f *Fake) SetOTP(addr dwreg.OTPAddress, v uint32) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.otp[addr] = v
}

// ForceCalibrationFailure makes RX calibration report the chip's documented
// failure sentinel (0x1FFFFFFF) once calibration completes.
func (f *Fake) ForceCalibrationFailure() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calFail = true
}

// ForceTxTooLate makes the next scheduled transmit miss its window
// (HPDWARN) instead of completing.
func (f *Fake) ForceTxTooLate() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.txTooLate = true
}

// InjectRxFrame preloads RX_BUFFER0/RX_FINFO/RX_STAMP as if the chip had
// just received payload with the given t40 timestamp.
func (f *Fake) InjectRxFrame(payload []byte, rxStampT40 uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, b := range payload {
		f.mem[regKey{dwreg.RxBuffer0.File, uint16(i)}] = b
	}
	f.setReg32(dwreg.RxFinfo, uint32(len(payload)+2)&0x3F)
	f.setReg32(dwreg.RxStamp, uint32(rxStampT40))
	f.mem[regKey{dwreg.RxStamp.File, dwreg.RxStamp.Offset + 4}] = byte(rxStampT40 >> 32)
}

// SetCarrierOffsetRaw sets the raw 21-bit (sign-extended into 32 bits by
// the caller) DRX_CAR_INT reading used by rx_clock_offset.
func (f *Fake) SetCarrierOffsetRaw(raw int32) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.setReg32(dwreg.DRxCarInt, uint32(raw)&0x1FFFFF)
}

func (f *Fake) setReg32(addr dwreg.RegisterAddress, v uint32) {
	for i := 0; i < 4; i++ {
		f.mem[regKey{addr.File, addr.Offset + uint16(i)}] = byte(v >> (8 * i))
	}
}

func (f *Fake) reg32(addr dwreg.RegisterAddress) uint32 {
	var v uint32
	for i := 0; i < 4; i++ {
		v |= uint32(f.mem[regKey{addr.File, addr.Offset + uint16(i)}]) << (8 * i)
	}
	return v
}

func (f *Fake) reg16(addr dwreg.RegisterAddress) uint16 {
	return uint16(f.mem[regKey{addr.File, addr.Offset}]) |
		uint16(f.mem[regKey{addr.File, addr.Offset + 1}])<<8
}

// --- SPI header decode, mirroring dw3k_spi.cpp's add_header layout. ---

const (
	hdrFastCmdMask, hdrFastCmdVal       = 0xC1, 0x81
	hdrShortWriteMask, hdrShortWriteVal = 0xC1, 0x80
	hdrLongMask                         = 0xC0
	hdrLongWriteVal                     = 0xC0
	hdrLongReadVal                      = 0x40
)

// Tx implements Bus by decoding one DW3000-framed transaction and applying
// it to the simulated register file.
func (f *Fake) Tx(tx, rx []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if len(tx) == 0 {
		return nil
	}
	b0 := tx[0]

	switch {
	case b0&hdrFastCmdMask == hdrFastCmdVal:
		cmd := dwreg.FastCommand((b0 >> 1) & 0x3F)
		f.fastCommand(cmd)
		return nil

	case b0&hdrShortWriteMask == hdrShortWriteVal:
		file := (b0 >> 1) & 0x1F
		f.write(regKey{file, 0}, tx[1:], 0)
		return nil

	case b0&hdrLongMask == 0x00: // short read
		file := (b0 >> 1) & 0x1F
		f.read(regKey{file, 0}, rx[1:])
		return nil

	case b0&hdrLongMask == hdrLongReadVal:
		file := (b0 >> 1) & 0x1F
		off := uint16(b0&0x01)<<6 | uint16(tx[1]>>2)
		f.read(regKey{file, off}, rx[2:])
		return nil

	case b0&hdrLongMask == hdrLongWriteVal:
		file := (b0 >> 1) & 0x1F
		off := uint16(b0&0x01)<<6 | uint16(tx[1]>>2)
		mbits := tx[1] & 0x03
		f.write(regKey{file, off}, tx[2:], mbits)
		return nil
	}
	return nil
}

func (f *Fake) read(key regKey, out []byte) {
	addr := dwreg.RegisterAddress{File: key.file, Offset: key.off}
	f.refreshDynamic(addr)
	for i := range out {
		out[i] = f.mem[regKey{key.file, key.off + uint16(i)}]
	}
}

func (f *Fake) write(key regKey, data []byte, mbits byte) {
	addr := dwreg.RegisterAddress{File: key.file, Offset: key.off}
	switch {
	case mbits != 0:
		width := map[byte]int{1: 1, 2: 2, 3: 4}[mbits]
		mask, set := data[:width], data[width:2*width]
		for i := 0; i < width; i++ {
			k := regKey{key.file, key.off + uint16(i)}
			f.mem[k] = (f.mem[k] & mask[i]) | set[i]
		}
		f.observeWrite(addr, nil)
	case addr == dwreg.SysStatus:
		// Status bits are write-1-to-clear; never a literal overwrite.
		var cleared uint64
		for i, b := range data {
			k := regKey{key.file, key.off + uint16(i)}
			f.mem[k] &^= b
			cleared |= uint64(b) << (8 * i)
		}
		f.advanceStage(cleared)
	default:
		for i, b := range data {
			f.mem[regKey{key.file, key.off + uint16(i)}] = b
		}
		f.observeWrite(addr, data)
	}
}

// observeWrite reacts to writes that the one-shot init/TX/RX sequences use
// to kick off a simulated phase of chip activity.
func (f *Fake) observeWrite(addr dwreg.RegisterAddress, data []byte) {
	switch addr {
	case dwreg.OTPAddr:
		// Latched for the subsequent OTP_CFG pulse; see the OTPCfg case below.
	case dwreg.OTPCfg:
		idx := dwreg.OTPAddress(f.reg16(dwreg.OTPAddr))
		f.setReg32(dwreg.OTPRdata, f.otp[idx])
	case dwreg.SeqCtrl:
		if f.reg32(dwreg.SeqCtrl)&0x100 != 0 {
			f.pllPending = 2
		}
	case dwreg.RxCal:
		if f.reg32(dwreg.RxCal) == dwreg.RxCalStart {
			f.calPending = 2
		}
	case dwreg.SysTime:
		// Any byte write latches a fresh snapshot of the running clock.
		ticks := uint32(time.Since(fakeStart) / time.Microsecond * 250 / 1000)
		f.setReg32(dwreg.SysTime, ticks)
	}
}

// advanceStage moves the simulated tx/rx phase forward when the driver
// acknowledges (write-1-to-clear) the status bits that phase is showing.
func (f *Fake) advanceStage(cleared uint64) {
	switch f.txStage {
	case 1:
		if cleared&0xF0 != 0 {
			f.txStage = 2
			f.setReg48(dwreg.TxStamp, f.computeTxStamp())
		}
	case 2:
		if cleared&0x80 != 0 {
			f.txStage = 3
		}
	case -1:
		if cleared&0x08000000 != 0 {
			f.txStage = 0
		}
	}
	switch f.rxStage {
	case 1:
		if cleared&0x4000 != 0 {
			f.rxStage = 2
		}
	case 2:
		if cleared&0x2000 != 0 {
			f.rxStage = 3
		}
	}
}

// computeTxStamp derives a plausible TX_STAMP value from the scheduled
// DX_TIME and TX_ANTD, matching the driver's own TxExpectedT40 formula
// (low bit of the scheduled t32 value cleared before the ×256 conversion).
func (f *Fake) computeTxStamp() uint64 {
	sched := f.reg32(dwreg.DxTime) &^ 1
	antd := f.reg16(dwreg.TxAntD)
	return uint64(sched)*256 + uint64(antd)
}

func (f *Fake) fastCommand(cmd dwreg.FastCommand) {
	switch cmd {
	case dwreg.DTX:
		if f.txTooLate {
			f.txStage = -1
			f.txTooLate = false
		} else {
			f.txStage = 1
		}
	case dwreg.RX:
		f.rxStage = 1
	case dwreg.TXRXOFF:
		f.txStage, f.rxStage = 0, 0
	}
}

// refreshDynamic lazily materializes registers whose value depends on
// simulated chip progress, just before they're read.
func (f *Fake) refreshDynamic(addr dwreg.RegisterAddress) {
	switch addr {
	case dwreg.DevID:
		f.setReg32(dwreg.DevID, f.devID)
	case dwreg.PLLCal:
		v := f.reg16(dwreg.PLLCal)
		if f.pllPending > 0 {
			v |= 0x100
		} else {
			v &^= 0x100
		}
		f.mem[regKey{addr.File, addr.Offset}] = byte(v)
		f.mem[regKey{addr.File, addr.Offset + 1}] = byte(v >> 8)
	case dwreg.RxCalSts:
		v := byte(0)
		if f.calPending == 0 && f.pllPending == 0 {
			v = 1
		}
		f.mem[regKey{addr.File, addr.Offset}] = v
		if f.calFail {
			f.setReg32(dwreg.RxCalResI, 0x1FFFFFFF)
			f.setReg32(dwreg.RxCalResQ, 0x1FFFFFFF)
		}
	case dwreg.SysStatus:
		f.refreshSysStatus()
	case dwreg.SysState:
		f.refreshSysState()
	}
	if f.pllPending > 0 {
		f.pllPending--
	}
	if f.calPending > 0 {
		f.calPending--
	}
}

func (f *Fake) refreshSysStatus() {
	var status uint64
	if f.pllPending == 0 {
		status |= 0x2 // CPLOCK
	}
	switch f.txStage {
	case 1:
		status |= 0xF0
	case 2:
		status |= 0x80
	case -1:
		status |= 0x08000000
	}
	switch f.rxStage {
	case 1:
		status |= 0x4000
	case 2:
		status |= 0x2000
	}
	v := f.reg48(dwreg.SysStatus) | status
	f.setReg48(dwreg.SysStatus, v)
}

func (f *Fake) refreshSysState() {
	pmsc := uint32(0x03) // idle
	switch {
	case f.txStage == 1 || f.txStage == 2:
		pmsc = 0x08
	case f.rxStage == 1 || f.rxStage == 2:
		pmsc = 0x12
	}
	f.setReg32(dwreg.SysState, pmsc<<16)
}

func (f *Fake) reg48(addr dwreg.RegisterAddress) uint64 {
	var v uint64
	for i := 0; i < 6; i++ {
		v |= uint64(f.mem[regKey{addr.File, addr.Offset + uint16(i)}]) << (8 * i)
	}
	return v
}

func (f *Fake) setReg48(addr dwreg.RegisterAddress, v uint64) {
	for i := 0; i < 6; i++ {
		f.mem[regKey{addr.File, addr.Offset + uint16(i)}] = byte(v >> (8 * i))
	}
}

// TxDone reports whether the simulated transmit has reached its final
// stage, for tests that want to assert on chip-side progress directly.
func (f *Fake) TxDone() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.txStage == 3
}

type fakeRSTn struct{ f *Fake }

func (p fakeRSTn) OutputLow() {
	p.f.mu.Lock()
	defer p.f.mu.Unlock()
	p.f.rstnInput = false
}
func (p fakeRSTn) InputPullup() {
	p.f.mu.Lock()
	defer p.f.mu.Unlock()
	p.f.rstnInput = true
}
func (p fakeRSTn) Input() {}
func (p fakeRSTn) Read() bool {
	p.f.mu.Lock()
	defer p.f.mu.Unlock()
	return p.f.rstnInput
}

type fakeIRQ struct{ f *Fake }

func (p fakeIRQ) OutputLow()   {}
func (p fakeIRQ) InputPullup() {}
func (p fakeIRQ) Input()       {}

// Read reports the chip as having its IRQ line asserted as soon as RSTn
// has been released; a real chip takes longer, but nothing in the driver's
// contract requires a fake to reproduce that latency.
func (p fakeIRQ) Read() bool {
	p.f.mu.Lock()
	defer p.f.mu.Unlock()
	return p.f.rstnInput
}

type fakeDummyPin struct{ low bool }

func (p *fakeDummyPin) OutputLow()   { p.low = true }
func (p *fakeDummyPin) InputPullup() { p.low = false }
func (p *fakeDummyPin) Input()       { p.low = false }
func (p *fakeDummyPin) Read() bool   { return !p.low }
