// Package dw3000 drives a Qorvo DW3000 ultra-wideband transceiver through
// its reset, calibration, transmit, and receive lifecycle using a polled
// state machine, following the same "call Poll from a loop" shape as the
// vendor reference driver. No interrupts are used; IRQ is read as a level,
// not handled as an edge source.
package dw3000

import (
	"fmt"
	"io"

	"tinyuwb.dev/dw3000/dwhal"
	"tinyuwb.dev/dw3000/dwreg"
)

// Status is the driver's current position in the lifecycle state machine.
type Status int

const (
	Invalid Status = iota
	ResetActive
	ResetWaitIRQ
	ResetWaitPLL
	CalibrationWait
	Ready
	TransmitWait
	TransmitActive
	TransmitDone
	TransmitTooLate
	ReceiveListen
	ReceiveAnalyze
	ReceiveDone
	ChipError
	CodeBug
)

func (s Status) String() string {
	switch s {
	case Invalid:
		return "Invalid"
	case ResetActive:
		return "ResetActive"
	case ResetWaitIRQ:
		return "ResetWaitIRQ"
	case ResetWaitPLL:
		return "ResetWaitPLL"
	case CalibrationWait:
		return "CalibrationWait"
	case Ready:
		return "Ready"
	case TransmitWait:
		return "TransmitWait"
	case TransmitActive:
		return "TransmitActive"
	case TransmitDone:
		return "TransmitDone"
	case TransmitTooLate:
		return "TransmitTooLate"
	case ReceiveListen:
		return "ReceiveListen"
	case ReceiveAnalyze:
		return "ReceiveAnalyze"
	case ReceiveDone:
		return "ReceiveDone"
	case ChipError:
		return "ChipError"
	case CodeBug:
		return "CodeBug"
	default:
		return "Unknown"
	}
}

// Time-base constants, spec §3: t32 runs at chip_hz/2, t40 at chip_hz*128.
// A t32 tick is exactly 256 t40 ticks.
const (
	chipHz         = 499_200_000
	T32Hz          = chipHz / 2
	T40Hz          = chipHz * 128
	t40PerT32      = T40Hz / T32Hz
	resetLowUs     = 10
	resetIRQWaitMs = 10
	pllWaitMs      = 5
	calWaitMs      = 5

	// sysStatusErrorMask is the set of SYS_STATUS bits that mean the chip
	// itself has faulted, checked on every poll regardless of state
	// (dw3k.cpp's unconditional "Error flag detection" block).
	sysStatusErrorMask = 0xF00020C0000
)

// Driver holds the bring-up and per-transaction state for one DW3000 chip.
// It is not safe for concurrent use; callers serialize access the same way
// the vendor's single-threaded main loop does.
type Driver struct {
	hal *dwhal.HAL
	bus *bus

	state   Status
	errMsg  string
	tAtStep uint32

	txAntennaDelay uint16
	rxAntennaDelay uint16
	chanCtrl       uint16 // CHAN_CTRL as programmed during bring-up

	schedT32   uint32
	txStampT40 uint64

	rxSize     int
	rxStampT40 uint64
}

// New builds a Driver over the given HAL. The driver starts Invalid; call
// Reset to bring the chip up.
func New(hal *dwhal.HAL) *Driver {
	return &Driver{hal: hal, bus: newBus(hal)}
}

// Status returns the driver's current state without advancing it.
func (d *Driver) Status() Status { return d.state }

// Reset drives RSTn low and enters ResetActive; the next Poll releases RSTn
// and begins the bring-up sequence that Poll advances. Reset can be called from any state, including
// ChipError and CodeBug, to recover the driver.
func (d *Driver) Reset() {
	d.hal.RSTn.OutputLow()
	d.hal.IRQ.Input()
	d.hal.DelayMicroseconds(resetLowUs)
	d.state = ResetActive
	d.tAtStep = d.hal.Millis()
	d.errMsg = ""
}

// Poll advances the state machine and returns the resulting status. One
// call can pass through several transitions (e.g. TransmitWait through
// TransmitActive to TransmitDone). It never waits on the chip beyond its
// own register transactions; callers loop it (directly, or through Wait)
// until the state they need is reached.
func (d *Driver) Poll() Status {
	if d.state == ChipError || d.state == CodeBug {
		return d.state
	}

	//
	// Reset handling
	//

	if d.state == ResetActive {
		d.hal.RSTn.InputPullup()
		d.state = ResetWaitIRQ
		d.tAtStep = d.hal.Millis()
	}

	// Basic system initialization once SPI is available.
	if d.state == ResetWaitIRQ {
		if !d.hal.IRQ.Read() {
			if d.hal.Millis()-d.tAtStep > resetIRQWaitMs {
				d.fail("Chip: no IRQ after reset")
			}
			return d.state
		}
		d.bringUp()
		if d.state == ChipError {
			return d.state
		}
	}

	//
	// Error flag detection. Runs on every poll from here on, regardless of
	// state, mirroring dw3k.cpp's unconditional sys_status check.
	//

	status, err := d.bus.read48(dwreg.SysStatus)
	if err != nil {
		d.fail("Chip: status read failed: " + err.Error())
		return d.state
	}
	if status&sysStatusErrorMask != 0 {
		msg := "Chip: Status error"
		if status&0x00040000 != 0 {
			msg = "Chip: Impulse analyzer failure"
		}
		if status&0x00080000 != 0 {
			msg = "Chip: Low voltage"
		}
		if status&0x02000000 != 0 {
			msg = "Chip: Clock PLL losing lock"
		}
		if status&0x10000000000 != 0 {
			msg = "Chip: Command error"
		}
		if status&0xE0000000000 != 0 {
			msg = "Chip: SPI error"
		}
		d.fail(msg)
		return d.state
	}

	//
	// Once PLL is locked, start RX calibration.
	//

	if d.state == ResetWaitPLL {
		if status&0x2 == 0 {
			if d.hal.Millis()-d.tAtStep > pllWaitMs {
				d.fail("Chip: PLL did not lock")
			}
			return d.state
		}
		v, err := d.bus.read16(dwreg.PLLCal)
		if err != nil {
			d.fail("Chip: PLL status read failed: " + err.Error())
			return d.state
		}
		if v&0x100 != 0 {
			return d.state
		}
		if err := d.startCalibration(); err != nil {
			d.fail("Chip: " + err.Error())
			return d.state
		}
	}

	if d.state == CalibrationWait {
		sts, err := d.bus.read8(dwreg.RxCalSts)
		if err != nil {
			d.fail("Chip: calibration status read failed: " + err.Error())
			return d.state
		}
		if sts == 0 {
			if d.hal.Millis()-d.tAtStep > calWaitMs {
				d.fail("Chip: RX calibration did not complete")
			}
			return d.state
		}
		if err := d.finishCalibration(); err != nil {
			d.fail("Chip: " + err.Error())
			return d.state
		}
		d.state = Ready
	}

	//
	// Handle TX/RX completion.
	//

	sysState, err := d.bus.read32(dwreg.SysState)
	if err != nil {
		d.fail("Chip: system state read failed: " + err.Error())
		return d.state
	}

	if d.state == TransmitWait {
		switch {
		case status&0xF0 != 0:
			d.bus.write32(dwreg.SysStatus, 0xF0)
			d.state = TransmitActive
		case status&0x08000000 != 0:
			d.bus.write32(dwreg.SysStatus, 0x08000000)
			d.state = TransmitTooLate
		case sysState == 0x000D0000:
			// DW3000 User Manual 9.4.1 "Delayed TX Notes": the chip can
			// settle back into idle without ever raising HPDWARN.
			d.state = TransmitTooLate
		}
	}

	if d.state == TransmitActive && status&0x80 != 0 {
		d.bus.write32(dwreg.SysStatus, 0x80)
		ts, err := d.bus.read40(dwreg.TxStamp)
		if err != nil {
			d.fail("Chip: TX timestamp read failed: " + err.Error())
			return d.state
		}
		d.txStampT40 = ts
		d.state = TransmitDone
	}

	if d.state == TransmitWait || d.state == TransmitActive {
		pmsc := (sysState >> 16) & 0xFF
		live, err := d.bus.read32(dwreg.SysStatus)
		if err != nil {
			d.fail("Chip: status read failed: " + err.Error())
			return d.state
		}
		if (pmsc < 0x08 || pmsc > 0x0F) && live&0xF0 == 0 {
			d.fail("Chip: PMSC not in TX state")
		}
	}

	if d.state == ReceiveListen && status&0x4000 != 0 {
		d.bus.write32(dwreg.SysStatus, 0x4000)
		d.state = ReceiveAnalyze
	}

	if d.state == ReceiveAnalyze && status&0x2000 != 0 {
		d.bus.write32(dwreg.SysStatus, 0x2000)
		finfo, err := d.bus.read16(dwreg.RxFinfo)
		if err != nil {
			d.fail("Chip: RX frame info read failed: " + err.Error())
			return d.state
		}
		size := int(finfo & 0x3F)
		if size < 2 || size > dwreg.PacketSize+2 {
			d.fail("Chip: Bad RX_FINFO packet size")
			return d.state
		}
		d.rxSize = size - 2
		ts, err := d.bus.read40(dwreg.RxStamp)
		if err != nil {
			d.fail("Chip: RX timestamp read failed: " + err.Error())
			return d.state
		}
		d.rxStampT40 = ts
		d.state = ReceiveDone
	}

	if d.state == ReceiveListen || d.state == ReceiveAnalyze {
		pmsc := (sysState >> 16) & 0xFF
		live, err := d.bus.read32(dwreg.SysStatus)
		if err != nil {
			d.fail("Chip: status read failed: " + err.Error())
			return d.state
		}
		if (pmsc < 0x12 || pmsc > 0x19) && live&0x4400 == 0 {
			d.fail("Chip: PMSC not in RX state")
		}
	}

	return d.state
}

func (d *Driver) fail(msg string) {
	d.errMsg = msg
	d.state = ChipError
}

// bringUp is entered once IRQ confirms the chip survived reset. It checks
// the device ID, applies the vendor boot sequence, and kicks off PLL cal.
func (d *Driver) bringUp() {
	id, err := d.bus.read32(dwreg.DevID)
	if err != nil {
		d.fail("Chip: device ID read failed: " + err.Error())
		return
	}
	if id != dwreg.DevIDRevA && id != dwreg.DevIDRevB {
		d.fail(fmt.Sprintf("Chip: Bad device ID 0x%08X", id))
		return
	}

	// Set operating configuration from OTP values. All four calibration
	// words must be present; a chip that was never factory-calibrated
	// reads back zeros and must not be allowed to proceed.
	ldoLo, err := d.bus.readOTP(dwreg.OTPLDOTuneLo)
	if err != nil {
		d.fail("Chip: OTP read failed: " + err.Error())
		return
	}
	ldoHi, err := d.bus.readOTP(dwreg.OTPLDOTuneHi)
	if err != nil {
		d.fail("Chip: OTP read failed: " + err.Error())
		return
	}
	rawBias, err := d.bus.readOTP(dwreg.OTPBiasTune)
	if err != nil {
		d.fail("Chip: OTP read failed: " + err.Error())
		return
	}
	biasTune := uint8((rawBias >> 16) & 0x1F)
	rawXtal, err := d.bus.readOTP(dwreg.OTPXtalTrim)
	if err != nil {
		d.fail("Chip: OTP read failed: " + err.Error())
		return
	}
	xtalTrim := uint8(rawXtal)
	if ldoLo == 0 || ldoHi == 0 || biasTune == 0 || xtalTrim == 0 {
		d.fail("Chip: Missing value in OTP")
		return
	}

	if err := d.bus.write16(dwreg.OTPCfg, dwreg.OTPCfgCh5); err != nil {
		d.fail("Chip: OTP load trigger failed: " + err.Error())
		return
	}
	if err := d.bus.maskWrite16(dwreg.BiasCtrl, ^uint16(0x1F), uint16(biasTune)); err != nil {
		d.fail("Chip: bias tune write failed: " + err.Error())
		return
	}
	if err := d.bus.write8(dwreg.Xtal, xtalTrim); err != nil {
		d.fail("Chip: xtal trim write failed: " + err.Error())
		return
	}

	writes := []struct {
		addr dwreg.RegisterAddress
		v    uint32
		w16  bool
	}{
		{dwreg.SysCfg, dwreg.SysCfgInit, false},
		{dwreg.ChanCtrl, uint32(dwreg.ChanCtrlCh5), true},
		{dwreg.DGCCfg, uint32(dwreg.DGCCfgInit), true},
		{dwreg.DTune0, uint32(dwreg.DTune0Init), true},
		{dwreg.DTune3, dwreg.DTune3Init, false},
		{dwreg.RFTxCtrl2, dwreg.RFTxCtrl2Ch5, false},
		{dwreg.EVCCtrl, dwreg.EVCCtrlInit, false},
	}
	for _, w := range writes {
		var err error
		if w.w16 {
			err = d.bus.write16(w.addr, uint16(w.v))
		} else {
			err = d.bus.write32(w.addr, w.v)
		}
		if err != nil {
			d.fail("Chip: init write failed: " + err.Error())
			return
		}
	}
	if err := d.bus.write8(dwreg.RFTxCtrl1, dwreg.RFTxCtrl1Init); err != nil {
		d.fail("Chip: init write failed: " + err.Error())
		return
	}
	if err := d.bus.write16(dwreg.TxFctrl, uint16(dwreg.TxFctrlInitLo)); err != nil {
		d.fail("Chip: init write failed: " + err.Error())
		return
	}
	d.chanCtrl = dwreg.ChanCtrlCh5

	if err := d.bus.write16(dwreg.LDOTune, uint16(ldoLo)); err != nil {
		d.fail("Chip: LDO tune write failed: " + err.Error())
		return
	}

	d.txAntennaDelay = defaultAntennaDelay
	d.rxAntennaDelay = defaultAntennaDelay
	if err := d.bus.write16(dwreg.TxAntD, d.txAntennaDelay); err != nil {
		d.fail("Chip: antenna delay write failed: " + err.Error())
		return
	}

	if err := d.bus.write16(dwreg.PLLCal, dwreg.PLLCalStart); err != nil {
		d.fail("Chip: PLL cal start failed: " + err.Error())
		return
	}
	if err := d.bus.maskWrite32(dwreg.SeqCtrl, ^uint32(0), dwreg.SeqCtrlInitPLL); err != nil {
		d.fail("Chip: PLL cal start failed: " + err.Error())
		return
	}
	d.state = ResetWaitPLL
	d.tAtStep = d.hal.Millis()
}

func (d *Driver) startCalibration() error {
	if err := d.bus.write32(dwreg.LDOCtrl, dwreg.LDOCtrlCal); err != nil {
		return err
	}
	if err := d.bus.write32(dwreg.RxCal, dwreg.RxCalStart); err != nil {
		return err
	}
	d.state = CalibrationWait
	d.tAtStep = d.hal.Millis()
	return nil
}

func (d *Driver) finishCalibration() error {
	if err := d.bus.write32(dwreg.LDOCtrl, 0); err != nil {
		return err
	}
	if err := d.bus.write32(dwreg.RxCal, dwreg.RxCalReadMode); err != nil {
		return err
	}
	resI, err := d.bus.read32(dwreg.RxCalResI)
	if err != nil {
		return err
	}
	resQ, err := d.bus.read32(dwreg.RxCalResQ)
	if err != nil {
		return err
	}
	if resI == 0x1FFFFFFF || resQ == 0x1FFFFFFF {
		return errCalibrationFailed
	}
	return nil
}

// defaultAntennaDelay is the factory-typical TX/RX antenna delay in t40
// ticks. bringUp writes it to TX_ANTD and TxExpectedT40 uses it; no
// calibrated per-chip value is read from OTP.
const defaultAntennaDelay = 16450

// ClockT32 reads and returns the chip's free-running t32 counter.
func (d *Driver) ClockT32() (uint32, error) {
	if err := d.bus.write8(dwreg.SysTime, 0); err != nil {
		return 0, err
	}
	return d.bus.read32(dwreg.SysTime)
}

// BufferTX loads data into the chip's transmit buffer and programs the
// frame length. The driver must be Ready; any other state is API misuse.
func (d *Driver) BufferTX(data []byte) error {
	if d.state != Ready {
		return d.misuse("BufferTX called outside Ready")
	}
	if len(data) > dwreg.PacketSize {
		return fmt.Errorf("dw3000: frame of %d bytes exceeds %d byte limit", len(data), dwreg.PacketSize)
	}
	if err := d.bus.write(dwreg.TxBuffer, data); err != nil {
		return err
	}
	return d.bus.maskWrite16(dwreg.TxFctrl, 0xFC00, uint16(len(data)+2))
}

// ScheduleTX arms a delayed transmit for the given t32 time and puts the
// driver in TransmitWait. schedT32 must be at least TxLeadtimeT32 ticks
// ahead of the current clock; the caller is responsible for that check if
// it wants to avoid TransmitTooLate.
func (d *Driver) ScheduleTX(schedT32 uint32) error {
	if d.state != Ready {
		return d.misuse("ScheduleTX called outside Ready")
	}
	if err := d.bus.write32(dwreg.DxTime, schedT32); err != nil {
		return err
	}
	if err := d.bus.fastCommand(dwreg.DTX); err != nil {
		return err
	}
	d.schedT32 = schedT32
	d.state = TransmitWait
	d.tAtStep = d.hal.Millis()
	return nil
}

// preambleSymbols decodes the vendor's 9-value TXPSR lookup from TX_FCTRL
// bits 15:12.
func preambleSymbols(txpsr uint16) (int, bool) {
	switch txpsr {
	case 0x1:
		return 64, true
	case 0x2:
		return 1024, true
	case 0x3:
		return 4096, true
	case 0x4:
		return 32, true
	case 0x5:
		return 128, true
	case 0x6:
		return 1536, true
	case 0x9:
		return 256, true
	case 0xA:
		return 2048, true
	case 0xD:
		return 512, true
	default:
		return 0, false
	}
}

// TxLeadtimeT32 is the minimum number of t32 ticks a caller must schedule
// ahead of ClockT32 for ScheduleTX to have a realistic chance of landing
// before the window closes. Derived from the configured preamble length,
// SFD length, and channel symbol time (dw3k_tx_leadtime_t32).
func (d *Driver) TxLeadtimeT32() uint32 {
	fctrl, err := d.bus.read16(dwreg.TxFctrl)
	if err != nil {
		d.fail("Chip: leadtime TX_FCTRL read failed: " + err.Error())
		return 0
	}
	preSym, ok := preambleSymbols((fctrl >> 12) & 0xF)
	if !ok {
		d.fail("Chip: Bad TXPSR value")
		return 0
	}
	symCount := preSym
	if d.chanCtrl&0x6 == 0x4 {
		symCount += 16
	} else {
		symCount += 8
	}
	symT := 1017.63e-9
	if d.chanCtrl&0xF8 <= 0x40 {
		symT = 993.59e-9
	}
	t := float64(symCount)*symT + 20e-6
	return uint32(t*float64(T32Hz)) + 1
}

// TxExpectedT40 returns the t40 timestamp a transmit scheduled for schedT32
// should produce, accounting for the TX antenna delay. The scheduled time's
// low bit is cleared before the t32-to-t40 conversion (dw3k_tx_expected_t40).
func (d *Driver) TxExpectedT40(schedT32 uint32) uint64 {
	return uint64(schedT32&^1)*t40PerT32 + uint64(d.txAntennaDelay)
}

// TxTimestampT40 returns the chip-reported transmit timestamp. Valid only
// in TransmitDone.
func (d *Driver) TxTimestampT40() (uint64, error) {
	if d.state != TransmitDone {
		return 0, d.misuse("TxTimestampT40 called outside TransmitDone")
	}
	return d.txStampT40, nil
}

// StartRX arms the receiver and moves the driver to ReceiveListen.
func (d *Driver) StartRX() error {
	if d.state != Ready {
		return d.misuse("StartRX called outside Ready")
	}
	if err := d.bus.fastCommand(dwreg.RX); err != nil {
		return err
	}
	d.state = ReceiveListen
	d.tAtStep = d.hal.Millis()
	return nil
}

// RxSize returns the length of the frame the chip received. Valid only in
// ReceiveDone.
func (d *Driver) RxSize() (int, error) {
	if d.state != ReceiveDone {
		return 0, d.misuse("RxSize called outside ReceiveDone")
	}
	return d.rxSize, nil
}

// RetrieveRX copies size bytes of the received frame, starting at offset,
// into out. Valid only in ReceiveDone.
func (d *Driver) RetrieveRX(offset, size int, out []byte) error {
	if d.state != ReceiveDone {
		return d.misuse("RetrieveRX called outside ReceiveDone")
	}
	if offset < 0 || size < 0 || offset+size > d.rxSize {
		return d.misuse("RetrieveRX range outside received frame")
	}
	addr := dwreg.RegisterAddress{File: dwreg.RxBuffer0.File, Offset: dwreg.RxBuffer0.Offset + uint16(offset)}
	return d.bus.read(addr, out[:size])
}

// RxTimestampT40 returns the chip-reported receive timestamp. Valid only
// in ReceiveDone.
func (d *Driver) RxTimestampT40() (uint64, error) {
	if d.state != ReceiveDone {
		return 0, d.misuse("RxTimestampT40 called outside ReceiveDone")
	}
	return d.rxStampT40, nil
}

// RxClockOffset returns the fractional frequency offset between the local
// and remote clocks, estimated from the carrier integrator. Valid only in
// ReceiveDone.
func (d *Driver) RxClockOffset() (float32, error) {
	if d.state != ReceiveDone {
		return 0, d.misuse("RxClockOffset called outside ReceiveDone")
	}
	raw, err := d.bus.read32(dwreg.DRxCarInt)
	if err != nil {
		return 0, err
	}
	v := int32(raw << 11) >> 11 // sign-extend from 21 bits
	return float32(v) * -0.5731e-9, nil
}

// DiagnosticRegisters reads the fixed set of post-bring-up registers
// test_init_main.cpp prints on startup (device ID, boot configuration, and
// calibration results), keyed by their User Manual mnemonic. Safe to call in
// any state; registers the chip hasn't reached yet simply read as zero.
func (d *Driver) DiagnosticRegisters() (map[string]uint32, error) {
	regs := []struct {
		name string
		addr dwreg.RegisterAddress
	}{
		{"DEV_ID", dwreg.DevID},
		{"SYS_CFG", dwreg.SysCfg},
		{"TX_FCTRL", dwreg.TxFctrl},
		{"TX_ANTD", dwreg.TxAntD},
		{"CHAN_CTRL", dwreg.ChanCtrl},
		{"DGC_CFG", dwreg.DGCCfg},
		{"RX_CAL_RESI", dwreg.RxCalResI},
		{"RX_CAL_RESQ", dwreg.RxCalResQ},
		{"DTUNE0", dwreg.DTune0},
		{"DTUNE3", dwreg.DTune3},
		{"RF_TX_CTRL1", dwreg.RFTxCtrl1},
		{"RF_TX_CTRL2", dwreg.RFTxCtrl2},
		{"LDO_TUNE", dwreg.LDOTune},
		{"SEQ_CTRL", dwreg.SeqCtrl},
	}
	out := make(map[string]uint32, len(regs))
	for _, r := range regs {
		v, err := d.bus.read32(r.addr)
		if err != nil {
			return nil, fmt.Errorf("dw3000: diagnostic read %s: %w", r.name, err)
		}
		out[r.name] = v
	}
	return out, nil
}

// EndTXRX returns the driver to Ready from a terminal TX or RX state.
// Calling it from any other state is API misuse.
func (d *Driver) EndTXRX() error {
	switch d.state {
	case TransmitDone, TransmitTooLate, ReceiveDone:
		d.state = Ready
		return nil
	default:
		return d.misuse("EndTXRX called outside a terminal TX/RX state")
	}
}

// misuse records an API-contract violation: the driver becomes CodeBug,
// sticky until Reset, the same way a chip-level failure is sticky as
// ChipError.
func (d *Driver) misuse(msg string) error {
	d.errMsg = msg
	d.state = CodeBug
	return fmt.Errorf("dw3000: %s", msg)
}

// StatusText describes the current state for logs and diagnostics,
// including the recorded failure message for ChipError and CodeBug.
func (d *Driver) StatusText() string {
	switch d.state {
	case ChipError, CodeBug:
		return d.errMsg
	default:
		return d.state.String()
	}
}

// Wait polls until wanted is reached, the driver enters ChipError or
// CodeBug, or timeoutMs elapses, returning whether wanted was reached.
func (d *Driver) Wait(wanted Status, timeoutMs int) bool {
	return d.WaitVerbose(wanted, timeoutMs, nil)
}

// WaitVerbose is Wait with each intermediate status line written to w, if
// w is non-nil. Useful for a CLI that wants to show bring-up progress.
func (d *Driver) WaitVerbose(wanted Status, timeoutMs int, w io.Writer) bool {
	deadline := d.hal.Millis() + uint32(timeoutMs)
	for {
		s := d.Poll()
		if w != nil {
			fmt.Fprintf(w, "dw3000: %s\n", d.StatusText())
		}
		if s == wanted {
			return true
		}
		if s == ChipError || s == CodeBug {
			return false
		}
		if d.hal.Millis() >= deadline {
			return false
		}
		d.hal.DelayMicroseconds(1000)
	}
}
