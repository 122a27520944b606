package dw3000

import (
	"testing"

	"tinyuwb.dev/dw3000/dwhal"
	"tinyuwb.dev/dw3000/dwreg"
)

func bringUpReady(t *testing.T, d *Driver) {
	t.Helper()
	d.Reset()
	if !d.Wait(Ready, 1000) {
		t.Fatalf("did not reach Ready, stuck at %s: %s", d.Status(), d.StatusText())
	}
}

func TestColdBootReachesReady(t *testing.T) {
	fake := dwhal.NewFake()
	d := New(fake.HAL())
	bringUpReady(t, d)
	if got, want := d.StatusText(), "Ready"; got != want {
		t.Fatalf("StatusText() = %q, want %q", got, want)
	}
}

func TestBadDeviceIDIsChipError(t *testing.T) {
	fake := dwhal.NewFake()
	fake.SetDevID(0x12345678)
	d := New(fake.HAL())
	d.Reset()
	ok := d.Wait(Ready, 1000)
	if ok {
		t.Fatalf("expected bring-up to fail, reached Ready")
	}
	if d.Status() != ChipError {
		t.Fatalf("Status() = %s, want ChipError", d.Status())
	}
	if d.StatusText() == "" {
		t.Fatalf("expected a non-empty chip error message")
	}
}

func TestMissingOTPIsChipError(t *testing.T) {
	fake := dwhal.NewFake()
	fake.SetOTP(dwreg.OTPXtalTrim, 0)
	d := New(fake.HAL())
	d.Reset()
	ok := d.Wait(Ready, 1000)
	if ok {
		t.Fatalf("expected bring-up to fail, reached Ready")
	}
	if d.Status() != ChipError {
		t.Fatalf("Status() = %s, want ChipError", d.Status())
	}
	if got, want := d.StatusText(), "Chip: Missing value in OTP"; got != want {
		t.Fatalf("StatusText() = %q, want %q", got, want)
	}
}

func TestScheduledTransmitRoundTrip(t *testing.T) {
	fake := dwhal.NewFake()
	d := New(fake.HAL())
	bringUpReady(t, d)

	if err := d.BufferTX([]byte("hello uwb")); err != nil {
		t.Fatalf("BufferTX: %v", err)
	}
	clock, err := d.ClockT32()
	if err != nil {
		t.Fatalf("ClockT32: %v", err)
	}
	sched := clock + d.TxLeadtimeT32() + 1000
	wantT40 := d.TxExpectedT40(sched)

	if err := d.ScheduleTX(sched); err != nil {
		t.Fatalf("ScheduleTX: %v", err)
	}
	if !d.Wait(TransmitDone, 1000) {
		t.Fatalf("did not reach TransmitDone, stuck at %s: %s", d.Status(), d.StatusText())
	}
	gotT40, err := d.TxTimestampT40()
	if err != nil {
		t.Fatalf("TxTimestampT40: %v", err)
	}
	const tolerance = 256
	diff := int64(gotT40) - int64(wantT40)
	if diff < -tolerance || diff > tolerance {
		t.Fatalf("tx timestamp %d outside tolerance of expected %d", gotT40, wantT40)
	}
	if err := d.EndTXRX(); err != nil {
		t.Fatalf("EndTXRX: %v", err)
	}
	if d.Status() != Ready {
		t.Fatalf("Status() after EndTXRX = %s, want Ready", d.Status())
	}
}

func TestReceiveRoundTrip(t *testing.T) {
	fake := dwhal.NewFake()
	d := New(fake.HAL())
	bringUpReady(t, d)

	payload := []byte("0123456789abcde") // 15 bytes
	fake.InjectRxFrame(payload, 0xAABBCCDDEE)

	if err := d.StartRX(); err != nil {
		t.Fatalf("StartRX: %v", err)
	}
	if !d.Wait(ReceiveDone, 1000) {
		t.Fatalf("did not reach ReceiveDone, stuck at %s: %s", d.Status(), d.StatusText())
	}
	n, err := d.RxSize()
	if err != nil {
		t.Fatalf("RxSize: %v", err)
	}
	if n != len(payload) {
		t.Fatalf("RxSize() = %d, want %d", n, len(payload))
	}
	got := make([]byte, n)
	if err := d.RetrieveRX(0, n, got); err != nil {
		t.Fatalf("RetrieveRX: %v", err)
	}
	if string(got) != string(payload) {
		t.Fatalf("RetrieveRX() = %q, want %q", got, payload)
	}
	ts, err := d.RxTimestampT40()
	if err != nil {
		t.Fatalf("RxTimestampT40: %v", err)
	}
	if ts&0xFFFFFFFFFF != 0xAABBCCDDEE {
		t.Fatalf("RxTimestampT40() = %#x, want %#x", ts, 0xAABBCCDDEE)
	}
}

func TestScheduledTransmitTooLate(t *testing.T) {
	fake := dwhal.NewFake()
	d := New(fake.HAL())
	bringUpReady(t, d)

	fake.ForceTxTooLate()
	if err := d.BufferTX([]byte("late")); err != nil {
		t.Fatalf("BufferTX: %v", err)
	}
	clock, _ := d.ClockT32()
	if err := d.ScheduleTX(clock + d.TxLeadtimeT32()); err != nil {
		t.Fatalf("ScheduleTX: %v", err)
	}
	if !d.Wait(TransmitTooLate, 1000) {
		t.Fatalf("did not reach TransmitTooLate, stuck at %s", d.Status())
	}
	if err := d.EndTXRX(); err != nil {
		t.Fatalf("EndTXRX: %v", err)
	}
	if d.Status() != Ready {
		t.Fatalf("Status() after EndTXRX = %s, want Ready", d.Status())
	}
}

func TestAPIMisuseIsStickyCodeBug(t *testing.T) {
	fake := dwhal.NewFake()
	d := New(fake.HAL())
	bringUpReady(t, d)

	if err := d.StartRX(); err != nil {
		t.Fatalf("StartRX: %v", err)
	}
	// Calling BufferTX while a receive is outstanding is a contract
	// violation: the driver is not Ready.
	if err := d.BufferTX([]byte("x")); err == nil {
		t.Fatalf("expected BufferTX to reject the call")
	}
	if d.Status() != CodeBug {
		t.Fatalf("Status() = %s, want CodeBug", d.Status())
	}
	// CodeBug is sticky: polling further must not clear it.
	for i := 0; i < 5; i++ {
		if d.Poll() != CodeBug {
			t.Fatalf("CodeBug did not stick across Poll")
		}
	}
	d.Reset()
	if d.Status() != ResetActive {
		t.Fatalf("Reset() did not clear CodeBug, got %s", d.Status())
	}
}

func TestMaskWriteIdempotent(t *testing.T) {
	fake := dwhal.NewFake()
	hal := fake.HAL()
	b := newBus(hal)

	if err := b.write32(dwreg.BiasCtrl, 0xFFFFFFFF); err != nil {
		t.Fatalf("write32: %v", err)
	}
	apply := func() uint32 {
		if err := b.maskWrite32(dwreg.BiasCtrl, dwreg.BiasCtrlMask, 0x0000000A); err != nil {
			t.Fatalf("maskWrite32: %v", err)
		}
		v, err := b.read32(dwreg.BiasCtrl)
		if err != nil {
			t.Fatalf("read32: %v", err)
		}
		return v
	}
	once := apply()
	twice := apply()
	if once != twice {
		t.Fatalf("masked write not idempotent: %#x then %#x", once, twice)
	}
	if once&0x1F != 0x0A {
		t.Fatalf("masked write did not set low bits: %#x", once)
	}
}
