// Command dw3000ctl brings up a DW3000 over a Raspberry Pi's SPI0 bus and,
// for -count cycles, either transmits a frame on a schedule or listens for
// the next incoming frame, printing the chip's t40 timestamp either way. It mirrors
// the vendor test_init_main.cpp demo: open the chip, wait for Ready, then
// loop one TX/RX cycle at a time.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"sort"

	"periph.io/x/host/v3/bcm283x"

	"tinyuwb.dev/dw3000"
	"tinyuwb.dev/dw3000/dwhal"
)

func main() {
	var (
		listen  = flag.Bool("listen", false, "wait for one received frame instead of transmitting")
		payload = flag.String("payload", "hello uwb", "payload to transmit (ignored with -listen)")
		delayMs = flag.Int("delay-ms", 50, "how far ahead to schedule the transmit")
		count   = flag.Int("count", 1, "number of send/receive cycles to loop, 0 for unlimited")
		verbose = flag.Bool("verbose", false, "print the status after every poll while waiting")
	)
	flag.Parse()

	hal, host, err := dwhal.Open(bcm283x.GPIO17, bcm283x.GPIO27, bcm283x.GPIO22)
	if err != nil {
		log.Fatalf("dw3000ctl: %v", err)
	}
	defer host.Close()

	d := dw3000.New(hal)
	d.Reset()
	if !waitVerbose(d, dw3000.Ready, 2000, *verbose) {
		log.Fatalf("dw3000ctl: bring-up failed: %s", d.StatusText())
	}
	log.Printf("dw3000ctl: chip ready")
	dumpRegisters(d)

	for i := 0; *count == 0 || i < *count; i++ {
		if *listen {
			runReceive(d, *verbose)
		} else {
			runTransmit(d, *payload, *delayMs, *verbose)
		}
	}
}

// dumpRegisters prints the post-bring-up register set test_init_main.cpp
// shows on startup.
func dumpRegisters(d *dw3000.Driver) {
	regs, err := d.DiagnosticRegisters()
	if err != nil {
		log.Fatalf("dw3000ctl: %v", err)
	}
	names := make([]string, 0, len(regs))
	for name := range regs {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Printf("%-12s 0x%08X\n", name, regs[name])
	}
}

func runTransmit(d *dw3000.Driver, payload string, delayMs int, verbose bool) {
	if err := d.BufferTX([]byte(payload)); err != nil {
		log.Fatalf("dw3000ctl: BufferTX: %v", err)
	}
	clock, err := d.ClockT32()
	if err != nil {
		log.Fatalf("dw3000ctl: ClockT32: %v", err)
	}
	ticksPerMs := uint32(dw3000.T32Hz / 1000)
	sched := clock + d.TxLeadtimeT32() + uint32(delayMs)*ticksPerMs
	want := d.TxExpectedT40(sched)

	if err := d.ScheduleTX(sched); err != nil {
		log.Fatalf("dw3000ctl: ScheduleTX: %v", err)
	}
	if !waitVerbose(d, dw3000.TransmitDone, 2000, verbose) {
		log.Fatalf("dw3000ctl: transmit failed: %s", d.StatusText())
	}
	got, err := d.TxTimestampT40()
	if err != nil {
		log.Fatalf("dw3000ctl: TxTimestampT40: %v", err)
	}
	fmt.Printf("sent %d bytes, tx timestamp %d (expected %d)\n", len(payload), got, want)
	if err := d.EndTXRX(); err != nil {
		log.Fatalf("dw3000ctl: EndTXRX: %v", err)
	}
}

func runReceive(d *dw3000.Driver, verbose bool) {
	if err := d.StartRX(); err != nil {
		log.Fatalf("dw3000ctl: StartRX: %v", err)
	}
	if !waitVerbose(d, dw3000.ReceiveDone, 10000, verbose) {
		log.Fatalf("dw3000ctl: receive failed: %s", d.StatusText())
	}
	n, err := d.RxSize()
	if err != nil {
		log.Fatalf("dw3000ctl: RxSize: %v", err)
	}
	buf := make([]byte, n)
	if err := d.RetrieveRX(0, n, buf); err != nil {
		log.Fatalf("dw3000ctl: RetrieveRX: %v", err)
	}
	ts, err := d.RxTimestampT40()
	if err != nil {
		log.Fatalf("dw3000ctl: RxTimestampT40: %v", err)
	}
	offset, err := d.RxClockOffset()
	if err != nil {
		log.Fatalf("dw3000ctl: RxClockOffset: %v", err)
	}
	fmt.Printf("received %d bytes %q, rx timestamp %d, clock offset %.6f\n", n, buf, ts, offset)
	if err := d.EndTXRX(); err != nil {
		log.Fatalf("dw3000ctl: EndTXRX: %v", err)
	}
}

func waitVerbose(d *dw3000.Driver, wanted dw3000.Status, timeoutMs int, verbose bool) bool {
	if !verbose {
		return d.Wait(wanted, timeoutMs)
	}
	return d.WaitVerbose(wanted, timeoutMs, os.Stdout)
}
