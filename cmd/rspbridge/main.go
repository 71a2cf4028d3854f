// Command rspbridge bridges a GDB Remote Serial Protocol session to the
// byte-oriented serial protocol spoken by a 16-bit real-mode x86 debug
// stub. It owns the two TCP/serial dispatch slots and the
// single-threaded event loop that drives the protocol core.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/otterlab/rspbridge/internal/bridge"
	"github.com/otterlab/rspbridge/internal/iodispatch"
	"github.com/otterlab/rspbridge/internal/netio"
	"github.com/otterlab/rspbridge/internal/serialio"
)

func main() {
	var (
		socketMode = flag.Bool("s", false, "socket-mode target (serial-over-TCP instead of a device)")
		devicePath = flag.String("d", "/dev/ttyUSB0", "serial device path (device mode)")
		serialPort = flag.Int("p", 2345, "serial socket port (socket mode)")
		debugPort  = flag.Int("g", 1234, "debugger (GDB) port")
		polling    = flag.Bool("polling", false, "target runs the polling-mode stub (no instruction-patch-on-read)")
		legacyBaud = flag.Bool("legacy-baud", false, "target runs at the legacy 9600 baud rate instead of 115200")
	)
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: rspbridge [flags]\n\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	if err := run(*socketMode, *devicePath, *serialPort, *debugPort, !*polling, *legacyBaud); err != nil {
		fmt.Fprintf(os.Stderr, "rspbridge: %v\n", err)
		os.Exit(1)
	}
}

func run(socketMode bool, devicePath string, serialPort, debugPort int, interruptMode, legacyBaud bool) error {
	serialOut := newSwitchWriter()
	debuggerOut := newSwitchWriter()

	br := bridge.New(serialOut, debuggerOut, interruptMode)
	br.SetDiagnostic(printRegisterDump)

	debugLn, err := netio.Listen("debugger", debugPort)
	if err != nil {
		return err
	}
	defer debugLn.Close()

	disp := iodispatch.New()

	if socketMode {
		log.Printf("please turn on your debugged device and connect it to port %d", serialPort)
		serialLn, err := netio.Listen("serial", serialPort)
		if err != nil {
			return err
		}
		defer serialLn.Close()
		disp.WatchAccepter(iodispatch.RoleSerial, listenerAccepter{serialLn})
	} else {
		log.Printf("please connect your serial device at %s and turn on your debugged device", devicePath)
		baud := serialio.Baud115200
		if legacyBaud {
			baud = serialio.Baud9600
		}
		dev, err := serialio.OpenDevice(devicePath, baud)
		if err != nil {
			return err
		}
		defer dev.Close()
		serialOut.set(dev)
		disp.WatchReader(iodispatch.RoleSerial, dev)
		br.OnSerialConnect()
	}

	log.Printf("do not connect GDB yet! waiting on port %d", debugPort)
	disp.WatchAccepter(iodispatch.RoleDebugger, listenerAccepter{debugLn})

	for ev := range disp.Events() {
		if err := handleEvent(br, serialOut, debuggerOut, ev); err != nil {
			return err
		}
	}
	return nil
}

// handleEvent applies one dispatch event to the bridge. A fatal I/O error
// on either role terminates the whole process.
func handleEvent(br *bridge.Bridge, serialOut, debuggerOut *switchWriter, ev iodispatch.Event) error {
	switch ev.Role {
	case iodispatch.RoleSerial:
		switch {
		case ev.Connected != nil:
			serialOut.set(ev.Connected)
			br.OnSerialConnect()
		case ev.Data != nil:
			br.FeedSerial(ev.Data)
		case ev.Err != nil:
			// Socket mode re-accepts automatically; device mode has
			// nothing left to read from once its one reader ends, but
			// the debugger session (if any) is left intact rather than
			// torn down over a target-side hiccup.
			log.Printf("serial connection lost: %v", ev.Err)
		}
	case iodispatch.RoleDebugger:
		switch {
		case ev.Connected != nil:
			debuggerOut.set(ev.Connected)
			br.OnDebuggerConnect()
			log.Printf("GDB connected!")
		case ev.Data != nil:
			if err := br.FeedRSP(ev.Data); err != nil {
				return fmt.Errorf("debugger session: %w", err)
			}
		case ev.Err != nil:
			br.OnDebuggerDisconnect()
			log.Printf("debugger disconnected: %v", ev.Err)
		}
	}
	return nil
}

func printRegisterDump(regs [16]uint32) {
	names := [16]string{"eax", "ecx", "edx", "ebx", "esp", "ebp", "esi", "edi",
		"eip", "eflags", "cs", "ss", "ds", "es", "fs", "gs"}
	for i, n := range names {
		fmt.Printf("%-7s %08x\n", n, regs[i])
	}
	log.Printf("you can now connect GDB!")
}

// listenerAccepter adapts *netio.Listener to iodispatch.Accepter.
type listenerAccepter struct {
	ln *netio.Listener
}

func (a listenerAccepter) Accept() (iodispatch.Conn, error) {
	c, err := a.ln.Accept()
	if err != nil {
		return nil, err
	}
	return c, nil
}
