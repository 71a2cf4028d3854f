package bridge

import (
	"fmt"

	"github.com/otterlab/rspbridge/internal/scratch"
)

// rspState is the RSP wire-framing state.
type rspState int

const (
	rspStart rspState = iota
	rspCmd
	rspCsumHi
	rspCsumLo
)

// RspHandler is the set of operations an RSP command dispatches to. It is
// implemented by Correlator; RspFSM only owns framing, checksums, and
// picking which method to call.
type RspHandler interface {
	HaltReason() string
	ReadRegisters() string
	ReadMemory(addr uint32, length uint16)
	WriteMemory(addr uint32, length uint16, data []byte) (reply string, sendNow bool)
	SingleStep()
	Continue()
	SetInstrBreakpoint(addr uint32)
	RemoveInstrBreakpoint()
	SetWatchpoint(kind byte, addr uint32)
	RemoveWatchpoint()
	WriteRegister(gdbIdx int, value uint32) (reply string, ok bool)
	ForwardInterrupt()
}

// RspFSM incrementally parses RSP packets arriving from the debugger
// connection, acknowledges and checksums them, and dispatches each
// complete command to an RspHandler.
type RspFSM struct {
	state    rspState
	payload  scratch.Buffer
	checksum byte
	csumHi   byte

	out     ByteWriter // replies to the debugger
	handler RspHandler
}

// maxRSPPayload bounds the payload buffer; exceeding it is a fatal framing
// error.
const maxRSPPayload = 1 << 16

// NewRspFSM creates an RspFSM that writes replies to out and dispatches
// commands to handler.
func NewRspFSM(out ByteWriter, handler RspHandler) *RspFSM {
	return &RspFSM{
		payload: *scratch.New(256),
		out:     out,
		handler: handler,
	}
}

// Reset returns the FSM to START, discarding any partial packet. Called
// on every connection accept.
func (f *RspFSM) Reset() {
	f.state = rspStart
	f.payload.Reset()
	f.checksum = 0
}

// Feed processes bytes arriving from the debugger connection. It returns
// an error only for a fatal framing violation (bad checksum digit,
// checksum mismatch or payload overflow) or a failed write of the '+'
// ack; the caller should terminate the session on error.
func (f *RspFSM) Feed(data []byte) error {
	for _, b := range data {
		if err := f.feedByte(b); err != nil {
			return err
		}
	}
	return nil
}

func (f *RspFSM) feedByte(b byte) error {
	switch f.state {
	case rspStart:
		switch {
		case b == 0x03:
			f.handler.ForwardInterrupt()
		case b == '$':
			f.payload.Reset()
			f.checksum = 0
			f.state = rspCmd
		default:
			// Junk between acks/packets is silently dropped.
		}

	case rspCmd:
		if b == '#' {
			f.state = rspCsumHi
			return nil
		}
		if f.payload.Len() >= maxRSPPayload {
			return fmt.Errorf("rspfsm: payload overflow")
		}
		f.payload.Append(b)
		f.checksum += b

	case rspCsumHi:
		v, err := hexNibble(b)
		if err != nil {
			return fmt.Errorf("rspfsm: bad checksum digit: %w", err)
		}
		f.csumHi = v
		f.state = rspCsumLo

	case rspCsumLo:
		v, err := hexNibble(b)
		if err != nil {
			return fmt.Errorf("rspfsm: bad checksum digit: %w", err)
		}
		got := f.csumHi<<4 | v
		f.state = rspStart
		if got != f.checksum {
			return fmt.Errorf("rspfsm: checksum mismatch: got %02x want %02x", got, f.checksum)
		}
		if err := f.out.WriteAll([]byte{'+'}); err != nil {
			return err
		}
		f.dispatch(string(f.payload.Bytes()))
	}
	return nil
}

// dispatch interprets a complete, checksum-verified RSP payload and
// sends any immediate reply.
func (f *RspFSM) dispatch(payload string) {
	if len(payload) == 0 {
		f.sendEmpty()
		return
	}
	switch payload[0] {
	case '?':
		f.sendPacket(f.handler.HaltReason())

	case 'g':
		f.sendPacket(f.handler.ReadRegisters())

	case 'm':
		addr, length, ok := parseAddrLen(payload[1:])
		if !ok {
			f.sendError()
			return
		}
		f.handler.ReadMemory(addr, length)
		// No immediate reply: the serial memory response triggers it.

	case 'M':
		addr, length, data, ok := parseWriteMemory(payload[1:])
		if !ok {
			f.sendError()
			return
		}
		if reply, sendNow := f.handler.WriteMemory(addr, length, data); sendNow {
			f.sendPacket(reply)
		}

	case 's':
		f.handler.SingleStep()

	case 'c':
		f.handler.Continue()

	case 'Z', 'z':
		f.dispatchBreakWatch(payload)

	case 'P':
		f.dispatchWriteRegister(payload[1:])

	default:
		f.sendEmpty()
	}
}

func (f *RspFSM) dispatchBreakWatch(payload string) {
	set := payload[0] == 'Z'
	if len(payload) < 2 {
		f.sendError()
		return
	}
	kind := payload[1]
	rest := payload[2:]
	rest, err := expectChar(',', rest)
	if err != nil {
		f.sendError()
		return
	}
	addrVal, rest := readInt(rest, 16)
	addr := uint32(addrVal)
	_ = rest // trailing ",kind" for Z/z is ignored; not needed by this target

	switch kind {
	case '0', '1':
		if set {
			f.handler.SetInstrBreakpoint(addr)
		} else {
			f.handler.RemoveInstrBreakpoint()
		}
		f.sendPacket("OK")

	case '2':
		if set {
			f.handler.SetWatchpoint(0x01, addr)
			f.sendPacket("OK")
		} else {
			f.handler.RemoveWatchpoint()
			f.sendPacket("OK")
		}

	case '3':
		// Read watchpoints are unsupported; GDB falls back to Z4.
		if set {
			f.sendEmpty()
		} else {
			f.handler.RemoveWatchpoint()
			f.sendPacket("OK")
		}

	case '4':
		if set {
			f.handler.SetWatchpoint(0x03, addr)
			f.sendPacket("OK")
		} else {
			f.handler.RemoveWatchpoint()
			f.sendPacket("OK")
		}

	default:
		f.sendEmpty()
	}
}

func (f *RspFSM) dispatchWriteRegister(rest string) {
	// The register number in a P command is decimal: "P10=..." addresses
	// gdb register index 10 (CS), not hex 0x10.
	nVal, rest := readInt(rest, 10)
	rest, err := expectChar('=', rest)
	if err != nil {
		f.sendError()
		return
	}
	if nVal >= numRegs {
		f.sendError()
		return
	}
	// The value is eight hex digits read as a plain number, most
	// significant digit first: "00000100" is 0x100.
	raw, err := decodeHex(rest, 4)
	if err != nil {
		f.sendError()
		return
	}
	value := uint32(raw[0])<<24 | uint32(raw[1])<<16 | uint32(raw[2])<<8 | uint32(raw[3])
	if registerIs16Bit(nVal) && value > 0xffff {
		f.sendError()
		return
	}
	reply, ok := f.handler.WriteRegister(nVal, value)
	if !ok {
		f.sendError()
		return
	}
	f.sendPacket(reply)
}

// parseAddrLen parses "<addr:hex>,<len:hex>" as used by 'm'.
func parseAddrLen(s string) (addr uint32, length uint16, ok bool) {
	a, rest := readInt(s, 16)
	rest, err := expectChar(',', rest)
	if err != nil {
		return 0, 0, false
	}
	l, rest := readInt(rest, 16)
	_ = rest
	return uint32(a), uint16(l), true
}

// parseWriteMemory parses "<addr:hex>,<len:hex>:<hex bytes>" as used by 'M'.
func parseWriteMemory(s string) (addr uint32, length uint16, data []byte, ok bool) {
	a, rest := readInt(s, 16)
	rest, err := expectChar(',', rest)
	if err != nil {
		return 0, 0, nil, false
	}
	l, rest := readInt(rest, 16)
	rest, err = expectChar(':', rest)
	if err != nil {
		return 0, 0, nil, false
	}
	if l == 0 {
		return uint32(a), 0, nil, true
	}
	data, err = decodeHex(rest, l)
	if err != nil {
		return 0, 0, nil, false
	}
	return uint32(a), uint16(l), data, true
}

// sendPacket writes an RSP reply packet with a correct checksum.
func (f *RspFSM) sendPacket(payload string) {
	sendRSPPacket(f.out, payload)
}

// sendEmpty replies with the empty packet GDB interprets as "unsupported".
func (f *RspFSM) sendEmpty() {
	f.out.WriteAll([]byte("$#00"))
}

// sendRSPPacket encodes payload as "$payload#cc", with cc the modulo-256
// checksum of payload, and writes it to out. Shared by RspFSM's own
// dispatch replies and the Correlator's deferred replies (memory reads,
// write-memory acks).
func sendRSPPacket(out ByteWriter, payload string) {
	cc := byte(0)
	for i := 0; i < len(payload); i++ {
		cc += payload[i]
	}
	packet := fmt.Sprintf("$%s#%02x", payload, cc)
	out.WriteAll([]byte(packet))
}

// sendError replies E00, the bridge's single recoverable-parse-error code.
func (f *RspFSM) sendError() {
	f.sendPacket("E00")
}
