package bridge

import "fmt"

// StopDisposition is what the correlator does the next time a stop frame
// arrives. A tagged variant rather than a bare bool, so it generalizes
// cleanly if more automatic-resumption modes are ever added.
type StopDisposition int

const (
	// DispositionReport means: forward the halt reason to the debugger
	// as usual.
	DispositionReport StopDisposition = iota
	// DispositionContinueSilently means: this stop is the result of the
	// bridge's own silent single-step; suppress it and issue the real
	// continue instead.
	DispositionContinueSilently
)

// PendingRead is the single outstanding memory-read request, owned by the
// Correlator and consumed when the serial response lands.
type PendingRead struct {
	physAddr uint32
	length   uint16
}

// Correlator is the cross-machine glue: pending-op bookkeeping, the
// silent-step-before-continue workaround, and instruction-memory patching
// on reads. It implements RspHandler.
type Correlator struct {
	xlate *AddrXlate

	serialOut   ByteWriter
	debuggerOut ByteWriter

	interruptMode bool

	breakpointAddr uint32 // physical address, 0 = none
	disposition    StopDisposition

	pendingRead *PendingRead

	debuggerConnected bool
	lastStopReason    byte
	lastStopAddr      uint32
	lastSavedInsns    [4]byte

	// diagnostic is called with the freshly-cached registers whenever a
	// stop frame lands before the debugger has connected. May be nil.
	diagnostic func(regs [numRegs]uint32)

	// beginMemRead arms the SerialFSM to capture the reply to a memory
	// read this Correlator is about to issue. Wired by Bridge, since the
	// Correlator and SerialFSM are constructed independently.
	beginMemRead func(length int)
}

// SetBeginMemRead wires the SerialFSM's read-arming call into the
// Correlator. Must be called once, by Bridge's constructor.
func (c *Correlator) SetBeginMemRead(fn func(length int)) {
	c.beginMemRead = fn
}

// NewCorrelator creates a Correlator. interruptMode selects whether
// memory reads get saved-instruction patching.
func NewCorrelator(xlate *AddrXlate, serialOut, debuggerOut ByteWriter, interruptMode bool) *Correlator {
	return &Correlator{
		xlate:         xlate,
		serialOut:     serialOut,
		debuggerOut:   debuggerOut,
		interruptMode: interruptMode,
		lastStopReason: StopReasonNormal,
	}
}

// SetDiagnostic installs the pre-debugger-connect stop diagnostic hook.
func (c *Correlator) SetDiagnostic(fn func(regs [numRegs]uint32)) {
	c.diagnostic = fn
}

// SetDebuggerConnected records whether the RSP side currently has a live
// debugger connection, so a stop frame can fall back to the diagnostic
// hook instead of replying to nobody.
func (c *Correlator) SetDebuggerConnected(connected bool) {
	c.debuggerConnected = connected
}

// OnStopFrame is called by the SerialFSM whenever a complete stop frame
// arrives. It updates the cache and either reports the halt reason,
// suppresses it in favor of a silent-step continue, or prints a
// diagnostic if nobody is listening yet.
func (c *Correlator) OnStopFrame(frame *StopFrame) {
	c.xlate.UpdateFromStopFrame(frame)
	c.lastStopReason = frame.StopReason
	c.lastStopAddr = frame.StopAddr
	c.lastSavedInsns = frame.SavedInsns

	if !c.debuggerConnected {
		if c.diagnostic != nil {
			c.diagnostic(c.xlate.Registers())
		}
		return
	}

	if c.disposition == DispositionContinueSilently {
		c.disposition = DispositionReport
		c.serialOut.WriteAll([]byte{0xE8})
		return
	}

	c.sendHaltReason()
}

func (c *Correlator) sendHaltReason() {
	sendRSPPacket(c.debuggerOut, c.HaltReason())
}

// HaltReason implements RspHandler's '?' command and the proactive reply
// sent after a step/continue completes.
func (c *Correlator) HaltReason() string {
	if c.lastStopReason == StopReasonWatchpoint {
		return fmt.Sprintf("T05watch:%08x;", c.lastStopAddr)
	}
	return "S05"
}

// ReadRegisters implements RspHandler's 'g' command: the 64-byte register
// cache as 128 lowercase hex characters, little-endian per register.
func (c *Correlator) ReadRegisters() string {
	regs := c.xlate.Registers()
	buf := make([]byte, numRegs*4)
	for i, v := range regs {
		putLE32(buf[i*4:i*4+4], v)
	}
	return encodeHex(buf)
}

// ReadMemory implements RspHandler's 'm' command. It never returns a
// reply directly; the reply is sent once the serial memory response
// lands.
func (c *Correlator) ReadMemory(addr uint32, length uint16) {
	phys := c.xlate.ToPhysical(addr)
	c.pendingRead = &PendingRead{physAddr: phys, length: length}
	if c.beginMemRead != nil {
		c.beginMemRead(int(length))
	}

	cmd := make([]byte, 1+4+2)
	cmd[0] = serialTagMemRead
	putLE32(cmd[1:5], phys)
	putLE16(cmd[5:7], length)
	c.serialOut.WriteAll(cmd)
}

// OnSerialMemRead is called by the SerialFSM once the target's full
// memory-read response has arrived. It applies the instruction-memory
// patch (interrupt mode only) and replies to the debugger.
func (c *Correlator) OnSerialMemRead(data []byte) {
	pr := c.pendingRead
	c.pendingRead = nil
	if pr == nil {
		return
	}
	if c.interruptMode {
		c.patchSavedInsns(data, pr.physAddr)
	}
	sendRSPPacket(c.debuggerOut, encodeHex(data))
}

// patchSavedInsns splices the stub's saved instruction bytes back over a
// memory read that overlaps the current EIP.
func (c *Correlator) patchSavedInsns(data []byte, start uint32) {
	if len(data) == 0 {
		return
	}
	end := start + uint32(len(data)) - 1
	eip := c.xlate.CurrentEIPPhys()
	eipEnd := eip + 3

	overlapStart := start
	if eip > overlapStart {
		overlapStart = eip
	}
	overlapEnd := end
	if eipEnd < overlapEnd {
		overlapEnd = eipEnd
	}
	if overlapStart > overlapEnd {
		return
	}
	n := overlapEnd - overlapStart + 1
	if n > 4 {
		n = 4
	}
	destOffset := overlapStart - start
	srcOffset := overlapStart - eip
	for i := uint32(0); i < n; i++ {
		data[destOffset+i] = c.lastSavedInsns[srcOffset+i]
	}
}

// OnSerialOK is called by the SerialFSM when the target sends the bare
// 0x04 acknowledgement.
func (c *Correlator) OnSerialOK() {
	sendRSPPacket(c.debuggerOut, "OK")
}

// WriteMemory implements RspHandler's 'M' command. A zero-length write is
// a capability probe answered immediately with OK and no serial traffic;
// otherwise the reply is deferred until the target's 0x04 ack.
func (c *Correlator) WriteMemory(addr uint32, length uint16, data []byte) (reply string, sendNow bool) {
	if length == 0 {
		return "OK", true
	}
	phys := c.xlate.ToPhysical(addr)
	cmd := make([]byte, 1+4+2+len(data))
	cmd[0] = 0xF8
	putLE32(cmd[1:5], phys)
	putLE16(cmd[5:7], length)
	copy(cmd[7:], data)
	c.serialOut.WriteAll(cmd)
	return "", false
}

// SingleStep implements RspHandler's 's' command.
func (c *Correlator) SingleStep() {
	c.xlate.Invalidate()
	c.serialOut.WriteAll([]byte{0xC8})
}

// Continue implements RspHandler's 'c' command, including the
// silent-single-step-before-continue workaround.
func (c *Correlator) Continue() {
	if c.breakpointAddr != 0 && c.breakpointAddr == c.xlate.CurrentEIPPhys() {
		c.disposition = DispositionContinueSilently
		c.xlate.Invalidate()
		c.serialOut.WriteAll([]byte{0xC8})
		return
	}
	c.xlate.Invalidate()
	c.disposition = DispositionReport
	c.serialOut.WriteAll([]byte{0xE8})
}

// SetInstrBreakpoint implements RspHandler's Z0/Z1 commands.
func (c *Correlator) SetInstrBreakpoint(addr uint32) {
	phys := c.xlate.ToPhysical(addr)
	c.breakpointAddr = phys
	cmd := make([]byte, 5)
	cmd[0] = 0xA8
	putLE32(cmd[1:5], phys)
	c.serialOut.WriteAll(cmd)
}

// RemoveInstrBreakpoint implements RspHandler's z0/z1 commands.
func (c *Correlator) RemoveInstrBreakpoint() {
	c.breakpointAddr = 0
	c.serialOut.WriteAll([]byte{0xB8})
}

// SetWatchpoint implements RspHandler's Z2/Z4 commands. kind is 0x01
// (write) or 0x03 (access).
func (c *Correlator) SetWatchpoint(kind byte, addr uint32) {
	phys := c.xlate.ToPhysical(addr)
	cmd := make([]byte, 6)
	cmd[0] = 0xB7
	cmd[1] = kind
	putLE32(cmd[2:6], phys)
	c.serialOut.WriteAll(cmd)
}

// RemoveWatchpoint implements RspHandler's z2/z3/z4 commands.
func (c *Correlator) RemoveWatchpoint() {
	c.serialOut.WriteAll([]byte{0xC7})
}

// WriteRegister implements RspHandler's 'P' command, validating the
// debugger register index and 16-bit-register value width before updating
// the cache and forwarding to the target.
func (c *Correlator) WriteRegister(gdbIdx int, value uint32) (reply string, ok bool) {
	if gdbIdx < 0 || gdbIdx >= numRegs {
		return "", false
	}
	if registerIs16Bit(gdbIdx) && value > 0xffff {
		return "", false
	}
	c.xlate.SetRegister(gdbIdx, value)
	tgtIdx := gdbToTargetRegIndex[gdbIdx]
	cmd := make([]byte, 1+1+4)
	cmd[0] = 0xA7
	cmd[1] = tgtIdx
	putLE32(cmd[2:6], value)
	c.serialOut.WriteAll(cmd)
	return "OK", true
}

// ForwardInterrupt implements RspHandler's Ctrl-C handling: forward the
// raw 0x03 byte to the serial device.
func (c *Correlator) ForwardInterrupt() {
	c.serialOut.WriteAll([]byte{0x03})
}

// gdbToTargetRegIndex maps a debugger register index to the target's
// dump-order index.
var gdbToTargetRegIndex = [numRegs]byte{
	7, 6, 5, 4, 3, 2, 1, 0, 13, 15, 14, 12, 11, 10, 9, 8,
}
