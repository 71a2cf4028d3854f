package bridge

var _ ConnectNotifier = (*Bridge)(nil)

// Bridge owns the whole protocol core: the register cache, both FSMs,
// and the correlator gluing them together. It is the single value the
// event loop holds and feeds bytes into.
type Bridge struct {
	xlate      *AddrXlate
	correlator *Correlator
	serialFSM  *SerialFSM
	rspFSM     *RspFSM
}

// New creates a Bridge. serialOut writes to the target (device or
// serial-over-socket); debuggerOut writes to the connected GDB session.
// interruptMode selects whether the target overwrites instructions at
// EIP and needs saved-instruction patching on reads.
func New(serialOut, debuggerOut ByteWriter, interruptMode bool) *Bridge {
	xlate := NewAddrXlate()
	corr := NewCorrelator(xlate, serialOut, debuggerOut, interruptMode)
	serialFSM := NewSerialFSM(corr.OnStopFrame, corr.OnSerialMemRead, corr.OnSerialOK)
	corr.SetBeginMemRead(serialFSM.BeginMemRead)
	rspFSM := NewRspFSM(debuggerOut, corr)

	return &Bridge{
		xlate:      xlate,
		correlator: corr,
		serialFSM:  serialFSM,
		rspFSM:     rspFSM,
	}
}

// SetDiagnostic installs the hook invoked with cached registers whenever a
// stop frame lands before the debugger has connected.
func (b *Bridge) SetDiagnostic(fn func(regs [numRegs]uint32)) {
	b.correlator.SetDiagnostic(fn)
}

// FeedSerial pushes bytes received from the target into the serial FSM.
func (b *Bridge) FeedSerial(data []byte) {
	b.serialFSM.Feed(data)
}

// FeedRSP pushes bytes received from the debugger connection into the RSP
// FSM. It returns a non-nil error only on a fatal framing violation or a
// failed ack write; the caller should terminate the debugger session in
// that case.
func (b *Bridge) FeedRSP(data []byte) error {
	return b.rspFSM.Feed(data)
}

// OnDebuggerConnect resets the RSP FSM and marks the debugger connected.
// Implements ConnectNotifier so both FSMs reset to START on any accept.
func (b *Bridge) OnDebuggerConnect() {
	b.rspFSM.Reset()
	b.correlator.SetDebuggerConnected(true)
}

// OnDebuggerDisconnect marks the debugger as no longer connected, so a
// subsequent stop frame falls back to printing the diagnostic instead of
// replying to a closed connection.
func (b *Bridge) OnDebuggerDisconnect() {
	b.correlator.SetDebuggerConnected(false)
}

// OnSerialConnect resets the serial FSM on a fresh accept (socket mode)
// or device open.
func (b *Bridge) OnSerialConnect() {
	b.serialFSM.Reset()
}
