// Package bridge implements the RSP-to-serial debug protocol core: two
// incremental byte-stream state machines (RspFSM, SerialFSM), the x86
// real-mode address translator (AddrXlate), and the correlator that glues
// them together (silent single-step before continue, instruction-memory
// patching on reads).
//
// The core never touches a socket or a file descriptor directly. It is
// driven by whoever owns the I/O: feed it bytes as they arrive, and it
// calls back through ByteWriter to emit replies. This keeps the state
// machines testable with nothing more than bytes.Buffer.
package bridge

// ByteWriter is the sink for bytes the bridge needs to send to one side
// of the bridge (the debugger connection or the serial device/socket).
// Implementations must write the full buffer, looping internally on
// partial writes: a serial command or an RSP reply is written atomically.
type ByteWriter interface {
	WriteAll(p []byte) error
}

// ByteReader documents the shape the I/O loop reads from and feeds into
// the core's Feed* methods: one read at a time per stream, each result
// fed in before the next read. netio.Conn and serialio.Device both
// satisfy it.
type ByteReader interface {
	Read(p []byte) (n int, err error)
}

// ConnectNotifier is implemented by whatever replaces a listener fd with
// an accepted connection fd in the event loop. Bridge implements it: the
// corresponding On*Connect method resets the matching FSM whenever a
// connection is (re)established; it prints nothing.
type ConnectNotifier interface {
	OnDebuggerConnect()
	OnSerialConnect()
}
