package bridge

import (
	"strings"
	"testing"
)

// rspReply splits a "+$payload#cc" (or just "$payload#cc") wire reply into
// its ack flag and payload, for assertions that don't want to hand-compute
// a checksum.
func rspReply(t *testing.T, wire string) (acked bool, payload string) {
	t.Helper()
	if strings.HasPrefix(wire, "+") {
		acked = true
		wire = wire[1:]
	}
	if !strings.HasPrefix(wire, "$") {
		t.Fatalf("reply %q missing $ framing", wire)
	}
	hash := strings.LastIndex(wire, "#")
	if hash < 0 {
		t.Fatalf("reply %q missing # framing", wire)
	}
	return acked, wire[1:hash]
}

// S1: a stop frame with no debugger connected triggers the diagnostic
// hook instead of an RSP reply; once the debugger connects, '?' replies
// normally.
func TestScenarioS1StopBeforeDebuggerConnects(t *testing.T) {
	var serialOut, debuggerOut writeAllBuffer
	b := New(&serialOut, &debuggerOut, false)

	var diagRegs [numRegs]uint32
	diagFired := false
	b.SetDiagnostic(func(regs [numRegs]uint32) {
		diagFired = true
		diagRegs = regs
	})

	body := buildStopFrameBody(0, 0, 0, 0, 0, 0, 0, 0,
		0, 0, 0, 0, 0, 0x7c00, 0x0000, 0, StopReasonNormal, 0, [4]byte{})
	b.FeedSerial(append([]byte{serialTagStop}, body...))

	if !diagFired {
		t.Fatalf("diagnostic hook should fire before the debugger connects")
	}
	if diagRegs[RegEIP] != 0x7c00 {
		t.Errorf("diagnostic EIP = %x, want 7c00", diagRegs[RegEIP])
	}
	if debuggerOut.Len() != 0 {
		t.Fatalf("no RSP traffic should be sent with no debugger connected")
	}

	b.OnDebuggerConnect()
	debuggerOut.Reset()
	if err := b.FeedRSP(rspPacket("?")); err != nil {
		t.Fatalf("FeedRSP(?): %v", err)
	}
	if got, want := debuggerOut.String(), "+$S05#b8"; got != want {
		t.Errorf("halt reply = %q, want %q", got, want)
	}
}

// S2: 'g' replies with the 128-hex-character register cache.
func TestScenarioS2ReadRegisters(t *testing.T) {
	var serialOut, debuggerOut writeAllBuffer
	b := New(&serialOut, &debuggerOut, false)
	b.OnDebuggerConnect()

	body := buildStopFrameBody(0, 0, 0, 0, 0, 0, 0, 0,
		0, 0, 0, 0, 0, 0x7c00, 0, 0, StopReasonNormal, 0, [4]byte{})
	b.FeedSerial(append([]byte{serialTagStop}, body...))

	debuggerOut.Reset()
	if err := b.FeedRSP(rspPacket("g")); err != nil {
		t.Fatalf("FeedRSP(g): %v", err)
	}
	_, payload := rspReply(t, debuggerOut.String())
	if len(payload) != numRegs*8 {
		t.Errorf("g reply payload length = %d, want %d", len(payload), numRegs*8)
	}
	want := b.correlator.ReadRegisters()
	if payload != want {
		t.Errorf("g reply payload = %q, want %q", payload, want)
	}
}

// S3: 'm' triggers a D8 serial read at the translated physical address;
// the serial reply is hex-encoded straight back in polling mode.
func TestScenarioS3ReadMemory(t *testing.T) {
	var serialOut, debuggerOut writeAllBuffer
	b := New(&serialOut, &debuggerOut, false)
	b.OnDebuggerConnect()

	body := buildStopFrameBody(0, 0, 0, 0, 0, 0, 0, 0,
		0, 0, 0, 0, 0, 0x7c00, 0, 0, StopReasonNormal, 0, [4]byte{})
	b.FeedSerial(append([]byte{serialTagStop}, body...))

	serialOut.Reset()
	if err := b.FeedRSP(rspPacket("m7c00,4")); err != nil {
		t.Fatalf("FeedRSP(m7c00,4): %v", err)
	}
	wantCmd := []byte{0xD8, 0x00, 0x7C, 0x00, 0x00, 0x04, 0x00}
	if got := serialOut.Bytes(); string(got) != string(wantCmd) {
		t.Fatalf("serial command = % x, want % x", got, wantCmd)
	}

	debuggerOut.Reset()
	b.FeedSerial([]byte{serialTagMemRead, 0x90, 0x90, 0x90, 0x90})
	_, payload := rspReply(t, debuggerOut.String())
	if payload != "90909090" {
		t.Errorf("m reply payload = %q, want 90909090", payload)
	}
}

// S4: setting an instruction breakpoint at the current EIP makes the next
// continue a silent step; the real continue is issued once the resulting
// stop frame lands, and nothing is sent to the debugger for it.
func TestScenarioS4SilentStepAtBreakpoint(t *testing.T) {
	var serialOut, debuggerOut writeAllBuffer
	b := New(&serialOut, &debuggerOut, false)
	b.OnDebuggerConnect()

	body := buildStopFrameBody(0, 0, 0, 0, 0, 0, 0, 0,
		0, 0, 0, 0, 0, 0x7c00, 0, 0, StopReasonNormal, 0, [4]byte{})
	b.FeedSerial(append([]byte{serialTagStop}, body...))

	serialOut.Reset()
	if err := b.FeedRSP(rspPacket("Z0,7c00,1")); err != nil {
		t.Fatalf("FeedRSP(Z0,...): %v", err)
	}
	wantSet := []byte{0xA8, 0x00, 0x7C, 0x00, 0x00}
	if got := serialOut.Bytes(); string(got) != string(wantSet) {
		t.Fatalf("breakpoint set command = % x, want % x", got, wantSet)
	}

	serialOut.Reset()
	debuggerOut.Reset()
	if err := b.FeedRSP(rspPacket("c")); err != nil {
		t.Fatalf("FeedRSP(c): %v", err)
	}
	if got, want := serialOut.Bytes(), []byte{0xC8}; string(got) != string(want) {
		t.Fatalf("continue at breakpoint = % x, want silent step %x", got, want)
	}

	// Drop the '+' that acknowledged the 'c' packet itself; only traffic
	// caused by the silently-stepped stop matters below.
	serialOut.Reset()
	debuggerOut.Reset()
	b.FeedSerial(append([]byte{serialTagStop}, body...))
	if got, want := serialOut.Bytes(), []byte{0xE8}; string(got) != string(want) {
		t.Fatalf("post-silent-step stop = % x, want real continue %x", got, want)
	}
	if debuggerOut.Len() != 0 {
		t.Errorf("the silently-stepped stop must not reach the debugger, got %q", debuggerOut.String())
	}
}

// S5: the raw interrupt byte forwards to serial with no RSP reply.
func TestScenarioS5Interrupt(t *testing.T) {
	var serialOut, debuggerOut writeAllBuffer
	b := New(&serialOut, &debuggerOut, false)
	b.OnDebuggerConnect()

	if err := b.FeedRSP([]byte{0x03}); err != nil {
		t.Fatalf("FeedRSP(0x03): %v", err)
	}
	if got, want := serialOut.Bytes(), []byte{0x03}; string(got) != string(want) {
		t.Fatalf("serial = % x, want % x", got, want)
	}
	if debuggerOut.Len() != 0 {
		t.Errorf("interrupt byte should not produce an RSP reply, got %q", debuggerOut.String())
	}
}

// S6: a zero-length write-memory probe replies OK with no serial traffic.
func TestScenarioS6WriteMemoryProbe(t *testing.T) {
	var serialOut, debuggerOut writeAllBuffer
	b := New(&serialOut, &debuggerOut, false)
	b.OnDebuggerConnect()

	if err := b.FeedRSP(rspPacket("M0,0:")); err != nil {
		t.Fatalf("FeedRSP(M0,0:): %v", err)
	}
	if got, want := debuggerOut.String(), "+$OK#9a"; got != want {
		t.Errorf("reply = %q, want %q", got, want)
	}
	if serialOut.Len() != 0 {
		t.Errorf("zero-length write should not touch serial, got % x", serialOut.Bytes())
	}
}

func TestOnDebuggerDisconnectFallsBackToDiagnostic(t *testing.T) {
	var serialOut, debuggerOut writeAllBuffer
	b := New(&serialOut, &debuggerOut, false)
	b.OnDebuggerConnect()
	b.OnDebuggerDisconnect()

	fired := false
	b.SetDiagnostic(func([numRegs]uint32) { fired = true })

	body := buildStopFrameBody(0, 0, 0, 0, 0, 0, 0, 0,
		0, 0, 0, 0, 0, 0x7c00, 0, 0, StopReasonNormal, 0, [4]byte{})
	debuggerOut.Reset()
	b.FeedSerial(append([]byte{serialTagStop}, body...))

	if !fired {
		t.Errorf("diagnostic should fire again once the debugger disconnects")
	}
	if debuggerOut.Len() != 0 {
		t.Errorf("no RSP traffic should be sent to a disconnected debugger")
	}
}
