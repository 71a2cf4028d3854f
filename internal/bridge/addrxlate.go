package bridge

// Debugger register indices, in the order GDB's RSP expects them in a
// 'g' reply and a 'p'/'P' register number.
const (
	RegEAX = iota
	RegECX
	RegEDX
	RegEBX
	RegESP
	RegEBP
	RegESI
	RegEDI
	RegEIP
	RegEFLAGS
	RegCS
	RegSS
	RegDS
	RegES
	RegFS
	RegGS
	numRegs = 16
)

// registerIs16Bit reports whether the debugger register at index idx is a
// 16-bit segment register on the real-mode target. A 'P' write to one of
// these is rejected if the value does not fit in 16 bits.
func registerIs16Bit(idx int) bool {
	switch idx {
	case RegCS, RegSS, RegDS, RegES, RegFS, RegGS:
		return true
	default:
		return false
	}
}

// eipProximityThreshold is the heuristic distance (in bytes) within which
// ToPhysical treats a GDB address as EIP-relative rather than already
// physical. Acknowledged in the original source as a guesstimate tuned
// for BIOS-range code; kept as the single canonical threshold rather
// than a segment-base-aware check.
const eipProximityThreshold = 512

// StopFrame is the decoded wire image of a target stop notification.
// SavedInsns and StopAddr/StopReason are zero in polling mode.
type StopFrame struct {
	EDI, ESI, EBP, ESP, EBX, EDX, ECX, EAX uint32
	GS, FS, ES, DS, SS, EIP, CS, EFlags    uint16
	StopReason                             byte
	StopAddr                                uint32
	SavedInsns                             [4]byte
}

const (
	StopReasonNormal     byte = 10
	StopReasonWatchpoint byte = 20
)

// AddrXlate holds the cached register file and performs the real-mode
// SEG:OFF <-> physical address translation GDB's linear memory model
// needs.
type AddrXlate struct {
	regs  [numRegs]uint32
	valid bool
}

// NewAddrXlate creates an AddrXlate with an empty, invalid register cache.
func NewAddrXlate() *AddrXlate {
	return &AddrXlate{}
}

// Valid reports whether the cache holds state from a completed stop frame.
func (a *AddrXlate) Valid() bool {
	return a.valid
}

// Invalidate clears the valid bit; called on every run-control command.
func (a *AddrXlate) Invalidate() {
	a.valid = false
}

// Register returns the cached value of debugger register idx.
func (a *AddrXlate) Register(idx int) uint32 {
	return a.regs[idx]
}

// SetRegister stores value into debugger register idx.
func (a *AddrXlate) SetRegister(idx int, value uint32) {
	a.regs[idx] = value
}

// Registers returns all 16 cached registers in debugger order, the shape
// a 'g' reply hex-encodes.
func (a *AddrXlate) Registers() [numRegs]uint32 {
	return a.regs
}

// currentEIPPhys computes (CS << 4) + EIP, the physical address the
// target is currently executing.
func (a *AddrXlate) currentEIPPhys() uint32 {
	return (a.regs[RegCS] << 4) + a.regs[RegEIP]
}

// CurrentEIPPhys exposes currentEIPPhys for the correlator.
func (a *AddrXlate) CurrentEIPPhys() uint32 {
	return a.currentEIPPhys()
}

// ToPhysical converts a GDB-supplied address to a physical address.
//
// GDB treats memory as linear, so when it reads around the program
// counter it passes an address that is really CS:OFF shorthand for OFF
// alone; when a user types an address directly in GDB, it is already
// physical. The heuristic: if shifting by CS would land within
// eipProximityThreshold bytes of the current instruction, assume the
// debugger meant the shifted form; otherwise the address is already
// physical.
func (a *AddrXlate) ToPhysical(gdbAddr uint32) uint32 {
	shifted := (a.regs[RegCS] << 4) + gdbAddr
	eip := a.currentEIPPhys()
	dist := int64(shifted) - int64(eip)
	if dist < 0 {
		dist = -dist
	}
	if dist < eipProximityThreshold {
		return shifted
	}
	return gdbAddr
}

// UpdateFromStopFrame copies GPRs from a stop frame into the cache,
// widening 16-bit values to 32, adjusts ESP for the stub's stop
// prologue, and marks the cache valid.
func (a *AddrXlate) UpdateFromStopFrame(f *StopFrame) {
	a.regs[RegEAX] = f.EAX
	a.regs[RegECX] = f.ECX
	a.regs[RegEDX] = f.EDX
	a.regs[RegEBX] = f.EBX
	// The stub pushes eight 16-bit values onto the stack as part of its
	// stop prologue; GDB must not see that adjustment in ESP.
	a.regs[RegESP] = f.ESP + 16
	a.regs[RegEBP] = f.EBP
	a.regs[RegESI] = f.ESI
	a.regs[RegEDI] = f.EDI
	a.regs[RegEIP] = uint32(f.EIP)
	a.regs[RegEFLAGS] = uint32(f.EFlags)
	a.regs[RegCS] = uint32(f.CS)
	a.regs[RegSS] = uint32(f.SS)
	a.regs[RegDS] = uint32(f.DS)
	a.regs[RegES] = uint32(f.ES)
	a.regs[RegFS] = uint32(f.FS)
	a.regs[RegGS] = uint32(f.GS)
	a.valid = true
}
