package bridge

import "github.com/otterlab/rspbridge/internal/scratch"

// Serial tag bytes the target sends as the first byte of a response.
const (
	serialTagStop    byte = 0xC8
	serialTagMemRead byte = 0xD8
	serialTagOK      byte = 0x04
)

// stopFrameSize is the canonical wire size of a stop frame body (not
// counting the leading 0xC8 tag): 8 32-bit GPRs (32 bytes) + 8 16-bit
// seg/control regs (16 bytes) + 1 stop_reason byte + 4 stop_addr bytes +
// 4 saved_insns bytes = 57 bytes.
const stopFrameSize = 4*8 + 2*8 + 1 + 4 + 4

type serialState int

const (
	serialStart serialState = iota
	serialInStop
	serialInMemRead
)

// SerialFSM incrementally parses bytes arriving from the target over the
// serial device/socket, producing StopEvent and MemReadEvent callbacks as
// complete responses land.
type SerialFSM struct {
	state serialState

	stopBuf scratch.Buffer

	memBuf    []byte
	memCursor int

	onStop    func(*StopFrame)
	onMemRead func([]byte)
	onOK      func()
}

// NewSerialFSM creates a SerialFSM wired to the given event callbacks.
// Any of them may be nil if the caller doesn't care about that event.
func NewSerialFSM(onStop func(*StopFrame), onMemRead func([]byte), onOK func()) *SerialFSM {
	return &SerialFSM{
		stopBuf:   *scratch.New(stopFrameSize),
		onStop:    onStop,
		onMemRead: onMemRead,
		onOK:      onOK,
	}
}

// BeginMemRead arms the FSM to capture length bytes for the next D8
// response. Must be called by the correlator when it issues a serial
// memory-read command, before the response can arrive — at most one
// read is ever outstanding.
func (f *SerialFSM) BeginMemRead(length int) {
	f.memBuf = make([]byte, length)
	f.memCursor = 0
}

// Reset returns the FSM to START, discarding any partially-accumulated
// frame. Called on every serial connection accept.
func (f *SerialFSM) Reset() {
	f.state = serialStart
	f.stopBuf.Reset()
	f.memCursor = 0
}

// Feed processes bytes arriving from the serial stream, reentrant across
// arbitrarily small reads.
func (f *SerialFSM) Feed(data []byte) {
	for _, b := range data {
		f.feedByte(b)
	}
}

func (f *SerialFSM) feedByte(b byte) {
	switch f.state {
	case serialStart:
		switch b {
		case serialTagStop:
			f.state = serialInStop
			f.stopBuf.Reset()
		case serialTagMemRead:
			f.state = serialInMemRead
			f.memCursor = 0
		case serialTagOK:
			if f.onOK != nil {
				f.onOK()
			}
		default:
			// Unknown tag while in START: ignore and resync.
		}

	case serialInStop:
		f.stopBuf.Append(b)
		if f.stopBuf.Len() == stopFrameSize {
			frame := decodeStopFrame(f.stopBuf.Bytes())
			f.state = serialStart
			if f.onStop != nil {
				f.onStop(frame)
			}
		}

	case serialInMemRead:
		if f.memCursor < len(f.memBuf) {
			f.memBuf[f.memCursor] = b
			f.memCursor++
		}
		if f.memCursor == len(f.memBuf) {
			buf := f.memBuf
			f.memBuf = nil
			f.state = serialStart
			if f.onMemRead != nil {
				f.onMemRead(buf)
			}
		}
	}
}

// decodeStopFrame unpacks the 57-byte little-endian stop frame body.
func decodeStopFrame(b []byte) *StopFrame {
	f := &StopFrame{}
	f.EDI = le32(b[0:4])
	f.ESI = le32(b[4:8])
	f.EBP = le32(b[8:12])
	f.ESP = le32(b[12:16])
	f.EBX = le32(b[16:20])
	f.EDX = le32(b[20:24])
	f.ECX = le32(b[24:28])
	f.EAX = le32(b[28:32])
	f.GS = le16(b[32:34])
	f.FS = le16(b[34:36])
	f.ES = le16(b[36:38])
	f.DS = le16(b[38:40])
	f.SS = le16(b[40:42])
	f.EIP = le16(b[42:44])
	f.CS = le16(b[44:46])
	f.EFlags = le16(b[46:48])
	f.StopReason = b[48]
	f.StopAddr = le32(b[49:53])
	copy(f.SavedInsns[:], b[53:57])
	return f
}

func le16(b []byte) uint16 {
	return uint16(b[0]) | uint16(b[1])<<8
}

func le32(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}

func putLE16(b []byte, v uint16) {
	b[0] = byte(v)
	b[1] = byte(v >> 8)
}

func putLE32(b []byte, v uint32) {
	b[0] = byte(v)
	b[1] = byte(v >> 8)
	b[2] = byte(v >> 16)
	b[3] = byte(v >> 24)
}
