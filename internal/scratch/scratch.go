// Package scratch provides a reusable grow-only byte buffer, the dynamic
// hex-buffer allocator the bridge core treats as an external collaborator.
// Callers must copy out any slice before the next Reset or Append call —
// the contract mirrors the codec's: a returned slice is valid only until
// the next call.
package scratch

// Buffer is a grow-only byte buffer that never shrinks its backing array,
// to avoid repeated allocation in the hot per-packet parse path.
type Buffer struct {
	data []byte
	len  int
}

// New creates a Buffer with the given initial capacity.
func New(capacity int) *Buffer {
	return &Buffer{data: make([]byte, 0, capacity)}
}

// Reset empties the buffer without releasing its backing array.
func (b *Buffer) Reset() {
	b.len = 0
}

// Append adds a byte to the buffer, growing the backing array if needed.
func (b *Buffer) Append(c byte) {
	if b.len < len(b.data) {
		b.data[b.len] = c
	} else {
		b.data = append(b.data, c)
	}
	b.len++
}

// Bytes returns the buffer's current contents. The returned slice is only
// valid until the next Reset or Append call.
func (b *Buffer) Bytes() []byte {
	return b.data[:b.len]
}

// Len returns the number of bytes currently held.
func (b *Buffer) Len() int {
	return b.len
}

// Cap returns the capacity of the backing array.
func (b *Buffer) Cap() int {
	return cap(b.data)
}
