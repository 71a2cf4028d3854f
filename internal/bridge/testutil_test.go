package bridge

import "bytes"

// writeAllBuffer adapts a bytes.Buffer to ByteWriter for tests, looping
// being unnecessary since bytes.Buffer.Write never partial-writes.
type writeAllBuffer struct {
	bytes.Buffer
}

func (w *writeAllBuffer) WriteAll(p []byte) error {
	_, err := w.Write(p)
	return err
}
