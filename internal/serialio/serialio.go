// Package serialio opens the target's serial device and configures it
// raw at the protocol's fixed baud rate. The serial-over-socket target
// mode does not go through this package; it uses package netio. Neither
// concern is part of the protocol core, which only ever sees the result
// through bridge.ByteReader/ByteWriter.
package serialio

import (
	"fmt"
	"os"

	"github.com/otterlab/rspbridge/internal/bridge"
)

var (
	_ bridge.ByteWriter = (*Device)(nil)
	_ bridge.ByteReader = (*Device)(nil)
)

// BaudRate selects the target's configured line speed. The stub's
// original variant ran at 9600; the current one runs at 115200.
type BaudRate int

const (
	Baud115200 BaudRate = 115200
	Baud9600   BaudRate = 9600
)

// Device is an opened, raw-configured serial device. Close restores the
// original termios settings (save old state on open, restore on close).
type Device struct {
	f        *os.File
	fd       int
	original termiosState
}

// OpenDevice opens path and configures it raw at baud, 8 data bits, no
// parity, 1 stop bit, no flow control.
func OpenDevice(path string, baud BaudRate) (*Device, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_NOCTTY, 0)
	if err != nil {
		return nil, fmt.Errorf("serialio: open %s: %w", path, err)
	}
	fd := int(f.Fd())

	orig, err := configureRaw(fd, baud)
	if err != nil {
		f.Close()
		return nil, err
	}

	return &Device{f: f, fd: fd, original: orig}, nil
}

// Read implements bridge.ByteReader.
func (d *Device) Read(p []byte) (int, error) {
	return d.f.Read(p)
}

// WriteAll implements bridge.ByteWriter, looping on partial writes.
func (d *Device) WriteAll(p []byte) error {
	for len(p) > 0 {
		n, err := d.f.Write(p)
		if err != nil {
			return fmt.Errorf("serialio: write: %w", err)
		}
		p = p[n:]
	}
	return nil
}

// Fd returns the underlying file descriptor, for the I/O dispatcher.
func (d *Device) Fd() int {
	return d.fd
}

// Close restores the device's original termios settings and closes it.
func (d *Device) Close() error {
	restoreTermios(d.fd, d.original)
	return d.f.Close()
}
