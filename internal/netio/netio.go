// Package netio provides the TCP listener/accept plumbing shared by the
// debugger-facing RSP socket and the serial-over-socket target mode. The
// accept loop hands each connection to the bridge's single-slot dispatch
// loop rather than spawning a goroutine per connection — this protocol
// only ever expects one debugger and one target at a time.
package netio

import (
	"fmt"
	"net"

	"github.com/otterlab/rspbridge/internal/bridge"
)

var (
	_ bridge.ByteWriter = (*Conn)(nil)
	_ bridge.ByteReader = (*Conn)(nil)
)

// Listener wraps a TCP listener for one role (debugger or serial-socket),
// accepting connections one at a time.
type Listener struct {
	ln   net.Listener
	role string
}

// Listen opens a TCP listener on port for the named role, used only in
// diagnostics and error messages.
func Listen(role string, port int) (*Listener, error) {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return nil, fmt.Errorf("netio: listen %s on :%d: %w", role, port, err)
	}
	return &Listener{ln: ln, role: role}, nil
}

// Accept blocks for the next connection. The bridge's process surface
// calls this once per role at startup and again if the peer disconnects,
// since only one connection per role is ever live at a time.
func (l *Listener) Accept() (*Conn, error) {
	c, err := l.ln.Accept()
	if err != nil {
		return nil, fmt.Errorf("netio: accept %s: %w", l.role, err)
	}
	return &Conn{c: c}, nil
}

// Close closes the underlying listener.
func (l *Listener) Close() error {
	return l.ln.Close()
}

// Conn adapts a net.Conn to bridge.ByteWriter/ByteReader.
type Conn struct {
	c net.Conn
}

// Read implements bridge.ByteReader.
func (c *Conn) Read(p []byte) (int, error) {
	return c.c.Read(p)
}

// WriteAll implements bridge.ByteWriter, looping on partial writes.
func (c *Conn) WriteAll(p []byte) error {
	for len(p) > 0 {
		n, err := c.c.Write(p)
		if err != nil {
			return fmt.Errorf("netio: write: %w", err)
		}
		p = p[n:]
	}
	return nil
}

// Close closes the connection.
func (c *Conn) Close() error {
	return c.c.Close()
}
