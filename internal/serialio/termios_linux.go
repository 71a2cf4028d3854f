//go:build linux

package serialio

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// termiosState is the saved configuration restored on Close, grounded on
// Daedaluz-goserial's port_linux.go (raw termios field layout, CBAUD
// speed masking) — expressed here through golang.org/x/sys/unix instead
// of that repo's author-private ioctl/fdev helper packages.
type termiosState unix.Termios

// configureRaw puts fd into raw 8N1 mode at the given baud rate and
// returns the prior settings for later restoration.
func configureRaw(fd int, baud BaudRate) (termiosState, error) {
	orig, err := unix.IoctlGetTermios(fd, unix.TCGETS)
	if err != nil {
		return termiosState{}, fmt.Errorf("serialio: get termios: %w", err)
	}

	speed, err := speedConstant(baud)
	if err != nil {
		return termiosState{}, err
	}

	tty := *orig
	// cfmakeraw-equivalent: no input/output processing, no line
	// discipline, no parity, 8-bit characters, no flow control.
	tty.Iflag &^= unix.IGNBRK | unix.BRKINT | unix.PARMRK | unix.ISTRIP |
		unix.INLCR | unix.IGNCR | unix.ICRNL | unix.IXON
	tty.Oflag &^= unix.OPOST
	tty.Lflag &^= unix.ECHO | unix.ECHONL | unix.ICANON | unix.ISIG | unix.IEXTEN
	tty.Cflag &^= unix.CSIZE | unix.PARENB | unix.CSTOPB | unix.CRTSCTS | unix.CBAUD
	tty.Cflag |= unix.CS8 | unix.CLOCAL | unix.CREAD | speed
	tty.Cc[unix.VMIN] = 1
	tty.Cc[unix.VTIME] = 0

	if err := unix.IoctlSetTermios(fd, unix.TCSETS, &tty); err != nil {
		return termiosState{}, fmt.Errorf("serialio: set termios: %w", err)
	}
	return termiosState(*orig), nil
}

func restoreTermios(fd int, state termiosState) {
	t := unix.Termios(state)
	_ = unix.IoctlSetTermios(fd, unix.TCSETS, &t)
}

func speedConstant(baud BaudRate) (uint32, error) {
	switch baud {
	case Baud115200:
		return unix.B115200, nil
	case Baud9600:
		return unix.B9600, nil
	default:
		return 0, fmt.Errorf("serialio: unsupported baud rate %d", baud)
	}
}
