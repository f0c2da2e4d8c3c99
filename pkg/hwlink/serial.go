package hwlink

import (
	"io"
	"sort"
	"time"

	"go.bug.st/serial"
)

// readTimeout bounds every blocking Read on the underlying port so the
// worker's read loop can observe a stop flag within roughly this
// interval, per spec.md §4.6/§5's "blocking read with ≤1s timeout".
const readTimeout = 1 * time.Second

// Port is the minimal transport a Link drives: a byte stream, so tests
// can substitute an in-memory fake for a real serial port.
// serial.Port (go.bug.st/serial) satisfies it.
type Port interface {
	io.ReadWriteCloser
}

// Dialer opens a named port at a given baud rate. The production
// implementation is OpenSerialPort; tests supply a fake.
type Dialer func(portName string, baud int) (Port, error)

// OpenSerialPort opens a real serial port via go.bug.st/serial, 8N1 at
// the given baud rate, matching the original link's pyserial defaults.
// The port's read timeout is set so Link's read loop never blocks
// longer than readTimeout on a quiescent line.
func OpenSerialPort(portName string, baud int) (Port, error) {
	mode := &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	p, err := serial.Open(portName, mode)
	if err != nil {
		return nil, err
	}
	if err := p.SetReadTimeout(readTimeout); err != nil {
		_ = p.Close()
		return nil, err
	}
	return p, nil
}

// ListPorts returns the names of every serial port currently present
// on the system, sorted, mirroring list_available_ports from the
// original hardware link manager.
func ListPorts() ([]string, error) {
	names, err := serial.GetPortsList()
	if err != nil {
		return nil, err
	}
	sort.Strings(names)
	return names, nil
}
