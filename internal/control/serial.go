package control

import (
	"errors"
	"fmt"
	"io"
	"os"

	"go.bug.st/serial"
	"go.bug.st/serial/enumerator"
)

// Special values for the serial port setting.
const (
	PortAuto  = "auto"
	PortStdin = "stdin"
)

// ErrNoPort is returned when auto-detection finds no USB serial port.
var ErrNoPort = errors.New("no USB serial port found")

// portLister is swapped in tests.
var portLister = enumerator.GetDetailedPortsList

// ResolvePort maps the configured port name to a device path. "auto" picks
// the first USB serial adapter.
func ResolvePort(name string) (string, error) {
	if name != PortAuto {
		return name, nil
	}
	ports, err := portLister()
	if err != nil {
		return "", fmt.Errorf("list serial ports: %w", err)
	}
	for _, p := range ports {
		if p.IsUSB {
			return p.Name, nil
		}
	}
	return "", ErrNoPort
}

// Open returns the control console for name. An empty name or "stdin"
// reads standard input; closing it is a no-op.
func Open(name string, baud int) (io.ReadCloser, string, error) {
	if name == "" || name == PortStdin {
		return io.NopCloser(os.Stdin), PortStdin, nil
	}
	path, err := ResolvePort(name)
	if err != nil {
		return nil, "", err
	}
	p, err := serial.Open(path, &serial.Mode{BaudRate: baud})
	if err != nil {
		return nil, "", fmt.Errorf("open serial %s: %w", path, err)
	}
	return p, path, nil
}
