package hwlink

import (
	"fmt"
	"strings"

	"go.bug.st/serial"
)

// Settings describes the controller's serial line.
type Settings struct {
	Port     string
	BaudRate int
	DataBits int
	Parity   string
	StopBits int
}

// OpenSerial opens the port and starts a link on it.
func OpenSerial(s Settings) (*Link, error) {
	mode, err := s.mode()
	if err != nil {
		return nil, err
	}
	port, err := serial.Open(s.Port, mode)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", s.Port, err)
	}
	if err := port.SetReadTimeout(serial.NoTimeout); err != nil {
		port.Close()
		return nil, fmt.Errorf("failed to configure %s: %w", s.Port, err)
	}
	return New(port, s.Port), nil
}

// Ports lists the serial ports present on the machine.
func Ports() ([]string, error) {
	return serial.GetPortsList()
}

func (s Settings) mode() (*serial.Mode, error) {
	m := &serial.Mode{BaudRate: s.BaudRate, DataBits: s.DataBits}
	if m.BaudRate == 0 {
		m.BaudRate = 115200
	}
	if m.DataBits == 0 {
		m.DataBits = 8
	}

	switch strings.ToLower(s.Parity) {
	case "", "none", "n":
		m.Parity = serial.NoParity
	case "odd", "o":
		m.Parity = serial.OddParity
	case "even", "e":
		m.Parity = serial.EvenParity
	case "mark", "m":
		m.Parity = serial.MarkParity
	case "space", "s":
		m.Parity = serial.SpaceParity
	default:
		return nil, fmt.Errorf("unknown parity %q", s.Parity)
	}

	switch s.StopBits {
	case 0, 1:
		m.StopBits = serial.OneStopBit
	case 2:
		m.StopBits = serial.TwoStopBits
	default:
		return nil, fmt.Errorf("unsupported stop bits %d", s.StopBits)
	}
	return m, nil
}
