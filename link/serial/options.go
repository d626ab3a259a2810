package serial

import (
	"strings"

	"github.com/pkg/errors"
	goserial "go.bug.st/serial"
)

// DefaultBaudRate is the factory baud rate of an HM-10 module.
const DefaultBaudRate = 9600

// PortOptions are the line settings of a serial port.
type PortOptions struct {
	BaudRate int    `json:"baud_rate,omitempty"`
	DataBits int    `json:"data_bits,omitempty"`
	StopBits int    `json:"stop_bits,omitempty"`
	Parity   string `json:"parity,omitempty"`
}

// Normalize validates the options and applies defaults for any unset values.
func (o PortOptions) Normalize() (PortOptions, error) {
	opts := o

	if opts.BaudRate <= 0 {
		opts.BaudRate = DefaultBaudRate
	}

	if opts.DataBits == 0 {
		opts.DataBits = 8
	}
	if opts.DataBits < 5 || opts.DataBits > 8 {
		return opts, errors.Errorf("invalid data bits %d: must be between 5 and 8", opts.DataBits)
	}

	if opts.StopBits == 0 {
		opts.StopBits = 1
	}
	if opts.StopBits != 1 && opts.StopBits != 2 {
		return opts, errors.Errorf("invalid stop bits %d: supported values are 1 or 2", opts.StopBits)
	}

	parity := strings.TrimSpace(strings.ToUpper(opts.Parity))
	switch parity {
	case "", "N", "NONE":
		parity = "N"
	case "E", "EVEN":
		parity = "E"
	case "O", "ODD":
		parity = "O"
	default:
		return opts, errors.Errorf("unsupported parity %q: expected N, E, or O", opts.Parity)
	}
	opts.Parity = parity

	return opts, nil
}

// Mode converts the options into the mode go.bug.st/serial opens a port with.
func (o PortOptions) Mode() (*goserial.Mode, error) {
	opts, err := o.Normalize()
	if err != nil {
		return nil, err
	}

	mode := &goserial.Mode{
		BaudRate: opts.BaudRate,
		DataBits: opts.DataBits,
		StopBits: goserial.OneStopBit,
		Parity:   goserial.NoParity,
	}
	if opts.StopBits == 2 {
		mode.StopBits = goserial.TwoStopBits
	}
	switch opts.Parity {
	case "E":
		mode.Parity = goserial.EvenParity
	case "O":
		mode.Parity = goserial.OddParity
	}
	return mode, nil
}
