// Package serial implements a link transport over a serial port, such as a USB UART adapter
// wired to the robot or a BLE bridge exposed by the host as a tty.
package serial

import (
	"context"
	"io"

	"github.com/pkg/errors"
	goserial "go.bug.st/serial"
	goutils "go.viam.com/utils"

	"github.com/bledrive/bledrive/config"
	"github.com/bledrive/bledrive/link"
	"github.com/bledrive/bledrive/logging"
)

// TransportName is the link type the serial transport registers under.
const TransportName = "serial"

// Opener opens a serial port. Tests replace it to avoid touching hardware.
var Opener = func(path string, mode *goserial.Mode) (io.ReadWriteCloser, error) {
	return goserial.Open(path, mode)
}

// Config is the attribute set of a serial link.
type Config struct {
	Path     string `json:"path"`
	BaudRate int    `json:"baud_rate,omitempty"`
	DataBits int    `json:"data_bits,omitempty"`
	StopBits int    `json:"stop_bits,omitempty"`
	Parity   string `json:"parity,omitempty"`
}

// PortOptions returns the line settings of the config.
func (conf *Config) PortOptions() PortOptions {
	return PortOptions{
		BaudRate: conf.BaudRate,
		DataBits: conf.DataBits,
		StopBits: conf.StopBits,
		Parity:   conf.Parity,
	}
}

// Validate ensures a path is set and the line settings are usable.
func (conf *Config) Validate(path string) error {
	if conf.Path == "" {
		return goutils.NewConfigValidationFieldRequiredError(path, "path")
	}
	if _, err := conf.PortOptions().Normalize(); err != nil {
		return goutils.NewConfigValidationError(path, err)
	}
	return nil
}

func init() {
	link.RegisterTransport(TransportName, link.TransportRegistration{
		Constructor: func(ctx context.Context, conf config.Link, logger logging.Logger) (link.Transport, error) {
			attrs, err := link.ConvertedAttributes[Config](conf)
			if err != nil {
				return nil, err
			}
			return NewTransport(*attrs, logger)
		},
		AttributeMapConverter: link.AttributeConverter[Config](),
	})
}

// Transport opens one serial port.
type Transport struct {
	path   string
	mode   *goserial.Mode
	logger logging.Logger
}

// NewTransport validates conf and returns a transport for its port.
func NewTransport(conf Config, logger logging.Logger) (*Transport, error) {
	if err := conf.Validate("link.attributes"); err != nil {
		return nil, err
	}
	mode, err := conf.PortOptions().Mode()
	if err != nil {
		return nil, err
	}
	return &Transport{path: conf.Path, mode: mode, logger: logger}, nil
}

// OpenPort opens path with the given options.
func OpenPort(path string, opts PortOptions) (io.ReadWriteCloser, error) {
	mode, err := opts.Mode()
	if err != nil {
		return nil, err
	}
	return Opener(path, mode)
}

// Open opens the port. Any failure is a connection failure; a missing device may appear later.
func (t *Transport) Open(ctx context.Context) (link.Conn, error) {
	if err := ctx.Err(); err != nil {
		return nil, link.NewConnectionFailedError(err)
	}
	port, err := Opener(t.path, t.mode)
	if err != nil {
		return nil, link.NewConnectionFailedError(errors.Wrapf(err, "opening %s", t.path))
	}
	t.logger.Infow("opened serial port", "path", t.path, "baud_rate", t.mode.BaudRate)
	return port, nil
}
