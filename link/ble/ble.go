// Package ble implements a link transport to an HM-10 style BLE UART bridge.
package ble

import (
	"context"
	"sync"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
	goutils "go.viam.com/utils"
	"tinygo.org/x/bluetooth"

	"github.com/bledrive/bledrive/config"
	"github.com/bledrive/bledrive/link"
	"github.com/bledrive/bledrive/logging"
)

// TransportName is the link type the ble transport registers under.
const TransportName = "ble"

var (
	errUnknownAdvertisement   = errors.New("advertisement did not come from this adapter")
	errServiceNotFound        = errors.New("uart service not found on device")
	errCharacteristicNotFound = errors.New("uart characteristic not found on device")
)

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

// Transport scans for, connects to, and writes to a BLE UART bridge.
type Transport struct {
	conf           Config
	service        bluetooth.UUID
	characteristic bluetooth.UUID
	radio          radio
	clock          clock.Clock
	logger         logging.Logger

	mu      sync.Mutex
	enabled bool
}

// NewTransport returns a transport on the host's default bluetooth adapter.
func NewTransport(conf Config, logger logging.Logger) (*Transport, error) {
	return newTransport(adapterRadio{adapter: bluetooth.DefaultAdapter}, conf, logger)
}

func newTransport(r radio, conf Config, logger logging.Logger) (*Transport, error) {
	if err := conf.Validate("link.attributes"); err != nil {
		return nil, err
	}
	service, characteristic, err := conf.uuids()
	if err != nil {
		return nil, err
	}
	return &Transport{
		conf:           conf,
		service:        service,
		characteristic: characteristic,
		radio:          r,
		clock:          clock.New(),
		logger:         logger,
	}, nil
}

// Probe enables the adapter without scanning.
func (t *Transport) Probe(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.enableLocked()
}

func (t *Transport) enableLocked() error {
	if t.enabled {
		return nil
	}
	if err := t.radio.Enable(); err != nil {
		return errors.Wrapf(link.ErrCapabilityAbsent, "bluetooth adapter unavailable (%v)", err)
	}
	t.enabled = true
	return nil
}

// Open enables the adapter, scans for the configured device, connects, and resolves the UART
// characteristic.
func (t *Transport) Open(ctx context.Context) (link.Conn, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.enableLocked(); err != nil {
		return nil, err
	}

	t.logger.Debugw("scanning", "target", t.conf.target(), "timeout", t.conf.ScanTimeout)
	adv, err := t.scan(ctx)
	if err != nil {
		return nil, link.NewConnectionFailedError(err)
	}
	t.logger.Infow("found device", "address", adv.Address(), "name", adv.LocalName())

	dev, err := t.radio.Connect(adv)
	if err != nil {
		return nil, link.NewConnectionFailedError(errors.Wrapf(err, "connecting to %s", adv.Address()))
	}
	char, err := dev.Characteristic(t.service, t.characteristic)
	if err != nil {
		if disconnectErr := dev.Disconnect(); disconnectErr != nil {
			t.logger.Debugw("error disconnecting after failed discovery", "error", disconnectErr)
		}
		return nil, link.NewConnectionFailedError(err)
	}
	return &conn{dev: dev, char: char, chunk: t.conf.WriteChunkSize}, nil
}

func (t *Transport) scan(ctx context.Context) (advertisement, error) {
	ctx, cancel := t.clock.WithTimeout(ctx, t.conf.ScanTimeout)
	defer cancel()

	found := make(chan advertisement, 1)
	scanDone := make(chan error, 1)
	goutils.PanicCapturingGo(func() {
		scanDone <- t.radio.Scan(func(adv advertisement) bool {
			if !t.conf.matches(adv, t.service) {
				return false
			}
			select {
			case found <- adv:
			default:
			}
			return true
		})
	})

	select {
	case adv := <-found:
		if err := <-scanDone; err != nil {
			t.logger.Debugw("scan ended with error after match", "error", err)
		}
		return adv, nil
	case err := <-scanDone:
		select {
		case adv := <-found:
			return adv, nil
		default:
		}
		if err == nil {
			err = errors.New("scan stopped before a device was found")
		}
		return nil, errors.Wrap(err, "scanning")
	case <-ctx.Done():
		if err := t.radio.StopScan(); err != nil {
			t.logger.Debugw("error stopping scan", "error", err)
		}
		<-scanDone
		select {
		case adv := <-found:
			return adv, nil
		default:
		}
		return nil, errors.Wrapf(ctx.Err(), "no device with %s found", t.conf.target())
	}
}

type conn struct {
	dev   peripheral
	char  characteristicWriter
	chunk int

	mu     sync.Mutex
	closed bool
}

// Write sends p in chunks no larger than the configured write size.
func (c *conn) Write(p []byte) (int, error) {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return 0, errors.New("write on closed ble connection")
	}
	written := 0
	for written < len(p) {
		end := written + c.chunk
		if end > len(p) {
			end = len(p)
		}
		chunk := p[written:end]
		n, err := c.char.WriteWithoutResponse(chunk)
		written += n
		if err != nil {
			return written, err
		}
		if n < len(chunk) {
			return written, nil
		}
	}
	return written, nil
}

func (c *conn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	return c.dev.Disconnect()
}
