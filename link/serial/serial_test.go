package serial

import (
	"bytes"
	"context"
	"io"
	"testing"

	"github.com/pkg/errors"
	goserial "go.bug.st/serial"
	"go.viam.com/test"

	"github.com/bledrive/bledrive/config"
	"github.com/bledrive/bledrive/link"
	"github.com/bledrive/bledrive/logging"
)

type nopPort struct {
	bytes.Buffer
	closed bool
}

func (p *nopPort) Close() error {
	p.closed = true
	return nil
}

func withOpener(t *testing.T, opener func(string, *goserial.Mode) (io.ReadWriteCloser, error)) {
	t.Helper()
	prev := Opener
	Opener = opener
	t.Cleanup(func() { Opener = prev })
}

func TestPortOptionsNormalize(t *testing.T) {
	opts, err := PortOptions{}.Normalize()
	test.That(t, err, test.ShouldBeNil)
	test.That(t, opts, test.ShouldResemble, PortOptions{BaudRate: 9600, DataBits: 8, StopBits: 1, Parity: "N"})

	opts, err = PortOptions{BaudRate: 115200, StopBits: 2, Parity: " even "}.Normalize()
	test.That(t, err, test.ShouldBeNil)
	test.That(t, opts, test.ShouldResemble, PortOptions{BaudRate: 115200, DataBits: 8, StopBits: 2, Parity: "E"})

	for _, bad := range []PortOptions{
		{DataBits: 9},
		{StopBits: 3},
		{Parity: "mark"},
	} {
		_, err := bad.Normalize()
		test.That(t, err, test.ShouldNotBeNil)
	}
}

func TestPortOptionsMode(t *testing.T) {
	mode, err := PortOptions{}.Mode()
	test.That(t, err, test.ShouldBeNil)
	test.That(t, mode, test.ShouldResemble, &goserial.Mode{
		BaudRate: 9600,
		DataBits: 8,
		StopBits: goserial.OneStopBit,
		Parity:   goserial.NoParity,
	})

	mode, err = PortOptions{StopBits: 2, Parity: "O"}.Mode()
	test.That(t, err, test.ShouldBeNil)
	test.That(t, mode.StopBits, test.ShouldEqual, goserial.TwoStopBits)
	test.That(t, mode.Parity, test.ShouldEqual, goserial.OddParity)
}

func TestConfigValidate(t *testing.T) {
	conf := Config{}
	err := conf.Validate("link.attributes")
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "path")

	conf = Config{Path: "/dev/ttyUSB0", Parity: "x"}
	test.That(t, conf.Validate("link.attributes"), test.ShouldNotBeNil)

	conf = Config{Path: "/dev/ttyUSB0"}
	test.That(t, conf.Validate("link.attributes"), test.ShouldBeNil)
}

func TestOpen(t *testing.T) {
	logger := logging.NewTestLogger(t)
	port := &nopPort{}
	var gotPath string
	var gotMode *goserial.Mode
	withOpener(t, func(path string, mode *goserial.Mode) (io.ReadWriteCloser, error) {
		gotPath, gotMode = path, mode
		return port, nil
	})

	tr, err := NewTransport(Config{Path: "/dev/rfcomm0", BaudRate: 38400}, logger)
	test.That(t, err, test.ShouldBeNil)
	c, err := tr.Open(context.Background())
	test.That(t, err, test.ShouldBeNil)
	test.That(t, gotPath, test.ShouldEqual, "/dev/rfcomm0")
	test.That(t, gotMode.BaudRate, test.ShouldEqual, 38400)

	_, err = c.Write([]byte("X:0,Y:0\n"))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, port.String(), test.ShouldEqual, "X:0,Y:0\n")
	test.That(t, c.Close(), test.ShouldBeNil)
	test.That(t, port.closed, test.ShouldBeTrue)
}

func TestOpenFailure(t *testing.T) {
	withOpener(t, func(path string, mode *goserial.Mode) (io.ReadWriteCloser, error) {
		return nil, errors.New("no such file or directory")
	})
	tr, err := NewTransport(Config{Path: "/dev/ttyUSB9"}, logging.NewTestLogger(t))
	test.That(t, err, test.ShouldBeNil)
	_, err = tr.Open(context.Background())
	test.That(t, link.IsConnectionFailed(err), test.ShouldBeTrue)
	test.That(t, err.Error(), test.ShouldContainSubstring, "/dev/ttyUSB9")
}

func TestRegistered(t *testing.T) {
	logger := logging.NewTestLogger(t)
	tr, err := link.NewTransport(context.Background(), config.Link{
		Type:       TransportName,
		Attributes: config.AttributeMap{"path": "/dev/ttyACM0", "baud_rate": 115200},
	}, logger)
	test.That(t, err, test.ShouldBeNil)
	serialTransport, ok := tr.(*Transport)
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, serialTransport.mode.BaudRate, test.ShouldEqual, 115200)

	_, err = link.NewTransport(context.Background(), config.Link{Type: TransportName}, logger)
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "path")
}
