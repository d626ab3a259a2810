package ble

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
	"go.viam.com/test"
	"go.viam.com/utils/testutils"
	"tinygo.org/x/bluetooth"

	"github.com/bledrive/bledrive/config"
	"github.com/bledrive/bledrive/link"
	"github.com/bledrive/bledrive/logging"
)

type fakeAdvertisement struct {
	address  string
	name     string
	services []bluetooth.UUID
}

func (a fakeAdvertisement) Address() string   { return a.address }
func (a fakeAdvertisement) LocalName() string { return a.name }

func (a fakeAdvertisement) HasServiceUUID(uuid bluetooth.UUID) bool {
	for _, s := range a.services {
		if s == uuid {
			return true
		}
	}
	return false
}

type fakePeripheral struct {
	mu           sync.Mutex
	address      string
	charErr      error
	writes       [][]byte
	disconnected bool
}

func (p *fakePeripheral) Characteristic(service, characteristic bluetooth.UUID) (characteristicWriter, error) {
	if p.charErr != nil {
		return nil, p.charErr
	}
	return p, nil
}

func (p *fakePeripheral) WriteWithoutResponse(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.writes = append(p.writes, append([]byte(nil), b...))
	return len(b), nil
}

func (p *fakePeripheral) Disconnect() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.disconnected = true
	return nil
}

func (p *fakePeripheral) written() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.writes))
	for _, w := range p.writes {
		out = append(out, string(w))
	}
	return out
}

type fakeRadio struct {
	enableErr  error
	connectErr error
	charErr    error
	ads        []fakeAdvertisement
	// hold keeps an unmatched scan running until StopScan.
	hold bool

	mu        sync.Mutex
	enables   int
	scans     int
	stopOnce  sync.Once
	stopped   chan struct{}
	connected []*fakePeripheral
}

func newFakeRadio(ads ...fakeAdvertisement) *fakeRadio {
	return &fakeRadio{ads: ads, stopped: make(chan struct{})}
}

func (r *fakeRadio) Enable() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.enables++
	return r.enableErr
}

func (r *fakeRadio) Scan(found func(advertisement) bool) error {
	r.mu.Lock()
	r.scans++
	r.mu.Unlock()
	for _, ad := range r.ads {
		if found(ad) {
			return nil
		}
	}
	if r.hold {
		<-r.stopped
	}
	return nil
}

func (r *fakeRadio) StopScan() error {
	r.stopOnce.Do(func() { close(r.stopped) })
	return nil
}

func (r *fakeRadio) Connect(adv advertisement) (peripheral, error) {
	if r.connectErr != nil {
		return nil, r.connectErr
	}
	p := &fakePeripheral{address: adv.Address(), charErr: r.charErr}
	r.mu.Lock()
	r.connected = append(r.connected, p)
	r.mu.Unlock()
	return p, nil
}

func hm10UUID(t *testing.T) bluetooth.UUID {
	t.Helper()
	uuid, err := bluetooth.ParseUUID(DefaultServiceUUID)
	test.That(t, err, test.ShouldBeNil)
	return uuid
}

func TestConfigValidate(t *testing.T) {
	conf := Config{}
	test.That(t, conf.Validate("path"), test.ShouldBeNil)
	test.That(t, conf.ScanTimeout, test.ShouldEqual, DefaultScanTimeout)
	test.That(t, conf.WriteChunkSize, test.ShouldEqual, DefaultWriteChunkSize)
	test.That(t, conf.ServiceUUID, test.ShouldEqual, DefaultServiceUUID)
	test.That(t, conf.CharacteristicUUID, test.ShouldEqual, DefaultCharacteristicUUID)

	conf = Config{ServiceUUID: "not-a-uuid"}
	err := conf.Validate("path")
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "service_uuid")

	conf = Config{ScanTimeout: -time.Second}
	test.That(t, conf.Validate("path"), test.ShouldNotBeNil)
}

func TestOpen(t *testing.T) {
	logger := logging.NewTestLogger(t)
	service := hm10UUID(t)
	other := fakeAdvertisement{address: "AA:AA:AA:AA:AA:AA", name: "Headphones"}
	robot := fakeAdvertisement{address: "B0:B1:13:2D:F2:11", name: "HMSoft", services: []bluetooth.UUID{service}}

	t.Run("by name", func(t *testing.T) {
		r := newFakeRadio(other, robot)
		tr, err := newTransport(r, Config{DeviceName: "HMSoft"}, logger)
		test.That(t, err, test.ShouldBeNil)

		c, err := tr.Open(context.Background())
		test.That(t, err, test.ShouldBeNil)
		test.That(t, r.connected, test.ShouldHaveLength, 1)
		test.That(t, r.connected[0].address, test.ShouldEqual, robot.address)

		n, err := c.Write([]byte("X:12,Y:-40\n"))
		test.That(t, err, test.ShouldBeNil)
		test.That(t, n, test.ShouldEqual, 11)
		test.That(t, r.connected[0].written(), test.ShouldResemble, []string{"X:12,Y:-40\n"})

		test.That(t, c.Close(), test.ShouldBeNil)
		test.That(t, r.connected[0].disconnected, test.ShouldBeTrue)
		_, err = c.Write([]byte("S"))
		test.That(t, err, test.ShouldNotBeNil)
	})

	t.Run("by address", func(t *testing.T) {
		r := newFakeRadio(other, robot)
		tr, err := newTransport(r, Config{DeviceAddress: strings.ToLower(robot.address)}, logger)
		test.That(t, err, test.ShouldBeNil)
		_, err = tr.Open(context.Background())
		test.That(t, err, test.ShouldBeNil)
		test.That(t, r.connected[0].address, test.ShouldEqual, robot.address)
	})

	t.Run("first advertising the service", func(t *testing.T) {
		r := newFakeRadio(other, robot)
		tr, err := newTransport(r, Config{}, logger)
		test.That(t, err, test.ShouldBeNil)
		_, err = tr.Open(context.Background())
		test.That(t, err, test.ShouldBeNil)
		test.That(t, r.connected[0].address, test.ShouldEqual, robot.address)
	})

	t.Run("adapter enabled once", func(t *testing.T) {
		r := newFakeRadio(robot)
		tr, err := newTransport(r, Config{}, logger)
		test.That(t, err, test.ShouldBeNil)
		for i := 0; i < 2; i++ {
			c, err := tr.Open(context.Background())
			test.That(t, err, test.ShouldBeNil)
			test.That(t, c.Close(), test.ShouldBeNil)
		}
		test.That(t, r.enables, test.ShouldEqual, 1)
	})
}

func TestOpenFailures(t *testing.T) {
	logger := logging.NewTestLogger(t)
	robot := fakeAdvertisement{address: "B0:B1:13:2D:F2:11", name: "HMSoft"}

	t.Run("no adapter", func(t *testing.T) {
		r := newFakeRadio(robot)
		r.enableErr = errors.New("no default adapter")
		tr, err := newTransport(r, Config{DeviceName: "HMSoft"}, logger)
		test.That(t, err, test.ShouldBeNil)
		_, err = tr.Open(context.Background())
		test.That(t, errors.Is(err, link.ErrCapabilityAbsent), test.ShouldBeTrue)
		test.That(t, err.Error(), test.ShouldContainSubstring, "no default adapter")
	})

	t.Run("no adapter reported before connecting", func(t *testing.T) {
		r := newFakeRadio(robot)
		r.enableErr = errors.New("no default adapter")
		tr, err := newTransport(r, Config{DeviceName: "HMSoft"}, logger)
		test.That(t, err, test.ShouldBeNil)
		l := link.New(tr, link.Options{}, logger)
		defer l.Close()
		var states []link.State
		l.Subscribe(func(s link.State) { states = append(states, s) })

		err = l.Connect(context.Background())
		test.That(t, errors.Is(err, link.ErrCapabilityAbsent), test.ShouldBeTrue)
		test.That(t, states, test.ShouldBeEmpty)
		test.That(t, r.scans, test.ShouldEqual, 0)
	})

	t.Run("scan timeout", func(t *testing.T) {
		r := newFakeRadio(fakeAdvertisement{address: "AA:AA:AA:AA:AA:AA", name: "Headphones"})
		r.hold = true
		tr, err := newTransport(r, Config{DeviceName: "HMSoft"}, logger)
		test.That(t, err, test.ShouldBeNil)
		mock := clock.NewMock()
		tr.clock = mock

		opened := make(chan error, 1)
		go func() {
			_, err := tr.Open(context.Background())
			opened <- err
		}()
		testutils.WaitForAssertion(t, func(tb testing.TB) {
			tb.Helper()
			r.mu.Lock()
			defer r.mu.Unlock()
			test.That(tb, r.scans, test.ShouldEqual, 1)
		})
		mock.Add(DefaultScanTimeout / 2)
		select {
		case err := <-opened:
			t.Fatalf("scan gave up early: %v", err)
		default:
		}
		mock.Add(DefaultScanTimeout)
		err = <-opened
		test.That(t, link.IsConnectionFailed(err), test.ShouldBeTrue)
		test.That(t, err.Error(), test.ShouldContainSubstring, "no device with name HMSoft found")
	})

	t.Run("scan ends without match", func(t *testing.T) {
		r := newFakeRadio()
		tr, err := newTransport(r, Config{DeviceName: "HMSoft"}, logger)
		test.That(t, err, test.ShouldBeNil)
		_, err = tr.Open(context.Background())
		test.That(t, link.IsConnectionFailed(err), test.ShouldBeTrue)
	})

	t.Run("connect error", func(t *testing.T) {
		r := newFakeRadio(robot)
		r.connectErr = errors.New("pairing rejected")
		tr, err := newTransport(r, Config{DeviceName: "HMSoft"}, logger)
		test.That(t, err, test.ShouldBeNil)
		_, err = tr.Open(context.Background())
		test.That(t, link.IsConnectionFailed(err), test.ShouldBeTrue)
		test.That(t, err.Error(), test.ShouldContainSubstring, "pairing rejected")
	})

	t.Run("missing characteristic", func(t *testing.T) {
		r := newFakeRadio(robot)
		r.charErr = errCharacteristicNotFound
		tr, err := newTransport(r, Config{DeviceName: "HMSoft"}, logger)
		test.That(t, err, test.ShouldBeNil)
		_, err = tr.Open(context.Background())
		test.That(t, link.IsConnectionFailed(err), test.ShouldBeTrue)
		test.That(t, errors.Is(err, errCharacteristicNotFound), test.ShouldBeTrue)
		test.That(t, r.connected[0].disconnected, test.ShouldBeTrue)
	})
}

func TestChunkedWrite(t *testing.T) {
	p := &fakePeripheral{}
	c := &conn{dev: p, char: p, chunk: 4}
	n, err := c.Write([]byte("X:100,Y:-100\n"))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, n, test.ShouldEqual, 13)
	test.That(t, p.written(), test.ShouldResemble, []string{"X:10", "0,Y:", "-100", "\n"})
}

func TestRegistered(t *testing.T) {
	tr, err := link.NewTransport(context.Background(), config.Link{
		Type: TransportName,
		Attributes: config.AttributeMap{
			"device_name":  "HMSoft",
			"scan_timeout": "5s",
		},
	}, logging.NewTestLogger(t))
	test.That(t, err, test.ShouldBeNil)
	bleTransport, ok := tr.(*Transport)
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, bleTransport.conf.DeviceName, test.ShouldEqual, "HMSoft")
	test.That(t, bleTransport.conf.ScanTimeout, test.ShouldEqual, 5*time.Second)
	test.That(t, bleTransport.conf.ServiceUUID, test.ShouldEqual, DefaultServiceUUID)
}
