// Package fake implements an in-memory link transport that records what was written to it.
package fake

import (
	"context"
	"sync"

	"github.com/pkg/errors"

	"github.com/bledrive/bledrive/config"
	"github.com/bledrive/bledrive/link"
	"github.com/bledrive/bledrive/logging"
)

// TransportName is the link type the fake transport registers under.
const TransportName = "fake"

// Config is the attribute set of a fake link.
type Config struct {
	// FailOpen makes every Open fail with a connection error.
	FailOpen bool `json:"fail_open,omitempty"`
	// Unsupported makes every Open fail with link.ErrCapabilityAbsent.
	Unsupported bool `json:"unsupported,omitempty"`
}

func init() {
	link.RegisterTransport(TransportName, link.TransportRegistration{
		Constructor: func(ctx context.Context, conf config.Link, logger logging.Logger) (link.Transport, error) {
			attrs, err := link.ConvertedAttributes[Config](conf)
			if err != nil {
				return nil, err
			}
			t := NewTransport()
			switch {
			case attrs.Unsupported:
				t.SetProbeError(link.ErrCapabilityAbsent)
			case attrs.FailOpen:
				t.SetOpenError(errors.New("no matching device found"))
			}
			return t, nil
		},
		AttributeMapConverter: link.AttributeConverter[Config](),
	})
}

// Transport is a link.Transport whose connections append to a shared write log.
type Transport struct {
	mu         sync.Mutex
	probeErr   error
	probes     int
	openErr    error
	openGate   chan struct{}
	writeErr   error
	shortWrite bool
	gate       chan struct{}
	held       int
	opens      int
	writes     [][]byte
	conns      []*Conn
}

// NewTransport returns a transport that opens successfully and accepts every write.
func NewTransport() *Transport {
	return &Transport{}
}

// Probe returns the configured probe error.
func (t *Transport) Probe(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.probes++
	return t.probeErr
}

// Open returns a new Conn, or the configured probe or open error.
func (t *Transport) Open(ctx context.Context) (link.Conn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	t.mu.Lock()
	t.opens++
	gate := t.openGate
	t.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.probeErr != nil {
		return nil, t.probeErr
	}
	if t.openErr != nil {
		return nil, t.openErr
	}
	c := &Conn{t: t, done: make(chan struct{})}
	t.conns = append(t.conns, c)
	return c, nil
}

// SetOpenError makes subsequent opens fail with err. A nil err makes them succeed again.
func (t *Transport) SetOpenError(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.openErr = err
}

// SetProbeError makes subsequent probes and opens fail with err.
func (t *Transport) SetProbeError(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.probeErr = err
}

// HoldOpen blocks opens until the returned release function is called or their context ends.
func (t *Transport) HoldOpen() (release func()) {
	gate := make(chan struct{})
	t.mu.Lock()
	t.openGate = gate
	t.mu.Unlock()
	var once sync.Once
	return func() {
		once.Do(func() {
			t.mu.Lock()
			if t.openGate == gate {
				t.openGate = nil
			}
			t.mu.Unlock()
			close(gate)
		})
	}
}

// SetWriteError makes subsequent writes fail with err.
func (t *Transport) SetWriteError(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.writeErr = err
}

// SetShortWrite makes subsequent writes report one byte fewer than given.
func (t *Transport) SetShortWrite(short bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.shortWrite = short
}

// Hold blocks writes until the returned release function is called.
func (t *Transport) Hold() (release func()) {
	gate := make(chan struct{})
	t.mu.Lock()
	t.gate = gate
	t.mu.Unlock()
	var once sync.Once
	return func() {
		once.Do(func() {
			t.mu.Lock()
			if t.gate == gate {
				t.gate = nil
			}
			t.mu.Unlock()
			close(gate)
		})
	}
}

// Held returns how many writes are currently blocked by Hold.
func (t *Transport) Held() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.held
}

// Opens returns how many times Open was called.
func (t *Transport) Opens() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.opens
}

// Probes returns how many times Probe was called.
func (t *Transport) Probes() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.probes
}

// Writes returns every successfully written payload, in order.
func (t *Transport) Writes() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]string, 0, len(t.writes))
	for _, w := range t.writes {
		out = append(out, string(w))
	}
	return out
}

// Conns returns every connection opened so far.
func (t *Transport) Conns() []*Conn {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]*Conn(nil), t.conns...)
}

// Conn is a connection opened by a fake Transport.
type Conn struct {
	t      *Transport
	mu     sync.Mutex
	closed bool
	done   chan struct{}
}

// Write records p unless the transport is configured to fail.
func (c *Conn) Write(p []byte) (int, error) {
	c.t.mu.Lock()
	gate := c.t.gate
	c.t.mu.Unlock()
	if gate != nil {
		c.t.mu.Lock()
		c.t.held++
		c.t.mu.Unlock()
		select {
		case <-gate:
		case <-c.done:
		}
		c.t.mu.Lock()
		c.t.held--
		c.t.mu.Unlock()
	}

	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return 0, errors.New("write on closed connection")
	}

	c.t.mu.Lock()
	defer c.t.mu.Unlock()
	if c.t.writeErr != nil {
		return 0, c.t.writeErr
	}
	if c.t.shortWrite && len(p) > 0 {
		return len(p) - 1, nil
	}
	c.t.writes = append(c.t.writes, append([]byte(nil), p...))
	return len(p), nil
}

// Close marks the connection closed.
func (c *Conn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errors.New("already closed")
	}
	c.closed = true
	close(c.done)
	return nil
}

// Closed reports whether Close was called.
func (c *Conn) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}
