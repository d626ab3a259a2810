// Package link implements the best-effort connection from a control session to the robot's
// UART bridge. Sends are fire-and-forget: they never block the caller, are never retried,
// and failures are only logged.
package link

import (
	"context"
	"io"
	"sync"

	"github.com/pkg/errors"
	goutils "go.viam.com/utils"

	"github.com/bledrive/bledrive/config"
	"github.com/bledrive/bledrive/logging"
)

// State is the connection state of a Link.
type State int

// The link states. A link moves Disconnected -> Connecting -> Connected and falls back to
// Disconnected when a connection attempt fails or the link is closed.
const (
	Disconnected State = iota
	Connecting
	Connected
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	default:
		return "unknown"
	}
}

// A Conn is an open byte stream to the remote controller.
type Conn interface {
	io.Writer
	io.Closer
}

// A Transport discovers and opens a Conn. Open should return ErrCapabilityAbsent when the host
// cannot support the transport at all; any other error is treated as a connection failure.
type Transport interface {
	Open(ctx context.Context) (Conn, error)
}

// A Prober is a Transport that can tell whether the host supports it without attempting a
// connection. Probe returns ErrCapabilityAbsent when it does not.
type Prober interface {
	Probe(ctx context.Context) error
}

// Stats counts what happened to payloads handed to Send.
type Stats struct {
	// Sent payloads were fully written.
	Sent uint64
	// Failed payloads hit a write error or a short write.
	Failed uint64
	// Skipped payloads arrived while the link was not connected.
	Skipped uint64
	// Dropped payloads were evicted from a full queue before being written.
	Dropped uint64
}

// Options configure a Link.
type Options struct {
	// QueueSize bounds the number of payloads waiting to be written. When the queue is full the
	// oldest waiting payload is dropped to make room.
	QueueSize int
}

// A Link owns one Transport and the connection it opens.
type Link struct {
	transport Transport
	queueSize int
	logger    logging.Logger

	mu        sync.Mutex
	state     State
	conn      Conn
	queue     [][]byte
	stats     Stats
	closed    bool
	observers []func(State)

	wake    chan struct{}
	workers *goutils.StoppableWorkers
}

// New returns a disconnected Link over the given transport and starts its sender.
func New(transport Transport, opts Options, logger logging.Logger) *Link {
	if opts.QueueSize < 1 {
		opts.QueueSize = config.DefaultQueueSize
	}
	l := &Link{
		transport: transport,
		queueSize: opts.QueueSize,
		logger:    logger,
		wake:      make(chan struct{}, 1),
	}
	l.workers = goutils.NewBackgroundStoppableWorkers(l.sendLoop)
	return l
}

// State returns the current connection state.
func (l *Link) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// Stats returns a snapshot of the send counters.
func (l *Link) Stats() Stats {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.stats
}

// Subscribe registers f to be called with the new state after every state change. f is called
// from the goroutine that caused the change and must not call back into the Link's Connect or
// Close.
func (l *Link) Subscribe(f func(State)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.observers = append(l.observers, f)
}

// Connect opens the transport. It is a no-op while already connecting or connected. A
// transport that is a Prober is probed first, so a host lacking the capability fails with
// ErrCapabilityAbsent without the link ever entering Connecting. Any other failure returns the
// link to Disconnected with a *ConnectionFailedError.
func (l *Link) Connect(ctx context.Context) error {
	if idle, err := l.idle(); !idle {
		return err
	}
	if p, ok := l.transport.(Prober); ok {
		if err := p.Probe(ctx); err != nil {
			l.logger.Warnw("transport unavailable", "error", err)
			return classifyOpenError(err)
		}
	}

	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return ErrClosed
	}
	if l.state != Disconnected {
		l.mu.Unlock()
		return nil
	}
	notify := l.setStateLocked(Connecting)
	l.mu.Unlock()
	notify()

	conn, err := l.transport.Open(ctx)

	l.mu.Lock()
	if err != nil {
		notify = l.setStateLocked(Disconnected)
		l.mu.Unlock()
		notify()
		l.logger.Warnw("connection failed", "error", err)
		return classifyOpenError(err)
	}
	if l.closed {
		l.mu.Unlock()
		if closeErr := conn.Close(); closeErr != nil {
			l.logger.Debugw("error closing connection opened after close", "error", closeErr)
		}
		return ErrClosed
	}
	l.conn = conn
	notify = l.setStateLocked(Connected)
	l.mu.Unlock()
	notify()
	l.logger.Info("connected")
	return nil
}

// idle reports whether a connection attempt may start. When it may not, err is ErrClosed for a
// closed link and nil otherwise.
func (l *Link) idle() (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return false, ErrClosed
	}
	return l.state == Disconnected, nil
}

func classifyOpenError(err error) error {
	if errors.Is(err, ErrCapabilityAbsent) || IsConnectionFailed(err) {
		return err
	}
	return NewConnectionFailedError(err)
}

// Send queues payload for transmission and returns immediately. While the link is not
// connected the payload is skipped. Write failures are logged and never reported to the
// caller; payloads are not retried.
func (l *Link) Send(payload []byte) {
	l.mu.Lock()
	if l.state != Connected {
		l.stats.Skipped++
		state := l.state
		l.mu.Unlock()
		l.logger.Debugw("not connected, skipping send",
			"state", state, "payload", string(payload), "reason", ErrNotConnected)
		return
	}
	if len(l.queue) >= l.queueSize {
		evicted := l.queue[0]
		l.queue = l.queue[1:]
		l.stats.Dropped++
		l.logger.Debugw("send queue full, dropped oldest payload", "payload", string(evicted))
	}
	l.queue = append(l.queue, append([]byte(nil), payload...))
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
}

func (l *Link) sendLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-l.wake:
		}
		for ctx.Err() == nil {
			payload, conn, ok := l.next()
			if !ok {
				break
			}
			l.write(conn, payload)
		}
	}
}

func (l *Link) next() ([]byte, Conn, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.queue) == 0 || l.conn == nil {
		return nil, nil, false
	}
	payload := l.queue[0]
	l.queue = l.queue[1:]
	return payload, l.conn, true
}

func (l *Link) write(conn Conn, payload []byte) {
	n, err := conn.Write(payload)
	if err == nil && n != len(payload) {
		err = errors.Errorf("short write: wrote %d of %d bytes", n, len(payload))
	}

	l.mu.Lock()
	if err != nil {
		l.stats.Failed++
	} else {
		l.stats.Sent++
	}
	l.mu.Unlock()

	if err != nil {
		l.logger.Warnw("send failed", "payload", string(payload), "error", err)
	}
}

// setStateLocked must be called with mu held. The returned function notifies observers and
// must be called after mu is released.
func (l *Link) setStateLocked(state State) func() {
	if l.state == state {
		return func() {}
	}
	l.state = state
	observers := append([]func(State){}, l.observers...)
	return func() {
		for _, f := range observers {
			f(state)
		}
	}
}

// Close stops the sender and closes the connection. Pending payloads are discarded.
func (l *Link) Close() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	conn := l.conn
	l.conn = nil
	l.queue = nil
	notify := l.setStateLocked(Disconnected)
	l.mu.Unlock()

	var err error
	if conn != nil {
		// closing first unblocks a sender stuck in Write
		err = conn.Close()
	}
	l.workers.Stop()
	notify()
	return err
}
