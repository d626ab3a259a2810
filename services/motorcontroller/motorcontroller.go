// Package motorcontroller implements the robot side of the link: it decodes the command stream
// arriving from the UART bridge and drives a two-motor base.
package motorcontroller

import (
	"context"
	"io"
	"sync"

	"github.com/pkg/errors"

	"github.com/bledrive/bledrive/components/base/differential"
	"github.com/bledrive/bledrive/components/board"
	"github.com/bledrive/bledrive/components/motor/hbridge"
	"github.com/bledrive/bledrive/config"
	"github.com/bledrive/bledrive/logging"
	"github.com/bledrive/bledrive/protocol"
)

const readBufferSize = 64

// Stats counts decoded input.
type Stats struct {
	Applied uint64 `json:"applied"`
	Failed  uint64 `json:"failed"`
	Dropped uint64 `json:"dropped"`
}

// An ApplyFunc observes each message after it has been applied to the base.
type ApplyFunc func(msg protocol.Message, speeds differential.MotorSpeeds)

// Controller owns the decoder and the base it drives.
type Controller struct {
	base   *differential.Base
	logger logging.Logger

	mu      sync.Mutex
	decoder *protocol.Decoder
	stats   Stats
	onApply []ApplyFunc
}

// New builds the left motor on IN1/IN2 and the right motor on IN3/IN4 of b and stops both.
func New(ctx context.Context, b board.Board, conf config.Controller, logger logging.Logger) (*Controller, error) {
	conf.ApplyDefaults()
	if err := conf.Validate("controller"); err != nil {
		return nil, err
	}
	mode, err := protocol.ParseMode(conf.Protocol)
	if err != nil {
		return nil, err
	}
	left, err := hbridge.New(ctx, b, "left", conf.Pins.IN1, conf.Pins.IN2, logger.Named("left"))
	if err != nil {
		return nil, err
	}
	right, err := hbridge.New(ctx, b, "right", conf.Pins.IN3, conf.Pins.IN4, logger.Named("right"))
	if err != nil {
		return nil, err
	}
	logger.Infow("motor controller ready", "protocol", mode, "pins", conf.Pins)
	return &Controller{
		base:    differential.New(left, right, logger.Named("base")),
		logger:  logger,
		decoder: protocol.NewDecoder(mode),
	}, nil
}

// OnApply registers f to observe every applied message.
func (c *Controller) OnApply(f ApplyFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onApply = append(c.onApply, f)
}

// Handle decodes p and applies every complete message, in order. Partial frames are kept
// until the rest arrives. Malformed input is dropped and pin errors are logged.
func (c *Controller) Handle(ctx context.Context, p []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()

	before := c.decoder.Dropped()
	msgs := c.decoder.Feed(p)
	if dropped := c.decoder.Dropped() - before; dropped > 0 {
		c.stats.Dropped += uint64(dropped)
		c.logger.Debugw("ignored malformed input", "count", dropped)
	}

	for _, msg := range msgs {
		var err error
		if msg.IsFrame {
			err = c.base.Drive(ctx, msg.Frame)
		} else {
			err = c.base.Apply(ctx, msg.Command)
		}
		if err != nil {
			c.stats.Failed++
			c.logger.Warnw("error applying message", "message", msg, "error", err)
			continue
		}
		c.stats.Applied++
		speeds := c.base.Speeds()
		for _, f := range c.onApply {
			f(msg, speeds)
		}
	}
}

// Run feeds everything read from r to Handle until r is exhausted or ctx is done. A blocked
// Read is only interrupted by closing r.
func (c *Controller) Run(ctx context.Context, r io.Reader) error {
	buf := make([]byte, readBufferSize)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		n, err := r.Read(buf)
		if n > 0 {
			c.Handle(ctx, buf[:n])
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return errors.Wrap(err, "reading command stream")
		}
	}
}

// Speeds returns the last applied motor speeds.
func (c *Controller) Speeds() differential.MotorSpeeds {
	return c.base.Speeds()
}

// Stats returns the message counters.
func (c *Controller) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}

// Close stops both motors.
func (c *Controller) Close(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.base.Stop(ctx)
}
