// Package hbridge drives one DC motor through the two inputs of an L298N style H-bridge.
package hbridge

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"github.com/bledrive/bledrive/components/board"
	"github.com/bledrive/bledrive/logging"
	"github.com/bledrive/bledrive/utils"
)

const (
	// MaxSpeed is the magnitude of full speed in either direction.
	MaxSpeed = 100
	// PWMMax is the 8-bit PWM value of full duty.
	PWMMax = 255
)

// Direction is a digital drive state, used by the discrete command protocol.
type Direction int

// The digital drive states.
const (
	DirOff Direction = iota
	DirForward
	DirBackward
)

func (d Direction) String() string {
	switch d {
	case DirOff:
		return "off"
	case DirForward:
		return "forward"
	case DirBackward:
		return "backward"
	default:
		return "unknown"
	}
}

// PWMValue converts the magnitude of a signed speed to an 8-bit PWM value, truncating.
func PWMValue(speed int) uint8 {
	mag := utils.Clamp(utils.AbsInt(speed), 0, MaxSpeed)
	return uint8(utils.MapRange(mag, 0, MaxSpeed, 0, PWMMax))
}

// DutyCycle is PWMValue as a fraction of full duty.
func DutyCycle(speed int) float64 {
	return float64(PWMValue(speed)) / PWMMax
}

// Motor is one motor on an H-bridge channel. A is the forward input and B the reverse input.
// At most one of them is ever driven.
type Motor struct {
	name   string
	a, b   board.GPIOPin
	logger logging.Logger

	mu    sync.Mutex
	speed int
}

// New returns a stopped motor on the named pins of b.
func New(ctx context.Context, b board.Board, name, pinA, pinB string, logger logging.Logger) (*Motor, error) {
	if pinA == pinB {
		return nil, errors.Errorf("motor %s: forward and reverse pins must differ, both are %q", name, pinA)
	}
	a, err := b.GPIOPinByName(pinA)
	if err != nil {
		return nil, errors.Wrapf(err, "motor %s", name)
	}
	bPin, err := b.GPIOPinByName(pinB)
	if err != nil {
		return nil, errors.Wrapf(err, "motor %s", name)
	}
	m := &Motor{name: name, a: a, b: bPin, logger: logger}
	if err := m.Stop(ctx); err != nil {
		return nil, err
	}
	return m, nil
}

// Name returns the motor's name.
func (m *Motor) Name() string {
	return m.name
}

// SetSpeed drives the motor at a signed speed in [-100, 100]; values outside are clamped.
// The idle input is pulled low before the other is driven.
func (m *Motor) SetSpeed(ctx context.Context, speed int) error {
	speed = utils.Clamp(speed, -MaxSpeed, MaxSpeed)
	m.mu.Lock()
	defer m.mu.Unlock()

	var err error
	switch {
	case speed > 0:
		err = m.drive(ctx, m.a, m.b, DutyCycle(speed))
	case speed < 0:
		err = m.drive(ctx, m.b, m.a, DutyCycle(speed))
	default:
		err = m.off(ctx)
	}
	if err != nil {
		return err
	}
	m.speed = speed
	return nil
}

func (m *Motor) drive(ctx context.Context, on, idle board.GPIOPin, duty float64) error {
	if err := idle.Set(ctx, false); err != nil {
		return errors.Wrapf(err, "motor %s", m.name)
	}
	if err := on.SetPWM(ctx, duty); err != nil {
		return errors.Wrapf(err, "motor %s", m.name)
	}
	return nil
}

func (m *Motor) off(ctx context.Context) error {
	if err := multierr.Combine(m.a.Set(ctx, false), m.b.Set(ctx, false)); err != nil {
		return errors.Wrapf(err, "motor %s", m.name)
	}
	return nil
}

// SetDirection drives the motor digitally at full speed, or turns it off.
func (m *Motor) SetDirection(ctx context.Context, dir Direction) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var on, idle board.GPIOPin
	var speed int
	switch dir {
	case DirForward:
		on, idle, speed = m.a, m.b, MaxSpeed
	case DirBackward:
		on, idle, speed = m.b, m.a, -MaxSpeed
	case DirOff:
		if err := m.off(ctx); err != nil {
			return err
		}
		m.speed = 0
		return nil
	default:
		return errors.Errorf("motor %s: unknown direction %d", m.name, dir)
	}

	if err := idle.Set(ctx, false); err != nil {
		return errors.Wrapf(err, "motor %s", m.name)
	}
	if err := on.Set(ctx, true); err != nil {
		return errors.Wrapf(err, "motor %s", m.name)
	}
	m.speed = speed
	return nil
}

// Stop turns both inputs off.
func (m *Motor) Stop(ctx context.Context) error {
	return m.SetDirection(ctx, DirOff)
}

// Speed returns the last applied signed speed.
func (m *Motor) Speed() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.speed
}
