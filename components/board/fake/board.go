// Package fake implements a fake board whose pins read back what was last written to them.
package fake

import (
	"context"
	"maps"
	"sync"

	"github.com/pkg/errors"

	"github.com/bledrive/bledrive/components/board"
)

// A Board hands out fake pins, creating them on first use unless restricted to a fixed set.
type Board struct {
	mu       sync.Mutex
	GPIOPins map[string]*GPIOPin
	fixed    bool
}

// NewBoard returns a fake board. With names given, only those pins exist.
func NewBoard(names ...string) *Board {
	b := &Board{GPIOPins: map[string]*GPIOPin{}}
	for _, name := range names {
		b.GPIOPins[name] = &GPIOPin{}
	}
	b.fixed = len(names) > 0
	return b
}

// GPIOPinByName returns the GPIO pin by the given name.
func (b *Board) GPIOPinByName(name string) (board.GPIOPin, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	p, ok := b.GPIOPins[name]
	if !ok {
		if b.fixed {
			return nil, board.NewPinNotFoundError(name)
		}
		p = &GPIOPin{}
		b.GPIOPins[name] = p
	}
	return p, nil
}

// Pin returns the fake pin with the given name, or nil.
func (b *Board) Pin(name string) *GPIOPin {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.GPIOPins[name]
}

// States returns the state of every pin.
func (b *Board) States() map[string]PinState {
	b.mu.Lock()
	pins := maps.Clone(b.GPIOPins)
	b.mu.Unlock()

	out := make(map[string]PinState, len(pins))
	for name, pin := range pins {
		out[name] = pin.State()
	}
	return out
}

// PinState is the output of a pin.
type PinState struct {
	High bool    `json:"high"`
	Duty float64 `json:"duty"`
}

// Active reports whether the pin is driving current, digitally or by PWM.
func (s PinState) Active() bool {
	return s.High || s.Duty > 0
}

// A GPIOPin reads back the same set values. Setting a digital level clears any duty cycle and
// setting a duty cycle clears the digital level.
type GPIOPin struct {
	high bool
	pwm  float64

	// FailWith makes every write fail.
	FailWith error

	mu sync.Mutex
}

// Set sets the pin to either low or high.
func (gp *GPIOPin) Set(ctx context.Context, high bool) error {
	gp.mu.Lock()
	defer gp.mu.Unlock()
	if gp.FailWith != nil {
		return gp.FailWith
	}

	gp.high = high
	gp.pwm = 0
	return nil
}

// Get gets the high/low state of the pin.
func (gp *GPIOPin) Get(ctx context.Context) (bool, error) {
	gp.mu.Lock()
	defer gp.mu.Unlock()

	return gp.high, nil
}

// PWM gets the pin's given duty cycle.
func (gp *GPIOPin) PWM(ctx context.Context) (float64, error) {
	gp.mu.Lock()
	defer gp.mu.Unlock()

	return gp.pwm, nil
}

// SetPWM sets the pin to the given duty cycle.
func (gp *GPIOPin) SetPWM(ctx context.Context, dutyCyclePct float64) error {
	gp.mu.Lock()
	defer gp.mu.Unlock()
	if gp.FailWith != nil {
		return gp.FailWith
	}
	if dutyCyclePct < 0 || dutyCyclePct > 1 {
		return errors.Errorf("duty cycle %v out of range [0, 1]", dutyCyclePct)
	}

	gp.pwm = dutyCyclePct
	gp.high = false
	return nil
}

// State returns the current output of the pin.
func (gp *GPIOPin) State() PinState {
	gp.mu.Lock()
	defer gp.mu.Unlock()
	return PinState{High: gp.high, Duty: gp.pwm}
}
