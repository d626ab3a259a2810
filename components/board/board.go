// Package board defines the pins a motor driver is wired to.
package board

import (
	"github.com/pkg/errors"
)

// A Board exposes GPIO pins by name.
type Board interface {
	// GPIOPinByName returns a GPIOPin by name.
	GPIOPinByName(name string) (GPIOPin, error)
}

// NewPinNotFoundError is returned when a board has no pin with the given name.
func NewPinNotFoundError(name string) error {
	return errors.Errorf("no pin named %q", name)
}
