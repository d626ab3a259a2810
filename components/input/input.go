// Package input defines the events a joystick page produces and the controller that delivers
// them to registered callbacks.
package input

import (
	"context"
	"time"

	"github.com/golang/geo/r2"
)

// EventType represents the type of input event.
type EventType string

// EventType list.
const (
	// Connect and Disconnect mark a page attaching to or detaching from the controller. They are
	// delivered to every control.
	Connect    EventType = "Connect"
	Disconnect EventType = "Disconnect"
	// ButtonPress is a single click on a button control.
	ButtonPress EventType = "ButtonPress"
	// Pointer events carry the pointer position relative to the joystick origin in X and Y.
	PointerDown  EventType = "PointerDown"
	PointerMove  EventType = "PointerMove"
	PointerUp    EventType = "PointerUp"
	PointerLeave EventType = "PointerLeave"
	// AllEvents registers a callback for every event type on a control.
	AllEvents EventType = "AllEvents"
)

// EventTypes lists every concrete event type.
var EventTypes = []EventType{Connect, Disconnect, ButtonPress, PointerDown, PointerMove, PointerUp, PointerLeave}

// Control identifies the input (specific button or the joystick pad).
type Control string

// Control list.
const (
	ButtonForward  Control = "ButtonForward"
	ButtonBackward Control = "ButtonBackward"
	ButtonLeft     Control = "ButtonLeft"
	ButtonRight    Control = "ButtonRight"
	ButtonStop     Control = "ButtonStop"
	ButtonConnect  Control = "ButtonConnect"
	Joystick       Control = "Joystick"
)

// Controls lists every control a page exposes.
var Controls = []Control{ButtonForward, ButtonBackward, ButtonLeft, ButtonRight, ButtonStop, ButtonConnect, Joystick}

// Event is passed to the registered ControlFunction or returned by Events.
type Event struct {
	Time    time.Time
	Event   EventType
	Control Control
	// X and Y are the pointer offset from the joystick origin in page pixels, y growing downward.
	X, Y float64
}

// Vector returns the pointer offset of a pointer event.
func (e Event) Vector() r2.Point {
	return r2.Point{X: e.X, Y: e.Y}
}

// ControlFunction is a callback passed to RegisterControlCallback.
type ControlFunction func(ctx context.Context, ev Event)

// A Controller delivers page input events.
type Controller interface {
	// Controls returns a list of Controls provided by the Controller.
	Controls(ctx context.Context) ([]Control, error)

	// Events returns most recent Event for each input (which should be the current state).
	Events(ctx context.Context) (map[Control]Event, error)

	// RegisterControlCallback registers a callback function to be executed on the specified trigger Event.
	// A nil ctrlFunc unregisters the callback for those triggers.
	RegisterControlCallback(ctx context.Context, control Control, triggers []EventType, ctrlFunc ControlFunction) error
}

// IsPointer reports whether t carries a pointer position.
func (t EventType) IsPointer() bool {
	switch t {
	case PointerDown, PointerMove, PointerUp, PointerLeave:
		return true
	case Connect, Disconnect, ButtonPress, AllEvents:
		return false
	default:
		return false
	}
}
