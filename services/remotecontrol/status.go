package remotecontrol

import (
	"fmt"

	"github.com/golang/geo/r2"
	"github.com/pkg/errors"

	"github.com/bledrive/bledrive/link"
	"github.com/bledrive/bledrive/protocol"
)

// Status is a user-facing report on the link.
type Status struct {
	State link.State `json:"-"`
	// Connected is true once connecting succeeded; the page disables its connect button then.
	Connected bool   `json:"connected"`
	Message   string `json:"message"`
	// Blocking statuses should interrupt the user, as opposed to updating a status line.
	Blocking bool `json:"blocking,omitempty"`
}

// statusForConnect describes the outcome of a connect attempt.
func statusForConnect(err error) Status {
	switch {
	case err == nil:
		return Status{State: link.Connected, Connected: true, Message: "Connected"}
	case errors.Is(err, link.ErrCapabilityAbsent):
		return Status{
			State:    link.Disconnected,
			Message:  fmt.Sprintf("Bluetooth link not supported on this host: %v", err),
			Blocking: true,
		}
	case errors.Is(err, link.ErrClosed):
		return Status{State: link.Disconnected, Message: "Session closed"}
	default:
		reason := err
		var cf *link.ConnectionFailedError
		if errors.As(err, &cf) && cf.Reason != nil {
			reason = cf.Reason
		}
		return Status{
			State:    link.Disconnected,
			Message:  fmt.Sprintf("Connection failed: %v", reason),
			Blocking: true,
		}
	}
}

// View is what the page shows for the joystick.
type View struct {
	Dragging bool
	// Handle is the clamped handle offset from the joystick origin, in page units.
	Handle r2.Point
	// Display is the position shown to the user.
	Display protocol.Frame
	// LastCommand is the last frame handed to the link.
	LastCommand protocol.Frame
	LinkState   link.State
}

// DisplayText renders the position line of the page.
func (v View) DisplayText() string {
	return fmt.Sprintf("Position: X: %d, Y: %d", v.Display.X, v.Display.Y)
}
