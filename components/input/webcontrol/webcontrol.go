// Package webcontrol implements an input controller fed by a browser page over the web server.
package webcontrol

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/bledrive/bledrive/components/input"
	"github.com/bledrive/bledrive/logging"
)

// Controller is an input.Controller whose events are pushed with TriggerEvent.
type Controller struct {
	logger logging.Logger

	mu         sync.RWMutex
	lastEvents map[input.Control]input.Event
	callbacks  map[input.Control]map[input.EventType]input.ControlFunction

	// dispatchMu keeps callbacks from overlapping so they see events in arrival order.
	dispatchMu sync.Mutex
}

// NewController returns a controller with every page control and no callbacks.
func NewController(logger logging.Logger) *Controller {
	return &Controller{
		logger:     logger,
		lastEvents: map[input.Control]input.Event{},
		callbacks:  map[input.Control]map[input.EventType]input.ControlFunction{},
	}
}

// Controls lists the inputs of the page.
func (c *Controller) Controls(ctx context.Context) ([]input.Control, error) {
	return slices.Clone(input.Controls), nil
}

// Events returns the last event seen on each control.
func (c *Controller) Events(ctx context.Context) (map[input.Control]input.Event, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[input.Control]input.Event, len(c.lastEvents))
	for k, v := range c.lastEvents {
		out[k] = v
	}
	return out, nil
}

// RegisterControlCallback registers a callback function to be executed on the specified trigger Event.
func (c *Controller) RegisterControlCallback(
	ctx context.Context,
	control input.Control,
	triggers []input.EventType,
	ctrlFunc input.ControlFunction,
) error {
	if !slices.Contains(input.Controls, control) {
		return errors.Errorf("unknown control %q", control)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.callbacks[control] == nil {
		c.callbacks[control] = make(map[input.EventType]input.ControlFunction)
	}
	for _, trigger := range triggers {
		if trigger != input.AllEvents && !slices.Contains(input.EventTypes, trigger) {
			return errors.Errorf("unknown event type %q", trigger)
		}
		if ctrlFunc == nil {
			delete(c.callbacks[control], trigger)
			continue
		}
		c.callbacks[control][trigger] = ctrlFunc
	}
	return nil
}

// TriggerEvent delivers event to the callbacks registered for it and returns once they have
// all run. Connect and Disconnect events are delivered to every control.
func (c *Controller) TriggerEvent(ctx context.Context, event input.Event) error {
	if !slices.Contains(input.EventTypes, event.Event) {
		return errors.Errorf("unknown event type %q", event.Event)
	}
	if event.Time.IsZero() {
		event.Time = time.Now()
	}

	targets := []input.Control{event.Control}
	if event.Event == input.Connect || event.Event == input.Disconnect {
		targets = input.Controls
	} else if !slices.Contains(input.Controls, event.Control) {
		return errors.Errorf("unknown control %q", event.Control)
	} else if event.Event.IsPointer() != (event.Control == input.Joystick) {
		return errors.Errorf("%s event does not apply to control %q", event.Event, event.Control)
	}

	c.dispatchMu.Lock()
	defer c.dispatchMu.Unlock()

	type call struct {
		fn input.ControlFunction
		ev input.Event
	}
	var calls []call
	c.mu.Lock()
	for _, control := range targets {
		ev := event
		ev.Control = control
		c.lastEvents[control] = ev
		byType := c.callbacks[control]
		if fn, ok := byType[ev.Event]; ok {
			calls = append(calls, call{fn, ev})
		}
		if fn, ok := byType[input.AllEvents]; ok {
			calls = append(calls, call{fn, ev})
		}
	}
	c.mu.Unlock()

	for _, cl := range calls {
		cl.fn(ctx, cl.ev)
	}
	c.logger.Debugw("event delivered", "event", event.Event, "control", event.Control, "callbacks", len(calls))
	return nil
}
