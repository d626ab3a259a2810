// Package remotecontrol turns the input of one joystick page into link traffic. A Session owns
// the joystick state of one page and the link that page controls.
package remotecontrol

import (
	"context"
	"sync"

	"github.com/golang/geo/r2"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	goutils "go.viam.com/utils"

	"github.com/bledrive/bledrive/components/input"
	"github.com/bledrive/bledrive/config"
	"github.com/bledrive/bledrive/link"
	"github.com/bledrive/bledrive/logging"
	"github.com/bledrive/bledrive/protocol"
	"github.com/bledrive/bledrive/spatialmath"
)

// Link is the part of a link a session uses.
type Link interface {
	Connect(ctx context.Context) error
	Send(payload []byte)
	State() link.State
	Subscribe(f func(link.State))
}

// buttonCommands maps the direction buttons to their discrete command.
var buttonCommands = map[input.Control]protocol.Command{
	input.ButtonForward:  protocol.Forward,
	input.ButtonBackward: protocol.Backward,
	input.ButtonLeft:     protocol.Left,
	input.ButtonRight:    protocol.Right,
	input.ButtonStop:     protocol.Stop,
}

// Session is the state of one page. Events must be delivered one at a time, as the webcontrol
// controller does. Connect requests from the controller run in the background so pointer and
// button events keep flowing while the link connects.
type Session struct {
	id      uuid.UUID
	link    Link
	octagon spatialmath.Octagon
	conf    config.Joystick
	logger  logging.Logger
	workers *goutils.StoppableWorkers

	mu          sync.Mutex
	connecting  bool
	dragging    bool
	handle      r2.Point
	display     protocol.Frame
	lastCommand protocol.Frame
	onStatus    []func(Status)
	onView      []func(View)
}

// New returns a session driving l with the given joystick geometry.
func New(l Link, conf config.Joystick, logger logging.Logger) *Session {
	conf.ApplyDefaults()
	id := uuid.New()
	s := &Session{
		id:      id,
		link:    l,
		octagon: spatialmath.NewOctagon(conf.Radius),
		conf:    conf,
		logger:  logger.With("session", id.String()),
		workers: goutils.NewBackgroundStoppableWorkers(),
	}
	l.Subscribe(func(state link.State) {
		s.logger.Debugw("link state changed", "state", state)
		if state == link.Connecting {
			s.publishStatus(Status{State: link.Connecting, Message: "Connecting..."})
		}
		s.publishView()
	})
	return s
}

// Close cancels a connect attempt started from the controller and waits for it to return.
func (s *Session) Close() {
	s.workers.Stop()
}

// ID returns the session's unique id.
func (s *Session) ID() uuid.UUID {
	return s.id
}

// Geometry returns the joystick geometry the session clamps against.
func (s *Session) Geometry() config.Joystick {
	return s.conf
}

// OnStatus registers f to receive link status reports.
func (s *Session) OnStatus(f func(Status)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onStatus = append(s.onStatus, f)
}

// OnView registers f to receive the joystick view after every change.
func (s *Session) OnView(f func(View)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onView = append(s.onView, f)
}

// Start registers the session's callbacks on controller.
func (s *Session) Start(ctx context.Context, controller input.Controller) error {
	pointerEvents := []input.EventType{
		input.PointerDown, input.PointerMove, input.PointerUp, input.PointerLeave, input.Disconnect,
	}
	if err := controller.RegisterControlCallback(ctx, input.Joystick, pointerEvents, s.handlePointer); err != nil {
		return errors.Wrap(err, "error registering joystick callbacks")
	}
	for control := range buttonCommands {
		if err := controller.RegisterControlCallback(
			ctx, control, []input.EventType{input.ButtonPress}, s.handleButton,
		); err != nil {
			return errors.Wrapf(err, "error registering %s callback", control)
		}
	}
	if err := controller.RegisterControlCallback(
		ctx, input.ButtonConnect, []input.EventType{input.ButtonPress}, s.handleConnect,
	); err != nil {
		return errors.Wrap(err, "error registering connect callback")
	}
	return nil
}

func (s *Session) handlePointer(ctx context.Context, ev input.Event) {
	defer s.recoverEvent(ev)
	switch ev.Event {
	case input.PointerDown:
		s.PointerDown(ev.Vector())
	case input.PointerMove:
		s.PointerMove(ev.Vector())
	case input.PointerUp:
		s.PointerUp()
	case input.PointerLeave, input.Disconnect:
		s.PointerLeave()
	default:
	}
}

func (s *Session) handleButton(ctx context.Context, ev input.Event) {
	defer s.recoverEvent(ev)
	if cmd, ok := buttonCommands[ev.Control]; ok {
		s.SendCommand(cmd)
	}
}

// handleConnect starts a connect attempt unless one is already running.
func (s *Session) handleConnect(_ context.Context, ev input.Event) {
	s.mu.Lock()
	if s.connecting {
		s.mu.Unlock()
		s.logger.Debug("connect already in progress")
		return
	}
	s.connecting = true
	s.mu.Unlock()

	// not run once the session is closed
	s.workers.Add(func(ctx context.Context) {
		defer func() {
			s.mu.Lock()
			s.connecting = false
			s.mu.Unlock()
		}()
		defer s.recoverEvent(ev)
		s.Connect(ctx)
	})
}

// recoverEvent keeps a failing handler from taking down the page session.
func (s *Session) recoverEvent(ev input.Event) {
	if r := recover(); r != nil {
		s.logger.Errorw("panic handling event", "event", ev.Event, "control", ev.Control, "panic", r)
		s.publishStatus(Status{State: s.link.State(), Message: "Internal error handling input"})
	}
}

// PointerDown starts a drag at the given origin-relative offset.
func (s *Session) PointerDown(v r2.Point) {
	s.mu.Lock()
	s.dragging = true
	payload := s.updateLocked(v)
	s.mu.Unlock()

	s.link.Send(payload)
	s.publishView()
}

// PointerMove moves the handle while dragging and is ignored otherwise.
func (s *Session) PointerMove(v r2.Point) {
	s.mu.Lock()
	if !s.dragging {
		s.mu.Unlock()
		return
	}
	payload := s.updateLocked(v)
	s.mu.Unlock()

	s.link.Send(payload)
	s.publishView()
}

// updateLocked clamps v, records it, and returns the frame to send. s.mu must be held.
func (s *Session) updateLocked(v r2.Point) []byte {
	s.handle = s.octagon.Clamp(v)
	frame := protocol.Normalize(s.handle, s.octagon.Radius)
	s.display = frame
	s.lastCommand = frame
	return frame.Bytes()
}

// PointerUp releases the handle: it returns to the origin and a rest frame is sent once.
func (s *Session) PointerUp() {
	s.mu.Lock()
	s.dragging = false
	s.handle = r2.Point{}
	s.display = protocol.Rest
	s.lastCommand = protocol.Rest
	s.mu.Unlock()

	s.link.Send(protocol.Rest.Bytes())
	s.publishView()
}

// PointerLeave ends a drag without sending anything. The handle and position display reset
// but the last command stays in effect on the robot.
func (s *Session) PointerLeave() {
	s.mu.Lock()
	if !s.dragging {
		s.mu.Unlock()
		return
	}
	s.dragging = false
	s.handle = r2.Point{}
	s.display = protocol.Rest
	s.mu.Unlock()

	s.publishView()
}

// SendCommand sends one discrete command.
func (s *Session) SendCommand(cmd protocol.Command) {
	s.logger.Debugw("command", "command", cmd)
	s.link.Send(cmd.Bytes())
}

// Connect connects the link and reports the outcome as a status. A "Connecting..." status is
// reported when the link starts connecting, so a host without the capability only ever sees
// the failure. Connecting an already connected session reports Connected again without
// reconnecting.
func (s *Session) Connect(ctx context.Context) Status {
	err := s.link.Connect(ctx)
	status := statusForConnect(err)
	if err != nil {
		s.logger.Warnw("connect failed", "error", err)
	} else {
		s.logger.Info("link connected")
	}
	s.publishStatus(status)
	return status
}

// Snapshot returns the current view.
func (s *Session) Snapshot() View {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.viewLocked()
}

func (s *Session) viewLocked() View {
	return View{
		Dragging:    s.dragging,
		Handle:      s.handle,
		Display:     s.display,
		LastCommand: s.lastCommand,
		LinkState:   s.link.State(),
	}
}

func (s *Session) publishView() {
	s.mu.Lock()
	view := s.viewLocked()
	observers := append([]func(View){}, s.onView...)
	s.mu.Unlock()
	for _, f := range observers {
		f(view)
	}
}

func (s *Session) publishStatus(status Status) {
	s.mu.Lock()
	observers := append([]func(Status){}, s.onStatus...)
	s.mu.Unlock()
	for _, f := range observers {
		f(status)
	}
}
