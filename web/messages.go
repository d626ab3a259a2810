package web

import (
	"github.com/golang/geo/r2"

	"github.com/bledrive/bledrive/components/input"
	"github.com/bledrive/bledrive/protocol"
	"github.com/bledrive/bledrive/services/remotecontrol"
)

// Client message types.
const (
	msgConnect = "connect"
	msgPointer = "pointer"
	msgCommand = "command"
)

// Server message types.
const (
	msgStatus   = "status"
	msgPosition = "position"
)

// clientMessage is anything the page sends. Only the fields of its Type are set.
type clientMessage struct {
	Type    string  `json:"type"`
	Action  string  `json:"action,omitempty"`
	X       float64 `json:"x,omitempty"`
	Y       float64 `json:"y,omitempty"`
	Command string  `json:"command,omitempty"`
}

type statusMessage struct {
	Type  string `json:"type"`
	State string `json:"state"`
	remotecontrol.Status
}

type positionMessage struct {
	Type     string  `json:"type"`
	X        int     `json:"x"`
	Y        int     `json:"y"`
	HandleX  float64 `json:"handle_x"`
	HandleY  float64 `json:"handle_y"`
	Dragging bool    `json:"dragging"`
	Text     string  `json:"text"`
	State    string  `json:"state"`
}

func newStatusMessage(status remotecontrol.Status) statusMessage {
	return statusMessage{Type: msgStatus, State: status.State.String(), Status: status}
}

func newPositionMessage(view remotecontrol.View) positionMessage {
	return positionMessage{
		Type:     msgPosition,
		X:        view.Display.X,
		Y:        view.Display.Y,
		HandleX:  view.Handle.X,
		HandleY:  view.Handle.Y,
		Dragging: view.Dragging,
		Text:     view.DisplayText(),
		State:    view.LinkState.String(),
	}
}

var pointerActions = map[string]input.EventType{
	"down":  input.PointerDown,
	"move":  input.PointerMove,
	"up":    input.PointerUp,
	"leave": input.PointerLeave,
}

var commandControls = map[protocol.Command]input.Control{
	protocol.Forward:  input.ButtonForward,
	protocol.Backward: input.ButtonBackward,
	protocol.Left:     input.ButtonLeft,
	protocol.Right:    input.ButtonRight,
	protocol.Stop:     input.ButtonStop,
}

// event translates a page message into a controller event. ok is false for messages the
// session should ignore.
func (m clientMessage) event() (input.Event, bool) {
	switch m.Type {
	case msgConnect:
		return input.Event{Event: input.ButtonPress, Control: input.ButtonConnect}, true
	case msgPointer:
		eventType, ok := pointerActions[m.Action]
		if !ok {
			return input.Event{}, false
		}
		return input.Event{Event: eventType, Control: input.Joystick, X: m.X, Y: m.Y}, true
	case msgCommand:
		if len(m.Command) != 1 {
			return input.Event{}, false
		}
		cmd, ok := protocol.ParseCommand(m.Command[0])
		if !ok {
			return input.Event{}, false
		}
		return input.Event{Event: input.ButtonPress, Control: commandControls[cmd]}, true
	default:
		return input.Event{}, false
	}
}

type point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

func points(ps []r2.Point) []point {
	out := make([]point, 0, len(ps))
	for _, p := range ps {
		out = append(out, point{X: p.X, Y: p.Y})
	}
	return out
}

// geometryResponse describes what the page draws. Vertices are relative to the joystick origin.
type geometryResponse struct {
	Radius       float64 `json:"radius"`
	Deadzone     float64 `json:"deadzone"`
	HandleRadius float64 `json:"handle_radius"`
	Octagon      []point `json:"octagon"`
	DeadzoneArea []point `json:"deadzone_octagon"`
	Handle       []point `json:"handle_octagon"`
}
