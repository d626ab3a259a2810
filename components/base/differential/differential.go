// Package differential implements a two-motor, skid-steer base driven by the joystick frame
// and discrete command protocols.
package differential

import (
	"context"

	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"github.com/bledrive/bledrive/components/motor/hbridge"
	"github.com/bledrive/bledrive/logging"
	"github.com/bledrive/bledrive/protocol"
	"github.com/bledrive/bledrive/utils"
)

// Mix converts a joystick frame into signed wheel speeds: y is throttle and x is turn.
// Each result is clamped to [-100, 100].
func Mix(x, y int) (left, right int) {
	left = utils.Clamp(y+x, -hbridge.MaxSpeed, hbridge.MaxSpeed)
	right = utils.Clamp(y-x, -hbridge.MaxSpeed, hbridge.MaxSpeed)
	return left, right
}

// MotorSpeeds are the last applied signed speeds of both sides.
type MotorSpeeds struct {
	Left  int `json:"left"`
	Right int `json:"right"`
}

type directions struct {
	left, right hbridge.Direction
}

// commandTable is the tank-style truth table of the discrete protocol.
var commandTable = map[protocol.Command]directions{
	protocol.Forward:  {hbridge.DirForward, hbridge.DirForward},
	protocol.Backward: {hbridge.DirBackward, hbridge.DirBackward},
	protocol.Left:     {hbridge.DirBackward, hbridge.DirForward},
	protocol.Right:    {hbridge.DirForward, hbridge.DirBackward},
	protocol.Stop:     {hbridge.DirOff, hbridge.DirOff},
}

// Base is a pair of motors.
type Base struct {
	Left, Right *hbridge.Motor
	logger      logging.Logger
}

// New returns a base over two motors.
func New(left, right *hbridge.Motor, logger logging.Logger) *Base {
	return &Base{Left: left, Right: right, logger: logger}
}

// Drive applies a joystick frame through Mix.
func (b *Base) Drive(ctx context.Context, frame protocol.Frame) error {
	left, right := Mix(frame.X, frame.Y)
	b.logger.Debugw("drive", "x", frame.X, "y", frame.Y, "left", left, "right", right)
	return multierr.Combine(
		b.Left.SetSpeed(ctx, left),
		b.Right.SetSpeed(ctx, right),
	)
}

// Apply runs a discrete command.
func (b *Base) Apply(ctx context.Context, cmd protocol.Command) error {
	dirs, ok := commandTable[cmd]
	if !ok {
		return errors.Errorf("unknown command %s", cmd)
	}
	b.logger.Debugw("apply", "command", cmd, "left", dirs.left, "right", dirs.right)
	return multierr.Combine(
		b.Left.SetDirection(ctx, dirs.left),
		b.Right.SetDirection(ctx, dirs.right),
	)
}

// Stop turns both motors off. Stopping a stopped base is a no-op.
func (b *Base) Stop(ctx context.Context) error {
	return b.Apply(ctx, protocol.Stop)
}

// Speeds returns the last applied speeds.
func (b *Base) Speeds() MotorSpeeds {
	return MotorSpeeds{Left: b.Left.Speed(), Right: b.Right.Speed()}
}
