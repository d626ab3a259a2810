package protocol

import (
	"strconv"
	"strings"

	"github.com/golang/geo/r2"
	"github.com/pkg/errors"

	"github.com/bledrive/bledrive/utils"
)

// FrameScale is the magnitude of a full joystick deflection on either axis.
const FrameScale = 100

// A Frame is a normalized joystick command. Both axes are in [-FrameScale, FrameScale];
// X is the turn axis and Y is the drive axis.
type Frame struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// Rest is the idle frame.
var Rest = Frame{}

// ErrMalformedFrame is returned for lines that are not of the form "X:<int>,Y:<int>".
var ErrMalformedFrame = errors.New("malformed joystick frame")

// Normalize scales a clamped joystick vector to a Frame: round(100*x/radius), round(100*y/radius).
// Values are saturated to the frame range.
func Normalize(p r2.Point, radius float64) Frame {
	if radius <= 0 {
		return Rest
	}
	return Frame{
		X: utils.Clamp(utils.Round(FrameScale*p.X/radius), -FrameScale, FrameScale),
		Y: utils.Clamp(utils.Round(FrameScale*p.Y/radius), -FrameScale, FrameScale),
	}
}

func (f Frame) String() string {
	return "X:" + strconv.Itoa(f.X) + ",Y:" + strconv.Itoa(f.Y)
}

// Bytes returns the wire encoding of the frame, including the trailing newline.
func (f Frame) Bytes() []byte {
	return []byte(f.String() + "\n")
}

// MarshalText implements encoding.TextMarshaler using the wire encoding without the newline.
func (f Frame) MarshalText() ([]byte, error) {
	return []byte(f.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (f *Frame) UnmarshalText(text []byte) error {
	parsed, err := ParseFrame(string(text))
	if err != nil {
		return err
	}
	*f = parsed
	return nil
}

// ParseFrame parses a single "X:<int>,Y:<int>" line. A trailing "\n" or "\r\n" is accepted.
// No other whitespace is tolerated.
func ParseFrame(line string) (Frame, error) {
	line = strings.TrimSuffix(line, "\n")
	line = strings.TrimSuffix(line, "\r")
	if !strings.HasPrefix(line, "X:") {
		return Rest, errors.Wrapf(ErrMalformedFrame, "missing X: prefix in %q", line)
	}
	xPart, yPart, ok := strings.Cut(line[len("X:"):], ",Y:")
	if !ok {
		return Rest, errors.Wrapf(ErrMalformedFrame, "missing ,Y: separator in %q", line)
	}
	x, err := strconv.Atoi(xPart)
	if err != nil {
		return Rest, errors.Wrapf(ErrMalformedFrame, "bad X value %q", xPart)
	}
	y, err := strconv.Atoi(yPart)
	if err != nil {
		return Rest, errors.Wrapf(ErrMalformedFrame, "bad Y value %q", yPart)
	}
	return Frame{X: x, Y: y}, nil
}
