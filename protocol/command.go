// Package protocol defines the bytes exchanged between the controlling page and the motor
// controller: single-byte discrete commands and newline-terminated joystick frames.
package protocol

import "fmt"

// A Command is a discrete drive command. Each command is exactly one ASCII byte on the wire.
type Command byte

// The known discrete commands.
const (
	Forward  Command = 'F'
	Backward Command = 'B'
	Left     Command = 'L'
	Right    Command = 'R'
	Stop     Command = 'S'
)

// Commands lists every discrete command.
var Commands = []Command{Forward, Backward, Left, Right, Stop}

// ParseCommand returns the command for the given byte, if it names one.
func ParseCommand(b byte) (Command, bool) {
	switch c := Command(b); c {
	case Forward, Backward, Left, Right, Stop:
		return c, true
	default:
		return 0, false
	}
}

// Bytes returns the wire encoding of the command.
func (c Command) Bytes() []byte {
	return []byte{byte(c)}
}

func (c Command) String() string {
	switch c {
	case Forward:
		return "forward"
	case Backward:
		return "backward"
	case Left:
		return "left"
	case Right:
		return "right"
	case Stop:
		return "stop"
	default:
		return fmt.Sprintf("unknown(%q)", byte(c))
	}
}
