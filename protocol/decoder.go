package protocol

import (
	"strings"

	"github.com/pkg/errors"
)

// MaxLineLength bounds a buffered joystick line. Longer lines are garbage and get discarded.
// The longest valid frame, "X:-100,Y:-100\r\n", is 15 bytes.
const MaxLineLength = 32

// Mode selects which message kinds a Decoder accepts.
type Mode int

// The decoder modes.
const (
	// ModeAuto accepts both single-byte commands and joystick lines.
	ModeAuto Mode = iota
	// ModeDiscrete accepts only single-byte commands, like the button firmware.
	ModeDiscrete
	// ModeContinuous accepts only joystick lines, like the joystick firmware.
	ModeContinuous
)

// ParseMode parses a mode name as used in configuration. The empty string is ModeAuto.
func ParseMode(name string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "auto":
		return ModeAuto, nil
	case "discrete":
		return ModeDiscrete, nil
	case "continuous", "joystick":
		return ModeContinuous, nil
	default:
		return ModeAuto, errors.Errorf("unknown protocol mode %q: expected auto, discrete, or continuous", name)
	}
}

func (m Mode) String() string {
	switch m {
	case ModeAuto:
		return "auto"
	case ModeDiscrete:
		return "discrete"
	case ModeContinuous:
		return "continuous"
	default:
		return "unknown"
	}
}

// A Message is one decoded unit of the command stream: either a discrete Command or a
// joystick Frame.
type Message struct {
	IsFrame bool
	Command Command
	Frame   Frame
}

// CommandMessage wraps a discrete command.
func CommandMessage(c Command) Message {
	return Message{Command: c}
}

// FrameMessage wraps a joystick frame.
func FrameMessage(f Frame) Message {
	return Message{IsFrame: true, Frame: f}
}

func (m Message) String() string {
	if m.IsFrame {
		return m.Frame.String()
	}
	return m.Command.String()
}

// A Decoder splits an incoming byte stream into messages. It keeps partial lines between calls
// to Feed, so the stream may be chunked arbitrarily. Malformed input is dropped silently; the
// drop count is available from Dropped. A Decoder is not safe for concurrent use.
type Decoder struct {
	mode    Mode
	line    []byte
	inLine  bool
	skip    bool
	dropped int
}

// NewDecoder returns a decoder for the given mode.
func NewDecoder(mode Mode) *Decoder {
	return &Decoder{mode: mode, line: make([]byte, 0, MaxLineLength)}
}

// Mode returns the decoder's mode.
func (d *Decoder) Mode() Mode {
	return d.mode
}

// Dropped returns how many malformed lines have been discarded so far.
func (d *Decoder) Dropped() int {
	return d.dropped
}

// Feed consumes p and returns the messages completed by it, in stream order.
func (d *Decoder) Feed(p []byte) []Message {
	var msgs []Message
	for _, b := range p {
		if msg, ok := d.feedByte(b); ok {
			msgs = append(msgs, msg)
		}
	}
	return msgs
}

func (d *Decoder) feedByte(b byte) (Message, bool) {
	if d.mode == ModeDiscrete {
		if c, ok := ParseCommand(b); ok {
			return CommandMessage(c), true
		}
		return Message{}, false
	}

	if d.inLine {
		return d.continueLine(b)
	}

	if d.mode == ModeContinuous {
		// everything up to a newline is a candidate line
		if b == '\n' {
			return Message{}, false
		}
		d.startLine(b)
		return Message{}, false
	}

	// ModeAuto: at a frame boundary an 'X' opens a joystick line and a command byte is a command
	if b == 'X' {
		d.startLine(b)
		return Message{}, false
	}
	if c, ok := ParseCommand(b); ok {
		return CommandMessage(c), true
	}
	return Message{}, false
}

func (d *Decoder) startLine(b byte) {
	d.inLine = true
	d.skip = false
	d.line = append(d.line[:0], b)
}

func (d *Decoder) continueLine(b byte) (Message, bool) {
	if b != '\n' {
		if d.skip {
			return Message{}, false
		}
		if len(d.line) >= MaxLineLength {
			d.skip = true
			d.dropped++
			return Message{}, false
		}
		d.line = append(d.line, b)
		return Message{}, false
	}

	d.inLine = false
	if d.skip {
		d.skip = false
		return Message{}, false
	}
	frame, err := ParseFrame(string(d.line))
	d.line = d.line[:0]
	if err != nil {
		d.dropped++
		return Message{}, false
	}
	return FrameMessage(frame), true
}
