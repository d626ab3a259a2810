package protocol

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"go.viam.com/test"
)

func TestParseMode(t *testing.T) {
	for name, want := range map[string]Mode{
		"":           ModeAuto,
		"auto":       ModeAuto,
		"Discrete":   ModeDiscrete,
		"continuous": ModeContinuous,
		"joystick":   ModeContinuous,
	} {
		got, err := ParseMode(name)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, got, test.ShouldEqual, want)
	}
	_, err := ParseMode("morse")
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "morse")
}

func TestDecoderAuto(t *testing.T) {
	d := NewDecoder(ModeAuto)
	stream := "FX:10,Y:-20\nSgarbage\nX:oops,Y:1\nX:0,Y:0\nB"

	var got []Message
	// feed one byte at a time to exercise partial lines
	for i := 0; i < len(stream); i++ {
		got = append(got, d.Feed([]byte{stream[i]})...)
	}

	want := []Message{
		CommandMessage(Forward),
		FrameMessage(Frame{X: 10, Y: -20}),
		CommandMessage(Stop),
		// "garbage" contains no command bytes at a frame boundary
		FrameMessage(Rest),
		CommandMessage(Backward),
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("decoded messages mismatch (-want +got):\n%s", diff)
	}
	test.That(t, d.Dropped(), test.ShouldEqual, 1)
}

func TestDecoderDiscrete(t *testing.T) {
	d := NewDecoder(ModeDiscrete)
	got := d.Feed([]byte("X:1,Y:2\nLRq S"))
	test.That(t, got, test.ShouldResemble, []Message{
		CommandMessage(Left),
		CommandMessage(Right),
		CommandMessage(Stop),
	})
}

func TestDecoderContinuous(t *testing.T) {
	d := NewDecoder(ModeContinuous)
	got := d.Feed([]byte("F\nX:5,Y:6\n\nX:1"))
	test.That(t, got, test.ShouldResemble, []Message{FrameMessage(Frame{X: 5, Y: 6})})
	test.That(t, d.Dropped(), test.ShouldEqual, 1)

	got = d.Feed([]byte(",Y:-1\r\n"))
	test.That(t, got, test.ShouldResemble, []Message{FrameMessage(Frame{X: 1, Y: -1})})
}

func TestDecoderOverlongLine(t *testing.T) {
	d := NewDecoder(ModeAuto)
	long := "X:" + string(make([]byte, 100)) + "\n"
	test.That(t, d.Feed([]byte(long)), test.ShouldBeEmpty)
	test.That(t, d.Dropped(), test.ShouldEqual, 1)
	// the decoder recovers at the next line
	test.That(t, d.Feed([]byte("X:2,Y:3\n")), test.ShouldResemble, []Message{FrameMessage(Frame{X: 2, Y: 3})})
}
