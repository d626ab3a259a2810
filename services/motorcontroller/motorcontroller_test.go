package motorcontroller

import (
	"context"
	"strings"
	"testing"
	"testing/iotest"

	"github.com/pkg/errors"
	"go.uber.org/zap/zapcore"
	"go.viam.com/test"

	"github.com/bledrive/bledrive/components/base/differential"
	"github.com/bledrive/bledrive/components/board/fake"
	"github.com/bledrive/bledrive/config"
	"github.com/bledrive/bledrive/logging"
	"github.com/bledrive/bledrive/protocol"
)

func newController(t *testing.T, proto string) (*Controller, *fake.Board) {
	t.Helper()
	b := fake.NewBoard("2", "3", "4", "5")
	c, err := New(context.Background(), b, config.Controller{Protocol: proto}, logging.NewTestLogger(t))
	test.That(t, err, test.ShouldBeNil)
	return c, b
}

func TestNew(t *testing.T) {
	ctx := context.Background()
	logger := logging.NewTestLogger(t)

	_, b := newController(t, "")
	for _, state := range b.States() {
		test.That(t, state.Active(), test.ShouldBeFalse)
	}

	_, err := New(ctx, fake.NewBoard(), config.Controller{Protocol: "morse"}, logger)
	test.That(t, err, test.ShouldNotBeNil)

	_, err = New(ctx, fake.NewBoard("2", "3"), config.Controller{}, logger)
	test.That(t, err, test.ShouldNotBeNil)
}

func TestHandleFrames(t *testing.T) {
	ctx := context.Background()
	c, b := newController(t, "continuous")

	c.Handle(ctx, []byte("X:20,"))
	test.That(t, c.Speeds(), test.ShouldResemble, differential.MotorSpeeds{})
	c.Handle(ctx, []byte("Y:60\n"))
	test.That(t, c.Speeds(), test.ShouldResemble, differential.MotorSpeeds{Left: 80, Right: 40})

	c.Handle(ctx, []byte("X:0,Y:-100\n"))
	test.That(t, c.Speeds(), test.ShouldResemble, differential.MotorSpeeds{Left: -100, Right: -100})
	test.That(t, b.Pin("3").State().Duty, test.ShouldEqual, 1.0)
	test.That(t, b.Pin("5").State().Duty, test.ShouldEqual, 1.0)

	c.Handle(ctx, []byte("X:0,Y:0\n"))
	test.That(t, c.Speeds(), test.ShouldResemble, differential.MotorSpeeds{})
	test.That(t, c.Stats(), test.ShouldResemble, Stats{Applied: 4})
}

func TestMalformedFramesIgnored(t *testing.T) {
	ctx := context.Background()
	logger, logs := logging.NewObservedTestLogger(t)
	b := fake.NewBoard("2", "3", "4", "5")
	c, err := New(ctx, b, config.Controller{Protocol: "continuous"}, logger)
	test.That(t, err, test.ShouldBeNil)

	c.Handle(ctx, []byte("X:30,Y:30\n"))
	before := b.States()
	c.Handle(ctx, []byte("X:abc,Y:1\nhello\nX:5\n"))
	test.That(t, b.States(), test.ShouldResemble, before)
	test.That(t, c.Speeds(), test.ShouldResemble, differential.MotorSpeeds{Left: 60, Right: 0})
	test.That(t, c.Stats().Dropped, test.ShouldEqual, uint64(3))

	test.That(t, logs.FilterMessage("ignored malformed input").Len(), test.ShouldEqual, 1)
	test.That(t, logs.FilterLevelExact(zapcore.WarnLevel).Len(), test.ShouldEqual, 0)
	test.That(t, logs.FilterLevelExact(zapcore.ErrorLevel).Len(), test.ShouldEqual, 0)
}

func TestHandleCommands(t *testing.T) {
	ctx := context.Background()
	c, b := newController(t, "discrete")

	var applied []protocol.Message
	c.OnApply(func(msg protocol.Message, speeds differential.MotorSpeeds) {
		applied = append(applied, msg)
	})

	c.Handle(ctx, []byte("F"))
	test.That(t, c.Speeds(), test.ShouldResemble, differential.MotorSpeeds{Left: 100, Right: 100})
	test.That(t, b.Pin("2").State().High, test.ShouldBeTrue)
	test.That(t, b.Pin("4").State().High, test.ShouldBeTrue)

	c.Handle(ctx, []byte("xL"))
	test.That(t, c.Speeds(), test.ShouldResemble, differential.MotorSpeeds{Left: -100, Right: 100})

	c.Handle(ctx, []byte("SS"))
	test.That(t, c.Speeds(), test.ShouldResemble, differential.MotorSpeeds{})
	test.That(t, applied, test.ShouldResemble, []protocol.Message{
		protocol.CommandMessage(protocol.Forward),
		protocol.CommandMessage(protocol.Left),
		protocol.CommandMessage(protocol.Stop),
		protocol.CommandMessage(protocol.Stop),
	})
}

func TestRun(t *testing.T) {
	ctx := context.Background()
	c, _ := newController(t, "auto")

	stream := "FX:10,Y:50\nB" + "X:-40,Y:0\n"
	test.That(t, c.Run(ctx, iotest.OneByteReader(strings.NewReader(stream))), test.ShouldBeNil)
	test.That(t, c.Speeds(), test.ShouldResemble, differential.MotorSpeeds{Left: -40, Right: 40})
	test.That(t, c.Stats().Applied, test.ShouldEqual, uint64(4))

	err := c.Run(ctx, iotest.ErrReader(errors.New("port unplugged")))
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "port unplugged")

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	test.That(t, c.Run(cancelled, strings.NewReader("F")), test.ShouldEqual, context.Canceled)

	test.That(t, c.Run(ctx, strings.NewReader("")), test.ShouldBeNil)
}

func TestPinFailureIsLogged(t *testing.T) {
	ctx := context.Background()
	logger, logs := logging.NewObservedTestLogger(t)
	b := fake.NewBoard("2", "3", "4", "5")
	c, err := New(ctx, b, config.Controller{}, logger)
	test.That(t, err, test.ShouldBeNil)

	b.Pin("4").FailWith = errors.New("pin fault")
	c.Handle(ctx, []byte("F"))
	test.That(t, c.Stats().Failed, test.ShouldEqual, uint64(1))
	test.That(t, logs.FilterMessage("error applying message").Len(), test.ShouldEqual, 1)

	b.Pin("4").FailWith = nil
	test.That(t, c.Close(ctx), test.ShouldBeNil)
	test.That(t, c.Speeds(), test.ShouldResemble, differential.MotorSpeeds{})
}
