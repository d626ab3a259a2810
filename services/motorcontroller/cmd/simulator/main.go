// Package main runs the motor controller against a simulated board, reading the command stream
// from a serial port or stdin and logging what the motors would do.
package main

import (
	"context"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
	"go.uber.org/multierr"
	goutils "go.viam.com/utils"

	"github.com/bledrive/bledrive/components/base/differential"
	"github.com/bledrive/bledrive/components/board/fake"
	"github.com/bledrive/bledrive/config"
	"github.com/bledrive/bledrive/link/serial"
	"github.com/bledrive/bledrive/logging"
	"github.com/bledrive/bledrive/protocol"
	"github.com/bledrive/bledrive/services/motorcontroller"
)

const (
	flagPort     = "port"
	flagBaud     = "baud"
	flagProtocol = "protocol"
	flagDebug    = "debug"
)

var app = &cli.App{
	Name:            "bledrive-sim",
	Usage:           "simulate the robot's motor controller",
	HideHelpCommand: true,
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:  flagPort,
			Usage: "read commands from serial `PATH` instead of stdin",
		},
		&cli.IntFlag{
			Name:  flagBaud,
			Value: serial.DefaultBaudRate,
			Usage: "serial baud rate",
		},
		&cli.StringFlag{
			Name:  flagProtocol,
			Value: config.DefaultProtocol,
			Usage: "accepted protocol: auto, discrete, or continuous",
		},
		&cli.BoolFlag{
			Name:  flagDebug,
			Usage: "enable debug logging",
		},
	},
	Action: runSimulator,
}

func runSimulator(c *cli.Context) error {
	ctx := c.Context
	logger := logging.NewLogger("bledrive-sim")
	if c.Bool(flagDebug) {
		logger = logging.NewDebugLogger("bledrive-sim")
	}

	conf := config.Controller{Protocol: c.String(flagProtocol)}
	conf.ApplyDefaults()
	b := fake.NewBoard(conf.Pins.IN1, conf.Pins.IN2, conf.Pins.IN3, conf.Pins.IN4)
	controller, err := motorcontroller.New(ctx, b, conf, logger.Named("controller"))
	if err != nil {
		return err
	}
	controller.OnApply(func(msg protocol.Message, speeds differential.MotorSpeeds) {
		logger.Infow("applied", "message", msg, "left", speeds.Left, "right", speeds.Right, "pins", b.States())
	})

	var in io.ReadCloser = os.Stdin
	if path := c.String(flagPort); path != "" {
		port, err := serial.OpenPort(path, serial.PortOptions{BaudRate: c.Int(flagBaud)})
		if err != nil {
			return errors.Wrapf(err, "cannot open %s", path)
		}
		in = port
		logger.Infow("reading commands", "port", path, "baud", c.Int(flagBaud))
	} else {
		logger.Info("reading commands from stdin")
	}

	// closing the input is the only way to interrupt a blocked read
	stopped := make(chan struct{})
	defer close(stopped)
	goutils.PanicCapturingGo(func() {
		select {
		case <-ctx.Done():
			goutils.UncheckedError(in.Close())
		case <-stopped:
		}
	})

	runErr := controller.Run(ctx, in)
	if errors.Is(runErr, context.Canceled) || ctx.Err() != nil {
		runErr = nil
	}
	stats := controller.Stats()
	logger.Infow("stopped", "applied", stats.Applied, "failed", stats.Failed, "dropped", stats.Dropped)
	return multierr.Combine(runErr, controller.Close(context.Background()))
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := app.RunContext(ctx, os.Args); err != nil {
		logging.NewLogger("bledrive-sim").Fatal(err)
	}
}
