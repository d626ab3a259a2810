// Package main serves the joystick page and drives the robot over the configured link.
package main

import (
	"context"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap/zapcore"
	goutils "go.viam.com/utils"

	"github.com/bledrive/bledrive/config"
	"github.com/bledrive/bledrive/link"
	// registers all transports.
	_ "github.com/bledrive/bledrive/link/register"
	"github.com/bledrive/bledrive/logging"
	"github.com/bledrive/bledrive/web"
)

const (
	flagConfig  = "config"
	flagListen  = "listen"
	flagDebug   = "debug"
	flagLogFile = "log-file"
)

var app = &cli.App{
	Name:            "bledrive-server",
	Usage:           "drive a two-motor robot from a browser joystick",
	HideHelpCommand: true,
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:    flagConfig,
			Aliases: []string{"c"},
			Usage:   "load configuration from `FILE`",
		},
		&cli.StringFlag{
			Name:  flagListen,
			Usage: "serve the page on `ADDRESS`, overriding the config",
		},
		&cli.BoolFlag{
			Name:  flagDebug,
			Usage: "enable debug logging",
		},
		&cli.StringFlag{
			Name:  flagLogFile,
			Usage: "also write logs to the rotated `FILE`",
		},
	},
	Action: runServer,
}

func runServer(c *cli.Context) error {
	level := zapcore.InfoLevel
	if c.Bool(flagDebug) {
		level = zapcore.DebugLevel
	}
	var logger logging.Logger
	if path := c.String(flagLogFile); path != "" {
		var closer io.Closer
		logger, closer = logging.NewFileLogger("bledrive", path, level)
		defer func() {
			goutils.UncheckedError(closer.Close())
		}()
	} else if level == zapcore.DebugLevel {
		logger = logging.NewDebugLogger("bledrive")
	} else {
		logger = logging.NewLogger("bledrive")
	}

	cfg := config.Default()
	if path := c.String(flagConfig); path != "" {
		var err error
		if cfg, err = config.Read(path, logger); err != nil {
			return err
		}
	}
	if listen := c.String(flagListen); listen != "" {
		cfg.Web.Listen = listen
	}
	logger.Infow("starting", "link", cfg.Link.Type, "transports", link.RegisteredTransports())

	server := web.NewServer(cfg, web.NewLinkFactory(cfg.Link, logger.Named(cfg.Link.Type)), logger.Named("web"))
	return server.Run(c.Context)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := app.RunContext(ctx, os.Args); err != nil {
		logging.NewLogger("bledrive").Fatal(err)
	}
}
