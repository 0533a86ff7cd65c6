// Command copter-call drives a copter actor module over the hub: it invokes
// methods, prints the module spec and follows its events.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/flightlink/copter-actor/internal/config"
	"github.com/flightlink/copter-actor/internal/logging"
	"github.com/flightlink/copter-actor/pkg/caller"
	"github.com/flightlink/copter-actor/pkg/mqtt"
)

type App struct {
	*cli.App
	logger *zap.Logger
}

func NewApp() *App {
	app := &App{logger: zap.NewNop()}

	app.App = &cli.App{
		Name:  "copter-call",
		Usage: "call a copter actor module over the hub",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "config",
				Usage: "YAML configuration shared with copter-actor",
			},
			&cli.StringFlag{
				Name:    "broker-url",
				Usage:   "MQTT broker URL (overrides config)",
				EnvVars: []string{"COPTER_MQTT_BROKER_URL"},
			},
			&cli.StringFlag{
				Name:  "actor-key",
				Usage: "actor key of the target module (overrides config)",
			},
			&cli.DurationFlag{
				Name:  "timeout",
				Usage: "how long to wait for a response",
				Value: defaultTimeout,
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "log level: debug, info, warn, error",
				Value: "warn",
			},
		},
		Commands: []*cli.Command{
			{
				Name:      "call",
				Usage:     "invoke a method; each argument is JSON or a bare string",
				ArgsUsage: "<method> [args...]",
				Action: func(c *cli.Context) error {
					return app.doCallCmd(c)
				},
			},
			{
				Name:  "spec",
				Usage: "print the module's advertised methods and events",
				Action: func(c *cli.Context) error {
					return app.doSpecCmd(c)
				},
			},
			{
				Name:      "watch",
				Usage:     "print events until interrupted",
				ArgsUsage: "[event...]",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "enable",
						Usage: "call enableEvents for the watched events first",
					},
				},
				Action: func(c *cli.Context) error {
					return app.doWatchCmd(c)
				},
			},
		},
	}
	return app
}

func main() {
	app := NewApp()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := app.RunContext(ctx, os.Args); err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// connect loads configuration, applies global flags and returns a started caller.
func (app *App) connect(c *cli.Context) (*caller.Caller, func(), error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, nil, err
	}
	if url := c.String("broker-url"); url != "" {
		cfg.MQTT.BrokerURL = url
	}
	if key := c.String("actor-key"); key != "" {
		cfg.Actor.Key = key
	}
	cfg.Logging.Level = c.String("log-level")
	cfg.Logging.Format = "console"
	cfg.Logging.File = ""
	// Distinct from the actor's own client ID.
	cfg.MQTT.ClientID = "copter-call-" + mqtt.GenerateMessageID()[:8]
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}

	logger, closeLogs, err := logging.New(cfg.Logging)
	if err != nil {
		return nil, nil, err
	}
	app.logger = logger

	hub, err := mqtt.NewClient(cfg.MQTTClientConfig(nil), logger)
	if err != nil {
		closeLogs()
		return nil, nil, err
	}
	topics := mqtt.NewModuleTopics(cfg.Actor.TopicPrefix, cfg.Actor.Key, cfg.Actor.Module)
	cl, err := caller.New(hub, topics, "caller:"+cfg.MQTT.ClientID, byte(cfg.Actor.QoS), logger)
	if err != nil {
		closeLogs()
		return nil, nil, err
	}
	if err := cl.Start(); err != nil {
		closeLogs()
		return nil, nil, err
	}

	cleanup := func() {
		if err := cl.Close(); err != nil {
			logger.Warn("Failed to close caller", zap.Error(err))
		}
		hub.Disconnect()
		closeLogs()
	}
	return cl, cleanup, nil
}
