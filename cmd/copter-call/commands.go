package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/flightlink/copter-actor/internal/actor"
	"github.com/flightlink/copter-actor/pkg/mqtt"
)

const defaultTimeout = 10 * time.Second

// parseArgs decodes each argument as JSON, falling back to the raw string so
// that `call setMode guided` needs no quoting.
func parseArgs(args []string) []interface{} {
	params := make([]interface{}, 0, len(args))
	for _, arg := range args {
		var v interface{}
		if err := json.Unmarshal([]byte(arg), &v); err != nil {
			v = arg
		}
		params = append(params, v)
	}
	return params
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func (app *App) doCallCmd(c *cli.Context) error {
	if c.NArg() == 0 {
		return cli.Exit("call needs a method name", 2)
	}
	cl, cleanup, err := app.connect(c)
	if err != nil {
		return err
	}
	defer cleanup()

	ctx, cancel := context.WithTimeout(c.Context, c.Duration("timeout"))
	defer cancel()

	method := c.Args().First()
	resp, err := cl.Call(ctx, method, parseArgs(c.Args().Tail())...)
	if err != nil {
		return err
	}
	app.logger.Debug("Call completed", zap.String("method", method))
	return printJSON(resp)
}

func (app *App) doSpecCmd(c *cli.Context) error {
	cl, cleanup, err := app.connect(c)
	if err != nil {
		return err
	}
	defer cleanup()

	ctx, cancel := context.WithTimeout(c.Context, c.Duration("timeout"))
	defer cancel()

	spec, err := cl.Spec(ctx)
	if err != nil {
		return err
	}
	return printJSON(spec)
}

func (app *App) doWatchCmd(c *cli.Context) error {
	cl, cleanup, err := app.connect(c)
	if err != nil {
		return err
	}
	defer cleanup()

	names := c.Args().Slice()
	if c.Bool("enable") {
		ctx, cancel := context.WithTimeout(c.Context, c.Duration("timeout"))
		var args []interface{}
		if len(names) > 0 {
			args = append(args, names)
		}
		_, err := cl.Call(ctx, actor.MethodEnableEvents, args...)
		cancel()
		if err != nil {
			return fmt.Errorf("failed to enable events: %w", err)
		}
	}

	return cl.Watch(c.Context, names, func(event mqtt.EventMessage) {
		if err := printJSON(event); err != nil {
			app.logger.Warn("Failed to print event", zap.Error(err))
		}
	})
}
