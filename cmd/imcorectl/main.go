package main

import (
	"context"
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/urfave/cli/v2"
)

type contextKey int

const (
	contextKeyLogger contextKey = iota
)

func getLogger(ctx *cli.Context) zerolog.Logger {
	return ctx.Context.Value(contextKeyLogger).(zerolog.Logger)
}

func contextWithLogger(ctx context.Context, log zerolog.Logger) context.Context {
	return context.WithValue(ctx, contextKeyLogger, log)
}

func prepareApp(ctx *cli.Context) error {
	level, err := zerolog.ParseLevel(ctx.String("log-level"))
	if err != nil {
		return fmt.Errorf("invalid log level: %w", err)
	}
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).Level(level).With().Timestamp().Logger()
	ctx.Context = contextWithLogger(ctx.Context, log)
	return nil
}

func main() {
	app := &cli.App{
		Name:    "imcorectl",
		Usage:   "Inspect iMessage daemon data and imcore configuration",
		Version: "0.1.0",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "Minimum log level (trace, debug, info, warn, error)",
				Value: "warn",
			},
		},
		Before: prepareApp,
		Commands: []*cli.Command{
			flagsCommand,
			lookupCommand,
			guidCommand,
		},
	}
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
