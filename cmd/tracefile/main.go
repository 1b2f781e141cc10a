// Package main is the tracefile inspector command.
package main

import (
	"fmt"
	"io"
	"os"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/arloliu/tracefile/config"
	"github.com/arloliu/tracefile/metrics"
)

const (
	flagConfig   = "config"
	flagDebug    = "debug"
	flagChannels = "channels"
	flagRecords  = "records"
)

// env is the state shared by every command, built in Before.
type env struct {
	cfg     *config.Config
	logger  *zap.Logger
	metrics *metrics.Metrics
}

func newApp(stdout, stderr io.Writer) *cli.App {
	e := &env{metrics: metrics.New()}

	return &cli.App{
		Name:            "tracefile",
		Usage:           "inspect tracefile record and channel files",
		HideHelpCommand: true,
		Writer:          stdout,
		ErrWriter:       stderr,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    flagConfig,
				Aliases: []string{"c"},
				Usage:   "load configuration from `FILE`",
			},
			&cli.BoolFlag{
				Name:  flagDebug,
				Usage: "enable debug logging",
			},
		},
		Before: func(c *cli.Context) error {
			return e.setup(c.String(flagConfig), c.Bool(flagDebug))
		},
		After: func(*cli.Context) error {
			if e.logger != nil {
				_ = e.logger.Sync()
			}

			return nil
		},
		Commands: []*cli.Command{
			{
				Name:      "footer",
				Usage:     "print the decoded footer of a file",
				ArgsUsage: "FILE",
				Action:    e.footerAction,
			},
			{
				Name:      "records",
				Usage:     "summarize a record file",
				ArgsUsage: "FILE",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  flagRecords,
						Usage: "list every record",
					},
				},
				Action: e.recordsAction,
			},
			{
				Name:      "channels",
				Usage:     "list the channels of a packet channel file",
				ArgsUsage: "FILE",
				Action:    e.channelsAction,
			},
			{
				Name:      "series",
				Usage:     "validate files as one series and summarize it",
				ArgsUsage: "FILE...",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  flagChannels,
						Usage: "treat the files as packet channel files",
					},
				},
				Action: e.seriesAction,
			},
		},
	}
}

func (e *env) setup(path string, debug bool) error {
	var err error
	if path != "" {
		e.cfg, err = config.Load(path)
		if err != nil {
			return err
		}
	} else {
		e.cfg = config.Default()
		if err := e.cfg.Validate(); err != nil {
			return err
		}
	}

	if debug {
		e.cfg.Log.Level = "debug"
		e.cfg.Log.Development = true
	} else if path == "" && os.Getenv(config.EnvLogLevel) == "" {
		e.cfg.Log.Level = "warn"
	}

	e.logger, err = e.cfg.Logger()

	return err
}

func main() {
	if err := newApp(os.Stdout, os.Stderr).Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "tracefile:", err)
		os.Exit(1)
	}
}
