package main

import (
	"context"
	"fmt"

	"github.com/spf13/pflag"

	"castspc/internal/config"
	"castspc/internal/daemonrun"
)

type launchOptions struct {
	configPath string
	run        daemonrun.Options
}

func parseFlags(args []string) (launchOptions, error) {
	var opts launchOptions
	fs := pflag.NewFlagSet("castspcd", pflag.ContinueOnError)
	fs.StringVarP(&opts.configPath, "config", "c", "", "Configuration file path")
	fs.StringVar(&opts.run.LogLevel, "log-level", "", "Override logging.level")
	fs.BoolVar(&opts.run.Diagnostic, "diagnostic", false, "Write a debug-level JSON log alongside the run log")
	if err := fs.Parse(args); err != nil {
		return launchOptions{}, err
	}
	if fs.NArg() > 0 {
		return launchOptions{}, fmt.Errorf("unexpected arguments: %v", fs.Args())
	}
	return opts, nil
}

func run(ctx context.Context, args []string) error {
	opts, err := parseFlags(args)
	if err != nil {
		return err
	}
	cfg, _, _, err := config.Load(opts.configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	return daemonrun.Run(ctx, cfg, opts.run)
}
