package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/pflag"
	"go.uber.org/fx"

	"github.com/matheus3301/wppbridge/internal/config"
	"github.com/matheus3301/wppbridge/internal/daemon"
	"github.com/matheus3301/wppbridge/internal/session"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	var configPath, dataDir, addr string

	flags := pflag.NewFlagSet("wppd", pflag.ContinueOnError)
	flags.StringVar(&configPath, "config", "", "path to config.toml (default: <data-dir>/config.toml)")
	flags.StringVar(&dataDir, "data-dir", "", "data directory (default: ~/.wpp)")
	flags.StringVar(&addr, "addr", "", "HTTP listen address (overrides config)")
	if err := flags.Parse(args); err != nil {
		return err
	}

	if configPath == "" {
		dir := dataDir
		if dir == "" {
			dir = config.DefaultDataDir()
		}
		configPath = session.Layout{DataDir: dir}.ConfigPath()
	}

	cfg, err := config.Resolve(configPath)
	if err != nil {
		return err
	}
	if dataDir != "" {
		cfg.DataDir = filepath.Clean(dataDir)
	}
	if addr != "" {
		cfg.HTTP.Addr = addr
	}

	app := fx.New(
		daemon.Module(cfg),
		fx.StopTimeout(cfg.HTTP.ShutdownTimeout+fx.DefaultTimeout),
	)
	if err := app.Err(); err != nil {
		return err
	}

	// Run blocks until SIGINT or SIGTERM, then runs the OnStop hooks.
	app.Run()
	return nil
}
