package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/spf13/pflag"

	"github.com/matheus3301/wppbridge/internal/client"
	"github.com/matheus3301/wppbridge/internal/config"
	"github.com/matheus3301/wppbridge/internal/tui"
	"github.com/matheus3301/wppbridge/internal/tui/model"
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
	defaultAddr := os.Getenv(config.EnvPrefix + "_HTTP_ADDR")
	if defaultAddr == "" {
		defaultAddr = "127.0.0.1:3333"
	}

	var (
		addr      string
		timeout   time.Duration
		refresh   time.Duration
		autoStart bool
	)
	flags := pflag.NewFlagSet("wpptui", pflag.ContinueOnError)
	flags.StringVar(&addr, "addr", defaultAddr, "daemon HTTP address")
	flags.DurationVar(&timeout, "timeout", 2*time.Minute, "request timeout")
	flags.DurationVar(&refresh, "refresh", 5*time.Second, "status refresh interval")
	flags.BoolVar(&autoStart, "start", true, "start wppd when no daemon answers")
	if err := flags.Parse(args); err != nil {
		return err
	}

	c := client.New(addr, timeout)
	if !daemonUp(c) && autoStart {
		fmt.Fprintf(os.Stderr, "no daemon at %s, starting wppd...\n", c.Base())
		if err := startDaemon(addr); err != nil {
			return fmt.Errorf("start daemon: %w", err)
		}
		if !waitForDaemon(c, 10*time.Second) {
			return fmt.Errorf("daemon at %s did not come up", c.Base())
		}
	}

	app := tui.NewApp(model.New(c), tui.Options{Addr: addr, Refresh: refresh, Poll: time.Second})
	return app.Run()
}

// daemonUp reports whether the daemon answers GET /status.
func daemonUp(c *client.Client) bool {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err := c.Status(ctx)
	return err == nil
}

// startDaemon runs the wppd next to this executable, or the one on PATH,
// listening on addr.
func startDaemon(addr string) error {
	executable, err := os.Executable()
	if err != nil {
		return err
	}
	wppd := filepath.Join(filepath.Dir(executable), "wppd")
	if _, err := os.Stat(wppd); err != nil {
		wppd = "wppd"
	}

	cmd := exec.Command(wppd, "--addr", addr)
	// Daemon startup errors stay visible until the UI takes the screen.
	cmd.Stderr = os.Stderr
	return cmd.Start()
}

func waitForDaemon(c *client.Client, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if daemonUp(c) {
			return true
		}
		time.Sleep(300 * time.Millisecond)
	}
	return false
}
