// Package reaper cleans up after the browser-automation layer: it kills
// stray helper processes and removes their temporary profile artifacts.
package reaper

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"go.uber.org/zap"
	"golang.org/x/sys/unix"
)

// Config selects what a reap pass targets.
type Config struct {
	// ProcessPatterns are substrings matched against each process's full
	// command line.
	ProcessPatterns []string
	// TempGlobs are removed recursively.
	TempGlobs []string
	// ProcDir defaults to /proc.
	ProcDir string
}

// KillFunc delivers a signal to pid.
type KillFunc func(pid int, sig syscall.Signal) error

// Reaper is safe for concurrent use; passes are idempotent.
type Reaper struct {
	cfg    Config
	kill   KillFunc
	selfID int
	logger *zap.Logger
}

// Option customizes a Reaper.
type Option func(*Reaper)

// WithKill replaces the signal delivery used for matched processes.
func WithKill(fn KillFunc) Option {
	return func(r *Reaper) { r.kill = fn }
}

// New creates a Reaper.
func New(cfg Config, logger *zap.Logger, opts ...Option) *Reaper {
	if cfg.ProcDir == "" {
		cfg.ProcDir = "/proc"
	}
	r := &Reaper{
		cfg:    cfg,
		kill:   unix.Kill,
		selfID: os.Getpid(),
		logger: logger,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Result summarizes one pass.
type Result struct {
	Killed  []int
	Removed []string
}

// Reap runs one cleanup pass. It never fails: every problem is logged and
// the pass continues.
func (r *Reaper) Reap(ctx context.Context) Result {
	var res Result
	if len(r.cfg.ProcessPatterns) > 0 {
		res.Killed = r.killMatching(ctx)
	}
	for _, pattern := range r.cfg.TempGlobs {
		if ctx.Err() != nil {
			break
		}
		matches, err := filepath.Glob(pattern)
		if err != nil {
			r.logger.Warn("bad temp glob", zap.String("glob", pattern), zap.Error(err))
			continue
		}
		for _, path := range matches {
			if err := os.RemoveAll(path); err != nil {
				r.logger.Warn("remove temp artifact", zap.String("path", path), zap.Error(err))
				continue
			}
			res.Removed = append(res.Removed, path)
		}
	}
	if len(res.Killed) > 0 || len(res.Removed) > 0 {
		r.logger.Info("reaped automation leftovers",
			zap.Ints("killed", res.Killed),
			zap.Int("removed", len(res.Removed)),
		)
	}
	return res
}

func (r *Reaper) killMatching(ctx context.Context) []int {
	entries, err := os.ReadDir(r.cfg.ProcDir)
	if err != nil {
		r.logger.Warn("scan processes", zap.String("dir", r.cfg.ProcDir), zap.Error(err))
		return nil
	}

	var killed []int
	for _, e := range entries {
		if ctx.Err() != nil {
			break
		}
		pid, err := strconv.Atoi(e.Name())
		if err != nil || pid == r.selfID || pid <= 1 {
			continue
		}
		raw, err := os.ReadFile(filepath.Join(r.cfg.ProcDir, e.Name(), "cmdline"))
		if err != nil || len(raw) == 0 {
			// Exited between listing and reading, or a kernel thread.
			continue
		}
		cmdline := strings.TrimSpace(strings.ReplaceAll(string(raw), "\x00", " "))
		if !r.matches(cmdline) {
			continue
		}
		if err := r.kill(pid, unix.SIGKILL); err != nil && !errors.Is(err, unix.ESRCH) {
			r.logger.Warn("kill process", zap.Int("pid", pid), zap.String("cmdline", cmdline), zap.Error(err))
			continue
		}
		killed = append(killed, pid)
	}
	return killed
}

func (r *Reaper) matches(cmdline string) bool {
	for _, p := range r.cfg.ProcessPatterns {
		if p != "" && strings.Contains(cmdline, p) {
			return true
		}
	}
	return false
}
