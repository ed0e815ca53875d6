package reaper

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"syscall"
	"testing"

	"go.uber.org/zap"
)

func writeProc(t *testing.T, procDir string, pid int, cmdline string) {
	t.Helper()
	dir := filepath.Join(procDir, strconv.Itoa(pid))
	if err := os.MkdirAll(dir, 0700); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "cmdline"), []byte(cmdline), 0600); err != nil {
		t.Fatal(err)
	}
}

func TestReapKillsMatchingProcesses(t *testing.T) {
	procDir := t.TempDir()
	writeProc(t, procDir, 100, "/usr/lib/chromium-browser\x00--headless\x00")
	writeProc(t, procDir, 101, "/usr/bin/bash\x00")
	writeProc(t, procDir, 102, "chromium-browser\x00--type=renderer\x00")
	writeProc(t, procDir, os.Getpid(), "chromium-browser\x00self\x00")
	writeProc(t, procDir, 103, "")
	if err := os.MkdirAll(filepath.Join(procDir, "self"), 0700); err != nil {
		t.Fatal(err)
	}

	var signalled []int
	r := New(Config{
		ProcessPatterns: []string{"chromium-browser"},
		ProcDir:         procDir,
	}, zap.NewNop(), WithKill(func(pid int, sig syscall.Signal) error {
		if sig != syscall.SIGKILL {
			t.Errorf("signal = %v, want SIGKILL", sig)
		}
		signalled = append(signalled, pid)
		return nil
	}))

	res := r.Reap(context.Background())

	want := map[int]bool{100: true, 102: true}
	if len(signalled) != len(want) {
		t.Fatalf("signalled = %v, want pids 100 and 102", signalled)
	}
	for _, pid := range signalled {
		if !want[pid] {
			t.Errorf("unexpected kill of pid %d", pid)
		}
	}
	if len(res.Killed) != 2 {
		t.Errorf("Killed = %v, want 2 entries", res.Killed)
	}
}

func TestReapContinuesOnKillError(t *testing.T) {
	procDir := t.TempDir()
	writeProc(t, procDir, 200, "chromium-browser\x00")
	writeProc(t, procDir, 201, "chromium-browser\x00")

	calls := 0
	r := New(Config{ProcessPatterns: []string{"chromium"}, ProcDir: procDir}, zap.NewNop(),
		WithKill(func(pid int, _ syscall.Signal) error {
			calls++
			if pid == 200 {
				return errors.New("operation not permitted")
			}
			return nil
		}))

	res := r.Reap(context.Background())
	if calls != 2 {
		t.Errorf("kill calls = %d, want 2", calls)
	}
	if len(res.Killed) != 1 || res.Killed[0] != 201 {
		t.Errorf("Killed = %v, want [201]", res.Killed)
	}
}

func TestReapRemovesTempGlobs(t *testing.T) {
	tmp := t.TempDir()
	for _, name := range []string{".org.chromium.Chromium.abc", ".org.chromium.Chromium.def"} {
		dir := filepath.Join(tmp, name)
		if err := os.MkdirAll(filepath.Join(dir, "nested"), 0700); err != nil {
			t.Fatal(err)
		}
	}
	keep := filepath.Join(tmp, "unrelated")
	if err := os.WriteFile(keep, []byte("x"), 0600); err != nil {
		t.Fatal(err)
	}

	r := New(Config{
		TempGlobs: []string{filepath.Join(tmp, ".org.chromium.Chromium.*")},
		ProcDir:   t.TempDir(),
	}, zap.NewNop())

	res := r.Reap(context.Background())
	if len(res.Removed) != 2 {
		t.Errorf("Removed = %v, want 2 entries", res.Removed)
	}
	if _, err := os.Stat(keep); err != nil {
		t.Errorf("unrelated file removed: %v", err)
	}

	// Second pass finds nothing and does not fail.
	res = r.Reap(context.Background())
	if len(res.Removed) != 0 {
		t.Errorf("second pass Removed = %v, want none", res.Removed)
	}
}

func TestReapMissingProcDir(t *testing.T) {
	r := New(Config{
		ProcessPatterns: []string{"chromium"},
		ProcDir:         filepath.Join(t.TempDir(), "missing"),
	}, zap.NewNop(), WithKill(func(int, syscall.Signal) error {
		t.Error("kill called without a process table")
		return nil
	}))

	res := r.Reap(context.Background())
	if len(res.Killed) != 0 {
		t.Errorf("Killed = %v, want none", res.Killed)
	}
}
