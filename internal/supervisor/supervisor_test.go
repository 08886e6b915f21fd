//go:build !windows

package supervisor

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/imrosyd/cliproxyctl/internal/locator"
	"github.com/imrosyd/cliproxyctl/internal/paths"
)

// stubLocator returns a fixed ref, optionally tracking live pids so Find
// reflects reality after a spawn.
type stubLocator struct {
	ref *locator.Ref
	mem *float64
	at  *time.Time
}

func (s *stubLocator) Find() (*locator.Ref, error) { return s.ref, nil }
func (s *stubLocator) Telemetry(*locator.Ref) (*float64, *time.Time) {
	return s.mem, s.at
}

// pidLocator reports whichever pid was last recorded as long as the process
// still exists.
type pidLocator struct{ pid int }

func (p *pidLocator) Find() (*locator.Ref, error) {
	if p.pid <= 0 {
		return nil, nil
	}
	if syscall.Kill(p.pid, 0) != nil {
		return nil, nil
	}
	return &locator.Ref{PID: int32(p.pid)}, nil
}
func (p *pidLocator) Telemetry(*locator.Ref) (*float64, *time.Time) { return nil, nil }

func testLayout(t *testing.T) paths.Layout {
	t.Helper()
	dir := t.TempDir()
	l := paths.Layout{
		BinDir:      filepath.Join(dir, "bin"),
		Binary:      filepath.Join(dir, "bin", "cliproxyapi-plus"),
		ConfigDir:   filepath.Join(dir, "cfg"),
		ConfigFile:  filepath.Join(dir, "cfg", "config.yaml"),
		LogDir:      filepath.Join(dir, "cfg", "logs"),
		APIPort:     paths.DefaultAPIPort,
		ControlPort: paths.DefaultControlPort,
	}
	if err := os.MkdirAll(l.BinDir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(l.ConfigDir, 0o755); err != nil {
		t.Fatal(err)
	}
	return l
}

func writeBinary(t *testing.T, l paths.Layout, script string) {
	t.Helper()
	if err := os.WriteFile(l.Binary, []byte(script), 0o755); err != nil {
		t.Fatal(err)
	}
}

func writeConfig(t *testing.T, l paths.Layout) {
	t.Helper()
	if err := os.WriteFile(l.ConfigFile, []byte("port: 8317\n"), 0o644); err != nil {
		t.Fatal(err)
	}
}

func fastSupervisor(l paths.Layout, loc Locator) *Supervisor {
	s := New(l, loc)
	s.StartSettle = 100 * time.Millisecond
	s.StopSettle = 20 * time.Millisecond
	s.RestartSettle = 20 * time.Millisecond
	return s
}

func TestStatusNotRunning(t *testing.T) {
	l := testLayout(t)
	s := New(l, &stubLocator{})
	st := s.Status()
	if st.Running || st.PID != nil || st.MemoryMB != nil || st.StartTime != nil {
		t.Errorf("status = %+v, want all-nil not-running", st)
	}
	if st.Port != paths.DefaultAPIPort {
		t.Errorf("port = %d", st.Port)
	}
	if !strings.Contains(st.Endpoint, "/v1") {
		t.Errorf("endpoint = %q", st.Endpoint)
	}
}

func TestStatusDegradedTelemetry(t *testing.T) {
	l := testLayout(t)
	s := New(l, &stubLocator{ref: &locator.Ref{PID: 4242, Degraded: true}})
	st := s.Status()
	if !st.Running || st.PID == nil || *st.PID != 4242 {
		t.Fatalf("status = %+v", st)
	}
	if st.MemoryMB != nil || st.StartTime != nil {
		t.Errorf("degraded mode must yield nil telemetry, got %+v", st)
	}
}

func TestStartAlreadyRunning(t *testing.T) {
	l := testLayout(t)
	s := fastSupervisor(l, &stubLocator{ref: &locator.Ref{PID: 777}})
	_, err := s.Start()
	if !errors.Is(err, ErrAlreadyRunning) {
		t.Fatalf("err = %v, want ErrAlreadyRunning", err)
	}
	if !strings.Contains(err.Error(), "777") {
		t.Errorf("error should carry the existing pid: %v", err)
	}
}

func TestStartBinaryMissing(t *testing.T) {
	l := testLayout(t)
	writeConfig(t, l)
	s := fastSupervisor(l, &stubLocator{})
	_, err := s.Start()
	if !errors.Is(err, ErrBinaryMissing) {
		t.Fatalf("err = %v, want ErrBinaryMissing", err)
	}
}

func TestStartConfigMissing(t *testing.T) {
	l := testLayout(t)
	writeBinary(t, l, "#!/bin/sh\nsleep 30\n")
	s := fastSupervisor(l, &stubLocator{})
	_, err := s.Start()
	if !errors.Is(err, ErrConfigMissing) {
		t.Fatalf("err = %v, want ErrConfigMissing", err)
	}
}

func TestStartSuccessTruncatesLogs(t *testing.T) {
	l := testLayout(t)
	writeBinary(t, l, "#!/bin/sh\nsleep 30\n")
	writeConfig(t, l)
	if err := os.MkdirAll(l.LogDir, 0o755); err != nil {
		t.Fatal(err)
	}
	stale := filepath.Join(l.LogDir, "server-stdout.log")
	if err := os.WriteFile(stale, []byte("old run output\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	s := fastSupervisor(l, &stubLocator{})
	pid, err := s.Start()
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if pid <= 0 {
		t.Fatalf("pid = %d", pid)
	}
	defer func() { _ = syscall.Kill(pid, syscall.SIGKILL) }()

	b, err := os.ReadFile(stale)
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(string(b), "old run output") {
		t.Error("stdout log was not truncated on start")
	}
}

func TestStartImmediateExitSurfacesLogs(t *testing.T) {
	l := testLayout(t)
	writeBinary(t, l, "#!/bin/sh\necho boom: bad config >&2\nexit 1\n")
	writeConfig(t, l)
	s := fastSupervisor(l, &stubLocator{})
	_, err := s.Start()
	if err == nil {
		t.Fatal("expected failure for immediately-exiting server")
	}
	if !strings.Contains(err.Error(), "exited immediately") {
		t.Errorf("err = %v", err)
	}
	if !strings.Contains(err.Error(), "boom: bad config") {
		t.Errorf("error should carry the log tail: %v", err)
	}
}

func TestStopNotRunning(t *testing.T) {
	l := testLayout(t)
	s := fastSupervisor(l, &stubLocator{})
	if err := s.Stop(); !errors.Is(err, ErrNotRunning) {
		t.Fatalf("err = %v, want ErrNotRunning", err)
	}
}

func TestStopTerminatesProcess(t *testing.T) {
	l := testLayout(t)
	writeBinary(t, l, "#!/bin/sh\nsleep 30\n")
	writeConfig(t, l)
	loc := &pidLocator{}
	s := fastSupervisor(l, loc)
	pid, err := s.Start()
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	loc.pid = pid
	if err := s.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	// Graceful termination is best-effort; give it a moment.
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if ref, _ := loc.Find(); ref == nil {
			return
		}
		time.Sleep(50 * time.Millisecond)
	}
	_ = syscall.Kill(pid, syscall.SIGKILL)
	t.Error("process still running after Stop")
}

func TestRestartFromStopped(t *testing.T) {
	l := testLayout(t)
	writeBinary(t, l, "#!/bin/sh\nsleep 30\n")
	writeConfig(t, l)
	loc := &pidLocator{}
	s := fastSupervisor(l, loc)
	pid, err := s.Restart()
	if err != nil {
		t.Fatalf("Restart with nothing running: %v", err)
	}
	defer func() { _ = syscall.Kill(pid, syscall.SIGKILL) }()
	loc.pid = pid
	st := s.Status()
	if !st.Running || st.PID == nil {
		t.Fatalf("after restart status = %+v, want running", st)
	}
}

func TestLoginUnknownProvider(t *testing.T) {
	l := testLayout(t)
	s := fastSupervisor(l, &stubLocator{})
	if err := s.Login("netscape"); !errors.Is(err, ErrUnknownProvider) {
		t.Fatalf("err = %v, want ErrUnknownProvider", err)
	}
}

func TestLoginWritesLogAndDoesNotWait(t *testing.T) {
	l := testLayout(t)
	writeBinary(t, l, "#!/bin/sh\necho login flow for $3\n")
	writeConfig(t, l)
	s := fastSupervisor(l, &stubLocator{})
	start := time.Now()
	if err := s.Login("claude"); err != nil {
		t.Fatalf("Login: %v", err)
	}
	if time.Since(start) > time.Second {
		t.Error("Login should not wait for the child")
	}
	logPath := filepath.Join(l.LogDir, "oauth-claude.log")
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if b, err := os.ReadFile(logPath); err == nil && strings.Contains(string(b), "login flow") {
			return
		}
		time.Sleep(50 * time.Millisecond)
	}
	t.Errorf("oauth log %s never received child output", logPath)
}

func TestLoginEnvDefaults(t *testing.T) {
	env := loginEnv([]string{"PATH=/usr/bin"})
	if !envHas(env, "DISPLAY") {
		t.Error("DISPLAY should be defaulted")
	}
	env = loginEnv([]string{"DISPLAY=:1", "BROWSER=firefox"})
	count := 0
	for _, kv := range env {
		if strings.HasPrefix(kv, "DISPLAY=") {
			count++
		}
	}
	if count != 1 {
		t.Errorf("existing DISPLAY must not be duplicated, got %d", count)
	}
}
