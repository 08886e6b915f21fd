// Package supervisor starts, stops and inspects the managed server process.
// It never assumes ownership: the server may have been started outside this
// control plane, so every operation re-discovers it through the locator
// rather than caching a handle.
package supervisor

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/imrosyd/cliproxyctl/internal/locator"
	"github.com/imrosyd/cliproxyctl/internal/paths"
)

var (
	ErrAlreadyRunning = errors.New("server already running")
	ErrNotRunning     = errors.New("server not running")
	ErrBinaryMissing  = errors.New("binary not found")
	ErrConfigMissing  = errors.New("config not found")
)

// Locator finds the managed process. Satisfied by *locator.Scanner.
type Locator interface {
	Find() (*locator.Ref, error)
	Telemetry(ref *locator.Ref) (*float64, *time.Time)
}

// Status is the observable state of the managed server. Memory and StartTime
// are nil in degraded discovery mode or when the server is down.
type Status struct {
	Running   bool       `json:"running"`
	PID       *int32     `json:"pid"`
	MemoryMB  *float64   `json:"memory"`
	StartTime *time.Time `json:"startTime"`
	Port      int        `json:"port"`
	Endpoint  string     `json:"endpoint"`
}

// Supervisor drives the managed server's lifecycle.
type Supervisor struct {
	layout paths.Layout
	loc    Locator

	// Settle delays are intentional debounces after spawn/signal, not
	// synchronization; tests shrink them.
	StartSettle   time.Duration
	StopSettle    time.Duration
	RestartSettle time.Duration
}

func New(layout paths.Layout, loc Locator) *Supervisor {
	return &Supervisor{
		layout:        layout,
		loc:           loc,
		StartSettle:   500 * time.Millisecond,
		StopSettle:    300 * time.Millisecond,
		RestartSettle: 500 * time.Millisecond,
	}
}

func (s *Supervisor) stdoutLog() string { return filepath.Join(s.layout.LogDir, "server-stdout.log") }
func (s *Supervisor) stderrLog() string { return filepath.Join(s.layout.LogDir, "server-stderr.log") }

// Status assembles best-effort telemetry for the discovered process. A
// degraded locator result yields nil memory/startTime, not an error.
func (s *Supervisor) Status() Status {
	st := Status{
		Port:     s.layout.APIPort,
		Endpoint: s.layout.Endpoint(),
	}
	ref, err := s.loc.Find()
	if err != nil || ref == nil {
		return st
	}
	st.Running = true
	pid := ref.PID
	st.PID = &pid
	st.MemoryMB, st.StartTime = s.loc.Telemetry(ref)
	return st
}

// Start launches the managed server detached from this process, with stdout
// and stderr redirected to freshly truncated log files and the working
// directory set to the config dir. It waits StartSettle and re-checks
// liveness: a child that already exited is reported as a failure with the
// combined log tail as detail.
func (s *Supervisor) Start() (int, error) {
	if ref, _ := s.loc.Find(); ref != nil {
		return 0, fmt.Errorf("%w (PID: %d)", ErrAlreadyRunning, ref.PID)
	}
	if _, err := os.Stat(s.layout.Binary); err != nil {
		return 0, fmt.Errorf("%w: %s", ErrBinaryMissing, s.layout.Binary)
	}
	if _, err := os.Stat(s.layout.ConfigFile); err != nil {
		return 0, fmt.Errorf("%w: %s", ErrConfigMissing, s.layout.ConfigFile)
	}
	if err := os.MkdirAll(s.layout.LogDir, 0o750); err != nil {
		return 0, fmt.Errorf("create log dir: %w", err)
	}
	// Prior run's output is discarded on every start.
	outF, err := os.OpenFile(s.stdoutLog(), os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return 0, fmt.Errorf("open stdout log: %w", err)
	}
	errF, err := os.OpenFile(s.stderrLog(), os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		_ = outF.Close()
		return 0, fmt.Errorf("open stderr log: %w", err)
	}

	// #nosec G204 -- binary path comes from the resolved layout, not user input
	cmd := exec.Command(s.layout.Binary, "--config", s.layout.ConfigFile)
	cmd.Dir = s.layout.ConfigDir
	cmd.Stdout = outF
	cmd.Stderr = errF
	cmd.SysProcAttr = detachedSysProcAttr()
	if err := cmd.Start(); err != nil {
		_ = outF.Close()
		_ = errF.Close()
		return 0, fmt.Errorf("start server: %w", err)
	}
	pid := cmd.Process.Pid
	_ = outF.Close()
	_ = errF.Close()

	waitCh := make(chan error, 1)
	go func() { waitCh <- cmd.Wait() }()

	select {
	case <-waitCh:
		detail := s.logTail()
		if detail != "" {
			return 0, fmt.Errorf("server exited immediately: %s", detail)
		}
		return 0, errors.New("server exited immediately")
	case <-time.After(s.StartSettle):
	}
	slog.Info("server started", "pid", pid)
	return pid, nil
}

// Stop sends a graceful termination signal to the discovered process and
// waits StopSettle. It does not confirm the process exited; callers needing
// certainty poll Status afterward.
func (s *Supervisor) Stop() error {
	ref, _ := s.loc.Find()
	if ref == nil {
		return ErrNotRunning
	}
	if err := terminate(int(ref.PID)); err != nil {
		return fmt.Errorf("signal pid %d: %w", ref.PID, err)
	}
	time.Sleep(s.StopSettle)
	slog.Info("server stop requested", "pid", ref.PID)
	return nil
}

// Restart stops the server if running (NotRunning is not an error here),
// waits RestartSettle, and starts it. The net effect is "server ends up
// running" regardless of prior state.
func (s *Supervisor) Restart() (int, error) {
	if err := s.Stop(); err != nil && !errors.Is(err, ErrNotRunning) {
		return 0, err
	}
	time.Sleep(s.RestartSettle)
	return s.Start()
}

// logTail reads back the combined tail of both (freshly truncated) log files
// after an immediate exit.
func (s *Supervisor) logTail() string {
	var parts []string
	for _, p := range []string{s.stdoutLog(), s.stderrLog()} {
		b, err := os.ReadFile(p)
		if err != nil {
			continue
		}
		if t := strings.TrimSpace(string(b)); t != "" {
			parts = append(parts, t)
		}
	}
	combined := strings.Join(parts, " ")
	const max = 2048
	if len(combined) > max {
		combined = combined[len(combined)-max:]
	}
	return combined
}
