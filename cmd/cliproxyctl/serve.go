package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/pkg/browser"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/imrosyd/cliproxyctl/internal/history"
	historyfactory "github.com/imrosyd/cliproxyctl/internal/history/factory"
	"github.com/imrosyd/cliproxyctl/internal/locator"
	"github.com/imrosyd/cliproxyctl/internal/logger"
	"github.com/imrosyd/cliproxyctl/internal/metrics"
	"github.com/imrosyd/cliproxyctl/internal/provider"
	"github.com/imrosyd/cliproxyctl/internal/server"
	"github.com/imrosyd/cliproxyctl/internal/supervisor"
	"github.com/imrosyd/cliproxyctl/internal/updater"
	"github.com/imrosyd/cliproxyctl/internal/version"
)

// ServeFlags holds flags for the serve command.
type ServeFlags struct {
	Port       int
	LogFile    string
	LogLevel   string
	HistoryDSN string
	NoBrowser  bool
}

func createServeCommand(global *GlobalFlags) *cobra.Command {
	flags := &ServeFlags{}
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the control server and dashboard",
		Long: `Start the control server. It serves the web dashboard on the control
port and exposes the JSON API the dashboard uses to start, stop, update
and configure the managed CLIProxyAPI Plus server.

Examples:
  cliproxyctl serve                                  # dashboard on :8318
  cliproxyctl serve --no-browser --logfile=ctl.log
  cliproxyctl serve --history-dsn=sqlite:///var/lib/cliproxyctl/audit.db`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(global, flags)
		},
	}
	cmd.Flags().IntVar(&flags.Port, "port", 0, "control port override (default from layout, 8318)")
	cmd.Flags().StringVar(&flags.LogFile, "logfile", "", "write control-plane logs to this file (rotated)")
	cmd.Flags().StringVar(&flags.LogLevel, "log-level", "info", "log level (debug, info, warn, error)")
	cmd.Flags().StringVar(&flags.HistoryDSN, "history-dsn", "", "audit sink DSN (sqlite path or postgres URL), empty disables auditing")
	cmd.Flags().BoolVar(&flags.NoBrowser, "no-browser", false, "do not open the dashboard in a browser")
	return cmd
}

func runServe(global *GlobalFlags, flags *ServeFlags) error {
	layout, err := loadLayout(global)
	if err != nil {
		return err
	}
	if flags.Port > 0 {
		layout.ControlPort = flags.Port
	}
	logger.Setup(parseLevel(flags.LogLevel), flags.LogFile)

	// The control server is useless without its dashboard asset.
	if _, err := os.Stat(layout.GUIFile); err != nil {
		return fmt.Errorf("GUI asset not found at %s", layout.GUIFile)
	}

	if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
		return fmt.Errorf("register metrics: %w", err)
	}

	var sink history.Sink
	if flags.HistoryDSN != "" {
		sink, err = historyfactory.NewSinkFromDSN(flags.HistoryDSN)
		if err != nil {
			return fmt.Errorf("open audit sink: %w", err)
		}
		defer func() { _ = sink.Close() }()
	}

	sup := supervisor.New(layout, locator.New())
	upd := updater.New(layout, version.NewStore(layout.VersionFile), &serverControl{sup: sup})
	router := server.NewRouter(layout, sup, upd, provider.NewToggles(layout.TogglesFile), sink)

	addr := fmt.Sprintf(":%d", layout.ControlPort)
	srv := server.NewServer(addr, router)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	stopPoll := make(chan struct{})
	go pollServerMetrics(sup, stopPoll)

	url := fmt.Sprintf("http://localhost:%d", layout.ControlPort)
	slog.Info("control server listening", "addr", addr, "gui", layout.GUIFile)
	if !flags.NoBrowser {
		if err := browser.OpenURL(url); err != nil {
			slog.Warn("could not open browser", "url", url, "error", err)
		}
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-errCh:
		close(stopPoll)
		return fmt.Errorf("control server: %w", err)
	case sig := <-sigCh:
		slog.Info("shutting down", "signal", sig.String())
	}
	close(stopPoll)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(ctx)
}

// pollServerMetrics refreshes the server gauges so /metrics stays current
// even when nobody hits /api/status.
func pollServerMetrics(sup *supervisor.Supervisor, stop <-chan struct{}) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			st := sup.Status()
			metrics.SetServerUp(st.Running)
			if st.MemoryMB != nil {
				metrics.SetServerMemoryMB(*st.MemoryMB)
			} else {
				metrics.SetServerMemoryMB(0)
			}
		}
	}
}

// serverControl adapts the supervisor to the updater's narrower view.
type serverControl struct {
	sup *supervisor.Supervisor
}

func (s *serverControl) Status() bool        { return s.sup.Status().Running }
func (s *serverControl) Stop() error         { return s.sup.Stop() }
func (s *serverControl) Start() (int, error) { return s.sup.Start() }

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
