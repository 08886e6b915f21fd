package supervisor

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/imrosyd/cliproxyctl/internal/provider"
)

var ErrUnknownProvider = errors.New("unknown provider")

// Login launches the server binary in login mode for the given provider and
// does not wait for it. The only contract is "a credential file matching the
// provider's glob appears on success"; the per-provider log file is the only
// other observable. The child inherits our environment so it can open a
// browser, with DISPLAY and BROWSER defaulted when absent.
func (s *Supervisor) Login(providerID string) error {
	p, ok := provider.ByID(providerID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownProvider, providerID)
	}
	if err := os.MkdirAll(s.layout.LogDir, 0o750); err != nil {
		return fmt.Errorf("create log dir: %w", err)
	}
	logPath := filepath.Join(s.layout.LogDir, "oauth-"+p.ID+".log")
	logF, err := os.OpenFile(logPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("open oauth log: %w", err)
	}

	// #nosec G204 -- binary path and flag come from the fixed layout/registry
	cmd := exec.Command(s.layout.Binary, "--config", s.layout.ConfigFile, p.LoginFlag)
	cmd.Dir = s.layout.ConfigDir
	cmd.Stdout = logF
	cmd.Stderr = logF
	cmd.Env = loginEnv(os.Environ())
	if err := cmd.Start(); err != nil {
		_ = logF.Close()
		return fmt.Errorf("start oauth login: %w", err)
	}
	_ = logF.Close()
	go func() { _ = cmd.Wait() }()
	slog.Info("oauth login started", "provider", p.ID, "log", logPath)
	return nil
}

// loginEnv ensures DISPLAY is set for X11 browsers and autodetects BROWSER
// when absent, so the child's login flow can reach a browser on headless-ish
// setups and WSL.
func loginEnv(base []string) []string {
	env := make([]string, len(base))
	copy(env, base)
	if !envHas(env, "DISPLAY") {
		env = append(env, "DISPLAY=:0")
	}
	if !envHas(env, "BROWSER") {
		for _, b := range []string{"xdg-open", "sensible-browser", "firefox", "google-chrome", "chromium-browser"} {
			if path, err := exec.LookPath(b); err == nil {
				env = append(env, "BROWSER="+path)
				break
			}
		}
	}
	return env
}

func envHas(env []string, key string) bool {
	prefix := key + "="
	for _, kv := range env {
		if strings.HasPrefix(kv, prefix) {
			return true
		}
	}
	return false
}
