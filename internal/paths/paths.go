package paths

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

// Default ports: the control surface listens on ControlPort, the managed
// API server on APIPort.
const (
	DefaultControlPort = 8318
	DefaultAPIPort     = 8317
)

// DefaultRepo is the GitHub repository updates are fetched from.
const DefaultRepo = "imrosyd/cliproxyapi-plus"

// Layout describes where the managed installation lives on disk.
// All fields are absolute paths.
type Layout struct {
	BinDir        string // directory holding the server binary and helper scripts
	Binary        string // managed server executable
	ConfigDir     string // server working/config directory
	ConfigFile    string // server config.yaml
	LogDir        string // server stdout/stderr and oauth logs
	VersionFile   string // installed-version record (JSON)
	TogglesFile   string // provider toggle states (JSON)
	FactoryConfig string // ~/.factory/config.json
	GUIFile       string // dashboard index.html

	ControlPort int
	APIPort     int
	Repo        string
}

// Default resolves the standard home-relative layout. GUIFile is searched in
// several candidate locations; a missing GUI is not an error here, callers
// decide whether it is fatal.
func Default() (Layout, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return Layout{}, fmt.Errorf("resolve home dir: %w", err)
	}
	binDir := filepath.Join(home, "bin")
	configDir := filepath.Join(home, ".cli-proxy-api")
	l := Layout{
		BinDir:        binDir,
		Binary:        filepath.Join(binDir, "cliproxyapi-plus"),
		ConfigDir:     configDir,
		ConfigFile:    filepath.Join(configDir, "config.yaml"),
		LogDir:        filepath.Join(configDir, "logs"),
		VersionFile:   filepath.Join(configDir, "version.json"),
		TogglesFile:   filepath.Join(configDir, "provider-toggles.json"),
		FactoryConfig: filepath.Join(home, ".factory", "config.json"),
		ControlPort:   DefaultControlPort,
		APIPort:       DefaultAPIPort,
		Repo:          DefaultRepo,
	}
	l.GUIFile = findGUI(home)
	return l, nil
}

// findGUI probes the known dashboard locations and returns the first that
// exists, or the preferred location when none do.
func findGUI(home string) string {
	candidates := []string{
		filepath.Join(home, "bin", "gui", "index.html"),
		filepath.Join(home, "CLIProxyAPIPlus", "gui", "index.html"),
		filepath.Join(home, "cliproxyapi-plus", "gui", "index.html"),
		filepath.Join(home, "project", "cliproxyapi-plus", "gui", "index.html"),
	}
	for _, p := range candidates {
		if fileExists(p) {
			return p
		}
	}
	return candidates[0]
}

// GUIDir is the directory GUI assets are installed into during updates.
func (l Layout) GUIDir() string { return filepath.Dir(l.GUIFile) }

// Endpoint is the OpenAI-compatible base URL of the managed server.
func (l Layout) Endpoint() string {
	return fmt.Sprintf("http://localhost:%d/v1", l.APIPort)
}

// APIBase is the root URL of the managed server.
func (l Layout) APIBase() string {
	return fmt.Sprintf("http://localhost:%d", l.APIPort)
}

// Load resolves the default layout and applies overrides from an optional
// settings file (TOML) and CLIPROXYCTL_* environment variables.
func Load(settingsFile string) (Layout, error) {
	l, err := Default()
	if err != nil {
		return Layout{}, err
	}
	v := viper.New()
	v.SetEnvPrefix("cliproxyctl")
	v.AutomaticEnv()
	if settingsFile != "" {
		v.SetConfigFile(settingsFile)
		v.SetConfigType("toml")
		if err := v.ReadInConfig(); err != nil {
			return Layout{}, fmt.Errorf("read settings %s: %w", settingsFile, err)
		}
	}
	applyOverride(v, "bin_dir", &l.BinDir)
	applyOverride(v, "binary", &l.Binary)
	applyOverride(v, "config_dir", &l.ConfigDir)
	applyOverride(v, "config_file", &l.ConfigFile)
	applyOverride(v, "log_dir", &l.LogDir)
	applyOverride(v, "version_file", &l.VersionFile)
	applyOverride(v, "toggles_file", &l.TogglesFile)
	applyOverride(v, "factory_config", &l.FactoryConfig)
	applyOverride(v, "gui_file", &l.GUIFile)
	applyOverride(v, "repo", &l.Repo)
	if p := v.GetInt("control_port"); p > 0 {
		l.ControlPort = p
	}
	if p := v.GetInt("api_port"); p > 0 {
		l.APIPort = p
	}
	return l, nil
}

func applyOverride(v *viper.Viper, key string, dst *string) {
	if s := v.GetString(key); s != "" {
		*dst = s
	}
}

func fileExists(p string) bool {
	st, err := os.Stat(p)
	return err == nil && !st.IsDir()
}
