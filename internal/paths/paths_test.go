package paths

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultLayout(t *testing.T) {
	l, err := Default()
	if err != nil {
		t.Fatalf("Default: %v", err)
	}
	home, _ := os.UserHomeDir()
	if l.Binary != filepath.Join(home, "bin", "cliproxyapi-plus") {
		t.Fatalf("binary = %s", l.Binary)
	}
	if l.ControlPort != DefaultControlPort || l.APIPort != DefaultAPIPort {
		t.Fatalf("ports = %d/%d", l.ControlPort, l.APIPort)
	}
	if l.Repo != DefaultRepo {
		t.Fatalf("repo = %s", l.Repo)
	}
}

func TestEndpointAndAPIBase(t *testing.T) {
	l := Layout{APIPort: 9000}
	if l.Endpoint() != "http://localhost:9000/v1" {
		t.Fatalf("endpoint = %s", l.Endpoint())
	}
	if l.APIBase() != "http://localhost:9000" {
		t.Fatalf("api base = %s", l.APIBase())
	}
}

func TestLoadSettingsFile(t *testing.T) {
	dir := t.TempDir()
	settings := filepath.Join(dir, "settings.toml")
	content := "bin_dir = \"" + dir + "\"\ncontrol_port = 9318\n"
	if err := os.WriteFile(settings, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	l, err := Load(settings)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if l.BinDir != dir {
		t.Fatalf("bin dir override not applied: %s", l.BinDir)
	}
	if l.ControlPort != 9318 {
		t.Fatalf("control port override not applied: %d", l.ControlPort)
	}
	if l.APIPort != DefaultAPIPort {
		t.Fatalf("api port should keep default: %d", l.APIPort)
	}
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("CLIPROXYCTL_REPO", "someone/fork")
	l, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if l.Repo != "someone/fork" {
		t.Fatalf("repo override not applied: %s", l.Repo)
	}
}

func TestLoadMissingSettingsFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.toml")); err == nil {
		t.Fatal("expected error for missing settings file")
	}
}
