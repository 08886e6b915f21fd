package provider

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Toggles persists per-provider enabled flags as a JSON object. An absent
// entry means enabled. Reads always hit the backing file; concurrent writers
// are last-writer-wins.
type Toggles struct {
	path string
}

func NewToggles(path string) *Toggles { return &Toggles{path: path} }

// Read returns the current toggle map. A missing or unreadable file yields
// an empty map (everything enabled).
func (t *Toggles) Read() map[string]bool {
	b, err := os.ReadFile(t.path)
	if err != nil {
		return map[string]bool{}
	}
	var m map[string]bool
	if err := json.Unmarshal(b, &m); err != nil || m == nil {
		return map[string]bool{}
	}
	return m
}

// Set records the enabled state for one provider and rewrites the file.
// Unknown provider ids are rejected.
func (t *Toggles) Set(id string, enabled bool) error {
	p, ok := ByID(id)
	if !ok {
		return fmt.Errorf("unknown provider: %s", id)
	}
	m := t.Read()
	m[p.ID] = enabled
	b, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal toggles: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(t.path), 0o750); err != nil {
		return fmt.Errorf("create toggles dir: %w", err)
	}
	if err := os.WriteFile(t.path, b, 0o644); err != nil {
		return fmt.Errorf("write toggles: %w", err)
	}
	return nil
}
