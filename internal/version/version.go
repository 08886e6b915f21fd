// Package version persists the installed-version record for the managed
// installation. The record is the single source of truth for "what is
// actually installed": the updater only advances it after every
// file-mutating install step has completed.
package version

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// ScriptVersion is the semantic version of the control layer itself.
const ScriptVersion = "1.1.0"

// UnknownCommit is the sentinel recorded before any update has been installed.
const UnknownCommit = "unknown"

// State is the durable version record.
type State struct {
	Scripts    string     `json:"scripts"`
	CommitSha  string     `json:"commitSha"`
	CommitDate *time.Time `json:"commitDate"`
	LastCheck  *time.Time `json:"lastCheck"`
}

// Store reads and writes the version record at a fixed path. Every read goes
// to the backing file so restarts and concurrent control processes stay
// consistent; nothing is cached.
type Store struct {
	path string
}

func NewStore(path string) *Store { return &Store{path: path} }

func defaults() State {
	return State{Scripts: ScriptVersion, CommitSha: UnknownCommit}
}

// Read loads the record, injecting defaults for missing fields. A missing or
// unreadable file is replaced with a full default record on disk.
func (s *Store) Read() (State, error) {
	b, err := os.ReadFile(s.path)
	if err != nil {
		st := defaults()
		if werr := s.Write(st); werr != nil {
			return st, werr
		}
		return st, nil
	}
	var st State
	if err := json.Unmarshal(b, &st); err != nil {
		st = defaults()
		if werr := s.Write(st); werr != nil {
			return st, werr
		}
		return st, nil
	}
	if st.Scripts == "" {
		st.Scripts = ScriptVersion
	}
	if st.CommitSha == "" {
		st.CommitSha = UnknownCommit
	}
	return st, nil
}

// Write serializes the full record, overwriting previous content.
func (s *Store) Write(st State) error {
	b, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal version state: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o750); err != nil {
		return fmt.Errorf("create version dir: %w", err)
	}
	if err := os.WriteFile(s.path, b, 0o644); err != nil {
		return fmt.Errorf("write version state: %w", err)
	}
	return nil
}
