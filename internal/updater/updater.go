// Package updater checks the release branch for new commits and installs
// updates in place: scripts into the bin dir, GUI assets into the asset dir,
// and only then advances the version record. A failure partway through
// never touches the version record, so it always names what is actually
// installed.
package updater

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/imrosyd/cliproxyctl/internal/paths"
	"github.com/imrosyd/cliproxyctl/internal/version"
)

var ErrCorruptArchive = errors.New("no folder found in archive")

// ServerControl is the slice of the supervisor the installer needs to
// coordinate a stop/start around the file swap.
type ServerControl interface {
	Status() (running bool)
	Stop() error
	Start() (pid int, err error)
}

// Info is the result of an update check. LatestCommit fields are empty when
// populated from a failed check.
type Info struct {
	CurrentVersion      string     `json:"currentVersion"`
	CurrentCommit       string     `json:"currentCommit"`
	LatestCommit        string     `json:"latestCommit,omitempty"`
	LatestCommitDate    *time.Time `json:"latestCommitDate,omitempty"`
	LatestCommitMessage string     `json:"latestCommitMessage"`
	HasUpdate           bool       `json:"hasUpdate"`
	DownloadURL         string     `json:"downloadUrl"`
	RepoURL             string     `json:"repoUrl"`
}

// Result reports a completed install.
type Result struct {
	NewCommit     string `json:"newCommit"`
	CommitMessage string `json:"commitMessage"`
	WasRunning    bool   `json:"wasRunning"`
	Restarted     bool   `json:"restarted"`
}

// StageError names the install stage that failed and records whether the
// server was stopped for the install and left stopped.
type StageError struct {
	Stage         string
	ServerStopped bool
	Err           error
}

func (e *StageError) Error() string {
	msg := fmt.Sprintf("update failed at %s: %v", e.Stage, e.Err)
	if e.ServerStopped {
		msg += " (server was stopped for the install and is left stopped)"
	}
	return msg
}

func (e *StageError) Unwrap() error { return e.Err }

// Updater coordinates update checks and installs.
type Updater struct {
	layout paths.Layout
	store  *version.Store
	server ServerControl
	client *http.Client

	apiBase      string
	downloadBase string
	repo         string
	branch       string

	// StopSettle is the pause after stopping the server, letting it release
	// its executable and log files before they are overwritten.
	StopSettle time.Duration

	// Installs are single-flight; concurrent /api/update calls serialize.
	mu sync.Mutex
}

func New(layout paths.Layout, store *version.Store, server ServerControl) *Updater {
	return &Updater{
		layout:       layout,
		store:        store,
		server:       server,
		client:       &http.Client{Timeout: 10 * time.Minute},
		apiBase:      "https://api.github.com",
		downloadBase: "https://github.com",
		repo:         layout.Repo,
		branch:       "main",
		StopSettle:   time.Second,
	}
}

func (u *Updater) downloadURL() string {
	return fmt.Sprintf("%s/%s/archive/refs/heads/%s.zip", u.downloadBase, u.repo, u.branch)
}

func (u *Updater) repoURL() string {
	return fmt.Sprintf("https://github.com/%s", u.repo)
}

// Check fetches the release branch tip and compares it with the installed
// commit. A successful check records lastCheck even when no update is
// available. Transport failures are returned, never fatal.
func (u *Updater) Check(ctx context.Context) (Info, error) {
	local, err := u.store.Read()
	if err != nil {
		return Info{}, fmt.Errorf("read version state: %w", err)
	}
	info := Info{
		CurrentVersion: local.Scripts,
		CurrentCommit:  local.CommitSha,
		DownloadURL:    u.downloadURL(),
		RepoURL:        u.repoURL(),
	}
	sha, date, message, err := u.fetchLatestCommit(ctx)
	if err != nil {
		return info, err
	}
	info.LatestCommit = sha
	info.LatestCommitDate = &date
	info.LatestCommitMessage = message
	info.HasUpdate = local.CommitSha == version.UnknownCommit || local.CommitSha != sha

	now := time.Now().UTC()
	local.LastCheck = &now
	if err := u.store.Write(local); err != nil {
		return info, fmt.Errorf("record last check: %w", err)
	}
	return info, nil
}

// Install runs the full update sequence: check, stop the server if running,
// download and extract the release archive, copy scripts and GUI assets into
// place, advance the version record, and restart the server if it was
// running before. The temp workspace is removed on every path. No automatic
// retry: the caller decides whether to run the whole sequence again.
func (u *Updater) Install(ctx context.Context) (Result, error) {
	u.mu.Lock()
	defer u.mu.Unlock()

	info, err := u.Check(ctx)
	if err != nil {
		return Result{}, &StageError{Stage: "check", Err: err}
	}

	wasRunning := u.server.Status()
	if wasRunning {
		// Best-effort stop; give the old binary time to release file locks.
		if err := u.server.Stop(); err != nil {
			slog.Warn("pre-install stop failed", "error", err)
		}
		time.Sleep(u.StopSettle)
	}

	tmpDir, err := os.MkdirTemp("", "cliproxyctl-update-")
	if err != nil {
		return Result{}, &StageError{Stage: "prepare", ServerStopped: wasRunning, Err: err}
	}
	defer func() { _ = os.RemoveAll(tmpDir) }()

	archive := filepath.Join(tmpDir, "update.zip")
	slog.Info("downloading update", "url", info.DownloadURL)
	if err := u.downloadArchive(ctx, info.DownloadURL, archive); err != nil {
		return Result{}, &StageError{Stage: "download", ServerStopped: wasRunning, Err: err}
	}

	extractDir := filepath.Join(tmpDir, "extracted")
	root, err := extractArchive(archive, extractDir)
	if err != nil {
		return Result{}, &StageError{Stage: "extract", ServerStopped: wasRunning, Err: err}
	}

	if err := u.copyPayload(root); err != nil {
		return Result{}, &StageError{Stage: "copy", ServerStopped: wasRunning, Err: err}
	}

	// All file-mutating steps succeeded; only now advance the version record.
	local, err := u.store.Read()
	if err != nil {
		return Result{}, &StageError{Stage: "persist", ServerStopped: wasRunning, Err: err}
	}
	local.CommitSha = info.LatestCommit
	local.CommitDate = info.LatestCommitDate
	if err := u.store.Write(local); err != nil {
		return Result{}, &StageError{Stage: "persist", ServerStopped: wasRunning, Err: err}
	}

	res := Result{
		NewCommit:     info.LatestCommit,
		CommitMessage: info.LatestCommitMessage,
		WasRunning:    wasRunning,
	}
	if wasRunning {
		if _, err := u.server.Start(); err != nil {
			slog.Warn("post-install restart failed", "error", err)
		} else {
			res.Restarted = true
		}
	}
	slog.Info("update installed", "commit", res.NewCommit)
	return res, nil
}

// copyPayload installs the archive's scripts/ files into the bin dir (marked
// executable) and its gui/ files into the GUI asset dir, overwriting
// same-named files. A missing subdirectory is skipped, not an error.
func (u *Updater) copyPayload(root string) error {
	if err := copyDirFiles(filepath.Join(root, "scripts"), u.layout.BinDir, 0o755); err != nil {
		return err
	}
	return copyDirFiles(filepath.Join(root, "gui"), u.layout.GUIDir(), 0o644)
}
