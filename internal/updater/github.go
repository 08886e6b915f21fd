package updater

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
)

const userAgent = "CLIProxyAPI-Plus-Updater"

// remoteCommit is the subset of the GitHub commits API response we use.
type remoteCommit struct {
	SHA    string `json:"sha"`
	Commit struct {
		Author struct {
			Date time.Time `json:"date"`
		} `json:"author"`
		Message string `json:"message"`
	} `json:"commit"`
}

// fetchLatestCommit resolves the tip of the release branch: short sha (7
// chars), author date, and the first line of the commit message.
func (u *Updater) fetchLatestCommit(ctx context.Context) (sha string, date time.Time, message string, err error) {
	url := fmt.Sprintf("%s/repos/%s/commits/%s", u.apiBase, u.repo, u.branch)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", time.Time{}, "", err
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/vnd.github+json")

	resp, err := u.client.Do(req)
	if err != nil {
		return "", time.Time{}, "", fmt.Errorf("fetch latest commit: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", time.Time{}, "", fmt.Errorf("fetch latest commit: %s: %s", resp.Status, strings.TrimSpace(string(body)))
	}

	var rc remoteCommit
	if err := json.NewDecoder(resp.Body).Decode(&rc); err != nil {
		return "", time.Time{}, "", fmt.Errorf("decode commit response: %w", err)
	}
	sha = rc.SHA
	if len(sha) > 7 {
		sha = sha[:7]
	}
	message = rc.Commit.Message
	if i := strings.IndexByte(message, '\n'); i >= 0 {
		message = message[:i]
	}
	return sha, rc.Commit.Author.Date, message, nil
}

// downloadArchive fetches the release zip to destPath via a temp file.
func (u *Updater) downloadArchive(ctx context.Context, url, destPath string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := u.client.Do(req)
	if err != nil {
		return fmt.Errorf("download archive: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("download archive: %s", resp.Status)
	}

	tmp := destPath + ".tmp"
	out, err := os.Create(tmp)
	if err != nil {
		return err
	}
	_, copyErr := io.Copy(out, resp.Body)
	closeErr := out.Close()
	if copyErr != nil {
		_ = os.Remove(tmp)
		return copyErr
	}
	if closeErr != nil {
		_ = os.Remove(tmp)
		return closeErr
	}
	return os.Rename(tmp, destPath)
}
