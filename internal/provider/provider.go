// Package provider enumerates the upstream login back-ends the managed
// server supports: each has a login flag, a credential-file glob, and a
// model-id prefix heuristic used when filtering the exposed catalog.
package provider

import (
	"path/filepath"
	"strings"
)

// Provider describes one upstream back-end.
type Provider struct {
	ID             string
	LoginFlag      string   // flag passed to the server binary to launch the OAuth flow
	CredentialGlob string   // glob over the config dir that exists once logged in
	Hints          []string // substrings identifying this provider's model ids
}

// All lists the supported providers. Hint matching is ordered: the first
// provider whose hint appears in a model id wins, so e.g. "gemini-claude"
// resolves to gemini rather than claude.
var All = []Provider{
	{ID: "gemini", LoginFlag: "--login", CredentialGlob: "gemini-*.json",
		Hints: []string{"gemini", "tstars", "learnlm"}},
	{ID: "copilot", LoginFlag: "--github-copilot-login", CredentialGlob: "github-copilot-*.json",
		Hints: []string{"copilot", "gpt-4", "gpt-5", "o1-", "o3-", "o4-"}},
	{ID: "antigravity", LoginFlag: "--antigravity-login", CredentialGlob: "antigravity-*.json",
		Hints: []string{"antigravity"}},
	{ID: "codex", LoginFlag: "--codex-login", CredentialGlob: "codex-*.json",
		Hints: []string{"codex", "code-davinci"}},
	{ID: "claude", LoginFlag: "--claude-login", CredentialGlob: "claude-*.json",
		Hints: []string{"claude", "sonnet", "opus", "haiku"}},
	{ID: "qwen", LoginFlag: "--qwen-login", CredentialGlob: "qwen-*.json",
		Hints: []string{"qwen", "qwq"}},
	{ID: "iflow", LoginFlag: "--iflow-login", CredentialGlob: "iflow-*.json",
		Hints: []string{"iflow", "deepseek", "grok", "raptor"}},
	{ID: "kiro", LoginFlag: "--kiro-aws-login", CredentialGlob: "kiro-*.json",
		Hints: []string{"kiro", "kimi"}},
}

// ByID looks up a provider by its identifier, case-insensitively.
func ByID(id string) (Provider, bool) {
	id = strings.ToLower(strings.TrimSpace(id))
	for _, p := range All {
		if p.ID == id {
			return p, true
		}
	}
	return Provider{}, false
}

// ForModel identifies which provider a model id belongs to by substring
// heuristic. Returns ("", false) for unrecognized ids.
func ForModel(modelID string) (string, bool) {
	m := strings.ToLower(modelID)
	for _, p := range All {
		for _, h := range p.Hints {
			if strings.Contains(m, h) {
				return p.ID, true
			}
		}
	}
	return "", false
}

// AuthStatus reports which providers have at least one credential file in
// configDir. Only existence is tested, never content.
func AuthStatus(configDir string) map[string]bool {
	status := make(map[string]bool, len(All))
	for _, p := range All {
		matches, err := filepath.Glob(filepath.Join(configDir, p.CredentialGlob))
		status[p.ID] = err == nil && len(matches) > 0
	}
	return status
}

// FilterModels drops models belonging to disabled providers. A model with no
// identifiable provider, or whose provider has no recorded toggle, passes.
func FilterModels(models []string, toggles map[string]bool) []string {
	filtered := make([]string, 0, len(models))
	for _, m := range models {
		id, ok := ForModel(m)
		if !ok {
			filtered = append(filtered, m)
			continue
		}
		if enabled, present := toggles[id]; !present || enabled {
			filtered = append(filtered, m)
		}
	}
	return filtered
}
