package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"

	"github.com/gin-gonic/gin"

	"github.com/imrosyd/cliproxyctl/internal/provider"
)

func (r *Router) handleConfigGet(c *gin.Context) {
	b, err := os.ReadFile(r.layout.ConfigFile)
	if err != nil {
		fail(c, fmt.Errorf("read config: %w", err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "content": string(b)})
}

func (r *Router) handleConfigSet(c *gin.Context) {
	var req struct {
		Content string `json:"content"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, fmt.Errorf("invalid request: %w", err))
		return
	}
	if req.Content == "" {
		fail(c, fmt.Errorf("empty config content"))
		return
	}
	// Keep the previous config around so a bad edit can be reverted by hand.
	if prev, err := os.ReadFile(r.layout.ConfigFile); err == nil {
		_ = os.WriteFile(r.layout.ConfigFile+".bak", prev, 0o644)
	}
	if err := os.WriteFile(r.layout.ConfigFile, []byte(req.Content), 0o644); err != nil {
		fail(c, fmt.Errorf("write config: %w", err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Config saved"})
}

// handleAuthStatus returns the bare provider-to-bool map the dashboard
// consumes directly.
func (r *Router) handleAuthStatus(c *gin.Context) {
	c.JSON(http.StatusOK, provider.AuthStatus(r.layout.ConfigDir))
}

func (r *Router) handleProviderToggle(c *gin.Context) {
	var req struct {
		Provider string `json:"provider"`
		Enabled  *bool  `json:"enabled"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.Provider == "" || req.Enabled == nil {
		fail(c, fmt.Errorf("provider and enabled are required"))
		return
	}
	if err := r.toggles.Set(req.Provider, *req.Enabled); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "provider": req.Provider, "enabled": *req.Enabled})
}

// factoryEntry is one custom_models record in ~/.factory/config.json. The
// file belongs to an external tool, so unknown fields are preserved via the
// raw document map.
type factoryEntry struct {
	DisplayName string `json:"model_display_name"`
	Model       string `json:"model"`
	BaseURL     string `json:"base_url"`
	APIKey      string `json:"api_key"`
	Provider    string `json:"provider"`
}

func (r *Router) readFactory() (map[string]json.RawMessage, []factoryEntry, error) {
	doc := map[string]json.RawMessage{}
	b, err := os.ReadFile(r.layout.FactoryConfig)
	if err == nil {
		if err := json.Unmarshal(b, &doc); err != nil {
			return nil, nil, fmt.Errorf("parse factory config: %w", err)
		}
	} else if !os.IsNotExist(err) {
		return nil, nil, fmt.Errorf("read factory config: %w", err)
	}
	var entries []factoryEntry
	if raw, ok := doc["custom_models"]; ok {
		if err := json.Unmarshal(raw, &entries); err != nil {
			return nil, nil, fmt.Errorf("parse custom_models: %w", err)
		}
	}
	return doc, entries, nil
}

func (r *Router) writeFactory(doc map[string]json.RawMessage, entries []factoryEntry) error {
	raw, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("marshal custom_models: %w", err)
	}
	doc["custom_models"] = raw
	b, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal factory config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(r.layout.FactoryConfig), 0o750); err != nil {
		return fmt.Errorf("create factory dir: %w", err)
	}
	if err := os.WriteFile(r.layout.FactoryConfig, b, 0o644); err != nil {
		return fmt.Errorf("write factory config: %w", err)
	}
	return nil
}

// handleFactoryGet returns the raw factory config document with
// custom_models guaranteed present.
func (r *Router) handleFactoryGet(c *gin.Context) {
	doc, _, err := r.readFactory()
	if err != nil {
		fail(c, err)
		return
	}
	if _, ok := doc["custom_models"]; !ok {
		doc["custom_models"] = json.RawMessage("[]")
	}
	c.JSON(http.StatusOK, doc)
}

func (r *Router) handleFactoryAdd(c *gin.Context) {
	var req struct {
		Models       []string          `json:"models"`
		DisplayNames map[string]string `json:"displayNames"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || len(req.Models) == 0 {
		fail(c, fmt.Errorf("models list is required"))
		return
	}
	doc, entries, err := r.readFactory()
	if err != nil {
		fail(c, err)
		return
	}
	existing := make(map[string]bool, len(entries))
	for _, e := range entries {
		existing[e.Model] = true
	}
	added := []string{}
	for _, m := range req.Models {
		if m == "" || existing[m] {
			continue
		}
		display := req.DisplayNames[m]
		if display == "" {
			display = m
		}
		entries = append(entries, factoryEntry{
			DisplayName: display,
			Model:       m,
			BaseURL:     r.layout.Endpoint(),
			APIKey:      "sk-dummy",
			Provider:    "openai",
		})
		existing[m] = true
		added = append(added, m)
	}
	if err := r.writeFactory(doc, entries); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "added": added})
}

func (r *Router) handleFactoryRemove(c *gin.Context) {
	var req struct {
		Models []string `json:"models"`
		All    bool     `json:"all"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || (!req.All && len(req.Models) == 0) {
		fail(c, fmt.Errorf("models list or all flag is required"))
		return
	}
	doc, entries, err := r.readFactory()
	if err != nil {
		fail(c, err)
		return
	}
	removed := []string{"all"}
	kept := []factoryEntry{}
	if !req.All {
		removed = req.Models
		drop := make(map[string]bool, len(req.Models))
		for _, m := range req.Models {
			drop[m] = true
		}
		for _, e := range entries {
			if !drop[e.Model] {
				kept = append(kept, e)
			}
		}
	}
	if err := r.writeFactory(doc, kept); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "removed": removed})
}
