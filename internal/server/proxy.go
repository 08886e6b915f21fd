package server

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/imrosyd/cliproxyctl/internal/provider"
)

// handleModels proxies the managed server's model catalog, filters out
// models whose provider has been toggled off, and returns the surviving
// model ids. The total counts the unfiltered catalog.
func (r *Router) handleModels(c *gin.Context) {
	if !r.sup.Status().Running {
		c.JSON(http.StatusOK, gin.H{"success": false, "error": "Server not running", "models": []string{}})
		return
	}
	req, err := http.NewRequestWithContext(c.Request.Context(), http.MethodGet, r.layout.Endpoint()+"/models", nil)
	if err != nil {
		fail(c, err)
		return
	}
	req.Header.Set("Authorization", "Bearer sk-dummy")
	resp, err := r.api.Do(req)
	if err != nil {
		fail(c, fmt.Errorf("fetch models: %w", err))
		return
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		fail(c, fmt.Errorf("read models response: %w", err))
		return
	}
	if resp.StatusCode != http.StatusOK {
		fail(c, fmt.Errorf("models request returned %d", resp.StatusCode))
		return
	}
	var parsed struct {
		Data []struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		fail(c, fmt.Errorf("parse models response: %w", err))
		return
	}

	ids := make([]string, len(parsed.Data))
	for i, m := range parsed.Data {
		ids[i] = m.ID
	}
	filtered := provider.FilterModels(ids, r.toggles.Read())
	c.JSON(http.StatusOK, gin.H{"success": true, "models": filtered, "total": len(ids)})
}

// handleStats proxies the managed server's usage stats with a short
// timeout. Any failure degrades to available=false rather than an error.
func (r *Router) handleStats(c *gin.Context) {
	if stats, ok := r.fetchStats(c); ok {
		c.JSON(http.StatusOK, stats)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"total": 0, "success": 0, "errors": 0,
		"successRate": 0, "avgLatency": 0,
		"lastReset": time.Now().Format(time.RFC3339),
		"available": false,
		"message":   "Stats not available",
	})
}

func (r *Router) fetchStats(c *gin.Context) (gin.H, bool) {
	if !r.sup.Status().Running {
		return nil, false
	}
	client := &http.Client{Timeout: 2 * time.Second}
	req, err := http.NewRequestWithContext(c.Request.Context(), http.MethodGet, r.layout.APIBase()+"/stats", nil)
	if err != nil {
		return nil, false
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, false
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil || resp.StatusCode != http.StatusOK {
		return nil, false
	}
	var raw struct {
		TotalRequests      float64 `json:"total_requests"`
		SuccessfulRequests float64 `json:"successful_requests"`
		FailedRequests     float64 `json:"failed_requests"`
		AvgLatencyMS       float64 `json:"avg_latency_ms"`
		StartTime          string  `json:"start_time"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, false
	}
	total := raw.TotalRequests
	if total < 1 {
		total = 1
	}
	lastReset := raw.StartTime
	if lastReset == "" {
		lastReset = time.Now().Format(time.RFC3339)
	}
	return gin.H{
		"total":       raw.TotalRequests,
		"success":     raw.SuccessfulRequests,
		"errors":      raw.FailedRequests,
		"successRate": math.Round(raw.SuccessfulRequests/total*1000) / 10,
		"avgLatency":  raw.AvgLatencyMS,
		"lastReset":   lastReset,
		"available":   true,
	}, true
}
