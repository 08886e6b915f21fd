package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/imrosyd/cliproxyctl/internal/history"
	"github.com/imrosyd/cliproxyctl/internal/metrics"
	"github.com/imrosyd/cliproxyctl/internal/updater"
)

func (r *Router) handleGUI(c *gin.Context) {
	if r.layout.GUIFile == "" {
		c.JSON(http.StatusNotFound, gin.H{"error": "GUI not found"})
		return
	}
	if _, err := os.Stat(r.layout.GUIFile); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "GUI not found"})
		return
	}
	c.File(r.layout.GUIFile)
}

func (r *Router) handleStatus(c *gin.Context) {
	st := r.sup.Status()
	metrics.SetServerUp(st.Running)
	if st.MemoryMB != nil {
		metrics.SetServerMemoryMB(*st.MemoryMB)
	}
	c.JSON(http.StatusOK, st)
}

func (r *Router) handleStart(c *gin.Context) {
	pid, err := r.sup.Start()
	if err != nil {
		r.record(history.ActionStart, 0, "error", err)
		fail(c, err)
		return
	}
	r.record(history.ActionStart, pid, "ok", nil)
	c.JSON(http.StatusOK, gin.H{"success": true, "pid": pid, "message": "Server started"})
}

func (r *Router) handleStop(c *gin.Context) {
	st := r.sup.Status()
	if err := r.sup.Stop(); err != nil {
		r.record(history.ActionStop, 0, "error", err)
		fail(c, err)
		return
	}
	pid := 0
	if st.PID != nil {
		pid = int(*st.PID)
	}
	r.record(history.ActionStop, pid, "ok", nil)
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Server stopped"})
}

func (r *Router) handleRestart(c *gin.Context) {
	pid, err := r.sup.Restart()
	if err != nil {
		r.record(history.ActionRestart, 0, "error", err)
		fail(c, err)
		return
	}
	r.record(history.ActionRestart, pid, "ok", nil)
	c.JSON(http.StatusOK, gin.H{"success": true, "pid": pid, "message": "Server restarted"})
}

// checkResponse flattens the update info next to the success envelope so
// the dashboard can render current/latest fields even on partial failures.
type checkResponse struct {
	updater.Info
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

func (r *Router) handleUpdateInfo(c *gin.Context) {
	// Checks and installs run to completion even when the dashboard
	// disconnects mid-request.
	info, err := r.upd.Check(context.WithoutCancel(c.Request.Context()))
	if err != nil {
		r.record(history.ActionUpdateCheck, 0, "error", err)
		c.JSON(http.StatusOK, checkResponse{Info: info, Error: err.Error()})
		return
	}
	r.record(history.ActionUpdateCheck, 0, "ok", nil)
	c.JSON(http.StatusOK, checkResponse{Info: info, Success: true})
}

func (r *Router) handleUpdate(c *gin.Context) {
	res, err := r.upd.Install(context.WithoutCancel(c.Request.Context()))
	if err != nil {
		r.record(history.ActionInstall, 0, "error", err)
		var stage *updater.StageError
		if errors.As(err, &stage) {
			c.JSON(http.StatusOK, gin.H{
				"success":       false,
				"error":         err.Error(),
				"stage":         stage.Stage,
				"serverStopped": stage.ServerStopped,
			})
			return
		}
		fail(c, err)
		return
	}
	r.record(history.ActionInstall, 0, "ok", nil)
	c.JSON(http.StatusOK, gin.H{
		"success":       true,
		"message":       "Update installed successfully",
		"newCommit":     res.NewCommit,
		"commitMessage": res.CommitMessage,
		"restarted":     res.Restarted,
	})
}

func (r *Router) handleOAuth(c *gin.Context) {
	id := c.Param("provider")
	if err := r.sup.Login(id); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": fmt.Sprintf("OAuth login started for %s", id),
	})
}

func (r *Router) handleHistory(c *gin.Context) {
	if r.hist == nil {
		c.JSON(http.StatusOK, gin.H{"success": true, "events": []history.Event{}})
		return
	}
	limit := 50
	if raw := c.Query("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}
	events, err := r.hist.Recent(c.Request.Context(), limit)
	if err != nil {
		fail(c, err)
		return
	}
	if events == nil {
		events = []history.Event{}
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "events": events})
}

// record mirrors every lifecycle outcome into the audit sink and the
// action counter. The sink is best-effort.
func (r *Router) record(action history.Action, pid int, outcome string, opErr error) {
	metrics.IncAction(string(action), outcome)
	if r.hist == nil {
		return
	}
	ev := history.Event{Action: action, PID: pid, Outcome: outcome, OccurredAt: time.Now()}
	if opErr != nil {
		ev.Error = opErr.Error()
	}
	_ = r.hist.Send(context.Background(), ev)
}

func fail(c *gin.Context, err error) {
	c.JSON(http.StatusOK, gin.H{"success": false, "error": err.Error()})
}
