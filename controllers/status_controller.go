package controllers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"go_pipeline_project/scheduler"
	"go_pipeline_project/services"
)

// StatusController exposes the pipeline's operational surface: health,
// scheduler status, batch completion, the execution journal, live events and
// manual phase triggers.
type StatusController struct {
	core    *scheduler.SchedulerCore
	tracker *services.BatchStateTracker
	journal *services.JournalService
	events  *services.EventHub
	monitor *services.MonitoringService
}

// NewStatusController creates the status controller.
func NewStatusController(core *scheduler.SchedulerCore, tracker *services.BatchStateTracker,
	journal *services.JournalService, events *services.EventHub, monitor *services.MonitoringService) *StatusController {
	return &StatusController{
		core:    core,
		tracker: tracker,
		journal: journal,
		events:  events,
		monitor: monitor,
	}
}

// Ready is the readiness probe: dependencies must answer.
// GET /ready
func (sc *StatusController) Ready(c *gin.Context) {
	ok, details := sc.monitor.HealthCheck(c.Request.Context())
	status := http.StatusOK
	if !ok {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, gin.H{
		"ready":   ok,
		"details": details,
	})
}

// SchedulerStatus returns the job table and runtime state.
// GET /api/scheduler/status
func (sc *StatusController) SchedulerStatus(c *gin.Context) {
	c.JSON(http.StatusOK, sc.core.Status())
}

// BatchStatus returns today's batch completion partition.
// GET /api/batches/status
func (sc *StatusController) BatchStatus(c *gin.Context) {
	date := time.Now()
	if raw := c.Query("date"); raw != "" {
		parsed, err := time.ParseInLocation("2006-01-02", raw, time.Local)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "bad_request",
				"message": "date must be YYYY-MM-DD",
			})
			return
		}
		date = parsed
	}

	completed, incomplete := sc.tracker.GetCompletionStatus(date)
	c.JSON(http.StatusOK, gin.H{
		"date":        date.Format("2006-01-02"),
		"batch_count": sc.tracker.BatchCount(),
		"completed":   completed,
		"incomplete":  incomplete,
	})
}

// JournalRecent returns the most recent journal entries.
// GET /api/journal?limit=N
func (sc *StatusController) JournalRecent(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))
	entries, err := sc.journal.Recent(limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"count":   len(entries),
		"entries": entries,
	})
}

// TriggerRequest is the manual trigger payload.
type TriggerRequest struct {
	Phase   string `json:"phase" binding:"required"`
	BatchID int    `json:"batch_id"`
}

// TriggerPhase runs one phase on demand. Admin only.
// POST /api/scheduler/trigger
func (sc *StatusController) TriggerPhase(c *gin.Context) {
	var req TriggerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "bad_request",
			"message": "phase is required",
		})
		return
	}

	success, err := sc.core.TriggerPhase(req.Phase, req.BatchID)
	if err != nil {
		status := http.StatusBadRequest
		var rangeErr *services.RangeError
		if errors.As(err, &rangeErr) {
			status = http.StatusUnprocessableEntity
		}
		c.JSON(status, gin.H{
			"error":   "trigger_failed",
			"message": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"phase":   req.Phase,
		"success": success,
	})
}

// Events upgrades the connection to the live job event stream.
// GET /api/events/ws
func (sc *StatusController) Events(c *gin.Context) {
	sc.events.HandleWebSocket(c.Writer, c.Request)
}
