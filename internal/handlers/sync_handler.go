package handlers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/maukemana/sync-engine/internal/consistency"
	"github.com/maukemana/sync-engine/internal/models"
	"github.com/maukemana/sync-engine/internal/orchestrator"
	"github.com/maukemana/sync-engine/internal/repositories"
	"github.com/maukemana/sync-engine/internal/utils"
)

// estimatedSyncDuration is a rough planning figure surfaced to callers of
// POST /sync/feishu; the real duration depends entirely on table size and
// image volume.
const estimatedSyncDuration = "2-5 minutes"

// Orchestrator is the subset of orchestrator.Orchestrator the sync handler
// drives.
type Orchestrator interface {
	StartAsync(ctx context.Context, opts orchestrator.Options) (string, error)
	ControlSync(action orchestrator.ControlAction, syncID string) error
	Status(ctx context.Context) (current, last *models.SyncLog, err error)
	Progress() *orchestrator.ProgressBroadcaster
}

// SyncHandler serves the /sync/* endpoints described in spec.md §6.
type SyncHandler struct {
	orch     Orchestrator
	syncLogs *repositories.SyncLogRepository
	checker  *consistency.Checker
}

func NewSyncHandler(orch Orchestrator, syncLogs *repositories.SyncLogRepository, checker *consistency.Checker) *SyncHandler {
	return &SyncHandler{orch: orch, syncLogs: syncLogs, checker: checker}
}

type startSyncRequest struct {
	Mode       models.SyncType        `json:"mode" binding:"required"`
	ProductIDs []string               `json:"productIds,omitempty"`
	Options    orchestrator.RawOptions `json:"options,omitempty"`
}

// StartSync handles POST /sync/feishu.
func (h *SyncHandler) StartSync(c *gin.Context) {
	var req startSyncRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.SendErrorCode(c, http.StatusBadRequest, "INVALID_PARAMS", err.Error(), err)
		return
	}

	switch req.Mode {
	case models.SyncFull, models.SyncIncremental, models.SyncSelective:
	default:
		utils.SendErrorCode(c, http.StatusBadRequest, "INVALID_PARAMS", "mode must be one of full, incremental, selective", nil)
		return
	}
	if req.Mode == models.SyncSelective && len(req.ProductIDs) == 0 {
		utils.SendErrorCode(c, http.StatusBadRequest, "MISSING_PRODUCT_IDS", "selective mode requires a non-empty productIds", nil)
		return
	}

	raw := req.Options
	raw.Mode = req.Mode
	raw.ProductIDs = req.ProductIDs
	opts := orchestrator.ResolveOptions(raw)

	// A sync outlives the HTTP request that starts it, so it runs against a
	// detached context rather than c.Request.Context().
	syncID, err := h.orch.StartAsync(context.Background(), opts)
	if err != nil {
		if errors.Is(err, orchestrator.ErrConflict) {
			utils.SendConflict(c, "a sync is already running", err)
			return
		}
		if errors.Is(err, orchestrator.ErrMissingProductIDs) {
			utils.SendErrorCode(c, http.StatusBadRequest, "MISSING_PRODUCT_IDS", err.Error(), err)
			return
		}
		utils.SendInternalError(c, err)
		return
	}

	utils.SendAccepted(c, "sync started", gin.H{
		"syncId":             syncID,
		"status":             "started",
		"estimatedDuration":  estimatedSyncDuration,
		"progressChannelUrl": fmt.Sprintf("/sync/stream?syncId=%s", syncID),
	})
}

// Status handles GET /sync/status.
func (h *SyncHandler) Status(c *gin.Context) {
	current, last, err := h.orch.Status(c.Request.Context())
	if err != nil {
		utils.SendInternalError(c, err)
		return
	}
	utils.SendSuccess(c, "sync status", gin.H{"currentSync": current, "lastSync": last})
}

type controlSyncRequest struct {
	Action orchestrator.ControlAction `json:"action" binding:"required"`
	SyncID string                     `json:"syncId,omitempty"`
}

// Control handles POST /sync/control.
func (h *SyncHandler) Control(c *gin.Context) {
	var req controlSyncRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.SendErrorCode(c, http.StatusBadRequest, "INVALID_PARAMS", err.Error(), err)
		return
	}

	switch req.Action {
	case orchestrator.ActionPause, orchestrator.ActionResume, orchestrator.ActionCancel:
	default:
		utils.SendErrorCode(c, http.StatusBadRequest, "INVALID_PARAMS", "action must be one of pause, resume, cancel", nil)
		return
	}

	if err := h.orch.ControlSync(req.Action, req.SyncID); err != nil {
		if errors.Is(err, orchestrator.ErrNoActiveSync) {
			utils.SendErrorCode(c, http.StatusConflict, "CONFLICT", "no matching active sync", err)
			return
		}
		utils.SendInternalError(c, err)
		return
	}

	utils.SendSuccess(c, "control signal accepted", gin.H{"action": req.Action, "syncId": req.SyncID})
}

// History handles GET /sync/history.
func (h *SyncHandler) History(c *gin.Context) {
	var opts repositories.FilterOptions

	if v := c.Query("status"); v != "" {
		s := models.SyncStatus(v)
		opts.Status = &s
	}
	if v := c.Query("mode"); v != "" {
		m := models.SyncType(v)
		opts.Mode = &m
	}
	if v := c.Query("startDate"); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			opts.StartDate = &t
		}
	}
	if v := c.Query("endDate"); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			opts.EndDate = &t
		}
	}
	opts.Page, _ = strconv.Atoi(c.DefaultQuery("page", "1"))
	opts.Limit, _ = strconv.Atoi(c.DefaultQuery("limit", "20"))

	records, total, err := h.syncLogs.FindFiltered(c.Request.Context(), opts)
	if err != nil {
		utils.SendInternalError(c, err)
		return
	}

	utils.SendPaginated(c, "sync history", records, opts.Page, opts.Limit, total)
}

type validateRequest struct {
	Scope      consistency.Scope        `json:"scope,omitempty"`
	ProductIDs []string                 `json:"productIds,omitempty"`
	Checks     []consistency.CheckType  `json:"checks,omitempty"`
}

// Validate handles POST /sync/validate.
func (h *SyncHandler) Validate(c *gin.Context) {
	var req validateRequest
	if err := c.ShouldBindJSON(&req); err != nil && err.Error() != "EOF" {
		utils.SendErrorCode(c, http.StatusBadRequest, "INVALID_PARAMS", err.Error(), err)
		return
	}
	if req.Scope == "" {
		req.Scope = consistency.ScopeAll
	}
	if req.Scope == consistency.ScopeSelective && len(req.ProductIDs) == 0 {
		utils.SendErrorCode(c, http.StatusBadRequest, "MISSING_PRODUCT_IDS", "selective scope requires a non-empty productIds", nil)
		return
	}

	result, err := h.checker.Validate(c.Request.Context(), consistency.ValidateOptions{
		Scope: req.Scope, ProductIDs: req.ProductIDs, Checks: req.Checks,
	})
	if err != nil {
		utils.SendInternalError(c, err)
		return
	}
	utils.SendSuccess(c, "consistency report", result)
}

type repairRequest struct {
	RepairID   string                  `json:"repairId,omitempty"`
	IssueTypes []consistency.IssueType `json:"issueTypes,omitempty"`
	ProductIDs []string                `json:"productIds,omitempty"`
	DryRun     bool                    `json:"dryRun,omitempty"`
}

// Repair handles POST /sync/repair.
func (h *SyncHandler) Repair(c *gin.Context) {
	var req repairRequest
	if err := c.ShouldBindJSON(&req); err != nil && err.Error() != "EOF" {
		utils.SendErrorCode(c, http.StatusBadRequest, "INVALID_PARAMS", err.Error(), err)
		return
	}

	result, err := h.checker.Repair(c.Request.Context(), consistency.RepairOptions{
		RepairID: req.RepairID, IssueTypes: req.IssueTypes, ProductIDs: req.ProductIDs, DryRun: req.DryRun,
	})
	if err != nil {
		utils.SendInternalError(c, err)
		return
	}
	utils.SendSuccess(c, "repair complete", result)
}

// Stream handles GET /sync/stream, a supplemented Server-Sent-Events feed of
// live progress ticks replacing the source's progress-callback registration.
func (h *SyncHandler) Stream(c *gin.Context) {
	ch, cancel := h.orch.Progress().Subscribe()
	defer cancel()

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")

	c.Stream(func(w interface{ Write([]byte) (int, error) }) bool {
		select {
		case p, ok := <-ch:
			if !ok {
				return false
			}
			c.SSEvent("progress", p)
			return true
		case <-c.Request.Context().Done():
			return false
		}
	})
}
