package server

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Mutter0815/LaunchPro/internal/campaign"
	"github.com/Mutter0815/LaunchPro/internal/orchestrator"
	"github.com/Mutter0815/LaunchPro/internal/pipeline"
	"github.com/Mutter0815/LaunchPro/pkg/logx"
	"github.com/Mutter0815/LaunchPro/pkg/model"
)

type launcherAPI interface {
	Launch(ctx context.Context, req campaign.LaunchReq) (campaign.LaunchResp, error)
}

type storeAPI interface {
	GetCampaign(ctx context.Context, id string) (*campaign.Campaign, error)
	ListCampaigns(ctx context.Context, status campaign.Status, limit, offset int) ([]campaign.CampaignListItem, error)
	ListAudit(ctx context.Context, id string) ([]campaign.AuditEntry, error)
}

type taskAPI interface {
	Handle(ctx context.Context, del campaign.Delivery) (pipeline.Result, error)
}

type Handlers struct {
	Launcher launcherAPI
	Store    storeAPI
	Tasks    taskAPI
	// LaunchTimeout bounds a synchronous launch, which may run the whole
	// process-campaign stage inline.
	LaunchTimeout time.Duration
}

func NewHandlers(l launcherAPI, st storeAPI, tasks taskAPI, launchTimeout time.Duration) *Handlers {
	return &Handlers{Launcher: l, Store: st, Tasks: tasks, LaunchTimeout: launchTimeout}
}

func (h *Handlers) Healthz(c *gin.Context) {
	c.String(http.StatusOK, "ok")
}

func (h *Handlers) LaunchCampaign(c *gin.Context) {
	var req campaign.LaunchReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, model.ErrorResp{Error: err.Error()})
		return
	}

	timeout := h.LaunchTimeout
	if timeout <= 0 {
		timeout = 15 * time.Minute
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), timeout)
	defer cancel()

	resp, err := h.Launcher.Launch(ctx, req)
	if errors.Is(err, campaign.ErrInvalidRequest) {
		c.JSON(http.StatusBadRequest, model.ErrorResp{Error: err.Error()})
		return
	}
	if err != nil {
		logx.L().Errorw("launch_error", "name", req.Name, "error", err)
		c.JSON(http.StatusInternalServerError, model.ErrorResp{Error: "launch error"})
		return
	}

	c.JSON(launchStatus(resp), resp)
}

// launchStatus maps a launch response onto an HTTP code: 200 when the
// launch finished, 502 when the traffic source refused the content, and
// 202 while the pipeline continues in the background.
func launchStatus(resp campaign.LaunchResp) int {
	switch resp.Status {
	case campaign.StatusActive:
		return http.StatusOK
	case campaign.StatusFailed:
		if resp.ErrorDetail != nil && resp.ErrorDetail.Stage == campaign.FailureContentSubmission {
			return http.StatusBadGateway
		}
		return http.StatusOK
	}
	return http.StatusAccepted
}

func (h *Handlers) ListCampaigns(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	var status campaign.Status
	if s := c.Query("status"); s != "" {
		st, ok := campaign.ParseStatus(s)
		if !ok {
			c.JSON(http.StatusBadRequest, model.ErrorResp{Error: "unknown status " + s})
			return
		}
		status = st
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	items, err := h.Store.ListCampaigns(ctx, status, limit, offset)
	if err != nil {
		logx.L().Errorw("list_campaigns_error", "error", err)
		c.JSON(http.StatusInternalServerError, model.ErrorResp{Error: "list error"})
		return
	}
	if items == nil {
		items = []campaign.CampaignListItem{}
	}
	c.JSON(http.StatusOK, model.CampaignList[campaign.CampaignListItem]{Items: items, Limit: limit, Offset: offset})
}

func (h *Handlers) GetCampaign(c *gin.Context) {
	id := c.Param("id")

	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	camp, err := h.Store.GetCampaign(ctx, id)
	if errors.Is(err, campaign.ErrNotFound) {
		c.JSON(http.StatusNotFound, model.ErrorResp{Error: "campaign not found"})
		return
	}
	if err != nil {
		logx.Campaign(id).Errorw("get_campaign_error", "error", err)
		c.JSON(http.StatusInternalServerError, model.ErrorResp{Error: "get error"})
		return
	}
	c.JSON(http.StatusOK, camp)
}

func (h *Handlers) GetLaunch(c *gin.Context) {
	id := c.Param("id")

	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	camp, err := h.Store.GetCampaign(ctx, id)
	if errors.Is(err, campaign.ErrNotFound) {
		c.JSON(http.StatusNotFound, model.ErrorResp{Error: "campaign not found"})
		return
	}
	if err != nil {
		logx.Campaign(id).Errorw("get_campaign_error", "error", err)
		c.JSON(http.StatusInternalServerError, model.ErrorResp{Error: "get error"})
		return
	}
	c.JSON(http.StatusOK, orchestrator.Response(camp))
}

func (h *Handlers) GetAudit(c *gin.Context) {
	id := c.Param("id")

	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	if _, err := h.Store.GetCampaign(ctx, id); errors.Is(err, campaign.ErrNotFound) {
		c.JSON(http.StatusNotFound, model.ErrorResp{Error: "campaign not found"})
		return
	}
	entries, err := h.Store.ListAudit(ctx, id)
	if err != nil {
		logx.Campaign(id).Errorw("list_audit_error", "error", err)
		c.JSON(http.StatusInternalServerError, model.ErrorResp{Error: "audit error"})
		return
	}
	if entries == nil {
		entries = []campaign.AuditEntry{}
	}
	c.JSON(http.StatusOK, entries)
}

// RunTask is the push delivery boundary: a scheduler POSTs one stage
// message and reads the code. 2xx settles the delivery, 5xx asks for a
// redelivery. The retry count travels in X-Retry-Count.
func (h *Handlers) RunTask(c *gin.Context) {
	stage, ok := campaign.ParseStage(c.Param("stage"))
	if !ok {
		c.JSON(http.StatusNotFound, model.ErrorResp{Error: "unknown stage " + c.Param("stage")})
		return
	}
	var msg campaign.TaskMessage
	if err := c.ShouldBindJSON(&msg); err != nil {
		c.JSON(http.StatusBadRequest, model.ErrorResp{Error: err.Error()})
		return
	}
	if msg.CampaignID == "" {
		c.JSON(http.StatusBadRequest, model.ErrorResp{Error: "campaign_id is required"})
		return
	}
	msg.Stage = stage
	retries, _ := strconv.Atoi(c.GetHeader("X-Retry-Count"))

	res, err := h.Tasks.Handle(c.Request.Context(), campaign.Delivery{
		Message:     msg,
		RetryCount:  retries,
		ScheduledAt: time.Now().UTC(),
	})
	if err != nil {
		logx.Campaign(msg.CampaignID).Warnw("task_retry_requested", "stage", stage, "retries", retries, "error", err)
		c.JSON(http.StatusServiceUnavailable, model.ErrorResp{Error: err.Error()})
		return
	}
	c.JSON(http.StatusOK, model.TaskResp{
		CampaignID: msg.CampaignID,
		Stage:      string(stage),
		Outcome:    string(res.Outcome),
		Status:     string(res.Status),
		Detail:     res.Detail,
	})
}
