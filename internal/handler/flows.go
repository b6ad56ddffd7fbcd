package handler

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"smartflow/internal/flow"
	"smartflow/internal/service"
)

const dataSourceHeader = "X-Data-Source"

type FlowsHandler struct {
	Query   *service.FlowQueryService
	Refresh *service.RefreshService
	Stream  http.Handler
	Logger  *zap.Logger
}

func (h *FlowsHandler) Register(r *gin.Engine) {
	group := r.Group("/api/flows")
	group.GET("", h.listFlows)
	group.GET("/timeframes", h.listTimeframes)
	group.POST("/refresh", h.refresh)
	group.GET("/runs", h.listRuns)
	if h.Stream != nil {
		group.GET("/stream", gin.WrapH(h.Stream))
	}
}

// @Summary List token flows for a timeframe
// @Tags flows
// @Param timeframe query string false "timeframe label (default 5min)"
// @Param limit query int false "max rows (capped at 50)"
// @Success 200 {object} apiResponse
// @Failure 400 {object} apiResponse
// @Failure 502 {object} apiResponse
// @Router /api/flows [get]
func (h *FlowsHandler) listFlows(c *gin.Context) {
	if h.Query == nil || h.Query.Repo == nil {
		Error(c, http.StatusInternalServerError, "service unavailable", nil)
		return
	}
	page, err := h.Query.List(c.Request.Context(), service.FlowQuery{
		Timeframe: c.Query("timeframe"),
		Limit:     intQuery(c, "limit", 0),
	})
	if err != nil {
		if errors.Is(err, service.ErrUnknownTimeframe) {
			Error(c, http.StatusBadRequest, err.Error(), map[string]any{"timeframes": h.Query.Timeframes().Labels()})
			return
		}
		if h.Logger != nil {
			h.Logger.Warn("list flows failed", zap.Error(err))
		}
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	if page.Source == service.SourceFallback {
		c.Header(dataSourceHeader, service.SourceFallback)
	}
	meta := listMeta(page.Timeframe, page.Source, len(page.Items))
	if page.RefreshedAt != nil {
		meta["last_refreshed_at"] = page.RefreshedAt.Format(time.RFC3339)
	}
	Ok(c, page.Items, meta)
}

type timeframesResponse struct {
	Version    string               `json:"version"`
	Timeframes []flow.TimeframeSpec `json:"timeframes"`
	Rows       map[string]int64     `json:"rows,omitempty"`
}

// @Summary List timeframe buckets, their source windows and stored row counts
// @Tags flows
// @Success 200 {object} apiResponse
// @Router /api/flows/timeframes [get]
func (h *FlowsHandler) listTimeframes(c *gin.Context) {
	resp := timeframesResponse{Version: flow.MappingVersion, Timeframes: flow.DefaultMapping}
	if h.Query != nil {
		resp.Timeframes = h.Query.Timeframes()
	}
	if h.Query != nil && h.Query.Repo != nil {
		rows, err := h.Query.RowCounts(c.Request.Context())
		if err != nil {
			if h.Logger != nil {
				h.Logger.Warn("count flows failed", zap.Error(err))
			}
		} else {
			resp.Rows = rows
		}
	}
	Ok(c, resp, nil)
}

// @Summary Trigger a refresh run
// @Description Joins the in-flight run when one is already executing.
// @Tags flows
// @Success 200 {object} apiResponse
// @Failure 502 {object} apiResponse
// @Router /api/flows/refresh [post]
func (h *FlowsHandler) refresh(c *gin.Context) {
	if h.Refresh == nil {
		Error(c, http.StatusInternalServerError, "service unavailable", nil)
		return
	}
	result, err := h.Refresh.RunOnce(c.Request.Context(), service.TriggerManual)
	if err != nil {
		if h.Logger != nil {
			h.Logger.Warn("manual refresh failed", zap.String("run_id", result.RunID), zap.Error(err))
		}
		Error(c, http.StatusBadGateway, err.Error(), map[string]any{"run_id": result.RunID, "status": result.Status})
		return
	}
	Ok(c, result, nil)
}

// @Summary List refresh runs
// @Tags flows
// @Param limit query int false "limit"
// @Param status query string false "running|succeeded|partial|failed|skipped"
// @Success 200 {object} apiResponse
// @Router /api/flows/runs [get]
func (h *FlowsHandler) listRuns(c *gin.Context) {
	if h.Query == nil || h.Query.Repo == nil {
		Error(c, http.StatusInternalServerError, "service unavailable", nil)
		return
	}
	limit := intQuery(c, "limit", 20)
	runs, err := h.Query.ListRuns(c.Request.Context(), limit, c.Query("status"))
	if err != nil {
		if h.Logger != nil {
			h.Logger.Warn("list refresh runs failed", zap.Error(err))
		}
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, runs, map[string]any{"limit": limit, "count": len(runs)})
}

func intQuery(c *gin.Context, key string, def int) int {
	if val := strings.TrimSpace(c.Query(key)); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return def
}
