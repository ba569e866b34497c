// Package handlers exposes the consolidation engine over HTTP. Handlers are
// thin: binding, status-code mapping, and delegation to the engine, which
// always returns structured results.
package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/dust-service/dust_service/internal/domain/entities"
	"github.com/dust-service/dust_service/internal/domain/services/consolidation"
	"github.com/dust-service/dust_service/internal/infrastructure/cache"
)

// ConsolidationHandlers handles the consolidation API surface
type ConsolidationHandlers struct {
	engine *consolidation.Engine
	store  cache.Store
	logger *zap.Logger
}

// NewConsolidationHandlers creates the handler set
func NewConsolidationHandlers(engine *consolidation.Engine, store cache.Store, logger *zap.Logger) *ConsolidationHandlers {
	return &ConsolidationHandlers{engine: engine, store: store, logger: logger}
}

// Quote builds and persists a consolidation plan
func (h *ConsolidationHandlers) Quote(c *gin.Context) {
	var req entities.ConsolidationQuoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, err)
		return
	}

	result := h.engine.GetQuote(c.Request.Context(), &req)
	if !result.Success {
		c.JSON(http.StatusUnprocessableEntity, result)
		return
	}
	c.JSON(http.StatusOK, result)
}

// Execute dispatches a previously quoted plan to the worker queue
func (h *ConsolidationHandlers) Execute(c *gin.Context) {
	var req entities.ConsolidationExecuteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, err)
		return
	}

	result := h.engine.Execute(c.Request.Context(), &req)
	if !result.Success {
		c.JSON(http.StatusUnprocessableEntity, result)
		return
	}
	c.JSON(http.StatusOK, result)
}

// Simulate returns a dry-run preview without dispatching anything
func (h *ConsolidationHandlers) Simulate(c *gin.Context) {
	var req entities.ConsolidationQuoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, err)
		return
	}

	result := h.engine.Simulate(c.Request.Context(), &req)
	if !result.Success {
		c.JSON(http.StatusUnprocessableEntity, result)
		return
	}
	c.JSON(http.StatusOK, result)
}

// Status returns the execution status for a consolidation id
func (h *ConsolidationHandlers) Status(c *gin.Context) {
	detail, err := h.engine.GetStatus(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.logger.Error("Failed to load consolidation status", zap.Error(err))
		respondInternalError(c, "failed to load consolidation status")
		return
	}
	if detail == nil {
		respondNotFound(c, "consolidation not found")
		return
	}
	c.JSON(http.StatusOK, detail)
}

// History returns a user's consolidations most-recent-first
func (h *ConsolidationHandlers) History(c *gin.Context) {
	userID := c.Query("user_id")
	if userID == "" {
		respondError(c, http.StatusBadRequest, "INVALID_REQUEST", "user_id query parameter is required", nil)
		return
	}

	limit := intQuery(c, "limit", 20)
	offset := intQuery(c, "offset", 0)

	history, err := h.engine.GetUserHistory(c.Request.Context(), userID, limit, offset)
	if err != nil {
		h.logger.Error("Failed to load consolidation history",
			zap.String("user_id", userID), zap.Error(err))
		respondInternalError(c, "failed to load consolidation history")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"history": history,
		"limit":   limit,
		"offset":  offset,
	})
}

// Plan returns a persisted plan while its TTL lasts
func (h *ConsolidationHandlers) Plan(c *gin.Context) {
	plan, err := h.engine.GetPlan(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.logger.Error("Failed to load plan", zap.Error(err))
		respondInternalError(c, "failed to load plan")
		return
	}
	if plan == nil {
		respondNotFound(c, "plan not found or expired")
		return
	}
	c.JSON(http.StatusOK, plan)
}

// JobData returns the queued job descriptor for a consolidation, parked in
// the cache for the external execution worker
func (h *ConsolidationHandlers) JobData(c *gin.Context) {
	job, err := h.engine.GetJobData(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.logger.Error("Failed to load job data", zap.Error(err))
		respondInternalError(c, "failed to load job data")
		return
	}
	if job == nil {
		respondNotFound(c, "job not found")
		return
	}
	c.JSON(http.StatusOK, job)
}

// Health reports liveness and cache connectivity
func (h *ConsolidationHandlers) Health(c *gin.Context) {
	status := "healthy"
	code := http.StatusOK
	if err := h.store.Ping(c.Request.Context()); err != nil {
		status = "degraded"
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, gin.H{
		"status":    status,
		"timestamp": time.Now().UTC(),
	})
}
