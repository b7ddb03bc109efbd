package api

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/wayfarelabs/faregate/internal/catalog"
	"github.com/wayfarelabs/faregate/internal/gateway"
	"github.com/wayfarelabs/faregate/internal/llm"
	"github.com/wayfarelabs/faregate/internal/settings"
)

// Handlers provides the REST endpoint handlers.
type Handlers struct {
	gw      *gateway.Gateway
	version string
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(gw *gateway.Gateway, version string) *Handlers {
	return &Handlers{gw: gw, version: version}
}

// Health returns the service health status.
func (h *Handlers) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"service": "faregate",
		"version": h.version,
		"uptime":  h.gw.Uptime().Round(time.Second).String(),
		"models":  h.gw.Registry().Len(),
	})
}

// ChatRequest is the inbound completion contract. Role picks the model
// defaults; everything else is optional.
type ChatRequest struct {
	Role        string        `json:"role" binding:"required"`
	TenantID    string        `json:"tenantId"`
	Messages    []llm.Message `json:"messages"`
	Model       string        `json:"model,omitempty"`
	MaxTokens   int           `json:"maxTokens,omitempty"`
	Temperature *float64      `json:"temperature,omitempty"`
	JSONMode    bool          `json:"jsonMode,omitempty"`
}

// Chat runs one completion through the gateway. Upstream failures come
// back as 502 with the gateway's error envelope; the caller's own
// mistakes are 400.
func (h *Handlers) Chat(c *gin.Context) {
	var req ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if len(req.Messages) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "messages: at least one message is required"})
		return
	}

	reply := h.gw.Complete(c.Request.Context(), gateway.Request{
		Role:        req.Role,
		TenantID:    req.TenantID,
		Messages:    req.Messages,
		Model:       req.Model,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
		JSONMode:    req.JSONMode,
	})
	if !reply.Success {
		c.JSON(http.StatusBadGateway, reply)
		return
	}
	c.JSON(http.StatusOK, reply)
}

// ListModels returns the catalog, optionally filtered.
// Query params: provider (exact), capability (vision|functionCalling|jsonMode|streaming).
func (h *Handlers) ListModels(c *gin.Context) {
	reg := h.gw.Registry()

	var list []catalog.ModelDefinition
	switch {
	case c.Query("provider") != "":
		list = reg.ListByProvider(catalog.Provider(c.Query("provider")))
	case c.Query("capability") != "":
		list = reg.ListWithCapability(catalog.Capability(c.Query("capability")))
	default:
		list = reg.All()
	}

	c.JSON(http.StatusOK, gin.H{"count": len(list), "data": list})
}

// CheapestModel returns the cheapest model for a task tier.
// Query params: task (simple|balanced|complex), default simple.
func (h *Handlers) CheapestModel(c *gin.Context) {
	task := catalog.TaskType(c.DefaultQuery("task", string(catalog.TaskSimple)))
	c.JSON(http.StatusOK, h.gw.Registry().Cheapest(task))
}

// UsageSummary returns aggregated spend, overall or for one tenant.
// Query params: tenant.
func (h *Handlers) UsageSummary(c *gin.Context) {
	if tenant := c.Query("tenant"); tenant != "" {
		c.JSON(http.StatusOK, h.gw.Tracker().SummaryForTenant(tenant))
		return
	}
	c.JSON(http.StatusOK, h.gw.Tracker().Summary())
}

// UsageEntries returns the most recent ledger entries.
// Query params: tenant, limit (default 50, max 1000).
func (h *Handlers) UsageEntries(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if err != nil || limit < 1 || limit > 1000 {
		limit = 50
	}

	entries := h.gw.Tracker().Entries()
	if tenant := c.Query("tenant"); tenant != "" {
		filtered := entries[:0:0]
		for _, e := range entries {
			if e.TenantID == tenant {
				filtered = append(filtered, e)
			}
		}
		entries = filtered
	}
	if len(entries) > limit {
		entries = entries[len(entries)-limit:]
	}

	c.JSON(http.StatusOK, gin.H{"count": len(entries), "data": entries})
}

// GetTenantSettings returns one tenant's stored overrides.
func (h *Handlers) GetTenantSettings(c *gin.Context) {
	ts, err := h.gw.TenantSettings(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if ts == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no settings stored for tenant"})
		return
	}
	c.JSON(http.StatusOK, ts)
}

// PutTenantSettings validates and stores one tenant's overrides. All
// violations are reported together so a client can fix them in one
// round trip.
func (h *Handlers) PutTenantSettings(c *gin.Context) {
	var ts settings.TenantSettings
	if err := c.ShouldBindJSON(&ts); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	violations, err := h.gw.SaveTenantSettings(c.Request.Context(), c.Param("id"), &ts)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if len(violations) > 0 {
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"error":      "settings validation failed",
			"violations": violations,
		})
		return
	}

	c.JSON(http.StatusOK, &ts)
}

// DeleteTenantSettings removes one tenant's overrides.
func (h *Handlers) DeleteTenantSettings(c *gin.Context) {
	if err := h.gw.DeleteTenantSettings(c.Request.Context(), c.Param("id")); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}

// FallbackEstimate reports the fallback chain for a model and the
// worst-case cost of walking it.
// Query params: model (required), vision, inputTokens, outputTokens.
func (h *Handlers) FallbackEstimate(c *gin.Context) {
	model := c.Query("model")
	if model == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "model query parameter is required"})
		return
	}
	if _, ok := h.gw.Registry().Get(model); !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": fmt.Sprintf("unknown model %q", model)})
		return
	}

	vision, _ := strconv.ParseBool(c.DefaultQuery("vision", "false"))
	input, err := strconv.Atoi(c.DefaultQuery("inputTokens", "1000"))
	if err != nil || input < 0 {
		input = 1000
	}
	output, err := strconv.Atoi(c.DefaultQuery("outputTokens", "500"))
	if err != nil || output < 0 {
		output = 500
	}

	c.JSON(http.StatusOK, h.gw.EstimateFallback(model, vision, input, output))
}
