// Package handlers exposes the engine status HTTP API.
package handlers

import (
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"

	"copyvault/contracts"
	"copyvault/guard"
	"copyvault/middleware"
	"copyvault/oracle"
	"copyvault/storage"
)

// Handler handles HTTP requests
type Handler struct {
	gateway *contracts.Gateway
	guard   *guard.Guard
	oracle  *oracle.Oracle
	metrics *oracle.MetricsStore // optional
	history storage.HistoryStore // optional
}

// NewHandler creates a new handler. Metrics and history may be nil when the
// corresponding backends are disabled.
func NewHandler(gw *contracts.Gateway, g *guard.Guard, o *oracle.Oracle, m *oracle.MetricsStore, h storage.HistoryStore) *Handler {
	return &Handler{
		gateway: gw,
		guard:   g,
		oracle:  o,
		metrics: m,
		history: h,
	}
}

// Register wires all routes onto the router.
func (h *Handler) Register(r *gin.Engine) {
	r.GET("/health", h.Health)

	api := r.Group("/api", middleware.BasicAuth(), middleware.ValidateQueryParams())
	api.GET("/stats", h.GetStats)
	api.GET("/agents/:address", middleware.ValidateAddressParam(), h.GetAgent)
	api.GET("/positions/:id", h.GetPosition)
	api.GET("/disputes/:id", h.GetDispute)
	api.GET("/oracle/metrics", h.GetOracleMetrics)
	api.GET("/history/cycles", h.ListCycles)
	api.GET("/history/resolutions", h.ListResolutions)
	api.GET("/history/admissions", h.ListAdmissions)
	api.POST("/admission/check", h.CheckAdmission)
}

// Health reports liveness
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// GetStats returns vault-wide totals
func (h *Handler) GetStats(c *gin.Context) {
	ctx := c.Request.Context()

	stats, err := h.gateway.GetVaultStats(ctx)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": "failed to load vault stats"})
		return
	}
	disputes, err := h.gateway.DisputeCount(ctx)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": "failed to load dispute count"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"total_positions":  stats.TotalPositions,
		"active_positions": stats.ActivePositions,
		"total_deposits":   stats.TotalDeposits.String(),
		"disputes":         disputes,
	})
}

// GetAgent returns the on-chain agent record with its reputation tier,
// copy limits and live admission stats
func (h *Handler) GetAgent(c *gin.Context) {
	ctx := c.Request.Context()
	addr := common.HexToAddress(c.GetString("validatedAddress"))

	agent, err := h.gateway.GetAgent(ctx, addr)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": "failed to load agent"})
		return
	}

	tier, err := h.gateway.GetAgentTier(ctx, addr)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": "failed to load reputation tier"})
		return
	}
	limits, err := h.gateway.GetCopyLimits(ctx, tier.Tier)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": "failed to load copy limits"})
		return
	}

	resp := gin.H{
		"agent":  agent,
		"tier":   tier.Tier.String(),
		"limits": limits,
	}
	if h.guard != nil {
		resp["admission"] = h.guard.GetAgentStats(addr)
	}
	c.JSON(http.StatusOK, resp)
}

// GetPosition returns a single position
func (h *Handler) GetPosition(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	pos, err := h.gateway.GetPosition(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": "failed to load position"})
		return
	}
	c.JSON(http.StatusOK, pos)
}

// GetDispute returns a dispute together with the oracle's current verdict
func (h *Handler) GetDispute(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()

	dispute, err := h.gateway.GetDispute(ctx, id)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": "failed to load dispute"})
		return
	}

	resp := gin.H{"dispute": dispute}
	if h.oracle != nil {
		if ev, err := h.oracle.EvaluateDispute(ctx, id); err == nil {
			resp["evaluation"] = ev
		}
	}
	c.JSON(http.StatusOK, resp)
}

// GetOracleMetrics returns the latest reconciliation metrics snapshot
func (h *Handler) GetOracleMetrics(c *gin.Context) {
	if h.metrics == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "metrics backend disabled"})
		return
	}
	m, err := h.metrics.GetMetrics(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": "failed to load metrics"})
		return
	}
	c.JSON(http.StatusOK, m)
}

// ListCycles returns recent reconciliation cycles
func (h *Handler) ListCycles(c *gin.Context) {
	if h.history == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "history backend disabled"})
		return
	}
	cycles, err := h.history.ListCycles(c.Request.Context(), queryLimit(c))
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": "failed to load cycles"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"cycles": cycles, "count": len(cycles)})
}

// ListResolutions returns recent dispute verdicts
func (h *Handler) ListResolutions(c *gin.Context) {
	if h.history == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "history backend disabled"})
		return
	}
	recs, err := h.history.ListResolutions(c.Request.Context(), queryLimit(c))
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": "failed to load resolutions"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"resolutions": recs, "count": len(recs)})
}

// ListAdmissions returns recent admission decisions, optionally per agent
func (h *Handler) ListAdmissions(c *gin.Context) {
	if h.history == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "history backend disabled"})
		return
	}
	agent := c.Query("agent")
	if agent != "" && !middleware.IsValidEthAddress(agent) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid agent address"})
		return
	}
	recs, err := h.history.ListAdmissions(c.Request.Context(), agent, queryLimit(c))
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": "failed to load admissions"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"admissions": recs, "count": len(recs)})
}

type admissionRequest struct {
	Agent    string  `json:"agent" binding:"required"`
	Copier   string  `json:"copier" binding:"required"`
	ValueUSD float64 `json:"value_usd" binding:"required"`
	Leverage uint64  `json:"leverage"`
}

// CheckAdmission runs a copy-trade through the admission guard. The decision
// lands in the admission log but does not mutate the guard's exposure state
func (h *Handler) CheckAdmission(c *gin.Context) {
	if h.guard == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "admission guard disabled"})
		return
	}

	var req admissionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if !middleware.IsValidEthAddress(req.Agent) || !middleware.IsValidEthAddress(req.Copier) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid agent or copier address"})
		return
	}

	decision, err := h.guard.CheckCopyTrade(c.Request.Context(),
		common.HexToAddress(req.Agent), common.HexToAddress(req.Copier),
		req.ValueUSD, req.Leverage)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": "admission check failed"})
		return
	}

	if h.history != nil {
		rec := storage.AdmissionRecord{
			Agent:    strings.ToLower(req.Agent),
			Copier:   strings.ToLower(req.Copier),
			ValueUSD: req.ValueUSD,
			Allowed:  decision.Allowed,
			Reason:   decision.Reason,
			Tier:     decision.Tier.String(),
		}
		if err := h.history.SaveAdmission(c.Request.Context(), rec); err != nil {
			log.Printf("[API] Failed to persist admission decision: %v", err)
		}
	}
	c.JSON(http.StatusOK, decision)
}

func parseID(c *gin.Context) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return 0, false
	}
	return id, true
}

func queryLimit(c *gin.Context) int {
	if s := c.Query("limit"); s != "" {
		if n, err := strconv.Atoi(s); err == nil {
			return n
		}
	}
	return 0
}
