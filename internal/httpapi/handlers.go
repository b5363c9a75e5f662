package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"voiceagent-platform/internal/agentconfig"
	"voiceagent-platform/internal/apperr"
	"voiceagent-platform/internal/auth"
	"voiceagent-platform/internal/calls"
	"voiceagent-platform/internal/slots"
	"voiceagent-platform/pkg/logger"

	"github.com/gin-gonic/gin"
)

type AgentSyncer interface {
	Sync(ctx context.Context, tenantID string, role agentconfig.Role, upd agentconfig.Update) (agentconfig.SyncResult, error)
}

type ClaimManager interface {
	List(ctx context.Context, tenantID string, from, to time.Time) ([]slots.SlotClaim, error)
	Release(ctx context.Context, tenantID, claimID string) (slots.SlotClaim, error)
}

type CallReader interface {
	Get(ctx context.Context, tenantID, providerCallID string) (calls.Call, error)
}

// Handlers groups the dashboard-facing HTTP handlers.
// Keep these thin: parse/validate input, call internal services, return JSON.
// Every handler operates on the tenant carried by the caller's token.
type Handlers struct {
	Agents AgentSyncer
	Claims ClaimManager
	Calls  CallReader
}

// --- Agents ---

type syncAgentRequest struct {
	SystemPrompt  string `json:"system_prompt"`
	VoiceSelector string `json:"voice_selector"`
}

// SyncAgent pushes the tenant's prompt and voice to the provider, then mirrors it locally.
func (h Handlers) SyncAgent(c *gin.Context) {
	if h.Agents == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "agent sync not configured"})
		return
	}
	tenantID, ok := tenantFrom(c)
	if !ok {
		return
	}
	role := agentconfig.Role(c.Param("role"))
	if !role.Valid() {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "role must be inbound or outbound"})
		return
	}
	var req syncAgentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}

	res, err := h.Agents.Sync(c.Request.Context(), tenantID, role, agentconfig.Update{
		SystemPrompt:  req.SystemPrompt,
		VoiceSelector: req.VoiceSelector,
	})
	if err != nil {
		var se *agentconfig.SyncError
		if errors.As(err, &se) {
			status := http.StatusInternalServerError
			switch {
			case errors.Is(err, agentconfig.ErrInvalidUpdate):
				status = http.StatusBadRequest
			case errors.Is(err, agentconfig.ErrConfigNotFound):
				status = http.StatusNotFound
			case errors.Is(err, agentconfig.ErrInconsistentConfig):
				status = http.StatusConflict
			case apperr.IsTransient(err):
				status = http.StatusServiceUnavailable
			case se.Phase == agentconfig.PhaseExternalWrite:
				status = http.StatusBadGateway
			}
			logger.FromGin(c).WarnContext(c.Request.Context(), "agent sync failed", "phase", se.Phase, "err", err)
			c.AbortWithStatusJSON(status, gin.H{
				"error":            se.Err.Error(),
				"phase":            se.Phase,
				"external_mutated": se.ExternalMutated,
				"local_mutated":    se.LocalMutated,
				"retry_safe":       se.RetrySafe(),
			})
			return
		}
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// --- Claims ---

// ListClaims returns committed claims whose start lies in [from, to).
// Both bounds are RFC 3339; the default window is the next 7 days.
func (h Handlers) ListClaims(c *gin.Context) {
	if h.Claims == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "claims not configured"})
		return
	}
	tenantID, ok := tenantFrom(c)
	if !ok {
		return
	}
	from := time.Now().UTC()
	to := from.Add(7 * 24 * time.Hour)
	var err error
	if v := c.Query("from"); v != "" {
		if from, err = time.Parse(time.RFC3339, v); err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "from must be RFC 3339"})
			return
		}
	}
	if v := c.Query("to"); v != "" {
		if to, err = time.Parse(time.RFC3339, v); err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "to must be RFC 3339"})
			return
		}
	}

	claims, err := h.Claims.List(c.Request.Context(), tenantID, from, to)
	if err != nil {
		writeError(c, err)
		return
	}
	if claims == nil {
		claims = []slots.SlotClaim{}
	}
	c.JSON(http.StatusOK, gin.H{"claims": claims})
}

// CancelClaim frees the claim's instant for rebooking.
func (h Handlers) CancelClaim(c *gin.Context) {
	if h.Claims == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "claims not configured"})
		return
	}
	tenantID, ok := tenantFrom(c)
	if !ok {
		return
	}
	claim, err := h.Claims.Release(c.Request.Context(), tenantID, c.Param("claim_id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, claim)
}

// --- Calls ---

func (h Handlers) GetCall(c *gin.Context) {
	if h.Calls == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "calls not configured"})
		return
	}
	tenantID, ok := tenantFrom(c)
	if !ok {
		return
	}
	call, err := h.Calls.Get(c.Request.Context(), tenantID, c.Param("call_id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, call)
}

func tenantFrom(c *gin.Context) (string, bool) {
	tenantID, err := auth.TenantID(c.Request.Context())
	if err != nil || tenantID == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "tenant_id required"})
		return "", false
	}
	return tenantID, true
}

// writeError maps domain errors to status codes at the edge.
func writeError(c *gin.Context, err error) {
	var ve *apperr.ValidationError
	switch {
	case errors.As(err, &ve):
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": ve.Error()})
	case errors.Is(err, slots.ErrClaimNotFound), errors.Is(err, calls.ErrNotFound):
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "not found"})
	case apperr.IsTransient(err):
		logger.FromGin(c).ErrorContext(c.Request.Context(), "request failed", "err", err)
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "temporarily unavailable"})
	default:
		_ = c.Error(err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
