package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/openfunk/modetrader/internal/cache"
	"github.com/openfunk/modetrader/internal/settings"
)

// respondError maps subsystem errors onto HTTP status codes. An open
// circuit breaker is a degraded-service condition, never silently worked
// around, so it surfaces as 503.
func respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, cache.ErrCacheUnavailable):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "settings cache unavailable"})
	case errors.Is(err, cache.ErrSettingNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "setting not found"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

// pathMode validates the :mode parameter.
func pathMode(c *gin.Context) (string, bool) {
	mode := c.Param("mode")
	if !settings.IsTradingMode(mode) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown trading mode: " + mode})
		return "", false
	}
	return mode, true
}

// pathGroup validates the :group parameter.
func pathGroup(c *gin.Context) (string, bool) {
	group := c.Param("group")
	if !settings.IsGroupKey(group) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown setting group: " + group})
		return "", false
	}
	return group, true
}

// handleGetHealth returns a simple health check (for load balancers)
func (s *Server) handleGetHealth(c *gin.Context) {
	if !s.client.IsHealthy() {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "degraded",
			"error":  "cache unavailable",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().UTC(),
	})
}

// handleGetStatus returns cache subsystem status
func (s *Server) handleGetStatus(c *gin.Context) {
	stats := s.client.GetStats()

	status := "healthy"
	if !stats.Healthy {
		status = "degraded"
	}

	c.JSON(http.StatusOK, gin.H{
		"status":    status,
		"timestamp": time.Now().UTC(),
		"cache": gin.H{
			"healthy":       stats.Healthy,
			"failure_count": stats.FailureCount,
		},
	})
}

// User settings handlers

func (s *Server) handleGetAllSettings(c *gin.Context) {
	snap, err := s.users.GetAllUserSettings(c.Request.Context(), c.Param("user_id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, snap)
}

func (s *Server) handleLoadSettings(c *gin.Context) {
	userID := c.Param("user_id")
	if err := s.users.LoadUserSettings(c.Request.Context(), userID); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "loaded", "user_id": userID})
}

func (s *Server) handleInvalidateAllSettings(c *gin.Context) {
	userID := c.Param("user_id")
	if err := s.users.InvalidateAllUserSettings(c.Request.Context(), userID); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "invalidated", "user_id": userID})
}

func (s *Server) handleGetEnabledModes(c *gin.Context) {
	modes, err := s.users.GetEnabledModes(c.Request.Context(), c.Param("user_id"))
	if err != nil {
		respondError(c, err)
		return
	}
	if modes == nil {
		modes = []string{}
	}
	c.JSON(http.StatusOK, gin.H{"enabled_modes": modes})
}

func (s *Server) handleGetModeConfig(c *gin.Context) {
	mode, ok := pathMode(c)
	if !ok {
		return
	}
	cfg, err := s.users.GetModeConfig(c.Request.Context(), c.Param("user_id"), mode)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, cfg)
}

func (s *Server) handleInvalidateMode(c *gin.Context) {
	mode, ok := pathMode(c)
	if !ok {
		return
	}
	if err := s.users.InvalidateMode(c.Request.Context(), c.Param("user_id"), mode); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "invalidated", "mode": mode})
}

func (s *Server) handleGetModeGroup(c *gin.Context) {
	mode, ok := pathMode(c)
	if !ok {
		return
	}
	group, ok := pathGroup(c)
	if !ok {
		return
	}

	raw, err := s.users.GetModeGroup(c.Request.Context(), c.Param("user_id"), mode, group)
	if err != nil {
		respondError(c, err)
		return
	}
	c.Data(http.StatusOK, "application/json", raw)
}

func (s *Server) handleUpdateModeGroup(c *gin.Context) {
	mode, ok := pathMode(c)
	if !ok {
		return
	}
	group, ok := pathGroup(c)
	if !ok {
		return
	}

	raw, err := io.ReadAll(c.Request.Body)
	if err != nil || len(raw) == 0 || !json.Valid(raw) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "request body must be a JSON document"})
		return
	}

	if err := s.users.UpdateModeGroup(c.Request.Context(), c.Param("user_id"), mode, group, raw); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "updated", "mode": mode, "group": group})
}

func (s *Server) handleInvalidateModeGroup(c *gin.Context) {
	mode, ok := pathMode(c)
	if !ok {
		return
	}
	group, ok := pathGroup(c)
	if !ok {
		return
	}
	if err := s.users.InvalidateModeGroup(c.Request.Context(), c.Param("user_id"), mode, group); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "invalidated", "mode": mode, "group": group})
}

func (s *Server) handleResetModeGroup(c *gin.Context) {
	mode, ok := pathMode(c)
	if !ok {
		return
	}
	group, ok := pathGroup(c)
	if !ok {
		return
	}
	if err := s.users.ResetModeGroup(c.Request.Context(), c.Param("user_id"), mode, group); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "reset", "mode": mode, "group": group})
}

func (s *Server) handleCompareGroup(c *gin.Context) {
	mode, ok := pathMode(c)
	if !ok {
		return
	}
	group, ok := pathGroup(c)
	if !ok {
		return
	}
	cmp, err := s.admin.CompareUserGroupToDefault(c.Request.Context(), s.users, c.Param("user_id"), mode, group)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, cmp)
}

// Cross-mode settings handlers

func (s *Server) handleGetCircuitBreaker(c *gin.Context) {
	cb, err := s.users.GetCircuitBreaker(c.Request.Context(), c.Param("user_id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, cb)
}

func (s *Server) handleUpdateCircuitBreaker(c *gin.Context) {
	var cb settings.GlobalCircuitBreaker
	if err := c.ShouldBindJSON(&cb); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := s.users.UpdateCircuitBreaker(c.Request.Context(), c.Param("user_id"), &cb); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "updated"})
}

func (s *Server) handleGetLLMSettings(c *gin.Context) {
	llm, err := s.users.GetLLMSettings(c.Request.Context(), c.Param("user_id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, llm)
}

func (s *Server) handleUpdateLLMSettings(c *gin.Context) {
	var llm settings.LLMSettings
	if err := c.ShouldBindJSON(&llm); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := s.users.UpdateLLMSettings(c.Request.Context(), c.Param("user_id"), &llm); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "updated"})
}

func (s *Server) handleGetCapitalAllocation(c *gin.Context) {
	ca, err := s.users.GetCapitalAllocation(c.Request.Context(), c.Param("user_id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, ca)
}

func (s *Server) handleUpdateCapitalAllocation(c *gin.Context) {
	var ca settings.CapitalAllocation
	if err := c.ShouldBindJSON(&ca); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := s.users.UpdateCapitalAllocation(c.Request.Context(), c.Param("user_id"), &ca); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "updated"})
}

func (s *Server) handleGetGlobalTrading(c *gin.Context) {
	gt, err := s.users.GetGlobalTrading(c.Request.Context(), c.Param("user_id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gt)
}

func (s *Server) handleUpdateGlobalTrading(c *gin.Context) {
	var gt settings.GlobalTrading
	if err := c.ShouldBindJSON(&gt); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := s.users.UpdateGlobalTrading(c.Request.Context(), c.Param("user_id"), &gt); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "updated"})
}

// Safety settings handlers

func (s *Server) handleGetSafetySettings(c *gin.Context) {
	mode, ok := pathMode(c)
	if !ok {
		return
	}
	safety, err := s.users.GetSafetySettings(c.Request.Context(), c.Param("user_id"), mode)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, safety)
}

func (s *Server) handleUpdateSafetySettings(c *gin.Context) {
	mode, ok := pathMode(c)
	if !ok {
		return
	}
	var safety settings.SafetySettings
	if err := c.ShouldBindJSON(&safety); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	safety.Mode = mode
	if err := s.users.UpdateSafetySettings(c.Request.Context(), c.Param("user_id"), mode, &safety); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "updated", "mode": mode})
}

func (s *Server) handleInvalidateSafetySettings(c *gin.Context) {
	if err := s.users.InvalidateSafetySettings(c.Request.Context(), c.Param("user_id")); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "invalidated"})
}

// Sequence handlers

func (s *Server) handleIncrementSequence(c *gin.Context) {
	seq, err := s.users.IncrementDailySequence(c.Request.Context(), c.Param("user_id"), c.Param("date"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"sequence": seq})
}

func (s *Server) handleGetSequence(c *gin.Context) {
	seq, err := s.users.GetCurrentSequence(c.Request.Context(), c.Param("user_id"), c.Param("date"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"sequence": seq})
}

func (s *Server) handleSeedDefaults(c *gin.Context) {
	userID := c.Param("user_id")
	if err := s.admin.CopyDefaultsToNewUser(c.Request.Context(), userID); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "seeded", "user_id": userID})
}

// Admin defaults handlers

func (s *Server) handleGetAllAdminDefaults(c *gin.Context) {
	snap, err := s.admin.GetAllAdminDefaults(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, snap)
}

func (s *Server) handleLoadAdminDefaults(c *gin.Context) {
	if err := s.admin.LoadAdminDefaults(c.Request.Context()); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "loaded"})
}

func (s *Server) handleRefreshAdminDefaults(c *gin.Context) {
	refreshed, err := s.admin.CheckAndRefreshIfChanged(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"refreshed": refreshed})
}

func (s *Server) handleInvalidateAdminDefaults(c *gin.Context) {
	if err := s.admin.InvalidateAdminDefaults(c.Request.Context()); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "invalidated"})
}

func (s *Server) handleGetAdminModeConfig(c *gin.Context) {
	mode, ok := pathMode(c)
	if !ok {
		return
	}
	cfg, err := s.admin.GetModeFullConfig(c.Request.Context(), mode)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, cfg)
}

func (s *Server) handleGetAdminDefaultGroup(c *gin.Context) {
	mode, ok := pathMode(c)
	if !ok {
		return
	}
	group, ok := pathGroup(c)
	if !ok {
		return
	}
	raw, err := s.admin.GetAdminDefaultGroup(c.Request.Context(), mode, group)
	if err != nil {
		respondError(c, err)
		return
	}
	c.Data(http.StatusOK, "application/json", raw)
}
