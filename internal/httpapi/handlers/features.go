package handlers

import (
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/parleyhq/parley/internal/common"
	"github.com/parleyhq/parley/internal/features"
	"github.com/parleyhq/parley/internal/httpapi/middleware"
)

type updateFeatureReq struct {
	Enabled *bool `json:"enabled" binding:"required"`
}

// ListFeatures reports every known flag with the caller's stored state.
// Flags the user never touched come back disabled.
func (h *Handler) ListFeatures(c *gin.Context) {
	uid, ok := middleware.UserID(c)
	if !ok {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}

	rows, err := h.Features.ListByUser(c.Request.Context(), uid)
	if err != nil {
		log.Printf("list features failed user=%s err=%v", uid, err)
		common.Fail(c, http.StatusInternalServerError, 50001, "internal error")
		return
	}

	stored := make(map[string]bool, len(rows))
	for _, r := range rows {
		stored[r.Feature] = r.Enabled
	}

	out := make([]gin.H, 0, len(features.All()))
	for _, f := range features.All() {
		out = append(out, gin.H{"feature": string(f), "enabled": stored[string(f)]})
	}
	common.OK(c, gin.H{"features": out})
}

// UpdateFeature flips one flag for the caller.
func (h *Handler) UpdateFeature(c *gin.Context) {
	uid, ok := middleware.UserID(c)
	if !ok {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}

	flag, ok := features.ParseFlag(c.Param("feature"))
	if !ok {
		common.Fail(c, http.StatusBadRequest, 10009, "unknown feature")
		return
	}

	var req updateFeatureReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid request body")
		return
	}

	row, err := h.Features.Upsert(c.Request.Context(), uid, flag, *req.Enabled)
	if err != nil {
		log.Printf("update feature failed user=%s feature=%s err=%v", uid, flag, err)
		common.Fail(c, http.StatusInternalServerError, 50001, "internal error")
		return
	}

	common.OK(c, gin.H{"feature": row.Feature, "enabled": row.Enabled})
}
