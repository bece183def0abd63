package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/parleyhq/parley/internal/common"
)

// ListModels serves the model catalogue, optionally filtered by provider.
func (h *Handler) ListModels(c *gin.Context) {
	models, err := h.Catalog.ListActive(c.Request.Context(), c.Query("provider"))
	if err != nil {
		common.Fail(c, http.StatusInternalServerError, 50002, "failed to list models")
		return
	}
	common.OK(c, gin.H{"models": models})
}

func (h *Handler) GetModel(c *gin.Context) {
	m, err := h.Catalog.Get(c.Request.Context(), c.Param("model_id"))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			common.Fail(c, http.StatusNotFound, 40405, "model not found")
			return
		}
		common.Fail(c, http.StatusInternalServerError, 50001, "internal error")
		return
	}
	common.OK(c, m)
}
