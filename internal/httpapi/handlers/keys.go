package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/parleyhq/parley/internal/ai"
	"github.com/parleyhq/parley/internal/common"
	"github.com/parleyhq/parley/internal/httpapi/middleware"
	"github.com/parleyhq/parley/internal/keys"
)

type createKeyReq struct {
	Provider  string `json:"provider" binding:"required"`
	APIKey    string `json:"api_key" binding:"required"`
	IsDefault bool   `json:"is_default"`
}

// CreateKey stores a provider credential sealed at rest. The plaintext
// never appears in any response.
func (h *Handler) CreateKey(c *gin.Context) {
	uid, ok := middleware.UserID(c)
	if !ok {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}

	var req createKeyReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid request body")
		return
	}
	if _, err := ai.ParseVendor(req.Provider); err != nil {
		common.Fail(c, http.StatusBadRequest, 10005, "unknown provider")
		return
	}

	sealed, err := h.Sealer.Seal(req.APIKey)
	if err != nil {
		common.Fail(c, http.StatusInternalServerError, 50001, "internal error")
		return
	}

	k := &keys.UserAPIKey{
		UserID:       uid,
		Provider:     req.Provider,
		EncryptedKey: sealed,
		IsDefault:    false,
	}
	if err := h.Keys.Create(c.Request.Context(), k); err != nil {
		common.Fail(c, http.StatusInternalServerError, 50001, "failed to store key")
		return
	}

	if req.IsDefault {
		if err := h.Keys.SetDefault(c.Request.Context(), k.ID, uid); err != nil {
			common.Fail(c, http.StatusInternalServerError, 50001, "failed to set default")
			return
		}
		k.IsDefault = true
	}

	common.OK(c, k)
}

func (h *Handler) ListKeys(c *gin.Context) {
	uid, ok := middleware.UserID(c)
	if !ok {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}

	list, err := h.Keys.ListByUser(c.Request.Context(), uid)
	if err != nil {
		common.Fail(c, http.StatusInternalServerError, 50002, "failed to list keys")
		return
	}

	common.OK(c, gin.H{"keys": list})
}

func (h *Handler) DeleteKey(c *gin.Context) {
	uid, ok := middleware.UserID(c)
	if !ok {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}

	err := h.Keys.Delete(c.Request.Context(), c.Param("key_id"), uid)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			common.Fail(c, http.StatusNotFound, 40403, "key not found")
			return
		}
		common.Fail(c, http.StatusInternalServerError, 50001, "internal error")
		return
	}

	common.OK(c, gin.H{"deleted": true})
}

// SetDefaultKey atomically makes this key the provider default: inside one
// transaction every other key of the same (user, provider) is demoted.
func (h *Handler) SetDefaultKey(c *gin.Context) {
	uid, ok := middleware.UserID(c)
	if !ok {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}

	err := h.Keys.SetDefault(c.Request.Context(), c.Param("key_id"), uid)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			common.Fail(c, http.StatusNotFound, 40403, "key not found")
			return
		}
		common.Fail(c, http.StatusInternalServerError, 50001, "internal error")
		return
	}

	common.OK(c, gin.H{"default": true})
}
