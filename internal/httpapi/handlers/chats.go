package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/parleyhq/parley/internal/ai"
	"github.com/parleyhq/parley/internal/chat"
	"github.com/parleyhq/parley/internal/common"
	"github.com/parleyhq/parley/internal/httpapi/middleware"
)

type createChatReq struct {
	Title         string `json:"title" binding:"required,max=255"`
	ModelProvider string `json:"model_provider" binding:"required"`
	ModelID       string `json:"model_id" binding:"required"`
}

func (h *Handler) CreateChat(c *gin.Context) {
	uid, ok := middleware.UserID(c)
	if !ok {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}

	var req createChatReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid request body")
		return
	}
	if _, err := ai.ParseVendor(req.ModelProvider); err != nil {
		common.Fail(c, http.StatusBadRequest, 10005, "unknown model provider")
		return
	}

	ch := &chat.Chat{
		UserID:        uid,
		Title:         req.Title,
		ModelProvider: req.ModelProvider,
		ModelID:       req.ModelID,
	}
	if err := h.ChatSvc.CreateChat(c.Request.Context(), ch); err != nil {
		common.Fail(c, http.StatusInternalServerError, 50001, "failed to create chat")
		return
	}

	common.OK(c, ch)
}

func (h *Handler) ListChats(c *gin.Context) {
	uid, ok := middleware.UserID(c)
	if !ok {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))

	chats, total, err := h.ChatSvc.ListChats(c.Request.Context(), uid, page, pageSize)
	if err != nil {
		common.Fail(c, http.StatusInternalServerError, 50002, "failed to list chats")
		return
	}

	common.OK(c, gin.H{
		"chats": chats,
		"total": total,
	})
}

func (h *Handler) GetChat(c *gin.Context) {
	uid, ok := middleware.UserID(c)
	if !ok {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}

	ch, err := h.ChatSvc.GetChat(c.Request.Context(), c.Param("chat_id"), uid)
	if err != nil {
		if errors.Is(err, chat.ErrChatNotFound) {
			common.Fail(c, http.StatusNotFound, 40404, "chat not found")
			return
		}
		common.Fail(c, http.StatusInternalServerError, 50001, "internal error")
		return
	}

	common.OK(c, ch)
}

type updateChatReq struct {
	Title *string `json:"title" binding:"omitempty,max=255"`
}

func (h *Handler) UpdateChat(c *gin.Context) {
	uid, ok := middleware.UserID(c)
	if !ok {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}

	var req updateChatReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid request body")
		return
	}
	if req.Title == nil {
		common.Fail(c, http.StatusBadRequest, 10006, "nothing to update")
		return
	}

	ch, err := h.ChatSvc.UpdateChat(c.Request.Context(), c.Param("chat_id"), uid,
		map[string]any{"title": *req.Title})
	if err != nil {
		if errors.Is(err, chat.ErrChatNotFound) {
			common.Fail(c, http.StatusNotFound, 40404, "chat not found")
			return
		}
		common.Fail(c, http.StatusInternalServerError, 50001, "internal error")
		return
	}

	common.OK(c, ch)
}

func (h *Handler) DeleteChat(c *gin.Context) {
	uid, ok := middleware.UserID(c)
	if !ok {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}

	err := h.ChatSvc.DeleteChat(c.Request.Context(), c.Param("chat_id"), uid)
	if err != nil {
		if errors.Is(err, chat.ErrChatNotFound) {
			common.Fail(c, http.StatusNotFound, 40404, "chat not found")
			return
		}
		common.Fail(c, http.StatusInternalServerError, 50001, "internal error")
		return
	}

	common.OK(c, gin.H{"deleted": true})
}

func (h *Handler) ListMessages(c *gin.Context) {
	uid, ok := middleware.UserID(c)
	if !ok {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}

	msgs, err := h.ChatSvc.ListMessages(c.Request.Context(), c.Param("chat_id"), uid)
	if err != nil {
		if errors.Is(err, chat.ErrChatNotFound) {
			common.Fail(c, http.StatusNotFound, 40404, "chat not found")
			return
		}
		common.Fail(c, http.StatusInternalServerError, 50002, "failed to list messages")
		return
	}

	common.OK(c, gin.H{"messages": msgs})
}

type updateMessageReq struct {
	Content string `json:"content" binding:"required"`
}

func (h *Handler) UpdateMessage(c *gin.Context) {
	uid, ok := middleware.UserID(c)
	if !ok {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}

	var req updateMessageReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid request body")
		return
	}

	m, err := h.ChatSvc.UpdateMessageContent(c.Request.Context(),
		c.Param("message_id"), c.Param("chat_id"), uid, req.Content)
	if err != nil {
		if errors.Is(err, chat.ErrChatNotFound) {
			common.Fail(c, http.StatusNotFound, 40404, "not found")
			return
		}
		common.Fail(c, http.StatusInternalServerError, 50001, "internal error")
		return
	}

	common.OK(c, m)
}

func (h *Handler) DeleteMessage(c *gin.Context) {
	uid, ok := middleware.UserID(c)
	if !ok {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}

	err := h.ChatSvc.DeleteMessage(c.Request.Context(),
		c.Param("message_id"), c.Param("chat_id"), uid)
	if err != nil {
		if errors.Is(err, chat.ErrChatNotFound) {
			common.Fail(c, http.StatusNotFound, 40404, "not found")
			return
		}
		common.Fail(c, http.StatusInternalServerError, 50001, "internal error")
		return
	}

	common.OK(c, gin.H{"deleted": true})
}

func (h *Handler) ClearMessages(c *gin.Context) {
	uid, ok := middleware.UserID(c)
	if !ok {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}

	err := h.ChatSvc.ClearMessages(c.Request.Context(), c.Param("chat_id"), uid)
	if err != nil {
		if errors.Is(err, chat.ErrChatNotFound) {
			common.Fail(c, http.StatusNotFound, 40404, "chat not found")
			return
		}
		common.Fail(c, http.StatusInternalServerError, 50001, "internal error")
		return
	}

	common.OK(c, gin.H{"cleared": true})
}
