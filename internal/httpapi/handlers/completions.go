package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/parleyhq/parley/internal/ai"
	"github.com/parleyhq/parley/internal/chat"
	"github.com/parleyhq/parley/internal/common"
	"github.com/parleyhq/parley/internal/httpapi/middleware"
	"github.com/parleyhq/parley/internal/keys"
)

type completionReq struct {
	Message string `json:"message" binding:"required"`
	// provider/model default to the chat's own pair when absent
	ModelProvider string   `json:"model_provider"`
	ModelID       string   `json:"model_id"`
	Temperature   *float32 `json:"temperature" binding:"omitempty,gte=0,lte=2"`
	MaxTokens     *int     `json:"max_tokens" binding:"omitempty,gt=0"`
}

func (r *completionReq) target(provider, model string) (string, string) {
	if r.ModelProvider != "" {
		provider = r.ModelProvider
	}
	if r.ModelID != "" {
		model = r.ModelID
	}
	return provider, model
}

// completionError maps orchestrator errors onto the response envelope.
// Vendor-side failures surface as 502 so clients can tell them apart from
// our own.
func completionError(c *gin.Context, err error) {
	var pe *ai.ProviderError
	switch {
	case errors.Is(err, chat.ErrChatNotFound):
		common.Fail(c, http.StatusNotFound, 40404, "chat not found")
	case errors.Is(err, ai.ErrUnknownVendor):
		common.Fail(c, http.StatusBadRequest, 10005, "unknown model provider")
	case errors.Is(err, keys.ErrNoCredential):
		common.Fail(c, http.StatusBadRequest, 10007, "no default api key for provider")
	case errors.As(err, &pe):
		common.Fail(c, http.StatusBadGateway, 50201,
			fmt.Sprintf("provider %s error (status %d)", pe.Vendor, pe.Status))
	default:
		log.Printf("completion failed: %v", err)
		common.Fail(c, http.StatusInternalServerError, 50001, "internal error")
	}
}

// Complete runs one synchronous exchange against the chat's configured
// provider and model.
func (h *Handler) Complete(c *gin.Context) {
	uid, ok := middleware.UserID(c)
	if !ok {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}

	var req completionReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid request body")
		return
	}

	ch, err := h.ChatSvc.GetChat(c.Request.Context(), c.Param("chat_id"), uid)
	if err != nil {
		completionError(c, err)
		return
	}

	provider, model := req.target(ch.ModelProvider, ch.ModelID)
	resp, assistantID, err := h.ChatSvc.Complete(c.Request.Context(), chat.CompletionRequest{
		ChatID:        ch.ID,
		UserID:        uid,
		Message:       req.Message,
		ModelProvider: provider,
		ModelID:       model,
		Temperature:   req.Temperature,
		MaxTokens:     req.MaxTokens,
	})
	if err != nil {
		completionError(c, err)
		return
	}

	common.OK(c, gin.H{
		"chat_id":       ch.ID,
		"message_id":    assistantID,
		"content":       resp.Content,
		"model":         resp.Model,
		"tokens_used":   resp.TokensUsed,
		"finish_reason": resp.FinishReason,
	})
}

// CompleteStream is the SSE variant: chunk events while the vendor streams,
// then one done event after both turns are stored.
func (h *Handler) CompleteStream(c *gin.Context) {
	uid, ok := middleware.UserID(c)
	if !ok {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}

	var req completionReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid request body")
		return
	}

	ch, err := h.ChatSvc.GetChat(c.Request.Context(), c.Param("chat_id"), uid)
	if err != nil {
		completionError(c, err)
		return
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)

	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		fmt.Fprintf(c.Writer, "event: error\ndata: {\"message\":\"streaming unsupported\"}\n\n")
		return
	}

	writeEvent := func(event string, payload any) {
		b, err := json.Marshal(payload)
		if err != nil {
			fmt.Fprintf(c.Writer, "event: error\ndata: {\"message\":\"encode failed\"}\n\n")
			flusher.Flush()
			return
		}
		fmt.Fprintf(c.Writer, "event: %s\ndata: %s\n\n", event, b)
		flusher.Flush()
	}

	provider, model := req.target(ch.ModelProvider, ch.ModelID)
	ctx := c.Request.Context()
	chunks, result, errs := h.ChatSvc.StreamComplete(ctx, chat.CompletionRequest{
		ChatID:        ch.ID,
		UserID:        uid,
		Message:       req.Message,
		ModelProvider: provider,
		ModelID:       model,
		Temperature:   req.Temperature,
		MaxTokens:     req.MaxTokens,
	})

	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case chk, ok := <-chunks:
			if !ok {
				chunks = nil
				continue
			}
			if chk.Content != "" {
				writeEvent("chunk", gin.H{"delta": chk.Content})
			}

		case <-ticker.C:
			writeEvent("ping", gin.H{"ts": time.Now().Unix()})

		case err := <-errs:
			if err != nil {
				writeEvent("error", gin.H{"message": err.Error()})
				return
			}
			errs = nil

		case resp, ok := <-result:
			if !ok {
				result = nil
				continue
			}
			writeEvent("done", gin.H{
				"content": resp.Content,
				"model":   resp.Model,
			})
			return

		case <-ctx.Done():
			return
		}
	}
}

// CompleteAsync enqueues the exchange and answers immediately with a job
// id. An Idempotency-Key header makes retries return the original job.
func (h *Handler) CompleteAsync(c *gin.Context) {
	uid, ok := middleware.UserID(c)
	if !ok {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}
	if h.Rabbit == nil {
		common.Fail(c, http.StatusServiceUnavailable, 50301, "async completions unavailable")
		return
	}

	var req completionReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid request body")
		return
	}

	ch, err := h.ChatSvc.GetChat(c.Request.Context(), c.Param("chat_id"), uid)
	if err != nil {
		completionError(c, err)
		return
	}

	idempoKey := strings.TrimSpace(c.GetHeader("Idempotency-Key"))
	if len(idempoKey) > 128 {
		common.Fail(c, http.StatusBadRequest, 10008, "idempotency key too long")
		return
	}
	var idempoKeyPtr *string
	if idempoKey != "" {
		idempoKeyPtr = &idempoKey
	}

	jobID, err := common.NewULID()
	if err != nil {
		common.Fail(c, http.StatusInternalServerError, 50001, "internal error")
		return
	}

	provider, model := req.target(ch.ModelProvider, ch.ModelID)
	j := &chat.Job{
		ID:             jobID,
		UserID:         uid,
		ChatID:         ch.ID,
		Prompt:         req.Message,
		ModelProvider:  provider,
		ModelID:        model,
		IdempotencyKey: idempoKeyPtr,
		Status:         chat.JobQueued,
	}
	j, created, err := h.ChatSvc.CreateJobOrGetExisting(c.Request.Context(), j)
	if err != nil {
		log.Printf("enqueue completion failed user=%s chat=%s err=%v", uid, ch.ID, err)
		common.Fail(c, http.StatusInternalServerError, 50001, "internal error")
		return
	}

	if created {
		if err := h.Rabbit.PublishJob(c.Request.Context(), j.ID); err != nil {
			log.Printf("publish job failed job=%s err=%v", j.ID, err)
			common.Fail(c, http.StatusInternalServerError, 50002, "enqueue failed")
			return
		}
	}

	common.OK(c, gin.H{"job_id": j.ID, "status": j.Status})
}

func (h *Handler) GetJob(c *gin.Context) {
	uid, ok := middleware.UserID(c)
	if !ok {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}

	j, err := h.ChatSvc.GetJob(c.Request.Context(), c.Param("job_id"))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			common.Fail(c, http.StatusNotFound, 40402, "job not found")
			return
		}
		common.Fail(c, http.StatusInternalServerError, 50001, "internal error")
		return
	}
	if j.UserID != uid {
		// hide existence
		common.Fail(c, http.StatusNotFound, 40402, "job not found")
		return
	}

	common.OK(c, j)
}
