package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/parleyhq/parley/internal/common"
	"github.com/parleyhq/parley/internal/config"
	"github.com/parleyhq/parley/internal/httpapi/handlers"
	"github.com/parleyhq/parley/internal/httpapi/middleware"
	"github.com/parleyhq/parley/internal/store/rabbitmq"
	"github.com/parleyhq/parley/internal/store/redisstore"
)

func NewRouter(db *gorm.DB, cfg config.Config, rabbit *rabbitmq.Publisher, limiter *redisstore.Limiter) (*gin.Engine, error) {
	r := gin.New()
	r.HandleMethodNotAllowed = true
	r.Use(gin.Logger())
	r.Use(middleware.Recovery())
	r.Use(middleware.RequestID())

	r.NoRoute(func(c *gin.Context) {
		common.Fail(c, http.StatusNotFound, 40400, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		common.Fail(c, http.StatusMethodNotAllowed, 40500, "method not allowed")
	})

	h, err := handlers.NewHandler(db, cfg, rabbit)
	if err != nil {
		return nil, err
	}

	r.GET("/ping", h.Ping)

	r.POST("/users", h.Register)
	r.POST("/login", h.Login)

	authed := r.Group("/")
	authed.Use(middleware.AuthRequired(cfg.JWTSecret))

	authed.GET("/me", h.Me)

	authed.GET("/models", h.ListModels)
	authed.GET("/models/:model_id", h.GetModel)

	authed.GET("/features", h.ListFeatures)
	authed.PUT("/features/:feature", h.UpdateFeature)

	authed.POST("/keys", h.CreateKey)
	authed.GET("/keys", h.ListKeys)
	authed.DELETE("/keys/:key_id", h.DeleteKey)
	authed.POST("/keys/:key_id/default", h.SetDefaultKey)

	authed.POST("/chats", h.CreateChat)
	authed.GET("/chats", h.ListChats)
	authed.GET("/chats/:chat_id", h.GetChat)
	authed.PATCH("/chats/:chat_id", h.UpdateChat)
	authed.DELETE("/chats/:chat_id", h.DeleteChat)

	authed.GET("/chats/:chat_id/messages", h.ListMessages)
	authed.PATCH("/chats/:chat_id/messages/:message_id", h.UpdateMessage)
	authed.DELETE("/chats/:chat_id/messages/:message_id", h.DeleteMessage)
	authed.DELETE("/chats/:chat_id/messages", h.ClearMessages)

	completions := authed.Group("/chats/:chat_id/completions")
	completions.Use(middleware.CompletionRateLimit(limiter))
	completions.POST("", h.Complete)
	completions.POST("/stream", h.CompleteStream)
	completions.POST("/async", h.CompleteAsync)

	authed.GET("/jobs/:job_id", h.GetJob)

	return r, nil
}
