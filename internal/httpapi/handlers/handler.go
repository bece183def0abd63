package handlers

import (
	"errors"

	"gorm.io/gorm"

	"github.com/parleyhq/parley/internal/ai"
	"github.com/parleyhq/parley/internal/catalog"
	"github.com/parleyhq/parley/internal/chat"
	"github.com/parleyhq/parley/internal/config"
	"github.com/parleyhq/parley/internal/features"
	"github.com/parleyhq/parley/internal/keys"
	"github.com/parleyhq/parley/internal/store/rabbitmq"
)

// Handler carries every dependency the route handlers touch. Rabbit may be
// nil; async completions then answer 503.
type Handler struct {
	DB       *gorm.DB
	Cfg      config.Config
	ChatSvc  *chat.Service
	Keys     *keys.Repo
	Sealer   *keys.Sealer
	Catalog  *catalog.Repo
	Features *features.Repo
	Rabbit   *rabbitmq.Publisher
}

func NewHandler(db *gorm.DB, cfg config.Config, rabbit *rabbitmq.Publisher) (*Handler, error) {
	if len(cfg.CredentialKey) == 0 {
		return nil, errors.New("handlers: CREDENTIAL_KEY is required")
	}
	sealer, err := keys.NewSealer(cfg.CredentialKey)
	if err != nil {
		return nil, err
	}

	keyRepo := keys.NewRepo(db)
	chatSvc := chat.NewService(
		chat.NewRepo(db),
		keys.NewResolver(keyRepo, sealer),
		ai.Options{Timeout: cfg.ProviderTimeout, OllamaBaseURL: cfg.OllamaBaseURL},
	)

	return &Handler{
		DB:       db,
		Cfg:      cfg,
		ChatSvc:  chatSvc,
		Keys:     keyRepo,
		Sealer:   sealer,
		Catalog:  catalog.NewRepo(db),
		Features: features.NewRepo(db),
		Rabbit:   rabbit,
	}, nil
}
