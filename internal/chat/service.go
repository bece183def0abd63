package chat

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"gorm.io/gorm"

	"github.com/parleyhq/parley/internal/ai"
	"github.com/parleyhq/parley/internal/keys"
)

// Service runs one completion exchange end to end: validate ownership,
// resolve the credential, assemble context, dispatch to the vendor, then
// persist both turns. Nothing is written before the vendor call succeeds,
// so a failed completion never leaves a half-exchange behind.
type Service struct {
	repo     *Repo
	resolver *keys.Resolver
	opts     ai.Options

	// newProvider is swapped out in tests; the default builds a
	// request-scoped registry around the decrypted credential.
	newProvider func(vendor ai.Vendor, apiKey string) (ai.Provider, error)
}

func NewService(repo *Repo, resolver *keys.Resolver, opts ai.Options) *Service {
	s := &Service{repo: repo, resolver: resolver, opts: opts}
	s.newProvider = s.buildProvider
	return s
}

// CompletionRequest is the normalized inbound payload, already bound and
// authenticated by the HTTP layer.
type CompletionRequest struct {
	ChatID        string
	UserID        string
	Message       string
	ModelProvider string
	ModelID       string
	Temperature   *float32
	MaxTokens     *int
}

// BuildContext loads the chat's full history in sequence order, maps it to
// the normalized shape and appends the new user turn. ErrChatNotFound when
// the chat is absent, foreign or soft-deleted.
func (s *Service) BuildContext(ctx context.Context, chatID, userID, newUserText string) ([]ai.ChatMessage, error) {
	if _, err := s.repo.GetChat(ctx, chatID, userID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrChatNotFound
		}
		return nil, fmt.Errorf("chat: load chat %s: %w", chatID, err)
	}
	return s.assembleContext(ctx, chatID, newUserText)
}

func (s *Service) assembleContext(ctx context.Context, chatID, newUserText string) ([]ai.ChatMessage, error) {
	history, err := s.repo.ListMessages(ctx, chatID)
	if err != nil {
		return nil, fmt.Errorf("chat: load history for %s: %w", chatID, err)
	}

	msgs := make([]ai.ChatMessage, 0, len(history)+1)
	for _, m := range history {
		msgs = append(msgs, ai.ChatMessage{Role: ai.Role(m.Role), Content: m.Content})
	}
	msgs = append(msgs, ai.ChatMessage{Role: ai.RoleUser, Content: newUserText})
	return msgs, nil
}

// Complete executes the full exchange and returns the normalized result
// plus the id of the persisted assistant message.
//
// Error surface: ai.ErrUnknownVendor and keys.ErrNoCredential are client
// errors, ErrChatNotFound maps to 404, *ai.ProviderError to 502; anything
// else is a persistence failure.
func (s *Service) Complete(ctx context.Context, req CompletionRequest) (ai.ChatResponse, string, error) {
	vendor, err := ai.ParseVendor(req.ModelProvider)
	if err != nil {
		return ai.ChatResponse{}, "", err
	}

	if _, err := s.repo.GetChat(ctx, req.ChatID, req.UserID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ai.ChatResponse{}, "", ErrChatNotFound
		}
		return ai.ChatResponse{}, "", fmt.Errorf("chat: load chat %s: %w", req.ChatID, err)
	}

	apiKey, err := s.resolver.ResolveDefault(ctx, req.UserID, vendor)
	if err != nil {
		return ai.ChatResponse{}, "", err
	}

	msgs, err := s.assembleContext(ctx, req.ChatID, req.Message)
	if err != nil {
		return ai.ChatResponse{}, "", err
	}

	provider, err := s.newProvider(vendor, apiKey)
	if err != nil {
		return ai.ChatResponse{}, "", err
	}

	resp, err := provider.Chat(ctx, ai.ChatRequest{
		Model:       req.ModelID,
		Messages:    msgs,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	})
	if err != nil {
		return ai.ChatResponse{}, "", err
	}

	assistantID, err := s.persistExchange(ctx, req, resp)
	if err != nil {
		return ai.ChatResponse{}, "", err
	}
	return resp, assistantID, nil
}

// buildProvider constructs the single-credential registry and picks the
// adapter out of it. The registry is request-scoped; the decrypted key dies
// with it.
func (s *Service) buildProvider(vendor ai.Vendor, apiKey string) (ai.Provider, error) {
	registry := ai.NewRegistry(map[ai.Vendor]string{vendor: apiKey}, s.opts)
	provider, ok := registry.Get(vendor)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ai.ErrUnknownVendor, vendor)
	}
	return provider, nil
}

// persistExchange writes the user turn then the assistant turn, each with a
// freshly computed sequence number, and attaches reported token usage to
// the assistant row.
//
// A failure here happens after a successful vendor call: the generated
// completion is lost and the loss is logged. That window is accepted.
func (s *Service) persistExchange(ctx context.Context, req CompletionRequest, resp ai.ChatResponse) (string, error) {
	userMsg := &Message{
		ChatID:  req.ChatID,
		Role:    string(ai.RoleUser),
		Content: req.Message,
	}
	if err := s.repo.CreateMessageWithSequence(ctx, userMsg); err != nil {
		log.Printf("completion lost: user turn write failed chat=%s err=%v", req.ChatID, err)
		return "", fmt.Errorf("chat: persist user turn: %w", err)
	}

	assistantMsg := &Message{
		ChatID:  req.ChatID,
		Role:    string(ai.RoleAssistant),
		Content: resp.Content,
	}
	if err := s.repo.CreateMessageWithSequence(ctx, assistantMsg); err != nil {
		log.Printf("completion lost: assistant turn write failed chat=%s err=%v", req.ChatID, err)
		return "", fmt.Errorf("chat: persist assistant turn: %w", err)
	}

	if resp.TokensUsed != nil {
		if err := s.repo.UpdateTokensUsed(ctx, assistantMsg.ID, *resp.TokensUsed, resp.Model); err != nil {
			return "", fmt.Errorf("chat: attach token usage: %w", err)
		}
	}
	return assistantMsg.ID, nil
}

// StreamComplete runs the same exchange with a streaming vendor call.
// Chunks are forwarded as they arrive; both turns are persisted only after
// the stream finished cleanly, keeping the no-write-on-failure ordering.
// The accumulated ChatResponse arrives on result once persistence is done.
func (s *Service) StreamComplete(ctx context.Context, req CompletionRequest) (<-chan ai.Chunk, <-chan ai.ChatResponse, <-chan error) {
	chunks := make(chan ai.Chunk, 16)
	result := make(chan ai.ChatResponse, 1)
	errs := make(chan error, 1)

	go func() {
		defer close(chunks)
		defer close(result)
		defer close(errs)

		vendor, err := ai.ParseVendor(req.ModelProvider)
		if err != nil {
			errs <- err
			return
		}

		if _, err := s.repo.GetChat(ctx, req.ChatID, req.UserID); err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				errs <- ErrChatNotFound
			} else {
				errs <- fmt.Errorf("chat: load chat %s: %w", req.ChatID, err)
			}
			return
		}

		apiKey, err := s.resolver.ResolveDefault(ctx, req.UserID, vendor)
		if err != nil {
			errs <- err
			return
		}

		msgs, err := s.assembleContext(ctx, req.ChatID, req.Message)
		if err != nil {
			errs <- err
			return
		}

		provider, err := s.newProvider(vendor, apiKey)
		if err != nil {
			errs <- err
			return
		}

		sp, ok := provider.(ai.StreamProvider)
		if !ok {
			errs <- fmt.Errorf("chat: provider %s does not support streaming", vendor)
			return
		}

		pChunks, pErrs := sp.StreamChat(ctx, ai.ChatRequest{
			Model:       req.ModelID,
			Messages:    msgs,
			Temperature: req.Temperature,
			MaxTokens:   req.MaxTokens,
			Stream:      true,
		})

		var b strings.Builder
		model := req.ModelID
		for c := range pChunks {
			b.WriteString(c.Content)
			if c.Model != "" {
				model = c.Model
			}
			// the consumer may stop reading (client gone); never block
			// on a send it will not drain
			select {
			case chunks <- c:
			case <-ctx.Done():
				errs <- ctx.Err()
				return
			}
		}
		if err := <-pErrs; err != nil {
			errs <- err
			return
		}

		resp := ai.ChatResponse{Content: b.String(), Model: model}
		if _, err := s.persistExchange(ctx, req, resp); err != nil {
			errs <- err
			return
		}
		result <- resp
	}()

	return chunks, result, errs
}

// CompleteJob runs a queued exchange through the same orchestrator and
// returns the assistant message id for the job row.
func (s *Service) CompleteJob(ctx context.Context, j *Job) (string, error) {
	_, assistantID, err := s.Complete(ctx, CompletionRequest{
		ChatID:        j.ChatID,
		UserID:        j.UserID,
		Message:       j.Prompt,
		ModelProvider: j.ModelProvider,
		ModelID:       j.ModelID,
	})
	return assistantID, err
}

// --- thin pass-throughs used by the HTTP layer ---

func (s *Service) CreateChat(ctx context.Context, c *Chat) error {
	return s.repo.CreateChat(ctx, c)
}

func (s *Service) GetChat(ctx context.Context, id, userID string) (*Chat, error) {
	c, err := s.repo.GetChat(ctx, id, userID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrChatNotFound
	}
	return c, err
}

func (s *Service) ListChats(ctx context.Context, userID string, page, pageSize int) ([]Chat, int64, error) {
	return s.repo.ListChats(ctx, userID, page, pageSize)
}

func (s *Service) UpdateChat(ctx context.Context, id, userID string, updates map[string]any) (*Chat, error) {
	c, err := s.repo.UpdateChat(ctx, id, userID, updates)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrChatNotFound
	}
	return c, err
}

func (s *Service) DeleteChat(ctx context.Context, id, userID string) error {
	err := s.repo.DeleteChat(ctx, id, userID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrChatNotFound
	}
	return err
}

// ListMessages is ownership-checked through the chat before touching rows.
func (s *Service) ListMessages(ctx context.Context, chatID, userID string) ([]Message, error) {
	if _, err := s.GetChat(ctx, chatID, userID); err != nil {
		return nil, err
	}
	return s.repo.ListMessages(ctx, chatID)
}

func (s *Service) UpdateMessageContent(ctx context.Context, msgID, chatID, userID, content string) (*Message, error) {
	if _, err := s.GetChat(ctx, chatID, userID); err != nil {
		return nil, err
	}
	m, err := s.repo.UpdateMessageContent(ctx, msgID, chatID, content)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrChatNotFound
	}
	return m, err
}

func (s *Service) DeleteMessage(ctx context.Context, msgID, chatID, userID string) error {
	if _, err := s.GetChat(ctx, chatID, userID); err != nil {
		return err
	}
	err := s.repo.DeleteMessage(ctx, msgID, chatID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrChatNotFound
	}
	return err
}

func (s *Service) ClearMessages(ctx context.Context, chatID, userID string) error {
	if _, err := s.GetChat(ctx, chatID, userID); err != nil {
		return err
	}
	return s.repo.ClearMessages(ctx, chatID)
}

func (s *Service) CreateJobOrGetExisting(ctx context.Context, j *Job) (*Job, bool, error) {
	return s.repo.CreateJobOrGetExisting(ctx, j)
}

func (s *Service) GetJob(ctx context.Context, id string) (*Job, error) {
	return s.repo.GetJobByID(ctx, id)
}
