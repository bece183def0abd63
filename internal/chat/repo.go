package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Repo struct {
	db *gorm.DB
}

func NewRepo(db *gorm.DB) *Repo {
	return &Repo{db: db}
}

// --- chats ---

func (r *Repo) CreateChat(ctx context.Context, c *Chat) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	return r.db.WithContext(ctx).Create(c).Error
}

// GetChat returns the chat only when it exists, belongs to userID and is
// not soft-deleted; otherwise gorm.ErrRecordNotFound.
func (r *Repo) GetChat(ctx context.Context, id, userID string) (*Chat, error) {
	var c Chat
	err := r.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", id, userID).
		First(&c).Error
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// ListChats returns the user's chats newest-updated first.
func (r *Repo) ListChats(ctx context.Context, userID string, page, pageSize int) ([]Chat, int64, error) {
	if page <= 0 {
		page = 1
	}
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 20
	}

	q := r.db.WithContext(ctx).Model(&Chat{}).Where("user_id = ?", userID)

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var out []Chat
	err := q.Order("updated_at DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&out).Error
	return out, total, err
}

func (r *Repo) UpdateChat(ctx context.Context, id, userID string, updates map[string]any) (*Chat, error) {
	res := r.db.WithContext(ctx).Model(&Chat{}).
		Where("id = ? AND user_id = ?", id, userID).
		Updates(updates)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, gorm.ErrRecordNotFound
	}
	return r.GetChat(ctx, id, userID)
}

// DeleteChat soft-deletes; the row stays but every read stops seeing it.
func (r *Repo) DeleteChat(ctx context.Context, id, userID string) error {
	res := r.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", id, userID).
		Delete(&Chat{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// --- messages ---

// ListMessages returns every message of the chat in sequence order. The
// caller is responsible for the ownership check via GetChat.
func (r *Repo) ListMessages(ctx context.Context, chatID string) ([]Message, error) {
	var out []Message
	err := r.db.WithContext(ctx).
		Where("chat_id = ?", chatID).
		Order("sequence_number ASC").
		Find(&out).Error
	return out, err
}

// NextSequenceNumber computes max(sequence_number)+1 for the chat, 1 for an
// empty chat. Computed fresh at every insertion point, never cached.
func (r *Repo) NextSequenceNumber(ctx context.Context, chatID string) (int, error) {
	var maxSeq int
	err := r.db.WithContext(ctx).Model(&Message{}).
		Where("chat_id = ?", chatID).
		Select("COALESCE(MAX(sequence_number), 0)").
		Scan(&maxSeq).Error
	if err != nil {
		return 0, err
	}
	return maxSeq + 1, nil
}

const seqRetryLimit = 5

// CreateMessageWithSequence allocates the next sequence number and inserts
// in a read-then-insert loop. A concurrent writer grabbing the same number
// trips the unique index; we recompute and try again.
func (r *Repo) CreateMessageWithSequence(ctx context.Context, m *Message) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	for attempt := 0; attempt < seqRetryLimit; attempt++ {
		seq, err := r.NextSequenceNumber(ctx, m.ChatID)
		if err != nil {
			return err
		}
		m.SequenceNumber = seq

		err = r.db.WithContext(ctx).Create(m).Error
		if err == nil {
			return nil
		}
		if !isDuplicateSequence(err) {
			return err
		}
	}
	return fmt.Errorf("%w: chat %s", ErrSequenceContended, m.ChatID)
}

func isDuplicateSequence(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	// mysql and sqlite phrase the violation differently and the sqlite
	// test driver does not translate it.
	msg := err.Error()
	return strings.Contains(msg, "Duplicate entry") || strings.Contains(msg, "UNIQUE constraint failed")
}

// UpdateTokensUsed attaches provider-reported usage to a stored message.
func (r *Repo) UpdateTokensUsed(ctx context.Context, messageID string, tokens int, model string) error {
	res := r.db.WithContext(ctx).Model(&Message{}).
		Where("id = ?", messageID).
		Updates(map[string]any{
			"tokens_used": tokens,
			"model_used":  model,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *Repo) UpdateMessageContent(ctx context.Context, id, chatID, content string) (*Message, error) {
	res := r.db.WithContext(ctx).Model(&Message{}).
		Where("id = ? AND chat_id = ?", id, chatID).
		Update("content", content)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, gorm.ErrRecordNotFound
	}
	var m Message
	if err := r.db.WithContext(ctx).First(&m, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &m, nil
}

func (r *Repo) DeleteMessage(ctx context.Context, id, chatID string) error {
	res := r.db.WithContext(ctx).
		Where("id = ? AND chat_id = ?", id, chatID).
		Delete(&Message{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *Repo) ClearMessages(ctx context.Context, chatID string) error {
	return r.db.WithContext(ctx).
		Where("chat_id = ?", chatID).
		Delete(&Message{}).Error
}

func (r *Repo) CountMessages(ctx context.Context, chatID string) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&Message{}).
		Where("chat_id = ?", chatID).
		Count(&n).Error
	return n, err
}
