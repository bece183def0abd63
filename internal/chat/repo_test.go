package chat

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	gormsqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(gormsqlite.Open("file::memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	// the in-memory database lives per connection
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	if err := db.AutoMigrate(&Chat{}, &Message{}, &Job{}); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

func mustCreateChat(t *testing.T, repo *Repo, userID string) *Chat {
	t.Helper()
	c := &Chat{UserID: userID, Title: "test chat", ModelProvider: "openai", ModelID: "gpt-4"}
	if err := repo.CreateChat(context.Background(), c); err != nil {
		t.Fatalf("create chat: %v", err)
	}
	return c
}

func TestNextSequenceNumber_EmptyChat(t *testing.T) {
	repo := NewRepo(openTestDB(t))
	c := mustCreateChat(t, repo, "user-1")

	seq, err := repo.NextSequenceNumber(context.Background(), c.ID)
	if err != nil {
		t.Fatalf("next sequence: %v", err)
	}
	if seq != 1 {
		t.Fatalf("empty chat sequence = %d, want 1", seq)
	}
}

func TestCreateMessageWithSequence_Monotonic(t *testing.T) {
	repo := NewRepo(openTestDB(t))
	c := mustCreateChat(t, repo, "user-1")
	ctx := context.Background()

	for i := 1; i <= 5; i++ {
		m := &Message{ChatID: c.ID, Role: "user", Content: fmt.Sprintf("turn %d", i)}
		if err := repo.CreateMessageWithSequence(ctx, m); err != nil {
			t.Fatalf("insert %d: %v", i, err)
		}
		if m.SequenceNumber != i {
			t.Fatalf("insert %d got sequence %d", i, m.SequenceNumber)
		}
	}

	msgs, err := repo.ListMessages(ctx, c.ID)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	for i, m := range msgs {
		if m.SequenceNumber != i+1 {
			t.Fatalf("position %d holds sequence %d", i, m.SequenceNumber)
		}
	}
}

func TestCreateMessageWithSequence_Concurrent(t *testing.T) {
	repo := NewRepo(openTestDB(t))
	c := mustCreateChat(t, repo, "user-1")
	ctx := context.Background()

	// each concurrent commit can cost every other writer one retry, so
	// writers must stay below the retry budget
	const writers = 4
	var wg sync.WaitGroup
	errCh := make(chan error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			m := &Message{ChatID: c.ID, Role: "user", Content: fmt.Sprintf("concurrent %d", i)}
			if err := repo.CreateMessageWithSequence(ctx, m); err != nil {
				errCh <- err
			}
		}(i)
	}
	wg.Wait()
	close(errCh)
	for err := range errCh {
		t.Fatalf("concurrent insert: %v", err)
	}

	msgs, err := repo.ListMessages(ctx, c.ID)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(msgs) != writers {
		t.Fatalf("persisted %d messages, want %d", len(msgs), writers)
	}
	seen := map[int]bool{}
	for _, m := range msgs {
		if seen[m.SequenceNumber] {
			t.Fatalf("duplicate sequence %d", m.SequenceNumber)
		}
		seen[m.SequenceNumber] = true
	}
	for i := 1; i <= writers; i++ {
		if !seen[i] {
			t.Fatalf("missing sequence %d", i)
		}
	}
}

func TestGetChat_OwnershipAndSoftDelete(t *testing.T) {
	repo := NewRepo(openTestDB(t))
	ctx := context.Background()
	c := mustCreateChat(t, repo, "user-1")

	if _, err := repo.GetChat(ctx, c.ID, "user-1"); err != nil {
		t.Fatalf("owner read: %v", err)
	}

	if _, err := repo.GetChat(ctx, c.ID, "user-2"); !errors.Is(err, gorm.ErrRecordNotFound) {
		t.Fatalf("foreign read err = %v, want record not found", err)
	}

	if err := repo.DeleteChat(ctx, c.ID, "user-1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := repo.GetChat(ctx, c.ID, "user-1"); !errors.Is(err, gorm.ErrRecordNotFound) {
		t.Fatalf("deleted read err = %v, want record not found", err)
	}

	// the row itself survives the soft delete
	var n int64
	if err := repo.db.Unscoped().Model(&Chat{}).Where("id = ?", c.ID).Count(&n).Error; err != nil {
		t.Fatalf("unscoped count: %v", err)
	}
	if n != 1 {
		t.Fatalf("soft-deleted row count = %d, want 1", n)
	}
}

func TestDeleteChat_WrongUser(t *testing.T) {
	repo := NewRepo(openTestDB(t))
	c := mustCreateChat(t, repo, "user-1")

	err := repo.DeleteChat(context.Background(), c.ID, "user-2")
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		t.Fatalf("foreign delete err = %v, want record not found", err)
	}
}

func TestListChats_Pagination(t *testing.T) {
	repo := NewRepo(openTestDB(t))
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		mustCreateChat(t, repo, "user-1")
	}
	mustCreateChat(t, repo, "user-2")

	chats, total, err := repo.ListChats(ctx, "user-1", 1, 3)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if total != 5 {
		t.Fatalf("total = %d, want 5", total)
	}
	if len(chats) != 3 {
		t.Fatalf("page size = %d, want 3", len(chats))
	}

	chats, _, err = repo.ListChats(ctx, "user-1", 2, 3)
	if err != nil {
		t.Fatalf("list page 2: %v", err)
	}
	if len(chats) != 2 {
		t.Fatalf("page 2 size = %d, want 2", len(chats))
	}
}

func TestUpdateTokensUsed(t *testing.T) {
	repo := NewRepo(openTestDB(t))
	ctx := context.Background()
	c := mustCreateChat(t, repo, "user-1")

	m := &Message{ChatID: c.ID, Role: "assistant", Content: "hi"}
	if err := repo.CreateMessageWithSequence(ctx, m); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := repo.UpdateTokensUsed(ctx, m.ID, 42, "gpt-4"); err != nil {
		t.Fatalf("update tokens: %v", err)
	}

	msgs, err := repo.ListMessages(ctx, c.ID)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if msgs[0].TokensUsed == nil || *msgs[0].TokensUsed != 42 {
		t.Fatalf("tokens_used = %v, want 42", msgs[0].TokensUsed)
	}
	if msgs[0].ModelUsed == nil || *msgs[0].ModelUsed != "gpt-4" {
		t.Fatalf("model_used = %v, want gpt-4", msgs[0].ModelUsed)
	}
}

func TestCreateJobOrGetExisting_Idempotency(t *testing.T) {
	repo := NewRepo(openTestDB(t))
	ctx := context.Background()
	key := "retry-abc"

	first := &Job{ID: "01JOB0000000000000000000001", UserID: "user-1", ChatID: "chat-1",
		Prompt: "hello", ModelProvider: "openai", ModelID: "gpt-4",
		IdempotencyKey: &key, Status: JobQueued}
	got, created, err := repo.CreateJobOrGetExisting(ctx, first)
	if err != nil || !created {
		t.Fatalf("first enqueue: created=%v err=%v", created, err)
	}

	dup := &Job{ID: "01JOB0000000000000000000002", UserID: "user-1", ChatID: "chat-1",
		Prompt: "hello", ModelProvider: "openai", ModelID: "gpt-4",
		IdempotencyKey: &key, Status: JobQueued}
	got2, created, err := repo.CreateJobOrGetExisting(ctx, dup)
	if err != nil {
		t.Fatalf("duplicate enqueue: %v", err)
	}
	if created {
		t.Fatalf("duplicate enqueue reported as created")
	}
	if got2.ID != got.ID {
		t.Fatalf("duplicate returned job %s, want %s", got2.ID, got.ID)
	}

	// same key, different user: independent jobs
	other := &Job{ID: "01JOB0000000000000000000003", UserID: "user-2", ChatID: "chat-2",
		Prompt: "hello", ModelProvider: "openai", ModelID: "gpt-4",
		IdempotencyKey: &key, Status: JobQueued}
	_, created, err = repo.CreateJobOrGetExisting(ctx, other)
	if err != nil || !created {
		t.Fatalf("other user enqueue: created=%v err=%v", created, err)
	}
}
