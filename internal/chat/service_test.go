package chat

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/parleyhq/parley/internal/ai"
	"github.com/parleyhq/parley/internal/keys"
)

// fakeProvider records the request it received and returns a canned
// response or error.
type fakeProvider struct {
	lastReq ai.ChatRequest
	resp    ai.ChatResponse
	err     error
}

func (f *fakeProvider) Chat(_ context.Context, req ai.ChatRequest) (ai.ChatResponse, error) {
	f.lastReq = req
	if f.err != nil {
		return ai.ChatResponse{}, f.err
	}
	return f.resp, nil
}

func (f *fakeProvider) GetModelInfo(id string) (ai.ModelInfo, bool) {
	return ai.ModelInfo{ID: id}, true
}

func (f *fakeProvider) ListModels() []ai.ModelInfo { return nil }

func (f *fakeProvider) StreamChat(ctx context.Context, req ai.ChatRequest) (<-chan ai.Chunk, <-chan error) {
	chunks := make(chan ai.Chunk, 4)
	errs := make(chan error, 1)
	go func() {
		defer close(chunks)
		defer close(errs)
		f.lastReq = req
		if f.err != nil {
			errs <- f.err
			return
		}
		chunks <- ai.Chunk{Content: "str", Model: f.resp.Model}
		chunks <- ai.Chunk{Content: "eamed", Model: f.resp.Model}
		chunks <- ai.Chunk{Done: true, Model: f.resp.Model}
		errs <- nil
	}()
	return chunks, errs
}

// floodProvider streams chunks without end until the context is
// cancelled, like a vendor mid-generation when the client hangs up.
type floodProvider struct {
	fakeProvider
}

func (f *floodProvider) StreamChat(ctx context.Context, req ai.ChatRequest) (<-chan ai.Chunk, <-chan error) {
	chunks := make(chan ai.Chunk)
	errs := make(chan error, 1)
	go func() {
		defer close(chunks)
		defer close(errs)
		for {
			select {
			case chunks <- ai.Chunk{Content: "x"}:
			case <-ctx.Done():
				errs <- ctx.Err()
				return
			}
		}
	}()
	return chunks, errs
}

type svcFixture struct {
	svc      *Service
	repo     *Repo
	provider *fakeProvider
}

func newSvcFixture(t *testing.T, keyVendors ...ai.Vendor) *svcFixture {
	t.Helper()
	db := openTestDB(t)
	if err := db.AutoMigrate(&keys.UserAPIKey{}); err != nil {
		t.Fatalf("automigrate keys: %v", err)
	}

	sealer, err := keys.NewSealer(bytes.Repeat([]byte{0x24}, 32))
	if err != nil {
		t.Fatalf("sealer: %v", err)
	}
	keyRepo := keys.NewRepo(db)
	for _, v := range keyVendors {
		sealed, err := sealer.Seal("sk-test-" + v.String())
		if err != nil {
			t.Fatalf("seal: %v", err)
		}
		k := &keys.UserAPIKey{UserID: "user-1", Provider: v.String(), EncryptedKey: sealed, IsDefault: true}
		if err := keyRepo.Create(context.Background(), k); err != nil {
			t.Fatalf("create key: %v", err)
		}
	}

	repo := NewRepo(db)
	svc := NewService(repo, keys.NewResolver(keyRepo, sealer), ai.Options{})

	fp := &fakeProvider{resp: ai.ChatResponse{Content: "canned reply", Model: "gpt-4"}}
	svc.newProvider = func(vendor ai.Vendor, apiKey string) (ai.Provider, error) {
		if apiKey == "" {
			return nil, errors.New("provider built with empty key")
		}
		return fp, nil
	}
	return &svcFixture{svc: svc, repo: repo, provider: fp}
}

func (f *svcFixture) mustChat(t *testing.T, userID string) *Chat {
	t.Helper()
	return mustCreateChat(t, f.repo, userID)
}

func (f *svcFixture) messageCount(t *testing.T, chatID string) int64 {
	t.Helper()
	n, err := f.repo.CountMessages(context.Background(), chatID)
	if err != nil {
		t.Fatalf("count messages: %v", err)
	}
	return n
}

func TestComplete_EmptyChatPersistsBothTurns(t *testing.T) {
	f := newSvcFixture(t, ai.VendorOpenAI)
	c := f.mustChat(t, "user-1")
	ctx := context.Background()

	tokens := 17
	f.provider.resp.TokensUsed = &tokens

	resp, assistantID, err := f.svc.Complete(ctx, CompletionRequest{
		ChatID: c.ID, UserID: "user-1", Message: "hello",
		ModelProvider: "openai", ModelID: "gpt-4",
	})
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if resp.Content != "canned reply" {
		t.Fatalf("content = %q", resp.Content)
	}

	msgs, err := f.repo.ListMessages(ctx, c.ID)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("persisted %d messages, want 2", len(msgs))
	}
	if msgs[0].Role != "user" || msgs[0].Content != "hello" || msgs[0].SequenceNumber != 1 {
		t.Fatalf("user turn = %+v", msgs[0])
	}
	if msgs[1].Role != "assistant" || msgs[1].Content != "canned reply" || msgs[1].SequenceNumber != 2 {
		t.Fatalf("assistant turn = %+v", msgs[1])
	}
	if msgs[1].ID != assistantID {
		t.Fatalf("assistant id %s, want %s", assistantID, msgs[1].ID)
	}
	if msgs[1].TokensUsed == nil || *msgs[1].TokensUsed != 17 {
		t.Fatalf("tokens_used = %v, want 17", msgs[1].TokensUsed)
	}
}

func TestComplete_ContextCarriesFullHistory(t *testing.T) {
	f := newSvcFixture(t, ai.VendorOpenAI)
	c := f.mustChat(t, "user-1")
	ctx := context.Background()

	req := CompletionRequest{ChatID: c.ID, UserID: "user-1", Message: "first",
		ModelProvider: "openai", ModelID: "gpt-4"}
	if _, _, err := f.svc.Complete(ctx, req); err != nil {
		t.Fatalf("first exchange: %v", err)
	}

	req.Message = "second"
	if _, _, err := f.svc.Complete(ctx, req); err != nil {
		t.Fatalf("second exchange: %v", err)
	}

	sent := f.provider.lastReq.Messages
	want := []ai.ChatMessage{
		{Role: ai.RoleUser, Content: "first"},
		{Role: ai.RoleAssistant, Content: "canned reply"},
		{Role: ai.RoleUser, Content: "second"},
	}
	if len(sent) != len(want) {
		t.Fatalf("context length = %d, want %d", len(sent), len(want))
	}
	for i := range want {
		if sent[i] != want[i] {
			t.Fatalf("context[%d] = %+v, want %+v", i, sent[i], want[i])
		}
	}
}

func TestComplete_UnknownProvider(t *testing.T) {
	f := newSvcFixture(t, ai.VendorOpenAI)
	c := f.mustChat(t, "user-1")

	_, _, err := f.svc.Complete(context.Background(), CompletionRequest{
		ChatID: c.ID, UserID: "user-1", Message: "hello",
		ModelProvider: "bedrock", ModelID: "claude",
	})
	if !errors.Is(err, ai.ErrUnknownVendor) {
		t.Fatalf("err = %v, want unknown vendor", err)
	}
	if n := f.messageCount(t, c.ID); n != 0 {
		t.Fatalf("%d messages written on unknown vendor", n)
	}
}

func TestComplete_ForeignChat(t *testing.T) {
	f := newSvcFixture(t, ai.VendorOpenAI)
	c := f.mustChat(t, "someone-else")

	_, _, err := f.svc.Complete(context.Background(), CompletionRequest{
		ChatID: c.ID, UserID: "user-1", Message: "hello",
		ModelProvider: "openai", ModelID: "gpt-4",
	})
	if !errors.Is(err, ErrChatNotFound) {
		t.Fatalf("err = %v, want chat not found", err)
	}
	if n := f.messageCount(t, c.ID); n != 0 {
		t.Fatalf("%d messages written to foreign chat", n)
	}
}

func TestComplete_SoftDeletedChat(t *testing.T) {
	f := newSvcFixture(t, ai.VendorOpenAI)
	c := f.mustChat(t, "user-1")
	ctx := context.Background()

	if err := f.repo.DeleteChat(ctx, c.ID, "user-1"); err != nil {
		t.Fatalf("delete: %v", err)
	}

	_, _, err := f.svc.Complete(ctx, CompletionRequest{
		ChatID: c.ID, UserID: "user-1", Message: "hello",
		ModelProvider: "openai", ModelID: "gpt-4",
	})
	if !errors.Is(err, ErrChatNotFound) {
		t.Fatalf("err = %v, want chat not found", err)
	}
	if n := f.messageCount(t, c.ID); n != 0 {
		t.Fatalf("%d messages written to deleted chat", n)
	}
}

func TestComplete_NoCredential(t *testing.T) {
	f := newSvcFixture(t) // no keys stored
	c := f.mustChat(t, "user-1")

	_, _, err := f.svc.Complete(context.Background(), CompletionRequest{
		ChatID: c.ID, UserID: "user-1", Message: "hello",
		ModelProvider: "openai", ModelID: "gpt-4",
	})
	if !errors.Is(err, keys.ErrNoCredential) {
		t.Fatalf("err = %v, want no credential", err)
	}
	if n := f.messageCount(t, c.ID); n != 0 {
		t.Fatalf("%d messages written without credential", n)
	}
}

func TestComplete_ProviderFailureWritesNothing(t *testing.T) {
	f := newSvcFixture(t, ai.VendorOpenAI)
	c := f.mustChat(t, "user-1")

	f.provider.err = &ai.ProviderError{Vendor: ai.VendorOpenAI, Status: 429, Err: errors.New("rate limited")}

	_, _, err := f.svc.Complete(context.Background(), CompletionRequest{
		ChatID: c.ID, UserID: "user-1", Message: "hello",
		ModelProvider: "openai", ModelID: "gpt-4",
	})
	var pe *ai.ProviderError
	if !errors.As(err, &pe) {
		t.Fatalf("err = %v, want provider error", err)
	}
	if pe.Status != 429 {
		t.Fatalf("status = %d, want 429", pe.Status)
	}
	if n := f.messageCount(t, c.ID); n != 0 {
		t.Fatalf("%d messages written after provider failure", n)
	}
}

func TestBuildContext_AppendsNewTurn(t *testing.T) {
	f := newSvcFixture(t, ai.VendorOpenAI)
	c := f.mustChat(t, "user-1")
	ctx := context.Background()

	for _, turn := range []struct{ role, content string }{
		{"user", "hi"},
		{"assistant", "hello there"},
	} {
		m := &Message{ChatID: c.ID, Role: turn.role, Content: turn.content}
		if err := f.repo.CreateMessageWithSequence(ctx, m); err != nil {
			t.Fatalf("seed %s: %v", turn.role, err)
		}
	}

	msgs, err := f.svc.BuildContext(ctx, c.ID, "user-1", "how are you")
	if err != nil {
		t.Fatalf("build context: %v", err)
	}
	if len(msgs) != 3 {
		t.Fatalf("context length = %d, want 3", len(msgs))
	}
	last := msgs[len(msgs)-1]
	if last.Role != ai.RoleUser || last.Content != "how are you" {
		t.Fatalf("final turn = %+v", last)
	}
}

func TestBuildContext_ForeignChat(t *testing.T) {
	f := newSvcFixture(t, ai.VendorOpenAI)
	c := f.mustChat(t, "someone-else")

	_, err := f.svc.BuildContext(context.Background(), c.ID, "user-1", "hello")
	if !errors.Is(err, ErrChatNotFound) {
		t.Fatalf("err = %v, want chat not found", err)
	}
}

func TestStreamComplete_PersistsAccumulatedReply(t *testing.T) {
	f := newSvcFixture(t, ai.VendorOpenAI)
	c := f.mustChat(t, "user-1")
	ctx := context.Background()

	chunks, result, errs := f.svc.StreamComplete(ctx, CompletionRequest{
		ChatID: c.ID, UserID: "user-1", Message: "hello",
		ModelProvider: "openai", ModelID: "gpt-4",
	})

	var got string
	for ch := range chunks {
		got += ch.Content
	}
	if err := <-errs; err != nil {
		t.Fatalf("stream: %v", err)
	}
	resp := <-result
	if resp.Content != "streamed" || got != "streamed" {
		t.Fatalf("streamed content = %q / %q", resp.Content, got)
	}

	msgs, err := f.repo.ListMessages(ctx, c.ID)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("persisted %d messages, want 2", len(msgs))
	}
	if msgs[1].Content != "streamed" {
		t.Fatalf("assistant turn = %q", msgs[1].Content)
	}
}

func TestStreamComplete_FailureWritesNothing(t *testing.T) {
	f := newSvcFixture(t, ai.VendorOpenAI)
	c := f.mustChat(t, "user-1")
	ctx := context.Background()

	f.provider.err = errors.New("stream broke")

	chunks, _, errs := f.svc.StreamComplete(ctx, CompletionRequest{
		ChatID: c.ID, UserID: "user-1", Message: "hello",
		ModelProvider: "openai", ModelID: "gpt-4",
	})
	for range chunks {
	}
	if err := <-errs; err == nil {
		t.Fatalf("expected stream error")
	}
	if n := f.messageCount(t, c.ID); n != 0 {
		t.Fatalf("%d messages written after stream failure", n)
	}
}

func TestStreamComplete_AbandonedConsumerWritesNothing(t *testing.T) {
	f := newSvcFixture(t, ai.VendorOpenAI)
	c := f.mustChat(t, "user-1")

	flood := &floodProvider{}
	f.svc.newProvider = func(ai.Vendor, string) (ai.Provider, error) {
		return flood, nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	chunks, _, errs := f.svc.StreamComplete(ctx, CompletionRequest{
		ChatID: c.ID, UserID: "user-1", Message: "hello",
		ModelProvider: "openai", ModelID: "gpt-4",
	})

	<-chunks // the stream is live
	cancel()

	// stop draining chunks entirely; the stream must still wind down
	// instead of blocking forever on the unread buffer
	var err error
	for err = range errs {
	}
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if n := f.messageCount(t, c.ID); n != 0 {
		t.Fatalf("%d messages written after abandoned stream", n)
	}
}

func TestCompleteJob_RunsExchange(t *testing.T) {
	f := newSvcFixture(t, ai.VendorAnthropic)
	c := f.mustChat(t, "user-1")
	ctx := context.Background()

	j := &Job{ID: "01JOB0000000000000000000009", UserID: "user-1", ChatID: c.ID,
		Prompt: "summarize", ModelProvider: "anthropic", ModelID: "claude-3-sonnet",
		Status: JobQueued}
	assistantID, err := f.svc.CompleteJob(ctx, j)
	if err != nil {
		t.Fatalf("complete job: %v", err)
	}
	if assistantID == "" {
		t.Fatalf("empty assistant message id")
	}
	if n := f.messageCount(t, c.ID); n != 2 {
		t.Fatalf("persisted %d messages, want 2", n)
	}
}
