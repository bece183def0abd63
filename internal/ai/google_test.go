package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestGoogleChat_RoleFolding(t *testing.T) {
	var gotReq googleGenReq
	var gotPath string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path + "?" + r.URL.RawQuery
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Errorf("decode request: %v", err)
		}
		fmt.Fprint(w, `{
			"candidates": [{"content": {"parts": [{"text": "hi"}]}, "finishReason": "STOP"}],
			"usageMetadata": {"totalTokenCount": 7}
		}`)
	}))
	t.Cleanup(srv.Close)

	p := NewGoogleProvider("g-key", 5*time.Second)
	p.baseURL = srv.URL

	resp, err := p.Chat(context.Background(), ChatRequest{
		Model: "gemini-pro",
		Messages: []ChatMessage{
			{Role: RoleSystem, Content: "be brief"},
			{Role: RoleUser, Content: "hello"},
			{Role: RoleAssistant, Content: "prior"},
		},
	})
	if err != nil {
		t.Fatalf("chat: %v", err)
	}

	if !strings.Contains(gotPath, "/models/gemini-pro:generateContent") || !strings.Contains(gotPath, "key=g-key") {
		t.Fatalf("unexpected request path: %q", gotPath)
	}
	// system folds into user, assistant becomes model, content untouched
	roles := []string{gotReq.Contents[0].Role, gotReq.Contents[1].Role, gotReq.Contents[2].Role}
	if roles[0] != "user" || roles[1] != "user" || roles[2] != "model" {
		t.Fatalf("unexpected role mapping: %v", roles)
	}
	if gotReq.Contents[0].Parts[0].Text != "be brief" {
		t.Fatalf("content altered by role folding: %+v", gotReq.Contents[0])
	}

	if resp.Content != "hi" || resp.Model != "gemini-pro" {
		t.Fatalf("unexpected response: %+v", resp)
	}
	if resp.TokensUsed == nil || *resp.TokensUsed != 7 {
		t.Fatalf("tokens not normalized: %+v", resp.TokensUsed)
	}
}

func TestGoogleChat_NoCandidates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"candidates": []}`)
	}))
	t.Cleanup(srv.Close)

	p := NewGoogleProvider("g-key", time.Second)
	p.baseURL = srv.URL

	resp, err := p.Chat(context.Background(), ChatRequest{Model: "gemini-pro"})
	if err != nil {
		t.Fatalf("chat: %v", err)
	}
	if resp.Content != "" {
		t.Fatalf("expected empty content, got %q", resp.Content)
	}
}
