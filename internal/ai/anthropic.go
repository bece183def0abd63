package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"
)

// AnthropicProvider talks to api.anthropic.com/v1/messages.
type AnthropicProvider struct {
	apiKey string
	url    string
	client *http.Client
}

func NewAnthropicProvider(apiKey string, timeout time.Duration) *AnthropicProvider {
	return &AnthropicProvider{
		apiKey: apiKey,
		url:    anthropicURL,
		client: &http.Client{Timeout: timeout},
	}
}

const (
	anthropicURL     = "https://api.anthropic.com/v1/messages"
	anthropicVersion = "2023-06-01"

	// The messages API requires max_tokens; applied when the caller set none.
	anthropicDefaultMaxTokens = 1024
)

type anthropicMsg struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicChatReq struct {
	Model       string         `json:"model"`
	System      string         `json:"system,omitempty"`
	Messages    []anthropicMsg `json:"messages"`
	MaxTokens   int            `json:"max_tokens"`
	Temperature *float32       `json:"temperature,omitempty"`
}

type anthropicChatResp struct {
	Model   string `json:"model"`
	Content []struct {
		Text string `json:"text"`
	} `json:"content"`
	Usage struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
	StopReason *string `json:"stop_reason"`
	Error      *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func (p *AnthropicProvider) Chat(ctx context.Context, req ChatRequest) (ChatResponse, error) {
	if strings.TrimSpace(p.apiKey) == "" {
		return ChatResponse{}, providerErr(VendorAnthropic, 0, errors.New("api key is required"))
	}

	// The messages API has no system role; system turns are lifted into the
	// top-level system field, content unchanged.
	var system []string
	msgs := make([]anthropicMsg, 0, len(req.Messages))
	for _, m := range req.Messages {
		if m.Role == RoleSystem {
			system = append(system, m.Content)
			continue
		}
		msgs = append(msgs, anthropicMsg{Role: string(m.Role), Content: m.Content})
	}

	maxTokens := anthropicDefaultMaxTokens
	if req.MaxTokens != nil {
		maxTokens = *req.MaxTokens
	}

	body, err := json.Marshal(anthropicChatReq{
		Model:       req.Model,
		System:      strings.Join(system, "\n"),
		Messages:    msgs,
		MaxTokens:   maxTokens,
		Temperature: req.Temperature,
	})
	if err != nil {
		return ChatResponse{}, providerErr(VendorAnthropic, 0, err)
	}

	hr, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url, bytes.NewReader(body))
	if err != nil {
		return ChatResponse{}, providerErr(VendorAnthropic, 0, err)
	}
	hr.Header.Set("Content-Type", "application/json")
	hr.Header.Set("x-api-key", p.apiKey)
	hr.Header.Set("anthropic-version", anthropicVersion)

	resp, err := p.client.Do(hr)
	if err != nil {
		return ChatResponse{}, providerErr(VendorAnthropic, 0, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return ChatResponse{}, providerErr(VendorAnthropic, resp.StatusCode, errors.New(readErrBody(resp.Body)))
	}

	var decoded anthropicChatResp
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return ChatResponse{}, providerErr(VendorAnthropic, 0, err)
	}
	if decoded.Error != nil && decoded.Error.Message != "" {
		return ChatResponse{}, providerErr(VendorAnthropic, 0, errors.New(decoded.Error.Message))
	}

	out := ChatResponse{Model: decoded.Model, FinishReason: decoded.StopReason}
	if out.Model == "" {
		out.Model = req.Model
	}
	if len(decoded.Content) > 0 {
		out.Content = decoded.Content[0].Text
	}
	total := decoded.Usage.InputTokens + decoded.Usage.OutputTokens
	if total > 0 {
		out.TokensUsed = &total
	}
	return out, nil
}

// StreamChat falls back to one final chunk; no native SSE path yet.
func (p *AnthropicProvider) StreamChat(ctx context.Context, req ChatRequest) (<-chan Chunk, <-chan error) {
	return singleChunkStream(ctx, p, req)
}

var anthropicModels = []ModelInfo{
	{ID: "claude-3-opus", DisplayName: "Claude 3 Opus", ContextWindow: 200000, SupportsStreaming: true, SupportsImages: true},
	{ID: "claude-3-sonnet", DisplayName: "Claude 3 Sonnet", ContextWindow: 200000, SupportsStreaming: true, SupportsImages: true},
	{ID: "claude-3-haiku", DisplayName: "Claude 3 Haiku", ContextWindow: 200000, SupportsStreaming: true, SupportsImages: true},
}

func (p *AnthropicProvider) GetModelInfo(modelID string) (ModelInfo, bool) {
	return lookupModel(anthropicModels, modelID)
}

func (p *AnthropicProvider) ListModels() []ModelInfo {
	return append([]ModelInfo(nil), anthropicModels...)
}
