package ai

import (
	"context"
	"net/http"
	"time"
)

// DeepSeekProvider talks to api.deepseek.com, which is OpenAI-compatible.
type DeepSeekProvider struct {
	cc chatCompletionsClient
}

func NewDeepSeekProvider(apiKey string, timeout time.Duration) *DeepSeekProvider {
	return &DeepSeekProvider{cc: chatCompletionsClient{
		vendor:  VendorDeepSeek,
		baseURL: "https://api.deepseek.com",
		apiKey:  apiKey,
		client:  &http.Client{Timeout: timeout},
	}}
}

func (p *DeepSeekProvider) Chat(ctx context.Context, req ChatRequest) (ChatResponse, error) {
	return p.cc.chat(ctx, req)
}

func (p *DeepSeekProvider) StreamChat(ctx context.Context, req ChatRequest) (<-chan Chunk, <-chan error) {
	return p.cc.streamChat(ctx, req)
}

var deepSeekModels = []ModelInfo{
	{ID: "deepseek-chat", DisplayName: "DeepSeek Chat", ContextWindow: 65536, SupportsStreaming: true, SupportsImages: false},
	{ID: "deepseek-reasoner", DisplayName: "DeepSeek Reasoner", ContextWindow: 65536, SupportsStreaming: true, SupportsImages: false},
}

func (p *DeepSeekProvider) GetModelInfo(modelID string) (ModelInfo, bool) {
	return lookupModel(deepSeekModels, modelID)
}

func (p *DeepSeekProvider) ListModels() []ModelInfo {
	return append([]ModelInfo(nil), deepSeekModels...)
}
