package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// GoogleProvider talks to the Gemini generateContent API.
type GoogleProvider struct {
	apiKey  string
	baseURL string
	client  *http.Client
}

func NewGoogleProvider(apiKey string, timeout time.Duration) *GoogleProvider {
	return &GoogleProvider{
		apiKey:  apiKey,
		baseURL: "https://generativelanguage.googleapis.com/v1beta",
		client:  &http.Client{Timeout: timeout},
	}
}

type googlePart struct {
	Text string `json:"text"`
}

type googleContent struct {
	Role  string       `json:"role"`
	Parts []googlePart `json:"parts"`
}

type googleGenReq struct {
	Contents         []googleContent `json:"contents"`
	GenerationConfig struct {
		Temperature     *float32 `json:"temperature,omitempty"`
		MaxOutputTokens *int     `json:"maxOutputTokens,omitempty"`
	} `json:"generationConfig"`
}

type googleGenResp struct {
	Candidates []struct {
		Content struct {
			Parts []googlePart `json:"parts"`
		} `json:"content"`
		FinishReason *string `json:"finishReason"`
	} `json:"candidates"`
	UsageMetadata *struct {
		TotalTokenCount int `json:"totalTokenCount"`
	} `json:"usageMetadata"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// googleRole maps the normalized role vocabulary. Gemini has no system or
// assistant role: assistant turns are "model", system turns fold into "user".
func googleRole(r Role) string {
	switch r {
	case RoleAssistant:
		return "model"
	default:
		return "user"
	}
}

func (p *GoogleProvider) Chat(ctx context.Context, req ChatRequest) (ChatResponse, error) {
	if p.apiKey == "" {
		return ChatResponse{}, providerErr(VendorGoogle, 0, errors.New("api key is required"))
	}

	var greq googleGenReq
	greq.Contents = make([]googleContent, 0, len(req.Messages))
	for _, m := range req.Messages {
		greq.Contents = append(greq.Contents, googleContent{
			Role:  googleRole(m.Role),
			Parts: []googlePart{{Text: m.Content}},
		})
	}
	greq.GenerationConfig.Temperature = req.Temperature
	greq.GenerationConfig.MaxOutputTokens = req.MaxTokens

	body, err := json.Marshal(greq)
	if err != nil {
		return ChatResponse{}, providerErr(VendorGoogle, 0, err)
	}

	url := fmt.Sprintf("%s/models/%s:generateContent?key=%s", p.baseURL, req.Model, p.apiKey)
	hr, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return ChatResponse{}, providerErr(VendorGoogle, 0, err)
	}
	hr.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(hr)
	if err != nil {
		return ChatResponse{}, providerErr(VendorGoogle, 0, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return ChatResponse{}, providerErr(VendorGoogle, resp.StatusCode, errors.New(readErrBody(resp.Body)))
	}

	var decoded googleGenResp
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return ChatResponse{}, providerErr(VendorGoogle, 0, err)
	}
	if decoded.Error != nil && decoded.Error.Message != "" {
		return ChatResponse{}, providerErr(VendorGoogle, 0, errors.New(decoded.Error.Message))
	}

	// The API does not echo the model; report the one requested.
	out := ChatResponse{Model: req.Model}
	if len(decoded.Candidates) > 0 {
		cand := decoded.Candidates[0]
		if len(cand.Content.Parts) > 0 {
			out.Content = cand.Content.Parts[0].Text
		}
		out.FinishReason = cand.FinishReason
	}
	if decoded.UsageMetadata != nil {
		t := decoded.UsageMetadata.TotalTokenCount
		out.TokensUsed = &t
	}
	return out, nil
}

// StreamChat falls back to one final chunk; no native SSE path yet.
func (p *GoogleProvider) StreamChat(ctx context.Context, req ChatRequest) (<-chan Chunk, <-chan error) {
	return singleChunkStream(ctx, p, req)
}

var googleModels = []ModelInfo{
	{ID: "gemini-pro", DisplayName: "Gemini Pro", ContextWindow: 32768, SupportsStreaming: true, SupportsImages: false},
	{ID: "gemini-pro-vision", DisplayName: "Gemini Pro Vision", ContextWindow: 16384, SupportsStreaming: true, SupportsImages: true},
}

func (p *GoogleProvider) GetModelInfo(modelID string) (ModelInfo, bool) {
	return lookupModel(googleModels, modelID)
}

func (p *GoogleProvider) ListModels() []ModelInfo {
	return append([]ModelInfo(nil), googleModels...)
}
