package ai

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// OllamaProvider talks to a local Ollama daemon. The daemon itself is
// unauthenticated; a stored credential still gates the vendor like the
// hosted ones, but its value is never sent.
type OllamaProvider struct {
	baseURL string
	client  *http.Client
}

func NewOllamaProvider(baseURL string, timeout time.Duration) *OllamaProvider {
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	return &OllamaProvider{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

type ollamaMsg struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ollamaOptions struct {
	Temperature *float32 `json:"temperature,omitempty"`
	NumPredict  *int     `json:"num_predict,omitempty"`
}

type ollamaChatReq struct {
	Model    string         `json:"model"`
	Messages []ollamaMsg    `json:"messages"`
	Stream   bool           `json:"stream"`
	Options  *ollamaOptions `json:"options,omitempty"`
}

type ollamaChatResp struct {
	Message         ollamaMsg `json:"message"`
	Done            bool      `json:"done"`
	DoneReason      string    `json:"done_reason,omitempty"`
	PromptEvalCount int       `json:"prompt_eval_count,omitempty"`
	EvalCount       int       `json:"eval_count,omitempty"`
	Error           string    `json:"error,omitempty"`
}

func (p *OllamaProvider) buildReq(req ChatRequest, stream bool) ollamaChatReq {
	msgs := make([]ollamaMsg, 0, len(req.Messages))
	for _, m := range req.Messages {
		msgs = append(msgs, ollamaMsg{Role: string(m.Role), Content: m.Content})
	}
	out := ollamaChatReq{Model: req.Model, Messages: msgs, Stream: stream}
	if req.Temperature != nil || req.MaxTokens != nil {
		out.Options = &ollamaOptions{Temperature: req.Temperature, NumPredict: req.MaxTokens}
	}
	return out
}

func (p *OllamaProvider) Chat(ctx context.Context, req ChatRequest) (ChatResponse, error) {
	body, err := json.Marshal(p.buildReq(req, false))
	if err != nil {
		return ChatResponse{}, providerErr(VendorOllama, 0, err)
	}

	url := fmt.Sprintf("%s/api/chat", p.baseURL)
	hr, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return ChatResponse{}, providerErr(VendorOllama, 0, err)
	}
	hr.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(hr)
	if err != nil {
		return ChatResponse{}, providerErr(VendorOllama, 0, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return ChatResponse{}, providerErr(VendorOllama, resp.StatusCode, errors.New(readErrBody(resp.Body)))
	}

	var decoded ollamaChatResp
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return ChatResponse{}, providerErr(VendorOllama, 0, err)
	}
	if decoded.Error != "" {
		return ChatResponse{}, providerErr(VendorOllama, 0, errors.New(decoded.Error))
	}

	out := ChatResponse{Content: decoded.Message.Content, Model: req.Model}
	if decoded.DoneReason != "" {
		r := decoded.DoneReason
		out.FinishReason = &r
	}
	if total := decoded.PromptEvalCount + decoded.EvalCount; total > 0 {
		out.TokensUsed = &total
	}
	return out, nil
}

// StreamChat streams NDJSON lines and forwards content deltas.
func (p *OllamaProvider) StreamChat(ctx context.Context, req ChatRequest) (<-chan Chunk, <-chan error) {
	chunks := make(chan Chunk, 16)
	errs := make(chan error, 1)

	go func() {
		defer close(chunks)
		defer close(errs)

		body, err := json.Marshal(p.buildReq(req, true))
		if err != nil {
			errs <- providerErr(VendorOllama, 0, err)
			return
		}

		url := fmt.Sprintf("%s/api/chat", p.baseURL)
		hr, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			errs <- providerErr(VendorOllama, 0, err)
			return
		}
		hr.Header.Set("Content-Type", "application/json")

		resp, err := p.client.Do(hr)
		if err != nil {
			errs <- providerErr(VendorOllama, 0, err)
			return
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			errs <- providerErr(VendorOllama, resp.StatusCode, errors.New(readErrBody(resp.Body)))
			return
		}

		sc := bufio.NewScanner(resp.Body)
		buf := make([]byte, 0, 64*1024)
		sc.Buffer(buf, 2*1024*1024)

		for sc.Scan() {
			line := sc.Bytes()
			if len(line) == 0 {
				continue
			}

			var decoded ollamaChatResp
			if err := json.Unmarshal(line, &decoded); err != nil {
				errs <- providerErr(VendorOllama, 0, err)
				return
			}
			if decoded.Error != "" {
				errs <- providerErr(VendorOllama, 0, errors.New(decoded.Error))
				return
			}

			if decoded.Message.Content != "" {
				chunks <- Chunk{Content: decoded.Message.Content, Model: req.Model}
			}
			if decoded.Done {
				chunks <- Chunk{Done: true, Model: req.Model}
				return
			}
		}
		if err := sc.Err(); err != nil {
			errs <- providerErr(VendorOllama, 0, err)
		}
	}()

	return chunks, errs
}

var ollamaModels = []ModelInfo{
	{ID: "llama3:latest", DisplayName: "Llama 3", ContextWindow: 8192, SupportsStreaming: true, SupportsImages: false},
	{ID: "mistral:latest", DisplayName: "Mistral", ContextWindow: 32768, SupportsStreaming: true, SupportsImages: false},
	{ID: "llava:latest", DisplayName: "LLaVA", ContextWindow: 4096, SupportsStreaming: true, SupportsImages: true},
}

func (p *OllamaProvider) GetModelInfo(modelID string) (ModelInfo, bool) {
	return lookupModel(ollamaModels, modelID)
}

func (p *OllamaProvider) ListModels() []ModelInfo {
	return append([]ModelInfo(nil), ollamaModels...)
}
