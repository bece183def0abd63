package ai

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"
)

// chatCompletionsClient speaks the OpenAI chat-completions wire format.
// OpenAI and DeepSeek share it; only base URL, key and capability table
// differ.
type chatCompletionsClient struct {
	vendor  Vendor
	baseURL string
	apiKey  string
	client  *http.Client
}

type oaiMsg struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type oaiChatReq struct {
	Model       string   `json:"model"`
	Messages    []oaiMsg `json:"messages"`
	Temperature *float32 `json:"temperature,omitempty"`
	MaxTokens   *int     `json:"max_tokens,omitempty"`
	Stream      bool     `json:"stream"`
}

type oaiChatResp struct {
	Model   string `json:"model"`
	Choices []struct {
		Message      oaiMsg  `json:"message"`
		FinishReason *string `json:"finish_reason"`
	} `json:"choices"`
	Usage *struct {
		TotalTokens int `json:"total_tokens"`
	} `json:"usage"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

type oaiStreamResp struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func (c *chatCompletionsClient) newRequest(ctx context.Context, req ChatRequest, stream bool) (*http.Request, error) {
	msgs := make([]oaiMsg, 0, len(req.Messages))
	for _, m := range req.Messages {
		msgs = append(msgs, oaiMsg{Role: string(m.Role), Content: m.Content})
	}
	body, err := json.Marshal(oaiChatReq{
		Model:       req.Model,
		Messages:    msgs,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
		Stream:      stream,
	})
	if err != nil {
		return nil, err
	}
	url := strings.TrimRight(c.baseURL, "/") + "/chat/completions"
	hr, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	hr.Header.Set("Content-Type", "application/json")
	hr.Header.Set("Authorization", "Bearer "+c.apiKey)
	return hr, nil
}

func (c *chatCompletionsClient) chat(ctx context.Context, req ChatRequest) (ChatResponse, error) {
	if strings.TrimSpace(c.apiKey) == "" {
		return ChatResponse{}, providerErr(c.vendor, 0, errors.New("api key is required"))
	}

	hr, err := c.newRequest(ctx, req, false)
	if err != nil {
		return ChatResponse{}, providerErr(c.vendor, 0, err)
	}

	resp, err := c.client.Do(hr)
	if err != nil {
		return ChatResponse{}, providerErr(c.vendor, 0, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return ChatResponse{}, providerErr(c.vendor, resp.StatusCode, errors.New(readErrBody(resp.Body)))
	}

	var decoded oaiChatResp
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return ChatResponse{}, providerErr(c.vendor, 0, err)
	}
	if decoded.Error != nil && decoded.Error.Message != "" {
		return ChatResponse{}, providerErr(c.vendor, 0, errors.New(decoded.Error.Message))
	}

	out := ChatResponse{Model: decoded.Model}
	if out.Model == "" {
		out.Model = req.Model
	}
	if len(decoded.Choices) > 0 {
		out.Content = decoded.Choices[0].Message.Content
		out.FinishReason = decoded.Choices[0].FinishReason
	}
	if decoded.Usage != nil {
		t := decoded.Usage.TotalTokens
		out.TokensUsed = &t
	}
	return out, nil
}

// streamChat consumes the vendor SSE stream and forwards content deltas.
func (c *chatCompletionsClient) streamChat(ctx context.Context, req ChatRequest) (<-chan Chunk, <-chan error) {
	chunks := make(chan Chunk, 16)
	errs := make(chan error, 1)

	go func() {
		defer close(chunks)
		defer close(errs)

		if strings.TrimSpace(c.apiKey) == "" {
			errs <- providerErr(c.vendor, 0, errors.New("api key is required"))
			return
		}

		hr, err := c.newRequest(ctx, req, true)
		if err != nil {
			errs <- providerErr(c.vendor, 0, err)
			return
		}

		resp, err := c.client.Do(hr)
		if err != nil {
			errs <- providerErr(c.vendor, 0, err)
			return
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			errs <- providerErr(c.vendor, resp.StatusCode, errors.New(readErrBody(resp.Body)))
			return
		}

		sc := bufio.NewScanner(resp.Body)
		buf := make([]byte, 0, 64*1024)
		sc.Buffer(buf, 2*1024*1024)

		for sc.Scan() {
			line := strings.TrimSpace(sc.Text())
			if line == "" || !strings.HasPrefix(line, "data:") {
				continue
			}
			data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
			if data == "[DONE]" {
				chunks <- Chunk{Done: true, Model: req.Model}
				return
			}
			var decoded oaiStreamResp
			if err := json.Unmarshal([]byte(data), &decoded); err != nil {
				errs <- providerErr(c.vendor, 0, err)
				return
			}
			if decoded.Error != nil && decoded.Error.Message != "" {
				errs <- providerErr(c.vendor, 0, errors.New(decoded.Error.Message))
				return
			}
			if len(decoded.Choices) == 0 {
				continue
			}
			if delta := decoded.Choices[0].Delta.Content; delta != "" {
				chunks <- Chunk{Content: delta, Model: req.Model}
			}
		}
		if err := sc.Err(); err != nil {
			errs <- providerErr(c.vendor, 0, err)
			return
		}
		chunks <- Chunk{Done: true, Model: req.Model}
	}()

	return chunks, errs
}

func readErrBody(r io.Reader) string {
	body, _ := io.ReadAll(io.LimitReader(r, 4*1024))
	msg := strings.TrimSpace(string(body))
	if msg == "" {
		msg = "empty error body"
	}
	return msg
}

// OpenAIProvider talks to api.openai.com.
type OpenAIProvider struct {
	cc chatCompletionsClient
}

func NewOpenAIProvider(apiKey string, timeout time.Duration) *OpenAIProvider {
	return &OpenAIProvider{cc: chatCompletionsClient{
		vendor:  VendorOpenAI,
		baseURL: "https://api.openai.com/v1",
		apiKey:  apiKey,
		client:  &http.Client{Timeout: timeout},
	}}
}

func (p *OpenAIProvider) Chat(ctx context.Context, req ChatRequest) (ChatResponse, error) {
	return p.cc.chat(ctx, req)
}

func (p *OpenAIProvider) StreamChat(ctx context.Context, req ChatRequest) (<-chan Chunk, <-chan error) {
	return p.cc.streamChat(ctx, req)
}

var openAIModels = []ModelInfo{
	{ID: "gpt-4", DisplayName: "GPT-4", ContextWindow: 8192, SupportsStreaming: true, SupportsImages: false},
	{ID: "gpt-4o", DisplayName: "GPT-4o", ContextWindow: 128000, SupportsStreaming: true, SupportsImages: true},
	{ID: "gpt-3.5-turbo", DisplayName: "GPT-3.5 Turbo", ContextWindow: 4096, SupportsStreaming: true, SupportsImages: false},
}

func (p *OpenAIProvider) GetModelInfo(modelID string) (ModelInfo, bool) {
	return lookupModel(openAIModels, modelID)
}

func (p *OpenAIProvider) ListModels() []ModelInfo {
	return append([]ModelInfo(nil), openAIModels...)
}

func lookupModel(table []ModelInfo, id string) (ModelInfo, bool) {
	for _, m := range table {
		if m.ID == id {
			return m, true
		}
	}
	return ModelInfo{}, false
}
