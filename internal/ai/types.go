package ai

// Role is the normalized message role shared by all vendors.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// ChatMessage is the vendor-agnostic projection of a persisted message.
type ChatMessage struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// ChatRequest is the normalized completion request handed to an adapter.
// Temperature and MaxTokens are optional; vendor defaults apply when nil.
type ChatRequest struct {
	Model       string        `json:"model"`
	Messages    []ChatMessage `json:"messages"`
	Temperature *float32      `json:"temperature,omitempty"`
	MaxTokens   *int          `json:"max_tokens,omitempty"`
	Stream      bool          `json:"stream"`
}

// ChatResponse is the normalized completion result. Content defaults to the
// empty string when the vendor returned no candidate.
type ChatResponse struct {
	Content      string  `json:"content"`
	Model        string  `json:"model"`
	TokensUsed   *int    `json:"tokens_used,omitempty"`
	FinishReason *string `json:"finish_reason,omitempty"`
}

// Chunk is one element of a streaming completion. The final chunk has Done
// set; no chunks follow it.
type Chunk struct {
	Content string `json:"content"`
	Done    bool   `json:"done"`
	Model   string `json:"model,omitempty"`
}

// ModelInfo describes a vendor model from the hand-maintained capability
// table inside each adapter. It is reference data, never fetched live.
type ModelInfo struct {
	ID                string `json:"id"`
	DisplayName       string `json:"display_name"`
	ContextWindow     int    `json:"context_window"`
	SupportsStreaming bool   `json:"supports_streaming"`
	SupportsImages    bool   `json:"supports_images"`
}
