package ai

import "context"

// Provider is one vendor adapter. Implementations translate the normalized
// request into the vendor wire format, perform a single authenticated call
// and normalize the response. No retries.
type Provider interface {
	Chat(ctx context.Context, req ChatRequest) (ChatResponse, error)
	GetModelInfo(modelID string) (ModelInfo, bool)
	ListModels() []ModelInfo
}

// StreamProvider is an optional interface. Providers may implement native
// streaming; both channels close when the stream ends, and the last chunk
// delivered has Done set.
type StreamProvider interface {
	StreamChat(ctx context.Context, req ChatRequest) (<-chan Chunk, <-chan error)
}

// singleChunkStream adapts a blocking Chat call for vendors without a native
// streaming path: one final chunk carrying the whole completion.
func singleChunkStream(ctx context.Context, p Provider, req ChatRequest) (<-chan Chunk, <-chan error) {
	chunks := make(chan Chunk, 1)
	errs := make(chan error, 1)
	go func() {
		defer close(chunks)
		defer close(errs)
		resp, err := p.Chat(ctx, req)
		if err != nil {
			errs <- err
			return
		}
		chunks <- Chunk{Content: resp.Content, Done: true, Model: resp.Model}
	}()
	return chunks, errs
}
