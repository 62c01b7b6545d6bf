package llm

import "context"

// Provider defines the interface for LLM providers.
type Provider interface {
	// Complete sends a completion request and returns the response.
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)
	// Name returns the name of this provider.
	Name() string
}

// DeltaFunc receives streamed content fragments in order. Returning an error
// stops the stream.
type DeltaFunc func(delta string) error

// Streamer is implemented by providers that can stream a completion.
type Streamer interface {
	Stream(ctx context.Context, req CompletionRequest, onDelta DeltaFunc) (*CompletionResponse, error)
}

// Stream streams a completion from p. Providers without streaming support
// deliver the whole answer as a single delta.
func Stream(ctx context.Context, p Provider, req CompletionRequest, onDelta DeltaFunc) (*CompletionResponse, error) {
	if s, ok := p.(Streamer); ok {
		return s.Stream(ctx, req, onDelta)
	}
	resp, err := p.Complete(ctx, req)
	if err != nil {
		return nil, err
	}
	if resp.Content != "" {
		if err := onDelta(resp.Content); err != nil {
			return nil, err
		}
	}
	return resp, nil
}
