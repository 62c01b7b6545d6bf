package llm

import (
	"context"
	"sync"
	"time"
)

// RateLimitedProvider spaces chat requests to at most rpm per minute. Unused
// capacity accumulates up to one minute's worth.
type RateLimitedProvider struct {
	provider Provider
	rpm      float64

	mu       sync.Mutex
	credit   float64
	lastSeen time.Time
}

// NewRateLimitedProvider wraps provider. A non-positive rpm disables limiting
// and returns provider unchanged.
func NewRateLimitedProvider(provider Provider, rpm int) Provider {
	if rpm <= 0 {
		return provider
	}
	return &RateLimitedProvider{
		provider: provider,
		rpm:      float64(rpm),
		credit:   float64(rpm),
		lastSeen: time.Now(),
	}
}

func (r *RateLimitedProvider) Name() string { return r.provider.Name() }

func (r *RateLimitedProvider) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	if err := r.acquire(ctx); err != nil {
		return nil, err
	}
	return r.provider.Complete(ctx, req)
}

// Stream counts as one request however many deltas it yields.
func (r *RateLimitedProvider) Stream(ctx context.Context, req CompletionRequest, onDelta DeltaFunc) (*CompletionResponse, error) {
	if err := r.acquire(ctx); err != nil {
		return nil, err
	}
	return Stream(ctx, r.provider, req, onDelta)
}

// acquire blocks until one request of credit is available or ctx ends.
func (r *RateLimitedProvider) acquire(ctx context.Context) error {
	for {
		delay := r.reserve()
		if delay == 0 {
			return nil
		}
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// reserve takes one credit and returns zero, or returns how long until the
// next credit accrues.
func (r *RateLimitedProvider) reserve() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	r.credit += now.Sub(r.lastSeen).Minutes() * r.rpm
	if r.credit > r.rpm {
		r.credit = r.rpm
	}
	r.lastSeen = now

	if r.credit >= 1 {
		r.credit--
		return 0
	}
	missing := (1 - r.credit) / r.rpm
	return time.Duration(missing * float64(time.Minute))
}
