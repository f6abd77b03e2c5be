package inference

import (
	"context"
	"encoding/json"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/sells-group/ticket-workflow/internal/model"
)

type rateLimited struct {
	next    Gateway
	limiter *rate.Limiter
}

// WithRateLimit throttles calls to next with a token bucket. A nil limiter
// returns next unchanged.
func WithRateLimit(next Gateway, limiter *rate.Limiter) Gateway {
	if limiter == nil {
		return next
	}
	return &rateLimited{next: next, limiter: limiter}
}

// NewLimiter builds a limiter from a per-second rate and burst. A
// non-positive rate disables limiting.
func NewLimiter(perSecond float64, burst int) *rate.Limiter {
	if perSecond <= 0 {
		return nil
	}
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(perSecond), burst)
}

func (r *rateLimited) Call(ctx context.Context, req Request) (json.RawMessage, model.TokenUsage, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, model.TokenUsage{}, eris.Wrap(err, "inference: rate limit wait")
	}
	return r.next.Call(ctx, req)
}
