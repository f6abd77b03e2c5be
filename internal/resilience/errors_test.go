package resilience

import (
	"errors"
	"fmt"
	"net"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsTransient(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"explicit", NewTransientError(errors.New("overloaded"), 529), true},
		{"wrapped explicit", fmt.Errorf("classify: %w", NewTransientError(errors.New("rate limited"), 429)), true},
		{"plain error", errors.New("invalid api key"), false},
		{"connection reset", fmt.Errorf("write tcp: %w", syscall.ECONNRESET), true},
		{"connection refused", fmt.Errorf("dial tcp: %w", syscall.ECONNREFUSED), true},
		{"network timeout", &net.DNSError{IsTimeout: true, Err: "timeout"}, true},
		{"tls timeout text", errors.New("net/http: TLS handshake timeout"), true},
		{"broken pipe text", errors.New("write: broken pipe"), true},
		{"low confidence", &LowConfidenceError{Confidence: 0.2, Threshold: 0.6}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, IsTransient(tt.err))
		})
	}
}

func TestIsTransientHTTPStatus(t *testing.T) {
	t.Parallel()

	for _, code := range []int{408, 429, 500, 502, 503, 504, 529} {
		assert.True(t, IsTransientHTTPStatus(code), "HTTP %d", code)
	}
	for _, code := range []int{200, 400, 401, 403, 404, 413, 422} {
		assert.False(t, IsTransientHTTPStatus(code), "HTTP %d", code)
	}
}

func TestTransientError_Unwrap(t *testing.T) {
	t.Parallel()

	inner := errors.New("upstream 503")
	te := NewTransientError(inner, 503)

	assert.ErrorIs(t, te, inner)
	assert.Equal(t, 503, te.StatusCode)
	assert.Equal(t, "upstream 503", te.Error())
}

func TestLowConfidenceError(t *testing.T) {
	t.Parallel()

	err := &LowConfidenceError{Confidence: 0.42, Threshold: 0.6}
	assert.Equal(t, "confidence 0.42 below threshold 0.60", err.Error())
}

func TestFromStatus(t *testing.T) {
	t.Parallel()

	base := errors.New("overloaded_error")
	err := FromStatus(base, StatusOverloaded)
	var te *TransientError
	assert.ErrorAs(t, err, &te)
	assert.Equal(t, StatusOverloaded, te.StatusCode)
	assert.ErrorIs(t, err, base)

	assert.Same(t, base, FromStatus(base, 400))
	assert.NoError(t, FromStatus(nil, 503))
}
