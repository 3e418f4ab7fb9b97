package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/BaSui01/biaslens/llm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func fastPolicy(maxRetries int) Policy {
	return Policy{
		MaxRetries:   maxRetries,
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		Multiplier:   2.0,
	}
}

func TestDo_Success(t *testing.T) {
	r := New(fastPolicy(3), zap.NewNop())

	calls := 0
	got, err := Do(context.Background(), r, func(ctx context.Context) (int, error) {
		calls++
		return 42, nil
	})

	require.NoError(t, err)
	assert.Equal(t, 42, got)
	assert.Equal(t, 1, calls)
}

func TestDo_RetriesTransientErrors(t *testing.T) {
	r := New(fastPolicy(3), zap.NewNop())

	calls := 0
	got, err := Do(context.Background(), r, func(ctx context.Context) (string, error) {
		calls++
		if calls < 3 {
			return "", llm.NewError(llm.KindNetwork, "p", "connection reset", nil)
		}
		return "ok", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "ok", got)
	assert.Equal(t, 3, calls)
}

func TestDo_StopsOnPermanentError(t *testing.T) {
	r := New(fastPolicy(3), zap.NewNop())

	calls := 0
	_, err := Do(context.Background(), r, func(ctx context.Context) (int, error) {
		calls++
		return 0, llm.NewError(llm.KindAuthentication, "p", "bad key", nil)
	})

	require.Error(t, err)
	assert.Equal(t, llm.KindAuthentication, llm.KindOf(err))
	assert.Equal(t, 1, calls)
}

func TestDo_ExhaustsRetries(t *testing.T) {
	var retried []int
	p := fastPolicy(2)
	p.OnRetry = func(attempt int, err error, delay time.Duration) {
		retried = append(retried, attempt)
	}
	r := New(p, zap.NewNop())

	calls := 0
	_, err := Do(context.Background(), r, func(ctx context.Context) (int, error) {
		calls++
		return 0, llm.NewError(llm.KindTimeout, "p", "slow", nil)
	})

	require.Error(t, err)
	assert.Equal(t, llm.KindTimeout, llm.KindOf(err))
	assert.Equal(t, 3, calls)
	assert.Equal(t, []int{1, 2}, retried)
}

func TestDo_ContextCancelledDuringBackoff(t *testing.T) {
	r := New(Policy{MaxRetries: 3, InitialDelay: time.Second, MaxDelay: time.Second}, zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())

	_, err := Do(ctx, r, func(ctx context.Context) (int, error) {
		cancel()
		return 0, llm.NewError(llm.KindNetwork, "p", "down", nil)
	})

	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestRetryer_Delay(t *testing.T) {
	r := New(Policy{
		MaxRetries:   5,
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     time.Second,
		Multiplier:   2.0,
	}, nil)

	tests := []struct {
		name    string
		attempt int
		err     error
		want    time.Duration
	}{
		{"first retry", 1, nil, 100 * time.Millisecond},
		{"second retry doubles", 2, nil, 200 * time.Millisecond},
		{"capped at max delay", 6, nil, time.Second},
		{"retry-after wins when larger", 1, &llm.Error{Kind: llm.KindRateLimit, RetryAfter: 500 * time.Millisecond}, 500 * time.Millisecond},
		{"retry-after capped", 1, &llm.Error{Kind: llm.KindRateLimit, RetryAfter: time.Minute}, time.Second},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, r.delay(tt.attempt, tt.err))
		})
	}
}

func TestNew_AppliesDefaults(t *testing.T) {
	r := New(Policy{MaxRetries: -1}, nil)
	p := r.Policy()
	assert.Equal(t, 0, p.MaxRetries)
	assert.Equal(t, 500*time.Millisecond, p.InitialDelay)
	assert.Equal(t, 10*time.Second, p.MaxDelay)
	assert.Equal(t, 2.0, p.Multiplier)
	assert.NotNil(t, p.ShouldRetry)
}
