package openalex

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRateLimiter(t *testing.T) {
	t.Run("allows requests within the burst", func(t *testing.T) {
		rl := NewRateLimiter(10, 5)
		require.NotNil(t, rl)

		for i := 0; i < 5; i++ {
			assert.True(t, rl.Allow(), "request %d should fit in the burst", i+1)
		}
		assert.False(t, rl.Allow())
	})

	t.Run("fractional rate", func(t *testing.T) {
		rl := NewRateLimiter(0.5, 1)
		assert.True(t, rl.Allow())
		assert.False(t, rl.Allow())
	})
}

func TestRateLimiter_Wait(t *testing.T) {
	t.Run("burst requests are nearly instant", func(t *testing.T) {
		rl := NewRateLimiter(100, 5)

		start := time.Now()
		for i := 0; i < 5; i++ {
			require.NoError(t, rl.Wait(context.Background()))
		}
		assert.Less(t, time.Since(start), 50*time.Millisecond)
	})

	t.Run("waits after the burst is exhausted", func(t *testing.T) {
		rl := NewRateLimiter(10, 1)
		require.NoError(t, rl.Wait(context.Background()))

		start := time.Now()
		require.NoError(t, rl.Wait(context.Background()))
		assert.GreaterOrEqual(t, time.Since(start), 90*time.Millisecond)
	})

	t.Run("respects context deadline", func(t *testing.T) {
		rl := NewRateLimiter(1, 1)
		assert.True(t, rl.Allow())

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
		defer cancel()

		err := rl.Wait(ctx)
		require.Error(t, err)
	})
}

func TestRateLimiter_SetRate(t *testing.T) {
	rl := NewRateLimiter(1, 1)
	assert.True(t, rl.Allow())
	assert.False(t, rl.Allow())

	rl.SetRate(1000)
	time.Sleep(10 * time.Millisecond)
	assert.True(t, rl.Allow())
}

func TestRateLimiter_Tokens(t *testing.T) {
	rl := NewRateLimiter(10, 10)
	before := rl.Tokens()
	assert.True(t, rl.Allow())
	assert.Less(t, rl.Tokens(), before)
}
