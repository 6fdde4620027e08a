// ABOUTME: Tests for backoff arithmetic and the context-aware sleep.

package llm

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRetryState_Advance_DoublesUpToCap(t *testing.T) {
	s := NewRetryState()
	assert.Equal(t, 0, s.Attempt)
	assert.Equal(t, 500*time.Millisecond, s.Delay)

	want := []time.Duration{
		time.Second,
		2 * time.Second,
		4 * time.Second,
		8 * time.Second,
		10 * time.Second,
		10 * time.Second,
	}
	for i, d := range want {
		s = s.Advance()
		assert.Equal(t, i+1, s.Attempt)
		assert.Equal(t, d, s.Delay, "delay after %d advances", i+1)
	}
}

func TestDefaultJitter_StaysNearBase(t *testing.T) {
	base := time.Second
	for i := 0; i < 200; i++ {
		d := defaultJitter(base)
		assert.GreaterOrEqual(t, d, base/2)
		assert.Less(t, d, base+base/2)
	}
}

func TestDefaultJitter_ZeroIsZero(t *testing.T) {
	assert.Equal(t, time.Duration(0), defaultJitter(0))
}

func TestSleepCtx_CompletesQuietly(t *testing.T) {
	err := sleepCtx(context.Background(), time.Millisecond)
	assert.NoError(t, err)
}

func TestSleepCtx_ReturnsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	err := sleepCtx(ctx, time.Minute)

	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Less(t, time.Since(start), 5*time.Second)
}
