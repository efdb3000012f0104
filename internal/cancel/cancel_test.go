package cancel

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemory_ResetRequestRead(t *testing.T) {
	ctx := context.Background()
	bus := NewMemory()

	assert.False(t, bus.IsCancelRequested(ctx, "topic-1"))

	require.NoError(t, bus.RequestCancel(ctx, "topic-1"))
	assert.True(t, bus.IsCancelRequested(ctx, "topic-1"))
	assert.False(t, bus.IsCancelRequested(ctx, "topic-2"), "surfaces are independent")

	require.NoError(t, bus.Reset(ctx, "topic-1"))
	assert.False(t, bus.IsCancelRequested(ctx, "topic-1"))
}

func TestToken_ObservesRequestBeforeNextPoll(t *testing.T) {
	ctx := context.Background()
	bus := NewMemory()
	tok := NewToken(ctx, bus, "s")

	assert.Equal(t, "s", tok.Surface())
	assert.False(t, tok.IsCancelRequested())
	require.NoError(t, bus.RequestCancel(ctx, "s"))
	assert.True(t, tok.IsCancelRequested())
}

func TestToken_SurvivesCallerContextCancel(t *testing.T) {
	ctx, cancelFn := context.WithCancel(context.Background())
	bus := NewMemory()
	tok := NewToken(ctx, bus, "s")
	cancelFn()

	require.NoError(t, bus.RequestCancel(context.Background(), "s"))
	assert.True(t, tok.IsCancelRequested())
}

func TestToken_ZeroValue(t *testing.T) {
	var tok Token
	assert.False(t, tok.IsCancelRequested())
}

func TestMemory_ConcurrentUse(t *testing.T) {
	ctx := context.Background()
	bus := NewMemory()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_ = bus.RequestCancel(ctx, "s")
		}()
		go func() {
			defer wg.Done()
			_ = bus.IsCancelRequested(ctx, "s")
		}()
	}
	wg.Wait()
	assert.True(t, bus.IsCancelRequested(ctx, "s"))
}
