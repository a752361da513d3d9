package gate

import (
	"context"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalGateSerializesOneConversation(t *testing.T) {
	g := NewLocalGate()
	var (
		inside  atomic.Int32
		maxSeen atomic.Int32
		wg      sync.WaitGroup
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release, err := g.Acquire(context.Background(), "conv-1")
			if !assert.NoError(t, err) {
				return
			}
			n := inside.Add(1)
			if n > maxSeen.Load() {
				maxSeen.Store(n)
			}
			time.Sleep(time.Millisecond)
			inside.Add(-1)
			release()
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), maxSeen.Load())
	assert.Zero(t, g.Len(), "slots are dropped once unused")
}

func TestLocalGateDoesNotBlockOtherConversations(t *testing.T) {
	g := NewLocalGate()
	releaseA, err := g.Acquire(context.Background(), "conv-a")
	require.NoError(t, err)
	defer releaseA()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	releaseB, err := g.Acquire(ctx, "conv-b")
	require.NoError(t, err)
	releaseB()
}

func TestLocalGateGivesUpWithContext(t *testing.T) {
	g := NewLocalGate()
	release, err := g.Acquire(context.Background(), "conv-1")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = g.Acquire(ctx, "conv-1")
	assert.ErrorIs(t, err, ErrBusy)

	release()
	release()
	assert.Zero(t, g.Len())
}

func TestRedisGate(t *testing.T) {
	addr := os.Getenv("FIADO_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("set FIADO_TEST_REDIS_ADDR to run redis integration test")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { _ = client.Close() })

	g := NewRedisGate(client, 5*time.Second, zerolog.Nop())
	g.retries = 2
	g.backoff = 10 * time.Millisecond

	conv := "conv-it-" + time.Now().Format("150405.000000")
	release, err := g.Acquire(context.Background(), conv)
	require.NoError(t, err)

	_, err = g.Acquire(context.Background(), conv)
	assert.ErrorIs(t, err, ErrBusy)

	release()
	again, err := g.Acquire(context.Background(), conv)
	require.NoError(t, err)
	again()
}
