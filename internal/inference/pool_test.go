package inference

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestSubmit_RunsWorkAndReturnsResult(t *testing.T) {
	p := New(Config{Workers: 2, QueueSize: 4}, zap.NewNop())
	p.Start()
	defer p.Stop()

	v, err := Submit(context.Background(), p, PriorityChat, func(ctx context.Context) (int, error) {
		return 42, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 42, v)
}

func TestSubmit_PropagatesFunctionError(t *testing.T) {
	p := New(Config{Workers: 1, QueueSize: 4}, zap.NewNop())
	p.Start()
	defer p.Stop()

	boom := assert.AnError
	_, err := Submit(context.Background(), p, PriorityChat, func(ctx context.Context) (int, error) {
		return 0, boom
	})
	assert.Equal(t, boom, err)
}

func TestSubmit_DrainsEmergencyBeforeLowerPriorities(t *testing.T) {
	// Single worker so ordering is deterministic: block it on a gate task,
	// queue background/chat/emergency work while it's blocked, then
	// release the gate and confirm emergency runs first.
	p := New(Config{Workers: 1, QueueSize: 8}, zap.NewNop())
	p.Start()
	defer p.Stop()

	gateRelease := make(chan struct{})
	gateEntered := make(chan struct{})
	go func() {
		_, _ = Submit(context.Background(), p, PriorityBackground, func(ctx context.Context) (struct{}, error) {
			close(gateEntered)
			<-gateRelease
			return struct{}{}, nil
		})
	}()
	<-gateEntered

	var mu sync.Mutex
	var order []string
	var wg sync.WaitGroup

	submit := func(priority Priority, label string) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = Submit(context.Background(), p, priority, func(ctx context.Context) (struct{}, error) {
				mu.Lock()
				order = append(order, label)
				mu.Unlock()
				return struct{}{}, nil
			})
		}()
	}

	submit(PriorityBackground, "background")
	submit(PriorityChat, "chat")
	time.Sleep(20 * time.Millisecond) // let both land in their queues before the gate opens
	submit(PriorityEmergency, "emergency")
	time.Sleep(20 * time.Millisecond)

	close(gateRelease)
	wg.Wait()

	require.NotEmpty(t, order)
	assert.Equal(t, "emergency", order[0])
}

func TestSubmit_ContextCancellationReturnsPromptly(t *testing.T) {
	p := New(Config{Workers: 1, QueueSize: 1}, zap.NewNop())
	// Do not Start the pool: nothing will ever drain the queue, so
	// cancellation is the only way Submit returns.
	defer p.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := Submit(ctx, p, PriorityChat, func(ctx context.Context) (int, error) {
		return 0, nil
	})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestAdmit_AllowsBelowHighWaterMarkAndRejectsAtIt(t *testing.T) {
	p := New(Config{Workers: 1, QueueSize: 4, HighWaterMark: 1}, zap.NewNop())
	// No Start(): the submission sits queued forever, holding Load at 1
	// for the Admit check below.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	defer p.Stop()

	go func() {
		_, _ = Submit(ctx, p, PriorityChat, func(ctx context.Context) (int, error) {
			return 0, nil
		})
	}()

	require.Eventually(t, func() bool { return p.Load() >= 1 }, time.Second, time.Millisecond)
	assert.False(t, p.Admit())
}

func TestAdmit_ReportsHeadroomWhenIdle(t *testing.T) {
	p := New(Config{Workers: 1, QueueSize: 4, HighWaterMark: 5}, zap.NewNop())
	assert.True(t, p.Admit())
}
