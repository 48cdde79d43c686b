package backingpool

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubmitReturnsResult(t *testing.T) {
	p := New[int](4)
	r := p.Submit(func() (int, error) { return 42, nil })
	v, err := r.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 42, v)
}

func TestPoolBoundsConcurrency(t *testing.T) {
	const maxConcurrency = 2
	p := New[struct{}](maxConcurrency)

	var inFlight, maxSeen atomic.Int64
	release := make(chan struct{})
	for i := 0; i < 5; i++ {
		p.Submit(func() (struct{}, error) {
			n := inFlight.Add(1)
			for {
				old := maxSeen.Load()
				if n <= old || maxSeen.CompareAndSwap(old, n) {
					break
				}
			}
			<-release
			inFlight.Add(-1)
			return struct{}{}, nil
		})
	}
	time.Sleep(50 * time.Millisecond)
	assert.LessOrEqual(t, maxSeen.Load(), int64(maxConcurrency))
	close(release)
	p.Wait()
}

func TestWaitRespectsContextDeadline(t *testing.T) {
	p := New[int](1)
	block := make(chan struct{})
	r := p.Submit(func() (int, error) {
		<-block
		return 0, nil
	})
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := r.Wait(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	close(block)
	p.Wait()
}
