package event

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPostDrainPreservesOrder(t *testing.T) {
	ch := NewChannel(4)
	for i := 0; i < 4; i++ {
		ch.Post(Event{Kind: KindSyscallComplete, TaskID: uint64(i)})
	}
	got := ch.Drain()
	assert.Len(t, got, 4)
	for i, e := range got {
		assert.Equal(t, uint64(i), e.TaskID)
	}
	assert.Empty(t, ch.Drain())
}

func TestOverflowAbsorbsExcessPosts(t *testing.T) {
	ch := NewChannel(2)
	for i := 0; i < 5; i++ {
		ch.Post(Event{TaskID: uint64(i)})
	}
	got := ch.Drain()
	assert.Len(t, got, 5)
	for i, e := range got {
		assert.Equal(t, uint64(i), e.TaskID)
	}
}

func TestConcurrentPostIsRaceFree(t *testing.T) {
	ch := NewChannel(8)
	var wg sync.WaitGroup
	const n = 100
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func(i int) {
			defer wg.Done()
			ch.Post(Event{TaskID: uint64(i)})
		}(i)
	}
	wg.Wait()
	assert.Len(t, ch.Drain(), n)
}
