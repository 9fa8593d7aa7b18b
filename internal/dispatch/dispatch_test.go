// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Vouch Contributors

package dispatch_test

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/goleak"

	"github.com/nozz/vouch/internal/dispatch"
)

func TestDirect_RunsInline(t *testing.T) {
	ran := false
	dispatch.Direct{}.Dispatch(func() { ran = true })
	assert.True(t, ran)
}

func TestLoop_SerializesInOrder(t *testing.T) {
	defer goleak.VerifyNone(t)

	loop := dispatch.NewLoop(64)

	var mu sync.Mutex
	var order []int
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		i := i
		wg.Add(1)
		loop.Dispatch(func() {
			defer wg.Done()
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
		})
	}
	wg.Wait()
	loop.Close()

	assert.Len(t, order, 100)
	for i, v := range order {
		assert.Equal(t, i, v)
	}
}

func TestLoop_CloseDrainsQueuedTasks(t *testing.T) {
	defer goleak.VerifyNone(t)

	loop := dispatch.NewLoop(64)
	var count atomic.Int64
	for i := 0; i < 50; i++ {
		loop.Dispatch(func() { count.Add(1) })
	}
	loop.Close()

	assert.Equal(t, int64(50), count.Load())
}

func TestLoop_DispatchAfterCloseIsDropped(t *testing.T) {
	defer goleak.VerifyNone(t)

	loop := dispatch.NewLoop(8)
	loop.Close()
	loop.Dispatch(func() { t.Error("task ran after close") })
	loop.Close()
}

func TestPool_RunsEverything(t *testing.T) {
	defer goleak.VerifyNone(t)

	pool := dispatch.NewPool(4, 64)
	var count atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < 200; i++ {
		wg.Add(1)
		pool.Dispatch(func() {
			defer wg.Done()
			count.Add(1)
		})
	}
	wg.Wait()
	pool.Close()

	assert.Equal(t, int64(200), count.Load())
}

func TestPool_DispatchAfterCloseIsDropped(t *testing.T) {
	defer goleak.VerifyNone(t)

	pool := dispatch.NewPool(2, 8)
	pool.Close()
	pool.Dispatch(func() { t.Error("task ran after close") })
}

func TestPool_ZeroArgumentsGetDefaults(t *testing.T) {
	defer goleak.VerifyNone(t)

	pool := dispatch.NewPool(0, 0)
	var wg sync.WaitGroup
	wg.Add(1)
	pool.Dispatch(func() { wg.Done() })
	wg.Wait()
	pool.Close()
}
