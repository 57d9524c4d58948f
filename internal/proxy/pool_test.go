package proxy

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRecords(n int) []Record {
	recs := make([]Record, n)
	for i := 0; i < n; i++ {
		recs[i] = Record{Index: i, Host: "proxy.example", Port: 8000 + i}
	}
	return recs
}

func TestPool_AcquireReleaseSerializes(t *testing.T) {
	p := NewPool(testRecords(1))

	r1, err := p.Acquire(nil)
	require.NoError(t, err)
	assert.Equal(t, 0, r1.Index)
	assert.Equal(t, 1, p.InUseCount())

	acquired := make(chan Record, 1)
	go func() {
		r2, err := p.Acquire(nil)
		require.NoError(t, err)
		acquired <- r2
	}()

	select {
	case <-acquired:
		t.Fatal("second acquire should block while the only proxy is in use")
	case <-time.After(50 * time.Millisecond):
	}

	p.Release(0)

	select {
	case r2 := <-acquired:
		assert.Equal(t, 0, r2.Index)
	case <-time.After(time.Second):
		t.Fatal("acquire did not unblock after release")
	}
}

func TestPool_ExcludedIndicesAreSkipped(t *testing.T) {
	p := NewPool(testRecords(2))
	r1, err := p.Acquire(map[int]bool{0: true})
	require.NoError(t, err)
	assert.Equal(t, 1, r1.Index)
}

func TestPool_NeverDoubleAssignsUnderContention(t *testing.T) {
	p := NewPool(testRecords(4))
	var mu sync.Mutex
	held := map[int]int{}

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r, err := p.Acquire(nil)
			require.NoError(t, err)
			mu.Lock()
			held[r.Index]++
			count := held[r.Index]
			mu.Unlock()
			assert.Equal(t, 1, count, "index %d double-assigned", r.Index)
			time.Sleep(time.Millisecond)
			mu.Lock()
			held[r.Index]--
			mu.Unlock()
			p.Release(r.Index)
		}()
	}
	wg.Wait()
	assert.Equal(t, 0, p.InUseCount())
}
