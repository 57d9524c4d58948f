package queue

import (
	"container/heap"
	"time"

	"harvester/internal/task"
)

// delayedEntry is one task waiting in the delayed min-heap for its ready_at
// time to arrive. seq breaks ties between equal ready times in insertion
// order.
type delayedEntry struct {
	readyAt time.Time
	seq     int64
	task    task.Task
	index   int // maintained by container/heap
}

type delayedHeap []*delayedEntry

func (h delayedHeap) Len() int { return len(h) }

func (h delayedHeap) Less(i, j int) bool {
	if h[i].readyAt.Equal(h[j].readyAt) {
		return h[i].seq < h[j].seq
	}
	return h[i].readyAt.Before(h[j].readyAt)
}

func (h delayedHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *delayedHeap) Push(x interface{}) {
	e := x.(*delayedEntry)
	e.index = len(*h)
	*h = append(*h, e)
}

func (h *delayedHeap) Pop() interface{} {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	e.index = -1
	*h = old[:n-1]
	return e
}

// peekReady pops every entry whose readyAt has passed, up to max entries.
func (h *delayedHeap) peekReady(now time.Time, max int) []*delayedEntry {
	var out []*delayedEntry
	for h.Len() > 0 && len(out) < max {
		top := (*h)[0]
		if top.readyAt.After(now) {
			break
		}
		out = append(out, heap.Pop(h).(*delayedEntry))
	}
	return out
}
