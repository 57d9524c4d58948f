// Package proxy manages the fixed pool of upstream proxies workers rotate
// through. Exactly one worker may hold a given proxy index at a time;
// callers that find the pool fully checked out block until one frees up
// rather than sharing an index.
package proxy

import (
	"fmt"
	"sync"
)

// Record describes one configured upstream proxy.
type Record struct {
	Index    int
	Host     string
	Port     int
	Username string // empty in whitelist auth mode
	Password string // empty in whitelist auth mode
}

func (r Record) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// Pool serializes access to a fixed set of Records over their lifetime.
type Pool struct {
	mu     sync.Mutex
	cond   *sync.Cond
	all    []Record
	inUse  map[int]bool
	closed bool
}

// NewPool builds a pool from the configured records. Index fields are
// assigned positionally if not already set.
func NewPool(records []Record) *Pool {
	p := &Pool{
		all:   append([]Record(nil), records...),
		inUse: make(map[int]bool, len(records)),
	}
	for i := range p.all {
		if p.all[i].Index == 0 && i != 0 {
			p.all[i].Index = i
		}
	}
	p.cond = sync.NewCond(&p.mu)
	return p
}

// Acquire blocks until a proxy index not present in excluded is free, marks
// it in-use, and returns it. excluded lets a worker avoid re-acquiring a
// proxy it just rotated away from on failure.
func (p *Pool) Acquire(excluded map[int]bool) (Record, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for {
		if p.closed {
			return Record{}, fmt.Errorf("proxy: pool closed")
		}
		for _, rec := range p.all {
			if p.inUse[rec.Index] {
				continue
			}
			if excluded != nil && excluded[rec.Index] {
				continue
			}
			p.inUse[rec.Index] = true
			return rec, nil
		}
		p.cond.Wait()
	}
}

// Release returns a proxy index to the free set and wakes any blocked
// acquirers.
func (p *Pool) Release(idx int) {
	p.mu.Lock()
	delete(p.inUse, idx)
	p.mu.Unlock()
	p.cond.Broadcast()
}

// InUseCount reports how many proxies are currently checked out, for
// metrics/backpressure reporting.
func (p *Pool) InUseCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.inUse)
}

// Size returns the total number of configured proxies.
func (p *Pool) Size() int {
	return len(p.all)
}

// Close unblocks any waiting Acquire callers with an error. Used during
// shutdown so stuck workers don't hang a drain.
func (p *Pool) Close() {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	p.cond.Broadcast()
}
