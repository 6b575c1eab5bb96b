package deduper

import (
	"sync"
	"time"
)

// Deduper remembers keys for a TTL so repeated deliveries can be skipped.
type Deduper struct {
	mu   sync.Mutex
	data map[string]time.Time
	ttl  time.Duration
	now  func() time.Time

	done     chan struct{}
	stopOnce sync.Once
}

// New starts a deduper whose expired keys are swept every ttl.
func New(ttl time.Duration) *Deduper {
	d := &Deduper{
		data: make(map[string]time.Time),
		ttl:  ttl,
		now:  time.Now,
		done: make(chan struct{}),
	}
	go d.cleanupLoop()
	return d
}

// Seen records key and reports whether it was already recorded within the TTL.
func (d *Deduper) Seen(key string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	now := d.now()
	if t, ok := d.data[key]; ok && now.Sub(t) <= d.ttl {
		return true
	}
	d.data[key] = now
	return false
}

// Len is the number of keys currently remembered.
func (d *Deduper) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.data)
}

func (d *Deduper) sweep() {
	d.mu.Lock()
	defer d.mu.Unlock()
	now := d.now()
	for k, ts := range d.data {
		if now.Sub(ts) > d.ttl {
			delete(d.data, k)
		}
	}
}

func (d *Deduper) cleanupLoop() {
	ticker := time.NewTicker(d.ttl)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			d.sweep()
		case <-d.done:
			return
		}
	}
}

// Stop ends the sweeper. It is safe to call more than once.
func (d *Deduper) Stop() {
	d.stopOnce.Do(func() { close(d.done) })
}
