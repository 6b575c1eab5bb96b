package deduper

import (
	"sync"
	"testing"
	"time"
)

func TestSeen(t *testing.T) {
	d := New(time.Minute)
	defer d.Stop()

	if d.Seen("a") {
		t.Error("first sighting reported as seen")
	}
	if !d.Seen("a") {
		t.Error("second sighting not reported as seen")
	}
	if d.Seen("b") {
		t.Error("different key reported as seen")
	}
}

func TestSeen_ExpiresAfterTTL(t *testing.T) {
	now := time.Unix(1700000000, 0)
	d := &Deduper{
		data: make(map[string]time.Time),
		ttl:  time.Minute,
		now:  func() time.Time { return now },
	}

	d.Seen("a")
	now = now.Add(2 * time.Minute)
	if d.Seen("a") {
		t.Error("expired key reported as seen")
	}

	d.Seen("b")
	now = now.Add(2 * time.Minute)
	d.sweep()
	if d.Len() != 0 {
		t.Errorf("expected sweep to drop expired keys, %d left", d.Len())
	}
}

func TestSeen_Concurrent(t *testing.T) {
	d := New(time.Minute)
	defer d.Stop()

	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		fresh int
	)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if !d.Seen("same") {
				mu.Lock()
				fresh++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if fresh != 1 {
		t.Errorf("expected exactly one first sighting, got %d", fresh)
	}
}

func TestStop_Idempotent(t *testing.T) {
	d := New(time.Millisecond)
	d.Stop()
	d.Stop()
}
