package scheduler

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestAddEveryRejectsNonPositiveInterval(t *testing.T) {
	s := NewScheduler()
	defer s.Stop()

	if _, err := s.AddEvery(0, func() {}); err == nil {
		t.Error("expected error for zero interval")
	}
	if _, err := s.AddEvery(-time.Second, func() {}); err == nil {
		t.Error("expected error for negative interval")
	}
}

func TestAddEveryRunsAndRemoveCancels(t *testing.T) {
	s := NewScheduler()
	defer s.Stop()

	var ticks int64
	id, err := s.AddEvery(50*time.Millisecond, func() {
		atomic.AddInt64(&ticks, 1)
	})
	if err != nil {
		t.Fatalf("AddEvery failed: %v", err)
	}

	deadline := time.After(2 * time.Second)
	for atomic.LoadInt64(&ticks) == 0 {
		select {
		case <-deadline:
			t.Fatal("job never ran")
		case <-time.After(10 * time.Millisecond):
		}
	}

	s.Remove(id)
	after := atomic.LoadInt64(&ticks)
	time.Sleep(150 * time.Millisecond)
	if got := atomic.LoadInt64(&ticks); got > after+1 {
		t.Errorf("job kept running after removal: %d ticks after %d", got, after)
	}
}
