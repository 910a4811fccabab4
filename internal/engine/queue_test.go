package engine

import (
	"sync"
	"testing"
	"time"

	"helios/internal/domain"
	"helios/internal/event"
)

func signalEvent(t *testing.T, symbol string) event.Event {
	t.Helper()
	ev, err := event.NewSignalEvent(time.Now(), domain.Signal{StrategyID: "s", Symbol: symbol, Value: 1})
	if err != nil {
		t.Fatalf("NewSignalEvent: %v", err)
	}
	return ev
}

func TestQueueFIFO(t *testing.T) {
	q := newQueue()
	q.push(signalEvent(t, "A"))
	q.push(signalEvent(t, "B"))
	q.push(signalEvent(t, "C"))

	want := []string{"A", "B", "C"}
	for _, sym := range want {
		ev, ok := q.pop()
		if !ok {
			t.Fatal("pop returned false with events queued")
		}
		if ev.Signal.Symbol != sym {
			t.Errorf("popped %q, want %q", ev.Signal.Symbol, sym)
		}
	}
	if _, ok := q.pop(); ok {
		t.Error("pop returned true on empty queue")
	}
}

func TestQueuePopEmpty(t *testing.T) {
	q := newQueue()
	if _, ok := q.pop(); ok {
		t.Error("pop on a fresh queue returned true")
	}
	if q.len() != 0 {
		t.Errorf("len = %d, want 0", q.len())
	}
}

func TestQueueConcurrentPush(t *testing.T) {
	q := newQueue()
	ev := signalEvent(t, "X")
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				q.push(ev)
			}
		}()
	}
	wg.Wait()

	if q.len() != 1000 {
		t.Errorf("len = %d after concurrent pushes, want 1000", q.len())
	}
}
