package events

import (
	"sync"
	"testing"
)

func TestBus_PublishReachesAllSubscribers(t *testing.T) {
	b := NewBus[PostChange]()

	var got []PostChange
	unsub1 := b.Subscribe(func(ev PostChange) { got = append(got, ev) })
	defer unsub1()
	unsub2 := b.Subscribe(func(ev PostChange) { got = append(got, ev) })
	defer unsub2()

	b.Publish(PostChange{Kind: Updated, PostID: 7, DateKey: "2025-03-15"})

	if len(got) != 2 {
		t.Fatalf("expected 2 deliveries, got %d", len(got))
	}
	if got[0].PostID != 7 || got[0].Kind != Updated {
		t.Fatalf("unexpected event: %+v", got[0])
	}
}

func TestBus_UnsubscribedHandlerMissesEvents(t *testing.T) {
	b := NewBus[PostChange]()

	calls := 0
	unsub := b.Subscribe(func(PostChange) { calls++ })
	b.Publish(PostChange{Kind: Created, PostID: 1})
	unsub()
	b.Publish(PostChange{Kind: Deleted, PostID: 1})

	if calls != 1 {
		t.Fatalf("expected 1 call, got %d", calls)
	}
	if b.Len() != 0 {
		t.Fatalf("expected empty bus, got %d subscribers", b.Len())
	}
}

func TestBus_NoReplayForLateSubscriber(t *testing.T) {
	b := NewBus[PostChange]()
	b.Publish(PostChange{Kind: Created, PostID: 1})

	calls := 0
	unsub := b.Subscribe(func(PostChange) { calls++ })
	defer unsub()

	if calls != 0 {
		t.Fatalf("late subscriber must not see past events, got %d calls", calls)
	}
}

func TestBus_HandlerMayUnsubscribeDuringDispatch(t *testing.T) {
	b := NewBus[int]()

	var unsub func()
	calls := 0
	unsub = b.Subscribe(func(int) {
		calls++
		unsub()
	})

	b.Publish(1)
	b.Publish(2)

	if calls != 1 {
		t.Fatalf("expected 1 call after self-unsubscribe, got %d", calls)
	}
}

func TestBus_ConcurrentPublishIsSafe(t *testing.T) {
	b := NewBus[int]()

	var mu sync.Mutex
	total := 0
	unsub := b.Subscribe(func(int) {
		mu.Lock()
		total++
		mu.Unlock()
	})
	defer unsub()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			b.Publish(1)
		}()
	}
	wg.Wait()

	if total != 20 {
		t.Fatalf("expected 20 deliveries, got %d", total)
	}
}

func TestBus_DispatchOrderSurvivesSubscriberChurn(t *testing.T) {
	b := NewBus[int]()

	// Register and drop many handlers so live ids are sparse and non-contiguous.
	for i := 0; i < 100; i++ {
		b.Subscribe(func(int) { t.Error("dropped handler invoked") })()
	}

	var order []string
	b.Subscribe(func(int) { order = append(order, "first") })
	unsub := b.Subscribe(func(int) { order = append(order, "dropped") })
	b.Subscribe(func(int) { order = append(order, "second") })
	unsub()

	b.Publish(1)

	if len(order) != 2 || order[0] != "first" || order[1] != "second" {
		t.Fatalf("dispatch order = %v, want [first second]", order)
	}
	if b.Len() != 2 {
		t.Fatalf("active subscribers = %d, want 2", b.Len())
	}
}
