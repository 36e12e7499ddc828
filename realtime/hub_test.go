package realtime

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/sirupsen/logrus/hooks/test"

	"kanban-api/domain"
)

type stubSubscriber struct {
	id   string
	fail bool

	mu       sync.Mutex
	received [][]byte
}

func (s *stubSubscriber) ID() string { return s.id }

func (s *stubSubscriber) Send(payload []byte) error {
	if s.fail {
		return errors.New("simulated transport fault")
	}
	s.mu.Lock()
	s.received = append(s.received, payload)
	s.mu.Unlock()
	return nil
}

func (s *stubSubscriber) payloads() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.received))
	for i, p := range s.received {
		out[i] = string(p)
	}
	return out
}

func newTestHub() *Hub {
	logger, _ := test.NewNullLogger()
	return NewHub(logger)
}

func TestHubPublishReachesAllRoomMembers(t *testing.T) {
	hub := newTestHub()
	room := domain.BoardRoom("b1")

	a := &stubSubscriber{id: "a"}
	b := &stubSubscriber{id: "b"}
	hub.Subscribe(room, a)
	hub.Subscribe(room, b)

	hub.Publish(room, domain.NewTaskMovedEvent("t1"))

	want := `{"type":"task_moved","task_id":"t1"}`
	for _, sub := range []*stubSubscriber{a, b} {
		got := sub.payloads()
		if len(got) != 1 || got[0] != want {
			t.Fatalf("subscriber %s got %v, want [%s]", sub.id, got, want)
		}
	}
}

func TestHubPublishDoesNotCrossRooms(t *testing.T) {
	hub := newTestHub()
	a := &stubSubscriber{id: "a"}
	b := &stubSubscriber{id: "b"}
	hub.Subscribe(domain.BoardRoom("b1"), a)
	hub.Subscribe(domain.BoardRoom("b2"), b)

	hub.Publish(domain.BoardRoom("b1"), domain.NewTaskMovedEvent("t1"))

	if n := len(b.payloads()); n != 0 {
		t.Fatalf("expected no delivery to other room, got %d", n)
	}
}

func TestHubSubscribeIsIdempotent(t *testing.T) {
	hub := newTestHub()
	room := domain.BoardRoom("b1")
	a := &stubSubscriber{id: "a"}

	hub.Subscribe(room, a)
	hub.Subscribe(room, a)

	hub.Publish(room, domain.NewTaskMovedEvent("t1"))

	if got := a.payloads(); len(got) != 1 {
		t.Fatalf("expected exactly one delivery, got %d", len(got))
	}
}

func TestHubFIFOPerRoom(t *testing.T) {
	hub := newTestHub()
	room := domain.BoardRoom("b1")
	a := &stubSubscriber{id: "a"}
	hub.Subscribe(room, a)

	const n = 50
	for i := 0; i < n; i++ {
		hub.Publish(room, domain.NewTaskMovedEvent(fmt.Sprintf("t%d", i)))
	}

	got := a.payloads()
	if len(got) != n {
		t.Fatalf("expected %d deliveries, got %d", n, len(got))
	}
	for i, p := range got {
		want := fmt.Sprintf(`{"type":"task_moved","task_id":"t%d"}`, i)
		if p != want {
			t.Fatalf("delivery %d out of order: got %s, want %s", i, p, want)
		}
	}
}

func TestHubIsolatesFailedSubscriber(t *testing.T) {
	hub := newTestHub()
	room := domain.BoardRoom("b1")
	broken := &stubSubscriber{id: "broken", fail: true}
	healthy := &stubSubscriber{id: "healthy"}
	hub.Subscribe(room, broken)
	hub.Subscribe(room, healthy)

	hub.Publish(room, domain.NewTaskUnlockedEvent("t1"))

	if got := healthy.payloads(); len(got) != 1 {
		t.Fatalf("healthy subscriber should still receive the event, got %v", got)
	}
}

func TestHubLateSubscriberReceivesNothing(t *testing.T) {
	hub := newTestHub()
	room := domain.BoardRoom("b1")

	hub.Publish(room, domain.NewTaskMovedEvent("t1"))

	late := &stubSubscriber{id: "late"}
	hub.Subscribe(room, late)
	if got := late.payloads(); len(got) != 0 {
		t.Fatalf("no replay expected, got %v", got)
	}
}

func TestHubReclaimsEmptyRooms(t *testing.T) {
	hub := newTestHub()
	room := domain.UserRoom("u1")
	a := &stubSubscriber{id: "a"}

	hub.Subscribe(room, a)
	if hub.RoomSize(room) != 1 {
		t.Fatalf("expected room size 1")
	}
	hub.Unsubscribe(room, a)
	if hub.RoomSize(room) != 0 {
		t.Fatalf("expected empty room after unsubscribe")
	}
	if _, ok := hub.rooms[room]; ok {
		t.Fatalf("empty room entry should be reclaimed")
	}
}

func TestHubConcurrentPublishAndMembership(t *testing.T) {
	hub := newTestHub()
	room := domain.BoardRoom("b1")
	a := &stubSubscriber{id: "a"}
	hub.Subscribe(room, a)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			sub := &stubSubscriber{id: fmt.Sprintf("s%d", i)}
			for j := 0; j < 20; j++ {
				hub.Subscribe(room, sub)
				hub.Publish(room, domain.NewTaskMovedEvent("t"))
				hub.Unsubscribe(room, sub)
			}
		}(i)
	}
	wg.Wait()

	if got := len(a.payloads()); got != 8*20 {
		t.Fatalf("stable subscriber missed deliveries: got %d, want %d", got, 8*20)
	}
}
