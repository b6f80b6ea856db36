package events

import "testing"

func TestPublishDeliversToSubscribers(t *testing.T) {
	bus := NewBus()
	a := bus.Subscribe(EventNowPlaying)
	b := bus.Subscribe(EventNowPlaying)
	other := bus.Subscribe(EventStarved)

	bus.Publish(EventNowPlaying, Payload{"item_id": "x"})

	for i, sub := range []Subscriber{a, b} {
		select {
		case p := <-sub:
			if p["item_id"] != "x" {
				t.Errorf("subscriber %d got %v", i, p)
			}
		default:
			t.Errorf("subscriber %d received nothing", i)
		}
	}
	select {
	case p := <-other:
		t.Fatalf("unrelated subscriber received %v", p)
	default:
	}
}

func TestPublishDropsWhenFull(t *testing.T) {
	bus := NewBus()
	sub := bus.SubscribeBuffered(EventPrefetch, 1)
	bus.Publish(EventPrefetch, Payload{"n": 1})
	bus.Publish(EventPrefetch, Payload{"n": 2})

	if p := <-sub; p["n"] != 1 {
		t.Fatalf("expected first payload to be kept, got %v", p)
	}
	select {
	case p := <-sub:
		t.Fatalf("expected second payload to be dropped, got %v", p)
	default:
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	bus := NewBus()
	sub := bus.Subscribe(EventSkip)
	bus.Unsubscribe(EventSkip, sub)
	if _, ok := <-sub; ok {
		t.Fatal("expected closed channel")
	}
	bus.Publish(EventSkip, Payload{})
}

func TestNilBusPublishIsNoop(t *testing.T) {
	var bus *Bus
	bus.Publish(EventSkip, Payload{})
}
