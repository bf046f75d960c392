package bus

import (
	"testing"
	"time"
)

const (
	TopicConfig = "config"
	TopicGeo    = "geo"
)

func TestBasicPubSub(t *testing.T) {
	b := NewBus(4)
	conn := b.NewConnection("test")

	sub := conn.Subscribe(T(TopicConfig, TopicGeo))

	msg := conn.NewMessage(T(TopicConfig, TopicGeo), "hello")
	conn.Publish(msg)

	select {
	case got := <-sub.Channel():
		if got.Payload.(string) != "hello" {
			t.Errorf("expected payload 'hello', got %v", got.Payload)
		}
	case <-time.After(100 * time.Millisecond):
		t.Fatal("timeout waiting for message")
	}
}

func TestPublishDoesNotCrossTopics(t *testing.T) {
	b := NewBus(4)
	conn := b.NewConnection("test")

	subA := conn.Subscribe(T("rf", 1))
	subB := conn.Subscribe(T("rf", 2))

	conn.Publish(conn.NewMessage(T("rf", 1), "for-a"))

	select {
	case got := <-subA.Channel():
		if got.Payload.(string) != "for-a" {
			t.Fatalf("unexpected payload on subA: %v", got.Payload)
		}
	case <-time.After(100 * time.Millisecond):
		t.Fatal("timeout waiting for message on subA")
	}
	expectNoMessage(t, subB)
}

func TestMultipleSubscribersSameTopicBothReceive(t *testing.T) {
	b := NewBus(4)
	conn := b.NewConnection("test")

	s1 := conn.Subscribe(T("rf", 42))
	s2 := conn.Subscribe(T("rf", 42))

	conn.Publish(conn.NewMessage(T("rf", 42), "m1"))

	expectOneOf(t, s1, "m1")
	expectOneOf(t, s2, "m1")
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	b := NewBus(4)
	conn := b.NewConnection("test")

	sub := conn.Subscribe(T("rf", 7))
	conn.Unsubscribe(sub)

	conn.Publish(conn.NewMessage(T("rf", 7), "late"))

	select {
	case _, ok := <-sub.Channel():
		if ok {
			t.Fatal("expected no message after unsubscribe")
		}
	case <-time.After(50 * time.Millisecond):
	}
}

func TestDisconnectTearsDownAllSubscriptions(t *testing.T) {
	b := NewBus(4)
	conn := b.NewConnection("test")

	s1 := conn.Subscribe(T("rf", 1))
	s2 := conn.Subscribe(T("rf", 2))

	conn.Disconnect()

	conn2 := b.NewConnection("other")
	conn2.Publish(conn2.NewMessage(T("rf", 1), "x"))
	conn2.Publish(conn2.NewMessage(T("rf", 2), "y"))

	for _, sub := range []*Subscription{s1, s2} {
		select {
		case _, ok := <-sub.Channel():
			if ok {
				t.Fatal("expected closed channel after Disconnect")
			}
		case <-time.After(50 * time.Millisecond):
			t.Fatal("expected channel closed, not just empty")
		}
	}
}

func TestSlowSubscriberDropsOldestRatherThanBlocking(t *testing.T) {
	b := NewBus(1)
	conn := b.NewConnection("test")
	sub := conn.Subscribe(T("rf", 1))

	conn.Publish(conn.NewMessage(T("rf", 1), "first"))
	conn.Publish(conn.NewMessage(T("rf", 1), "second"))

	expectOneOf(t, sub, "second")
}

func TestTopic_InvalidTokenPanics(t *testing.T) {
	defer func() {
		if r := recover(); r == nil {
			t.Fatal("expected panic for non-comparable token, got none")
		}
	}()

	// []byte is not comparable, so T should panic
	_ = T([]byte{1, 2, 3})
}

func expectOneOf(t *testing.T, sub *Subscription, want string) {
	t.Helper()
	select {
	case got := <-sub.Channel():
		s, ok := got.Payload.(string)
		if !ok || s != want {
			t.Fatalf("unexpected payload: %v (want %q)", got.Payload, want)
		}
	case <-time.After(200 * time.Millisecond):
		t.Fatalf("timeout waiting for %q", want)
	}
}

func expectNoMessage(t *testing.T, sub *Subscription) {
	t.Helper()
	select {
	case got := <-sub.Channel():
		t.Fatalf("unexpected message: %#v", got)
	case <-time.After(60 * time.Millisecond):
	}
}
