package rfbus

import (
	"testing"
	"time"

	"github.com/Martinelllo/smarthome-multi-platform-installer/internal/bus"
	"github.com/Martinelllo/smarthome-multi-platform-installer/internal/iohub"
	"github.com/Martinelllo/smarthome-multi-platform-installer/internal/rf"
)

// fakePin is a minimal no-op GPIO line; these tests drive Bridge.onMessage
// directly rather than exercising the real bit-banged transport (covered in
// package rf), so the link only needs to exist and never actually send.
type fakePin struct{}

func (fakePin) ConfigureInput(iohub.Pull) error { return nil }
func (fakePin) ConfigureOutput(bool) error      { return nil }
func (fakePin) Set(bool)                        {}
func (fakePin) Get() bool                       { return false }

func newTestLink(addr rf.Address) *rf.Link {
	return rf.NewLink(fakePin{}, addr)
}

func TestOnMessagePublishesToSourceTopic(t *testing.T) {
	b2 := bus.NewBus(4)
	conn := b2.NewConnection("test")

	link := newTestLink(rf.AddressFromUint16(1))
	br := New(link, conn)
	defer link.Close()

	src := rf.AddressFromUint16(4321)
	sub := br.Subscribe(src)
	defer conn.Unsubscribe(sub)

	br.onMessage(src, []byte(`{"temp":21.5}`), 2)

	select {
	case msg := <-sub.Channel():
		in, ok := msg.Payload.(Inbound)
		if !ok {
			t.Fatalf("expected Inbound payload, got %T", msg.Payload)
		}
		if in.Source != src {
			t.Fatalf("expected source %v, got %v", src, in.Source)
		}
		if in.LostPackages != 2 {
			t.Fatalf("expected lostPackages=2, got %d", in.LostPackages)
		}
		if in.Payload["temp"] != 21.5 {
			t.Fatalf("expected decoded temp=21.5, got %v", in.Payload["temp"])
		}
		if in.CorrelationID == "" {
			t.Fatalf("expected a non-empty correlation id")
		}
	case <-time.After(time.Second):
		t.Fatalf("expected a message on the rf source topic")
	}
}

func TestOnMessageDropsNonJSONBody(t *testing.T) {
	b2 := bus.NewBus(4)
	conn := b2.NewConnection("test")

	link := newTestLink(rf.AddressFromUint16(1))
	br := New(link, conn)
	defer link.Close()

	src := rf.AddressFromUint16(4321)
	sub := br.Subscribe(src)
	defer conn.Unsubscribe(sub)

	br.onMessage(src, []byte("not json"), 0)

	select {
	case msg := <-sub.Channel():
		t.Fatalf("expected non-json body to be dropped, got %+v", msg)
	case <-time.After(50 * time.Millisecond):
	}
}
