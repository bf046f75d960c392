// Package rfbus bridges the RF link transport onto the process's internal
// publish/subscribe bus (§4.O): every reassembled inbound RF message is
// republished on the bus topic "rf/{source_address}", so hal devices depend
// on the bus the same way they already do for MQTT control messages instead
// of reaching into the RF transport directly. Grounded on internal/bus's
// Connection/Subscribe/Publish shape; correlation ids use github.com/google/
// uuid the way _examples/nugget-thane-ai-agent/internal/mqtt/instance.go
// mints its instance id, here giving each inbound message its own unique
// id. Send carries no id, so the ids do not pair replies with requests.
package rfbus

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/Martinelllo/smarthome-multi-platform-installer/internal/bus"
	"github.com/Martinelllo/smarthome-multi-platform-installer/internal/logging"
	"github.com/Martinelllo/smarthome-multi-platform-installer/internal/rf"
)

var log = logging.WithComponent("rfbus")

// Inbound is the payload published on an "rf/{source_address}" topic.
type Inbound struct {
	Source        rf.Address
	Payload       map[string]any
	LostPackages  int
	CorrelationID string
}

// Bridge owns one RF link and republishes everything it receives onto a bus
// connection.
type Bridge struct {
	link *rf.Link
	conn *bus.Connection
}

// New wires link's inbound messages onto conn and returns the bridge. The
// link must already be constructed (and so already listening) via
// rf.NewLink.
func New(link *rf.Link, conn *bus.Connection) *Bridge {
	b := &Bridge{link: link, conn: conn}
	link.OnMessage(b.onMessage)
	return b
}

// Topic returns the bus topic inbound messages from src are published on.
func Topic(src rf.Address) bus.Topic {
	return bus.T("rf", src.Uint16())
}

func (b *Bridge) onMessage(src rf.Address, message []byte, lostPackages int) {
	var payload map[string]any
	if err := json.Unmarshal(message, &payload); err != nil {
		log.WithError(err).WithField("source", src.Uint16()).Warn("dropping rf message with non-json body")
		return
	}
	msg := b.conn.NewMessage(Topic(src), Inbound{
		Source:        src,
		Payload:       payload,
		LostPackages:  lostPackages,
		CorrelationID: uuid.NewString(),
	})
	b.conn.Publish(msg)
}

// Subscribe listens for every inbound message from a given RF peer address.
func (b *Bridge) Subscribe(src rf.Address) *bus.Subscription {
	return b.conn.Subscribe(Topic(src))
}

// Send marshals payload to JSON and transmits it to target over the RF
// link, returning the number of frames the link's retry loop had to
// recover. The RF protocol's own ack/retransmit cycle (§4.J) is the
// delivery confirmation; there is no separate bus-level reply to await.
func (b *Bridge) Send(target rf.Address, payload any) (lostPackages int, err error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return 0, fmt.Errorf("rfbus: marshal payload: %w", err)
	}
	return b.link.SendMessage(target, data)
}
