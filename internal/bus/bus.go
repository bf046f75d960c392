// Package bus is a small in-process publish/subscribe broker used to carry
// reassembled RF messages from internal/rfbus to interested hal devices
// (§4.O), so those devices depend on it the same way they already depend on
// internal/mqttrouter for control messages, instead of reaching into the RF
// transport directly.
//
// Grounded on the teacher's bus.Connection/Subscription shape
// (_examples/jangala-dev-devicecode-go/bus/bus.go), but trimmed to what
// rfbus actually needs: every publish and subscribe here goes through a
// concrete "rf/{address}" topic, never a wildcard pattern, and nothing
// retains a last-known value across subscribers. The teacher's topic trie
// (`+`/`#` matching), retained-message store, and Request/RequestWait/Reply
// helpers have no caller in this domain and are dropped rather than carried
// over unused; topics are dispatched by an exact string key instead.
package bus

import (
	"fmt"
	"strings"
	"sync"
)

const defaultQueueLen = 3

// Token is one segment of a Topic (a string, int, or any comparable value).
type Token any

// Topic is an ordered sequence of Tokens identifying a publish/subscribe
// destination, e.g. T("rf", 4321).
type Topic []Token

// T builds a Topic from tokens, panicking early if one isn't comparable
// (the map assignment forces the same panic Publish/Subscribe would hit
// later, just at construction time instead of deep in dispatch).
func T(tokens ...Token) Topic {
	for _, tok := range tokens {
		switch tok.(type) {
		case string, int, int32, int64, uint, uint32, uint64, uintptr:
		default:
			_ = map[Token]struct{}{tok: {}}
		}
	}
	return Topic(tokens)
}

func (t Topic) key() string {
	var sb strings.Builder
	for i, tok := range t {
		if i > 0 {
			sb.WriteByte('/')
		}
		fmt.Fprintf(&sb, "%v", tok)
	}
	return sb.String()
}

// Message is one published value together with the topic it was sent on.
type Message struct {
	Topic   Topic
	Payload any
}

// Subscription is a live registration on a Topic; messages arrive on
// Channel() in publish order until Unsubscribe is called.
type Subscription struct {
	topic Topic
	ch    chan *Message
	conn  *Connection
}

func (s *Subscription) Topic() Topic             { return s.topic }
func (s *Subscription) Channel() <-chan *Message { return s.ch }
func (s *Subscription) Unsubscribe()             { s.conn.Unsubscribe(s) }

// Bus dispatches messages to every Subscription registered on their exact
// topic. Safe for concurrent use.
type Bus struct {
	mu   sync.Mutex
	subs map[string][]*Subscription
	qLen int
}

// NewBus constructs a Bus whose subscriber channels are buffered queueLen
// deep (falling back to a small default for queueLen <= 0).
func NewBus(queueLen int) *Bus {
	if queueLen <= 0 {
		queueLen = defaultQueueLen
	}
	return &Bus{subs: make(map[string][]*Subscription), qLen: queueLen}
}

// NewMessage builds a Message ready to Publish.
func (b *Bus) NewMessage(topic Topic, payload any) *Message {
	return &Message{Topic: topic, Payload: payload}
}

func (b *Bus) addSubscription(sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	k := sub.topic.key()
	b.subs[k] = append(b.subs[k], sub)
}

// Publish delivers msg to every current subscriber of msg.Topic, in
// registration order. A subscriber whose channel is full has its oldest
// queued message dropped to make room, so one slow reader never blocks
// delivery to the others.
func (b *Bus) Publish(msg *Message) {
	b.mu.Lock()
	subs := append([]*Subscription(nil), b.subs[msg.Topic.key()]...)
	b.mu.Unlock()

	for _, sub := range subs {
		b.tryDeliver(sub, msg)
	}
}

func trySend(ch chan *Message, m *Message) bool {
	select {
	case ch <- m:
		return true
	default:
		return false
	}
}

func drainOne(ch chan *Message) {
	select {
	case <-ch:
	default:
	}
}

func (b *Bus) tryDeliver(sub *Subscription, msg *Message) {
	defer func() { _ = recover() }() // channel may be closed; best-effort delivery
	if trySend(sub.ch, msg) {
		return
	}
	drainOne(sub.ch)
	_ = trySend(sub.ch, msg)
}

func (b *Bus) unsubscribe(sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	k := sub.topic.key()
	list := b.subs[k]
	for i, s := range list {
		if s == sub {
			list = append(list[:i], list[i+1:]...)
			break
		}
	}
	if len(list) == 0 {
		delete(b.subs, k)
	} else {
		b.subs[k] = list
	}
}

// Connection is a handle through which one owner (an RF bridge, a hal
// device) subscribes and publishes; Disconnect tears down everything it
// registered. id identifies the owner in log output the way mqttrouter's
// ClientID and iohub's pin-owner strings do.
type Connection struct {
	bus  *Bus
	id   string
	mu   sync.Mutex
	subs []*Subscription
}

// NewConnection returns a Connection bound to b, tagged with id.
func (b *Bus) NewConnection(id string) *Connection {
	return &Connection{bus: b, id: id}
}

func (c *Connection) NewMessage(topic Topic, payload any) *Message {
	return c.bus.NewMessage(topic, payload)
}

func (c *Connection) Publish(msg *Message) { c.bus.Publish(msg) }

// Subscribe registers for topic and returns the live Subscription.
func (c *Connection) Subscribe(topic Topic) *Subscription {
	sub := &Subscription{topic: topic, ch: make(chan *Message, c.bus.qLen), conn: c}
	c.bus.addSubscription(sub)
	c.mu.Lock()
	c.subs = append(c.subs, sub)
	c.mu.Unlock()
	return sub
}

// Unsubscribe removes sub and closes its channel.
func (c *Connection) Unsubscribe(sub *Subscription) {
	c.bus.unsubscribe(sub)
	c.mu.Lock()
	c.subs = removeSub(c.subs, sub)
	c.mu.Unlock()
	close(sub.ch)
}

// Disconnect unsubscribes and closes every Subscription this Connection
// still owns.
func (c *Connection) Disconnect() {
	c.mu.Lock()
	subs := c.subs
	c.subs = nil
	c.mu.Unlock()

	for _, sub := range subs {
		c.bus.unsubscribe(sub)
		close(sub.ch)
	}
}

func removeSub(list []*Subscription, target *Subscription) []*Subscription {
	for i, s := range list {
		if s == target {
			return append(list[:i], list[i+1:]...)
		}
	}
	return list
}
