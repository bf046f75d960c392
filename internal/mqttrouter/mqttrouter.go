// Package mqttrouter owns the single MQTT session shared by every module
// and the main loop: connect, subscribe to "{base}/#", dispatch inbound
// messages by exact topic to an ordered list of subscribers, and publish.
// Connection handling follows autopaho.ConnectionManager's OnConnectionUp/
// OnConnectError wiring as used in
// _examples/nugget-thane-ai-agent/internal/mqtt/publisher.go; the topic
// namespace, subscribe-on-connect, and per-topic callback-list dispatch
// follow original_source/core/mqtt_client.py's MQTTClient almost exactly,
// with one deliberate deviation: OnConnectionLost does NOT unsubscribe the
// base wildcard the way the Python on_disconnect handler does. That was a
// bug in the original (it leaves the client silently deaf after the first
// disconnect, since nothing ever resubscribes), not a behavior to carry
// over — see DESIGN.md.
package mqttrouter

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/eclipse/paho.golang/autopaho"
	"github.com/eclipse/paho.golang/paho"

	"github.com/Martinelllo/smarthome-multi-platform-installer/internal/logging"
)

var log = logging.WithComponent("mqttrouter")

// Handler receives a decoded JSON payload for a subscribed topic. Payloads
// that fail to parse as JSON are dropped with a warning and never reach a
// Handler, matching the original's json.loads-before-dispatch ordering. An
// empty payload (as on "/restart") reaches Handlers as a nil map.
type Handler func(payload map[string]any)

// Router is the process-wide MQTT session.
type Router struct {
	baseTopic string
	cm        *autopaho.ConnectionManager

	mu   sync.Mutex
	subs map[string][]Handler // full topic -> ordered handlers, append-only per topic
}

// Config names everything needed to open the session.
type Config struct {
	Host      string
	Port      int
	Username  string
	Password  string
	BaseTopic string // MQTT_TOPIC from /mqtt-credentials, e.g. "device/abc123"
	ClientID  string
}

// Connect opens the MQTT session and blocks until the first connection
// attempt completes or ctx is done; subsequent reconnects happen in the
// background via autopaho.
func Connect(ctx context.Context, cfg Config) (*Router, error) {
	broker, err := url.Parse(fmt.Sprintf("tcp://%s:%d", cfg.Host, cfg.Port))
	if err != nil {
		return nil, fmt.Errorf("mqttrouter: parse broker url: %w", err)
	}

	r := &Router{
		baseTopic: cfg.BaseTopic,
		subs:      make(map[string][]Handler),
	}

	wildcard := cfg.BaseTopic + "/#"

	pahoCfg := autopaho.ClientConfig{
		ServerUrls:      []*url.URL{broker},
		KeepAlive:       60,
		ConnectUsername: cfg.Username,
		ConnectPassword: []byte(cfg.Password),
		OnConnectionUp: func(cm *autopaho.ConnectionManager, _ *paho.Connack) {
			log.WithField("topic", wildcard).Info("mqtt connected")
			subCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if _, err := cm.Subscribe(subCtx, &paho.Subscribe{
				Subscriptions: []paho.SubscribeOptions{{Topic: wildcard, QoS: 1}},
			}); err != nil {
				log.WithError(err).Error("mqtt subscribe failed")
			}
		},
		OnConnectError: func(err error) {
			log.WithError(err).Warn("mqtt connection error")
		},
		ClientConfig: paho.ClientConfig{
			ClientID: cfg.ClientID,
		},
	}

	cm, err := autopaho.NewConnection(ctx, pahoCfg)
	if err != nil {
		return nil, fmt.Errorf("mqttrouter: connect: %w", err)
	}
	r.cm = cm

	cm.AddOnPublishReceived(func(pr autopaho.PublishReceived) (bool, error) {
		r.dispatch(pr.Packet.Topic, pr.Packet.Payload)
		return true, nil
	})

	connCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := cm.AwaitConnection(connCtx); err != nil {
		log.WithError(err).Warn("mqtt initial connection timed out, retrying in background")
	}

	return r, nil
}

func (r *Router) dispatch(topic string, payload []byte) {
	var decoded map[string]any
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &decoded); err != nil {
			log.WithError(err).WithField("topic", topic).Warn("dropping message with invalid json payload")
			return
		}
	}
	log.WithField("topic", topic).Debug("mqtt message")

	r.mu.Lock()
	handlers := append([]Handler(nil), r.subs[topic]...)
	r.mu.Unlock()

	for _, h := range handlers {
		h(decoded)
	}
}

// Subscribe registers a handler against a device-relative topic such as
// "/module/3". The full topic dispatched on is BaseTopic+topic. Handlers on
// the same topic fire in registration order.
func (r *Router) Subscribe(topic string, h Handler) {
	full := r.baseTopic + topic
	r.mu.Lock()
	r.subs[full] = append(r.subs[full], h)
	r.mu.Unlock()
}

// Unsubscribe removes every handler registered against topic.
func (r *Router) Unsubscribe(topic string) {
	full := r.baseTopic + topic
	r.mu.Lock()
	delete(r.subs, full)
	r.mu.Unlock()
}

// HasSubscription reports whether topic has at least one handler.
func (r *Router) HasSubscription(topic string) bool {
	full := r.baseTopic + topic
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.subs[full]) > 0
}

// Publish sends payload (marshaled to JSON) to BaseTopic+topic at QoS 1.
func (r *Router) Publish(ctx context.Context, topic string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("mqttrouter: marshal payload: %w", err)
	}
	_, err = r.cm.Publish(ctx, &paho.Publish{
		Topic:   r.baseTopic + topic,
		Payload: data,
		QoS:     1,
	})
	if err != nil {
		return fmt.Errorf("mqttrouter: publish %s: %w", topic, err)
	}
	return nil
}

// Disconnect closes the session. It does not alter subscriptions; those are
// only ever changed via Subscribe/Unsubscribe.
func (r *Router) Disconnect(ctx context.Context) error {
	if r.cm == nil {
		return nil
	}
	return r.cm.Disconnect(ctx)
}
