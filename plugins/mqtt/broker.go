// Package mqtt adapts github.com/eclipse/paho.mqtt.golang to core.Broker
// (spec §6 "Broker protocol"). paho.mqtt.golang speaks MQTT 3.1/3.1.1
// only, so shared subscriptions always degrade to a single plain
// subscription with a logged warning, per spec §6's MQTT-3 fallback.
package mqtt

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/routemq/routemq/broker"
	"github.com/routemq/routemq/core"
)

func init() {
	broker.Register("mqtt", func(cfg broker.Config) (core.Broker, error) {
		return Connect(cfg)
	})
}

// Broker implements core.Broker over a single paho client connection.
type Broker struct {
	client paho.Client
	log    *slog.Logger

	mu     sync.Mutex
	closed bool
}

var _ core.Broker = (*Broker)(nil)

// Connect dials the broker described by cfg and blocks until the
// connection handshake completes or cfg.ConnectTimeout elapses.
func Connect(cfg broker.Config) (*Broker, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("routemq/mqtt: no broker addresses configured")
	}

	clientID := cfg.ClientID
	if clientID == "" {
		clientID = "routemq-" + uuid.NewString()
	}
	connectTimeout := cfg.ConnectTimeout
	if connectTimeout <= 0 {
		connectTimeout = 10 * time.Second
	}
	keepAlive := cfg.KeepAlive
	if keepAlive <= 0 {
		keepAlive = 60 * time.Second
	}

	log := slog.Default().With("component", "mqtt")

	opts := paho.NewClientOptions()
	for _, addr := range cfg.Brokers {
		opts.AddBroker(addr)
	}
	opts.SetClientID(clientID).
		SetUsername(cfg.Username).
		SetPassword(cfg.Password).
		SetCleanSession(cfg.CleanSession).
		SetAutoReconnect(true).
		SetConnectTimeout(connectTimeout).
		SetKeepAlive(keepAlive)

	opts.OnConnect = func(_ paho.Client) {
		log.Info("connected to broker")
	}
	opts.OnConnectionLost = func(_ paho.Client, err error) {
		log.Warn("connection lost, reconnecting", "err", err)
	}

	client := paho.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(connectTimeout) {
		return nil, fmt.Errorf("routemq/mqtt: connect timed out after %s", connectTimeout)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("routemq/mqtt: connect: %w", err)
	}

	return &Broker{client: client, log: log}, nil
}

// Subscribe installs topic (possibly "$share/<group>/<filter>") at qos.
// Shared subscriptions degrade to a plain subscription on the bare
// filter, since paho.mqtt.golang has no MQTT 5 shared-subscription
// support (spec §6).
func (b *Broker) Subscribe(ctx context.Context, topic string, qos byte, handler core.Handler) error {
	filter, shared := stripSharedPrefix(topic)
	if shared {
		b.log.Warn("shared subscription degraded to a single plain subscriber (MQTT 3.1.1 client)", "filter", filter, "requested", topic)
	}

	token := b.client.Subscribe(filter, qos, func(_ paho.Client, m paho.Message) {
		if err := handler(ctx, message{m: m}); err != nil {
			b.log.Error("subscriber handler returned an error", "topic", m.Topic(), "err", err)
		}
	})
	if !token.WaitTimeout(10 * time.Second) {
		return fmt.Errorf("routemq/mqtt: subscribe to %q timed out", filter)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("routemq/mqtt: subscribe to %q: %w", filter, err)
	}
	return nil
}

// Publish publishes payload to topic at qos.
func (b *Broker) Publish(ctx context.Context, topic string, payload []byte, qos byte) error {
	token := b.client.Publish(topic, qos, false, payload)
	if !token.WaitTimeout(10 * time.Second) {
		return fmt.Errorf("routemq/mqtt: publish to %q timed out", topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("routemq/mqtt: publish to %q: %w", topic, err)
	}
	return nil
}

// Close disconnects from the broker. It is safe to call more than once.
func (b *Broker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	b.client.Disconnect(250)
	return nil
}

// stripSharedPrefix strips a "$share/<group>/" prefix, reporting whether
// one was present.
func stripSharedPrefix(topic string) (filter string, shared bool) {
	if !strings.HasPrefix(topic, "$share/") {
		return topic, false
	}
	rest := strings.TrimPrefix(topic, "$share/")
	idx := strings.Index(rest, "/")
	if idx < 0 {
		return topic, false
	}
	return rest[idx+1:], true
}
