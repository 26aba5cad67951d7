package core

import "context"

// Broker is the contract every broker adapter (plugins/mqtt, or a test
// double) must satisfy. Connection lifecycle and transport-specific
// configuration belong to the adapter's constructor — spec §1 treats the
// concrete MQTT client as an external collaborator, so Broker only exposes
// what the dispatcher needs once a connection exists.
type Broker interface {
	// Publish sends payload to topic at the given QoS.
	Publish(ctx context.Context, topic string, payload []byte, qos byte) error

	// Subscribe installs a subscription for topic (which may already carry
	// the "$share/<group>/" prefix for a shared subscription) at the given
	// QoS, and arranges for handler to be invoked for every message
	// delivered on it. Subscribe returns once the subscription is
	// acknowledged; message delivery continues on the broker's own
	// callback goroutine(s) until Close.
	Subscribe(ctx context.Context, topic string, qos byte, handler Handler) error

	// Close unsubscribes everything and disconnects from the broker.
	Close() error
}
