// Package mqtt provides the message model, payload codecs and broker client
// used by the heating controller, with fakes for testing.
package mqtt

import "errors"

// ErrNotConnected is returned when a message cannot be sent or buffered
// because the broker connection is down.
var ErrNotConnected = errors.New("mqtt: not connected")

// Delivery is the delivery guarantee requested for an outbound message.
type Delivery struct {
	QoS      byte
	Retained bool
}

// Delivery classes used by the controller.
var (
	// DeliveryCommand is for actuator commands. Retained so a restarted relay
	// recovers the last intended state.
	DeliveryCommand = Delivery{QoS: 1, Retained: true}
	// DeliveryState is for published zone and boiler state.
	DeliveryState = Delivery{QoS: 1, Retained: true}
	// DeliveryEvent is for alerts and lifecycle events.
	DeliveryEvent = Delivery{QoS: 1, Retained: false}
	// DeliveryRequest is for Zigbee2MQTT get requests.
	DeliveryRequest = Delivery{QoS: 1, Retained: false}
	// DeliveryLiveness is for the heartbeat. A stale heartbeat is worthless,
	// so it is never buffered or retained.
	DeliveryLiveness = Delivery{QoS: 0, Retained: false}
)

// Message is one outbound MQTT message.
type Message struct {
	Topic    string
	Payload  []byte
	Delivery Delivery
}

// Handler receives inbound messages.
type Handler func(topic string, payload []byte)

// Publisher publishes messages to the broker.
type Publisher interface {
	// Publish sends msg. An error means the message was neither delivered nor
	// buffered for later delivery; it must not crash the process.
	Publish(msg Message) error
}

// Subscriber registers inbound topics. Subscriptions survive reconnects.
type Subscriber interface {
	Subscribe(topics []string, handler Handler) error
}

// ConnectionStatus reports whether the MQTT connection is active.
type ConnectionStatus interface {
	IsConnected() bool
}

// Broker is the full client surface used by the controller.
type Broker interface {
	Publisher
	Subscriber
	ConnectionStatus
	Close() error
}
