package mqtt

import (
	"fmt"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/sweeney/heating-control/internal/logger"
)

// Options configures a Client.
type Options struct {
	Broker   string
	ClientID string
	Username string
	Password string

	// BufferSize is how many QoS>0 messages are held while disconnected.
	BufferSize int

	// WillTopic and WillPayload, if set, are published retained by the broker
	// when the connection drops uncleanly.
	WillTopic   string
	WillPayload []byte

	ConnectTimeout time.Duration
	PublishTimeout time.Duration
	RetryInterval  time.Duration // between connection attempts, default 5s

	// OnConnect runs after every (re)connect, once subscriptions are restored
	// and buffered messages replayed. It runs on its own goroutine.
	OnConnect func()

	Logger *logger.Logger
}

// Client is a paho-backed Broker. Messages published while disconnected are
// buffered and replayed on reconnect; subscriptions are restored on reconnect.
type Client struct {
	client  paho.Client
	log     *logger.Logger
	timeout time.Duration

	mu        sync.Mutex
	buffer    *ringBuffer
	topics    []string
	handler   Handler
	onConnect func()
}

// NewClient creates a client and starts connecting in the background. It
// does not wait for the first connection: the controller keeps running (and
// the staleness watchdog keeps zones safe) while the broker is unreachable.
func NewClient(opts Options) *Client {
	if opts.Logger == nil {
		opts.Logger = logger.Nop()
	}
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = 10 * time.Second
	}
	if opts.PublishTimeout <= 0 {
		opts.PublishTimeout = 5 * time.Second
	}
	if opts.RetryInterval <= 0 {
		opts.RetryInterval = 5 * time.Second
	}

	c := &Client{
		log:       opts.Logger,
		timeout:   opts.PublishTimeout,
		buffer:    newRingBuffer(opts.BufferSize),
		onConnect: opts.OnConnect,
	}

	po := paho.NewClientOptions().
		AddBroker(opts.Broker).
		SetClientID(opts.ClientID).
		SetCleanSession(true).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(opts.RetryInterval).
		SetMaxReconnectInterval(time.Minute).
		SetConnectTimeout(opts.ConnectTimeout).
		SetOnConnectHandler(func(paho.Client) { c.connected() }).
		SetConnectionLostHandler(func(_ paho.Client, err error) {
			c.log.Warnw("mqtt connection lost", "error", err)
		}).
		SetReconnectingHandler(func(paho.Client, *paho.ClientOptions) {
			c.log.Infow("mqtt reconnecting", "broker", opts.Broker)
		})
	if opts.Username != "" {
		po.SetUsername(opts.Username)
		po.SetPassword(opts.Password)
	}
	if opts.WillTopic != "" {
		po.SetBinaryWill(opts.WillTopic, opts.WillPayload, 1, true)
	}

	c.client = paho.NewClient(po)
	c.client.Connect()
	return c
}

// connected restores subscriptions, replays the offline buffer and runs the
// OnConnect hook.
func (c *Client) connected() {
	c.mu.Lock()
	topics := append([]string(nil), c.topics...)
	handler := c.handler
	pending, dropped := c.buffer.drainAll()
	onConnect := c.onConnect
	c.mu.Unlock()

	c.log.Infow("mqtt connected", "subscriptions", len(topics), "buffered", len(pending))
	if dropped > 0 {
		c.log.Warnw("mqtt offline buffer overflowed", "dropped", dropped)
	}

	if len(topics) > 0 && handler != nil {
		if err := c.subscribe(topics, handler); err != nil {
			c.log.Errorw("mqtt resubscribe failed", "error", err)
		}
	}
	for _, m := range pending {
		if err := c.send(m); err != nil {
			c.log.Errorw("mqtt replay failed", "topic", m.Topic, "error", err)
		}
	}
	if onConnect != nil {
		onConnect()
	}
}

// SetOnConnect replaces the hook run after every (re)connect.
func (c *Client) SetOnConnect(fn func()) {
	c.mu.Lock()
	c.onConnect = fn
	c.mu.Unlock()
}

// Publish sends msg. While disconnected, QoS>0 messages are buffered for
// replay and nil is returned; QoS 0 messages fail with ErrNotConnected.
func (c *Client) Publish(msg Message) error {
	if !c.client.IsConnectionOpen() {
		if msg.Delivery.QoS == 0 {
			return fmt.Errorf("publish %s: %w", msg.Topic, ErrNotConnected)
		}
		c.mu.Lock()
		dropped := c.buffer.push(msg)
		c.mu.Unlock()
		if dropped {
			c.log.Debugw("mqtt offline buffer full, dropped oldest", "topic", msg.Topic)
		}
		return nil
	}
	return c.send(msg)
}

func (c *Client) send(msg Message) error {
	token := c.client.Publish(msg.Topic, msg.Delivery.QoS, msg.Delivery.Retained, msg.Payload)
	if !token.WaitTimeout(c.timeout) {
		return fmt.Errorf("publish %s: timeout", msg.Topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish %s: %w", msg.Topic, err)
	}
	return nil
}

// Subscribe registers topics with handler. The registration is kept and
// replayed after every reconnect; if the client is connected now, the
// subscription is made immediately.
func (c *Client) Subscribe(topics []string, handler Handler) error {
	c.mu.Lock()
	c.topics = append(c.topics, topics...)
	c.handler = handler
	c.mu.Unlock()

	if !c.client.IsConnectionOpen() {
		return nil
	}
	return c.subscribe(topics, handler)
}

func (c *Client) subscribe(topics []string, handler Handler) error {
	filters := make(map[string]byte, len(topics))
	for _, t := range topics {
		filters[t] = 1
	}
	token := c.client.SubscribeMultiple(filters, func(_ paho.Client, m paho.Message) {
		handler(m.Topic(), m.Payload())
	})
	if !token.WaitTimeout(c.timeout) {
		return fmt.Errorf("subscribe: timeout")
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}
	return nil
}

// IsConnected reports whether the broker connection is currently up.
func (c *Client) IsConnected() bool {
	return c.client.IsConnectionOpen()
}

// Buffered returns the number of messages waiting for a connection.
func (c *Client) Buffered() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.buffer.len()
}

// Close disconnects from the broker, allowing in-flight messages a second.
func (c *Client) Close() error {
	c.client.Disconnect(1000)
	return nil
}
