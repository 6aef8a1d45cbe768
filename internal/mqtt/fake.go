package mqtt

import (
	"strings"
	"sync"
)

// FakeClient records published messages and lets tests inject inbound ones.
// Safe for concurrent use.
type FakeClient struct {
	mu sync.Mutex

	messages []Message
	topics   []string
	handler  Handler

	// PublishError, if set, is returned by Publish and nothing is recorded.
	PublishError error
	// Connected controls the return value of IsConnected.
	Connected bool
	// Closed tracks if Close was called.
	Closed bool
}

// NewFakeClient creates a connected FakeClient.
func NewFakeClient() *FakeClient {
	return &FakeClient{Connected: true}
}

// Publish records msg.
func (f *FakeClient) Publish(msg Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.PublishError != nil {
		return f.PublishError
	}
	f.messages = append(f.messages, msg)
	return nil
}

// SetPublishError changes the error returned by Publish.
func (f *FakeClient) SetPublishError(err error) {
	f.mu.Lock()
	f.PublishError = err
	f.mu.Unlock()
}

// Subscribe records topics and handler.
func (f *FakeClient) Subscribe(topics []string, handler Handler) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.topics = append(f.topics, topics...)
	f.handler = handler
	return nil
}

// Deliver calls the subscribed handler as if the broker had sent a message.
// It reports false if nothing is subscribed to topic.
func (f *FakeClient) Deliver(topic string, payload []byte) bool {
	f.mu.Lock()
	handler := f.handler
	subscribed := false
	for _, t := range f.topics {
		if t == topic {
			subscribed = true
			break
		}
	}
	f.mu.Unlock()
	if !subscribed || handler == nil {
		return false
	}
	handler(topic, payload)
	return true
}

// Topics returns the subscribed topics.
func (f *FakeClient) Topics() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.topics...)
}

// Messages returns a copy of every published message in order.
func (f *FakeClient) Messages() []Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Message(nil), f.messages...)
}

// On returns the messages published to topic, in order.
func (f *FakeClient) On(topic string) []Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []Message
	for _, m := range f.messages {
		if m.Topic == topic {
			out = append(out, m)
		}
	}
	return out
}

// Last returns the most recent message on topic.
func (f *FakeClient) Last(topic string) (Message, bool) {
	msgs := f.On(topic)
	if len(msgs) == 0 {
		return Message{}, false
	}
	return msgs[len(msgs)-1], true
}

// WithPrefix returns the messages whose topic starts with prefix.
func (f *FakeClient) WithPrefix(prefix string) []Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []Message
	for _, m := range f.messages {
		if strings.HasPrefix(m.Topic, prefix) {
			out = append(out, m)
		}
	}
	return out
}

// IsConnected reports whether the fake is "connected".
func (f *FakeClient) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Connected
}

// Close marks the client closed.
func (f *FakeClient) Close() error {
	f.mu.Lock()
	f.Closed = true
	f.mu.Unlock()
	return nil
}

// Reset clears recorded messages.
func (f *FakeClient) Reset() {
	f.mu.Lock()
	f.messages = nil
	f.PublishError = nil
	f.mu.Unlock()
}
