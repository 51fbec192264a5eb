// Package mqtttest provides an in-process mqtt.Client for tests. Messages
// published on a Fake are delivered synchronously to its matching handlers.
package mqtttest

import (
	"context"
	"errors"
	"sync"

	"github.com/autopeer-io/telehub/pkg/mqtt"
)

var _ mqtt.Client = (*Fake)(nil)

// Message is one recorded publish.
type Message struct {
	Topic   string
	QoS     int
	Retain  bool
	Payload []byte
}

type Fake struct {
	mu        sync.Mutex
	started   bool
	handlers  map[string]mqtt.MessageHandler
	published []Message

	// PublishErr, when set, is returned by every Publish.
	PublishErr error
}

func NewFake() *Fake {
	return &Fake{handlers: make(map[string]mqtt.MessageHandler)}
}

func (f *Fake) Start(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.started = true
	return nil
}

func (f *Fake) Disconnect(context.Context) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.started = false
}

func (f *Fake) Publish(ctx context.Context, topic string, qos int, retain bool, payload []byte) error {
	f.mu.Lock()
	if f.PublishErr != nil {
		f.mu.Unlock()
		return f.PublishErr
	}
	f.published = append(f.published, Message{Topic: topic, QoS: qos, Retain: retain, Payload: payload})
	var matched []mqtt.MessageHandler
	for filter, h := range f.handlers {
		if mqtt.Match(filter, topic) {
			matched = append(matched, h)
		}
	}
	f.mu.Unlock()

	for _, h := range matched {
		h(ctx, topic, payload)
	}
	return nil
}

func (f *Fake) Subscribe(_ context.Context, topic string, _ int, handler mqtt.MessageHandler) error {
	if handler == nil {
		return errors.New("nil handler")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers[topic] = handler
	return nil
}

func (f *Fake) Unsubscribe(_ context.Context, topic string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.handlers, topic)
	return nil
}

func (f *Fake) AwaitConnection(context.Context) error { return nil }

func (f *Fake) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.started
}

// Published returns a copy of every message published so far.
func (f *Fake) Published() []Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Message(nil), f.published...)
}

// Subscriptions returns the registered filters.
func (f *Fake) Subscriptions() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.handlers))
	for k := range f.handlers {
		out = append(out, k)
	}
	return out
}
