package mqtt

import (
	"context"
)

// MessageHandler receives one vehicle bus message. topic is the concrete
// topic the broker delivered on, never the subscribed filter.
type MessageHandler func(ctx context.Context, topic string, payload []byte)

// Client is the telehub vehicle bus as both sides see it: the hub bridge
// subscribes to vehicle status, location and command results, and an agent
// subscribes to its command topic and publishes the rest.
type Client interface {
	// Start dials the broker in the background. Use AwaitConnection before
	// the first publish.
	Start(ctx context.Context) error

	// Disconnect sends DISCONNECT, so a configured will is not published.
	Disconnect(ctx context.Context)

	Publish(ctx context.Context, topic string, qos int, retain bool, payload []byte) error

	// Subscribe routes messages matching filter to handler. Wildcards and a
	// $share/<group>/ prefix are accepted. Subscriptions survive reconnects.
	Subscribe(ctx context.Context, filter string, qos int, handler MessageHandler) error

	Unsubscribe(ctx context.Context, filter string) error

	AwaitConnection(ctx context.Context) error

	IsConnected() bool
}
