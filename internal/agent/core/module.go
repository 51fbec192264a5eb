package core

import (
	"context"

	"github.com/autopeer-io/telehub/internal/connection"
)

// HandlerFunc handles the payload of one inbound event.
type HandlerFunc func(ctx context.Context, payload []byte) error

// Sender publishes events for the agent's vehicle.
type Sender interface {
	Send(ctx context.Context, event EventType, payload []byte) error
	SendJSON(ctx context.Context, event EventType, v any) error
}

// Gateway is the connection state modules read from.
type Gateway interface {
	Active() *connection.Device
	Link() connection.Link
	// Disconnect drops the active gateway so discovery starts over.
	Disconnect()
}

type Module interface {
	Name() string

	Setup(ctx context.Context, gw Gateway, sender Sender) error

	Routes() map[EventType]HandlerFunc
}

// Runner is implemented by modules with a background loop. Run blocks until
// ctx is done.
type Runner interface {
	Run(ctx context.Context) error
}
