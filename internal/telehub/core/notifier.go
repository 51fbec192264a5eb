package core

import (
	"context"
	"errors"

	"github.com/autopeer-io/telehub/internal/telehub/core/model"
)

// CommandNotifier delivers command:execute to the vehicle bus.
// In telehub, this is implemented by the MQTT outbound adapter.
type CommandNotifier interface {
	// Notify sends a command payload to the target vehicle.
	Notify(ctx context.Context, cmd *model.Command) error
}

// Broadcaster fans a realtime event out to every session joined to group.
// It must not block on slow sessions.
type Broadcaster interface {
	Broadcast(group, event string, payload any)
}

// CommandTracker is the part of the command orchestrator the realtime channel
// drives when a gateway is involved.
type CommandTracker interface {
	// MarkSent moves a PENDING command to SENT and cancels its simulated
	// completion.
	MarkSent(ctx context.Context, commandID string) (*model.Command, error)

	// Resolve moves a command to COMPLETED or FAILED. applied is false when the
	// command was already terminal and the result was dropped.
	Resolve(ctx context.Context, commandID string, result Result) (cmd *model.Command, applied bool, err error)

	// VehicleDisconnected fails every in-flight simulated command of the vehicle.
	VehicleDisconnected(ctx context.Context, vehicleID string)
}

// ErrCommandTerminal is returned when a command that already reached
// COMPLETED or FAILED is asked to change.
var ErrCommandTerminal = errors.New("command already terminal")

// Result is the outcome reported for a command.
type Result struct {
	Success  bool
	Response map[string]any
	Error    string
}
