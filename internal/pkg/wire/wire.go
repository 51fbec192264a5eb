// Package wire holds the JSON messages exchanged between the hub and vehicle
// agents on the vehicle bus. Status and location travel as
// model.StatusSnapshot and model.Location; the vehicle id is in the topic.
package wire

import "github.com/autopeer-io/telehub/internal/telehub/core/model"

// CommandExecute asks a vehicle to run a command.
type CommandExecute struct {
	CommandID  string            `json:"commandId"`
	VehicleID  string            `json:"vehicleId"`
	Action     model.Action      `json:"action"`
	Parameters map[string]string `json:"parameters,omitempty"`
}

// FromCommand builds the execute message of cmd.
func FromCommand(cmd *model.Command) *CommandExecute {
	return &CommandExecute{
		CommandID:  cmd.ID,
		VehicleID:  cmd.VehicleID,
		Action:     cmd.Action,
		Parameters: cmd.Parameters,
	}
}

// CommandResult reports the outcome of a command.
type CommandResult struct {
	CommandID string         `json:"commandId"`
	Success   bool           `json:"success"`
	Response  map[string]any `json:"response,omitempty"`
	Error     string         `json:"error,omitempty"`
}

// Online is the retained presence message of an agent. The same topic
// carries the agent's will with Online false.
type Online struct {
	Online    bool   `json:"online"`
	Transport string `json:"transport,omitempty"`
}
