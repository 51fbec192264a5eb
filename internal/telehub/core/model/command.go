package model

import "time"

// Action is a remote command a user can send to a vehicle.
type Action string

const (
	ActionLockDoors      Action = "LOCK_DOORS"
	ActionUnlockDoors    Action = "UNLOCK_DOORS"
	ActionStartEngine    Action = "START_ENGINE"
	ActionStopEngine     Action = "STOP_ENGINE"
	ActionClimateOn      Action = "CLIMATE_ON"
	ActionClimateOff     Action = "CLIMATE_OFF"
	ActionSetTemperature Action = "SET_TEMPERATURE"
	ActionHonkHorn       Action = "HONK_HORN"
	ActionFlashLights    Action = "FLASH_LIGHTS"
	ActionOpenTrunk      Action = "OPEN_TRUNK"
	ActionLocate         Action = "LOCATE"
)

// Actions lists every supported action.
var Actions = []Action{
	ActionLockDoors, ActionUnlockDoors, ActionStartEngine, ActionStopEngine,
	ActionClimateOn, ActionClimateOff, ActionSetTemperature,
	ActionHonkHorn, ActionFlashLights, ActionOpenTrunk, ActionLocate,
}

// CommandStatus is the lifecycle phase of a command.
type CommandStatus string

const (
	CommandStatusPending   CommandStatus = "PENDING"
	CommandStatusSent      CommandStatus = "SENT"
	CommandStatusCompleted CommandStatus = "COMPLETED"
	CommandStatusFailed    CommandStatus = "FAILED"
)

// IsTerminal reports whether s can no longer change.
func (s CommandStatus) IsTerminal() bool {
	return s == CommandStatusCompleted || s == CommandStatusFailed
}

// Command is one remote instruction for a vehicle.
type Command struct {
	ID         string            `json:"id"`
	VehicleID  string            `json:"vehicleId"`
	UserID     string            `json:"userId"`
	Action     Action            `json:"action"`
	Parameters map[string]string `json:"parameters,omitempty"`
	Status     CommandStatus     `json:"status"`

	PINVerified       bool `json:"pinVerified"`
	BiometricVerified bool `json:"biometricVerified"`

	CreatedAt   time.Time  `json:"createdAt"`
	SentAt      *time.Time `json:"sentAt,omitempty"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`

	Response map[string]any `json:"response,omitempty"`
	Error    string         `json:"error,omitempty"`
}

// Clone returns a deep copy of c.
func (c *Command) Clone() *Command {
	if c == nil {
		return nil
	}
	out := *c
	if c.Parameters != nil {
		out.Parameters = make(map[string]string, len(c.Parameters))
		for k, v := range c.Parameters {
			out.Parameters[k] = v
		}
	}
	if c.Response != nil {
		out.Response = make(map[string]any, len(c.Response))
		for k, v := range c.Response {
			out.Response[k] = v
		}
	}
	if c.SentAt != nil {
		t := *c.SentAt
		out.SentAt = &t
	}
	if c.CompletedAt != nil {
		t := *c.CompletedAt
		out.CompletedAt = &t
	}
	return &out
}
