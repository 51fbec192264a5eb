package command

import "github.com/autopeer-io/telehub/internal/telehub/core/model"

// capabilities maps each action to the remote control flag that enables it.
var capabilities = map[model.Action]func(*model.RemoteControlConfig) bool{
	model.ActionLockDoors:      lockEnabled,
	model.ActionUnlockDoors:    lockEnabled,
	model.ActionStartEngine:    startEnabled,
	model.ActionStopEngine:     startEnabled,
	model.ActionClimateOn:      climateEnabled,
	model.ActionClimateOff:     climateEnabled,
	model.ActionSetTemperature: climateEnabled,
	model.ActionHonkHorn:       hornLightsEnabled,
	model.ActionFlashLights:    hornLightsEnabled,
	model.ActionOpenTrunk:      func(c *model.RemoteControlConfig) bool { return c.TrunkEnabled },
	model.ActionLocate:         func(*model.RemoteControlConfig) bool { return true },
}

func lockEnabled(c *model.RemoteControlConfig) bool       { return c.RemoteLockEnabled }
func startEnabled(c *model.RemoteControlConfig) bool      { return c.RemoteStartEnabled }
func climateEnabled(c *model.RemoteControlConfig) bool    { return c.ClimateControlEnabled }
func hornLightsEnabled(c *model.RemoteControlConfig) bool { return c.HornLightsEnabled }

// Known reports whether action is a supported action.
func Known(action model.Action) bool {
	_, ok := capabilities[action]
	return ok
}

// Enabled reports whether cfg allows action. Unknown actions are never enabled.
func Enabled(cfg *model.RemoteControlConfig, action model.Action) bool {
	if cfg == nil {
		return false
	}
	allowed, ok := capabilities[action]
	return ok && allowed(cfg)
}

// group returns the key under which commands supersede each other: a newer
// command in the same group cancels an older pending one.
func group(action model.Action) string {
	switch action {
	case model.ActionLockDoors, model.ActionUnlockDoors:
		return "doors"
	case model.ActionStartEngine, model.ActionStopEngine:
		return "engine"
	case model.ActionClimateOn, model.ActionClimateOff, model.ActionSetTemperature:
		return "climate"
	default:
		return string(action)
	}
}
