package command

import (
	"fmt"
	"strconv"

	"github.com/autopeer-io/telehub/internal/telehub/core/model"
)

// ParamTemperature is the SET_TEMPERATURE parameter, in °C.
const ParamTemperature = "temperature"

const (
	minTargetTemp = 15.0
	maxTargetTemp = 32.0
)

// applyEffect mutates the snapshot the way a completed cmd changes the
// vehicle. HONK_HORN, FLASH_LIGHTS and LOCATE leave it untouched.
func applyEffect(s *model.StatusSnapshot, cmd *model.Command) error {
	switch cmd.Action {
	case model.ActionLockDoors:
		s.DoorsLocked = true
	case model.ActionUnlockDoors:
		s.DoorsLocked = false
	case model.ActionStartEngine:
		s.EngineRunning = true
	case model.ActionStopEngine:
		s.EngineRunning = false
	case model.ActionClimateOn:
		s.Climate.On = true
	case model.ActionClimateOff:
		s.Climate.On = false
	case model.ActionSetTemperature:
		t, err := targetTemperature(cmd.Parameters)
		if err != nil {
			return err
		}
		s.Climate.On = true
		s.Climate.TargetTemp = t
	case model.ActionOpenTrunk:
		s.TrunkOpen = true
	case model.ActionHonkHorn, model.ActionFlashLights, model.ActionLocate:
	default:
		return fmt.Errorf("unsupported action %q", cmd.Action)
	}
	return nil
}

// mutates reports whether a completed action changes the snapshot.
func mutates(action model.Action) bool {
	switch action {
	case model.ActionHonkHorn, model.ActionFlashLights, model.ActionLocate:
		return false
	}
	return true
}

func targetTemperature(params map[string]string) (float64, error) {
	raw, ok := params[ParamTemperature]
	if !ok {
		return 0, fmt.Errorf("missing %q parameter", ParamTemperature)
	}
	t, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %q parameter %q", ParamTemperature, raw)
	}
	if t < minTargetTemp || t > maxTargetTemp {
		return 0, fmt.Errorf("%q must be within [%.0f, %.0f]", ParamTemperature, minTargetTemp, maxTargetTemp)
	}
	return t, nil
}
