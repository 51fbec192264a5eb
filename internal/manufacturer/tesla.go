package manufacturer

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/autopeer-io/telehub/internal/telehub/core/model"
)

const milesToKm = 1.609344

var teslaEndpoints = endpoints{
	name:      "tesla",
	baseURL:   "https://fleet-api.prd.na.vn.cloud.tesla.com",
	authURL:   "https://fleet-auth.prd.vn.cloud.tesla.com",
	tokenPath: "oauth2/v3/token",
	scope:     "openid vehicle_device_data vehicle_cmds",
}

var teslaCommands = map[model.Action]string{
	model.ActionLockDoors:      "door_lock",
	model.ActionUnlockDoors:    "door_unlock",
	model.ActionStartEngine:    "remote_start_drive",
	model.ActionClimateOn:      "auto_conditioning_start",
	model.ActionClimateOff:     "auto_conditioning_stop",
	model.ActionSetTemperature: "set_temps",
	model.ActionHonkHorn:       "honk_horn",
	model.ActionFlashLights:    "flash_lights",
	model.ActionOpenTrunk:      "actuate_trunk",
}

type tesla struct {
	*session
}

func newTesla(cfg Config) Client {
	return &tesla{session: newSession(teslaEndpoints, cfg)}
}

type teslaVehicleData struct {
	Response struct {
		State       string `json:"state"`
		ChargeState struct {
			BatteryLevel *float64 `json:"battery_level"`
		} `json:"charge_state"`
		ClimateState struct {
			IsClimateOn *bool    `json:"is_climate_on"`
			InsideTemp  *float64 `json:"inside_temp"`
		} `json:"climate_state"`
		DriveState struct {
			Latitude  *float64 `json:"latitude"`
			Longitude *float64 `json:"longitude"`
			Heading   *float64 `json:"heading"`
			// Speed is in mph.
			Speed   *float64 `json:"speed"`
			GPSAsOf int64    `json:"gps_as_of"`
		} `json:"drive_state"`
		VehicleState struct {
			Locked      *bool    `json:"locked"`
			Odometer    *float64 `json:"odometer"`
			RemoteStart *bool    `json:"remote_start"`
		} `json:"vehicle_state"`
	} `json:"response"`
}

func (t *tesla) GetVehicleData(ctx context.Context, vin string) (*VehicleData, error) {
	var raw teslaVehicleData
	if err := t.get(ctx, vinPath("api/1/vehicles/%s/vehicle_data", vin), &raw); err != nil {
		return nil, err
	}
	r := raw.Response

	data := &VehicleData{
		VIN:           vin,
		Online:        r.State == "online",
		Locked:        r.VehicleState.Locked,
		EngineRunning: r.VehicleState.RemoteStart,
		ClimateOn:     r.ClimateState.IsClimateOn,
		FuelLevel:     r.ChargeState.BatteryLevel,
		InsideTemp:    r.ClimateState.InsideTemp,
		FetchedAt:     time.Now(),
	}
	if r.VehicleState.Odometer != nil {
		data.Odometer = ptr(*r.VehicleState.Odometer * milesToKm)
	}
	if d := r.DriveState; d.Latitude != nil && d.Longitude != nil {
		loc := &model.Location{Lat: *d.Latitude, Lng: *d.Longitude, Heading: d.Heading, Timestamp: data.FetchedAt}
		if d.Speed != nil {
			loc.Speed = ptr(*d.Speed * milesToKm)
		}
		if d.GPSAsOf > 0 {
			loc.Timestamp = time.Unix(d.GPSAsOf, 0)
		}
		data.Location = loc
	}
	return data, nil
}

type teslaCommandResponse struct {
	Response struct {
		Result bool   `json:"result"`
		Reason string `json:"reason"`
	} `json:"response"`
}

func (t *tesla) SendCommand(ctx context.Context, vin string, action model.Action, params map[string]string) (*CommandResult, error) {
	if action == model.ActionLocate {
		return locate(ctx, t, vin)
	}
	endpoint, ok := teslaCommands[action]
	if !ok {
		return nil, unsupported(t.name, action)
	}

	body := map[string]any{}
	switch action {
	case model.ActionSetTemperature:
		temp, err := strconv.ParseFloat(params["temperature"], 64)
		if err != nil {
			return nil, fmt.Errorf("tesla set_temps: invalid temperature %q", params["temperature"])
		}
		body["driver_temp"] = temp
		body["passenger_temp"] = temp
	case model.ActionOpenTrunk:
		body["which_trunk"] = "rear"
	}

	var resp teslaCommandResponse
	if err := t.post(ctx, vinPath("api/1/vehicles/%s/command/", vin)+endpoint, body, &resp); err != nil {
		return nil, err
	}
	return &CommandResult{
		Success:  resp.Response.Result,
		Reason:   resp.Response.Reason,
		Response: map[string]any{"command": endpoint},
	}, nil
}
