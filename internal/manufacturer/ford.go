package manufacturer

import (
	"context"
	"strings"
	"time"

	"github.com/autopeer-io/telehub/internal/telehub/core/model"
)

var fordEndpoints = endpoints{
	name:      "ford",
	baseURL:   "https://api.mps.ford.com/api/fordconnect",
	authURL:   "https://api.mps.ford.com/api/oauth2/v1",
	tokenPath: "token",
}

var fordCommands = map[model.Action]string{
	model.ActionLockDoors:   "lock",
	model.ActionUnlockDoors: "unlock",
	model.ActionStartEngine: "startEngine",
	model.ActionStopEngine:  "stopEngine",
}

type ford struct {
	*session
}

func newFord(cfg Config) Client {
	return &ford{session: newSession(fordEndpoints, cfg)}
}

type fordValue struct {
	Value *float64 `json:"value"`
}

type fordVehicle struct {
	Status  string `json:"status"`
	Vehicle struct {
		VehicleDetails struct {
			FuelLevel          fordValue `json:"fuelLevel"`
			BatteryChargeLevel fordValue `json:"batteryChargeLevel"`
			// Odometer is in km.
			Odometer *float64 `json:"odometer"`
		} `json:"vehicleDetails"`
		VehicleStatus struct {
			LockStatus struct {
				Value string `json:"value"`
			} `json:"lockStatus"`
			RemoteStartStatus struct {
				Status string `json:"status"`
			} `json:"remoteStartStatus"`
		} `json:"vehicleStatus"`
		VehicleLocation struct {
			Latitude  *float64 `json:"latitude"`
			Longitude *float64 `json:"longitude"`
			Speed     *float64 `json:"speed"`
		} `json:"vehicleLocation"`
		LastUpdated string `json:"lastUpdated"`
	} `json:"vehicle"`
}

func (f *ford) GetVehicleData(ctx context.Context, vin string) (*VehicleData, error) {
	var raw fordVehicle
	if err := f.get(ctx, vinPath("v3/vehicles/%s", vin), &raw); err != nil {
		return nil, err
	}
	v := raw.Vehicle

	data := &VehicleData{
		VIN:       vin,
		Online:    strings.EqualFold(raw.Status, "SUCCESS"),
		Odometer:  v.VehicleDetails.Odometer,
		FetchedAt: time.Now(),
	}
	switch {
	case v.VehicleDetails.FuelLevel.Value != nil:
		data.FuelLevel = v.VehicleDetails.FuelLevel.Value
	case v.VehicleDetails.BatteryChargeLevel.Value != nil:
		data.FuelLevel = v.VehicleDetails.BatteryChargeLevel.Value
	}
	if s := v.VehicleStatus.LockStatus.Value; s != "" {
		data.Locked = ptr(strings.EqualFold(s, "LOCKED"))
	}
	if s := v.VehicleStatus.RemoteStartStatus.Status; s != "" {
		data.EngineRunning = ptr(strings.EqualFold(s, "ENGINE_RUNNING"))
	}
	if l := v.VehicleLocation; l.Latitude != nil && l.Longitude != nil {
		data.Location = &model.Location{Lat: *l.Latitude, Lng: *l.Longitude, Speed: l.Speed, Timestamp: data.FetchedAt}
	}
	return data, nil
}

type fordCommandResponse struct {
	Status        string `json:"status"`
	CommandStatus string `json:"commandStatus"`
	CommandID     string `json:"commandId"`
	Error         *struct {
		Message string `json:"message"`
	} `json:"error"`
}

func (f *ford) SendCommand(ctx context.Context, vin string, action model.Action, _ map[string]string) (*CommandResult, error) {
	if action == model.ActionLocate {
		return locate(ctx, f, vin)
	}
	endpoint, ok := fordCommands[action]
	if !ok {
		return nil, unsupported(f.name, action)
	}

	var resp fordCommandResponse
	if err := f.post(ctx, vinPath("v1/vehicles/%s/", vin)+endpoint, nil, &resp); err != nil {
		return nil, err
	}
	res := &CommandResult{
		Success:  strings.EqualFold(resp.Status, "SUCCESS"),
		Response: map[string]any{"commandId": resp.CommandID, "commandStatus": resp.CommandStatus},
	}
	if resp.Error != nil {
		res.Reason = resp.Error.Message
	}
	return res, nil
}
