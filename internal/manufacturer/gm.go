package manufacturer

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/autopeer-io/telehub/internal/telehub/core/model"
)

var gmEndpoints = endpoints{
	name:      "gm",
	baseURL:   "https://api.gm.com/api",
	authURL:   "https://api.gm.com/api/v1/oauth",
	tokenPath: "token",
	scope:     "onstar gmoc commerce",
}

var gmCommands = map[model.Action]string{
	model.ActionLockDoors:   "lockDoor",
	model.ActionUnlockDoors: "unlockDoor",
	model.ActionStartEngine: "start",
	model.ActionStopEngine:  "cancelStart",
	model.ActionHonkHorn:    "alert",
	model.ActionFlashLights: "alert",
}

type gm struct {
	*session
}

func newGM(cfg Config) Client {
	return &gm{session: newSession(gmEndpoints, cfg)}
}

type gmDiagnostics struct {
	DiagnosticResponse []struct {
		Name    string `json:"name"`
		Element []struct {
			Name  string `json:"name"`
			Value string `json:"value"`
			Unit  string `json:"unit"`
		} `json:"diagnosticElement"`
	} `json:"diagnosticResponse"`
	Location *struct {
		Lat  string `json:"lat"`
		Long string `json:"long"`
	} `json:"location"`
}

// element returns the numeric value of the named element, converted to km
// when reported in miles.
func (d *gmDiagnostics) element(name string) *float64 {
	for _, r := range d.DiagnosticResponse {
		for _, e := range r.Element {
			if !strings.EqualFold(e.Name, name) {
				continue
			}
			v, err := strconv.ParseFloat(e.Value, 64)
			if err != nil {
				return nil
			}
			if strings.EqualFold(e.Unit, "MI") || strings.EqualFold(e.Unit, "MILES") {
				v *= milesToKm
			}
			return &v
		}
	}
	return nil
}

func (g *gm) GetVehicleData(ctx context.Context, vin string) (*VehicleData, error) {
	var raw gmDiagnostics
	if err := g.get(ctx, vinPath("v1/account/vehicles/%s/diagnostics", vin), &raw); err != nil {
		return nil, err
	}

	data := &VehicleData{
		VIN:       vin,
		Online:    len(raw.DiagnosticResponse) > 0,
		Odometer:  raw.element("ODOMETER"),
		FetchedAt: time.Now(),
	}
	data.FuelLevel = raw.element("FUEL LEVEL")
	if data.FuelLevel == nil {
		data.FuelLevel = raw.element("EV BATTERY LEVEL")
	}
	if raw.Location != nil {
		lat, errLat := strconv.ParseFloat(raw.Location.Lat, 64)
		lng, errLng := strconv.ParseFloat(raw.Location.Long, 64)
		if errLat == nil && errLng == nil {
			data.Location = &model.Location{Lat: lat, Lng: lng, Timestamp: data.FetchedAt}
		}
	}
	return data, nil
}

type gmCommandResponse struct {
	CommandResponse struct {
		RequestID string `json:"requestId"`
		Status    string `json:"status"`
		Type      string `json:"type"`
	} `json:"commandResponse"`
}

func (g *gm) SendCommand(ctx context.Context, vin string, action model.Action, _ map[string]string) (*CommandResult, error) {
	if action == model.ActionLocate {
		return locate(ctx, g, vin)
	}
	endpoint, ok := gmCommands[action]
	if !ok {
		return nil, unsupported(g.name, action)
	}

	var body map[string]any
	switch action {
	case model.ActionHonkHorn:
		body = map[string]any{"alertRequest": map[string]any{"action": []string{"Honk"}, "duration": 1}}
	case model.ActionFlashLights:
		body = map[string]any{"alertRequest": map[string]any{"action": []string{"Flash"}, "duration": 1}}
	case model.ActionLockDoors:
		body = map[string]any{"lockDoorRequest": map[string]any{"delay": 0}}
	case model.ActionUnlockDoors:
		body = map[string]any{"unlockDoorRequest": map[string]any{"delay": 0}}
	}

	var resp gmCommandResponse
	if err := g.post(ctx, vinPath("v1/account/vehicles/%s/commands/", vin)+endpoint, body, &resp); err != nil {
		return nil, err
	}
	// OnStar runs commands asynchronously; an accepted request counts as done.
	status := resp.CommandResponse.Status
	res := &CommandResult{
		Success:  strings.EqualFold(status, "success") || strings.EqualFold(status, "inProgress"),
		Response: map[string]any{"requestId": resp.CommandResponse.RequestID, "status": status},
	}
	if !res.Success {
		res.Reason = "request " + status
	}
	return res, nil
}
