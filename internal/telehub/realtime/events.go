package realtime

import (
	"encoding/json"
	"time"

	"github.com/autopeer-io/telehub/internal/pkg/wire"
	"github.com/autopeer-io/telehub/internal/telehub/core/model"
)

// Envelope is the wire frame of every realtime event.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// NewEnvelope encodes payload as the data of event.
func NewEnvelope(event string, payload any) (Envelope, error) {
	if payload == nil {
		return Envelope{Event: event}, nil
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{Event: event, Data: raw}, nil
}

type RegisterPayload struct {
	VehicleID string `json:"vehicleId"`
	UserID    string `json:"userId"`
}

type RegisteredPayload struct {
	VehicleID string `json:"vehicleId"`
}

type StatusPayload struct {
	VehicleID string               `json:"vehicleId"`
	Status    model.StatusSnapshot `json:"status"`
}

type LocationPayload struct {
	VehicleID string    `json:"vehicleId"`
	Lat       float64   `json:"lat"`
	Lng       float64   `json:"lng"`
	Heading   *float64  `json:"heading,omitempty"`
	Speed     *float64  `json:"speed,omitempty"`
	Accuracy  *float64  `json:"accuracy,omitempty"`
	Timestamp time.Time `json:"timestamp,omitempty"`
}

// Location converts p to the stored form.
func (p *LocationPayload) Location() *model.Location {
	return &model.Location{
		Lat:       p.Lat,
		Lng:       p.Lng,
		Heading:   p.Heading,
		Speed:     p.Speed,
		Accuracy:  p.Accuracy,
		Timestamp: p.Timestamp,
	}
}

type LocationUpdate struct {
	VehicleID string         `json:"vehicleId"`
	Location  model.Location `json:"location"`
}

type CommandSendPayload struct {
	VehicleID string       `json:"vehicleId"`
	UserID    string       `json:"userId"`
	CommandID string       `json:"commandId"`
	Action    model.Action `json:"action"`
}

// CommandExecute is sent to the vehicle group and the vehicle bus.
type CommandExecute = wire.CommandExecute

type CommandResultPayload = wire.CommandResult

type GeofenceAlert struct {
	VehicleID      string    `json:"vehicleId"`
	Lat            float64   `json:"lat"`
	Lng            float64   `json:"lng"`
	DistanceMeters float64   `json:"distanceMeters"`
	RadiusMeters   float64   `json:"radiusMeters"`
	At             time.Time `json:"at"`
}

// ErrorPayload reports a rejected inbound event to its sender.
type ErrorPayload struct {
	Event   string `json:"event,omitempty"`
	Code    string `json:"code"`
	Message string `json:"message"`
}
