package model

import "time"

// ConnectivityLog records one connected/disconnected edge of a vehicle.
type ConnectivityLog struct {
	VehicleID string    `json:"vehicleId"`
	Connected bool      `json:"connected"`
	Transport string    `json:"transport,omitempty"`
	Reason    string    `json:"reason,omitempty"`
	At        time.Time `json:"at"`
}
