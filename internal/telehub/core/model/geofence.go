package model

// GeoFence is a circular boundary around a vehicle's permitted area.
type GeoFence struct {
	VehicleID    string  `json:"vehicleId"`
	CenterLat    float64 `json:"centerLat"`
	CenterLng    float64 `json:"centerLng"`
	RadiusMeters float64 `json:"radiusMeters"`
	Enabled      bool    `json:"enabled"`
	Notify       bool    `json:"notify"`
}
