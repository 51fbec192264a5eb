package model

import "time"

// Vehicle is a registered vehicle and its owner.
type Vehicle struct {
	ID      string `json:"id"`
	OwnerID string `json:"ownerId"`
	Name    string `json:"name,omitempty"`
	VIN     string `json:"vin,omitempty"`
	Make    string `json:"make,omitempty"`
	Model   string `json:"model,omitempty"`
	Year    int    `json:"year,omitempty"`

	// RemoteControl is nil when the vehicle has no remote capability configured.
	RemoteControl *RemoteControlConfig `json:"remoteControl,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
}

// OwnedBy reports whether userID owns the vehicle.
func (v *Vehicle) OwnedBy(userID string) bool {
	return v != nil && userID != "" && v.OwnerID == userID
}

// RemoteControlConfig holds the per-vehicle capability flags and verification
// requirements for remote commands.
type RemoteControlConfig struct {
	RemoteLockEnabled     bool `json:"remoteLockEnabled"`
	RemoteStartEnabled    bool `json:"remoteStartEnabled"`
	ClimateControlEnabled bool `json:"climateControlEnabled"`
	HornLightsEnabled     bool `json:"hornLightsEnabled"`
	TrunkEnabled          bool `json:"trunkEnabled"`

	RequirePIN bool `json:"requirePin"`
	// PINHash is a bcrypt hash. When empty a supplied PIN is accepted unchecked.
	PINHash          string `json:"-"`
	RequireBiometric bool   `json:"requireBiometric"`
}
