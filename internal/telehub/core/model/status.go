package model

import "time"

// StatusSnapshot is the latest known state of a vehicle. The gateway owns it
// and the last writer wins.
type StatusSnapshot struct {
	VehicleID string `json:"vehicleId"`

	EngineRunning bool         `json:"engineRunning"`
	DoorsLocked   bool         `json:"doorsLocked"`
	TrunkOpen     bool         `json:"trunkOpen"`
	Climate       ClimateState `json:"climate"`

	FuelLevel      *float64 `json:"fuelLevel,omitempty"`
	BatteryVoltage *float64 `json:"batteryVoltage,omitempty"`
	Odometer       *float64 `json:"odometer,omitempty"`

	// Readings holds decoded OBD parameters keyed by PID.
	Readings map[string]float64 `json:"readings,omitempty"`
	DTCs     []string           `json:"dtcs,omitempty"`

	Location     *Location    `json:"location,omitempty"`
	Connectivity Connectivity `json:"connectivity"`

	UpdatedAt time.Time `json:"updatedAt"`
}

type ClimateState struct {
	On bool `json:"on"`
	// TargetTemp is in °C; zero means unset.
	TargetTemp float64 `json:"targetTemp,omitempty"`
}

type Connectivity struct {
	IsConnected    bool      `json:"isConnected"`
	Transport      string    `json:"transport,omitempty"`
	SignalStrength int       `json:"signalStrength,omitempty"`
	LastSeen       time.Time `json:"lastSeen,omitempty"`
}

// Location is one position fix.
type Location struct {
	Lat       float64   `json:"lat"`
	Lng       float64   `json:"lng"`
	Heading   *float64  `json:"heading,omitempty"`
	Speed     *float64  `json:"speed,omitempty"`
	Accuracy  *float64  `json:"accuracy,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Clone returns a deep copy of s.
func (s *StatusSnapshot) Clone() *StatusSnapshot {
	if s == nil {
		return nil
	}
	out := *s
	out.FuelLevel = cloneFloat(s.FuelLevel)
	out.BatteryVoltage = cloneFloat(s.BatteryVoltage)
	out.Odometer = cloneFloat(s.Odometer)
	if s.Readings != nil {
		out.Readings = make(map[string]float64, len(s.Readings))
		for k, v := range s.Readings {
			out.Readings[k] = v
		}
	}
	if s.DTCs != nil {
		out.DTCs = append([]string(nil), s.DTCs...)
	}
	if s.Location != nil {
		l := *s.Location
		l.Heading = cloneFloat(l.Heading)
		l.Speed = cloneFloat(l.Speed)
		l.Accuracy = cloneFloat(l.Accuracy)
		out.Location = &l
	}
	return &out
}

func cloneFloat(f *float64) *float64 {
	if f == nil {
		return nil
	}
	v := *f
	return &v
}
