// Package obd decodes OBD-II mode 01 parameters and diagnostic trouble codes.
//
// The parameter registry is built at package init and never changes, so every
// function here is safe for concurrent use.
package obd

import (
	"slices"
	"strings"
)

// Category groups parameters for display and filtering.
type Category string

const (
	CategoryEngine      Category = "engine"
	CategoryFuel        Category = "fuel"
	CategoryTemperature Category = "temperature"
	CategorySpeed       Category = "speed"
	CategoryElectrical  Category = "electrical"
	CategoryEmissions   Category = "emissions"
	CategoryDistance    Category = "distance"
)

// Formula converts the raw data bytes of a response into a physical value.
// It is only ever called with exactly Parameter.Bytes bytes.
type Formula func(data []byte) float64

// Parameter describes one mode 01 PID.
type Parameter struct {
	PID      string   `json:"pid"`
	Name     string   `json:"name"`
	Unit     string   `json:"unit"`
	Min      float64  `json:"min"`
	Max      float64  `json:"max"`
	Bytes    int      `json:"bytes"`
	Category Category `json:"category"`
	Formula  Formula  `json:"-"`
}

var registry = map[string]Parameter{}

func register(p Parameter) {
	registry[p.PID] = p
}

func normalizePID(pid string) string {
	pid = strings.ToUpper(strings.TrimSpace(pid))
	pid = strings.TrimPrefix(pid, "0X")
	if len(pid) == 1 {
		pid = "0" + pid
	}
	return pid
}

func init() {
	// SAE J1979 mode 01 formulas. A and B are the first and second data bytes.
	for _, p := range []Parameter{
		{PID: "04", Name: "Calculated engine load", Unit: "%", Min: 0, Max: 100, Bytes: 1, Category: CategoryEngine,
			Formula: func(d []byte) float64 { return float64(d[0]) * 100 / 255 }},
		{PID: "05", Name: "Engine coolant temperature", Unit: "°C", Min: -40, Max: 215, Bytes: 1, Category: CategoryTemperature,
			Formula: offset40},
		{PID: "0A", Name: "Fuel pressure", Unit: "kPa", Min: 0, Max: 765, Bytes: 1, Category: CategoryFuel,
			Formula: func(d []byte) float64 { return float64(d[0]) * 3 }},
		{PID: "0B", Name: "Intake manifold absolute pressure", Unit: "kPa", Min: 0, Max: 255, Bytes: 1, Category: CategoryEngine,
			Formula: single},
		{PID: "0C", Name: "Engine speed", Unit: "rpm", Min: 0, Max: 16383.75, Bytes: 2, Category: CategoryEngine,
			Formula: func(d []byte) float64 { return word(d) / 4 }},
		{PID: "0D", Name: "Vehicle speed", Unit: "km/h", Min: 0, Max: 255, Bytes: 1, Category: CategorySpeed,
			Formula: single},
		{PID: "0E", Name: "Timing advance", Unit: "° before TDC", Min: -64, Max: 63.5, Bytes: 1, Category: CategoryEngine,
			Formula: func(d []byte) float64 { return float64(d[0])/2 - 64 }},
		{PID: "0F", Name: "Intake air temperature", Unit: "°C", Min: -40, Max: 215, Bytes: 1, Category: CategoryTemperature,
			Formula: offset40},
		{PID: "10", Name: "Mass air flow rate", Unit: "g/s", Min: 0, Max: 655.35, Bytes: 2, Category: CategoryEngine,
			Formula: func(d []byte) float64 { return word(d) / 100 }},
		{PID: "11", Name: "Throttle position", Unit: "%", Min: 0, Max: 100, Bytes: 1, Category: CategoryEngine,
			Formula: func(d []byte) float64 { return float64(d[0]) * 100 / 255 }},
		{PID: "1F", Name: "Run time since engine start", Unit: "s", Min: 0, Max: 65535, Bytes: 2, Category: CategoryEngine,
			Formula: word},
		{PID: "21", Name: "Distance traveled with MIL on", Unit: "km", Min: 0, Max: 65535, Bytes: 2, Category: CategoryDistance,
			Formula: word},
		{PID: "2F", Name: "Fuel tank level input", Unit: "%", Min: 0, Max: 100, Bytes: 1, Category: CategoryFuel,
			Formula: func(d []byte) float64 { return float64(d[0]) * 100 / 255 }},
		{PID: "31", Name: "Distance traveled since codes cleared", Unit: "km", Min: 0, Max: 65535, Bytes: 2, Category: CategoryDistance,
			Formula: word},
		{PID: "33", Name: "Absolute barometric pressure", Unit: "kPa", Min: 0, Max: 255, Bytes: 1, Category: CategoryEmissions,
			Formula: single},
		{PID: "42", Name: "Control module voltage", Unit: "V", Min: 0, Max: 65.535, Bytes: 2, Category: CategoryElectrical,
			Formula: func(d []byte) float64 { return word(d) / 1000 }},
		{PID: "46", Name: "Ambient air temperature", Unit: "°C", Min: -40, Max: 215, Bytes: 1, Category: CategoryTemperature,
			Formula: offset40},
		{PID: "5C", Name: "Engine oil temperature", Unit: "°C", Min: -40, Max: 215, Bytes: 1, Category: CategoryTemperature,
			Formula: offset40},
		{PID: "5E", Name: "Engine fuel rate", Unit: "L/h", Min: 0, Max: 3276.75, Bytes: 2, Category: CategoryFuel,
			Formula: func(d []byte) float64 { return word(d) / 20 }},
	} {
		register(p)
	}
}

func single(d []byte) float64   { return float64(d[0]) }
func offset40(d []byte) float64 { return float64(d[0]) - 40 }
func word(d []byte) float64     { return float64(d[0])*256 + float64(d[1]) }

// Lookup returns the definition of pid. Both "0C" and "0x0c" are accepted.
func Lookup(pid string) (Parameter, bool) {
	p, ok := registry[normalizePID(pid)]
	return p, ok
}

// Parameters returns every registered parameter ordered by PID.
func Parameters() []Parameter {
	out := make([]Parameter, 0, len(registry))
	for _, p := range registry {
		out = append(out, p)
	}
	slices.SortFunc(out, func(a, b Parameter) int { return strings.Compare(a.PID, b.PID) })
	return out
}

// ByCategory returns the parameters of cat ordered by PID.
func ByCategory(cat Category) []Parameter {
	var out []Parameter
	for _, p := range Parameters() {
		if p.Category == cat {
			out = append(out, p)
		}
	}
	return out
}

// Categories returns the categories that have at least one parameter.
func Categories() []Category {
	seen := map[Category]struct{}{}
	var out []Category
	for _, p := range Parameters() {
		if _, ok := seen[p.Category]; !ok {
			seen[p.Category] = struct{}{}
			out = append(out, p.Category)
		}
	}
	slices.Sort(out)
	return out
}

// InRange reports whether value lies within the declared range of pid.
// Unknown PIDs are never in range.
func InRange(pid string, value float64) bool {
	p, ok := Lookup(pid)
	if !ok {
		return false
	}
	return value >= p.Min && value <= p.Max
}
