package obd

import "strings"

// Severity ranks how urgently a trouble code needs attention.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// DiagnosticInfo enriches a trouble code for display.
type DiagnosticInfo struct {
	Code        string   `json:"code"`
	Description string   `json:"description"`
	Severity    Severity `json:"severity"`
	Category    string   `json:"category"`
	Causes      []string `json:"causes"`
	Remedies    []string `json:"remedies"`
}

var diagnostics = map[string]DiagnosticInfo{
	"P0101": {
		Description: "Mass air flow sensor circuit range/performance",
		Severity:    SeverityMedium,
		Category:    "fuel and air metering",
		Causes:      []string{"Dirty or contaminated MAF sensor", "Intake air leak", "Clogged air filter"},
		Remedies:    []string{"Clean the MAF sensor", "Inspect intake ducts for leaks", "Replace the air filter"},
	},
	"P0128": {
		Description: "Coolant thermostat below regulating temperature",
		Severity:    SeverityLow,
		Category:    "cooling system",
		Causes:      []string{"Thermostat stuck open", "Faulty coolant temperature sensor"},
		Remedies:    []string{"Replace the thermostat", "Test the coolant temperature sensor"},
	},
	"P0171": {
		Description: "System too lean (bank 1)",
		Severity:    SeverityMedium,
		Category:    "fuel and air metering",
		Causes:      []string{"Vacuum leak", "Weak fuel pump", "Clogged fuel injectors", "Dirty MAF sensor"},
		Remedies:    []string{"Smoke test for vacuum leaks", "Check fuel pressure", "Clean or replace injectors"},
	},
	"P0300": {
		Description: "Random/multiple cylinder misfire detected",
		Severity:    SeverityHigh,
		Category:    "ignition system",
		Causes:      []string{"Worn spark plugs", "Faulty ignition coils", "Low fuel pressure", "Vacuum leak"},
		Remedies:    []string{"Replace spark plugs", "Test ignition coils", "Check fuel delivery"},
	},
	"P0301": {
		Description: "Cylinder 1 misfire detected",
		Severity:    SeverityHigh,
		Category:    "ignition system",
		Causes:      []string{"Faulty spark plug or coil on cylinder 1", "Leaking injector", "Low compression"},
		Remedies:    []string{"Swap the coil to another cylinder to isolate", "Replace the spark plug", "Run a compression test"},
	},
	"P0420": {
		Description: "Catalyst system efficiency below threshold (bank 1)",
		Severity:    SeverityMedium,
		Category:    "emissions",
		Causes:      []string{"Failing catalytic converter", "Faulty downstream oxygen sensor", "Exhaust leak"},
		Remedies:    []string{"Test the oxygen sensors", "Repair exhaust leaks", "Replace the catalytic converter"},
	},
	"P0442": {
		Description: "Evaporative emission system leak detected (small leak)",
		Severity:    SeverityLow,
		Category:    "emissions",
		Causes:      []string{"Loose or damaged fuel cap", "Cracked EVAP hose", "Faulty purge valve"},
		Remedies:    []string{"Tighten or replace the fuel cap", "Smoke test the EVAP system"},
	},
	"P0455": {
		Description: "Evaporative emission system leak detected (large leak)",
		Severity:    SeverityLow,
		Category:    "emissions",
		Causes:      []string{"Missing fuel cap", "Disconnected EVAP hose", "Faulty vent valve"},
		Remedies:    []string{"Check the fuel cap", "Inspect EVAP lines and valves"},
	},
	"P0500": {
		Description: "Vehicle speed sensor malfunction",
		Severity:    SeverityMedium,
		Category:    "speed control",
		Causes:      []string{"Faulty speed sensor", "Damaged wiring", "ABS module fault"},
		Remedies:    []string{"Inspect sensor wiring", "Replace the vehicle speed sensor"},
	},
	"P0562": {
		Description: "System voltage low",
		Severity:    SeverityHigh,
		Category:    "electrical",
		Causes:      []string{"Failing alternator", "Weak battery", "Corroded battery terminals"},
		Remedies:    []string{"Test charging system output", "Clean terminals", "Replace the battery"},
	},
	"P0217": {
		Description: "Engine coolant over temperature condition",
		Severity:    SeverityCritical,
		Category:    "cooling system",
		Causes:      []string{"Low coolant", "Failed water pump", "Blocked radiator"},
		Remedies:    []string{"Stop driving and let the engine cool", "Refill coolant and pressure test", "Inspect water pump and radiator"},
	},
	"C0035": {
		Description: "Left front wheel speed sensor circuit",
		Severity:    SeverityHigh,
		Category:    "brakes",
		Causes:      []string{"Damaged wheel speed sensor", "Broken sensor wiring", "Dirty tone ring"},
		Remedies:    []string{"Inspect and clean the sensor", "Repair wiring", "Replace the sensor"},
	},
	"B0001": {
		Description: "Driver frontal stage 1 deployment control",
		Severity:    SeverityCritical,
		Category:    "restraints",
		Causes:      []string{"Open or shorted airbag circuit", "Faulty clock spring"},
		Remedies:    []string{"Have the restraint system inspected by a qualified technician"},
	},
	"U0100": {
		Description: "Lost communication with ECM/PCM",
		Severity:    SeverityCritical,
		Category:    "network",
		Causes:      []string{"CAN bus wiring fault", "ECM power or ground failure", "Failed ECM"},
		Remedies:    []string{"Check CAN bus termination and wiring", "Verify ECM power and ground"},
	},
}

// LookupDiagnostic returns the knowledge base entry for code. A miss only means
// no enrichment is available.
func LookupDiagnostic(code string) (*DiagnosticInfo, bool) {
	code = strings.ToUpper(strings.TrimSpace(code))
	info, ok := diagnostics[code]
	if !ok {
		return nil, false
	}
	info.Code = code
	info.Causes = append([]string(nil), info.Causes...)
	info.Remedies = append([]string(nil), info.Remedies...)
	return &info, true
}
