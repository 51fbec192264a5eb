package agent

import (
	"os"
	"strings"

	"github.com/autopeer-io/telehub/pkg/log"
)

const (
	envVehicleID  = "TELEHUB_VEHICLE_ID"
	vehicleIDFile = "/etc/telehub/vin"
)

// DiscoverVehicleID reads the vehicle id from the environment, then from the
// file provisioned at install time. It returns "" when neither is set.
func DiscoverVehicleID() string {
	if envID := strings.TrimSpace(os.Getenv(envVehicleID)); envID != "" {
		log.Info("VehicleID detected from env", "id", envID)
		return envID
	}

	if content, err := os.ReadFile(vehicleIDFile); err == nil {
		id := strings.TrimSpace(string(content))
		if id != "" {
			log.Info("VehicleID detected from file", "id", id)
			return id
		}
	}

	return ""
}
