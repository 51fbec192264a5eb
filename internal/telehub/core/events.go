package core

// Realtime event names.
const (
	EventRegisterVehicle = "register:vehicle"
	EventRegistered      = "registered"
	EventRegisterError   = "register:error"
	EventVehicleStatus   = "vehicle:status"
	EventStatusUpdate    = "status:update"
	EventVehicleLocation = "vehicle:location"
	EventLocationUpdate  = "location:update"
	EventGeofenceAlert   = "alert:geofence"
	EventCommandSend     = "command:send"
	EventCommandExecute  = "command:execute"
	EventCommandResult   = "command:result"
	EventCommandUpdate   = "command:update"
	EventError           = "error"
)

// VehicleGroup is the broadcast group of every observer of a vehicle.
func VehicleGroup(vehicleID string) string { return "vehicle:" + vehicleID }

// UserGroup is the personal broadcast group of a user.
func UserGroup(userID string) string { return "user:" + userID }
