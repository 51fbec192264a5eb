package topic

import (
	"fmt"
	"strings"
)

// Topic suffixes shared by the hub and the vehicle agent. Changing them breaks
// agents already deployed in vehicles.
const (
	// SuffixCommand carries command:execute to one vehicle (hub -> vehicle).
	// Structure: {root}/command/{vehicleID}
	SuffixCommand = "command"

	// SuffixCommandResult carries command:result back (vehicle -> hub).
	// Structure: {root}/command/result/{vehicleID}
	SuffixCommandResult = "command/result"

	// SuffixVehicleStatus carries vehicle:status snapshots (vehicle -> hub).
	SuffixVehicleStatus = "vehicle/status"

	// SuffixVehicleLocation carries vehicle:location fixes (vehicle -> hub).
	SuffixVehicleLocation = "vehicle/location"

	// SuffixVehicleOnline carries the agent's retained presence flag and its
	// last-will "offline" message (vehicle -> hub).
	SuffixVehicleOnline = "vehicle/online"
)

// TopicBuilder encapsulates the logic for constructing MQTT topic strings.
type TopicBuilder struct {
	// root is the base namespace for all topics (e.g., "iov/v1").
	root string
}

// NewTopicBuilder creates a new instance of TopicBuilder with the specified root namespace.
func NewTopicBuilder(root string) *TopicBuilder {
	return &TopicBuilder{root: strings.TrimSuffix(root, "/")}
}

// Command returns the downstream command topic of a vehicle.
func (b *TopicBuilder) Command(vehicleID string) string {
	return b.build(SuffixCommand, vehicleID)
}

// CommandResult returns the topic a vehicle reports command outcomes on.
func (b *TopicBuilder) CommandResult(vehicleID string) string {
	return b.build(SuffixCommandResult, vehicleID)
}

func (b *TopicBuilder) VehicleStatus(vehicleID string) string {
	return b.build(SuffixVehicleStatus, vehicleID)
}

func (b *TopicBuilder) VehicleLocation(vehicleID string) string {
	return b.build(SuffixVehicleLocation, vehicleID)
}

func (b *TopicBuilder) VehicleOnline(vehicleID string) string {
	return b.build(SuffixVehicleOnline, vehicleID)
}

// Wildcard returns the filter matching suffix for every vehicle.
// Result: {root}/{suffix}/+
func (b *TopicBuilder) Wildcard(suffix string) string {
	return b.build(suffix, Wildcard)
}

// Shared wraps filter in a shared subscription for group. An empty group
// returns filter unchanged.
func Shared(group, filter string) string {
	if group == "" {
		return filter
	}
	return fmt.Sprintf("$share/%s/%s", group, filter)
}

// Parse splits a concrete topic into its suffix and vehicle id. ok is false
// when the topic is outside root or carries no id.
func (b *TopicBuilder) Parse(topic string) (suffix, vehicleID string, ok bool) {
	rest, found := strings.CutPrefix(topic, b.root+"/")
	if !found {
		return "", "", false
	}
	i := strings.LastIndexByte(rest, '/')
	if i <= 0 || i == len(rest)-1 {
		return "", "", false
	}
	return rest[:i], rest[i+1:], true
}

// build is a private helper to construct the final topic string.
// Pattern: {root}/{suffix}/{identifier}
func (b *TopicBuilder) build(suffix, id string) string {
	return fmt.Sprintf("%s/%s/%s", b.root, suffix, id)
}
