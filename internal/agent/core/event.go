package core

type EventType string

const (
	EventStatus        EventType = "vehicle.status"
	EventLocation      EventType = "vehicle.location"
	EventOnline        EventType = "vehicle.online"
	EventCommand       EventType = "command.execute"
	EventCommandResult EventType = "command.result"
)
