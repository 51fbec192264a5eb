package hub

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/autopeer-io/telehub/internal/agent/core"
	"github.com/autopeer-io/telehub/pkg/log"
	"github.com/autopeer-io/telehub/pkg/mqtt"
	"github.com/autopeer-io/telehub/pkg/mqtt/topic"
)

// route maps an event onto its topic and publish flags.
type route struct {
	topic  func(vid string) string
	retain bool
}

// Hub is the agent's side of the vehicle bus: it publishes events for one
// vehicle and dispatches the events addressed to it.
type Hub struct {
	vid string

	mc     mqtt.Client
	topics *topic.TopicBuilder
	events map[core.EventType]route
	routes map[string]core.HandlerFunc
}

var _ core.Sender = (*Hub)(nil)

func New(vid string, client mqtt.Client, topics *topic.TopicBuilder) *Hub {
	return &Hub{
		vid:    vid,
		mc:     client,
		topics: topics,
		events: map[core.EventType]route{
			core.EventStatus:        {topic: topics.VehicleStatus, retain: true},
			core.EventLocation:      {topic: topics.VehicleLocation},
			core.EventOnline:        {topic: topics.VehicleOnline, retain: true},
			core.EventCommand:       {topic: topics.Command},
			core.EventCommandResult: {topic: topics.CommandResult},
		},
		routes: make(map[string]core.HandlerFunc),
	}
}

// Register routes inbound event to handler. It must be called before Start.
func (b *Hub) Register(event core.EventType, handler core.HandlerFunc) error {
	r, ok := b.events[event]
	if !ok {
		return fmt.Errorf("unmapped event: %s", event)
	}
	b.routes[r.topic(b.vid)] = handler
	return nil
}

func (b *Hub) Send(ctx context.Context, event core.EventType, payload []byte) error {
	r, ok := b.events[event]
	if !ok {
		return fmt.Errorf("unmapped event: %s", event)
	}
	return b.mc.Publish(ctx, r.topic(b.vid), 1, r.retain, payload)
}

func (b *Hub) SendJSON(ctx context.Context, event core.EventType, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return b.Send(ctx, event, payload)
}

func (b *Hub) IsConnected() bool {
	return b.mc.IsConnected()
}

func (b *Hub) Start(ctx context.Context) error {
	if err := b.mc.Start(ctx); err != nil {
		return err
	}

	if err := b.mc.AwaitConnection(ctx); err != nil {
		return err
	}

	for filter, handler := range b.routes {
		err := b.mc.Subscribe(ctx, filter, 1, func(c context.Context, _ string, p []byte) {
			if handleErr := handler(c, p); handleErr != nil {
				log.Error(handleErr, "Handler execution failed", "topic", filter)
			}
		})
		if err != nil {
			return err
		}
	}

	return nil
}

func (b *Hub) Stop() {
	log.Info("Disconnecting MQTT client...")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	b.mc.Disconnect(ctx)
}
