package notifier

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/autopeer-io/telehub/internal/pkg/wire"
	"github.com/autopeer-io/telehub/internal/telehub/core"
	"github.com/autopeer-io/telehub/internal/telehub/core/model"
	pkgmqtt "github.com/autopeer-io/telehub/pkg/mqtt"
	"github.com/autopeer-io/telehub/pkg/mqtt/topic"
)

var _ core.CommandNotifier = (*MQTTNotifier)(nil)

// MQTTNotifier publishes command:execute to {root}/command/{vehicleID}.
type MQTTNotifier struct {
	client pkgmqtt.Client
	topics *topic.TopicBuilder
}

// NewMQTTNotifier publishes through client. The caller owns the client
// lifecycle; the hub gives the notifier its own egress connection.
func NewMQTTNotifier(client pkgmqtt.Client, topics *topic.TopicBuilder) *MQTTNotifier {
	return &MQTTNotifier{client: client, topics: topics}
}

func (n *MQTTNotifier) Notify(ctx context.Context, cmd *model.Command) error {
	payload, err := json.Marshal(wire.FromCommand(cmd))
	if err != nil {
		return err
	}

	// QoS 1 without retain: a command must reach the vehicle at least once
	// and must not replay to an agent that subscribes later.
	if err := n.client.Publish(ctx, n.topics.Command(cmd.VehicleID), 1, false, payload); err != nil {
		return fmt.Errorf("publish command %s: %w", cmd.ID, err)
	}
	return nil
}
