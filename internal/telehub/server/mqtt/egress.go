package mqtt

import (
	"context"
	"time"

	"github.com/autopeer-io/telehub/pkg/log"
	pkgmqtt "github.com/autopeer-io/telehub/pkg/mqtt"
)

// Egress keeps a publish-only connection, used by the command notifier, open
// until ctx is done.
type Egress struct {
	client pkgmqtt.Client
}

func NewEgress(client pkgmqtt.Client) *Egress {
	return &Egress{client: client}
}

func (e *Egress) Start(ctx context.Context) error {
	if err := e.client.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	e.client.Disconnect(shutdownCtx)
	log.Info("MQTT egress disconnected")
	return nil
}
