// Package agent is the vehicle-side process: it keeps one gateway connected,
// publishes telemetry to the hub and executes the commands it receives.
package agent

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/autopeer-io/telehub/internal/agent/core"
	"github.com/autopeer-io/telehub/internal/agent/hub"
	"github.com/autopeer-io/telehub/internal/connection"
	"github.com/autopeer-io/telehub/internal/pkg/wire"
	"github.com/autopeer-io/telehub/pkg/log"
)

type Agent struct {
	vehicleID string
	hub       *hub.Hub
	conn      *connection.Manager
	modules   []core.Module

	preferred connection.Kind
	retry     time.Duration
}

func NewAgent(vid string, h *hub.Hub, conn *connection.Manager, preferred connection.Kind, retry time.Duration, modules ...core.Module) *Agent {
	return &Agent{
		vehicleID: vid,
		hub:       h,
		conn:      conn,
		modules:   modules,
		preferred: preferred,
		retry:     retry,
	}
}

func (a *Agent) Run(ctx context.Context) error {
	log.Info("Starting cpeer-obd-agent", "vehicleID", a.vehicleID)

	for _, m := range a.modules {
		if err := m.Setup(ctx, a.conn, a.hub); err != nil {
			return fmt.Errorf("module %s setup failed: %w", m.Name(), err)
		}

		for event, handler := range m.Routes() {
			if err := a.hub.Register(event, handler); err != nil {
				return fmt.Errorf("module %s register event %s failed: %w", m.Name(), event, err)
			}
		}
	}

	if err := a.hub.Start(ctx); err != nil {
		return err
	}
	defer a.hub.Stop()

	a.conn.OnChange(func(_, next *connection.Device) {
		if ctx.Err() == nil {
			a.announce(ctx, next)
		}
	})
	a.announce(ctx, a.conn.Active())

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a.keepConnected(gctx)
		return nil
	})
	for _, m := range a.modules {
		if r, ok := m.(core.Runner); ok {
			g.Go(func() error { return r.Run(gctx) })
		}
	}

	err := g.Wait()
	log.Info("Agent shutting down...")

	a.conn.Disconnect()

	// The will only fires on an unclean drop; say goodbye explicitly.
	offCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if sendErr := a.hub.SendJSON(offCtx, core.EventOnline, wire.Online{Online: false}); sendErr != nil {
		log.Warn("Failed to publish offline state", "error", sendErr.Error())
	}
	return err
}

// announce publishes the retained presence message with the active
// transport.
func (a *Agent) announce(ctx context.Context, active *connection.Device) {
	msg := wire.Online{Online: true}
	if active != nil {
		msg.Transport = string(active.Transport)
	}
	if err := a.hub.SendJSON(ctx, core.EventOnline, msg); err != nil {
		log.Warn("Failed to publish online state", "error", err.Error())
	}
}

// keepConnected connects a gateway now and again every retry interval while
// none is active.
func (a *Agent) keepConnected(ctx context.Context) {
	ticker := time.NewTicker(a.retry)
	defer ticker.Stop()

	for {
		if a.conn.Active() == nil {
			a.connect(ctx)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (a *Agent) connect(ctx context.Context) bool {
	res := a.conn.ScanAll(ctx)
	dev := Pick(res, a.preferred)
	if dev == nil {
		log.Info("No gateway found", "elapsed", res.Elapsed)
		return false
	}
	return a.conn.Connect(ctx, dev)
}

// Pick chooses the device to connect: the first live device of the
// preferred transport, then the first live device of any transport, then
// the preferred transport's demo device, then the first device of the
// primary transport.
func Pick(res connection.ScanResult, preferred connection.Kind) *connection.Device {
	first := func(match func(*connection.Device) bool) *connection.Device {
		for _, d := range res.Devices {
			if match(d) {
				return d
			}
		}
		return nil
	}

	if d := first(func(d *connection.Device) bool { return !d.Demo && d.Transport == preferred }); d != nil {
		return d
	}
	if d := first(func(d *connection.Device) bool { return !d.Demo }); d != nil {
		return d
	}
	if d := first(func(d *connection.Device) bool { return d.Transport == preferred }); d != nil {
		return d
	}
	return first(func(d *connection.Device) bool { return d.Transport == res.PrimaryTransport })
}
