// Package command executes the commands the hub sends to this vehicle.
package command

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/autopeer-io/telehub/internal/agent/core"
	"github.com/autopeer-io/telehub/internal/manufacturer"
	"github.com/autopeer-io/telehub/internal/pkg/wire"
	"github.com/autopeer-io/telehub/pkg/log"
)

// Module answers every command:execute with exactly one command:result.
// Commands run through the manufacturer API when one is configured and are
// acknowledged locally otherwise.
type Module struct {
	vehicleID string
	vin       string
	mf        manufacturer.Client

	gw     core.Gateway
	sender core.Sender
}

var _ core.Module = (*Module)(nil)

// New returns the executor for vehicleID. mf may be nil.
func New(vehicleID, vin string, mf manufacturer.Client) *Module {
	return &Module{vehicleID: vehicleID, vin: vin, mf: mf}
}

func (m *Module) Name() string { return "command" }

func (m *Module) Setup(_ context.Context, gw core.Gateway, sender core.Sender) error {
	m.gw, m.sender = gw, sender
	return nil
}

func (m *Module) Routes() map[core.EventType]core.HandlerFunc {
	return map[core.EventType]core.HandlerFunc{
		core.EventCommand: m.handleExecute,
	}
}

func (m *Module) handleExecute(ctx context.Context, payload []byte) error {
	var cmd wire.CommandExecute
	if err := json.Unmarshal(payload, &cmd); err != nil {
		return fmt.Errorf("decode command: %w", err)
	}
	if cmd.CommandID == "" {
		return errors.New("command without id")
	}
	if cmd.VehicleID != "" && cmd.VehicleID != m.vehicleID {
		log.Warn("Ignoring command for another vehicle", "commandID", cmd.CommandID, "vehicleID", cmd.VehicleID)
		return nil
	}

	logger := log.WithValues("commandID", cmd.CommandID, "action", cmd.Action)
	res := m.execute(ctx, &cmd)
	if res.Success {
		logger.Info("Command executed")
	} else {
		logger.Warn("Command failed", "error", res.Error)
	}
	return m.sender.SendJSON(ctx, core.EventCommandResult, res)
}

func (m *Module) execute(ctx context.Context, cmd *wire.CommandExecute) *wire.CommandResult {
	res := &wire.CommandResult{CommandID: cmd.CommandID}

	if m.mf == nil {
		res.Success = true
		res.Response = map[string]any{"acknowledged": true}
		if dev := m.gw.Active(); dev != nil {
			res.Response["transport"] = string(dev.Transport)
		}
		return res
	}

	out, err := m.mf.SendCommand(ctx, m.vin, cmd.Action, cmd.Parameters)
	switch {
	case errors.Is(err, manufacturer.ErrUnsupportedAction):
		res.Error = fmt.Sprintf("action %s is not supported by this vehicle", cmd.Action)
	case err != nil:
		res.Error = "manufacturer API error: " + err.Error()
	default:
		res.Success = out.Success
		res.Response = out.Response
		if !out.Success {
			res.Error = out.Reason
			if res.Error == "" {
				res.Error = "rejected by manufacturer"
			}
		}
	}
	return res
}
