package command

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/looplab/fsm"

	fsmutil "github.com/autopeer-io/telehub/internal/pkg/util/fsm"
	"github.com/autopeer-io/telehub/internal/telehub/core"
	"github.com/autopeer-io/telehub/internal/telehub/core/model"
)

const (
	eventSend     = "send"
	eventComplete = "complete"
	eventFail     = "fail"
)

var (
	pending   = string(model.CommandStatusPending)
	sent      = string(model.CommandStatusSent)
	completed = string(model.CommandStatusCompleted)
	failed    = string(model.CommandStatusFailed)
)

// commandEvents is the only set of edges a command may take. Terminal states
// have no outgoing edge.
var commandEvents = fsm.Events{
	{Name: eventSend, Src: []string{pending}, Dst: sent},
	{Name: eventComplete, Src: []string{pending, sent}, Dst: completed},
	{Name: eventFail, Src: []string{pending, sent}, Dst: failed},
}

// ErrTerminal is returned when a transition targets a command that already
// finished.
var ErrTerminal = core.ErrCommandTerminal

// errAlreadySent marks a repeated send of a SENT command.
var errAlreadySent = errors.New("command already sent")

// transition moves cmd along event, stamping the timestamps of the state it
// enters.
func transition(ctx context.Context, cmd *model.Command, event string, now time.Time) error {
	machine := fsm.NewFSM(string(cmd.Status), commandEvents, fsm.Callbacks{
		"enter_" + sent:      fsmutil.WrapEvent(stamp(&cmd.SentAt, now)),
		"enter_" + completed: fsmutil.WrapEvent(stamp(&cmd.CompletedAt, now)),
		"enter_" + failed:    fsmutil.WrapEvent(stamp(&cmd.CompletedAt, now)),
	})

	if err := machine.Event(ctx, event); err != nil {
		switch {
		case cmd.Status.IsTerminal():
			return fmt.Errorf("%s %s: %w", event, cmd.ID, ErrTerminal)
		case cmd.Status == model.CommandStatusSent && event == eventSend:
			return errAlreadySent
		case fsmutil.IsRealError(err):
			return fmt.Errorf("%s %s from %s: %w", event, cmd.ID, cmd.Status, err)
		}
	}

	cmd.Status = model.CommandStatus(machine.Current())
	return nil
}

func stamp(field **time.Time, now time.Time) func(context.Context, *fsm.Event) error {
	return func(context.Context, *fsm.Event) error {
		t := now
		*field = &t
		return nil
	}
}
