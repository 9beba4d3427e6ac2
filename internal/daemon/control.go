package daemon

import (
	"context"
	"errors"

	"github.com/rbright/voxd/internal/ipc"
	"github.com/rbright/voxd/internal/session"
)

// HandleControl answers one authenticated socket request.
func (d *Daemon) HandleControl(ctx context.Context, req ipc.Request) string {
	switch req.Command {
	case ipc.CommandPing:
		return ipc.ResponsePong
	case ipc.CommandStatus:
		return string(d.deps.Machine.State())
	case ipc.CommandStart:
		if _, err := d.deps.Runner.Start(ctx, session.ModeStandard, ""); err != nil {
			var busy *session.BusyError
			if errors.As(err, &busy) {
				return ipc.Busy(string(busy.State))
			}
			d.logWarn("control start failed", "error", err.Error())
			return ipc.Fail(wireError(err).Code)
		}
		return ipc.ResponseOK
	case ipc.CommandStop:
		if _, _, err := d.deps.Runner.Stop(); err != nil {
			d.logWarn("control stop failed", "error", err.Error())
			return ipc.Fail(wireError(err).Code)
		}
		return ipc.ResponseOK
	case ipc.CommandReset:
		d.deps.Runner.Reset()
		return ipc.ResponseOK
	default:
		return ipc.Fail(ipc.ReasonUnknownCommand)
	}
}

// ControlHandler adapts HandleControl to ipc.Handler.
func (d *Daemon) ControlHandler() ipc.Handler {
	return ipc.HandlerFunc(d.HandleControl)
}
