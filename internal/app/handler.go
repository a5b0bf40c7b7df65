package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/rbright/inkwell/internal/capture"
	"github.com/rbright/inkwell/internal/fsm"
	"github.com/rbright/inkwell/internal/ipc"
	"github.com/rbright/inkwell/internal/network"
)

// controller is the subset of the capture controller the IPC surface drives.
type controller interface {
	StartListening()
	StopListening()
	ResetTranscript()
	Snapshot() capture.Snapshot
}

// rebaser is a transcript consumer that tracks its own merge origin.
type rebaser interface {
	Rebase()
}

// commandHandler maps IPC commands onto the owner's controller.
type commandHandler struct {
	ctrl    controller
	network *network.Manual
	rebase  rebaser
	quit    context.CancelFunc
	logger  *slog.Logger
}

func (h *commandHandler) Handle(_ context.Context, req ipc.Request) ipc.Response {
	h.logger.Debug("ipc command", "command", req.Command)

	switch req.Command {
	case ipc.CommandStart:
		h.ctrl.StartListening()
		return h.reply("")
	case ipc.CommandStop:
		h.ctrl.StopListening()
		return h.reply("")
	case ipc.CommandToggle:
		snap := h.ctrl.Snapshot()
		if fsm.Active(snap.Phase) || snap.IsListening {
			h.ctrl.StopListening()
		} else {
			h.ctrl.StartListening()
		}
		return h.reply("")
	case ipc.CommandReset:
		h.ctrl.ResetTranscript()
		if h.rebase != nil {
			h.rebase.Rebase()
		}
		return h.reply("transcript cleared")
	case ipc.CommandStatus:
		return h.reply("")
	case ipc.CommandOnline, ipc.CommandOffline:
		online := req.Command == ipc.CommandOnline
		if h.network != nil && h.network.Set(online) {
			h.logger.Info("connectivity set over ipc", "online", online)
		}
		return h.reply(string(req.Command))
	case ipc.CommandQuit:
		if h.quit != nil {
			h.quit()
		}
		return h.reply("quitting")
	default:
		return ipc.Response{OK: false, Error: fmt.Sprintf("unknown command %q", req.Command)}
	}
}

func (h *commandHandler) reply(message string) ipc.Response {
	snap := h.ctrl.Snapshot()
	return ipc.Response{OK: true, Snapshot: &snap, Message: message}
}
