// Package ipc carries control commands between inkwell CLI invocations and
// the owning listener process over a unix socket.
package ipc

import (
	"fmt"
	"strings"

	"github.com/rbright/inkwell/internal/capture"
)

// Command names one control operation on the owning process.
type Command string

const (
	CommandStart   Command = "start"
	CommandStop    Command = "stop"
	CommandToggle  Command = "toggle"
	CommandReset   Command = "reset"
	CommandStatus  Command = "status"
	CommandOnline  Command = "online"
	CommandOffline Command = "offline"
	CommandQuit    Command = "quit"
)

// Commands lists every accepted command in help order.
var Commands = []Command{
	CommandStart,
	CommandStop,
	CommandToggle,
	CommandReset,
	CommandStatus,
	CommandOnline,
	CommandOffline,
	CommandQuit,
}

// ParseCommand normalizes and validates a command name.
func ParseCommand(raw string) (Command, error) {
	cmd := Command(strings.ToLower(strings.TrimSpace(raw)))
	for _, known := range Commands {
		if cmd == known {
			return cmd, nil
		}
	}
	return "", fmt.Errorf("unknown command %q", raw)
}

// Request is one newline-delimited JSON command.
type Request struct {
	Command Command `json:"command"`
}

// Response answers a Request. Snapshot is the controller state after the command.
type Response struct {
	OK       bool              `json:"ok"`
	Snapshot *capture.Snapshot `json:"snapshot,omitempty"`
	Message  string            `json:"message,omitempty"`
	Error    string            `json:"error,omitempty"`
}
