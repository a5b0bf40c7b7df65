// Package cli defines the inkwell command tree.
package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

// Command names one CLI operation.
type Command string

const (
	CommandListen  Command = "listen"
	CommandToggle  Command = "toggle"
	CommandStart   Command = "start"
	CommandStop    Command = "stop"
	CommandReset   Command = "reset"
	CommandStatus  Command = "status"
	CommandOnline  Command = "online"
	CommandOffline Command = "offline"
	CommandQuit    Command = "quit"
	CommandDevices Command = "devices"
	CommandDoctor  Command = "doctor"
	CommandVersion Command = "version"
)

// Invocation is one parsed command line.
type Invocation struct {
	Command    Command
	ConfigPath string
	// StartNow begins listening as soon as the owner is up.
	StartNow bool
	// JSON requests machine-readable output where supported.
	JSON bool
}

// Handler runs one invocation.
type Handler func(ctx context.Context, inv Invocation) error

// RunError marks a failure of the command itself rather than of argument parsing.
type RunError struct {
	Err error
}

func (e *RunError) Error() string { return e.Err.Error() }
func (e *RunError) Unwrap() error { return e.Err }

type subcommand struct {
	command Command
	short   string
}

var forwarded = []subcommand{
	{CommandToggle, "Start listening, or stop when already listening"},
	{CommandStart, "Start listening in the running listener"},
	{CommandStop, "Stop listening"},
	{CommandReset, "Discard the accumulated transcript"},
	{CommandOnline, "Report the host as online"},
	{CommandOffline, "Report the host as offline"},
	{CommandQuit, "Shut the running listener down"},
	{CommandDevices, "List available input devices"},
	{CommandDoctor, "Run configuration and environment checks"},
	{CommandVersion, "Print version information"},
}

// NewRoot builds the command tree. Every subcommand funnels into handle.
func NewRoot(binaryName string, handle Handler) *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           binaryName,
		Short:         "Continuous dictation into a draft document",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}
	root.PersistentFlags().StringVar(&configPath, "config", "",
		"config file path (default $XDG_CONFIG_HOME/inkwell/config.yaml)")

	run := func(inv Invocation) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, _ []string) error {
			inv.ConfigPath = configPath
			if err := handle(cmd.Context(), inv); err != nil {
				return &RunError{Err: err}
			}
			return nil
		}
	}

	listen := &cobra.Command{
		Use:   string(CommandListen),
		Short: "Own the microphone and serve control commands",
		Args:  cobra.NoArgs,
	}
	startNow := listen.Flags().Bool("start", false, "start listening immediately")
	listen.RunE = func(cmd *cobra.Command, args []string) error {
		return run(Invocation{Command: CommandListen, StartNow: *startNow})(cmd, args)
	}
	root.AddCommand(listen)

	status := &cobra.Command{
		Use:   string(CommandStatus),
		Short: "Print the listener state",
		Args:  cobra.NoArgs,
	}
	asJSON := status.Flags().Bool("json", false, "print the full snapshot as JSON")
	status.RunE = func(cmd *cobra.Command, args []string) error {
		return run(Invocation{Command: CommandStatus, JSON: *asJSON})(cmd, args)
	}
	root.AddCommand(status)

	for _, s := range forwarded {
		root.AddCommand(&cobra.Command{
			Use:   string(s.command),
			Short: s.short,
			Args:  cobra.NoArgs,
			RunE:  run(Invocation{Command: s.command}),
		})
	}

	return root
}

// Usage renders the short usage message for a binary.
func Usage(binaryName string) string {
	return fmt.Sprintf("Run '%s --help' for usage.\n", binaryName)
}
