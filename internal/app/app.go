// Package app wires the inkwell command tree to the capture runtime.
package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/rbright/inkwell/internal/audio"
	"github.com/rbright/inkwell/internal/capture"
	"github.com/rbright/inkwell/internal/cli"
	"github.com/rbright/inkwell/internal/config"
	"github.com/rbright/inkwell/internal/doctor"
	"github.com/rbright/inkwell/internal/fsm"
	"github.com/rbright/inkwell/internal/ipc"
	"github.com/rbright/inkwell/internal/logging"
	"github.com/rbright/inkwell/internal/version"
)

const binaryName = "inkwell"

// Runner executes one CLI invocation against the given output streams.
type Runner struct {
	Stdout io.Writer
	Stderr io.Writer
	// Logger overrides the file logger built from config.
	Logger *slog.Logger
}

// Execute runs args and returns the process exit code.
func Execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	r := Runner{Stdout: stdout, Stderr: stderr}
	return r.Execute(ctx, args)
}

// Execute returns 0 on success, 1 when a command fails and 2 on usage errors.
func (r Runner) Execute(ctx context.Context, args []string) int {
	root := cli.NewRoot(binaryName, r.run)
	root.SetArgs(args)
	root.SetOut(r.Stdout)
	root.SetErr(r.Stderr)

	err := root.ExecuteContext(ctx)
	if err == nil {
		return 0
	}

	var runErr *cli.RunError
	if errors.As(err, &runErr) {
		fmt.Fprintf(r.Stderr, "error: %v\n", runErr.Err)
		return 1
	}
	fmt.Fprintf(r.Stderr, "error: %v\n", err)
	fmt.Fprint(r.Stderr, cli.Usage(binaryName))
	return 2
}

func (r Runner) run(ctx context.Context, inv cli.Invocation) error {
	if inv.Command == cli.CommandVersion {
		fmt.Fprintln(r.Stdout, version.String())
		return nil
	}

	loaded, err := config.Load(inv.ConfigPath)
	if err != nil {
		return err
	}

	logRuntime, err := logging.New(loaded.Config.Logging)
	if err != nil {
		return fmt.Errorf("setup logging: %w", err)
	}
	defer func() { _ = logRuntime.Close() }()

	logger := r.Logger
	if logger == nil {
		logger = logRuntime.Logger
	}

	for _, w := range loaded.Warnings {
		msg := w.Message
		if w.Line > 0 {
			msg = fmt.Sprintf("line %d: %s", w.Line, w.Message)
		}
		fmt.Fprintf(r.Stderr, "warning: %s\n", msg)
		logger.Warn("config warning", "line", w.Line, "message", w.Message)
	}

	logger.Info("command start",
		"command", inv.Command,
		"config", loaded.Path,
		"log", logRuntime.Path,
	)

	switch inv.Command {
	case cli.CommandDoctor:
		report := doctor.Run(ctx, loaded, BuildProvider(loaded.Config, logger), doctor.Probes{})
		fmt.Fprintln(r.Stdout, report.String())
		if !report.OK() {
			return errors.New("doctor checks failed")
		}
		return nil
	case cli.CommandDevices:
		return r.commandDevices(ctx)
	case cli.CommandStatus:
		return r.commandStatus(ctx, inv.JSON)
	case cli.CommandListen:
		var contended ipc.Command
		if inv.StartNow {
			contended = ipc.CommandStart
		}
		return r.listen(ctx, loaded.Config, logger, inv.StartNow, contended)
	case cli.CommandToggle:
		return r.commandToggle(ctx, loaded.Config, logger)
	case cli.CommandStart, cli.CommandStop, cli.CommandReset,
		cli.CommandOnline, cli.CommandOffline, cli.CommandQuit:
		socketPath, err := ipc.RuntimeSocketPath()
		if err != nil {
			return err
		}
		return r.forward(ctx, socketPath, ipc.Command(inv.Command))
	default:
		return fmt.Errorf("unsupported command %q", inv.Command)
	}
}

func (r Runner) commandDevices(ctx context.Context) error {
	sources, err := audio.ListSources(ctx)
	if err != nil {
		return err
	}
	if len(sources) == 0 {
		return errors.New("no audio input sources found")
	}

	for _, source := range sources {
		defaultMark := " "
		if source.Default {
			defaultMark = "*"
		}
		fmt.Fprintf(
			r.Stdout,
			"%s id=%s | description=%q | state=%s | available=%s | muted=%s\n",
			defaultMark,
			source.ID,
			source.Description,
			source.State,
			yesNo(source.Available),
			yesNo(source.Muted),
		)
	}
	return nil
}

func (r Runner) commandStatus(ctx context.Context, asJSON bool) error {
	snap := capture.Snapshot{State: capture.State{Phase: fsm.PhaseIdle}}

	socketPath, err := ipc.RuntimeSocketPath()
	if err == nil {
		resp, callErr := ipc.Call(ctx, socketPath, ipc.CommandStatus)
		switch {
		case errors.Is(callErr, ipc.ErrNotRunning):
		case callErr != nil:
			return callErr
		case resp.Snapshot != nil:
			snap = *resp.Snapshot
		}
	}

	if asJSON {
		return json.NewEncoder(r.Stdout).Encode(snap)
	}
	if snap.Phase == "" {
		snap.Phase = fsm.PhaseIdle
	}
	fmt.Fprintln(r.Stdout, snap.Phase)
	return nil
}

// commandToggle forwards to a running owner, or becomes the owner and starts.
func (r Runner) commandToggle(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	socketPath, err := ipc.RuntimeSocketPath()
	if err != nil {
		return err
	}

	err = r.forward(ctx, socketPath, ipc.CommandToggle)
	if !errors.Is(err, ipc.ErrNotRunning) {
		return err
	}
	return r.listen(ctx, cfg, logger, true, ipc.CommandToggle)
}

func (r Runner) forward(ctx context.Context, socketPath string, cmd ipc.Command) error {
	resp, err := ipc.Call(ctx, socketPath, cmd)
	if err != nil {
		return err
	}
	switch {
	case resp.Message != "":
		fmt.Fprintln(r.Stdout, resp.Message)
	case resp.Snapshot != nil:
		fmt.Fprintln(r.Stdout, resp.Snapshot.Phase)
	}
	return nil
}

func yesNo(v bool) string {
	if v {
		return "yes"
	}
	return "no"
}
