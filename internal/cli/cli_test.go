package cli

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) (Invocation, bool, string, error) {
	t.Helper()
	var (
		got    Invocation
		called bool
		out    bytes.Buffer
	)
	root := NewRoot("inkwell", func(_ context.Context, inv Invocation) error {
		got = inv
		called = true
		return nil
	})
	root.SetArgs(args)
	root.SetOut(&out)
	root.SetErr(&out)
	err := root.ExecuteContext(context.Background())
	return got, called, out.String(), err
}

func TestRootWithoutCommandPrintsHelp(t *testing.T) {
	_, called, out, err := execute(t)
	require.NoError(t, err)
	require.False(t, called)
	require.Contains(t, out, "Usage:")
	require.Contains(t, out, "listen")
	require.Contains(t, out, "doctor")
}

func TestCommandMatrix(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want Invocation
	}{
		{name: "listen", args: []string{"listen"}, want: Invocation{Command: CommandListen}},
		{name: "listen start", args: []string{"listen", "--start"}, want: Invocation{Command: CommandListen, StartNow: true}},
		{name: "toggle with config", args: []string{"--config", "/tmp/inkwell.yaml", "toggle"}, want: Invocation{Command: CommandToggle, ConfigPath: "/tmp/inkwell.yaml"}},
		{name: "config after command", args: []string{"doctor", "--config", "/tmp/c.yaml"}, want: Invocation{Command: CommandDoctor, ConfigPath: "/tmp/c.yaml"}},
		{name: "status json", args: []string{"status", "--json"}, want: Invocation{Command: CommandStatus, JSON: true}},
		{name: "start", args: []string{"start"}, want: Invocation{Command: CommandStart}},
		{name: "stop", args: []string{"stop"}, want: Invocation{Command: CommandStop}},
		{name: "reset", args: []string{"reset"}, want: Invocation{Command: CommandReset}},
		{name: "online", args: []string{"online"}, want: Invocation{Command: CommandOnline}},
		{name: "offline", args: []string{"offline"}, want: Invocation{Command: CommandOffline}},
		{name: "quit", args: []string{"quit"}, want: Invocation{Command: CommandQuit}},
		{name: "devices", args: []string{"devices"}, want: Invocation{Command: CommandDevices}},
		{name: "version", args: []string{"version"}, want: Invocation{Command: CommandVersion}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, called, _, err := execute(t, tc.args...)
			require.NoError(t, err)
			require.True(t, called)
			require.Equal(t, tc.want, got)
		})
	}
}

func TestUsageErrorsAreNotRunErrors(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		wantErr string
	}{
		{name: "unknown command", args: []string{"paste"}, wantErr: "unknown command"},
		{name: "unknown flag", args: []string{"listen", "--bogus"}, wantErr: "unknown flag"},
		{name: "extra args", args: []string{"stop", "now"}, wantErr: "unknown command"},
		{name: "missing config value", args: []string{"status", "--config"}, wantErr: "flag needs an argument"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, called, _, err := execute(t, tc.args...)
			require.Error(t, err)
			require.False(t, called)
			require.Contains(t, err.Error(), tc.wantErr)
			var runErr *RunError
			require.False(t, errors.As(err, &runErr))
		})
	}
}

func TestHandlerErrorsAreRunErrors(t *testing.T) {
	boom := errors.New("boom")
	root := NewRoot("inkwell", func(context.Context, Invocation) error { return boom })
	root.SetArgs([]string{"status"})
	root.SetOut(&bytes.Buffer{})

	err := root.Execute()
	var runErr *RunError
	require.True(t, errors.As(err, &runErr))
	require.ErrorIs(t, err, boom)
}
