package app

import (
	"bytes"
	"context"
	"os"
	"testing"
	"time"

	"github.com/rbright/inkwell/internal/capture"
	"github.com/rbright/inkwell/internal/config"
	"github.com/rbright/inkwell/internal/fsm"
	"github.com/rbright/inkwell/internal/ipc"
	"github.com/stretchr/testify/require"
)

const ownerConfig = testConfig + `
metrics:
  listen: 127.0.0.1:0
`

func TestListenOwnsSocketAndServesCommands(t *testing.T) {
	paths := setupRunnerEnv(t)
	require.NoError(t, os.WriteFile(paths.configPath, []byte(ownerConfig), 0o600))

	var stdout bytes.Buffer
	var stderr bytes.Buffer
	runner := Runner{Stdout: &stdout, Stderr: &stderr}

	exited := make(chan int, 1)
	go func() {
		exited <- runner.Execute(context.Background(), []string{"--config", paths.configPath, "listen"})
	}()

	var resp ipc.Response
	require.Eventually(t, func() bool {
		var err error
		resp, err = ipc.Call(context.Background(), paths.socketPath(), ipc.CommandStatus)
		return err == nil
	}, 3*time.Second, 20*time.Millisecond)
	require.NotNil(t, resp.Snapshot)
	require.Equal(t, fsm.PhaseIdle, resp.Snapshot.Phase)

	resp, err := ipc.Call(context.Background(), paths.socketPath(), ipc.CommandStart)
	require.NoError(t, err)
	require.Equal(t, fsm.PhaseFailed, resp.Snapshot.Phase)
	require.Equal(t, capture.KindNotSupported, resp.Snapshot.Error)

	resp, err = ipc.Call(context.Background(), paths.socketPath(), ipc.CommandOffline)
	require.NoError(t, err)
	require.Equal(t, "offline", resp.Message)
	require.Eventually(t, func() bool {
		status, err := ipc.Call(context.Background(), paths.socketPath(), ipc.CommandStatus)
		return err == nil && !status.Snapshot.IsOnline
	}, 2*time.Second, 20*time.Millisecond)

	resp, err = ipc.Call(context.Background(), paths.socketPath(), ipc.CommandQuit)
	require.NoError(t, err)
	require.Equal(t, "quitting", resp.Message)

	select {
	case code := <-exited:
		require.Equal(t, 0, code, stderr.String())
	case <-time.After(3 * time.Second):
		t.Fatal("listener did not exit after quit")
	}

	_, statErr := os.Stat(paths.socketPath())
	require.ErrorIs(t, statErr, os.ErrNotExist)
}

func TestListenWithRunningOwner(t *testing.T) {
	paths := setupRunnerEnv(t)

	received := make(chan ipc.Command, 4)
	shutdown := startIPCServerForRunnerTest(t, paths.socketPath(), func(_ context.Context, req ipc.Request) ipc.Response {
		received <- req.Command
		snap := capture.Snapshot{State: capture.State{Phase: fsm.PhaseStarting}}
		return ipc.Response{OK: true, Snapshot: &snap}
	})
	defer shutdown()

	t.Run("plain listen fails", func(t *testing.T) {
		var stdout bytes.Buffer
		var stderr bytes.Buffer
		runner := Runner{Stdout: &stdout, Stderr: &stderr}

		exitCode := runner.Execute(context.Background(), []string{"--config", paths.configPath, "listen"})
		require.Equal(t, 1, exitCode)
		require.Contains(t, stderr.String(), ipc.ErrAlreadyRunning.Error())
		require.Equal(t, ipc.CommandStatus, <-received)
	})

	t.Run("listen --start forwards start", func(t *testing.T) {
		var stdout bytes.Buffer
		var stderr bytes.Buffer
		runner := Runner{Stdout: &stdout, Stderr: &stderr}

		exitCode := runner.Execute(context.Background(), []string{"--config", paths.configPath, "listen", "--start"})
		require.Equal(t, 0, exitCode, stderr.String())
		require.Equal(t, ipc.CommandStatus, <-received)
		require.Equal(t, ipc.CommandStart, <-received)
		require.Equal(t, "starting\n", stdout.String())
	})
}

func TestConnectivitySourceManualStartsOnline(t *testing.T) {
	cfg := config.Default()
	cfg.Network.Watch = config.WatchManual

	manual, stop := connectivitySource(context.Background(), cfg, nil)
	defer stop()
	require.True(t, manual.Online())
	require.True(t, manual.Set(false))
	require.False(t, manual.Online())
}
