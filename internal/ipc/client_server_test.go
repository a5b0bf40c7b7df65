package ipc

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"syscall"
	"testing"
	"time"

	"github.com/rbright/inkwell/internal/capture"
	"github.com/rbright/inkwell/internal/fsm"
	"github.com/stretchr/testify/require"
)

func serveTest(t *testing.T, handler Handler) string {
	t.Helper()
	socketPath := filepath.Join(t.TempDir(), "inkwell.sock")
	listener, err := net.Listen("unix", socketPath)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	serveDone := make(chan error, 1)
	go func() { serveDone <- Serve(ctx, listener, handler) }()
	t.Cleanup(func() {
		cancel()
		require.NoError(t, <-serveDone)
	})
	return socketPath
}

func TestSendRoundTripCarriesSnapshot(t *testing.T) {
	socketPath := serveTest(t, HandlerFunc(func(_ context.Context, req Request) Response {
		require.Equal(t, CommandStatus, req.Command)
		snap := capture.Snapshot{
			State:       capture.State{Phase: fsm.PhaseRetrying, Attempt: 2},
			IsListening: true,
			Transcript:  "hello world",
			IsOnline:    true,
		}
		return Response{OK: true, Snapshot: &snap, Message: "ok"}
	}))

	resp, err := Send(context.Background(), socketPath, Request{Command: CommandStatus}, 200*time.Millisecond)
	require.NoError(t, err)
	require.True(t, resp.OK)
	require.Equal(t, "ok", resp.Message)
	require.NotNil(t, resp.Snapshot)
	require.Equal(t, fsm.PhaseRetrying, resp.Snapshot.Phase)
	require.Equal(t, 2, resp.Snapshot.Attempt)
	require.Equal(t, "hello world", resp.Snapshot.Transcript)
	require.True(t, resp.Snapshot.IsListening)
}

func TestCallReportsFailedResponse(t *testing.T) {
	socketPath := serveTest(t, HandlerFunc(func(_ context.Context, req Request) Response {
		return Response{OK: false, Error: "controller stopped"}
	}))

	resp, err := Call(context.Background(), socketPath, CommandStart)
	require.Error(t, err)
	require.Contains(t, err.Error(), "start: controller stopped")
	require.False(t, resp.OK)
}

func TestCallWithoutOwnerIsNotRunning(t *testing.T) {
	socketPath := filepath.Join(t.TempDir(), "inkwell.sock")
	_, err := Call(context.Background(), socketPath, CommandStatus)
	require.ErrorIs(t, err, ErrNotRunning)
}

func TestSendDecodeResponseError(t *testing.T) {
	socketPath := filepath.Join(t.TempDir(), "inkwell.sock")

	listener, err := net.Listen("unix", socketPath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = listener.Close() })

	go func() {
		conn, acceptErr := listener.Accept()
		if acceptErr != nil {
			return
		}
		defer conn.Close()

		reader := bufio.NewReader(conn)
		_, _ = reader.ReadBytes('\n')
		_, _ = conn.Write([]byte("not-json\n"))
	}()

	_, err = Send(context.Background(), socketPath, Request{Command: CommandStatus}, 200*time.Millisecond)
	require.Error(t, err)
	require.Contains(t, err.Error(), "decode response")
}

func TestSendReadResponseError(t *testing.T) {
	socketPath := filepath.Join(t.TempDir(), "inkwell.sock")

	listener, err := net.Listen("unix", socketPath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = listener.Close() })

	go func() {
		conn, acceptErr := listener.Accept()
		if acceptErr != nil {
			return
		}
		_ = conn.Close()
	}()

	_, err = Send(context.Background(), socketPath, Request{Command: CommandStatus}, 200*time.Millisecond)
	require.Error(t, err)
	require.Contains(t, err.Error(), "read response")
}

func TestServeRejectsMalformedRequests(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		wantErr string
	}{
		{name: "not json", payload: "not-json\n", wantErr: "decode request"},
		{name: "unknown command", payload: `{"command":"paste"}` + "\n", wantErr: `unknown command "paste"`},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			socketPath := serveTest(t, HandlerFunc(func(_ context.Context, _ Request) Response {
				return Response{OK: true}
			}))

			conn, err := net.Dial("unix", socketPath)
			require.NoError(t, err)
			defer conn.Close()

			_, err = conn.Write([]byte(tc.payload))
			require.NoError(t, err)

			line, err := bufio.NewReader(conn).ReadBytes('\n')
			require.NoError(t, err)

			var resp Response
			require.NoError(t, json.Unmarshal(line, &resp))
			require.False(t, resp.OK)
			require.Contains(t, resp.Error, tc.wantErr)
		})
	}
}

func TestParseCommand(t *testing.T) {
	for _, cmd := range Commands {
		got, err := ParseCommand(" " + string(cmd) + " ")
		require.NoError(t, err)
		require.Equal(t, cmd, got)
	}
	got, err := ParseCommand("TOGGLE")
	require.NoError(t, err)
	require.Equal(t, CommandToggle, got)

	_, err = ParseCommand("")
	require.Error(t, err)
}

func TestProbe(t *testing.T) {
	socketPath := filepath.Join(t.TempDir(), "inkwell.sock")

	listener, err := net.Listen("unix", socketPath)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	serveDone := make(chan error, 1)
	go func() {
		serveDone <- Serve(ctx, listener, HandlerFunc(func(_ context.Context, req Request) Response {
			if req.Command == CommandStatus {
				return Response{OK: true}
			}
			return Response{OK: false, Error: "bad"}
		}))
	}()

	alive, probeErr := Probe(context.Background(), socketPath, 200*time.Millisecond)
	require.NoError(t, probeErr)
	require.True(t, alive)

	cancel()
	require.NoError(t, <-serveDone)

	alive, probeErr = Probe(context.Background(), socketPath, 100*time.Millisecond)
	require.NoError(t, probeErr)
	require.False(t, alive)
}

func TestNoListener(t *testing.T) {
	require.False(t, noListener(nil))
	require.True(t, noListener(os.ErrNotExist))
	require.True(t, noListener(fmt.Errorf("dial: %w", syscall.ECONNREFUSED)))
	require.False(t, noListener(errors.New("timeout")))
}
