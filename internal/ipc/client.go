package ipc

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"syscall"
	"time"
)

// DefaultTimeout bounds one CLI round trip.
const DefaultTimeout = 2 * time.Second

// ErrNotRunning is returned by Call when no owner answers on the socket.
var ErrNotRunning = errors.New("inkwell listener is not running")

// Send performs one request/response exchange under a single deadline.
// A response with OK unset is returned as-is; callers decide how to report it.
func Send(ctx context.Context, path string, req Request, timeout time.Duration) (Response, error) {
	dialer := net.Dialer{Timeout: timeout}
	conn, err := dialer.DialContext(ctx, "unix", path)
	if err != nil {
		return Response{}, err
	}
	defer conn.Close()

	if err := conn.SetDeadline(time.Now().Add(timeout)); err != nil {
		return Response{}, fmt.Errorf("set deadline: %w", err)
	}
	return exchange(conn, req)
}

func exchange(conn net.Conn, req Request) (Response, error) {
	if err := json.NewEncoder(conn).Encode(req); err != nil {
		return Response{}, fmt.Errorf("encode request: %w", err)
	}

	line, err := bufio.NewReader(conn).ReadBytes('\n')
	if err != nil {
		return Response{}, fmt.Errorf("read response: %w", err)
	}

	var resp Response
	if err := json.Unmarshal(line, &resp); err != nil {
		return Response{}, fmt.Errorf("decode response: %w", err)
	}
	return resp, nil
}

// Call sends cmd to the owner at path and turns a failed response into an error.
func Call(ctx context.Context, path string, cmd Command) (Response, error) {
	resp, err := Send(ctx, path, Request{Command: cmd}, DefaultTimeout)
	switch {
	case noListener(err):
		return Response{}, ErrNotRunning
	case err != nil:
		return Response{}, fmt.Errorf("%s: %w", cmd, err)
	case !resp.OK:
		return resp, fmt.Errorf("%s: %s", cmd, resp.Error)
	}
	return resp, nil
}

// Probe checks whether a responsive owner is currently listening on path.
func Probe(ctx context.Context, path string, timeout time.Duration) (bool, error) {
	_, err := Send(ctx, path, Request{Command: CommandStatus}, timeout)
	switch {
	case err == nil:
		return true, nil
	case noListener(err):
		return false, nil
	}
	return false, fmt.Errorf("probe socket: %w", err)
}

// noListener reports dial failures that mean nobody owns the socket: the
// file is absent or nothing accepts on it.
func noListener(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, os.ErrNotExist) || errors.Is(err, syscall.ECONNREFUSED)
}
