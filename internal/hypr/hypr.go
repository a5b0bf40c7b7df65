// Package hypr talks to the Hyprland compositor through hyprctl.
package hypr

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
)

// Icon is a hyprctl notify icon id.
type Icon int

const (
	IconWarning Icon = 0
	IconInfo    Icon = 1
	IconHint    Icon = 2
	IconError   Icon = 3
	IconOK      Icon = 5
)

const defaultColor = "rgb(89b4fa)"

// Toast is one compositor notification.
type Toast struct {
	Icon      Icon
	TimeoutMS int
	Color     string
	Text      string
}

// Notify shows t through hyprctl dispatch notify.
func Notify(ctx context.Context, t Toast) error {
	text := strings.TrimSpace(t.Text)
	if text == "" {
		return errors.New("notify text must not be empty")
	}
	color := strings.TrimSpace(t.Color)
	if color == "" {
		color = defaultColor
	}
	timeout := t.TimeoutMS
	if timeout <= 0 {
		timeout = 3000
	}
	return run(ctx, "--quiet", "dispatch", "notify",
		strconv.Itoa(int(t.Icon)), strconv.Itoa(timeout), color, text)
}

// Dismiss clears every visible notification.
func Dismiss(ctx context.Context) error {
	return run(ctx, "--quiet", "dispatch", "dismissnotify")
}

// Available reports whether hyprctl is installed and a Hyprland session is running.
func Available() error {
	if _, err := exec.LookPath("hyprctl"); err != nil {
		return fmt.Errorf("hyprctl not found: %w", err)
	}
	if strings.TrimSpace(os.Getenv("HYPRLAND_INSTANCE_SIGNATURE")) == "" {
		return errors.New("HYPRLAND_INSTANCE_SIGNATURE is not set")
	}
	return nil
}

func run(ctx context.Context, args ...string) error {
	out, err := exec.CommandContext(ctx, "hyprctl", args...).CombinedOutput()
	if err == nil {
		return nil
	}
	if trimmed := strings.TrimSpace(string(out)); trimmed != "" {
		return fmt.Errorf("hyprctl %v failed: %w (%s)", args, err, trimmed)
	}
	return fmt.Errorf("hyprctl %v failed: %w", args, err)
}
