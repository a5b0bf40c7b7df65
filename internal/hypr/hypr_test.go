package hypr

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func installHyprctlStub(t *testing.T, body string) {
	t.Helper()

	dir := t.TempDir()
	path := filepath.Join(dir, "hyprctl")
	script := "#!/usr/bin/env bash\nset -euo pipefail\n" + body + "\n"
	require.NoError(t, os.WriteFile(path, []byte(script), 0o755))
	t.Setenv("PATH", dir+":"+os.Getenv("PATH"))
}

func recordArgs(t *testing.T) string {
	t.Helper()
	argsFile := filepath.Join(t.TempDir(), "hypr-args.log")
	t.Setenv("HYPR_ARGS_FILE", argsFile)
	installHyprctlStub(t, `printf '%s\n' "$*" >> "${HYPR_ARGS_FILE}"`)
	return argsFile
}

func TestNotifyAndDismissDispatch(t *testing.T) {
	argsFile := recordArgs(t)

	require.NoError(t, Notify(context.Background(), Toast{Icon: IconError, TimeoutMS: 1200, Text: "Connection failed"}))
	require.NoError(t, Notify(context.Background(), Toast{Icon: IconInfo, Color: "rgb(cba6f7)", Text: " Listening "}))
	require.NoError(t, Dismiss(context.Background()))

	data, err := os.ReadFile(argsFile)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Equal(t, []string{
		"--quiet dispatch notify 3 1200 rgb(89b4fa) Connection failed",
		"--quiet dispatch notify 1 3000 rgb(cba6f7) Listening",
		"--quiet dispatch dismissnotify",
	}, lines)
}

func TestNotifyRejectsEmptyText(t *testing.T) {
	err := Notify(context.Background(), Toast{Text: "  "})
	require.ErrorContains(t, err, "must not be empty")
}

func TestRunIncludesCombinedOutputOnFailure(t *testing.T) {
	installHyprctlStub(t, `echo "no socket" >&2
exit 2`)

	err := Dismiss(context.Background())
	require.Error(t, err)
	require.Contains(t, err.Error(), "no socket")
}

func TestAvailable(t *testing.T) {
	recordArgs(t)
	t.Setenv("HYPRLAND_INSTANCE_SIGNATURE", "")
	require.ErrorContains(t, Available(), "HYPRLAND_INSTANCE_SIGNATURE")

	t.Setenv("HYPRLAND_INSTANCE_SIGNATURE", "abc")
	require.NoError(t, Available())

	t.Setenv("PATH", t.TempDir())
	require.ErrorContains(t, Available(), "hyprctl not found")
}
