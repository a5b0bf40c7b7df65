package output

import (
	"context"
	"fmt"
	"strings"

	"github.com/atotto/clipboard"
)

var clipboardWrite = clipboard.WriteAll

// Clipboard copies the final transcript when capture shuts down.
type Clipboard struct{}

// Copy places text on the system clipboard. Blank text is skipped.
func (Clipboard) Copy(ctx context.Context, text string) error {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := clipboardWrite(text); err != nil {
		return fmt.Errorf("set clipboard: %w", err)
	}
	return nil
}
