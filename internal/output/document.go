package output

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// DefaultSeparator joins existing document content and dictated text.
const DefaultSeparator = "\n\n"

// Document merges dictated text into a draft file the way an editor merges it
// into its content: the content present when dictation began, a separator,
// then everything committed since.
type Document struct {
	path      string
	separator string

	mu       sync.Mutex
	original string
	last     string
	content  string
}

// OpenDocument reads the current draft at path. A missing file starts empty.
func OpenDocument(path string, separator string) (*Document, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("document path must not be empty")
	}
	data, err := os.ReadFile(path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("read document %q: %w", path, err)
	}
	if separator == "" {
		separator = DefaultSeparator
	}
	original := string(data)
	return &Document{path: path, separator: separator, original: original, content: original}, nil
}

// Name identifies the consumer in logs.
func (d *Document) Name() string { return "document" }

// Commit rewrites the draft with committed merged in. When committed does not
// extend the previous commit (the transcript was reset) the merge rebases on
// the current draft, so earlier dictation is kept.
func (d *Document) Commit(_ context.Context, committed string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !strings.HasPrefix(committed, d.last) {
		d.original = d.content
	}
	d.last = committed
	content := merge(d.original, d.separator, committed)
	if content == d.content {
		return nil
	}
	if err := writeAtomic(d.path, content); err != nil {
		return err
	}
	d.content = content
	return nil
}

// Rebase starts the next merge on top of the current draft.
func (d *Document) Rebase() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.original = d.content
	d.last = ""
}

// Content returns the last content written.
func (d *Document) Content() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.content
}

func merge(original string, separator string, committed string) string {
	switch {
	case committed == "":
		return original
	case strings.TrimSpace(original) == "":
		return committed
	default:
		return original + separator + committed
	}
}

// writeAtomic replaces path through a same-directory temp file and rename.
func writeAtomic(path string, content string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("ensure document dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("create temp document: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.WriteString(content); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write temp document: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp document: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("replace document %q: %w", path, err)
	}
	return nil
}
