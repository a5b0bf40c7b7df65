package output

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDocumentMergesCommittedAfterOriginal(t *testing.T) {
	path := filepath.Join(t.TempDir(), "draft.md")
	require.NoError(t, os.WriteFile(path, []byte("# Title"), 0o600))

	doc, err := OpenDocument(path, "")
	require.NoError(t, err)

	require.NoError(t, doc.Commit(context.Background(), "hello"))
	require.NoError(t, doc.Commit(context.Background(), "hello world"))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, "# Title\n\nhello world", string(data))
	require.Equal(t, "# Title\n\nhello world", doc.Content())
}

func TestDocumentMissingFileStartsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "draft.txt")

	doc, err := OpenDocument(path, " | ")
	require.NoError(t, err)
	require.NoError(t, doc.Commit(context.Background(), "first words"))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, "first words", string(data))
}

func TestDocumentRebasesWhenTranscriptRestarts(t *testing.T) {
	path := filepath.Join(t.TempDir(), "draft.md")
	require.NoError(t, os.WriteFile(path, []byte("intro"), 0o600))

	doc, err := OpenDocument(path, " / ")
	require.NoError(t, err)
	require.NoError(t, doc.Commit(context.Background(), "one two"))
	require.NoError(t, doc.Commit(context.Background(), "three"))
	require.Equal(t, "intro / one two / three", doc.Content())

	doc.Rebase()
	require.NoError(t, doc.Commit(context.Background(), "three four"))
	require.Equal(t, "intro / one two / three / three four", doc.Content())
}

func TestDocumentEmptyCommitKeepsOriginal(t *testing.T) {
	path := filepath.Join(t.TempDir(), "draft.md")
	require.NoError(t, os.WriteFile(path, []byte("keep me"), 0o600))

	doc, err := OpenDocument(path, "")
	require.NoError(t, err)
	require.NoError(t, doc.Commit(context.Background(), ""))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, "keep me", string(data))
}

func TestDocumentLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "draft.md")

	doc, err := OpenDocument(path, "")
	require.NoError(t, err)
	require.NoError(t, doc.Commit(context.Background(), "a"))
	require.NoError(t, doc.Commit(context.Background(), "a b"))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "draft.md", entries[0].Name())
}

func TestOpenDocumentRequiresPath(t *testing.T) {
	_, err := OpenDocument(" ", "")
	require.Error(t, err)
}

func TestMerge(t *testing.T) {
	tests := []struct {
		original  string
		committed string
		want      string
	}{
		{original: "", committed: "", want: ""},
		{original: "", committed: "text", want: "text"},
		{original: "  \n", committed: "text", want: "text"},
		{original: "body", committed: "", want: "body"},
		{original: "body", committed: "text", want: "body::text"},
	}
	for _, tc := range tests {
		require.Equal(t, tc.want, merge(tc.original, "::", tc.committed))
	}
}
