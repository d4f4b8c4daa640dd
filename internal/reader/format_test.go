package reader

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractParagraphs(t *testing.T) {
	tmpDir := t.TempDir()

	t.Run("plain text", func(t *testing.T) {
		content := "First line\nstill first.\n\n\nSecond   paragraph.\r\n\r\nThird."
		path := filepath.Join(tmpDir, "test.txt")
		require.NoError(t, os.WriteFile(path, []byte(content), 0644))

		got, err := ExtractParagraphs(path)
		require.NoError(t, err)
		assert.Equal(t, []string{"First line still first.", "Second paragraph.", "Third."}, got)
	})

	t.Run("markdown goes through the registry", func(t *testing.T) {
		content := "# Title\nIntro text\ncontinues.\n\n## Part\nBody."
		path := filepath.Join(tmpDir, "test.md")
		require.NoError(t, os.WriteFile(path, []byte(content), 0644))

		got, err := ExtractParagraphs(path)
		require.NoError(t, err)
		assert.Equal(t, []string{"Title", "Intro text continues.", "Part", "Body."}, got)
	})

	t.Run("nonexistent file", func(t *testing.T) {
		_, err := ExtractParagraphs(filepath.Join(tmpDir, "nonexistent.txt"))
		assert.Error(t, err)
	})
}

func TestSplitParagraphsEmpty(t *testing.T) {
	assert.Empty(t, SplitParagraphs(""))
	assert.Empty(t, SplitParagraphs("\n\n   \n\n"))
}

func TestEPUBFormat(t *testing.T) {
	f := &EPUBFormat{}
	assert.Equal(t, "EPUB", f.Name())
	assert.Equal(t, []string{".epub"}, f.Extensions())

	_, err := f.ExtractParagraphs(filepath.Join(t.TempDir(), "missing.epub"))
	assert.Error(t, err)
}

func TestSupportedFormats(t *testing.T) {
	formats := SupportedFormats()
	assert.Contains(t, formats, "EPUB (.epub)")
	assert.Contains(t, formats, "Markdown (.md, .markdown)")
}
