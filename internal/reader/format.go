package reader

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
)

// Format defines a file format reader for extracting paragraphs to import
// into the offline content store.
type Format interface {
	Name() string
	Extensions() []string
	ExtractParagraphs(filename string) ([]string, error)
}

var registry []Format

// Register adds a format reader to the registry.
func Register(f Format) {
	registry = append(registry, f)
}

// ExtractParagraphs extracts paragraphs from a file, using a registered format
// or the plain text fallback.
func ExtractParagraphs(filename string) ([]string, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	for _, f := range registry {
		for _, e := range f.Extensions() {
			if ext == e {
				return f.ExtractParagraphs(filename)
			}
		}
	}
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return SplitParagraphs(string(data)), nil
}

// SplitParagraphs splits plain text on blank lines and collapses whitespace
// inside each paragraph.
func SplitParagraphs(text string) []string {
	text = strings.ReplaceAll(text, "\r\n", "\n")

	var out []string
	for _, block := range strings.Split(text, "\n\n") {
		if p := collapse(block); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// SupportedFormats returns registered format names with their extensions.
func SupportedFormats() []string {
	var out []string
	for _, f := range registry {
		out = append(out, f.Name()+" ("+strings.Join(f.Extensions(), ", ")+")")
	}
	return out
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
