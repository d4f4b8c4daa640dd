package reader

import (
	"bufio"
	"os"
	"regexp"
	"strings"

	"github.com/pkg/errors"
)

// MarkdownFormat implements Format for Markdown files.
type MarkdownFormat struct{}

func init() {
	Register(&MarkdownFormat{})
}

func (f *MarkdownFormat) Name() string         { return "Markdown" }
func (f *MarkdownFormat) Extensions() []string { return []string{".md", ".markdown"} }

// headerRegex matches markdown headers (# to ######)
var headerRegex = regexp.MustCompile(`^(#{1,6})\s+(.+)$`)

// ExtractParagraphs returns blank-line separated blocks. Headers always stand
// alone, without their leading hashes.
func (f *MarkdownFormat) ExtractParagraphs(filename string) ([]string, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	defer file.Close()

	var out []string
	var block []string
	flush := func() {
		if p := collapse(strings.Join(block, " ")); p != "" {
			out = append(out, p)
		}
		block = nil
	}

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := scanner.Text()

		if match := headerRegex.FindStringSubmatch(line); match != nil {
			flush()
			block = append(block, strings.TrimSpace(match[2]))
			flush()
			continue
		}
		if strings.TrimSpace(line) == "" {
			flush()
			continue
		}
		block = append(block, line)
	}
	flush()

	return out, errors.WithStack(scanner.Err())
}
