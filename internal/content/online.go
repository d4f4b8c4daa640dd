package content

import (
	_ "embed"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

//go:embed online.yaml
var bundledOnline []byte

// Online is the read-only map of content that is always available without a
// download.
type Online struct {
	books map[string][]string
}

// NewOnline builds an online map from books. The map is copied.
func NewOnline(books map[string][]string) *Online {
	o := &Online{books: make(map[string][]string, len(books))}
	for id, paragraphs := range books {
		o.books[id] = append([]string(nil), paragraphs...)
	}
	return o
}

// BundledOnline returns the online map shipped with the binary.
func BundledOnline() (*Online, error) {
	var books map[string][]string
	if err := yaml.Unmarshal(bundledOnline, &books); err != nil {
		return nil, errors.Wrap(err, "failed to parse bundled online content")
	}
	return NewOnline(books), nil
}

// Get returns the paragraphs for bookID.
func (o *Online) Get(bookID string) ([]string, bool) {
	if o == nil {
		return nil, false
	}
	paragraphs, ok := o.books[bookID]
	if !ok {
		return nil, false
	}
	return append([]string(nil), paragraphs...), true
}
