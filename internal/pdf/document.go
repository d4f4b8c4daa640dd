// Package pdf fetches, decodes and rasterizes PDF books.
package pdf

import (
	"context"
	"image"
	"io"
	"net/http"

	"github.com/gabriel-vasile/mimetype"
	"github.com/gen2brain/go-fitz"
	"github.com/pkg/errors"
)

// Document is a decoded PDF. Page numbers are 0-based here, as in go-fitz;
// the rest of the application counts pages from 1.
type Document interface {
	NumPage() int
	Bound(pageNumber int) (image.Rectangle, error)
	ImageDPI(pageNumber int, dpi float64) (*image.RGBA, error)
	Close() error
}

// ErrNotPDF is returned when a fetched body is not a PDF.
var ErrNotPDF = errors.New("response is not a PDF document")

// Fetch downloads url and checks that the body is a PDF. There is no retry;
// callers surface the failure once.
func Fetch(ctx context.Context, client *http.Client, url string) ([]byte, error) {
	if client == nil {
		client = http.DefaultClient
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, errors.Errorf("fetching %s: %s", url, resp.Status)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	if mtype := mimetype.Detect(data); !mtype.Is("application/pdf") {
		return nil, errors.Wrapf(ErrNotPDF, "got %s", mtype.String())
	}
	return data, nil
}

// Decode parses PDF bytes into a Document.
func Decode(data []byte) (Document, error) {
	doc, err := fitz.NewFromMemory(data)
	if err != nil {
		return nil, errors.Wrap(err, "failed to decode PDF")
	}
	return doc, nil
}

// Opener fetches and decodes in one step.
type Opener struct {
	Client *http.Client
}

// Open fetches url and decodes the body.
func (o Opener) Open(ctx context.Context, url string) (Document, error) {
	data, err := Fetch(ctx, o.Client, url)
	if err != nil {
		return nil, err
	}
	return Decode(data)
}
