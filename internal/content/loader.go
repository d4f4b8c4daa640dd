package content

import (
	"context"

	"github.com/metcalfc/folio/internal/logger"
	"github.com/metcalfc/folio/internal/pdf"
	"github.com/pkg/errors"
)

// Placeholder is shown when a text book has neither an offline nor an online
// copy.
const Placeholder = "Content for this book is not available yet."

// Origin records where text content was found.
type Origin int

const (
	OriginOffline Origin = iota
	OriginOnline
	OriginPlaceholder
)

func (o Origin) String() string {
	switch o {
	case OriginOffline:
		return "offline"
	case OriginOnline:
		return "online"
	default:
		return "placeholder"
	}
}

// Loaded is the result of a successful load, one variant per source kind.
type Loaded interface {
	isLoaded()
}

// Text is paragraph content ready for pagination.
type Text struct {
	Paragraphs []string
	Origin     Origin
}

// PDF is a decoded document.
type PDF struct {
	Doc pdf.Document
}

// Audio is handed to the player untouched.
type Audio struct {
	Source AudioSource
}

func (Text) isLoaded()  {}
func (PDF) isLoaded()   {}
func (Audio) isLoaded() {}

// FetchError is a content-fetch failure shown to the reader. It is terminal
// for the view; there is no retry.
type FetchError struct {
	Cause error
}

func (e *FetchError) Error() string {
	return "Failed to load book content: " + e.Cause.Error()
}

func (e *FetchError) Unwrap() error {
	return e.Cause
}

// TextStore is the offline copy lookup.
type TextStore interface {
	Get(bookID string) ([]string, error)
}

// PDFOpener fetches and decodes a PDF.
type PDFOpener interface {
	Open(ctx context.Context, url string) (pdf.Document, error)
}

// Loader resolves a Source into loaded content.
type Loader struct {
	Store  TextStore
	Online *Online
	PDF    PDFOpener
}

// Load returns the content for src. Text never fails; PDF failures are
// returned as *FetchError.
func (l *Loader) Load(ctx context.Context, src Source) (Loaded, error) {
	log := logger.FromContext(ctx)

	switch src := src.(type) {
	case AudioSource:
		return Audio{Source: src}, nil

	case PDFSource:
		if l.PDF == nil {
			return nil, &FetchError{Cause: errors.New("no PDF opener configured")}
		}
		doc, err := l.PDF.Open(ctx, src.URL)
		if err != nil {
			return nil, &FetchError{Cause: err}
		}
		return PDF{Doc: doc}, nil

	case TextSource:
		return l.loadText(ctx, src.BookID), nil

	default:
		log.Warn().Msgf("unknown content source %T", src)
		return Text{Paragraphs: []string{Placeholder}, Origin: OriginPlaceholder}, nil
	}
}

func (l *Loader) loadText(ctx context.Context, bookID string) Text {
	log := logger.FromContext(ctx).With().Str("book", bookID).Logger()

	if l.Store != nil {
		paragraphs, err := l.Store.Get(bookID)
		switch {
		case err == nil:
			return Text{Paragraphs: paragraphs, Origin: OriginOffline}
		case !errors.Is(err, ErrNotFound):
			log.Warn().Err(err).Msg("offline store read failed, trying online content")
		}
	}

	if paragraphs, ok := l.Online.Get(bookID); ok {
		return Text{Paragraphs: paragraphs, Origin: OriginOnline}
	}

	log.Debug().Msg("no content found, using placeholder")
	return Text{Paragraphs: []string{Placeholder}, Origin: OriginPlaceholder}
}
