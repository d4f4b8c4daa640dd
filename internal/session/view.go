package session

import (
	"github.com/metcalfc/folio/internal/access"
	"github.com/metcalfc/folio/internal/audio"
	"github.com/metcalfc/folio/internal/content"
	"github.com/metcalfc/folio/internal/metrics"
	"github.com/metcalfc/folio/internal/pdf"
	"github.com/metcalfc/folio/internal/reader"
)

// Kind is what the ready view is showing.
type Kind int

const (
	KindNone Kind = iota
	KindText
	KindPDF
	KindAudio
)

func (s *Session) Book() Book                { return s.book }
func (s *Session) Viewer() Viewer            { return s.viewer }
func (s *Session) Phase() Phase              { return s.phase }
func (s *Session) Decision() access.Decision { return s.decision }
func (s *Session) Preview() bool             { return s.opts.Preview }
func (s *Session) Analyzing() bool           { return s.analyzing }
func (s *Session) Rendering() bool           { return s.rendering }
func (s *Session) Bitmap() *pdf.Bitmap       { return s.bitmap }
func (s *Session) AudioStatus() audio.Status { return s.audioStatus }
func (s *Session) Viewport() pdf.Viewport    { return s.opts.Viewport }

// Loading reports whether the loading indicator should show.
func (s *Session) Loading() bool {
	return s.phase == PhaseLoading
}

// Err returns the user-visible load failure, if any.
func (s *Session) Err() *content.FetchError {
	if fe, ok := s.err.(*content.FetchError); ok {
		return fe
	}
	return nil
}

// Kind returns the content kind of the ready view.
func (s *Session) Kind() Kind {
	switch {
	case s.pager != nil:
		return KindText
	case s.renderer != nil:
		return KindPDF
	case s.player != nil:
		return KindAudio
	}
	if _, ok := s.book.Source.(content.AudioSource); ok && s.phase == PhaseReady {
		return KindAudio
	}
	return KindNone
}

// CurrentPage returns the paragraphs on the current text page.
func (s *Session) CurrentPage() reader.Page {
	if s.pager == nil {
		return nil
	}
	return s.pager.CurrentPage()
}

// Page returns the 1-based current page and the page count of a text or PDF
// book. Both are zero otherwise.
func (s *Session) Page() (current, total int) {
	switch {
	case s.pager != nil:
		return s.pager.Progress()
	case s.renderer != nil:
		return s.pdfPage, s.pdfTotal
	}
	return 0, 0
}

func (s *Session) pageNumber() int {
	current, _ := s.Page()
	return current
}

// Percent returns reading progress, 0-100.
func (s *Session) Percent() int {
	current, total := s.Page()
	if total == 0 {
		if st := s.audioStatus; st.Duration > 0 {
			return int(st.Current * 100 / st.Duration)
		}
		return 0
	}
	return current * 100 / total
}

// Metrics returns the estimate for the loaded book, or nil.
func (s *Session) Metrics() *metrics.Metrics {
	return s.metrics
}

// EstimatedPages is the estimated page count, falling back to the page
// count of the loaded content.
func (s *Session) EstimatedPages() int {
	if s.metrics != nil && s.metrics.EstimatedPages > 0 {
		return s.metrics.EstimatedPages
	}
	_, total := s.Page()
	return total
}

// RemainingMinutes estimates the reading time left.
func (s *Session) RemainingMinutes() int {
	current, total := s.Page()
	readingTime := 0
	if s.metrics != nil {
		readingTime = s.metrics.ReadingTimeMinutes
	}
	return reader.Remaining(current, total, readingTime)
}
