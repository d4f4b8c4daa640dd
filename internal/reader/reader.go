// Package reader provides the pagination engine for text books and the
// format registry used to import them.
package reader

import (
	"math"
)

const (
	// DefaultPageSize is the number of paragraphs shown per page.
	DefaultPageSize = 6
	// DefaultPreviewPages is the sample boundary for preview mode.
	DefaultPreviewPages = 2
	// minutesPerPage drives the remaining-time heuristic when no estimate is known.
	minutesPerPage = 2
)

// Page is an ordered run of paragraphs. Pages are derived, never persisted.
type Page []string

// Paginate splits paragraphs into pages of size paragraphs each. In preview
// mode only the first previewPages pages are kept. Empty content yields a
// single page holding one empty paragraph so there is never a zero-page book.
func Paginate(paragraphs []string, size int, preview bool, previewPages int) []Page {
	if size < 1 {
		size = DefaultPageSize
	}
	if len(paragraphs) == 0 {
		return []Page{{""}}
	}

	pages := make([]Page, 0, (len(paragraphs)+size-1)/size)
	for i := 0; i < len(paragraphs); i += size {
		end := i + size
		if end > len(paragraphs) {
			end = len(paragraphs)
		}
		pages = append(pages, Page(paragraphs[i:end]))
	}

	if preview {
		if previewPages < 1 {
			previewPages = DefaultPreviewPages
		}
		if len(pages) > previewPages {
			pages = pages[:previewPages]
		}
	}
	return pages
}

// Pager holds the pages of the open book and the 1-based current page.
type Pager struct {
	Pages   []Page
	Current int
}

// NewPager creates a pager positioned on the first page.
func NewPager(pages []Page) *Pager {
	p := &Pager{Current: 1}
	p.SetPages(pages)
	return p
}

// SetPages replaces the pages and re-clamps the current page. A current page
// past the new end resets to page 1 instead of the last page.
func (p *Pager) SetPages(pages []Page) {
	if len(pages) == 0 {
		pages = []Page{{""}}
	}
	p.Pages = pages
	if p.Current < 1 || p.Current > len(p.Pages) {
		p.Current = 1
	}
}

// Total returns the page count; it is never zero.
func (p *Pager) Total() int {
	return len(p.Pages)
}

// Restore applies a saved page number using the same reset-on-overflow rule
// as SetPages.
func (p *Pager) Restore(saved int) {
	if saved < 1 || saved > p.Total() {
		p.Current = 1
		return
	}
	p.Current = saved
}

// Go jumps to page n if it exists. It reports whether the page changed.
func (p *Pager) Go(n int) bool {
	if n < 1 || n > p.Total() || n == p.Current {
		return false
	}
	p.Current = n
	return true
}

// Next moves forward one page. Returns true if the page changed.
func (p *Pager) Next() bool {
	return p.Go(p.Current + 1)
}

// Prev moves back one page. Returns true if the page changed.
func (p *Pager) Prev() bool {
	return p.Go(p.Current - 1)
}

// CurrentPage returns the paragraphs on the current page.
func (p *Pager) CurrentPage() Page {
	if p.Current >= 1 && p.Current <= len(p.Pages) {
		return p.Pages[p.Current-1]
	}
	return nil
}

// Progress returns the current position and total page count.
func (p *Pager) Progress() (current, total int) {
	return p.Current, p.Total()
}

// Percent returns how far through the book the reader is, 0-100.
func (p *Pager) Percent() int {
	return p.Current * 100 / p.Total()
}

// AtEnd returns true if the reader is on the last page.
func (p *Pager) AtEnd() bool {
	return p.Current >= p.Total()
}

// RemainingMinutes estimates the time left in the book. See Remaining.
func (p *Pager) RemainingMinutes(readingTimeMinutes int) int {
	return Remaining(p.Current, p.Total(), readingTimeMinutes)
}

// Remaining estimates the minutes left after page current of total. With a
// known reading time it is scaled by the share of pages left; otherwise it
// falls back to two minutes per remaining page.
func Remaining(current, total, readingTimeMinutes int) int {
	left := total - current
	if left <= 0 || total <= 0 {
		return 0
	}
	if readingTimeMinutes <= 0 {
		return minutesPerPage * left
	}
	return int(math.Ceil(float64(readingTimeMinutes) * float64(left) / float64(total)))
}
