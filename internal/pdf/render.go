package pdf

import (
	"context"
	"fmt"
	"image"
	"math"
	"sync"

	"github.com/pkg/errors"
)

const (
	// DefaultMaxScale bounds memory use for small pages on large screens.
	DefaultMaxScale = 3.0
	pointsPerInch   = 72.0
)

// ErrRenderCancelled marks a render superseded by a newer one. It is not a
// failure and should be dropped without logging.
var ErrRenderCancelled = errors.New("render cancelled")

// PageRangeError reports a request past the end of the document. Callers clamp
// to Last and render again.
type PageRangeError struct {
	Requested int
	Last      int
}

func (e *PageRangeError) Error() string {
	return fmt.Sprintf("page %d out of range, document has %d pages", e.Requested, e.Last)
}

// Viewport is the drawable area in device-independent units.
type Viewport struct {
	Width            float64
	Height           float64
	DevicePixelRatio float64
}

// Options configure a Renderer.
type Options struct {
	// PadX and PadY are subtracted from the viewport for surrounding chrome.
	PadX     float64
	PadY     float64
	MaxScale float64
}

// FitScale returns the scale that fits a pageW×pageH page inside the padded
// viewport while preserving aspect ratio, capped at maxScale.
func FitScale(pageW, pageH float64, vp Viewport, opts Options) float64 {
	maxScale := opts.MaxScale
	if maxScale <= 0 {
		maxScale = DefaultMaxScale
	}
	if pageW <= 0 || pageH <= 0 {
		return 1
	}
	availW := math.Max(vp.Width-opts.PadX, 1)
	availH := math.Max(vp.Height-opts.PadY, 1)
	return math.Min(math.Min(availW/pageW, availH/pageH), maxScale)
}

// Bitmap is a committed page rendering.
type Bitmap struct {
	Page  int
	Scale float64
	Image *image.RGBA
}

// Job is one render request. Only the most recent job from Start is current.
type Job struct {
	Gen      uint64
	Page     int
	Viewport Viewport
	ctx      context.Context
}

// Renderer rasterizes pages of one document, keeping at most one render in
// flight. It owns the document: Close releases it once no rasterization is
// still using it.
type Renderer struct {
	doc   Document
	pages int
	opts  Options

	mu       sync.Mutex
	gen      uint64
	cancel   context.CancelFunc
	inUse    int
	closed   bool
	closeErr chan error
}

// NewRenderer creates a renderer for doc.
func NewRenderer(doc Document, opts Options) *Renderer {
	return &Renderer{doc: doc, pages: doc.NumPage(), opts: opts}
}

// PageCount returns the number of pages in the document.
func (r *Renderer) PageCount() int {
	return r.pages
}

// Start cancels any in-flight render and returns a job for page (1-based).
func (r *Renderer) Start(page int, vp Viewport) Job {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.cancel != nil {
		r.cancel()
	}
	ctx, cancel := context.WithCancel(context.Background())
	r.cancel = cancel
	r.gen++

	return Job{Gen: r.gen, Page: page, Viewport: vp, ctx: ctx}
}

// Current reports whether job is still the latest one started.
func (r *Renderer) Current(job Job) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return job.Gen == r.gen
}

// Close cancels any in-flight render and closes the document. A
// rasterization that is still running keeps the document open until it
// returns; Done reports when the document has actually been closed.
func (r *Renderer) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	r.closeErr = make(chan error, 1)
	if r.cancel != nil {
		r.cancel()
		r.cancel = nil
	}
	r.gen++
	busy := r.inUse > 0
	r.mu.Unlock()

	if busy {
		return nil
	}
	return r.closeDoc()
}

// Done returns a channel that receives the document's close error once it
// has been closed, or nil if Close has not been called.
func (r *Renderer) Done() <-chan error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closeErr
}

func (r *Renderer) closeDoc() error {
	err := r.doc.Close()
	r.closeErr <- err
	return err
}

// acquire marks the document in use. It fails once Close has been called.
func (r *Renderer) acquire() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return false
	}
	r.inUse++
	return true
}

func (r *Renderer) release() {
	r.mu.Lock()
	r.inUse--
	last := r.closed && r.inUse == 0
	r.mu.Unlock()
	if last {
		_ = r.closeDoc()
	}
}

// Run rasterizes job. It returns ErrRenderCancelled if the job was superseded
// before or while rasterizing, and a *PageRangeError if the page does not exist.
func (r *Renderer) Run(job Job) (*Bitmap, error) {
	if job.ctx == nil || job.ctx.Err() != nil {
		return nil, ErrRenderCancelled
	}

	last := r.pages
	if job.Page > last || job.Page < 1 {
		if last < 1 {
			return nil, errors.New("document has no pages")
		}
		return nil, &PageRangeError{Requested: job.Page, Last: last}
	}
	if !r.acquire() {
		return nil, ErrRenderCancelled
	}

	dpr := job.Viewport.DevicePixelRatio
	if dpr <= 0 {
		dpr = 1
	}

	resultCh := make(chan renderResult, 1)
	go func() {
		defer r.release()
		resultCh <- r.rasterize(job.Page, job.Viewport, dpr)
	}()

	select {
	case <-job.ctx.Done():
		return nil, ErrRenderCancelled
	case res := <-resultCh:
		if job.ctx.Err() != nil {
			return nil, ErrRenderCancelled
		}
		if res.err != nil {
			return nil, res.err
		}
		return res.bitmap, nil
	}
}

type renderResult struct {
	bitmap *Bitmap
	err    error
}

// rasterize must only run between acquire and release.
func (r *Renderer) rasterize(page int, vp Viewport, dpr float64) renderResult {
	bounds, err := r.doc.Bound(page - 1)
	if err != nil {
		return renderResult{err: errors.Wrapf(err, "failed to measure page %d", page)}
	}
	scale := FitScale(float64(bounds.Dx()), float64(bounds.Dy()), vp, r.opts)
	img, err := r.doc.ImageDPI(page-1, pointsPerInch*scale*dpr)
	if err != nil {
		return renderResult{err: errors.Wrapf(err, "failed to render page %d", page)}
	}
	return renderResult{bitmap: &Bitmap{Page: page, Scale: scale, Image: img}}
}
