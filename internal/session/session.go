// Package session is the reading view state machine shared by the terminal
// and desktop front ends. It is driven by bubbletea messages: every method
// that starts asynchronous work returns a tea.Cmd whose result must be fed
// back through Update.
package session

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/metcalfc/folio/internal/access"
	"github.com/metcalfc/folio/internal/audio"
	"github.com/metcalfc/folio/internal/content"
	"github.com/metcalfc/folio/internal/logger"
	"github.com/metcalfc/folio/internal/metrics"
	"github.com/metcalfc/folio/internal/pdf"
	"github.com/metcalfc/folio/internal/reader"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

// TickInterval is how often audio position is sampled.
const TickInterval = 250 * time.Millisecond

// Phase is the load state of the view.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseDenied
	PhaseLoading
	PhaseReady
	PhaseError
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseDenied:
		return "denied"
	case PhaseLoading:
		return "loading"
	case PhaseReady:
		return "ready"
	case PhaseError:
		return "error"
	default:
		return "unknown"
	}
}

// Book is what the view needs to know about the book being read.
type Book struct {
	ID     string
	Title  string
	Author string
	Source content.Source
}

// Viewer is the person looking at the book.
type Viewer struct {
	UserID    string
	Purchased bool
}

// Options are fixed for the life of a session, except Preview.
type Options struct {
	Preview      bool
	PageSize     int
	PreviewPages int
	Render       pdf.Options
	Viewport     pdf.Viewport
}

// Loader resolves a content source. *content.Loader implements it.
type Loader interface {
	Load(ctx context.Context, src content.Source) (content.Loaded, error)
}

// ProgressStore persists reading positions. *state.Progress implements it.
type ProgressStore interface {
	SavePage(bookID string, page int) error
	SaveTime(bookID string, seconds float64) error
	Page(bookID string) (int, bool)
	Time(bookID string) (float64, bool)
}

// Deps are the collaborators of a session.
type Deps struct {
	Loader   Loader
	Progress ProgressStore
	Metrics  metrics.Estimator
	// OpenAudio creates the media element for an audio source. It may block.
	OpenAudio func(ctx context.Context, src content.AudioSource) audio.Element
}

type loadedMsg struct {
	gen     int
	bookID  string
	content content.Loaded
	err     error
}

type metricsMsg struct {
	gen     int
	metrics *metrics.Metrics
	err     error
}

type renderedMsg struct {
	gen    int
	job    pdf.Job
	bitmap *pdf.Bitmap
	err    error
}

type audioOpenedMsg struct {
	gen int
	el  audio.Element
}

type tickMsg struct {
	gen int
}

// Session is one open reading view.
type Session struct {
	ctx  context.Context
	log  zerolog.Logger
	deps Deps
	opts Options

	book     Book
	viewer   Viewer
	decision access.Decision

	phase Phase
	err   error
	// gen identifies the current load. Results from older loads are dropped.
	gen int

	pager *reader.Pager

	renderer  *pdf.Renderer
	pdfPage   int
	pdfTotal  int
	bitmap    *pdf.Bitmap
	rendering bool

	player      *audio.Controller
	audioStatus audio.Status

	metrics   *metrics.Metrics
	analyzing bool
}

// New creates a session. Nothing happens until Init.
func New(ctx context.Context, book Book, viewer Viewer, opts Options, deps Deps) *Session {
	if opts.PageSize < 1 {
		opts.PageSize = reader.DefaultPageSize
	}
	if opts.PreviewPages < 1 {
		opts.PreviewPages = reader.DefaultPreviewPages
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.Nop{}
	}
	return &Session{
		ctx:    ctx,
		log:    logger.FromContext(ctx).With().Str("book", book.ID).Logger(),
		deps:   deps,
		opts:   opts,
		book:   book,
		viewer: viewer,
	}
}

// Init evaluates the access gate and, when authorized, starts loading.
func (s *Session) Init() tea.Cmd {
	return s.reevaluate(true)
}

// SetViewer updates who is looking, e.g. after a login or a purchase. A
// viewer who becomes authorized triggers a load.
func (s *Session) SetViewer(v Viewer) tea.Cmd {
	s.viewer = v
	return s.reevaluate(false)
}

// SetPreview switches preview mode and reloads.
func (s *Session) SetPreview(preview bool) tea.Cmd {
	if s.opts.Preview == preview {
		return nil
	}
	s.opts.Preview = preview
	return s.reevaluate(true)
}

// SetBook switches to another book and reloads.
func (s *Session) SetBook(b Book) tea.Cmd {
	s.book = b
	s.log = logger.FromContext(s.ctx).With().Str("book", b.ID).Logger()
	return s.reevaluate(true)
}

func (s *Session) reevaluate(forceReload bool) tea.Cmd {
	was := s.decision.Authorized
	s.decision = access.Evaluate(access.Input{
		Preview:     s.opts.Preview,
		UserPresent: s.viewer.UserID != "",
		Purchased:   s.viewer.Purchased,
	})

	if !s.decision.Authorized {
		s.teardown()
		s.phase = PhaseDenied
		return nil
	}
	if forceReload || !was || s.phase == PhaseDenied || s.phase == PhaseIdle {
		return s.startLoad()
	}
	return nil
}

func (s *Session) startLoad() tea.Cmd {
	s.teardown()
	s.phase = PhaseLoading

	gen, bookID, src := s.gen, s.book.ID, s.book.Source
	ctx, loader := s.ctx, s.deps.Loader
	s.log.Debug().Str("kind", content.Kind(src)).Msg("loading content")

	return func() tea.Msg {
		if loader == nil {
			return loadedMsg{gen: gen, bookID: bookID, err: &content.FetchError{Cause: errors.New("no content loader")}}
		}
		loaded, err := loader.Load(ctx, src)
		return loadedMsg{gen: gen, bookID: bookID, content: loaded, err: err}
	}
}

// teardown drops everything tied to the current load and invalidates any
// result still in flight.
func (s *Session) teardown() {
	s.gen++
	if s.renderer != nil {
		if err := s.renderer.Close(); err != nil {
			s.log.Debug().Err(err).Msg("closing pdf")
		}
		s.renderer = nil
	}
	if s.player != nil {
		s.player.Element().Pause()
		s.player = nil
	}
	s.pager = nil
	s.bitmap = nil
	s.rendering = false
	s.pdfPage, s.pdfTotal = 0, 0
	s.audioStatus = audio.Status{}
	s.metrics = nil
	s.analyzing = false
	s.err = nil
}

// Close releases the view. The session must not be used afterwards.
func (s *Session) Close() {
	s.teardown()
	s.phase = PhaseIdle
}

// Update applies the result of a command.
func (s *Session) Update(msg tea.Msg) tea.Cmd {
	switch msg := msg.(type) {
	case loadedMsg:
		return s.handleLoaded(msg)
	case metricsMsg:
		if msg.gen != s.gen {
			return nil
		}
		s.analyzing = false
		if msg.err != nil {
			s.log.Debug().Err(msg.err).Msg("metrics unavailable")
			return nil
		}
		s.metrics = msg.metrics
	case renderedMsg:
		return s.handleRendered(msg)
	case audioOpenedMsg:
		return s.handleAudioOpened(msg)
	case tickMsg:
		return s.handleTick(msg)
	}
	return nil
}

func (s *Session) canPersist() bool {
	return !s.opts.Preview && s.decision.Authorized && s.deps.Progress != nil
}

func (s *Session) savePage(page int) {
	if !s.canPersist() {
		return
	}
	if err := s.deps.Progress.SavePage(s.book.ID, page); err != nil {
		s.log.Warn().Err(err).Int("page", page).Msg("failed to save progress")
	}
}

func (s *Session) savedPage() (int, bool) {
	if !s.canPersist() {
		return 0, false
	}
	return s.deps.Progress.Page(s.book.ID)
}

func (s *Session) handleLoaded(msg loadedMsg) tea.Cmd {
	if msg.gen != s.gen || msg.bookID != s.book.ID || s.phase != PhaseLoading {
		if doc, ok := msg.content.(content.PDF); ok && doc.Doc != nil {
			doc.Doc.Close()
		}
		return nil
	}

	if msg.err != nil {
		var fetchErr *content.FetchError
		if !errors.As(msg.err, &fetchErr) {
			fetchErr = &content.FetchError{Cause: msg.err}
		}
		s.log.Error().Err(msg.err).Msg("failed to load content")
		s.phase = PhaseError
		s.err = fetchErr
		return nil
	}

	s.phase = PhaseReady
	switch c := msg.content.(type) {
	case content.Text:
		return s.readyText(c)
	case content.PDF:
		return s.readyPDF(c)
	case content.Audio:
		return s.readyAudio(c)
	default:
		s.log.Warn().Msgf("unexpected content %T", msg.content)
		return s.readyText(content.Text{Paragraphs: []string{content.Placeholder}, Origin: content.OriginPlaceholder})
	}
}

func (s *Session) readyText(c content.Text) tea.Cmd {
	s.pager = reader.NewPager(reader.Paginate(c.Paragraphs, s.opts.PageSize, s.opts.Preview, s.opts.PreviewPages))
	if saved, ok := s.savedPage(); ok {
		s.pager.Restore(saved)
	}
	s.savePage(s.pager.Current)
	s.log.Debug().Str("origin", c.Origin.String()).Int("pages", s.pager.Total()).Msg("text ready")

	if s.opts.Preview {
		return nil
	}
	s.analyzing = true
	gen, est, ctx := s.gen, s.deps.Metrics, s.ctx
	text := strings.Join(c.Paragraphs, "\n\n")
	return func() tea.Msg {
		m, err := est.Estimate(ctx, text, utf8.RuneCountInString(text))
		return metricsMsg{gen: gen, metrics: m, err: err}
	}
}

func (s *Session) readyPDF(c content.PDF) tea.Cmd {
	s.renderer = pdf.NewRenderer(c.Doc, s.opts.Render)

	pages := s.renderer.PageCount()
	m := metrics.ForPDF(pages)
	s.metrics = &m

	s.pdfTotal = pages
	if s.opts.Preview && s.pdfTotal > s.opts.PreviewPages {
		s.pdfTotal = s.opts.PreviewPages
	}
	s.pdfPage = 1
	if saved, ok := s.savedPage(); ok && saved >= 1 {
		// Past-the-end pages are clamped by the renderer's range check.
		s.pdfPage = saved
	}
	if s.pdfPage <= s.pdfTotal {
		s.savePage(s.pdfPage)
	}
	return s.render()
}

func (s *Session) readyAudio(c content.Audio) tea.Cmd {
	gen, ctx, open := s.gen, s.ctx, s.deps.OpenAudio
	if open == nil {
		open = func(_ context.Context, src content.AudioSource) audio.Element {
			return audio.NewStream(src.URL, src.Duration)
		}
	}
	return func() tea.Msg {
		return audioOpenedMsg{gen: gen, el: open(ctx, c.Source)}
	}
}

func (s *Session) handleAudioOpened(msg audioOpenedMsg) tea.Cmd {
	if msg.gen != s.gen || msg.el == nil {
		return nil
	}
	bookID := s.book.ID
	s.player = audio.NewController(msg.el, s.opts.Preview, func(seconds float64) error {
		if !s.canPersist() {
			return nil
		}
		return s.deps.Progress.SaveTime(bookID, seconds)
	})
	if s.canPersist() {
		s.player.Restore(s.deps.Progress.Time(bookID))
	}
	s.refreshAudio()
	return s.tick()
}

func (s *Session) tick() tea.Cmd {
	gen := s.gen
	return tea.Tick(TickInterval, func(time.Time) tea.Msg {
		return tickMsg{gen: gen}
	})
}

func (s *Session) handleTick(msg tickMsg) tea.Cmd {
	if msg.gen != s.gen || s.player == nil {
		return nil
	}
	s.refreshAudio()
	return s.tick()
}

func (s *Session) refreshAudio() {
	st, err := s.player.TimeUpdate()
	if err != nil {
		s.log.Warn().Err(err).Msg("failed to save audio position")
	}
	s.audioStatus = st
}

// render starts rendering the current PDF page, superseding any render in
// flight.
func (s *Session) render() tea.Cmd {
	if s.renderer == nil {
		return nil
	}
	s.rendering = true
	gen, r := s.gen, s.renderer
	job := r.Start(s.pdfPage, s.opts.Viewport)
	return func() tea.Msg {
		bmp, err := r.Run(job)
		return renderedMsg{gen: gen, job: job, bitmap: bmp, err: err}
	}
}

func (s *Session) handleRendered(msg renderedMsg) tea.Cmd {
	if msg.gen != s.gen || s.renderer == nil {
		return nil
	}
	if errors.Is(msg.err, pdf.ErrRenderCancelled) || !s.renderer.Current(msg.job) {
		return nil
	}
	s.rendering = false

	var rangeErr *pdf.PageRangeError
	if errors.As(msg.err, &rangeErr) {
		s.pdfPage = rangeErr.Last
		if s.pdfPage > s.pdfTotal {
			s.pdfPage = s.pdfTotal
		}
		s.savePage(s.pdfPage)
		return s.render()
	}
	if msg.err != nil {
		s.log.Warn().Err(msg.err).Int("page", msg.job.Page).Msg("render failed")
		return nil
	}
	s.bitmap = msg.bitmap
	return nil
}

// NextPage turns forward one page.
func (s *Session) NextPage() tea.Cmd {
	return s.GoToPage(s.pageNumber() + 1)
}

// PrevPage turns back one page.
func (s *Session) PrevPage() tea.Cmd {
	return s.GoToPage(s.pageNumber() - 1)
}

// GoToPage jumps to page n (1-based) if it exists.
func (s *Session) GoToPage(n int) tea.Cmd {
	if s.phase != PhaseReady {
		return nil
	}
	switch {
	case s.pager != nil:
		if s.pager.Go(n) {
			s.savePage(n)
		}
	case s.renderer != nil:
		if n < 1 || n > s.pdfTotal || n == s.pdfPage {
			return nil
		}
		s.pdfPage = n
		s.savePage(n)
		return s.render()
	}
	return nil
}

// Resize changes the drawable area and re-renders PDF pages to fit.
func (s *Session) Resize(vp pdf.Viewport) tea.Cmd {
	if vp == s.opts.Viewport {
		return nil
	}
	s.opts.Viewport = vp
	if s.phase == PhaseReady && s.renderer != nil {
		return s.render()
	}
	return nil
}

// TogglePlay plays or pauses audio.
func (s *Session) TogglePlay() {
	if s.player == nil {
		return
	}
	if err := s.player.Toggle(); err != nil {
		s.log.Warn().Err(err).Msg("toggle playback")
	}
	s.refreshAudio()
}

// Skip moves audio by delta seconds.
func (s *Session) Skip(delta float64) {
	if s.player == nil {
		return
	}
	s.player.Skip(delta)
	s.refreshAudio()
}

// Seek moves audio to t seconds.
func (s *Session) Seek(t float64) {
	if s.player == nil {
		return
	}
	s.player.Seek(t)
	s.refreshAudio()
}

// CycleRate steps the playback rate.
func (s *Session) CycleRate() {
	if s.player == nil {
		return
	}
	s.player.CycleRate()
	s.refreshAudio()
}

// AdjustVolume changes the volume by delta within [0, 1].
func (s *Session) AdjustVolume(delta float64) {
	if s.player == nil {
		return
	}
	s.player.AdjustVolume(delta)
	s.refreshAudio()
}
