package session

import (
	"context"
	"fmt"
	"image"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/metcalfc/folio/internal/audio"
	"github.com/metcalfc/folio/internal/content"
	"github.com/metcalfc/folio/internal/metrics"
	"github.com/metcalfc/folio/internal/pdf"
	"github.com/metcalfc/folio/internal/state"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeLoader struct {
	mu     sync.Mutex
	calls  int
	result func(src content.Source) (content.Loaded, error)
}

func (l *fakeLoader) Load(_ context.Context, src content.Source) (content.Loaded, error) {
	l.mu.Lock()
	l.calls++
	l.mu.Unlock()
	return l.result(src)
}

func textLoader(n int) *fakeLoader {
	return &fakeLoader{result: func(content.Source) (content.Loaded, error) {
		return content.Text{Paragraphs: paragraphs(n), Origin: content.OriginOnline}, nil
	}}
}

func paragraphs(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("paragraph %d", i+1)
	}
	return out
}

type fakeEstimator struct {
	calls  int
	length int
	m      *metrics.Metrics
	err    error
}

func (e *fakeEstimator) Estimate(_ context.Context, text string, length int) (*metrics.Metrics, error) {
	e.calls++
	e.length = length
	return e.m, e.err
}

type fakeDoc struct {
	pages  int
	closed bool
}

func (d *fakeDoc) NumPage() int                       { return d.pages }
func (d *fakeDoc) Bound(int) (image.Rectangle, error) { return image.Rect(0, 0, 612, 792), nil }
func (d *fakeDoc) ImageDPI(int, float64) (*image.RGBA, error) {
	return image.NewRGBA(image.Rect(0, 0, 2, 2)), nil
}
func (d *fakeDoc) Close() error {
	d.closed = true
	return nil
}

type fakeElement struct {
	cur, dur, vol, rate float64
	paused              bool
}

func newFakeElement(dur float64) *fakeElement {
	return &fakeElement{dur: dur, vol: 1, rate: 1, paused: true}
}

func (e *fakeElement) Duration() float64         { return e.dur }
func (e *fakeElement) CurrentTime() float64      { return e.cur }
func (e *fakeElement) SetCurrentTime(t float64)  { e.cur = t }
func (e *fakeElement) Volume() float64           { return e.vol }
func (e *fakeElement) SetVolume(v float64)       { e.vol = v }
func (e *fakeElement) PlaybackRate() float64     { return e.rate }
func (e *fakeElement) SetPlaybackRate(r float64) { e.rate = r }
func (e *fakeElement) Play() error               { e.paused = false; return nil }
func (e *fakeElement) Pause()                    { e.paused = true }
func (e *fakeElement) Paused() bool              { return e.paused }
func (e *fakeElement) Ended() bool               { return e.dur > 0 && e.cur >= e.dur }

type fixture struct {
	progress *state.Progress
	loader   *fakeLoader
	est      *fakeEstimator
	deps     Deps
}

func newFixture(t *testing.T, loader *fakeLoader) *fixture {
	t.Helper()
	store, err := state.NewStore(t.TempDir())
	require.NoError(t, err)
	f := &fixture{
		progress: state.NewProgress(store, "folio"),
		loader:   loader,
		est:      &fakeEstimator{},
	}
	f.deps = Deps{Loader: loader, Progress: f.progress, Metrics: f.est}
	return f
}

var (
	owner    = Viewer{UserID: "u1", Purchased: true}
	textBook = Book{ID: "b1", Title: "Book", Source: content.TextSource{BookID: "b1"}}
	pdfBook  = Book{ID: "p1", Title: "PDF", Source: content.PDFSource{URL: "https://example.com/p1.pdf"}}
	audBook  = Book{ID: "a1", Title: "Audio", Source: content.AudioSource{URL: "https://example.com/a1.m4b"}}
)

// drive feeds command results back into the session until it goes quiet.
func drive(s *Session, cmd tea.Cmd) {
	for cmd != nil {
		cmd = s.Update(cmd())
	}
}

func TestDeniedWithoutUser(t *testing.T) {
	f := newFixture(t, textLoader(10))
	s := New(context.Background(), textBook, Viewer{}, Options{}, f.deps)

	assert.Nil(t, s.Init())
	assert.Equal(t, PhaseDenied, s.Phase())
	assert.False(t, s.Loading())
	assert.False(t, s.Decision().Authorized)
	assert.True(t, s.Decision().NeedsLogin)
	assert.Zero(t, f.loader.calls)
}

func TestDeniedWithoutPurchase(t *testing.T) {
	f := newFixture(t, textLoader(10))
	s := New(context.Background(), textBook, Viewer{UserID: "u1"}, Options{}, f.deps)

	assert.Nil(t, s.Init())
	assert.Equal(t, PhaseDenied, s.Phase())
	assert.False(t, s.Decision().NeedsLogin)

	assert.Nil(t, s.NextPage())
	_, ok := f.progress.Page("b1")
	assert.False(t, ok)
}

func TestLoginFlipsToAuthorized(t *testing.T) {
	f := newFixture(t, textLoader(10))
	s := New(context.Background(), textBook, Viewer{}, Options{}, f.deps)
	require.Nil(t, s.Init())

	cmd := s.SetViewer(owner)
	require.NotNil(t, cmd)
	assert.Equal(t, PhaseLoading, s.Phase())

	drive(s, cmd)
	assert.Equal(t, PhaseReady, s.Phase())
	assert.Equal(t, KindText, s.Kind())
	assert.Equal(t, 1, f.loader.calls)

	// Same authorization does not reload.
	assert.Nil(t, s.SetViewer(owner))

	// Logging out closes the content.
	assert.Nil(t, s.SetViewer(Viewer{}))
	assert.Equal(t, PhaseDenied, s.Phase())
	assert.Equal(t, KindNone, s.Kind())
}

func TestTextLoadRestoresAndSaves(t *testing.T) {
	tests := []struct {
		name  string
		saved int
		want  int
	}{
		{"within range", 3, 3},
		{"past the end resets", 7, 1},
		{"nonsense resets", -2, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, textLoader(30))
			require.NoError(t, f.progress.SavePage("b1", tt.saved))

			s := New(context.Background(), textBook, owner, Options{}, f.deps)
			drive(s, s.Init())

			current, total := s.Page()
			assert.Equal(t, 5, total)
			assert.Equal(t, tt.want, current)

			saved, ok := f.progress.Page("b1")
			require.True(t, ok)
			assert.Equal(t, tt.want, saved)
		})
	}
}

func TestFirstPageViewCreatesProgress(t *testing.T) {
	f := newFixture(t, textLoader(8))
	s := New(context.Background(), textBook, owner, Options{}, f.deps)
	drive(s, s.Init())

	saved, ok := f.progress.Page("b1")
	require.True(t, ok)
	assert.Equal(t, 1, saved)

	assert.Nil(t, s.NextPage())
	saved, _ = f.progress.Page("b1")
	assert.Equal(t, 2, saved)
	assert.Equal(t, []string{"paragraph 7", "paragraph 8"}, []string(s.CurrentPage()))

	// Past the end is a no-op.
	s.NextPage()
	current, _ := s.Page()
	assert.Equal(t, 2, current)

	s.PrevPage()
	saved, _ = f.progress.Page("b1")
	assert.Equal(t, 1, saved)
}

func TestPreviewLimitsAndNeverPersists(t *testing.T) {
	f := newFixture(t, textLoader(40))
	require.NoError(t, f.progress.SavePage("b1", 2))

	s := New(context.Background(), textBook, Viewer{}, Options{Preview: true}, f.deps)
	drive(s, s.Init())

	require.Equal(t, PhaseReady, s.Phase())
	current, total := s.Page()
	assert.Equal(t, 2, total)
	assert.Equal(t, 1, current, "preview does not restore")

	s.NextPage()
	saved, _ := f.progress.Page("b1")
	assert.Equal(t, 2, saved)

	s.PrevPage()
	saved, _ = f.progress.Page("b1")
	assert.Equal(t, 2, saved, "preview never writes")

	assert.Zero(t, f.est.calls)
	assert.False(t, s.Analyzing())
}

func TestMetricsAbsenceFallsBack(t *testing.T) {
	for _, est := range []*fakeEstimator{{}, {err: errors.New("quota exceeded")}} {
		f := newFixture(t, textLoader(30))
		f.deps.Metrics = est
		s := New(context.Background(), textBook, owner, Options{}, f.deps)

		cmd := s.Update(s.Init()())
		assert.True(t, s.Analyzing())
		assert.Equal(t, PhaseReady, s.Phase(), "content shows while metrics are pending")
		drive(s, cmd)

		assert.False(t, s.Analyzing())
		assert.Nil(t, s.Metrics())
		assert.Equal(t, 1, est.calls)

		s.GoToPage(2)
		assert.Equal(t, 2*(5-2), s.RemainingMinutes())
		assert.Equal(t, 5, s.EstimatedPages())
		assert.Equal(t, 40, s.Percent())
	}
}

func TestMetricsKnown(t *testing.T) {
	f := newFixture(t, textLoader(30))
	f.est.m = &metrics.Metrics{EstimatedPages: 12, ReadingTimeMinutes: 50, Difficulty: "Intermediate"}
	s := New(context.Background(), textBook, owner, Options{}, f.deps)
	drive(s, s.Init())

	require.NotNil(t, s.Metrics())
	assert.Equal(t, 12, s.EstimatedPages())
	assert.Equal(t, 40, s.RemainingMinutes())
	text := strings.Join(paragraphs(30), "\n\n")
	assert.Equal(t, utf8.RuneCountInString(text), f.est.length)
}

func TestStaleLoadIgnored(t *testing.T) {
	loader := &fakeLoader{result: func(src content.Source) (content.Loaded, error) {
		return content.Text{Paragraphs: []string{src.(content.TextSource).BookID}}, nil
	}}
	f := newFixture(t, loader)
	s := New(context.Background(), textBook, owner, Options{}, f.deps)

	first := s.Init()
	other := Book{ID: "b2", Source: content.TextSource{BookID: "b2"}}
	second := s.SetBook(other)

	assert.Nil(t, s.Update(first()))
	assert.Equal(t, PhaseLoading, s.Phase())

	drive(s, second)
	assert.Equal(t, PhaseReady, s.Phase())
	assert.Equal(t, []string{"b2"}, []string(s.CurrentPage()))
}

func TestPDFLoadFailure(t *testing.T) {
	loader := &fakeLoader{result: func(content.Source) (content.Loaded, error) {
		return nil, &content.FetchError{Cause: errors.New("404 Not Found")}
	}}
	f := newFixture(t, loader)
	s := New(context.Background(), pdfBook, owner, Options{}, f.deps)
	drive(s, s.Init())

	assert.Equal(t, PhaseError, s.Phase())
	require.NotNil(t, s.Err())
	assert.Contains(t, s.Err().Error(), "404 Not Found")
	assert.Equal(t, 1, loader.calls, "no retry")

	loader.result = func(content.Source) (content.Loaded, error) { return nil, errors.New("bare") }
	drive(s, s.SetBook(pdfBook))
	require.NotNil(t, s.Err())
	assert.Contains(t, s.Err().Error(), "bare")
}

func pdfLoader(doc *fakeDoc) *fakeLoader {
	return &fakeLoader{result: func(content.Source) (content.Loaded, error) {
		return content.PDF{Doc: doc}, nil
	}}
}

func TestPDFLoadAndRender(t *testing.T) {
	doc := &fakeDoc{pages: 4}
	f := newFixture(t, pdfLoader(doc))
	vp := pdf.Viewport{Width: 800, Height: 600, DevicePixelRatio: 2}
	s := New(context.Background(), pdfBook, owner, Options{Viewport: vp}, f.deps)
	drive(s, s.Init())

	require.Equal(t, PhaseReady, s.Phase())
	assert.Equal(t, KindPDF, s.Kind())
	assert.Equal(t, &metrics.Metrics{EstimatedPages: 4, ReadingTimeMinutes: 6, Difficulty: metrics.PDFDifficulty}, s.Metrics())
	assert.Zero(t, f.est.calls)

	require.NotNil(t, s.Bitmap())
	assert.Equal(t, 1, s.Bitmap().Page)
	assert.False(t, s.Rendering())

	drive(s, s.NextPage())
	assert.Equal(t, 2, s.Bitmap().Page)
	saved, _ := f.progress.Page("p1")
	assert.Equal(t, 2, saved)
	assert.Equal(t, 3, s.RemainingMinutes())

	assert.Nil(t, s.Resize(vp))
	drive(s, s.Resize(pdf.Viewport{Width: 400, Height: 300, DevicePixelRatio: 1}))
	assert.Equal(t, 2, s.Bitmap().Page)

	s.Close()
	assert.True(t, doc.closed)
}

func TestPDFNewRenderCancelsPending(t *testing.T) {
	f := newFixture(t, pdfLoader(&fakeDoc{pages: 4}))
	s := New(context.Background(), pdfBook, owner, Options{Viewport: pdf.Viewport{Width: 100, Height: 100}}, f.deps)

	renderPage1 := s.Update(s.Init()())
	require.NotNil(t, renderPage1)
	renderPage2 := s.NextPage()
	require.NotNil(t, renderPage2)

	drive(s, renderPage2)
	assert.Nil(t, s.Update(renderPage1()))

	require.NotNil(t, s.Bitmap())
	assert.Equal(t, 2, s.Bitmap().Page)
}

func TestPDFRestorePastEndClampsToLast(t *testing.T) {
	f := newFixture(t, pdfLoader(&fakeDoc{pages: 3}))
	require.NoError(t, f.progress.SavePage("p1", 9))

	s := New(context.Background(), pdfBook, owner, Options{}, f.deps)
	drive(s, s.Init())

	current, total := s.Page()
	assert.Equal(t, 3, current)
	assert.Equal(t, 3, total)
	require.NotNil(t, s.Bitmap())
	assert.Equal(t, 3, s.Bitmap().Page)
	saved, _ := f.progress.Page("p1")
	assert.Equal(t, 3, saved)
}

func TestPDFPreviewLimitsPages(t *testing.T) {
	f := newFixture(t, pdfLoader(&fakeDoc{pages: 10}))
	s := New(context.Background(), pdfBook, Viewer{}, Options{Preview: true}, f.deps)
	drive(s, s.Init())

	_, total := s.Page()
	assert.Equal(t, 2, total)
	drive(s, s.NextPage())
	assert.Nil(t, s.NextPage())

	_, ok := f.progress.Page("p1")
	assert.False(t, ok)
}

func TestStaleRenderAfterBookChange(t *testing.T) {
	doc := &fakeDoc{pages: 2}
	f := newFixture(t, pdfLoader(doc))
	s := New(context.Background(), pdfBook, owner, Options{}, f.deps)

	render := s.Update(s.Init()())
	require.NotNil(t, render)

	f.loader.result = func(content.Source) (content.Loaded, error) { return content.Text{Paragraphs: []string{"x"}}, nil }
	load := s.SetBook(textBook)
	assert.True(t, doc.closed)

	assert.Nil(t, s.Update(render()))
	assert.Nil(t, s.Bitmap())
	drive(s, load)
	assert.Equal(t, KindText, s.Kind())
}

// blockingDoc holds ImageDPI until released and records whether Close ran
// while a page was still rasterizing.
type blockingDoc struct {
	started chan struct{}
	release chan struct{}
	closed  chan struct{}

	mu          sync.Mutex
	rasterizing bool
	closedEarly bool
}

func newBlockingDoc() *blockingDoc {
	return &blockingDoc{
		started: make(chan struct{}),
		release: make(chan struct{}),
		closed:  make(chan struct{}),
	}
}

func (d *blockingDoc) NumPage() int                       { return 3 }
func (d *blockingDoc) Bound(int) (image.Rectangle, error) { return image.Rect(0, 0, 612, 792), nil }

func (d *blockingDoc) ImageDPI(int, float64) (*image.RGBA, error) {
	d.mu.Lock()
	d.rasterizing = true
	d.mu.Unlock()
	close(d.started)
	<-d.release
	d.mu.Lock()
	d.rasterizing = false
	d.mu.Unlock()
	return image.NewRGBA(image.Rect(0, 0, 2, 2)), nil
}

func (d *blockingDoc) Close() error {
	d.mu.Lock()
	d.closedEarly = d.rasterizing
	d.mu.Unlock()
	close(d.closed)
	return nil
}

func TestCloseDuringRenderKeepsDocumentOpen(t *testing.T) {
	doc := newBlockingDoc()
	f := newFixture(t, &fakeLoader{result: func(content.Source) (content.Loaded, error) {
		return content.PDF{Doc: doc}, nil
	}})
	s := New(context.Background(), pdfBook, owner, Options{}, f.deps)

	render := s.Update(s.Init()())
	require.NotNil(t, render)
	msgs := make(chan tea.Msg, 1)
	go func() { msgs <- render() }()
	<-doc.started

	s.Close()
	assert.Nil(t, s.Update(<-msgs))
	select {
	case <-doc.closed:
		t.Fatal("document closed while a page was rasterizing")
	default:
	}

	close(doc.release)
	select {
	case <-doc.closed:
	case <-time.After(time.Second):
		t.Fatal("document never closed")
	}
	assert.False(t, doc.closedEarly)
}

func openAudio(el audio.Element) func(context.Context, content.AudioSource) audio.Element {
	return func(context.Context, content.AudioSource) audio.Element { return el }
}

func TestAudioRestoresAndPersists(t *testing.T) {
	el := newFakeElement(600)
	f := newFixture(t, &fakeLoader{result: func(src content.Source) (content.Loaded, error) {
		return content.Audio{Source: src.(content.AudioSource)}, nil
	}})
	f.deps.OpenAudio = openAudio(el)
	require.NoError(t, f.progress.SaveTime("a1", 42.5))

	s := New(context.Background(), audBook, owner, Options{}, f.deps)
	open := s.Update(s.Init()())
	require.NotNil(t, open)
	assert.Equal(t, PhaseReady, s.Phase(), "audio is ready before the element opens")
	assert.Equal(t, KindAudio, s.Kind())

	tick := s.Update(open())
	assert.NotNil(t, tick)
	assert.InDelta(t, 42.5, el.cur, 1e-9)
	assert.InDelta(t, 42.5, s.AudioStatus().Current, 1e-9)

	s.Seek(100)
	assert.InDelta(t, 100, s.AudioStatus().Current, 1e-9)
	saved, _ := f.progress.Time("a1")
	assert.InDelta(t, 100, saved, 1e-9)

	s.TogglePlay()
	assert.False(t, s.AudioStatus().Paused)
	el.cur = 104.8
	assert.NotNil(t, s.Update(tickMsg{gen: s.gen}))
	saved, _ = f.progress.Time("a1")
	assert.InDelta(t, 104.8, saved, 1e-9)

	s.CycleRate()
	assert.Equal(t, 1.25, s.AudioStatus().Rate)
	s.AdjustVolume(-0.3)
	assert.InDelta(t, 0.7, s.AudioStatus().Volume, 1e-9)
	s.Skip(-audio.SkipSeconds)
	assert.InDelta(t, 94.8, s.AudioStatus().Current, 1e-9)

	el.cur = 600
	s.Update(tickMsg{gen: s.gen})
	assert.True(t, s.AudioStatus().Ended)
	assert.True(t, s.AudioStatus().Paused)
	assert.Equal(t, 100, s.Percent())

	// Ticks from an older load stop the loop.
	assert.Nil(t, s.Update(tickMsg{gen: s.gen - 1}))
}

func TestAudioPreviewDoesNotRestoreOrSave(t *testing.T) {
	el := newFakeElement(600)
	f := newFixture(t, &fakeLoader{result: func(src content.Source) (content.Loaded, error) {
		return content.Audio{Source: src.(content.AudioSource)}, nil
	}})
	f.deps.OpenAudio = openAudio(el)
	require.NoError(t, f.progress.SaveTime("a1", 42.5))

	s := New(context.Background(), audBook, Viewer{}, Options{Preview: true}, f.deps)
	open := s.Update(s.Init()())
	s.Update(open())
	assert.Zero(t, el.cur)

	s.TogglePlay()
	el.cur = 10.1
	s.Update(tickMsg{gen: s.gen})
	saved, _ := f.progress.Time("a1")
	assert.InDelta(t, 42.5, saved, 1e-9)
}

func TestSetPreviewReloads(t *testing.T) {
	f := newFixture(t, textLoader(30))
	s := New(context.Background(), textBook, owner, Options{}, f.deps)
	drive(s, s.Init())
	_, total := s.Page()
	assert.Equal(t, 5, total)

	assert.Nil(t, s.SetPreview(false))
	drive(s, s.SetPreview(true))
	_, total = s.Page()
	assert.Equal(t, 2, total)
	assert.True(t, s.Preview())
	assert.Equal(t, 2, f.loader.calls)
}

func TestPhaseString(t *testing.T) {
	assert.Equal(t, "loading", PhaseLoading.String())
	assert.Equal(t, "denied", PhaseDenied.String())
	assert.Equal(t, "unknown", Phase(42).String())
}
