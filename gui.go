//go:build gui

package main

import (
	"fmt"
	"image/color"
	"strings"
	"time"

	"fyne.io/fyne/v2"
	fyneapp "fyne.io/fyne/v2/app"
	"fyne.io/fyne/v2/canvas"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/dialog"
	"fyne.io/fyne/v2/layout"
	"fyne.io/fyne/v2/theme"
	"fyne.io/fyne/v2/widget"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/metcalfc/folio/internal/audio"
	"github.com/metcalfc/folio/internal/catalog"
	"github.com/metcalfc/folio/internal/config"
	"github.com/metcalfc/folio/internal/i18n"
	"github.com/metcalfc/folio/internal/session"
)

// Cell size used to turn the configured chrome padding into pixels.
const (
	guiCellW = 8
	guiCellH = 16
)

// variantTheme pins the default theme to one variant.
type variantTheme struct {
	fyne.Theme
	variant fyne.ThemeVariant
}

func (t variantTheme) Color(n fyne.ThemeColorName, _ fyne.ThemeVariant) color.Color {
	return t.Theme.Color(n, t.variant)
}

func themeFor(name string) fyne.Theme {
	v := theme.VariantDark
	if name == "light" {
		v = theme.VariantLight
	}
	return variantTheme{Theme: theme.DefaultTheme(), variant: v}
}

type gui struct {
	app *app
	fa  fyne.App
	win fyne.Window
	tr  *i18n.Translator

	books []catalog.Book
	sess  *session.Session

	title    *widget.Label
	banner   *widget.Label
	status   *widget.Label
	body     *fyne.Container
	text     *widget.Label
	page     *canvas.Image
	audioBox *fyne.Container
	audioPos *widget.Label
	audioBar *widget.Slider
	audioCtl *widget.Label
	denied   *fyne.Container
	deniedTx *widget.Label
	email    *widget.Entry
	password *widget.Entry
	loginErr *widget.Label
	loginBox *fyne.Container
	buyBtn   *widget.Button
	reader   fyne.CanvasObject
	catalog  fyne.CanvasObject

	done chan struct{}
}

// run executes cmd off the UI goroutine and feeds the result back on it.
func (g *gui) run(cmd tea.Cmd) {
	if cmd == nil {
		return
	}
	go func() {
		msg := cmd()
		fyne.Do(func() { g.deliver(msg) })
	}()
}

func (g *gui) deliver(msg tea.Msg) {
	switch msg := msg.(type) {
	case nil:
		return
	case tea.BatchMsg:
		for _, c := range msg {
			g.run(c)
		}
		return
	}
	if g.sess == nil {
		return
	}
	g.run(g.sess.Update(msg))
	g.refresh()
}

func (g *gui) surface() surface {
	size := g.body.Size()
	if size.Width <= 0 || size.Height <= 0 {
		size = fyne.NewSize(800, 600)
	}
	return surface{width: float64(size.Width), height: float64(size.Height), cellW: guiCellW, cellH: guiCellH}
}

func (g *gui) loadCatalog() {
	books, err := g.app.catalog.Books()
	if err != nil {
		g.app.log.Error().Err(err).Msg("failed to load catalog")
		return
	}
	g.books = books
}

func (g *gui) buildCatalog() fyne.CanvasObject {
	list := widget.NewList(
		func() int { return len(g.books) },
		func() fyne.CanvasObject {
			return container.NewVBox(widget.NewLabel("Title"), widget.NewLabel("Details"))
		},
		func(id widget.ListItemID, obj fyne.CanvasObject) {
			b := g.books[id]
			box := obj.(*fyne.Container)
			title := box.Objects[0].(*widget.Label)
			title.SetText(b.Title)
			title.TextStyle.Bold = true
			now := time.Now()
			details := []string{b.Author, g.tr.Money(b.PriceAt(now), g.app.settings.Get().Currency)}
			if b.OnSale(now) {
				details = append(details, g.tr.T("on_sale", nil))
			}
			box.Objects[1].(*widget.Label).SetText(strings.Join(details, " · "))
		},
	)

	selected := -1
	list.OnSelected = func(id widget.ListItemID) { selected = id }
	open := func(preview bool) {
		if selected >= 0 && selected < len(g.books) {
			g.openBook(g.books[selected].ID, preview, false)
		}
	}
	buttons := container.NewHBox(
		layout.NewSpacer(),
		widget.NewButton("Preview", func() { open(true) }),
		widget.NewButton("Read", func() { open(false) }),
	)
	return container.NewBorder(widget.NewLabel(g.tr.T("catalog_title", nil)), buttons, nil, nil, list)
}

func (g *gui) buildReader() fyne.CanvasObject {
	g.title = widget.NewLabel("")
	g.title.TextStyle.Bold = true
	g.banner = widget.NewLabel("")
	g.status = widget.NewLabel("")

	g.text = widget.NewLabel("")
	g.text.Wrapping = fyne.TextWrapWord

	g.page = canvas.NewImageFromImage(nil)
	g.page.FillMode = canvas.ImageFillContain

	g.audioPos = widget.NewLabel("")
	g.audioBar = widget.NewSlider(0, 1)
	g.audioBar.OnChangeEnded = func(t float64) {
		if g.sess != nil {
			g.sess.Seek(t)
			g.refresh()
		}
	}
	g.audioCtl = widget.NewLabel("")
	g.audioBox = container.NewVBox(
		g.audioPos,
		g.audioBar,
		g.audioCtl,
		container.NewHBox(
			widget.NewButton("-10s", func() { g.sess.Skip(-audio.SkipSeconds); g.refresh() }),
			widget.NewButton("⏯", func() { g.sess.TogglePlay(); g.refresh() }),
			widget.NewButton("+10s", func() { g.sess.Skip(audio.SkipSeconds); g.refresh() }),
			widget.NewButton("Rate", func() { g.sess.CycleRate(); g.refresh() }),
			widget.NewButton("Vol -", func() { g.sess.AdjustVolume(-0.1); g.refresh() }),
			widget.NewButton("Vol +", func() { g.sess.AdjustVolume(0.1); g.refresh() }),
		),
	)

	g.email = widget.NewEntry()
	g.email.SetPlaceHolder(g.tr.T("email", nil))
	g.password = widget.NewPasswordEntry()
	g.password.SetPlaceHolder(g.tr.T("password", nil))
	g.loginErr = widget.NewLabel("")
	g.loginBox = container.NewVBox(g.email, g.password,
		widget.NewButton(g.tr.T("login", nil), g.submitLogin), g.loginErr)
	g.buyBtn = widget.NewButton("Buy", g.buy)
	g.deniedTx = widget.NewLabel("")
	g.deniedTx.Wrapping = fyne.TextWrapWord
	g.denied = container.NewVBox(g.deniedTx, g.loginBox, g.buyBtn,
		widget.NewButton("Preview", func() { g.run(g.sess.SetPreview(true)); g.refresh() }))

	g.body = container.NewStack()

	nav := container.NewHBox(
		widget.NewButton(g.tr.T("back_to_catalog", nil), g.closeBook),
		layout.NewSpacer(),
		widget.NewButton("◀", func() { g.run(g.sess.PrevPage()); g.refresh() }),
		widget.NewButton("▶", func() { g.run(g.sess.NextPage()); g.refresh() }),
	)
	top := container.NewHBox(g.title, g.banner)
	return container.NewBorder(top, container.NewVBox(g.status, nav), nil, nil, g.body)
}

func (g *gui) openBook(id string, preview, fresh bool) {
	s, err := g.app.newSession(id, preview, fresh, g.surface())
	if err != nil {
		dialogError(g.win, err)
		return
	}
	g.closeSession()
	g.sess = s
	g.win.SetContent(g.reader)
	g.run(s.Init())
	g.refresh()
}

func (g *gui) closeSession() {
	if g.sess != nil {
		g.sess.Close()
		g.sess = nil
	}
}

func (g *gui) closeBook() {
	g.closeSession()
	g.loadCatalog()
	g.catalog = g.buildCatalog()
	g.win.SetContent(g.catalog)
}

func (g *gui) submitLogin() {
	if _, err := g.app.login(g.email.Text, g.password.Text); err != nil {
		g.loginErr.SetText(g.tr.T("login_failed", map[string]any{"Reason": err.Error()}))
		g.password.SetText("")
		return
	}
	g.loginErr.SetText("")
	g.refreshViewer()
}

func (g *gui) buy() {
	u, err := g.app.currentUser()
	if err != nil || u == nil {
		return
	}
	if _, err := g.app.catalog.Purchase(u.ID, g.sess.Book().ID); err != nil {
		dialogError(g.win, err)
		return
	}
	g.refreshViewer()
}

func (g *gui) refreshViewer() {
	v, err := g.app.viewer(g.sess.Book().ID)
	if err != nil {
		dialogError(g.win, err)
		return
	}
	g.run(g.sess.SetViewer(v))
	g.refresh()
}

func (g *gui) show(obj fyne.CanvasObject) {
	if len(g.body.Objects) == 1 && g.body.Objects[0] == obj {
		obj.Refresh()
		return
	}
	g.body.Objects = []fyne.CanvasObject{obj}
	g.body.Refresh()
}

// refresh redraws the reader from session state.
func (g *gui) refresh() {
	s := g.sess
	if s == nil {
		return
	}
	g.title.SetText(s.Book().Title)
	g.banner.SetText("")
	if s.Preview() {
		g.banner.SetText(g.tr.T("preview_banner", map[string]any{"Pages": g.app.cfg.Reader.PreviewPages}))
	}

	switch s.Phase() {
	case session.PhaseDenied:
		d := s.Decision()
		msg := g.tr.T("access_denied_body", nil)
		if d.NeedsLogin {
			msg += "\n" + g.tr.T("access_denied_login", nil)
			g.loginBox.Show()
			g.buyBtn.Hide()
		} else {
			g.loginBox.Hide()
			g.buyBtn.Show()
		}
		g.deniedTx.SetText(g.tr.T("access_denied_title", nil) + "\n\n" + msg)
		g.show(container.NewCenter(g.denied))
	case session.PhaseLoading, session.PhaseIdle:
		g.show(container.NewCenter(widget.NewProgressBarInfinite()))
	case session.PhaseError:
		text := g.tr.T("load_failed_title", nil)
		if fe := s.Err(); fe != nil {
			text += "\n\n" + fe.Error()
		}
		g.text.SetText(text)
		g.show(container.NewVScroll(g.text))
	default:
		g.refreshContent()
	}
	g.status.SetText(g.statusLine())
}

func (g *gui) refreshContent() {
	s := g.sess
	switch s.Kind() {
	case session.KindText:
		g.text.SetText(strings.Join(s.CurrentPage(), "\n\n"))
		g.show(container.NewVScroll(g.text))
	case session.KindPDF:
		if bmp := s.Bitmap(); bmp != nil && g.page.Image != bmp.Image {
			g.page.Image = bmp.Image
			g.page.Refresh()
		}
		g.show(g.page)
	case session.KindAudio:
		st := s.AudioStatus()
		state := g.tr.T("playing", nil)
		if st.Paused {
			state = g.tr.T("paused", nil)
		}
		g.audioPos.SetText(fmt.Sprintf("%s  %s / %s", state, clock(st.Current), clock(st.Duration)))
		if st.Duration > 0 {
			g.audioBar.Max = st.Duration
			g.audioBar.SetValue(st.Current)
		}
		g.audioCtl.SetText(g.tr.T("rate", map[string]any{"Rate": st.Rate}) + " · " +
			g.tr.T("volume", map[string]any{"Percent": int(st.Volume*100 + 0.5)}))
		g.show(g.audioBox)
	}
}

func (g *gui) statusLine() string {
	s := g.sess
	if s.Phase() != session.PhaseReady {
		return ""
	}
	if s.Kind() == session.KindAudio {
		return fmt.Sprintf("%d%%", s.Percent())
	}
	current, total := s.Page()
	parts := []string{
		g.tr.T("page_of", map[string]any{"Page": current, "Total": total}),
		fmt.Sprintf("%d%%", s.Percent()),
		g.tr.N("minutes_left", s.RemainingMinutes()),
	}
	if s.Analyzing() {
		parts = append(parts, g.tr.T("analyzing", nil))
	} else if mt := s.Metrics(); mt != nil {
		parts = append(parts,
			g.tr.T("estimated_pages", map[string]any{"Pages": s.EstimatedPages()}),
			g.tr.T("difficulty", map[string]any{"Level": mt.Difficulty}))
	}
	return strings.Join(parts, " | ")
}

func (g *gui) onKey(key *fyne.KeyEvent) {
	if g.sess == nil || g.win.Canvas().Focused() != nil {
		return
	}
	s := g.sess
	audioMode := s.Kind() == session.KindAudio
	switch key.Name {
	case fyne.KeyEscape:
		g.closeBook()
		return
	case fyne.KeyRight:
		if audioMode {
			s.Skip(audio.SkipSeconds)
		} else {
			g.run(s.NextPage())
		}
	case fyne.KeyLeft:
		if audioMode {
			s.Skip(-audio.SkipSeconds)
		} else {
			g.run(s.PrevPage())
		}
	case fyne.KeySpace:
		if audioMode {
			s.TogglePlay()
		} else {
			g.run(s.NextPage())
		}
	case fyne.KeyF:
		g.win.SetFullScreen(!g.win.FullScreen())
	}
	g.refresh()
}

func (g *gui) onRune(r rune) {
	if g.sess == nil || g.win.Canvas().Focused() != nil {
		return
	}
	switch r {
	case 'r', 'R':
		g.sess.CycleRate()
	case '+', '=':
		g.sess.AdjustVolume(0.1)
	case '-':
		g.sess.AdjustVolume(-0.1)
	case 't', 'T':
		next := "light"
		if g.app.settings.Get().Theme == "light" {
			next = "dark"
		}
		if err := g.app.settings.Set("theme", next); err != nil {
			dialogError(g.win, err)
		}
	}
	g.refresh()
}

// watchResize re-fits the PDF page when the reading area changes size.
func (g *gui) watchResize() {
	var last fyne.Size
	for {
		select {
		case <-g.done:
			return
		case <-time.After(100 * time.Millisecond):
		}
		fyne.Do(func() {
			if g.sess == nil || g.body == nil {
				return
			}
			size := g.body.Size()
			if size == last || size.Width <= 0 {
				return
			}
			last = size
			vp := g.app.viewport(g.surface())
			vp.DevicePixelRatio *= float64(g.win.Canvas().Scale())
			g.run(g.sess.Resize(vp))
		})
	}
}

func dialogError(w fyne.Window, err error) {
	dialog.ShowError(err, w)
}

// runUI opens the desktop front end, at the catalog or straight into a book.
func runUI(a *app, bookID string, preview, fresh bool) error {
	g := &gui{
		app:  a,
		fa:   fyneapp.NewWithID("dev.metcalfc.folio"),
		tr:   a.translator(),
		done: make(chan struct{}),
	}
	g.fa.Settings().SetTheme(themeFor(a.settings.Get().Theme))
	a.settings.Subscribe(func(p config.Preferences) {
		g.tr = i18n.New(p.Language)
		g.fa.Settings().SetTheme(themeFor(p.Theme))
	})

	g.win = g.fa.NewWindow("folio")
	g.loadCatalog()
	g.catalog = g.buildCatalog()
	g.reader = g.buildReader()
	g.win.SetContent(g.catalog)
	g.win.Resize(fyne.NewSize(800, 600))

	g.win.Canvas().SetOnTypedKey(g.onKey)
	g.win.Canvas().SetOnTypedRune(g.onRune)
	g.win.SetOnClosed(func() {
		close(g.done)
		g.closeSession()
	})

	if bookID != "" {
		g.openBook(bookID, preview, fresh)
	}
	go g.watchResize()

	g.win.ShowAndRun()
	return nil
}
