//go:build !gui

package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/metcalfc/folio/internal/audio"
	"github.com/metcalfc/folio/internal/catalog"
	"github.com/metcalfc/folio/internal/config"
	"github.com/metcalfc/folio/internal/content"
	"github.com/metcalfc/folio/internal/i18n"
	"github.com/metcalfc/folio/internal/pdf"
	"github.com/metcalfc/folio/internal/session"
	"github.com/metcalfc/folio/internal/termimg"
)

type styles struct {
	title   lipgloss.Style
	text    lipgloss.Style
	muted   lipgloss.Style
	accent  lipgloss.Style
	banner  lipgloss.Style
	err     lipgloss.Style
	denied  lipgloss.Style
	textCol int
}

func newStyles(theme string) styles {
	fg, muted, accent := lipgloss.Color("#EEEEEE"), lipgloss.Color("#888888"), lipgloss.Color("#FFAA00")
	if theme == "light" {
		fg, muted, accent = lipgloss.Color("#222222"), lipgloss.Color("#666666"), lipgloss.Color("#AA5500")
	}
	return styles{
		title: lipgloss.NewStyle().
			Bold(true).
			Foreground(accent).
			Padding(0, 1),
		text:   lipgloss.NewStyle().Foreground(fg),
		muted:  lipgloss.NewStyle().Foreground(muted).Padding(0, 1),
		accent: lipgloss.NewStyle().Foreground(accent).Bold(true),
		banner: lipgloss.NewStyle().
			Foreground(lipgloss.Color("#000000")).
			Background(accent).
			Padding(0, 1),
		err: lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF5555")).
			Bold(true),
		denied: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(accent).
			Padding(1, 3),
		textCol: 80,
	}
}

type screen int

const (
	screenCatalog screen = iota
	screenReader
)

type bookItem struct {
	book catalog.Book
	desc string
}

func (i bookItem) Title() string       { return i.book.Title }
func (i bookItem) Description() string { return i.desc }
func (i bookItem) FilterValue() string { return i.book.Title + " " + i.book.Author }

type loginForm struct {
	email    textinput.Model
	password textinput.Model
	err      string
}

func newLoginForm(tr *i18n.Translator) *loginForm {
	email := textinput.New()
	email.Placeholder = tr.T("email", nil)
	email.Prompt = tr.T("email", nil) + ": "
	password := textinput.New()
	password.Placeholder = tr.T("password", nil)
	password.Prompt = tr.T("password", nil) + ": "
	password.EchoMode = textinput.EchoPassword
	return &loginForm{email: email, password: password}
}

// pdfFrame caches the terminal rendering of the current bitmap.
type pdfFrame struct {
	bmp        *pdf.Bitmap
	cols, rows int
	out        string
}

type model struct {
	app *app
	tr  *i18n.Translator
	st  styles

	width  int
	height int
	screen screen

	books      list.Model
	booksReady bool

	sess     *session.Session
	spinner  spinner.Model
	spinning bool
	bar      progress.Model
	form     *loginForm
	frame    pdfFrame
	notice   string
	pending  tea.Cmd
	quitting bool
}

func newModel(a *app) (*model, error) {
	m := &model{
		app:     a,
		width:   80,
		height:  24,
		spinner: spinner.New(spinner.WithSpinner(spinner.Dot)),
		bar:     progress.New(progress.WithDefaultGradient(), progress.WithoutPercentage()),
	}
	m.applyPrefs(a.settings.Get())

	m.books = list.New(nil, list.NewDefaultDelegate(), m.width, m.height)
	m.booksReady = true
	if err := m.refreshCatalog(); err != nil {
		return nil, err
	}
	a.settings.Subscribe(func(p config.Preferences) {
		m.applyPrefs(p)
		if err := m.refreshCatalog(); err != nil {
			a.log.Warn().Err(err).Msg("failed to refresh catalog")
		}
	})
	return m, nil
}

func (m *model) applyPrefs(p config.Preferences) {
	m.tr = i18n.New(p.Language)
	m.st = newStyles(p.Theme)
	m.frame = pdfFrame{}
	if m.booksReady {
		m.books.Title = m.tr.T("catalog_title", nil)
		m.books.Styles.Title = m.st.banner
	}
}

func (m *model) refreshCatalog() error {
	books, err := m.app.catalog.Books()
	if err != nil {
		return err
	}
	owned := map[string]bool{}
	if u, err := m.app.currentUser(); err != nil {
		return err
	} else if u != nil {
		if owned, err = m.app.catalog.PurchasedIDs(u.ID); err != nil {
			return err
		}
	}

	currency := m.app.settings.Get().Currency
	now := time.Now()
	items := make([]list.Item, 0, len(books))
	for _, b := range books {
		parts := []string{b.Author, content.Kind(b.Source()), m.tr.Money(b.PriceAt(now), currency)}
		if b.OnSale(now) {
			parts = append(parts, m.tr.T("on_sale", nil))
		}
		if owned[b.ID] {
			parts = append(parts, m.tr.T("purchased", nil))
		}
		items = append(items, bookItem{book: b, desc: strings.Join(parts, " · ")})
	}
	m.books.SetItems(items)
	m.books.Title = m.tr.T("catalog_title", nil)
	return nil
}

// surface maps the terminal to PDF render units: one unit per column and two
// per row, matching half-block cells.
func (m *model) surface() surface {
	return surface{width: float64(m.width), height: float64(m.height * 2), cellW: 1, cellH: 2}
}

func (m *model) openBook(id string, preview, fresh bool) tea.Cmd {
	s, err := m.app.newSession(id, preview, fresh, m.surface())
	if err != nil {
		m.notice = err.Error()
		return nil
	}
	m.closeBook()
	m.sess = s
	m.screen = screenReader
	m.notice = ""
	return m.busy(s.Init())
}

func (m *model) closeBook() {
	if m.sess != nil {
		m.sess.Close()
		m.sess = nil
	}
	m.form = nil
	m.frame = pdfFrame{}
	m.screen = screenCatalog
}

// busy starts the spinner alongside cmd while the session is working.
func (m *model) busy(cmd tea.Cmd) tea.Cmd {
	if m.sess == nil || m.spinning || !(m.sess.Loading() || m.sess.Analyzing()) {
		return cmd
	}
	m.spinning = true
	return tea.Batch(cmd, m.spinner.Tick)
}

func (m *model) toggleTheme() {
	next := "light"
	if m.app.settings.Get().Theme == "light" {
		next = "dark"
	}
	if err := m.app.settings.Set("theme", next); err != nil {
		m.notice = err.Error()
	}
}

func (m *model) Init() tea.Cmd {
	cmd := m.pending
	m.pending = nil
	return cmd
}

func (m *model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.books.SetSize(msg.Width, msg.Height)
		m.bar.Width = max(10, msg.Width-4)
		if m.sess != nil {
			return m, m.sess.Resize(m.app.viewport(m.surface()))
		}
		return m, nil

	case spinner.TickMsg:
		if m.sess == nil || !(m.sess.Loading() || m.sess.Analyzing()) {
			m.spinning = false
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			m.quit()
			return m, tea.Quit
		}
		if m.screen == screenCatalog {
			return m.updateCatalog(msg)
		}
		return m.updateReader(msg)
	}

	if m.screen == screenCatalog {
		var cmd tea.Cmd
		m.books, cmd = m.books.Update(msg)
		return m, cmd
	}
	if m.form != nil {
		var c1, c2 tea.Cmd
		m.form.email, c1 = m.form.email.Update(msg)
		m.form.password, c2 = m.form.password.Update(msg)
		return m, tea.Batch(c1, c2, m.sess.Update(msg))
	}
	return m, m.busy(m.sess.Update(msg))
}

func (m *model) quit() {
	m.quitting = true
	m.closeBook()
}

func (m *model) updateCatalog(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.books.FilterState() != list.Filtering {
		switch msg.String() {
		case "q":
			m.quit()
			return m, tea.Quit
		case "enter", "p":
			if it, ok := m.books.SelectedItem().(bookItem); ok {
				return m, m.openBook(it.book.ID, msg.String() == "p", false)
			}
			return m, nil
		case "t":
			m.toggleTheme()
			return m, nil
		}
	}
	var cmd tea.Cmd
	m.books, cmd = m.books.Update(msg)
	return m, cmd
}

func (m *model) updateReader(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.form != nil {
		return m.updateLogin(msg)
	}

	s := m.sess
	key := msg.String()
	switch key {
	case "q", "esc":
		m.closeBook()
		if err := m.refreshCatalog(); err != nil {
			m.notice = err.Error()
		}
		return m, nil
	case "t":
		m.toggleTheme()
		return m, nil
	}

	switch s.Phase() {
	case session.PhaseDenied:
		switch key {
		case "l":
			if s.Decision().NeedsLogin {
				m.form = newLoginForm(m.tr)
				return m, m.form.email.Focus()
			}
		case "b":
			return m, m.buy()
		case "p":
			return m, m.busy(s.SetPreview(true))
		}
		return m, nil
	case session.PhaseReady:
	default:
		return m, nil
	}

	if s.Kind() == session.KindAudio {
		switch key {
		case " ":
			s.TogglePlay()
		case "left", "h":
			s.Skip(-audio.SkipSeconds)
		case "right", "l":
			s.Skip(audio.SkipSeconds)
		case "r":
			s.CycleRate()
		case "+", "=", "up":
			s.AdjustVolume(0.1)
		case "-", "down":
			s.AdjustVolume(-0.1)
		case "0", "1", "2", "3", "4", "5", "6", "7", "8", "9":
			// Digits jump to that tenth of the book.
			if d := s.AudioStatus().Duration; d > 0 {
				s.Seek(d * float64(key[0]-'0') / 10)
			}
		}
		return m, nil
	}

	switch key {
	case "right", "l", "pgdown", " ", "n":
		return m, s.NextPage()
	case "left", "h", "pgup", "N":
		return m, s.PrevPage()
	case "home", "g":
		return m, s.GoToPage(1)
	}
	return m, nil
}

func (m *model) updateLogin(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	f := m.form
	switch msg.String() {
	case "esc":
		m.form = nil
		return m, nil
	case "tab", "shift+tab", "up", "down":
		if f.email.Focused() {
			f.email.Blur()
			return m, f.password.Focus()
		}
		f.password.Blur()
		return m, f.email.Focus()
	case "enter":
		if f.email.Focused() {
			f.email.Blur()
			return m, f.password.Focus()
		}
		return m, m.submitLogin()
	}

	var cmd tea.Cmd
	if f.email.Focused() {
		f.email, cmd = f.email.Update(msg)
	} else {
		f.password, cmd = f.password.Update(msg)
	}
	return m, cmd
}

func (m *model) submitLogin() tea.Cmd {
	f := m.form
	if _, err := m.app.login(f.email.Value(), f.password.Value()); err != nil {
		f.err = m.tr.T("login_failed", map[string]any{"Reason": err.Error()})
		f.password.SetValue("")
		return nil
	}
	m.form = nil
	return m.refreshViewer()
}

func (m *model) buy() tea.Cmd {
	u, err := m.app.currentUser()
	if err != nil || u == nil {
		return nil
	}
	if _, err := m.app.catalog.Purchase(u.ID, m.sess.Book().ID); err != nil {
		m.notice = err.Error()
		return nil
	}
	return m.refreshViewer()
}

func (m *model) refreshViewer() tea.Cmd {
	v, err := m.app.viewer(m.sess.Book().ID)
	if err != nil {
		m.notice = err.Error()
		return nil
	}
	return m.busy(m.sess.SetViewer(v))
}

func (m *model) View() string {
	if m.quitting {
		return ""
	}
	if m.screen == screenCatalog {
		v := m.books.View()
		if m.notice != "" {
			v += "\n" + m.st.err.Render(m.notice)
		}
		return v
	}

	s := m.sess
	header := m.st.title.Render(s.Book().Title)
	if a := s.Book().Author; a != "" {
		header += m.st.muted.Render(a)
	}
	if s.Preview() {
		header += " " + m.st.banner.Render(m.tr.T("preview_banner", map[string]any{"Pages": m.app.cfg.Reader.PreviewPages}))
	}

	var body string
	switch s.Phase() {
	case session.PhaseDenied:
		body = m.deniedView()
	case session.PhaseLoading, session.PhaseIdle:
		body = m.spinner.View() + " " + m.tr.T("loading", nil)
	case session.PhaseError:
		body = m.st.err.Render(m.tr.T("load_failed_title", nil))
		if fe := s.Err(); fe != nil {
			body += "\n\n" + m.st.text.Render(fe.Error())
		}
		body += "\n\n" + m.st.muted.Render("q "+m.tr.T("back_to_catalog", nil))
	default:
		body = m.contentView()
	}

	footer := m.footerView()
	if m.notice != "" {
		footer = m.st.err.Render(m.notice) + "\n" + footer
	}

	avail := m.height - lipgloss.Height(header) - lipgloss.Height(footer)
	body = lipgloss.NewStyle().Height(max(1, avail)).MaxHeight(max(1, avail)).Render(body)
	return lipgloss.JoinVertical(lipgloss.Left, header, body, footer)
}

func (m *model) deniedView() string {
	d := m.sess.Decision()
	lines := []string{
		m.st.accent.Render(m.tr.T("access_denied_title", nil)),
		"",
		m.st.text.Render(m.tr.T("access_denied_body", nil)),
	}
	if d.NeedsLogin {
		lines = append(lines, m.st.text.Render(m.tr.T("access_denied_login", nil)))
	}
	if m.form != nil {
		lines = append(lines, "", m.form.email.View(), m.form.password.View())
		if m.form.err != "" {
			lines = append(lines, m.st.err.Render(m.form.err))
		}
	} else {
		hint := "p preview · q " + m.tr.T("back_to_catalog", nil)
		if d.NeedsLogin {
			hint = "l " + m.tr.T("login", nil) + " · " + hint
		} else {
			hint = "b buy · " + hint
		}
		lines = append(lines, "", m.st.muted.Render(hint))
	}
	return m.st.denied.Render(strings.Join(lines, "\n"))
}

func (m *model) contentView() string {
	s := m.sess
	switch s.Kind() {
	case session.KindText:
		width := min(m.st.textCol, max(20, m.width-4))
		para := m.st.text.Width(width).PaddingLeft(2)
		var parts []string
		for _, p := range s.CurrentPage() {
			parts = append(parts, para.Render(p))
		}
		return strings.Join(parts, "\n\n")

	case session.KindPDF:
		bmp := s.Bitmap()
		if bmp == nil {
			return m.spinner.View() + " " + m.tr.T("loading", nil)
		}
		rc := m.app.cfg.Reader
		cols := max(1, m.width-rc.ChromePaddingX)
		rows := max(1, m.height-rc.ChromePaddingY)
		if m.frame.bmp != bmp || m.frame.cols != cols || m.frame.rows != rows {
			m.frame = pdfFrame{bmp: bmp, cols: cols, rows: rows, out: termimg.Render(bmp.Image, cols, rows)}
		}
		return m.frame.out

	case session.KindAudio:
		st := s.AudioStatus()
		state := m.tr.T("playing", nil)
		if st.Paused {
			state = m.tr.T("paused", nil)
		}
		pct := 0.0
		if st.Duration > 0 {
			pct = st.Current / st.Duration
		}
		return strings.Join([]string{
			m.st.accent.Render(state) + "  " + clock(st.Current) + " / " + clock(st.Duration),
			"",
			m.bar.ViewAs(pct),
			"",
			m.st.muted.Render(m.tr.T("rate", map[string]any{"Rate": st.Rate}) + " · " +
				m.tr.T("volume", map[string]any{"Percent": int(st.Volume*100 + 0.5)})),
		}, "\n")
	}
	return ""
}

func (m *model) footerView() string {
	s := m.sess
	var parts []string
	if s.Phase() == session.PhaseReady {
		switch s.Kind() {
		case session.KindText, session.KindPDF:
			current, total := s.Page()
			parts = append(parts,
				m.tr.T("page_of", map[string]any{"Page": current, "Total": total}),
				fmt.Sprintf("%d%%", s.Percent()),
				m.tr.N("minutes_left", s.RemainingMinutes()),
			)
			if s.Analyzing() {
				parts = append(parts, m.spinner.View()+" "+m.tr.T("analyzing", nil))
			} else if mt := s.Metrics(); mt != nil {
				parts = append(parts,
					m.tr.T("estimated_pages", map[string]any{"Pages": s.EstimatedPages()}),
					m.tr.T("difficulty", map[string]any{"Level": mt.Difficulty}),
				)
			}
		case session.KindAudio:
			parts = append(parts, fmt.Sprintf("%d%%", s.Percent()))
		}
	}
	help := m.tr.T("help_reader", nil)
	if s.Kind() == session.KindAudio {
		help = m.tr.T("help_audio", nil)
	}
	status := m.st.muted.Render(strings.Join(parts, " | "))
	return lipgloss.JoinVertical(lipgloss.Left, status, m.st.muted.Italic(true).Render(help))
}

// runUI opens the terminal front end, at the catalog or straight into a book.
func runUI(a *app, bookID string, preview, fresh bool) error {
	m, err := newModel(a)
	if err != nil {
		return err
	}
	if bookID != "" {
		m.pending = m.openBook(bookID, preview, fresh)
	}
	_, err = tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(a.ctx)).Run()
	m.closeBook()
	return err
}
