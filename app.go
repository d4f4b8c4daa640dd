package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/metcalfc/folio/internal/audio"
	"github.com/metcalfc/folio/internal/catalog"
	"github.com/metcalfc/folio/internal/config"
	"github.com/metcalfc/folio/internal/content"
	"github.com/metcalfc/folio/internal/i18n"
	"github.com/metcalfc/folio/internal/logger"
	"github.com/metcalfc/folio/internal/metrics"
	"github.com/metcalfc/folio/internal/pdf"
	"github.com/metcalfc/folio/internal/session"
	"github.com/metcalfc/folio/internal/state"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

// app wires every collaborator a command or front end needs.
type app struct {
	ctx context.Context
	cfg *config.Config
	log zerolog.Logger

	catalog  *catalog.Repository
	store    *content.Store
	online   *content.Online
	progress *state.Progress
	user     *state.CurrentUser
	settings *config.Settings
	metrics  metrics.Estimator
	http     *http.Client

	closers []io.Closer
}

func newApp(ctx context.Context, configPath string) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	log, logFile, err := logger.New(logger.Config{
		Level:  cfg.Log.Level,
		Format: logger.ParseLogFormat(cfg.Log.Format),
		File:   cfg.Log.File,
	})
	if err != nil {
		return nil, err
	}

	a := &app{
		ctx:     logger.WithContext(ctx, log),
		cfg:     cfg,
		log:     log,
		http:    &http.Client{},
		closers: []io.Closer{logFile},
	}
	if err := a.open(); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *app) open() error {
	repo, err := catalog.Open(a.cfg.CatalogPath())
	if err != nil {
		return err
	}
	a.catalog = repo
	a.closers = append(a.closers, repo)
	if err := repo.Seed(); err != nil {
		return err
	}

	store, err := content.OpenStore(a.cfg.ContentDir())
	if err != nil {
		return err
	}
	a.store = store
	a.closers = append(a.closers, store)

	if a.online, err = content.BundledOnline(); err != nil {
		return err
	}

	kv, err := state.NewStore(a.cfg.StateDir)
	if err != nil {
		return err
	}
	a.progress = state.NewProgress(kv, a.cfg.Namespace)
	a.user = state.NewCurrentUser(kv, a.cfg.Namespace)

	if a.settings, err = config.LoadSettings(a.cfg.StateDir); err != nil {
		return err
	}

	a.metrics = metrics.Nop{}
	if m := a.cfg.Metrics; m.Enabled {
		g, err := metrics.NewGenAI(a.ctx, m.Project, m.Location, m.Model)
		if err != nil {
			a.log.Warn().Err(err).Msg("reading metrics disabled")
		} else {
			a.metrics = g
			a.closers = append(a.closers, g)
		}
	}

	a.log.Debug().
		Str("data_dir", a.cfg.DataDir).
		Str("state_dir", a.cfg.StateDir).
		Bool("metrics", a.cfg.Metrics.Enabled).
		Msg("app ready")
	return nil
}

// Close releases everything in reverse order of opening.
func (a *app) Close() error {
	var first error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil && first == nil {
			first = err
		}
	}
	a.closers = nil
	return first
}

func (a *app) translator() *i18n.Translator {
	return i18n.New(a.settings.Get().Language)
}

// currentUser returns the signed-in account, clearing a stale record.
func (a *app) currentUser() (*catalog.User, error) {
	id, ok := a.user.Get()
	if !ok {
		return nil, nil
	}
	u, err := a.catalog.UserByID(id)
	if errors.Is(err, catalog.ErrUserNotFound) {
		a.log.Debug().Str("user", id).Msg("dropping unknown signed-in user")
		return nil, a.user.Clear()
	}
	return u, err
}

// viewer describes the signed-in user in relation to bookID.
func (a *app) viewer(bookID string) (session.Viewer, error) {
	u, err := a.currentUser()
	if err != nil || u == nil {
		return session.Viewer{}, err
	}
	owned, err := a.catalog.HasPurchased(u.ID, bookID)
	if err != nil {
		return session.Viewer{}, err
	}
	return session.Viewer{UserID: u.ID, Purchased: owned}, nil
}

// login authenticates and records the user as signed in.
func (a *app) login(email, password string) (*catalog.User, error) {
	u, err := a.catalog.Authenticate(email, password)
	if err != nil {
		return nil, err
	}
	if err := a.user.Set(u.ID); err != nil {
		return nil, err
	}
	a.log.Info().Str("user", u.ID).Msg("signed in")
	return u, nil
}

func (a *app) loader() *content.Loader {
	return &content.Loader{
		Store:  a.store,
		Online: a.online,
		PDF:    pdf.Opener{Client: a.http},
	}
}

// surface is the drawing area a front end offers the PDF renderer.
type surface struct {
	width, height float64
	// cellW and cellH convert the configured chrome padding, in character
	// cells, to surface units.
	cellW, cellH float64
}

func (a *app) sessionOptions(preview bool, surf surface) session.Options {
	rc := a.cfg.Reader
	return session.Options{
		Preview:      preview,
		PageSize:     rc.PageSize,
		PreviewPages: rc.PreviewPages,
		Render: pdf.Options{
			PadX:     float64(rc.ChromePaddingX) * surf.cellW,
			PadY:     float64(rc.ChromePaddingY) * surf.cellH,
			MaxScale: rc.MaxPDFScale,
		},
		Viewport: a.viewport(surf),
	}
}

func (a *app) viewport(surf surface) pdf.Viewport {
	return pdf.Viewport{
		Width:            surf.width,
		Height:           surf.height,
		DevicePixelRatio: a.cfg.Reader.DevicePixelRatio,
	}
}

func (a *app) deps() session.Deps {
	return session.Deps{
		Loader:   a.loader(),
		Progress: a.progress,
		Metrics:  a.metrics,
		OpenAudio: func(ctx context.Context, src content.AudioSource) audio.Element {
			return audio.OpenStream(ctx, a.http, src)
		},
	}
}

// newSession opens a reading view for bookID. With fresh set the saved
// position is dropped first.
func (a *app) newSession(bookID string, preview, fresh bool, surf surface) (*session.Session, error) {
	b, err := a.catalog.Book(bookID)
	if err != nil {
		return nil, err
	}
	if fresh && !preview {
		if err := a.progress.Clear(b.ID); err != nil {
			return nil, err
		}
	}
	v, err := a.viewer(b.ID)
	if err != nil {
		return nil, err
	}
	return session.New(a.ctx, sessionBook(b), v, a.sessionOptions(preview, surf), a.deps()), nil
}

func sessionBook(b *catalog.Book) session.Book {
	return session.Book{
		ID:     b.ID,
		Title:  b.Title,
		Author: b.Author,
		Source: b.Source(),
	}
}

// clock formats seconds as m:ss or h:mm:ss.
func clock(seconds float64) string {
	d := time.Duration(seconds) * time.Second
	h, m, s := int(d.Hours()), int(d.Minutes())%60, int(d.Seconds())%60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%d:%02d", m, s)
}
