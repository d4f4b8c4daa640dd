package config

import (
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/creasty/defaults"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

const settingsFileName = "settings.yaml"

// Themes and languages the front ends know how to render.
var (
	Themes    = []string{"dark", "light"}
	Languages = []string{"en", "es"}
)

// Preferences are the device-wide display settings.
type Preferences struct {
	Theme    string `yaml:"theme" default:"dark" validate:"oneof=dark light"`
	Language string `yaml:"language" default:"en" validate:"oneof=en es"`
	Currency string `yaml:"currency" default:"USD" validate:"iso4217"`
}

// Settings holds Preferences for the whole process. It is created once at
// start-up and passed to every front end; Update is the only way to change it.
type Settings struct {
	mu    sync.RWMutex
	path  string
	prefs Preferences
	subs  []func(Preferences)
}

// LoadSettings reads settings.yaml from dir. A missing file gives the
// defaults; an invalid one is reset to them.
func LoadSettings(dir string) (*Settings, error) {
	s := &Settings{path: filepath.Join(dir, settingsFileName)}
	if err := defaults.Set(&s.prefs); err != nil {
		return nil, errors.WithStack(err)
	}

	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return s, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to read settings")
	}

	var saved Preferences
	if err := yaml.Unmarshal(data, &saved); err != nil {
		return s, nil
	}
	if err := defaults.Set(&saved); err != nil {
		return nil, errors.WithStack(err)
	}
	if validate.Struct(&saved) == nil {
		s.prefs = saved
	}
	return s, nil
}

// Get returns a copy of the current preferences.
func (s *Settings) Get() Preferences {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.prefs
}

// Update applies fn, validates the result, persists it and notifies
// subscribers. On error nothing changes.
func (s *Settings) Update(fn func(p *Preferences)) error {
	s.mu.Lock()
	next := s.prefs
	fn(&next)
	next.Currency = strings.ToUpper(next.Currency)
	if err := validate.Struct(&next); err != nil {
		s.mu.Unlock()
		return errors.Wrap(err, "invalid preference")
	}
	if err := s.save(next); err != nil {
		s.mu.Unlock()
		return err
	}
	s.prefs = next
	subs := append([]func(Preferences){}, s.subs...)
	s.mu.Unlock()

	for _, fn := range subs {
		fn(next)
	}
	return nil
}

// Set changes one preference by name: theme, language or currency.
func (s *Settings) Set(key, value string) error {
	value = strings.TrimSpace(value)
	switch strings.ToLower(key) {
	case "theme":
		return s.Update(func(p *Preferences) { p.Theme = strings.ToLower(value) })
	case "language", "lang":
		return s.Update(func(p *Preferences) { p.Language = strings.ToLower(value) })
	case "currency":
		return s.Update(func(p *Preferences) { p.Currency = value })
	default:
		return errors.Errorf("unknown preference %q", key)
	}
}

// Subscribe registers fn to run after every successful Update.
func (s *Settings) Subscribe(fn func(Preferences)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subs = append(s.subs, fn)
}

func (s *Settings) save(p Preferences) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return errors.WithStack(err)
	}
	data, err := yaml.Marshal(p)
	if err != nil {
		return errors.WithStack(err)
	}
	return errors.WithStack(os.WriteFile(s.path, data, 0644))
}
