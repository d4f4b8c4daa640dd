// Package config loads folio's configuration and the per-device settings.
package config

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/metcalfc/folio/internal/state"
	"github.com/pkg/errors"
)

const (
	AppName   = "folio"
	EnvPrefix = "FOLIO_"
)

// Config is the process configuration.
type Config struct {
	Namespace string `koanf:"namespace" default:"folio" validate:"required,excludesall=/"`
	DataDir   string `koanf:"data_dir"`
	StateDir  string `koanf:"state_dir"`

	Log     LogConfig     `koanf:"log"`
	Reader  ReaderConfig  `koanf:"reader"`
	Metrics MetricsConfig `koanf:"metrics"`
}

type LogConfig struct {
	Level  string `koanf:"level" default:"info" validate:"oneof=trace debug info warn error"`
	Format string `koanf:"format" default:"console" validate:"oneof=console json"`
	// File defaults to folio.log in the state directory.
	File string `koanf:"file"`
}

type ReaderConfig struct {
	PageSize     int `koanf:"page_size" default:"6" validate:"min=1"`
	PreviewPages int `koanf:"preview_pages" default:"2" validate:"min=1"`

	MaxPDFScale      float64 `koanf:"max_pdf_scale" default:"3" validate:"gt=0"`
	DevicePixelRatio float64 `koanf:"device_pixel_ratio" default:"1" validate:"gt=0"`
	// Padding around the PDF page, in terminal cells, for the header and
	// footer.
	ChromePaddingX int `koanf:"chrome_padding_x" default:"2" validate:"min=0"`
	ChromePaddingY int `koanf:"chrome_padding_y" default:"4" validate:"min=0"`
}

type MetricsConfig struct {
	Enabled  bool   `koanf:"enabled"`
	Project  string `koanf:"project" validate:"required_if=Enabled true"`
	Location string `koanf:"location" default:"us-central1"`
	Model    string `koanf:"model" default:"gemini-2.0-flash-001"`
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		for _, tag := range []string{"koanf", "yaml"} {
			if name := strings.SplitN(fld.Tag.Get(tag), ",", 2)[0]; name != "" && name != "-" {
				return name
			}
		}
		return fld.Name
	})
	return v
}

// DefaultPath returns the config file location under XDG_CONFIG_HOME.
func DefaultPath() string {
	return filepath.Join(xdgDir("XDG_CONFIG_HOME", ".config"), AppName, "config.yaml")
}

func xdgDir(envVar, fallback string) string {
	if dir := os.Getenv(envVar); dir != "" {
		return dir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, fallback)
}

// Load builds the configuration from defaults, the YAML file at path (the
// default path is optional, an explicit one is not), a .env file and
// FOLIO_ environment variables. Nested keys use a double underscore:
// FOLIO_READER__PAGE_SIZE=8.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, errors.Wrap(err, "failed to load .env")
	}

	cfg := &Config{}
	if err := defaults.Set(cfg); err != nil {
		return nil, errors.WithStack(err)
	}

	k := koanf.New(".")

	explicit := path != ""
	if !explicit {
		path = DefaultPath()
	}
	if _, err := os.Stat(path); err == nil || explicit {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, errors.Wrapf(err, "failed to read config %s", path)
		}
	}

	err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		s = strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
		return strings.ReplaceAll(s, "__", ".")
	}), nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read environment")
	}

	if err := k.UnmarshalWithConf("", cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, errors.Wrap(err, "failed to decode config")
	}

	if cfg.DataDir == "" {
		cfg.DataDir = filepath.Join(xdgDir("XDG_DATA_HOME", filepath.Join(".local", "share")), AppName)
	}
	if cfg.StateDir == "" {
		cfg.StateDir = state.DefaultDir(AppName)
	}
	if cfg.Log.File == "" {
		cfg.Log.File = filepath.Join(cfg.StateDir, AppName+".log")
	}

	if err := validate.Struct(cfg); err != nil {
		return nil, errors.Wrap(err, "invalid configuration")
	}
	return cfg, nil
}

// CatalogPath is the sqlite database holding books, users and purchases.
func (c *Config) CatalogPath() string {
	return filepath.Join(c.DataDir, "catalog.db")
}

// ContentDir is the offline content store.
func (c *Config) ContentDir() string {
	return filepath.Join(c.DataDir, "content")
}
