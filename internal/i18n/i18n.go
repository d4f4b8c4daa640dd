// Package i18n translates UI strings and formats prices.
package i18n

import (
	"embed"
	"fmt"
	"path"

	"github.com/nicksnyder/go-i18n/v2/i18n"
	"golang.org/x/text/currency"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"gopkg.in/yaml.v3"
)

//go:embed locales/*.yaml
var locales embed.FS

var bundle = newBundle()

func newBundle() *i18n.Bundle {
	b := i18n.NewBundle(language.English)
	b.RegisterUnmarshalFunc("yaml", yaml.Unmarshal)

	entries, err := locales.ReadDir("locales")
	if err != nil {
		panic(err)
	}
	for _, e := range entries {
		data, err := locales.ReadFile(path.Join("locales", e.Name()))
		if err != nil {
			panic(err)
		}
		b.MustParseMessageFileBytes(data, e.Name())
	}
	return b
}

// Supported returns the languages that have a message file.
func Supported() []language.Tag {
	return bundle.LanguageTags()
}

// Translator renders messages in one language.
type Translator struct {
	tag       language.Tag
	localizer *i18n.Localizer
	printer   *message.Printer
}

// New returns a translator for lang, falling back to English.
func New(lang string) *Translator {
	tag, err := language.Parse(lang)
	if err != nil {
		tag = language.English
	}
	return &Translator{
		tag:       tag,
		localizer: i18n.NewLocalizer(bundle, tag.String(), language.English.String()),
		printer:   message.NewPrinter(tag),
	}
}

// Language returns the translator's language tag.
func (t *Translator) Language() language.Tag {
	return t.tag
}

// T translates id. Missing messages render as the id.
func (t *Translator) T(id string, data map[string]any) string {
	s, err := t.localizer.Localize(&i18n.LocalizeConfig{MessageID: id, TemplateData: data})
	if err != nil {
		return id
	}
	return s
}

// N translates a message with plural forms, exposing count as .Count.
func (t *Translator) N(id string, count int) string {
	s, err := t.localizer.Localize(&i18n.LocalizeConfig{
		MessageID:    id,
		PluralCount:  count,
		TemplateData: map[string]any{"Count": count},
	})
	if err != nil {
		return fmt.Sprintf("%s(%d)", id, count)
	}
	return s
}

// Money formats amount in the ISO 4217 currency code.
func (t *Translator) Money(amount float64, code string) string {
	unit, err := currency.ParseISO(code)
	if err != nil {
		return fmt.Sprintf("%.2f %s", amount, code)
	}
	return t.printer.Sprint(currency.Symbol(unit.Amount(amount)))
}
