package i18n

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"golang.org/x/text/language"
)

func TestSupported(t *testing.T) {
	tags := Supported()
	assert.Contains(t, tags, language.English)
	assert.Contains(t, tags, language.Spanish)
}

func TestTranslate(t *testing.T) {
	en := New("en")
	es := New("es")

	assert.Equal(t, "Page 2 of 5", en.T("page_of", map[string]any{"Page": 2, "Total": 5}))
	assert.Equal(t, "Página 2 de 5", es.T("page_of", map[string]any{"Page": 2, "Total": 5}))
	assert.Equal(t, "Access denied", en.T("access_denied_title", nil))
	assert.Equal(t, "no_such_message", en.T("no_such_message", nil))
}

func TestPlural(t *testing.T) {
	en := New("en")
	assert.Equal(t, "1 minute left", en.N("minutes_left", 1))
	assert.Equal(t, "6 minutes left", en.N("minutes_left", 6))
	assert.Equal(t, "Quedan 4 minutos", New("es").N("minutes_left", 4))
}

func TestFallbackLanguage(t *testing.T) {
	fr := New("fr")
	assert.Equal(t, "Loading book...", fr.T("loading", nil))

	bad := New("not a language!")
	assert.Equal(t, language.English, bad.Language())
}

func TestMoney(t *testing.T) {
	en := New("en")
	assert.Contains(t, en.Money(2.99, "USD"), "2.99")
	assert.Contains(t, en.Money(2.99, "USD"), "$")
	assert.Contains(t, en.Money(5, "EUR"), "€")
	assert.Equal(t, "1.50 ZZZ1", en.Money(1.5, "ZZZ1"))
}
