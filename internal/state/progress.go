package state

import (
	"fmt"
	"strconv"
	"strings"
)

// Storage is the string key/value surface Progress needs. *Store implements it.
type Storage interface {
	GetItem(key string) (string, bool)
	SetItem(key, value string) error
	RemoveItem(key string) error
}

// Progress reads and writes the last reading position of each book. Pages are
// stored as integers, audio positions as float seconds.
type Progress struct {
	storage   Storage
	namespace string
}

// NewProgress scopes progress records to namespace.
func NewProgress(storage Storage, namespace string) *Progress {
	return &Progress{storage: storage, namespace: namespace}
}

// Key returns the storage key for bookID.
func (p *Progress) Key(bookID string) string {
	return fmt.Sprintf("%s-page-progress-%s", p.namespace, bookID)
}

// SavePage records a page number.
func (p *Progress) SavePage(bookID string, page int) error {
	return p.storage.SetItem(p.Key(bookID), strconv.Itoa(page))
}

// SaveTime records an elapsed audio position in seconds.
func (p *Progress) SaveTime(bookID string, seconds float64) error {
	return p.storage.SetItem(p.Key(bookID), strconv.FormatFloat(seconds, 'f', -1, 64))
}

// Page returns the saved page number. Unparseable values count as absent.
func (p *Progress) Page(bookID string) (int, bool) {
	v, ok := p.storage.GetItem(p.Key(bookID))
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		// An audio timestamp for a book that is now text still means "somewhere".
		f, ferr := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if ferr != nil {
			return 0, false
		}
		n = int(f)
	}
	return n, true
}

// Time returns the saved audio position.
func (p *Progress) Time(bookID string) (float64, bool) {
	v, ok := p.storage.GetItem(p.Key(bookID))
	if !ok {
		return 0, false
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

// Clear removes the record, for library removal and for reading afresh.
// Reading never clears it.
func (p *Progress) Clear(bookID string) error {
	return p.storage.RemoveItem(p.Key(bookID))
}

// CurrentUser tracks the signed-in account id on this device.
type CurrentUser struct {
	storage Storage
	key     string
}

// NewCurrentUser scopes the signed-in user record to namespace.
func NewCurrentUser(storage Storage, namespace string) *CurrentUser {
	return &CurrentUser{storage: storage, key: namespace + "-current-user"}
}

// Get returns the signed-in user id, if any.
func (c *CurrentUser) Get() (string, bool) {
	v, ok := c.storage.GetItem(c.key)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}

// Set records userID as signed in.
func (c *CurrentUser) Set(userID string) error {
	return c.storage.SetItem(c.key, userID)
}

// Clear signs the user out.
func (c *CurrentUser) Clear() error {
	return c.storage.RemoveItem(c.key)
}
