// Package catalog holds books, local accounts and purchases in sqlite.
package catalog

import (
	"time"

	"github.com/metcalfc/folio/internal/content"
)

// Book is immutable from the reader's point of view.
type Book struct {
	ID       string `gorm:"primaryKey" yaml:"id"`
	Title    string `gorm:"not null" yaml:"title"`
	AuthorID string `yaml:"author_id"`
	Author   string `yaml:"author"`
	Category string `yaml:"category"`

	Price     float64    `yaml:"price"`
	SalePrice *float64   `yaml:"sale_price"`
	SaleStart *time.Time `yaml:"sale_start"`
	SaleEnd   *time.Time `yaml:"sale_end"`

	// Content pointers. At most one of PDFURL and AudioURL is expected; the
	// audio URL wins when both are set.
	TextKey  string `yaml:"text_key"`
	PDFURL   string `gorm:"column:pdf_url" yaml:"pdf_url"`
	AudioURL string `yaml:"audio_url"`

	Pages           int     `yaml:"pages"`
	DurationSeconds float64 `yaml:"duration_seconds"`
	Rating          float64 `yaml:"rating"`
	Sales           int     `yaml:"sales"`
	Purchases       int     `yaml:"purchases"`

	CreatedAt time.Time `yaml:"-"`
	UpdatedAt time.Time `yaml:"-"`
}

// Source returns the content variant for the book.
func (b *Book) Source() content.Source {
	switch {
	case b.AudioURL != "":
		return content.AudioSource{URL: b.AudioURL, Duration: b.DurationSeconds}
	case b.PDFURL != "":
		return content.PDFSource{URL: b.PDFURL}
	case b.TextKey != "":
		return content.TextSource{BookID: b.TextKey}
	default:
		return content.TextSource{BookID: b.ID}
	}
}

// OnSale reports whether the sale price applies at now. The window is
// [SaleStart, SaleEnd); a missing bound is open.
func (b *Book) OnSale(now time.Time) bool {
	if b.SalePrice == nil {
		return false
	}
	if b.SaleStart != nil && now.Before(*b.SaleStart) {
		return false
	}
	if b.SaleEnd != nil && !now.Before(*b.SaleEnd) {
		return false
	}
	return true
}

// PriceAt returns the price charged at now.
func (b *Book) PriceAt(now time.Time) float64 {
	if b.OnSale(now) {
		return *b.SalePrice
	}
	return b.Price
}

// User is a local account.
type User struct {
	ID           string `gorm:"primaryKey"`
	Email        string `gorm:"uniqueIndex;not null"`
	Name         string `gorm:"not null"`
	PasswordHash string `gorm:"not null"`
	CreatedAt    time.Time
}

// Purchase records that a user owns a book.
type Purchase struct {
	ID        string `gorm:"primaryKey"`
	UserID    string `gorm:"uniqueIndex:idx_purchase_user_book;not null"`
	BookID    string `gorm:"uniqueIndex:idx_purchase_user_book;not null"`
	Price     float64
	CreatedAt time.Time
}
