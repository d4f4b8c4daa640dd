// Package content resolves where a book's content comes from and loads it.
package content

// Source is the content kind of a book, decided once from its metadata.
type Source interface {
	isSource()
}

// TextSource is paragraph text looked up by book id.
type TextSource struct {
	BookID string
}

// PDFSource is a PDF fetched over HTTP(S).
type PDFSource struct {
	URL string
}

// AudioSource is a streamable media URL. Loading is left to the player.
type AudioSource struct {
	URL string
	// Duration is the catalog duration in seconds, used when the stream
	// cannot be probed.
	Duration float64
}

func (TextSource) isSource()  {}
func (PDFSource) isSource()   {}
func (AudioSource) isSource() {}

// Kind names a source for logs and the UI.
func Kind(src Source) string {
	switch src.(type) {
	case TextSource:
		return "text"
	case PDFSource:
		return "pdf"
	case AudioSource:
		return "audio"
	default:
		return "unknown"
	}
}
