package content

import (
	"bytes"
	"sort"
	"strings"

	"github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/vfs"
	"github.com/pkg/errors"
	"github.com/segmentio/encoding/json"
)

// Key schema:
//   - content/<bookId> -> JSON array of paragraphs
const keyPrefix = "content/"

// ErrNotFound is returned when a book has no offline copy.
var ErrNotFound = errors.New("content not found")

// Store is the offline copy of downloaded book text, backed by pebble.
type Store struct {
	db *pebble.DB
}

// OpenStore opens (or creates) the store in dir.
func OpenStore(dir string) (*Store, error) {
	return openStore(dir, &pebble.Options{})
}

// OpenMemStore opens a store that lives only in memory.
func OpenMemStore() (*Store, error) {
	return openStore("", &pebble.Options{FS: vfs.NewMem()})
}

func openStore(dir string, opts *pebble.Options) (*Store, error) {
	db, err := pebble.Open(dir, opts)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open content store")
	}
	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func bookKey(bookID string) []byte {
	return []byte(keyPrefix + bookID)
}

// Get returns the paragraphs stored for bookID, or ErrNotFound.
func (s *Store) Get(bookID string) ([]string, error) {
	value, closer, err := s.db.Get(bookKey(bookID))
	if err == pebble.ErrNotFound {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read content for %s", bookID)
	}
	defer closer.Close()

	var paragraphs []string
	if err := json.Unmarshal(value, &paragraphs); err != nil {
		return nil, errors.Wrapf(err, "corrupt content for %s", bookID)
	}
	return paragraphs, nil
}

// Put stores paragraphs for bookID, replacing any previous copy.
func (s *Store) Put(bookID string, paragraphs []string) error {
	if strings.TrimSpace(bookID) == "" {
		return errors.New("book id is required")
	}
	if paragraphs == nil {
		paragraphs = []string{}
	}
	data, err := json.Marshal(paragraphs)
	if err != nil {
		return errors.WithStack(err)
	}
	return errors.WithStack(s.db.Set(bookKey(bookID), data, pebble.Sync))
}

// Delete removes the offline copy of bookID. Deleting a missing book is not
// an error.
func (s *Store) Delete(bookID string) error {
	return errors.WithStack(s.db.Delete(bookKey(bookID), pebble.Sync))
}

// ListKeys returns the ids of all stored books in sorted order.
func (s *Store) ListKeys() ([]string, error) {
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: []byte(keyPrefix),
		UpperBound: prefixEnd([]byte(keyPrefix)),
	})
	if err != nil {
		return nil, errors.WithStack(err)
	}
	defer iter.Close()

	ids := []string{}
	for iter.First(); iter.Valid(); iter.Next() {
		ids = append(ids, string(bytes.TrimPrefix(iter.Key(), []byte(keyPrefix))))
	}
	if err := iter.Error(); err != nil {
		return nil, errors.WithStack(err)
	}
	sort.Strings(ids)
	return ids, nil
}

// prefixEnd returns the smallest key greater than every key with prefix.
func prefixEnd(prefix []byte) []byte {
	end := append([]byte{}, prefix...)
	for i := len(end) - 1; i >= 0; i-- {
		end[i]++
		if end[i] != 0 {
			return end[:i+1]
		}
	}
	return nil
}
