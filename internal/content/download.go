package content

import (
	"context"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

// DefaultDownloadWorkers bounds concurrent writes during Download.
const DefaultDownloadWorkers = 4

// Download copies the online content of each book in ids into the offline
// store and returns how many were copied. Books with no online content are
// skipped. The first write error cancels the rest.
func Download(ctx context.Context, online *Online, store *Store, ids []string, workers int) (int, error) {
	if store == nil {
		return 0, errors.New("no offline store")
	}
	if workers < 1 {
		workers = DefaultDownloadWorkers
	}

	copied := make([]bool, len(ids))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, id := range ids {
		paragraphs, ok := online.Get(id)
		if !ok {
			continue
		}
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := store.Put(id, paragraphs); err != nil {
				return errors.Wrapf(err, "failed to store %s", id)
			}
			copied[i] = true
			return nil
		})
	}
	err := g.Wait()

	n := 0
	for _, ok := range copied {
		if ok {
			n++
		}
	}
	return n, err
}
