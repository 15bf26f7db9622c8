package merge

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/roach88/repsync/internal/model"
	"github.com/roach88/repsync/internal/remote"
)

// Fetcher loads the current curated entries of one table.
type Fetcher[T any] func(ctx context.Context) ([]T, error)

// Refresh fetches the curated stream and installs it in c.
func Refresh[T model.Entity](ctx context.Context, fetch Fetcher[T], c *Catalog[T]) error {
	items, err := fetch(ctx)
	if err != nil {
		return fmt.Errorf("refresh catalog: %w", err)
	}
	c.SetOfficial(items)
	return nil
}

// Follow re-fetches the curated stream of table into c on every change
// notification. Any insert, update or delete triggers a full re-fetch.
// Fetch failures are logged and leave the previous stream in place.
func Follow[T model.Entity](
	ctx context.Context,
	sub remote.Subscriber,
	table model.Table,
	fetch Fetcher[T],
	c *Catalog[T],
	logger *slog.Logger,
) (cancel func(), err error) {
	if logger == nil {
		logger = slog.Default()
	}
	cancel, err = sub.Subscribe(ctx, table, func(change remote.Change) {
		logger.Debug("curated content changed",
			"table", change.Table,
			"kind", change.Kind,
			"id", change.ID,
		)
		if err := Refresh(ctx, fetch, c); err != nil {
			logger.Warn("catalog refresh after change failed",
				"table", table,
				"error", err,
			)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("follow %s: %w", table, err)
	}
	return cancel, nil
}
