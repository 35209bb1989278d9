package source

import (
	"context"
	"fmt"
)

// Source yields content identifiers in a stable order.
type Source interface {
	// Name returns a stable label for logs and run history.
	Name() string

	// FetchBatch returns identifiers starting at cursor.
	// Parameters:
	//   - ctx: context for cancellation.
	//   - cursor: opaque position, empty for the beginning.
	//   - limit: maximum number of identifiers to return.
	// Returns:
	//   - ids: identifiers in source order.
	//   - nextCursor: cursor for the next call, empty when exhausted.
	//   - err: non-nil if the source cannot be read.
	FetchBatch(ctx context.Context, cursor string, limit int) (ids []string, nextCursor string, err error)
}

const collectPage = 500

// Collect drains src into memory, stopping after max identifiers when max > 0.
func Collect(ctx context.Context, src Source, max int) ([]string, error) {
	var (
		all    []string
		cursor string
	)
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		limit := collectPage
		if max > 0 && max-len(all) < limit {
			limit = max - len(all)
		}
		ids, next, err := src.FetchBatch(ctx, cursor, limit)
		if err != nil {
			return nil, fmt.Errorf("fetch from %s: %w", src.Name(), err)
		}
		all = append(all, ids...)
		if max > 0 && len(all) >= max {
			return all[:max], nil
		}
		if next == "" {
			return all, nil
		}
		cursor = next
	}
}
