package page

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/galihcitta/confras/internal/metrics"
	"github.com/galihcitta/confras/internal/models"
	"github.com/galihcitta/confras/internal/repository"
)

// CollectionReader is the part of repository.Store the fetcher needs.
type CollectionReader interface {
	Collection(ctx context.Context, collection models.Collection, tenantID models.ID, q repository.Query) ([]json.RawMessage, error)
}

// Fetch returns the records of a tenant-scoped collection decoded as T.
// It never fails: a backend error or an undecodable record yields an empty
// list, so a page with missing optional data still renders.
func Fetch[T any](ctx context.Context, reader CollectionReader, tenantID models.ID, collection models.Collection, q repository.Query, logger *zap.Logger) []T {
	items, err := fetch[T](ctx, reader, tenantID, collection, q)
	if err != nil {
		logger.Warn("Collection unavailable, using empty list",
			zap.String("collection", string(collection)),
			zap.String("tenant_id", tenantID.String()),
			zap.Error(err))
		metrics.IncrementCollectionFallbacks(string(collection))
		return []T{}
	}
	return items
}

func fetch[T any](ctx context.Context, reader CollectionReader, tenantID models.ID, collection models.Collection, q repository.Query) ([]T, error) {
	raw, err := reader.Collection(ctx, collection, tenantID, q)
	if err != nil {
		return nil, err
	}

	items := make([]T, 0, len(raw))
	for i, record := range raw {
		var item T
		if err := json.Unmarshal(record, &item); err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
		items = append(items, item)
	}
	return items, nil
}
