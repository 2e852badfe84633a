package productloader

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/graph-gophers/dataloader"

	"github.com/gridworks/catalogbridge/internal/domain"
	"github.com/gridworks/catalogbridge/internal/repository"
)

// ProductLoader batches individual product lookups into one repository
// call. Used during projection to load variation parents for a whole page
// at once.
type ProductLoader struct {
	Loader *dataloader.Loader
}

func NewProductLoader(repo repository.ProductRepository) *ProductLoader {
	batchFn := func(ctx context.Context, keys dataloader.Keys) []*dataloader.Result {
		ids := make([]int64, len(keys))
		for i, k := range keys {
			id, err := strconv.ParseInt(k.String(), 10, 64)
			if err != nil {
				return []*dataloader.Result{{Error: fmt.Errorf("invalid product id: %w", err)}}
			}
			ids[i] = id
		}

		products, err := repo.GetByIDs(ctx, ids)
		if err != nil {
			results := make([]*dataloader.Result, len(keys))
			for i := range results {
				results[i] = &dataloader.Result{Error: err}
			}
			return results
		}

		productMap := make(map[int64]domain.Product, len(products))
		for _, p := range products {
			productMap[p.ID] = p
		}

		// Build results in the same order as keys
		results := make([]*dataloader.Result, len(keys))
		for i, id := range ids {
			if p, ok := productMap[id]; ok {
				results[i] = &dataloader.Result{Data: p}
			} else {
				results[i] = &dataloader.Result{Data: nil}
			}
		}

		return results
	}

	loader := dataloader.NewBatchedLoader(batchFn, dataloader.WithWait(5*time.Millisecond))

	return &ProductLoader{Loader: loader}
}

// Fetch loads the given products through the batching loader, returning
// them keyed by id. Missing ids are simply absent from the map.
func (l *ProductLoader) Fetch(ctx context.Context, ids []int64) (map[int64]domain.Product, error) {
	keys := make(dataloader.Keys, len(ids))
	for i, id := range ids {
		keys[i] = dataloader.StringKey(strconv.FormatInt(id, 10))
	}

	thunk := l.Loader.LoadMany(ctx, keys)
	values, errs := thunk()
	if len(errs) > 0 {
		return nil, fmt.Errorf("failed to batch-load products: %w", errs[0])
	}

	out := make(map[int64]domain.Product, len(values))
	for _, value := range values {
		if p, ok := value.(domain.Product); ok {
			out[p.ID] = p
		}
	}
	return out, nil
}
