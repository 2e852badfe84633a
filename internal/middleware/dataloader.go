package middleware

import (
	"context"
	"net/http"

	"github.com/gridworks/catalogbridge/internal/productloader"
	"github.com/gridworks/catalogbridge/internal/repository"
)

type ctxKey string

const productLoaderKey ctxKey = "productLoader"

// DataLoaderMiddleware attaches a request-scoped product loader to the
// context so projection can batch parent lookups.
func DataLoaderMiddleware(repo repository.ProductRepository) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			loader := productloader.NewProductLoader(repo)

			ctx := context.WithValue(r.Context(), productLoaderKey, loader)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// ProductLoaderFromContext retrieves the request-scoped loader.
func ProductLoaderFromContext(ctx context.Context) *productloader.ProductLoader {
	if l, ok := ctx.Value(productLoaderKey).(*productloader.ProductLoader); ok {
		return l
	}
	return nil
}
