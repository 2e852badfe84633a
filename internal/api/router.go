package api

import (
	"net/http"

	"github.com/gridworks/catalogbridge/internal/catalog"
	"github.com/gridworks/catalogbridge/internal/sheet"
)

// NewRouter mounts every catalog endpoint on a fresh mux.
func NewRouter(catalogService *catalog.Service, sheetService *sheet.Service) *http.ServeMux {
	mux := http.NewServeMux()

	mux.Handle("/catalog/products", NewProductsHandler(catalogService))
	mux.Handle("/catalog/product", NewProductHandler(catalogService))
	mux.Handle("/catalog/save_by_field", NewSaveByFieldHandler(catalogService))
	mux.Handle("/catalog/batch", NewBatchHandler(catalogService))
	mux.Handle("/catalog/meta_attributes_list", NewStoreHandler(catalogService))
	mux.Handle("/catalog/import", NewImportHandler(sheetService))
	mux.Handle("/catalog/export", NewExportHandler(sheetService))

	return mux
}
