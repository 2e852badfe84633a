package api

import (
	"net/http"

	"github.com/gridworks/catalogbridge/internal/auth"
	"github.com/gridworks/catalogbridge/internal/catalog"
	"github.com/gridworks/catalogbridge/internal/domain"
)

// StoreHandler serves the meta/attribute inventory used by the client to
// build its column list.
type StoreHandler struct {
	catalog *catalog.Service
}

func NewStoreHandler(catalogService *catalog.Service) *StoreHandler {
	return &StoreHandler{catalog: catalogService}
}

func (h *StoreHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if !auth.PermissionsFromContext(r.Context()).Read {
		writeError(w, domain.ErrCannotView)
		return
	}

	info, err := h.catalog.DescribeStore(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}
