package api

import (
	"encoding/json"
	"net/http"

	"github.com/gridworks/catalogbridge/internal/catalog"
	"github.com/gridworks/catalogbridge/internal/domain"
)

// ProductHandler upserts one product per request.
type ProductHandler struct {
	catalog *catalog.Service
}

func NewProductHandler(catalogService *catalog.Service) *ProductHandler {
	return &ProductHandler{catalog: catalogService}
}

func (h *ProductHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var payload map[string]any
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, domain.NewAPIError("invalid_request", "request body must be a JSON object", http.StatusBadRequest))
		return
	}

	row, err := h.catalog.Save(r.Context(), payload, nil)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, row)
}

// SaveByFieldHandler updates products matched by sku, name or slug.
type SaveByFieldHandler struct {
	catalog *catalog.Service
}

func NewSaveByFieldHandler(catalogService *catalog.Service) *SaveByFieldHandler {
	return &SaveByFieldHandler{catalog: catalogService}
}

type saveByFieldRequest struct {
	MatchingField string         `json:"matchingField"`
	Data          map[string]any `json:"data"`
}

func (h *SaveByFieldHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req saveByFieldRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, domain.NewAPIError("invalid_request", "request body must be a JSON object", http.StatusBadRequest))
		return
	}
	if req.MatchingField == "" {
		writeError(w, domain.NewAPIError("invalid_request", "matchingField is required", http.StatusBadRequest))
		return
	}

	results, err := h.catalog.SaveByField(r.Context(), req.MatchingField, req.Data)
	if err != nil {
		writeError(w, err)
		return
	}

	out := make([]map[string]any, 0, len(results))
	for _, result := range results {
		entry := map[string]any{"matched_id": result.Matched}
		if result.Error != nil {
			entry["error"] = result.Error.Error()
		} else {
			entry["row"] = result.Row
		}
		out = append(out, entry)
	}
	writeJSON(w, http.StatusOK, out)
}
