package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/gridworks/catalogbridge/internal/auth"
	"github.com/gridworks/catalogbridge/internal/catalog"
	"github.com/gridworks/catalogbridge/internal/domain"
)

// BatchHandler dispatches ordered sub-requests sequentially. There is no
// rollback; each action reports its own outcome.
type BatchHandler struct {
	catalog *catalog.Service
}

func NewBatchHandler(catalogService *catalog.Service) *BatchHandler {
	return &BatchHandler{catalog: catalogService}
}

type batchAction struct {
	Endpoint string         `json:"endpoint"`
	Method   string         `json:"method"`
	Data     map[string]any `json:"data"`
}

type batchRequest struct {
	Actions []batchAction `json:"actions"`
}

type batchActionResult struct {
	Endpoint string `json:"endpoint"`
	OK       bool   `json:"ok"`
	Result   any    `json:"result,omitempty"`
	Error    any    `json:"error,omitempty"`
}

func (h *BatchHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	perms := auth.PermissionsFromContext(r.Context())
	if !perms.Batch {
		writeError(w, domain.ErrCannotEdit)
		return
	}

	var req batchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, domain.NewAPIError("invalid_request", "request body must be a JSON object", http.StatusBadRequest))
		return
	}

	// Placeholder assignments live for the duration of this batch only.
	state := catalog.NewBatchState()

	results := make([]batchActionResult, 0, len(req.Actions))
	for _, action := range req.Actions {
		result := h.dispatch(r, action, state)
		results = append(results, result)
	}

	writeJSON(w, http.StatusOK, map[string]any{"results": results})
}

func (h *BatchHandler) dispatch(r *http.Request, action batchAction, state *catalog.BatchState) batchActionResult {
	out := batchActionResult{Endpoint: action.Endpoint}

	endpoint := strings.TrimPrefix(strings.TrimSpace(action.Endpoint), "/")
	switch endpoint {
	case "catalog/product", "product":
		row, err := h.catalog.Save(r.Context(), action.Data, state)
		if err != nil {
			out.Error = errorPayload(err)
			return out
		}
		out.OK = true
		out.Result = row

	case "catalog/save_by_field", "save_by_field":
		matchingField, _ := action.Data["matchingField"].(string)
		data, _ := action.Data["data"].(map[string]any)
		results, err := h.catalog.SaveByField(r.Context(), matchingField, data)
		if err != nil {
			out.Error = errorPayload(err)
			return out
		}
		out.OK = true
		out.Result = results

	default:
		out.Error = errorPayload(fmt.Errorf("unknown batch endpoint %q", action.Endpoint))
	}
	return out
}

func errorPayload(err error) any {
	if apiErr, ok := err.(*domain.APIError); ok {
		return errorBody{
			Code:    apiErr.Code,
			Message: apiErr.Message,
			Data:    map[string]any{"status": apiErr.Status},
		}
	}
	return err.Error()
}
