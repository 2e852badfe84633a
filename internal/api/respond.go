package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/gridworks/catalogbridge/internal/domain"
)

// Version is advertised on every response so the client can gate features.
const Version = "1.4.0"

// VersionHeader carries the service version on every response.
const VersionHeader = "X-CatalogBridge-Version"

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set(VersionHeader, Version)
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("[HTTP] failed to encode response: %v", err)
	}
}

// errorBody is the wire form of a client-facing error.
type errorBody struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Data    map[string]any `json:"data"`
}

func writeError(w http.ResponseWriter, err error) {
	var apiErr *domain.APIError
	if errors.As(err, &apiErr) {
		writeJSON(w, apiErr.Status, errorBody{
			Code:    apiErr.Code,
			Message: apiErr.Message,
			Data:    map[string]any{"status": apiErr.Status},
		})
		return
	}

	log.Printf("[HTTP] internal error: %v", err)
	writeJSON(w, http.StatusInternalServerError, errorBody{
		Code:    "internal_error",
		Message: "Internal server error.",
		Data:    map[string]any{"status": http.StatusInternalServerError},
	})
}
