package api

import (
	"bytes"
	"fmt"
	"log"
	"net/http"

	"github.com/gridworks/catalogbridge/internal/auth"
	"github.com/gridworks/catalogbridge/internal/domain"
	"github.com/gridworks/catalogbridge/internal/sheet"
)

// ImportHandler accepts an uploaded spreadsheet and runs it through the
// batch save path.
type ImportHandler struct {
	sheets *sheet.Service
}

func NewImportHandler(sheets *sheet.Service) *ImportHandler {
	return &ImportHandler{sheets: sheets}
}

func (h *ImportHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if !auth.PermissionsFromContext(r.Context()).Write {
		writeError(w, domain.ErrCannotEdit)
		return
	}

	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeError(w, domain.NewAPIError("invalid_request", fmt.Sprintf("invalid form data: %v", err), http.StatusBadRequest))
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, domain.NewAPIError("invalid_request", "file is required", http.StatusBadRequest))
		return
	}
	defer file.Close()

	summary, err := h.sheets.Import(r.Context(), header.Filename, file)
	if err != nil {
		writeError(w, domain.NewAPIError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	writeJSON(w, http.StatusOK, summary)
}

// ExportHandler streams the filtered catalog as an .xlsx workbook.
type ExportHandler struct {
	sheets *sheet.Service
}

func NewExportHandler(sheets *sheet.Service) *ExportHandler {
	return &ExportHandler{sheets: sheets}
}

func (h *ExportHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if !auth.PermissionsFromContext(r.Context()).Read {
		writeError(w, domain.ErrCannotView)
		return
	}

	req, err := parseListRequest(r)
	if err != nil {
		writeError(w, domain.NewAPIError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	var buf bytes.Buffer
	fileName, err := h.sheets.Export(r.Context(), req, &buf)
	if err != nil {
		writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", fileName))
	w.Header().Set(VersionHeader, Version)
	w.WriteHeader(http.StatusOK)
	if _, err := buf.WriteTo(w); err != nil {
		log.Printf("[export] failed to stream workbook: %v", err)
	}
}
