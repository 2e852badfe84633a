package sheet

import (
	"bufio"
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/gridworks/catalogbridge/internal/catalog"
)

var (
	// ErrUnsupportedFormat is returned when an uploaded file is not supported.
	ErrUnsupportedFormat = errors.New("unsupported file format")

	byteOrderMark = []byte{0xEF, 0xBB, 0xBF}
)

// Service moves catalog rows in and out of spreadsheet files.
type Service struct {
	catalog *catalog.Service
}

// NewService creates a spreadsheet service on top of the catalog service.
func NewService(catalogService *catalog.Service) *Service {
	return &Service{catalog: catalogService}
}

// ImportSummary reports the outcome of one uploaded sheet.
type ImportSummary struct {
	TotalRows  int           `json:"totalRows"`
	SavedRows  int           `json:"savedRows"`
	FailedRows int           `json:"failedRows"`
	Errors     []ImportError `json:"errors,omitempty"`
}

// ImportError pins a failure to its sheet row.
type ImportError struct {
	RowNumber int    `json:"rowNumber"`
	Message   string `json:"message"`
}

// Import parses the uploaded file and upserts each row through the batch
// save path. Rows run in sheet order so placeholder parents resolve; a
// failed row is recorded and the import continues.
func (s *Service) Import(ctx context.Context, fileName string, data io.Reader) (ImportSummary, error) {
	summary := ImportSummary{}

	payload, err := io.ReadAll(data)
	if err != nil {
		return summary, fmt.Errorf("failed to read upload: %w", err)
	}
	if len(payload) == 0 {
		return summary, errors.New("file is empty")
	}

	headers, rows, err := parseTable(fileName, payload)
	if err != nil {
		return summary, err
	}
	if len(headers) == 0 {
		return summary, errors.New("no header row detected")
	}

	summary.TotalRows = len(rows)
	state := catalog.NewBatchState()

	for i, row := range rows {
		payload := rowToPayload(headers, row)
		if len(payload) == 0 {
			continue
		}
		if _, err := s.catalog.Save(ctx, payload, state); err != nil {
			summary.FailedRows++
			summary.Errors = append(summary.Errors, ImportError{
				RowNumber: i + 2, // 1-based, after the header row
				Message:   err.Error(),
			})
			continue
		}
		summary.SavedRows++
	}
	return summary, nil
}

// rowToPayload builds a save payload from one sheet row. Attribute columns
// are folded into attributes_data; everything else passes through as a
// string field.
func rowToPayload(headers []string, row []string) map[string]any {
	payload := make(map[string]any, len(headers))
	var attributeEdits []any

	for i, header := range headers {
		header = strings.TrimSpace(header)
		if header == "" || i >= len(row) {
			continue
		}
		value := strings.TrimSpace(row[i])
		if value == "" {
			continue
		}

		if strings.HasPrefix(header, "pa_") || strings.HasPrefix(header, "la_") {
			attributeEdits = append(attributeEdits, map[string]any{"key": header, "value": value})
			continue
		}
		payload[header] = value
	}

	if len(attributeEdits) > 0 {
		payload["attributes_data"] = attributeEdits
	}
	return payload
}

func parseTable(fileName string, payload []byte) ([]string, [][]string, error) {
	ext := strings.ToLower(filepath.Ext(fileName))
	switch ext {
	case ".csv":
		return parseCSV(payload)
	case ".xlsx":
		return parseExcel(payload)
	default:
		return nil, nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, ext)
	}
}

func parseCSV(payload []byte) ([]string, [][]string, error) {
	reader := bufio.NewReader(bytes.NewReader(payload))
	if prefix, err := reader.Peek(len(byteOrderMark)); err == nil && bytes.Equal(prefix, byteOrderMark) {
		_, _ = reader.Discard(len(byteOrderMark))
	}

	csvReader := csv.NewReader(reader)
	csvReader.TrimLeadingSpace = true
	csvReader.FieldsPerRecord = -1

	records, err := csvReader.ReadAll()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read csv: %w", err)
	}
	if len(records) == 0 {
		return nil, nil, errors.New("no rows found in file")
	}
	return records[0], records[1:], nil
}

func parseExcel(payload []byte) ([]string, [][]string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(payload))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open xlsx: %w", err)
	}
	defer func() { _ = f.Close() }()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, nil, errors.New("excel file has no sheets")
	}

	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read rows from xlsx: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil, errors.New("no rows found in file")
	}
	return rows[0], rows[1:], nil
}
