package sheet

import (
	"context"
	"fmt"
	"io"
	"log"
	"sort"

	"github.com/google/uuid"
	"github.com/xuri/excelize/v2"

	"github.com/gridworks/catalogbridge/internal/catalog"
)

const exportSheetName = "Products"

// exportPageSize bounds each listing query while streaming the export.
const exportPageSize = 500

// Export writes the filtered catalog as an .xlsx workbook. Returns the
// suggested file name.
func (s *Service) Export(ctx context.Context, req catalog.ListRequest, out io.Writer) (string, error) {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	sheetIdx, err := f.NewSheet(exportSheetName)
	if err != nil {
		return "", fmt.Errorf("failed to create sheet: %w", err)
	}
	f.SetActiveSheet(sheetIdx)
	_ = f.DeleteSheet("Sheet1")

	var headers []string
	rowNum := 1

	req.Page = 1
	req.PerPage = exportPageSize

	for {
		page, err := s.catalog.List(ctx, req)
		if err != nil {
			return "", err
		}

		for _, item := range page.Items {
			if headers == nil {
				headers = columnOrder(item)
				if err := writeRow(f, 1, headers); err != nil {
					return "", err
				}
				rowNum = 2
			}

			cells := make([]any, len(headers))
			for i, header := range headers {
				cells[i] = cellValue(item[header])
			}
			if err := writeRow(f, rowNum, cells); err != nil {
				return "", err
			}
			rowNum++
		}

		if page.NextPage == 0 {
			break
		}
		req.Page = page.NextPage
	}

	if err := f.Write(out); err != nil {
		return "", fmt.Errorf("failed to write workbook: %w", err)
	}

	written := 0
	if rowNum > 2 {
		written = rowNum - 2
	}
	fileName := fmt.Sprintf("catalog-export-%s.xlsx", uuid.NewString()[:8])
	log.Printf("[export] wrote %d rows to %s", written, fileName)
	return fileName, nil
}

// columnOrder puts identity columns first, then the rest alphabetically.
func columnOrder(item catalog.Row) []string {
	leading := []string{"id", "parent_id", "product_type", "name", "sku"}
	inLeading := make(map[string]struct{}, len(leading))

	headers := make([]string, 0, len(item))
	for _, key := range leading {
		if _, ok := item[key]; ok {
			headers = append(headers, key)
			inLeading[key] = struct{}{}
		}
	}

	rest := make([]string, 0, len(item))
	for key, value := range item {
		if _, ok := inLeading[key]; ok {
			continue
		}
		// Nested structures (attributes, meta_data) do not fit one cell.
		switch value.(type) {
		case []catalog.Row, []any:
			continue
		}
		rest = append(rest, key)
	}
	sort.Strings(rest)

	return append(headers, rest...)
}

func writeRow(f *excelize.File, rowNum int, cells any) error {
	cell, err := excelize.CoordinatesToCellName(1, rowNum)
	if err != nil {
		return fmt.Errorf("failed to compute cell name: %w", err)
	}
	var values []any
	switch v := cells.(type) {
	case []any:
		values = v
	case []string:
		values = make([]any, len(v))
		for i, s := range v {
			values[i] = s
		}
	}
	if err := f.SetSheetRow(exportSheetName, cell, &values); err != nil {
		return fmt.Errorf("failed to write row %d: %w", rowNum, err)
	}
	return nil
}

func cellValue(value any) any {
	switch v := value.(type) {
	case nil:
		return ""
	case string, bool, int, int64, float64:
		return v
	default:
		return fmt.Sprintf("%v", v)
	}
}
