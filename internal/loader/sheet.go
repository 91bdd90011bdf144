package loader

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/hyperjump/smartdoc/internal/models"
)

// loadSpreadsheet yields one record per sheet, rows as tab separated lines.
func (l *Loader) loadSpreadsheet(_ context.Context, content []byte, source string) ([]*models.Record, error) {
	f, err := excelize.OpenReader(bytes.NewReader(content))
	if err != nil {
		return nil, fmt.Errorf("open Excel: %w", err)
	}
	defer f.Close()

	var records []*models.Record
	for i, sheet := range f.GetSheetList() {
		rows, err := f.GetRows(sheet)
		if err != nil {
			return nil, fmt.Errorf("get rows for sheet %q: %w", sheet, err)
		}
		var buf strings.Builder
		for _, row := range rows {
			buf.WriteString(strings.Join(row, "\t"))
			buf.WriteByte('\n')
		}
		records = append(records, &models.Record{
			Text:     strings.TrimSpace(buf.String()),
			Source:   source,
			Page:     i,
			Metadata: map[string]interface{}{"sheet": sheet},
		})
	}
	return records, nil
}
