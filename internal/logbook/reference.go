package logbook

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/printlog-cli/internal/sheet"
)

// DefaultReferenceSheet holds the authorized people: first name, last name
// and the value returned on a match, in columns A..C.
const DefaultReferenceSheet = "Authorized People"

// Reference reads A2:C{last} of the reference sheet. A sheet with only a
// header yields no rows.
func Reference(ctx context.Context, st sheet.Store, sheetName string) ([][]any, error) {
	last, err := st.LastRow(ctx, sheetName)
	if err != nil {
		return nil, eris.Wrap(err, "logbook: reference last row")
	}
	if last < FirstDataRow {
		return nil, nil
	}
	rows, err := st.Read(ctx, sheet.Columns(sheetName, "A", "C", FirstDataRow, last))
	if err != nil {
		return nil, eris.Wrap(err, "logbook: read reference")
	}
	return rows, nil
}
