// Package sheet provides the tabular store the notifier and resolver operate
// on: a workbook of named sheets addressed with A1 ranges.
package sheet

import (
	"context"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cast"
)

// ErrSheetNotFound is returned when a range names a sheet the workbook lacks.
var ErrSheetNotFound = eris.New("sheet not found")

// Store reads and writes cell ranges. Writes may be buffered until Flush.
// Read returns a grid of exactly Rows() x Cols() values; empty cells read as
// "" and boolean cells as bool.
type Store interface {
	Read(ctx context.Context, r Range) ([][]any, error)
	Write(ctx context.Context, r Range, values [][]any) error
	Flush(ctx context.Context) error
	LastRow(ctx context.Context, sheet string) (int, error)
}

// Bool interprets a cell value as a checkbox. Only a checked box, TRUE or 1
// count; stray marks such as "x" or "yes" do not.
func Bool(v any) bool {
	switch t := v.(type) {
	case bool:
		return t
	case string:
		switch strings.ToLower(strings.TrimSpace(t)) {
		case "true", "1":
			return true
		}
		return false
	default:
		b, err := strconv.ParseBool(cast.ToString(v))
		return err == nil && b
	}
}

// String renders a cell value as text.
func String(v any) string {
	return cast.ToString(v)
}

func checkShape(r Range, values [][]any) error {
	if !r.Bounded() {
		return eris.Errorf("sheet: write %s: range must be bounded", r)
	}
	if len(values) != r.Rows() {
		return eris.Errorf("sheet: write %s: got %d rows, range has %d", r, len(values), r.Rows())
	}
	for i, row := range values {
		if len(row) != r.Cols() {
			return eris.Errorf("sheet: write %s: row %d has %d cells, range has %d", r, i, len(row), r.Cols())
		}
	}
	return nil
}
