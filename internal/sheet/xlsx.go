package sheet

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cast"
	"github.com/tealeg/xlsx/v2"
)

// XLSXStore is a Store backed by an .xlsx workbook on disk. Reads reload the
// file unless writes are pending, so a reader that takes the sweep lock first
// always sees the last flushed state. Flush writes a temp file next to the
// workbook and renames it over the original.
type XLSXStore struct {
	path string

	mu    sync.Mutex
	file  *xlsx.File
	dirty bool
}

// NewXLSX returns a store for the workbook at path. The file must exist.
func NewXLSX(path string) (*XLSXStore, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, eris.Wrapf(err, "xlsx: stat %s", path)
	}
	return &XLSXStore{path: path}, nil
}

// Path returns the workbook path.
func (s *XLSXStore) Path() string {
	return s.path
}

func (s *XLSXStore) Read(ctx context.Context, r Range) ([][]any, error) {
	if err := ctx.Err(); err != nil {
		return nil, eris.Wrap(err, "xlsx: read")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	sh, err := s.sheet(r.Sheet)
	if err != nil {
		return nil, eris.Wrapf(err, "xlsx: read %s", r)
	}
	if !r.Bounded() {
		r.EndRow = sheetLastRow(sh)
	}

	out := make([][]any, 0, r.Rows())
	for row := r.StartRow; row <= r.EndRow; row++ {
		cells := make([]any, r.Cols())
		for c := range cells {
			cells[c] = cellValue(sh, row-1, r.StartCol-1+c)
		}
		out = append(out, cells)
	}
	return out, nil
}

func (s *XLSXStore) Write(ctx context.Context, r Range, values [][]any) error {
	if err := ctx.Err(); err != nil {
		return eris.Wrap(err, "xlsx: write")
	}
	if err := checkShape(r, values); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	sh, err := s.sheet(r.Sheet)
	if err != nil {
		return eris.Wrapf(err, "xlsx: write %s", r)
	}
	for i, vals := range values {
		for c, v := range vals {
			setCell(cellAt(sh, r.StartRow-1+i, r.StartCol-1+c), v)
		}
	}
	s.dirty = true
	return nil
}

func (s *XLSXStore) Flush(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return eris.Wrap(err, "xlsx: flush")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.dirty {
		return nil
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".printlog-*.xlsx")
	if err != nil {
		return eris.Wrap(err, "xlsx: create temp file")
	}
	tmpPath := tmp.Name()
	if err := tmp.Close(); err != nil {
		return eris.Wrap(err, "xlsx: close temp file")
	}
	if err := s.file.Save(tmpPath); err != nil {
		os.Remove(tmpPath) //nolint:errcheck
		return eris.Wrap(err, "xlsx: save workbook")
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		os.Remove(tmpPath) //nolint:errcheck
		return eris.Wrap(err, "xlsx: replace workbook")
	}
	s.dirty = false
	return nil
}

func (s *XLSXStore) LastRow(ctx context.Context, sheet string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, eris.Wrap(err, "xlsx: last row")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	sh, err := s.sheet(sheet)
	if err != nil {
		return 0, eris.Wrapf(err, "xlsx: last row %q", sheet)
	}
	return sheetLastRow(sh), nil
}

// sheet returns the named sheet, reloading the workbook when nothing is
// pending. Callers hold s.mu.
func (s *XLSXStore) sheet(name string) (*xlsx.Sheet, error) {
	if !s.dirty || s.file == nil {
		f, err := xlsx.OpenFile(s.path)
		if err != nil {
			return nil, eris.Wrap(err, "open file")
		}
		s.file = f
	}
	sh, ok := s.file.Sheet[name]
	if !ok {
		return nil, eris.Wrapf(ErrSheetNotFound, "%q", name)
	}
	return sh, nil
}

func cellValue(sh *xlsx.Sheet, ri, ci int) any {
	if ri >= len(sh.Rows) || sh.Rows[ri] == nil || ci >= len(sh.Rows[ri].Cells) {
		return ""
	}
	cell := sh.Rows[ri].Cells[ci]
	if cell == nil {
		return ""
	}
	if cell.Type() == xlsx.CellTypeBool {
		return cell.Bool()
	}
	return cell.String()
}

func cellAt(sh *xlsx.Sheet, ri, ci int) *xlsx.Cell {
	for len(sh.Rows) <= ri {
		sh.AddRow()
	}
	row := sh.Rows[ri]
	for len(row.Cells) <= ci {
		row.AddCell()
	}
	return row.Cells[ci]
}

func setCell(cell *xlsx.Cell, v any) {
	switch t := v.(type) {
	case nil:
		cell.SetString("")
	case bool:
		cell.SetBool(t)
	case string:
		cell.SetString(t)
	case int:
		cell.SetInt(t)
	case float64:
		cell.SetFloat(t)
	case time.Time:
		cell.SetDateTime(t)
	default:
		cell.SetString(cast.ToString(v))
	}
}

func sheetLastRow(sh *xlsx.Sheet) int {
	for i := len(sh.Rows) - 1; i >= 0; i-- {
		row := sh.Rows[i]
		if row == nil {
			continue
		}
		for _, cell := range row.Cells {
			if cell != nil && cell.Value != "" {
				return i + 1
			}
		}
	}
	return 0
}
