package sheet

import (
	"context"
	"sync"

	"github.com/rotisserie/eris"
)

// MemoryStore is an in-memory workbook. Writes apply immediately; Flush only
// counts calls. It is used for dry runs and tests.
type MemoryStore struct {
	mu      sync.Mutex
	sheets  map[string][][]any
	writes  int
	flushes int
}

// NewMemory creates a MemoryStore from sheet name to rows. Row 0 of each
// slice is sheet row 1 and column 0 is column A.
func NewMemory(sheets map[string][][]any) *MemoryStore {
	m := &MemoryStore{sheets: make(map[string][][]any, len(sheets))}
	for name, rows := range sheets {
		cp := make([][]any, len(rows))
		for i, row := range rows {
			cp[i] = append([]any(nil), row...)
		}
		m.sheets[name] = cp
	}
	return m
}

func (m *MemoryStore) Read(ctx context.Context, r Range) ([][]any, error) {
	if err := ctx.Err(); err != nil {
		return nil, eris.Wrap(err, "sheet: read")
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	rows, ok := m.sheets[r.Sheet]
	if !ok {
		return nil, eris.Wrapf(ErrSheetNotFound, "sheet: read %s", r)
	}
	if !r.Bounded() {
		r.EndRow = lastContentRow(rows)
	}

	out := make([][]any, 0, r.Rows())
	for row := r.StartRow; row <= r.EndRow; row++ {
		cells := make([]any, r.Cols())
		for c := range cells {
			cells[c] = ""
			ri, ci := row-1, r.StartCol-1+c
			if ri < len(rows) && ci < len(rows[ri]) && rows[ri][ci] != nil {
				cells[c] = rows[ri][ci]
			}
		}
		out = append(out, cells)
	}
	return out, nil
}

func (m *MemoryStore) Write(ctx context.Context, r Range, values [][]any) error {
	if err := ctx.Err(); err != nil {
		return eris.Wrap(err, "sheet: write")
	}
	if err := checkShape(r, values); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	rows, ok := m.sheets[r.Sheet]
	if !ok {
		return eris.Wrapf(ErrSheetNotFound, "sheet: write %s", r)
	}
	for len(rows) < r.EndRow {
		rows = append(rows, nil)
	}
	for i, vals := range values {
		ri := r.StartRow - 1 + i
		for len(rows[ri]) < r.EndCol {
			rows[ri] = append(rows[ri], nil)
		}
		for c, v := range vals {
			rows[ri][r.StartCol-1+c] = v
		}
	}
	m.sheets[r.Sheet] = rows
	m.writes++
	return nil
}

func (m *MemoryStore) Flush(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return eris.Wrap(err, "sheet: flush")
	}
	m.mu.Lock()
	m.flushes++
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) LastRow(_ context.Context, sheet string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rows, ok := m.sheets[sheet]
	if !ok {
		return 0, eris.Wrapf(ErrSheetNotFound, "sheet: last row %q", sheet)
	}
	return lastContentRow(rows), nil
}

// Cell returns the value at a 1-based row and column, or nil.
func (m *MemoryStore) Cell(sheet string, row, col int) any {
	m.mu.Lock()
	defer m.mu.Unlock()

	rows := m.sheets[sheet]
	if row < 1 || row > len(rows) || col < 1 || col > len(rows[row-1]) {
		return nil
	}
	return rows[row-1][col-1]
}

// Writes returns the number of successful Write calls.
func (m *MemoryStore) Writes() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writes
}

// Flushes returns the number of Flush calls.
func (m *MemoryStore) Flushes() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.flushes
}

func lastContentRow(rows [][]any) int {
	for i := len(rows) - 1; i >= 0; i-- {
		for _, v := range rows[i] {
			if v != nil && String(v) != "" {
				return i + 1
			}
		}
	}
	return 0
}
