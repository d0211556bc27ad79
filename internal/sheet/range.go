package sheet

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
)

// Range addresses a rectangular block of cells. Rows and columns are 1-based
// and inclusive. EndRow 0 means "through the last row with content".
type Range struct {
	Sheet    string
	StartCol int
	StartRow int
	EndCol   int
	EndRow   int
}

// ParseRange parses A1 notation such as "Logs!B2:J10", "'Authorized People'!A2:C"
// or "L2:L9" (no sheet).
func ParseRange(s string) (Range, error) {
	var r Range
	ref := strings.TrimSpace(s)
	if i := strings.LastIndex(ref, "!"); i >= 0 {
		r.Sheet = strings.Trim(ref[:i], "'")
		ref = ref[i+1:]
	}

	start, end, ok := strings.Cut(ref, ":")
	if !ok {
		end = start
	}

	var err error
	if r.StartCol, r.StartRow, err = parseCell(start); err != nil {
		return Range{}, eris.Wrapf(err, "sheet: parse range %q", s)
	}
	if r.StartRow == 0 {
		return Range{}, eris.Errorf("sheet: parse range %q: start row required", s)
	}
	if r.EndCol, r.EndRow, err = parseCell(end); err != nil {
		return Range{}, eris.Wrapf(err, "sheet: parse range %q", s)
	}
	if r.EndCol < r.StartCol || (r.EndRow != 0 && r.EndRow < r.StartRow) {
		return Range{}, eris.Errorf("sheet: parse range %q: end before start", s)
	}
	return r, nil
}

// MustParseRange is ParseRange for constant ranges; it panics on error.
func MustParseRange(s string) Range {
	r, err := ParseRange(s)
	if err != nil {
		panic(err)
	}
	return r
}

// Columns returns a range spanning the given column letters over rows
// [startRow, endRow] on sheet.
func Columns(sheet, startCol, endCol string, startRow, endRow int) Range {
	return Range{
		Sheet:    sheet,
		StartCol: ColumnIndex(startCol),
		StartRow: startRow,
		EndCol:   ColumnIndex(endCol),
		EndRow:   endRow,
	}
}

// Rows returns the number of rows in a bounded range.
func (r Range) Rows() int {
	if r.EndRow < r.StartRow {
		return 0
	}
	return r.EndRow - r.StartRow + 1
}

// Cols returns the number of columns in the range.
func (r Range) Cols() int {
	return r.EndCol - r.StartCol + 1
}

// Bounded reports whether the range has an explicit end row.
func (r Range) Bounded() bool {
	return r.EndRow != 0
}

// WithEndRow returns a copy of r ending at row.
func (r Range) WithEndRow(row int) Range {
	r.EndRow = row
	return r
}

func (r Range) String() string {
	var b strings.Builder
	if r.Sheet != "" {
		if strings.ContainsAny(r.Sheet, " '!") {
			fmt.Fprintf(&b, "'%s'!", r.Sheet)
		} else {
			b.WriteString(r.Sheet + "!")
		}
	}
	fmt.Fprintf(&b, "%s%d:%s", ColumnName(r.StartCol), r.StartRow, ColumnName(r.EndCol))
	if r.EndRow != 0 {
		b.WriteString(strconv.Itoa(r.EndRow))
	}
	return b.String()
}

// ColumnIndex converts a column name ("A", "L", "AB") to its 1-based index.
// It returns 0 for an invalid name.
func ColumnIndex(name string) int {
	n := 0
	for _, c := range strings.ToUpper(name) {
		if c < 'A' || c > 'Z' {
			return 0
		}
		n = n*26 + int(c-'A'+1)
	}
	return n
}

// ColumnName converts a 1-based column index to its letter name.
func ColumnName(idx int) string {
	var b []byte
	for idx > 0 {
		idx--
		b = append([]byte{byte('A' + idx%26)}, b...)
		idx /= 26
	}
	return string(b)
}

func parseCell(ref string) (col, row int, err error) {
	ref = strings.ToUpper(strings.TrimSpace(ref))
	i := 0
	for i < len(ref) && ref[i] >= 'A' && ref[i] <= 'Z' {
		i++
	}
	if i == 0 {
		return 0, 0, eris.Errorf("missing column in %q", ref)
	}
	col = ColumnIndex(ref[:i])
	if i == len(ref) {
		return col, 0, nil
	}
	row, err = strconv.Atoi(ref[i:])
	if err != nil || row < 1 {
		return 0, 0, eris.Errorf("invalid row in %q", ref)
	}
	return col, row, nil
}
