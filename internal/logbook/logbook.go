// Package logbook knows the layout of the Logs sheet: data in columns B..J,
// the processed flag in column L, one header row.
package logbook

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/printlog-cli/internal/model"
	"github.com/sells-group/printlog-cli/internal/sheet"
)

// Column layout of the Logs sheet.
const (
	FirstDataRow = 2

	DataStartCol = "B" // first name
	StatusCol    = "D" // authorized value or model.NotAuthorized
	DataEndCol   = "J" // file name
	SentCol      = "L"
)

// Snapshot is an in-memory copy of the Logs sheet taken under the sweep lock.
// Data and Sent address the same rows, fixed at load time.
type Snapshot struct {
	LastRow   int
	Rows      []model.LogRow
	Data      sheet.Range
	Sent      sheet.Range
	SentCells [][]any
}

// Empty reports whether the sheet has no data rows.
func (s *Snapshot) Empty() bool {
	return s.LastRow < FirstDataRow
}

// Load reads the data and sent columns of sheetName over rows 2..lastRow.
func Load(ctx context.Context, st sheet.Store, sheetName string) (*Snapshot, error) {
	last, err := st.LastRow(ctx, sheetName)
	if err != nil {
		return nil, eris.Wrap(err, "logbook: last row")
	}

	snap := &Snapshot{
		LastRow: last,
		Data:    sheet.Columns(sheetName, DataStartCol, DataEndCol, FirstDataRow, last),
		Sent:    sheet.Columns(sheetName, SentCol, SentCol, FirstDataRow, last),
	}
	if snap.Empty() {
		return snap, nil
	}

	data, err := st.Read(ctx, snap.Data)
	if err != nil {
		return nil, eris.Wrap(err, "logbook: read data")
	}
	sent, err := st.Read(ctx, snap.Sent)
	if err != nil {
		return nil, eris.Wrap(err, "logbook: read sent")
	}
	if len(data) != len(sent) {
		return nil, eris.Errorf("logbook: data has %d rows, sent has %d", len(data), len(sent))
	}

	snap.SentCells = sent
	snap.Rows = make([]model.LogRow, len(data))
	for i := range data {
		snap.Rows[i] = ParseRow(FirstDataRow+i, data[i], sent[i][0])
	}
	return snap, nil
}

// ParseRow converts cells B..J plus the sent cell into a LogRow.
func ParseRow(row int, cells []any, sent any) model.LogRow {
	get := func(i int) string {
		if i < len(cells) {
			return strings.TrimSpace(sheet.String(cells[i]))
		}
		return ""
	}
	r := model.LogRow{
		Row:       row,
		FirstName: get(0),
		LastName:  get(1),
		Device:    get(3),
		Date:      get(4),
		Time:      get(5),
		Duration:  get(6),
		EndTime:   get(7),
		FileName:  get(8),
		Sent:      sheet.Bool(sent),
	}
	// The status is compared exactly against the sentinel, so keep it raw.
	if len(cells) > 2 {
		r.Status = sheet.String(cells[2])
	}
	return r
}
