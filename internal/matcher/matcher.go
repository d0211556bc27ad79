// Package matcher resolves a person's name against the authorized-people
// reference table.
package matcher

import (
	"strings"

	"github.com/spf13/cast"
	"golang.org/x/text/cases"

	"github.com/sells-group/printlog-cli/internal/model"
)

// Match looks up firstName/lastName in three parallel reference columns and
// returns the value aligned with the first matching row, or
// model.NotAuthorized. Names are compared trimmed and case-folded. Reference
// rows missing either name are never candidates.
func Match(firstName, lastName any, refFirst, refLast, refValues []any) string {
	qFirst, qLast := normalize(firstName), normalize(lastName)
	if qFirst == "" || qLast == "" {
		return model.NotAuthorized
	}

	for i := range refFirst {
		rFirst, rLast := normalize(refFirst[i]), normalize(at(refLast, i))
		if rFirst == "" || rLast == "" {
			continue
		}
		if rFirst == qFirst && rLast == qLast {
			return cast.ToString(at(refValues, i))
		}
	}
	return model.NotAuthorized
}

// MatchRecords is Match over reference records.
func MatchRecords(firstName, lastName any, refs []model.ReferenceRecord) string {
	first := make([]any, len(refs))
	last := make([]any, len(refs))
	values := make([]any, len(refs))
	for i, r := range refs {
		first[i], last[i], values[i] = r.FirstName, r.LastName, r.Value
	}
	return Match(firstName, lastName, first, last, values)
}

// Columns splits a three-column range (first, last, value) into the parallel
// columns Match expects. Short rows yield empty cells.
func Columns(rows [][]any) (first, last, values []any) {
	first = make([]any, len(rows))
	last = make([]any, len(rows))
	values = make([]any, len(rows))
	for i, row := range rows {
		first[i], last[i], values[i] = at(row, 0), at(row, 1), at(row, 2)
	}
	return first, last, values
}

// Records converts a three-column range into reference records.
func Records(rows [][]any) []model.ReferenceRecord {
	refs := make([]model.ReferenceRecord, 0, len(rows))
	for _, row := range rows {
		refs = append(refs, model.ReferenceRecord{
			FirstName: cast.ToString(at(row, 0)),
			LastName:  cast.ToString(at(row, 1)),
			Value:     cast.ToString(at(row, 2)),
		})
	}
	return refs
}

func normalize(v any) string {
	s := strings.TrimSpace(cast.ToString(v))
	if s == "" {
		return ""
	}
	// Casers carry state; one per call keeps Match safe for concurrent use.
	return cases.Fold().String(s)
}

func at(col []any, i int) any {
	if i < len(col) {
		return col[i]
	}
	return nil
}
