package matcher

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/printlog-cli/internal/model"
)

func refColumns() ([]any, []any, []any) {
	return []any{"Ada", "Grace", "Alan"},
		[]any{"Lovelace", "Hopper", "Turing"},
		[]any{"ada@example.com", "grace@example.com", "alan@example.com"}
}

func TestMatch_Normalization(t *testing.T) {
	first, last, values := refColumns()

	tests := []struct {
		name        string
		first, last any
		want        string
	}{
		{"exact", "Grace", "Hopper", "grace@example.com"},
		{"lower case", "grace", "hopper", "grace@example.com"},
		{"upper case", "GRACE", "HOPPER", "grace@example.com"},
		{"padded", "  Grace ", "\tHopper\n", "grace@example.com"},
		{"mixed", " aLaN", "tURING  ", "alan@example.com"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Match(tt.first, tt.last, first, last, values))
		})
	}
}

func TestMatch_Absent(t *testing.T) {
	first, last, values := refColumns()

	assert.Equal(t, model.NotAuthorized, Match("Linus", "Torvalds", first, last, values))
	assert.Equal(t, model.NotAuthorized, Match("Ada", "Hopper", first, last, values))
	assert.Equal(t, model.NotAuthorized, Match("Ada", "Lovelace", nil, nil, nil))
}

func TestMatch_EmptyQueryShortCircuits(t *testing.T) {
	// A reference row with empty names must not match an empty query.
	first := []any{"", "Ada"}
	last := []any{"", "Lovelace"}
	values := []any{"blank@example.com", "ada@example.com"}

	assert.Equal(t, model.NotAuthorized, Match("", "Lovelace", first, last, values))
	assert.Equal(t, model.NotAuthorized, Match("Ada", "", first, last, values))
	assert.Equal(t, model.NotAuthorized, Match(nil, nil, first, last, values))
	assert.Equal(t, model.NotAuthorized, Match("   ", "Lovelace", first, last, values))
}

func TestMatch_FirstMatchWins(t *testing.T) {
	first := []any{"Ada", "ada "}
	last := []any{"Lovelace", "LOVELACE"}
	values := []any{"first@example.com", "second@example.com"}

	assert.Equal(t, "first@example.com", Match("Ada", "Lovelace", first, last, values))
}

func TestMatch_PartialReferenceRowsIgnored(t *testing.T) {
	first := []any{"Ada", "", nil, "Ada"}
	last := []any{"", "Lovelace", "Lovelace", "Lovelace"}
	values := []any{"no-last@example.com", "no-first@example.com", "nil-first@example.com", "ada@example.com"}

	assert.Equal(t, "ada@example.com", Match("Ada", "Lovelace", first, last, values))
	assert.Equal(t, model.NotAuthorized, Match("Ada", "", first, last, values))
}

func TestMatch_CoercesNonStrings(t *testing.T) {
	first := []any{42, "R2"}
	last := []any{true, 2.0}
	values := []any{1001, "droid"}

	assert.Equal(t, "1001", Match("42", "TRUE", first, last, values))
	assert.Equal(t, "droid", Match("r2", 2, first, last, values))
}

func TestMatch_ShortColumns(t *testing.T) {
	first := []any{"Ada", "Grace"}
	last := []any{"Lovelace"}
	values := []any{}

	assert.Equal(t, "", Match("Ada", "Lovelace", first, last, values))
	assert.Equal(t, model.NotAuthorized, Match("Grace", "Hopper", first, last, values))
}

func TestMatch_Concurrent(t *testing.T) {
	first, last, values := refColumns()

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.Equal(t, "ada@example.com", Match("ADA", "lovelace", first, last, values))
		}()
	}
	wg.Wait()
}

func TestMatchRecords(t *testing.T) {
	refs := []model.ReferenceRecord{
		{FirstName: "Ada", LastName: "Lovelace", Value: "ada@example.com"},
		{FirstName: "Ada", LastName: "Lovelace", Value: "dup@example.com"},
	}
	assert.Equal(t, "ada@example.com", MatchRecords("ada", "lovelace", refs))
	assert.Equal(t, model.NotAuthorized, MatchRecords("Grace", "Hopper", refs))
}

func TestColumns(t *testing.T) {
	rows := [][]any{
		{"Ada", "Lovelace", "ada@example.com"},
		{"Grace"},
	}
	first, last, values := Columns(rows)
	require.Len(t, first, 2)
	assert.Equal(t, []any{"Ada", "Grace"}, first)
	assert.Equal(t, []any{"Lovelace", nil}, last)
	assert.Equal(t, []any{"ada@example.com", nil}, values)
}

func TestRecords(t *testing.T) {
	refs := Records([][]any{{"Ada", "Lovelace", "ada@example.com"}, {"Grace", "Hopper"}})
	require.Len(t, refs, 2)
	assert.Equal(t, model.ReferenceRecord{FirstName: "Ada", LastName: "Lovelace", Value: "ada@example.com"}, refs[0])
	assert.Equal(t, "", refs[1].Value)
}
