package sheet

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestMemory() *MemoryStore {
	return NewMemory(map[string][][]any{
		"Logs": {
			{"Timestamp", "First", "Last"},
			{"t1", "Ada", "Lovelace"},
			{"t2", "Grace"},
		},
	})
}

func TestMemoryStore_Read(t *testing.T) {
	m := newTestMemory()

	rows, err := m.Read(context.Background(), MustParseRange("Logs!B2:D3"))
	require.NoError(t, err)
	assert.Equal(t, [][]any{{"Ada", "Lovelace", ""}, {"Grace", "", ""}}, rows)
}

func TestMemoryStore_ReadUnbounded(t *testing.T) {
	m := newTestMemory()

	rows, err := m.Read(context.Background(), MustParseRange("Logs!B2:B"))
	require.NoError(t, err)
	assert.Equal(t, [][]any{{"Ada"}, {"Grace"}}, rows)
}

func TestMemoryStore_ReadMissingSheet(t *testing.T) {
	m := newTestMemory()

	_, err := m.Read(context.Background(), MustParseRange("Nope!A1:A2"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrSheetNotFound))
}

func TestMemoryStore_WriteExtends(t *testing.T) {
	m := newTestMemory()
	ctx := context.Background()

	err := m.Write(ctx, MustParseRange("Logs!L2:L4"), [][]any{{true}, {false}, {true}})
	require.NoError(t, err)

	assert.Equal(t, true, m.Cell("Logs", 2, 12))
	assert.Equal(t, false, m.Cell("Logs", 3, 12))
	assert.Equal(t, true, m.Cell("Logs", 4, 12))
	assert.Equal(t, 1, m.Writes())

	last, err := m.LastRow(ctx, "Logs")
	require.NoError(t, err)
	assert.Equal(t, 4, last)
}

func TestMemoryStore_WriteShapeMismatch(t *testing.T) {
	m := newTestMemory()
	ctx := context.Background()

	err := m.Write(ctx, MustParseRange("Logs!L2:L3"), [][]any{{true}})
	assert.Error(t, err)

	err = m.Write(ctx, MustParseRange("Logs!K2:L2"), [][]any{{true}})
	assert.Error(t, err)

	err = m.Write(ctx, MustParseRange("Logs!L2:L"), [][]any{{true}})
	assert.Error(t, err)
	assert.Equal(t, 0, m.Writes())
}

func TestMemoryStore_CancelledContext(t *testing.T) {
	m := newTestMemory()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := m.Read(ctx, MustParseRange("Logs!A1:A1"))
	assert.Error(t, err)
	assert.Error(t, m.Flush(ctx))
	assert.Equal(t, 0, m.Flushes())
}

func TestMemoryStore_CopiesInput(t *testing.T) {
	src := map[string][][]any{"S": {{"a"}}}
	m := NewMemory(src)
	src["S"][0][0] = "mutated"

	assert.Equal(t, "a", m.Cell("S", 1, 1))
}
