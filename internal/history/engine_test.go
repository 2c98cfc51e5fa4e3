package history_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/storefront-cart/internal/history"
)

func newEngine(capacity int) *history.Engine[int] {
	return history.New[int](capacity, func() time.Time { return time.Unix(0, 0) })
}

func TestEmptyEngineCannotMove(t *testing.T) {
	e := newEngine(10)
	applied := false
	require.False(t, e.Undo(func(int) { applied = true }))
	require.False(t, e.Redo(func(int) { applied = true }))
	require.False(t, applied)
	require.Equal(t, history.Summary{Length: 0, Cursor: -1, Capacity: 10}, e.Info())
}

func TestSingleEntryCannotUndo(t *testing.T) {
	e := newEngine(10)
	e.Save(1, "addItem", nil)
	require.False(t, e.CanUndo())
	require.False(t, e.UndoInfo().Available)
}

func TestUndoRedoWalksTheStack(t *testing.T) {
	e := newEngine(10)
	for i := 1; i <= 4; i++ {
		e.Save(i, "step", history.Metadata{"n": i})
	}
	var state int
	apply := func(s int) { state = s }

	info := e.UndoInfo()
	require.True(t, info.Available)
	require.Equal(t, 4, info.Metadata["n"])

	require.True(t, e.Undo(apply))
	require.Equal(t, 3, state)
	require.True(t, e.Undo(apply))
	require.True(t, e.Undo(apply))
	require.Equal(t, 1, state)
	require.False(t, e.Undo(apply))

	require.Equal(t, 2, e.RedoInfo().Metadata["n"])
	require.True(t, e.Redo(apply))
	require.Equal(t, 2, state)
	require.True(t, e.CanRedo())
}

func TestSaveTruncatesRedoTail(t *testing.T) {
	e := newEngine(10)
	e.Save(1, "a", nil)
	e.Save(2, "b", nil)
	e.Save(3, "c", nil)
	require.True(t, e.Undo(func(int) {}))
	require.True(t, e.Undo(func(int) {}))
	require.True(t, e.CanRedo())

	e.Save(9, "d", nil)
	require.False(t, e.CanRedo())
	require.False(t, e.Redo(func(int) {}))

	entries := e.Entries()
	require.Len(t, entries, 2)
	require.Equal(t, "a", entries[0].Action)
	require.Equal(t, "d", entries[1].Action)
}

func TestCapacityEvictsOldest(t *testing.T) {
	e := newEngine(3)
	for i := 1; i <= 5; i++ {
		e.Save(i, "step", nil)
	}
	summary := e.Info()
	require.Equal(t, 3, summary.Length)
	require.Equal(t, 2, summary.Cursor)

	var state int
	for e.Undo(func(s int) { state = s }) {
	}
	require.Equal(t, 3, state)
}

func TestCapacityFloor(t *testing.T) {
	require.Equal(t, history.MinCapacity, newEngine(1).Info().Capacity)
	require.Equal(t, history.DefaultCapacity, newEngine(0).Info().Capacity)

	e := newEngine(1)
	e.Save(1, "step", nil)
	e.Save(2, "step", nil)
	e.Save(3, "step", nil)
	var state int
	require.True(t, e.Undo(func(s int) { state = s }))
	require.Equal(t, 2, state)
	require.False(t, e.CanUndo())
}

func TestMetadataIsCopied(t *testing.T) {
	e := newEngine(5)
	meta := history.Metadata{"qty": 2}
	e.Save(1, "a", nil)
	e.Save(2, "b", meta)
	meta["qty"] = 99

	info := e.UndoInfo()
	require.Equal(t, "b", info.Action)
	require.Equal(t, 2, info.Metadata["qty"])

	info.Metadata["qty"] = 7
	require.Equal(t, 2, e.UndoInfo().Metadata["qty"])
}

func TestClear(t *testing.T) {
	e := newEngine(5)
	e.Save(1, "a", nil)
	e.Save(2, "b", nil)
	e.Clear()
	require.Equal(t, 0, e.Info().Length)
	require.False(t, e.CanUndo())
}
