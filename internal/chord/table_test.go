package chord

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chorder/internal/keys"
)

func TestComboOperations(t *testing.T) {
	c := ComboOf(2, 1)
	assert.Equal(t, "{1,2}", c.String())
	assert.Equal(t, 2, c.Len())
	assert.True(t, c.Has(1))
	assert.False(t, c.Has(0))
	assert.Equal(t, []keys.Index{1, 2}, c.Indices())

	c = c.With(1)
	assert.Equal(t, 2, c.Len(), "adding a present key must not change the set")

	c = c.Without(5)
	assert.Equal(t, ComboOf(1, 2), c, "removing an absent key is a no-op")

	c = c.Without(1).Without(2)
	assert.True(t, c.IsEmpty())
	assert.Equal(t, "{}", c.String())
}

func TestComboIgnoresOutOfRange(t *testing.T) {
	c := ComboOf(3, keys.MaxKeys, 200)
	assert.Equal(t, ComboOf(3), c)
	assert.False(t, c.Has(keys.MaxKeys))
}

func TestComboOrderIndependent(t *testing.T) {
	assert.Equal(t, ComboOf(0, 4, 6), ComboOf(6, 0, 4))
	assert.Equal(t, ComboOf(0, 4, 6), ComboOf(4, 6, 0))
}

func TestComboLabel(t *testing.T) {
	reg := keys.Default()
	assert.Equal(t, "NC", ComboOf(1, 0).Label(reg))
	assert.Equal(t, "IMRP", ComboOf(3, 4, 5, 6).Label(reg))
	assert.Equal(t, "N#9", ComboOf(0, 9).Label(reg))
	assert.Equal(t, "{0}", ComboOf(0).Label(nil))
}

func newScenarioTable(t *testing.T) *Table {
	t.Helper()
	b := NewBuilder("NORMAL")
	require.NoError(t, b.Add("NORMAL", ComboOf(1, 2), "a", "NORMAL"))
	require.NoError(t, b.Add("NORMAL", ComboOf(4), "SHIFT-ENTER", "SHIFT"))
	require.NoError(t, b.Add("SHIFT", ComboOf(1, 2), "A", "NORMAL"))
	tbl, err := b.Build()
	require.NoError(t, err)
	return tbl
}

func TestTableLookup(t *testing.T) {
	tbl := newScenarioTable(t)

	e, ok := tbl.Lookup("NORMAL", ComboOf(2, 1))
	require.True(t, ok)
	assert.Equal(t, Entry{Token: "a", Next: "NORMAL"}, e)

	e, ok = tbl.Lookup("SHIFT", ComboOf(1, 2))
	require.True(t, ok)
	assert.Equal(t, Token("A"), e.Token)

	_, ok = tbl.Lookup("NORMAL", ComboOf(3))
	assert.False(t, ok, "unmapped combination is a miss")

	_, ok = tbl.Lookup("MISSING", ComboOf(1, 2))
	assert.False(t, ok, "unknown mode is a miss")

	var nilTable *Table
	_, ok = nilTable.Lookup("NORMAL", ComboOf(1, 2))
	assert.False(t, ok)
}

func TestTableLookupDeterministic(t *testing.T) {
	tbl := newScenarioTable(t)
	first, _ := tbl.Lookup("NORMAL", ComboOf(4))
	for i := 0; i < 100; i++ {
		e, ok := tbl.Lookup("NORMAL", ComboOf(4))
		require.True(t, ok)
		require.Equal(t, first, e)
	}
}

func TestBuilderDefaultsNextToSameMode(t *testing.T) {
	b := NewBuilder("NUM")
	require.NoError(t, b.Add("NUM", ComboOf(3), "1", ""))
	tbl, err := b.Build()
	require.NoError(t, err)

	e, ok := tbl.Lookup("NUM", ComboOf(3))
	require.True(t, ok)
	assert.Equal(t, Mode("NUM"), e.Next)
}

func TestBuilderErrors(t *testing.T) {
	t.Run("duplicate combo", func(t *testing.T) {
		b := NewBuilder("NORMAL")
		require.NoError(t, b.Add("NORMAL", ComboOf(1, 2), "a", ""))
		err := b.Add("NORMAL", ComboOf(2, 1), "b", "")
		assert.True(t, errors.Is(err, ErrDuplicateCombo), "got %v", err)
	})

	t.Run("same combo in different modes", func(t *testing.T) {
		b := NewBuilder("NORMAL")
		require.NoError(t, b.Add("NORMAL", ComboOf(1, 2), "a", ""))
		assert.NoError(t, b.Add("SHIFT", ComboOf(1, 2), "A", ""))
	})

	t.Run("empty combo", func(t *testing.T) {
		b := NewBuilder("NORMAL")
		assert.ErrorIs(t, b.Add("NORMAL", 0, "a", ""), ErrEmptyCombo)
	})

	t.Run("unknown next mode", func(t *testing.T) {
		b := NewBuilder("NORMAL")
		require.NoError(t, b.Add("NORMAL", ComboOf(1), "x", "GONE"))
		_, err := b.Build()
		assert.ErrorIs(t, err, ErrUnknownMode)
	})

	t.Run("unknown initial mode", func(t *testing.T) {
		b := NewBuilder("SHIFT")
		require.NoError(t, b.Add("NORMAL", ComboOf(1), "x", ""))
		_, err := b.Build()
		assert.ErrorIs(t, err, ErrUnknownMode)
	})

	t.Run("empty table", func(t *testing.T) {
		_, err := NewBuilder("NORMAL").Build()
		assert.ErrorIs(t, err, ErrEmptyTable)
	})
}

func TestBuilderInitialDefaultsToFirstMode(t *testing.T) {
	b := NewBuilder("")
	require.NoError(t, b.Add("ALPHA", ComboOf(0), "a", ""))
	require.NoError(t, b.Add("BETA", ComboOf(0), "b", ""))
	tbl, err := b.Build()
	require.NoError(t, err)
	assert.Equal(t, Mode("ALPHA"), tbl.Initial())
	assert.Equal(t, []Mode{"ALPHA", "BETA"}, tbl.Modes())
}

func TestTableIsolatedFromBuilder(t *testing.T) {
	b := NewBuilder("NORMAL")
	require.NoError(t, b.Add("NORMAL", ComboOf(1), "x", ""))
	tbl, err := b.Build()
	require.NoError(t, err)

	_ = b.Add("NORMAL", ComboOf(2), "y", "")
	_, ok := tbl.Lookup("NORMAL", ComboOf(2))
	assert.False(t, ok, "builder changes after Build must not reach the table")
}

func TestTableChordsSorted(t *testing.T) {
	b := NewBuilder("NORMAL")
	require.NoError(t, b.Add("NORMAL", ComboOf(0, 1, 2), "c", ""))
	require.NoError(t, b.Add("NORMAL", ComboOf(5), "b", ""))
	require.NoError(t, b.Add("NORMAL", ComboOf(1), "a", ""))
	tbl, err := b.Build()
	require.NoError(t, err)

	chords := tbl.Chords("NORMAL")
	require.Len(t, chords, 3)
	assert.Equal(t, Token("a"), chords[0].Token)
	assert.Equal(t, Token("b"), chords[1].Token)
	assert.Equal(t, Token("c"), chords[2].Token)
	assert.Nil(t, tbl.Chords("MISSING"))
	assert.Equal(t, 3, tbl.Len())
}
