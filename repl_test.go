package main

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turbekoff/tapecalc/pkg/calc"
)

func runREPL(t *testing.T, input string) (*calc.Engine, string) {
	t.Helper()
	e := calc.New(testEngineConfig().Options()...)
	var out bytes.Buffer
	require.NoError(t, NewREPL(e, strings.NewReader(input), &out).Run())
	return e, out.String()
}

func TestTokenKeys(t *testing.T) {
	keys, err := tokenKeys("12.5")
	require.NoError(t, err)
	assert.Equal(t, []calc.Key{calc.Key1, calc.Key2, calc.KeyDecimal, calc.Key5}, keys)

	keys, err = tokenKeys("00")
	require.NoError(t, err)
	assert.Equal(t, []calc.Key{calc.KeyDoubleZero}, keys)

	keys, err = tokenKeys("*")
	require.NoError(t, err)
	assert.Equal(t, []calc.Key{calc.KeyMul}, keys)

	for _, bad := range []string{"1e5", "-3", "banana", "Inf"} {
		_, err = tokenKeys(bad)
		assert.ErrorIs(t, err, calc.ErrUnsupported, bad)
	}
}

func TestREPL_Keys(t *testing.T) {
	e, out := runREPL(t, "100 + 25 =\n")
	assert.Equal(t, 125.0, e.Accumulator())
	assert.Contains(t, out, "125,00")
}

func TestREPL_StopsLineOnError(t *testing.T) {
	e, out := runREPL(t, "5 banana + 1 =\n")
	assert.Contains(t, out, `error: unsupported key: key "banana"`)
	assert.Equal(t, "5", e.Display())
}

func TestREPL_Commands(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tape.yaml")
	e, out := runREPL(t, strings.Join([]string{
		"3 x 4 =",
		":tape",
		":undo",
		":redo",
		":export " + path,
		":bogus",
		":quit",
		"9 +",
	}, "\n"))

	assert.GreaterOrEqual(t, strings.Count(out, "12,00"), 3)
	assert.Contains(t, out, "exported")
	assert.Contains(t, out, `unknown command ":bogus"`)
	assert.Equal(t, 12.0, e.Accumulator(), "input after :quit is ignored")

	snap, err := readSnapshotFile(path, "")
	require.NoError(t, err)
	assert.Equal(t, entryValues(e.Entries()), entryValues(snap.Entries))
}

func TestREPL_EmptyTape(t *testing.T) {
	_, out := runREPL(t, ":tape\n:undo\n")
	assert.Contains(t, out, "tape is empty")
	assert.Contains(t, out, "nothing to undo")
}

func TestParseEdit(t *testing.T) {
	index, value, err := parseEdit("3 12,5")
	require.NoError(t, err)
	assert.Equal(t, 3, index)
	assert.Equal(t, 12.5, value)

	for _, bad := range []string{"", "1", "x 2", "1 two", "1 2 3", "1 NaN", "1 Inf"} {
		_, _, err := parseEdit(bad)
		assert.Error(t, err, bad)
	}
}

func TestREPL_Edit(t *testing.T) {
	e, out := runREPL(t, strings.Join([]string{
		"3 x 4 =",
		":edit 0 5",
		":edit 9 1",
		":edit 0",
	}, "\n"))

	assert.Equal(t, 20.0, e.Accumulator())
	assert.Contains(t, out, "20,00")
	assert.Contains(t, out, calc.ErrEntryIndex.Error())
	assert.Contains(t, out, "usage: :edit <index> <value>")

	require.True(t, e.Undo())
	assert.Equal(t, 12.0, e.Accumulator())
}
