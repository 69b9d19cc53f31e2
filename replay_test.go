package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turbekoff/tapecalc/pkg/calc"
)

func TestSnapshotFormat(t *testing.T) {
	format, err := snapshotFormat("tape.JSON", "")
	require.NoError(t, err)
	assert.Equal(t, "json", format)

	format, err = snapshotFormat("tape.yml", "")
	require.NoError(t, err)
	assert.Equal(t, "yaml", format)

	_, err = snapshotFormat("tape.yaml", "xml")
	assert.Error(t, err)
}

func TestSnapshotFile_RoundTrip(t *testing.T) {
	snap := testSnapshot(t, "200", "+", "50", "-", "T")
	dir := t.TempDir()

	for _, name := range []string{"tape.yaml", "tape.json"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(dir, name)
			require.NoError(t, writeSnapshotFile(path, "", snap))

			got, err := readSnapshotFile(path, "")
			require.NoError(t, err)
			assert.Equal(t, snap.Settings, got.Settings)
			assert.Equal(t, entryValues(snap.Entries), entryValues(got.Entries))
			assert.Len(t, got.Undo, len(snap.Undo))
		})
	}
}

func TestReadSnapshotFile_HandWritten(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tape.yaml")
	doc := `entries:
  - {value: 10, symbol: "x", key: "x", kind: input, operand: 10}
  - {value: 3, symbol: "=", key: "=", kind: input, operand: 3}
`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))

	snap, err := readSnapshotFile(path, "")
	require.NoError(t, err)
	assert.Equal(t, calc.DefaultSettings(), snap.Settings)

	var out bytes.Buffer
	require.NoError(t, replaySnapshot(&out, snap))
	assert.Contains(t, out.String(), "display:     30,00")
	assert.Contains(t, out.String(), "accumulator: 30")
}

func TestReadSnapshotFile_Invalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tape.json")
	require.NoError(t, os.WriteFile(path, []byte("{"), 0o644))

	_, err := readSnapshotFile(path, "")
	assert.Error(t, err)

	_, err = readSnapshotFile(filepath.Join(t.TempDir(), "missing.yaml"), "")
	assert.ErrorIs(t, err, os.ErrNotExist)
}
