package main

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turbekoff/tapecalc/pkg/calc"
)

func openTestArchive(t *testing.T) *Archive {
	t.Helper()
	a, err := OpenArchive(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })

	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	a.now = func() time.Time {
		now = now.Add(time.Second)
		return now
	}
	return a
}

func testSnapshot(t *testing.T, tokens ...string) calc.Snapshot {
	t.Helper()
	e := calc.New(testEngineConfig().Options()...)
	pressAll(t, e, tokens...)
	return e.Snapshot()
}

func TestArchive_SaveGet(t *testing.T) {
	a := openTestArchive(t)
	ctx := context.Background()
	snap := testSnapshot(t, "7", "+", "8", "=")

	saved, err := a.Save(ctx, "1_2", "lunch", ArchiveNamed, snap)
	require.NoError(t, err)
	assert.Equal(t, len(snap.Entries), saved.Lines)

	got, err := a.Get(ctx, "1_2", saved.ID[:8])
	require.NoError(t, err)
	assert.Equal(t, saved.ID, got.ID)
	assert.Equal(t, "lunch", got.Name)
	assert.Equal(t, ArchiveNamed, got.Kind)
	assert.Equal(t, saved.CreatedAt, got.CreatedAt)
	assert.Equal(t, entryValues(snap.Entries), entryValues(got.Snapshot.Entries))

	e := calc.New()
	require.NoError(t, e.Restore(got.Snapshot))
	assert.Equal(t, 15.0, e.Accumulator())
}

func TestArchive_OwnerIsolation(t *testing.T) {
	a := openTestArchive(t)
	ctx := context.Background()

	saved, err := a.Save(ctx, "1_2", "", ArchiveAuto, testSnapshot(t, "1", "+"))
	require.NoError(t, err)

	_, err = a.Get(ctx, "3_4", saved.ID)
	assert.ErrorIs(t, err, ErrSnapshotNotFound)
	assert.ErrorIs(t, a.Delete(ctx, "3_4", saved.ID), ErrSnapshotNotFound)

	tapes, err := a.List(ctx, "3_4")
	require.NoError(t, err)
	assert.Empty(t, tapes)
}

func TestArchive_AutoLimit(t *testing.T) {
	a := openTestArchive(t)
	ctx := context.Background()

	var ids []string
	for i := 0; i < maxAutoSnapshots+3; i++ {
		saved, err := a.Save(ctx, "1_2", "", ArchiveAuto, testSnapshot(t, fmt.Sprint(i+1), "+"))
		require.NoError(t, err)
		ids = append(ids, saved.ID)
	}
	_, err := a.Save(ctx, "1_2", "keep", ArchiveNamed, testSnapshot(t, "9"))
	require.NoError(t, err)

	tapes, err := a.List(ctx, "1_2")
	require.NoError(t, err)
	require.Len(t, tapes, maxAutoSnapshots+1)
	assert.Equal(t, "keep", tapes[0].Name)
	assert.Equal(t, ids[len(ids)-1], tapes[1].ID)

	_, err = a.Get(ctx, "1_2", ids[0])
	assert.ErrorIs(t, err, ErrSnapshotNotFound, "oldest auto snapshot is evicted")
}

func TestArchive_NamedReplace(t *testing.T) {
	a := openTestArchive(t)
	ctx := context.Background()

	first, err := a.Save(ctx, "1_2", "rent", ArchiveNamed, testSnapshot(t, "1", "+"))
	require.NoError(t, err)
	second, err := a.Save(ctx, "1_2", "rent", ArchiveNamed, testSnapshot(t, "2", "+"))
	require.NoError(t, err)

	tapes, err := a.List(ctx, "1_2")
	require.NoError(t, err)
	require.Len(t, tapes, 1)
	assert.Equal(t, second.ID, tapes[0].ID)

	_, err = a.Get(ctx, "1_2", first.ID)
	assert.ErrorIs(t, err, ErrSnapshotNotFound)
}

func TestArchive_Delete(t *testing.T) {
	a := openTestArchive(t)
	ctx := context.Background()

	saved, err := a.Save(ctx, "1_2", "x", ArchiveNamed, testSnapshot(t, "3"))
	require.NoError(t, err)
	require.NoError(t, a.Delete(ctx, "1_2", saved.ID))

	_, err = a.Get(ctx, "1_2", saved.ID)
	assert.ErrorIs(t, err, ErrSnapshotNotFound)

	_, err = a.Get(ctx, "1_2", "")
	assert.ErrorIs(t, err, ErrSnapshotNotFound)
}
