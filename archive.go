package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/turbekoff/tapecalc/pkg/calc"
)

var ErrSnapshotNotFound = errors.New("snapshot not found")

// ArchiveKind separates automatic history snapshots from the ones a user
// saved by name. Each kind keeps its own bounded list per owner.
type ArchiveKind string

const (
	ArchiveAuto  ArchiveKind = "auto"
	ArchiveNamed ArchiveKind = "named"
)

const (
	maxAutoSnapshots  = 8
	maxNamedSnapshots = 8
)

func (k ArchiveKind) limit() int {
	if k == ArchiveNamed {
		return maxNamedSnapshots
	}
	return maxAutoSnapshots
}

type ArchivedTape struct {
	ID        string        `json:"id" yaml:"id"`
	Owner     string        `json:"owner" yaml:"owner"`
	Name      string        `json:"name,omitempty" yaml:"name,omitempty"`
	Kind      ArchiveKind   `json:"kind" yaml:"kind"`
	Lines     int           `json:"lines" yaml:"lines"`
	CreatedAt time.Time     `json:"created_at" yaml:"created_at"`
	Snapshot  calc.Snapshot `json:"snapshot" yaml:"snapshot"`
}

// Archive stores tape snapshots in SQLite.
type Archive struct {
	db  *sql.DB
	now func() time.Time
}

// OpenArchive opens the SQLite file at path (":memory:" works) and
// creates the schema.
func OpenArchive(path string) (*Archive, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open archive %s: %w", path, err)
	}
	// each connection to ":memory:" is a separate database
	db.SetMaxOpenConns(1)

	a, err := NewArchive(db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return a, nil
}

func NewArchive(db *sql.DB) (*Archive, error) {
	a := &Archive{db: db, now: time.Now}
	if err := a.migrate(); err != nil {
		return nil, fmt.Errorf("failed to migrate archive: %w", err)
	}
	return a, nil
}

func (a *Archive) migrate() error {
	queries := []string{`
	CREATE TABLE IF NOT EXISTS tapes (
		id TEXT PRIMARY KEY,
		owner TEXT NOT NULL,
		name TEXT NOT NULL DEFAULT '',
		kind TEXT NOT NULL,
		lines INTEGER NOT NULL DEFAULT 0,
		created_at INTEGER NOT NULL,
		snapshot JSON NOT NULL
	);`,
		`CREATE INDEX IF NOT EXISTS tapes_owner_kind ON tapes (owner, kind, created_at);`,
	}
	for _, query := range queries {
		if _, err := a.db.ExecContext(context.Background(), query); err != nil {
			return err
		}
	}
	return nil
}

// Save stores snap for owner. A named snapshot replaces an earlier one
// with the same name; the oldest snapshots beyond the kind's limit are
// dropped.
func (a *Archive) Save(ctx context.Context, owner, name string, kind ArchiveKind, snap calc.Snapshot) (ArchivedTape, error) {
	data, err := json.Marshal(snap)
	if err != nil {
		return ArchivedTape{}, fmt.Errorf("failed to encode snapshot: %w", err)
	}

	tape := ArchivedTape{
		ID:        uuid.NewString(),
		Owner:     owner,
		Name:      name,
		Kind:      kind,
		Lines:     len(snap.Entries),
		CreatedAt: a.now().UTC(),
		Snapshot:  snap,
	}

	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return ArchivedTape{}, err
	}
	defer func() { _ = tx.Rollback() }()

	if kind == ArchiveNamed {
		_, err = tx.ExecContext(ctx, `DELETE FROM tapes WHERE owner = ? AND kind = ? AND name = ?`, owner, string(kind), name)
		if err != nil {
			return ArchivedTape{}, fmt.Errorf("failed to replace snapshot %q: %w", name, err)
		}
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO tapes (id, owner, name, kind, lines, created_at, snapshot) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		tape.ID, owner, name, string(kind), tape.Lines, tape.CreatedAt.UnixNano(), string(data),
	)
	if err != nil {
		return ArchivedTape{}, fmt.Errorf("failed to insert snapshot: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		DELETE FROM tapes WHERE owner = ? AND kind = ? AND id NOT IN (
			SELECT id FROM tapes WHERE owner = ? AND kind = ?
			ORDER BY created_at DESC, rowid DESC
			LIMIT ?
		)`,
		owner, string(kind), owner, string(kind), kind.limit(),
	)
	if err != nil {
		return ArchivedTape{}, fmt.Errorf("failed to prune snapshots: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return ArchivedTape{}, err
	}
	return tape, nil
}

// List returns owner's snapshots, newest first, without their tapes.
func (a *Archive) List(ctx context.Context, owner string) ([]ArchivedTape, error) {
	rows, err := a.db.QueryContext(ctx, `
		SELECT id, owner, name, kind, lines, created_at
		FROM tapes
		WHERE owner = ?
		ORDER BY created_at DESC, rowid DESC`,
		owner,
	)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var tapes []ArchivedTape
	for rows.Next() {
		var tape ArchivedTape
		var createdAt int64
		if err := rows.Scan(&tape.ID, &tape.Owner, &tape.Name, &tape.Kind, &tape.Lines, &createdAt); err != nil {
			return nil, err
		}
		tape.CreatedAt = time.Unix(0, createdAt).UTC()
		tapes = append(tapes, tape)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return tapes, nil
}

// Get loads one snapshot. id may be a unique prefix of the full id.
func (a *Archive) Get(ctx context.Context, owner, id string) (ArchivedTape, error) {
	rows, err := a.db.QueryContext(ctx, `
		SELECT id, owner, name, kind, lines, created_at, snapshot
		FROM tapes
		WHERE owner = ? AND substr(id, 1, length(?)) = ?
		LIMIT 2`,
		owner, id, id,
	)
	if err != nil {
		return ArchivedTape{}, err
	}
	defer func() { _ = rows.Close() }()

	var found []ArchivedTape
	for rows.Next() {
		var tape ArchivedTape
		var createdAt int64
		var data string
		if err := rows.Scan(&tape.ID, &tape.Owner, &tape.Name, &tape.Kind, &tape.Lines, &createdAt, &data); err != nil {
			return ArchivedTape{}, err
		}
		if err := json.Unmarshal([]byte(data), &tape.Snapshot); err != nil {
			return ArchivedTape{}, fmt.Errorf("failed to decode snapshot %s: %w", tape.ID, err)
		}
		tape.CreatedAt = time.Unix(0, createdAt).UTC()
		found = append(found, tape)
	}
	if err := rows.Err(); err != nil {
		return ArchivedTape{}, err
	}

	if id == "" || len(found) != 1 {
		return ArchivedTape{}, fmt.Errorf("%w: %q", ErrSnapshotNotFound, id)
	}
	return found[0], nil
}

func (a *Archive) Delete(ctx context.Context, owner, id string) error {
	tape, err := a.Get(ctx, owner, id)
	if err != nil {
		return err
	}
	if _, err := a.db.ExecContext(ctx, `DELETE FROM tapes WHERE id = ?`, tape.ID); err != nil {
		return fmt.Errorf("failed to delete snapshot %s: %w", tape.ID, err)
	}
	return nil
}

func (a *Archive) Close() error {
	return a.db.Close()
}
