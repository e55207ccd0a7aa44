// Package sqlite is a SQLite-backed catalog.Store, adapted from
// metadata/sqlite's block-metadata store: same schema-on-open and
// transactional-insert shape, applied to grove subtree lifecycle events
// instead of blockchain blocks.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"github.com/grovedb/grovedb/catalog"
	"github.com/grovedb/grovedb/feature"
)

// Store is a SQLite-backed implementation of catalog.Store.
type Store struct {
	db *sql.DB
}

// Config holds the SQLite store's configuration.
type Config struct {
	// DBPath is the SQLite database file path. ":memory:" opens a private
	// in-memory database for tests.
	DBPath string
}

// New opens (creating if needed) a SQLite-backed catalog.Store.
func New(config *Config) (*Store, error) {
	if config.DBPath == "" {
		return nil, fmt.Errorf("catalog/sqlite: DBPath is required")
	}

	db, err := sql.Open("sqlite3", config.DBPath)
	if err != nil {
		return nil, fmt.Errorf("catalog/sqlite: open: %w", err)
	}

	s := &Store{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("catalog/sqlite: init schema: %w", err)
	}
	return s, nil
}

func (s *Store) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS subtree_events (
		seq         INTEGER PRIMARY KEY AUTOINCREMENT,
		path        TEXT NOT NULL,
		key         BLOB NOT NULL,
		kind        INTEGER NOT NULL,
		feature     INTEGER NOT NULL,
		at_unix     INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_subtree_events_path ON subtree_events(path, seq);
	`
	_, err := s.db.Exec(schema)
	return err
}

// RecordEvent appends ev to the subtree_events table.
func (s *Store) RecordEvent(ctx context.Context, ev catalog.Event) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("catalog/sqlite: begin: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO subtree_events (path, key, kind, feature, at_unix)
		 VALUES (?, ?, ?, ?, ?)`,
		ev.Path, ev.Key, int(ev.Kind), int(ev.Feature), ev.AtUnix,
	)
	if err != nil {
		return fmt.Errorf("catalog/sqlite: insert: %w", err)
	}
	return tx.Commit()
}

// ListEvents returns every event whose path equals or is nested under
// pathPrefix, oldest first.
func (s *Store) ListEvents(ctx context.Context, pathPrefix string) ([]catalog.Event, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT seq, path, key, kind, feature, at_unix FROM subtree_events
		 WHERE ? = '' OR path = ? OR path LIKE ? ORDER BY seq ASC`,
		pathPrefix, pathPrefix, pathPrefix+"/%",
	)
	if err != nil {
		return nil, fmt.Errorf("catalog/sqlite: query: %w", err)
	}
	defer rows.Close()

	var out []catalog.Event
	for rows.Next() {
		var ev catalog.Event
		var kind, feat int
		if err := rows.Scan(&ev.Seq, &ev.Path, &ev.Key, &kind, &feat, &ev.AtUnix); err != nil {
			return nil, fmt.Errorf("catalog/sqlite: scan: %w", err)
		}
		ev.Kind = catalog.EventKind(kind)
		ev.Feature = feature.Kind(feat)
		out = append(out, ev)
	}
	return out, rows.Err()
}

// LatestEvent returns the most recently recorded event for path.
func (s *Store) LatestEvent(ctx context.Context, path string) (catalog.Event, bool, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT seq, path, key, kind, feature, at_unix FROM subtree_events
		 WHERE path = ? ORDER BY seq DESC LIMIT 1`,
		path,
	)
	var ev catalog.Event
	var kind, feat int
	if err := row.Scan(&ev.Seq, &ev.Path, &ev.Key, &kind, &feat, &ev.AtUnix); err != nil {
		if err == sql.ErrNoRows {
			return catalog.Event{}, false, nil
		}
		return catalog.Event{}, false, fmt.Errorf("catalog/sqlite: scan: %w", err)
	}
	ev.Kind = catalog.EventKind(kind)
	ev.Feature = feature.Kind(feat)
	return ev, true, nil
}

// Close closes the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}
