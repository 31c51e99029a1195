// Package archive owns the SQLite connection to a game archive file and
// its schema: the games/players/events/sites tables the search executor
// scans, plus the auxiliary indexes it creates best-effort, and the
// game_position_checkpoints table the checkpoint builder populates.
// modernc.org/sqlite keeps the driver pure Go, no cgo.
package archive

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/arcbishop/chessbench/internal/wberr"
)

// DB wraps the archive's *sql.DB: one pool per archive file, reads from
// the search path, writes only from the checkpoint builder.
type DB struct {
	*sql.DB
	path string
}

// Open opens (and, if needed, creates) the archive at path, ensures the
// core schema exists and attempts the auxiliary indexes best-effort. It
// sets no PRAGMAs; SetBulkIngestPragmas is the only PRAGMA setter here.
func Open(path string) (*DB, error) {
	sqlDB, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, wberr.Wrap(wberr.Io, "opening archive database", err)
	}
	db := &DB{DB: sqlDB, path: path}

	if err := db.ensureSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// Path returns the archive file path this DB was opened from.
func (db *DB) Path() string { return db.path }

func (db *DB) ensureSchema() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS players (
			id   INTEGER PRIMARY KEY,
			name TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS events (
			id   INTEGER PRIMARY KEY,
			name TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS sites (
			id   INTEGER PRIMARY KEY,
			name TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS games (
			id              INTEGER PRIMARY KEY,
			white_id        INTEGER NOT NULL,
			black_id        INTEGER NOT NULL,
			event_id        INTEGER,
			site_id         INTEGER,
			date            TEXT,
			time            TEXT,
			result          TEXT,
			ply_count       INTEGER,
			white_elo       INTEGER,
			black_elo       INTEGER,
			white_material  INTEGER NOT NULL,
			black_material  INTEGER NOT NULL,
			pawn_home       INTEGER NOT NULL,
			moves           BLOB,
			fen             TEXT
		)`,
		`CREATE TABLE IF NOT EXISTS game_position_checkpoints (
			game_id INTEGER NOT NULL,
			ply     INTEGER NOT NULL,
			board_hash INTEGER NOT NULL,
			turn    INTEGER NOT NULL,
			PRIMARY KEY (game_id, ply)
		)`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return wberr.Wrap(wberr.Io, fmt.Sprintf("creating schema (%s)", s), err)
		}
	}
	// Auxiliary indexes are best-effort: an index that fails to build does
	// not fail Open.
	_ = db.EnsureIndexes()
	return nil
}

// EnsureIndexes creates the auxiliary indexes the scan paths lean on.
// Index creation failures are tolerated: a missing index only costs scan
// speed, never correctness.
func (db *DB) EnsureIndexes() error {
	indexes := []string{
		`CREATE INDEX IF NOT EXISTS idx_games_white_id ON games(white_id)`,
		`CREATE INDEX IF NOT EXISTS idx_games_black_id ON games(black_id)`,
		`CREATE INDEX IF NOT EXISTS idx_games_date ON games(date)`,
		`CREATE INDEX IF NOT EXISTS idx_games_result ON games(result)`,
		`CREATE INDEX IF NOT EXISTS idx_games_wbdr ON games(white_id, black_id, date, result)`,
		`CREATE INDEX IF NOT EXISTS idx_games_material_home ON games(white_material, black_material, pawn_home)`,
		`CREATE INDEX IF NOT EXISTS idx_checkpoints_hash_turn ON game_position_checkpoints(board_hash, turn)`,
		`CREATE INDEX IF NOT EXISTS idx_checkpoints_hash ON game_position_checkpoints(board_hash)`,
	}
	var firstErr error
	for _, idx := range indexes {
		if _, err := db.Exec(idx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// SetBulkIngestPragmas applies the write-optimized PRAGMAs used during
// checkpoint building. They trade durability for throughput and are only
// ever used by that one-shot, rebuildable-on-failure path.
func (db *DB) SetBulkIngestPragmas() error {
	stmts := []string{
		`PRAGMA journal_mode = OFF`,
		`PRAGMA synchronous = OFF`,
		`PRAGMA temp_store = MEMORY`,
		`PRAGMA mmap_size = 1073741824`,
		`PRAGMA cache_size = 200000`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return wberr.Wrap(wberr.Io, "setting bulk-ingest pragmas", err)
		}
	}
	return nil
}
