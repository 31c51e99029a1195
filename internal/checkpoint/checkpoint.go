// Package checkpoint builds and serves the hash-addressed partial-ply
// position index that lets an Exact search short-circuit a full archive
// scan.
package checkpoint

import (
	"context"
	"database/sql"

	"github.com/notnil/chess"

	"github.com/arcbishop/chessbench/internal/archive"
	"github.com/arcbishop/chessbench/internal/chessutil"
	"github.com/arcbishop/chessbench/internal/events"
	"github.com/arcbishop/chessbench/internal/movecodec"
	"github.com/arcbishop/chessbench/internal/wberr"
)

const (
	hashSeed        uint64 = 0x123456789ABCDEF0
	gameBatchSize          = 50_000
	snapshotStride         = 8   // emit a checkpoint every 8 plies
	insertBatchSize        = 200 // stay under SQLite's parameter limit
)

// mix64 is the avalanche step applied once per piece-color bitboard.
func mix64(s, v uint64) uint64 {
	s = s + v*0x9E3779B97F4A7C15
	s ^= s >> 30
	s = s * 0xBF58476D1CE4E5B9
	s ^= s >> 27
	s = s * 0x94D049BB133111EB
	s ^= s >> 31
	return s
}

// BoardHash computes a deterministic, collision-tolerant position hash,
// folding the 12 piece-color bitboards in the fixed order chessutil.
// Bitboards returns (WP, BP, WN, BN, WB, BB, WR, BR, WQ, BQ, WK, BK).
// Collisions are harmless: the search path re-verifies every candidate
// with a full position match.
func BoardHash(pos *chess.Position) uint64 {
	s := hashSeed
	for _, bb := range chessutil.Bitboards(pos) {
		s = mix64(s, bb)
	}
	return s
}

type gameRow struct {
	id    int64
	moves []byte
	fen   sql.NullString
}

// BuildCheckpoints scans every game in db in key-set batches, emitting a
// checkpoint row at ply 0 and then every snapshotStride plies along the
// main line. It returns the number of rows inserted.
func BuildCheckpoints(ctx context.Context, db *archive.DB, sink events.Sink, sessionID string) (n int64, err error) {
	fan := events.New(sink)
	defer func() {
		// Best-effort terminal event so UI progress bars clear even when
		// the build fails partway.
		if err != nil {
			_ = fan.EmitProgress(events.Progress{Progress: 100, ID: sessionID, Finished: true})
		}
	}()

	if err := db.SetBulkIngestPragmas(); err != nil {
		return 0, err
	}

	var total int64
	var inserted int64

	row := db.QueryRow(`SELECT COUNT(*) FROM games`)
	if err := row.Scan(&total); err != nil {
		return 0, wberr.Wrap(wberr.Io, "counting games", err)
	}

	if total == 0 {
		_ = fan.EmitProgress(events.Progress{Progress: 100, ID: sessionID, Finished: true})
		return 0, nil
	}

	var lastID int64
	var processed int64
	var pendingRows [][4]any

	flush := func() error {
		if len(pendingRows) == 0 {
			return nil
		}
		for len(pendingRows) > 0 {
			n := insertBatchSize
			if n > len(pendingRows) {
				n = len(pendingRows)
			}
			if err := insertCheckpointBatch(db, pendingRows[:n]); err != nil {
				return err
			}
			inserted += int64(n)
			pendingRows = pendingRows[n:]
		}
		return nil
	}

	for {
		select {
		case <-ctx.Done():
			_ = flush()
			return inserted, ctx.Err()
		default:
		}

		rows, err := db.Query(
			`SELECT id, moves, fen FROM games WHERE id > ? ORDER BY id ASC LIMIT ?`,
			lastID, gameBatchSize)
		if err != nil {
			return inserted, wberr.Wrap(wberr.Io, "scanning games for checkpoint build", err)
		}

		batch := make([]gameRow, 0, gameBatchSize)
		for rows.Next() {
			var g gameRow
			if err := rows.Scan(&g.id, &g.moves, &g.fen); err != nil {
				continue
			}
			batch = append(batch, g)
		}
		rows.Close()

		if len(batch) == 0 {
			break
		}
		lastID = batch[len(batch)-1].id

		for _, g := range batch {
			startFEN := chessutil.StartingFEN
			if g.fen.Valid && g.fen.String != "" {
				startFEN = g.fen.String
			}
			pos, err := chessutil.ParseFEN(startFEN)
			if err != nil {
				continue // a row that fails to decode is skipped, never fatal
			}

			pendingRows = append(pendingRows, [4]any{g.id, 0, int64(BoardHash(pos)), int(pos.Turn())})

			it := movecodec.NewMainLineIter(g.moves, pos)
			ply := 0
			for {
				step, ok := it.Next()
				if !ok {
					break
				}
				ply++
				if ply%snapshotStride == 0 {
					pendingRows = append(pendingRows, [4]any{
						g.id, ply, int64(BoardHash(step.Pos)), int(step.Pos.Turn()),
					})
				}
			}

			if len(pendingRows) >= insertBatchSize {
				if err := flush(); err != nil {
					return inserted, err
				}
			}
		}

		processed += int64(len(batch))
		pct := int(float64(processed) / float64(total) * 100)
		_ = fan.EmitProgress(events.Progress{Progress: pct, ID: sessionID, Finished: false})

		if len(batch) < gameBatchSize {
			break
		}
	}

	if err := flush(); err != nil {
		return inserted, err
	}
	_ = fan.EmitProgress(events.Progress{Progress: 100, ID: sessionID, Finished: true})
	return inserted, nil
}

func insertCheckpointBatch(db *archive.DB, rows [][4]any) error {
	if len(rows) == 0 {
		return nil
	}
	query := `INSERT OR IGNORE INTO game_position_checkpoints (game_id, ply, board_hash, turn) VALUES `
	args := make([]any, 0, len(rows)*4)
	for i, r := range rows {
		if i > 0 {
			query += ", "
		}
		query += "(?, ?, ?, ?)"
		args = append(args, r[0], r[1], r[2], r[3])
	}
	_, err := db.Exec(query, args...)
	if err != nil {
		return wberr.Wrap(wberr.Io, "inserting checkpoint batch", err)
	}
	return nil
}

// Candidates fetches distinct game_ids from game_position_checkpoints
// matching (board_hash, turn), used as the Exact-query fast path. It
// returns ok=false if more than 350_000 candidates exist (too many to
// usefully restrict the main scan).
func Candidates(db *archive.DB, hash uint64, turn chess.Color) (ids []int64, ok bool, err error) {
	const maxCandidates = 350_000

	var count int64
	if err := db.QueryRow(
		`SELECT COUNT(DISTINCT game_id) FROM game_position_checkpoints WHERE board_hash = ? AND turn = ?`,
		int64(hash), int(turn),
	).Scan(&count); err != nil {
		return nil, false, wberr.Wrap(wberr.Io, "counting checkpoint candidates", err)
	}
	if count == 0 || count > maxCandidates {
		return nil, false, nil
	}

	rows, err := db.Query(
		`SELECT DISTINCT game_id FROM game_position_checkpoints WHERE board_hash = ? AND turn = ?`,
		int64(hash), int(turn))
	if err != nil {
		return nil, false, wberr.Wrap(wberr.Io, "fetching checkpoint candidates", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			continue
		}
		ids = append(ids, id)
	}
	return ids, true, nil
}
