package search

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/arcbishop/chessbench/internal/archive"
	"github.com/arcbishop/chessbench/internal/checkpoint"
	"github.com/arcbishop/chessbench/internal/chessutil"
	"github.com/arcbishop/chessbench/internal/events"
	"github.com/arcbishop/chessbench/internal/wberr"
)

// searchAdmission bounds concurrent heavy archive scans process-wide. A
// scan that can't acquire immediately waits; it never fails purely for
// lack of a permit.
var searchAdmission = semaphore.NewWeighted(2)

const (
	batchSizeNoFilter = 200_000
	batchSizeFiltered = 50_000
	maxBatches        = 50
	idChunkSize       = 900 // stays under SQLite's default bound-parameter limit
	progressStepPct   = 5
	maxScanWorkers    = 8
)

// Execute runs q against db, returning a bounded, hydrated, sorted
// result. Progress and cancellation are reported through sink via
// a Fanout scoped to this call; sink may be nil, in which case progress
// events are simply dropped.
func Execute(ctx context.Context, db *archive.DB, q *Query, sink events.Sink) (Result, error) {
	if err := searchAdmission.Acquire(ctx, 1); err != nil {
		return Result{}, wberr.Wrap(wberr.SearchStopped, "waiting for search admission", err)
	}
	defer searchAdmission.Release(1)

	key := q.cacheKey()
	if cached, ok := globalCache.get(key); ok {
		return cached.truncate(q.GameDetailsLimit), nil
	}

	cancelFlag := cancelReg.begin(q.TabID)

	fan := events.New(sink)

	full, err := scan(ctx, db, q, fan, cancelFlag)
	if err != nil {
		// Best-effort terminal event so UI progress bars clear even on
		// failure or cancellation.
		_ = fan.EmitProgress(events.Progress{Progress: 100, ID: q.TabID, Finished: true})
		return Result{}, err
	}
	if err := hydrate(db, full.Games); err != nil {
		_ = fan.EmitProgress(events.Progress{Progress: 100, ID: q.TabID, Finished: true})
		return Result{}, err
	}
	sortGames(full.Games, q.Sort)

	globalCache.put(key, full)
	return full.truncate(q.GameDetailsLimit), nil
}

// gameRow is one raw games-table row, as much as the search loop needs
// before hydration fills in player/event/site names.
type gameRow struct {
	id            int64
	whiteID       int64
	blackID       int64
	eventID       sql.NullInt64
	siteID        sql.NullInt64
	date          sql.NullString
	result        sql.NullString
	plyCount      int
	whiteElo      sql.NullInt64
	blackElo      sql.NullInt64
	moves         []byte
	fen           sql.NullString
	whiteMaterial uint8
	blackMaterial uint8
	pawnHome      uint16
}

func (g gameRow) startFEN() string {
	if g.fen.Valid && g.fen.String != "" {
		return g.fen.String
	}
	return chessutil.StartingFEN
}

// scan performs the checkpoint-assisted or full archive scan and returns
// the complete (untruncated) result.
func scan(ctx context.Context, db *archive.DB, q *Query, fan *events.Fanout, cancelFlag *atomic.Bool) (Result, error) {
	if q.Spec.Exact {
		pos, err := chessutil.ParseFEN(q.Spec.FEN)
		if err == nil {
			hash := checkpoint.BoardHash(pos)
			ids, ok, err := checkpoint.Candidates(db, hash, pos.Turn())
			if err != nil {
				return Result{}, err
			}
			if ok {
				return scanCandidates(ctx, db, q, ids, fan, cancelFlag)
			}
		}
	}
	return scanFull(ctx, db, q, fan, cancelFlag)
}

// scanCandidates restricts the scan to a checkpoint-derived id set,
// chunked to stay under SQLite's bound-parameter limit. The normal
// batch-size/keyset-pagination scheme doesn't apply here:
// checkpoint.Candidates already bounds the candidate set to at most 350_000
// rows.
func scanCandidates(ctx context.Context, db *archive.DB, q *Query, ids []int64, fan *events.Fanout, cancelFlag *atomic.Bool) (Result, error) {
	acc := newAccumulator()
	total := len(ids)
	lastPct := -1

	for start := 0; start < len(ids); start += idChunkSize {
		if cancelFlag.Load() {
			return Result{}, wberr.New(wberr.SearchStopped, "search cancelled by a newer search on this tab")
		}
		select {
		case <-ctx.Done():
			return Result{}, wberr.Wrap(wberr.SearchStopped, "search context cancelled", ctx.Err())
		default:
		}

		end := start + idChunkSize
		if end > len(ids) {
			end = len(ids)
		}
		chunk := ids[start:end]

		rows, err := fetchByIDs(db, q, chunk)
		if err != nil {
			return Result{}, err
		}
		if err := foldBatch(q, rows, acc); err != nil {
			return Result{}, err
		}

		pct := (end * 100) / max1(total)
		if pct-lastPct >= progressStepPct || end == total {
			_ = fan.EmitProgress(events.Progress{Progress: pct, ID: q.TabID, Finished: end == total})
			lastPct = pct
		}
	}

	return acc.result(), nil
}

// scanFull walks the whole games table in keyset-paginated batches:
// 200_000 rows/batch with no metadata filter, 50_000 with one, capped at
// 50 batches.
func scanFull(ctx context.Context, db *archive.DB, q *Query, fan *events.Fanout, cancelFlag *atomic.Bool) (Result, error) {
	acc := newAccumulator()
	batchSize := batchSizeNoFilter
	if q.Filters.hasAny() {
		batchSize = batchSizeFiltered
	}

	var total int64
	countClauses, countArgs := q.Filters.whereClause()
	countClauses = append(countClauses, materialPrefilterClause(q))
	countArgs = append(countArgs, materialPrefilterArgs(q)...)
	countQuery := "SELECT COUNT(*) FROM games" + whereSQL(countClauses)
	if err := db.QueryRow(countQuery, countArgs...).Scan(&total); err != nil {
		return Result{}, wberr.Wrap(wberr.Io, "counting candidate games", err)
	}
	if total == 0 {
		_ = fan.EmitProgress(events.Progress{Progress: 100, ID: q.TabID, Finished: true})
		return acc.result(), nil
	}

	var lastID int64
	var processed int64
	lastPct := -1

	for batch := 0; batch < maxBatches; batch++ {
		if cancelFlag.Load() {
			return Result{}, wberr.New(wberr.SearchStopped, "search cancelled by a newer search on this tab")
		}
		select {
		case <-ctx.Done():
			return Result{}, wberr.Wrap(wberr.SearchStopped, "search context cancelled", ctx.Err())
		default:
		}

		clauses, args := q.Filters.whereClause()
		clauses = append(clauses, "id > ?", materialPrefilterClause(q))
		args = append(args, lastID)
		args = append(args, materialPrefilterArgs(q)...)

		query := fmt.Sprintf(
			`SELECT id, white_id, black_id, event_id, site_id, date, result, ply_count,
			        white_elo, black_elo, moves, fen, white_material, black_material, pawn_home
			 FROM games%s ORDER BY id ASC LIMIT ?`, whereSQL(clauses))
		args = append(args, batchSize)

		rows, err := db.Query(query, args...)
		if err != nil {
			return Result{}, wberr.Wrap(wberr.Io, "scanning games", err)
		}
		batchRows, err := scanGameRows(rows)
		if err != nil {
			return Result{}, err
		}
		if len(batchRows) == 0 {
			break
		}
		lastID = batchRows[len(batchRows)-1].id

		if err := foldBatch(q, batchRows, acc); err != nil {
			return Result{}, err
		}

		processed += int64(len(batchRows))
		pct := int(processed * 100 / total)
		if pct-lastPct >= progressStepPct || processed >= total {
			_ = fan.EmitProgress(events.Progress{Progress: pct, ID: q.TabID, Finished: processed >= total})
			lastPct = pct
		}

		if len(batchRows) < batchSize {
			break
		}
	}

	return acc.result(), nil
}

// materialPrefilterClause expresses the reachability material check as a
// SQL predicate against the games table's persisted starting fingerprint
// (idx_games_material_home), cutting rows the in-process pruning would
// reject anyway before ever fetching their move blob.
func materialPrefilterClause(q *Query) string {
	return "white_material >= ? AND black_material >= ?"
}

func materialPrefilterArgs(q *Query) []any {
	w, b := q.pos.Material()
	return []any{w, b}
}

func whereSQL(clauses []string) string {
	if len(clauses) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(clauses, " AND ")
}

func fetchByIDs(db *archive.DB, q *Query, ids []int64) ([]gameRow, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	placeholders := make([]string, len(ids))
	args := make([]any, 0, len(ids)+4)
	for i, id := range ids {
		placeholders[i] = "?"
		args = append(args, id)
	}
	clauses := []string{"id IN (" + strings.Join(placeholders, ",") + ")"}
	filterClauses, filterArgs := q.Filters.whereClause()
	clauses = append(clauses, filterClauses...)
	args = append(args, filterArgs...)

	query := fmt.Sprintf(
		`SELECT id, white_id, black_id, event_id, site_id, date, result, ply_count,
		        white_elo, black_elo, moves, fen, white_material, black_material, pawn_home
		 FROM games%s`, whereSQL(clauses))
	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, wberr.Wrap(wberr.Io, "fetching checkpoint-candidate games", err)
	}
	return scanGameRows(rows)
}

func scanGameRows(rows *sql.Rows) ([]gameRow, error) {
	defer rows.Close()
	var out []gameRow
	for rows.Next() {
		var g gameRow
		if err := rows.Scan(&g.id, &g.whiteID, &g.blackID, &g.eventID, &g.siteID,
			&g.date, &g.result, &g.plyCount, &g.whiteElo, &g.blackElo, &g.moves, &g.fen,
			&g.whiteMaterial, &g.blackMaterial, &g.pawnHome); err != nil {
			continue // a malformed row is skipped, not fatal
		}
		out = append(out, g)
	}
	return out, nil
}

func max1(n int) int {
	if n <= 0 {
		return 1
	}
	return n
}

// accumulator merges foldBatch's per-batch partial results. The
// matched-game list is capped at maxGameDetailsLimit: move statistics
// still fold over every scanned row, but the game list itself never grows
// past what any GameDetailsLimit request could ask for, so a broad query
// (e.g. the starting position) doesn't hydrate or retain millions of rows
// in memory.
type accumulator struct {
	stats map[string]*MoveStat
	games []NormalizedGame
}

func newAccumulator() *accumulator {
	return &accumulator{stats: map[string]*MoveStat{}}
}

func (a *accumulator) merge(partial partialBatch) {
	for move, s := range partial.stats {
		dst, ok := a.stats[move]
		if !ok {
			dst = &MoveStat{Move: move}
			a.stats[move] = dst
		}
		dst.WhiteWins += s.WhiteWins
		dst.BlackWins += s.BlackWins
		dst.Draws += s.Draws
	}
	if len(a.games) >= maxGameDetailsLimit {
		return
	}
	room := maxGameDetailsLimit - len(a.games)
	if room > len(partial.games) {
		room = len(partial.games)
	}
	a.games = append(a.games, partial.games[:room]...)
}

func (a *accumulator) result() Result {
	stats := make([]MoveStat, 0, len(a.stats))
	for _, s := range a.stats {
		stats = append(stats, *s)
	}
	sort.SliceStable(stats, func(i, j int) bool { return stats[i].Move < stats[j].Move })
	return Result{Stats: stats, Games: a.games}
}

type partialBatch struct {
	stats map[string]*MoveStat
	games []NormalizedGame
}

// foldBatch shards rows across up to maxScanWorkers goroutines, each
// decoding its share of games and reporting a thread-local partial result
// that gets merged into acc once every worker completes.
func foldBatch(q *Query, rows []gameRow, acc *accumulator) error {
	if len(rows) == 0 {
		return nil
	}

	workers := maxScanWorkers
	if workers > len(rows) {
		workers = len(rows)
	}
	chunkSize := (len(rows) + workers - 1) / workers

	partials := make([]partialBatch, workers)
	g := new(errgroup.Group)
	for w := 0; w < workers; w++ {
		w := w
		start := w * chunkSize
		if start >= len(rows) {
			continue
		}
		end := start + chunkSize
		if end > len(rows) {
			end = len(rows)
		}
		g.Go(func() error {
			partials[w] = foldRows(q, rows[start:end])
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	for _, p := range partials {
		acc.merge(p)
	}
	return nil
}

func foldRows(q *Query, rows []gameRow) partialBatch {
	partial := partialBatch{stats: map[string]*MoveStat{}}
	for _, row := range rows {
		move, ok, err := nextMoveAfterMatch(q.ArchivePath, row.id, row.moves, row.startFEN(), q.pos)
		if err != nil || !ok {
			continue
		}

		s, exists := partial.stats[move]
		if !exists {
			s = &MoveStat{Move: move}
			partial.stats[move] = s
		}
		switch row.result.String {
		case "1-0":
			s.WhiteWins++
		case "0-1":
			s.BlackWins++
		case "1/2-1/2":
			s.Draws++
		}

		if len(partial.games) >= maxGameDetailsLimit {
			continue // stats above still fold over every matched row; only the id list is capped
		}
		partial.games = append(partial.games, NormalizedGame{
			ID:         row.id,
			Date:       row.date.String,
			Result:     row.result.String,
			PlyCount:   row.plyCount,
			WhiteElo:   nullIntPtr(row.whiteElo),
			BlackElo:   nullIntPtr(row.blackElo),
			AverageElo: averageElo(nullIntPtr(row.whiteElo), nullIntPtr(row.blackElo)),
			whiteID:    row.whiteID,
			blackID:    row.blackID,
			eventID:    row.eventID,
			siteID:     row.siteID,
		})
	}
	return partial
}

func nullIntPtr(n sql.NullInt64) *int {
	if !n.Valid {
		return nil
	}
	v := int(n.Int64)
	return &v
}

// averageElo rounds the mean of (white, black), treating a missing Elo
// as 0.
func averageElo(white, black *int) int {
	return (eloOrZero(white) + eloOrZero(black) + 1) / 2 // +1 rounds .5 up
}
