package search

import (
	"github.com/arcbishop/chessbench/internal/chessutil"
	"github.com/arcbishop/chessbench/internal/fingerprint"
	"github.com/arcbishop/chessbench/internal/posquery"
)

// nextMoveAfterMatch decodes a single game's main line looking for the
// first ply matching q, and reports the SAN of the move played immediately
// after it. A match at the game's final position (no move follows) reports
// "*" rather than ok=false, distinguishing "matched, but the game ended
// here" from "never matched".
//
// The scan applies the same reachability pruning posquery.Query.
// IsReachableBy already encodes (material is monotone non-increasing, pawn
// homes only clear): once the fingerprint at a ply can no longer reach the
// query's fingerprint, no later ply can either, so the loop returns at
// that ply. Because decodedMainLine hands back the whole decoded
// line up front (see movecache.go), this costs nothing beyond the loop
// itself — the expensive part, legal move generation at every ply, already
// happened (and was cached) by the time pruning kicks in.
func nextMoveAfterMatch(archivePath string, gameID int64, blob []byte, startFEN string, q *posquery.Query) (move string, ok bool, err error) {
	start, err := chessutil.ParseFEN(startFEN)
	if err != nil {
		return "", false, err
	}

	if q.Matches(start) {
		steps := decodedMainLine(archivePath, gameID, start, blob)
		if len(steps) == 0 {
			return "*", true, nil
		}
		return steps[0].SAN, true, nil
	}

	steps := decodedMainLine(archivePath, gameID, start, blob)
	qWhite, qBlack := q.Material()
	for i, step := range steps {
		w, b := fingerprint.Material(step.Pos)
		if !fingerprint.MaterialReachable(w, b, qWhite, qBlack) {
			return "", false, nil
		}
		ph := fingerprint.PawnHome(step.Pos)
		if !q.IsReachableBy(w, b, ph) {
			return "", false, nil
		}
		if q.Matches(step.Pos) {
			if i+1 < len(steps) {
				return steps[i+1].SAN, true, nil
			}
			return "*", true, nil
		}
	}
	return "", false, nil
}
