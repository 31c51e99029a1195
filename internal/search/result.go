package search

import "database/sql"

// MoveStat is one row of next-move statistics: how games that reached the
// query's position continued.
type MoveStat struct {
	Move      string
	WhiteWins int
	BlackWins int
	Draws     int
}

// NormalizedGame is one hydrated archive row: a game joined with its
// white/black player, event, and site records.
type NormalizedGame struct {
	ID         int64
	White      string
	Black      string
	Event      string
	Site       string
	Date       string
	Result     string
	PlyCount   int
	WhiteElo   *int
	BlackElo   *int
	AverageElo int

	// whiteID/blackID/eventID/siteID carry the raw foreign keys from the
	// scan through to hydrate, which resolves them into the White/Black/
	// Event/Site names above and then has no further use for them.
	whiteID, blackID int64
	eventID, siteID  sql.NullInt64
}

// Result is a search_position response: the aggregated per-move
// statistics and the hydrated, sorted, bounded game list.
type Result struct {
	Stats []MoveStat
	Games []NormalizedGame
}

// truncate returns a copy of r with Games cut down to limit, leaving
// Stats untouched; the cache stores the non-truncated result.
func (r Result) truncate(limit int) Result {
	out := Result{Stats: r.Stats}
	if limit >= len(r.Games) {
		out.Games = r.Games
		return out
	}
	out.Games = r.Games[:limit]
	return out
}

func eloOrZero(p *int) int {
	if p == nil {
		return 0
	}
	return *p
}
