package search

import (
	"sort"
	"strings"

	"github.com/arcbishop/chessbench/internal/archive"
	"github.com/arcbishop/chessbench/internal/wberr"
)

// hydrate resolves the player/event/site foreign keys folded up by the scan
// into display names, joining games with white/black player, event, and
// site, mutating games in place. It batches
// the lookups into one query per table rather than one per game.
func hydrate(db *archive.DB, games []NormalizedGame) error {
	if len(games) == 0 {
		return nil
	}

	playerIDs := map[int64]struct{}{}
	eventIDs := map[int64]struct{}{}
	siteIDs := map[int64]struct{}{}
	for _, g := range games {
		playerIDs[g.whiteID] = struct{}{}
		playerIDs[g.blackID] = struct{}{}
		if g.eventID.Valid {
			eventIDs[g.eventID.Int64] = struct{}{}
		}
		if g.siteID.Valid {
			siteIDs[g.siteID.Int64] = struct{}{}
		}
	}

	players, err := namesByID(db, "players", playerIDs)
	if err != nil {
		return err
	}
	events, err := namesByID(db, "events", eventIDs)
	if err != nil {
		return err
	}
	sites, err := namesByID(db, "sites", siteIDs)
	if err != nil {
		return err
	}

	for i := range games {
		g := &games[i]
		g.White = players[g.whiteID]
		g.Black = players[g.blackID]
		if g.eventID.Valid {
			g.Event = events[g.eventID.Int64]
		}
		if g.siteID.Valid {
			g.Site = sites[g.siteID.Int64]
		}
	}
	return nil
}

func namesByID(db *archive.DB, table string, ids map[int64]struct{}) (map[int64]string, error) {
	out := make(map[int64]string, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	ordered := make([]int64, 0, len(ids))
	for id := range ids {
		ordered = append(ordered, id)
	}

	for start := 0; start < len(ordered); start += idChunkSize {
		end := start + idChunkSize
		if end > len(ordered) {
			end = len(ordered)
		}
		chunk := ordered[start:end]

		placeholders := make([]string, len(chunk))
		args := make([]any, len(chunk))
		for i, id := range chunk {
			placeholders[i] = "?"
			args[i] = id
		}
		query := "SELECT id, name FROM " + table + " WHERE id IN (" + strings.Join(placeholders, ",") + ")"
		rows, err := db.Query(query, args...)
		if err != nil {
			return nil, wberr.Wrap(wberr.Io, "hydrating "+table, err)
		}
		if err := func() error {
			defer rows.Close()
			for rows.Next() {
				var id int64
				var name string
				if err := rows.Scan(&id, &name); err != nil {
					continue
				}
				out[id] = name
			}
			return nil
		}(); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// sortGames orders games by the requested field and direction, done in Go
// rather than SQL: the hydrated list was assembled by
// merging results across several chunked id-batch queries, so no single SQL
// ORDER BY ever saw the complete set to sort against.
func sortGames(games []NormalizedGame, order SortOrder) {
	less := func(i, j int) bool {
		a, b := games[i], games[j]
		switch order.Field {
		case SortID:
			return a.ID < b.ID
		case SortDate:
			return a.Date < b.Date
		case SortWhiteElo:
			return eloOrZero(a.WhiteElo) < eloOrZero(b.WhiteElo)
		case SortBlackElo:
			return eloOrZero(a.BlackElo) < eloOrZero(b.BlackElo)
		case SortPlyCount:
			return a.PlyCount < b.PlyCount
		default: // SortAverageElo
			return a.AverageElo < b.AverageElo
		}
	}
	if order.Desc {
		inner := less
		less = func(i, j int) bool { return inner(j, i) }
	}
	sort.SliceStable(games, less)
}
