// Package search implements the archive search executor: given a position
// query, scans a SQLite-backed game archive, aggregates next-move
// statistics, and returns a ranked, bounded detail set. It shares the
// move-stream codec, fingerprint pruning, and position matching with the
// checkpoint builder, which it consults first for an Exact query.
package search

import (
	"fmt"
	"strings"

	"github.com/arcbishop/chessbench/internal/posquery"
	"github.com/arcbishop/chessbench/internal/wberr"
)

// SortField selects the ranking key for the hydrated game list.
type SortField int

const (
	// SortAverageElo is the default: rounded mean of (white, black) Elo,
	// a missing Elo counting as 0, computed after hydration since it isn't
	// a stored column.
	SortAverageElo SortField = iota
	SortID
	SortDate
	SortWhiteElo
	SortBlackElo
	SortPlyCount
)

// SortOrder bundles the field and direction; the default is AverageElo
// descending.
type SortOrder struct {
	Field SortField
	Desc  bool
}

// DefaultSort is AverageElo descending.
var DefaultSort = SortOrder{Field: SortAverageElo, Desc: true}

func (s SortOrder) key() string {
	return fmt.Sprintf("sort=%d,desc=%v", s.Field, s.Desc)
}

// PositionSpec is the raw, serializable shape of a search position query:
// either an Exact reference FEN or a Partial plane/material subset.
// Search builds its own posquery.Query from this rather than
// taking a pre-built one, so the cache key can be derived without
// introspecting posquery's internals.
type PositionSpec struct {
	Exact    bool
	FEN      string // used when Exact
	Planes   posquery.Planes
	Material [2]uint8
}

func (s PositionSpec) compile() (*posquery.Query, error) {
	if s.Exact {
		if s.FEN == "" {
			return nil, wberr.New(wberr.NoMatchFound, "exact search query has no position")
		}
		return posquery.NewExact(s.FEN)
	}
	if s.Planes == (posquery.Planes{}) {
		return nil, wberr.New(wberr.NoMatchFound, "partial search query has no position")
	}
	return posquery.NewPartial(s.Planes, s.Material), nil
}

func (s PositionSpec) key() string {
	if s.Exact {
		return "E:" + s.FEN
	}
	p := s.Planes
	return fmt.Sprintf("P:%d,%d,%d,%d,%d,%d,%d,%d|%d,%d",
		p.Kings, p.Queens, p.Rooks, p.Bishops, p.Knights, p.Pawns, p.White, p.Black,
		s.Material[0], s.Material[1])
}

// Filters narrows the archive scan by metadata. A nil player pointer or
// empty string means "no constraint". Player1ID filters on the white
// side, Player2ID on the black side.
type Filters struct {
	Player1ID    *int64
	Player2ID    *int64
	DateFrom     string // ISO, inclusive
	DateTo       string // ISO, inclusive
	WantedResult string // "", "1-0", "0-1", or "1/2-1/2"
}

// hasAny reports whether any metadata filter is set, which determines the
// scan's batch size (200_000 rows unfiltered, 50_000 filtered).
func (f Filters) hasAny() bool {
	return f.Player1ID != nil || f.Player2ID != nil ||
		f.DateFrom != "" || f.DateTo != "" || f.WantedResult != ""
}

func (f Filters) key() string {
	var b strings.Builder
	fmt.Fprintf(&b, "p1=%v;p2=%v;from=%s;to=%s;result=%s",
		int64Ptr(f.Player1ID), int64Ptr(f.Player2ID), f.DateFrom, f.DateTo, f.WantedResult)
	return b.String()
}

func int64Ptr(p *int64) string {
	if p == nil {
		return "-"
	}
	return fmt.Sprintf("%d", *p)
}

// whereClause compiles the filters into SQL fragments and bound arguments
// applied against the games table. The player filters are color-pinned:
// Player1ID must match white_id and Player2ID must match black_id, so a
// (Player1ID, Player2ID) pair is a head-to-head with colors fixed, not an
// either-side match.
func (f Filters) whereClause() ([]string, []any) {
	var clauses []string
	var args []any
	if f.Player1ID != nil {
		clauses = append(clauses, "white_id = ?")
		args = append(args, *f.Player1ID)
	}
	if f.Player2ID != nil {
		clauses = append(clauses, "black_id = ?")
		args = append(args, *f.Player2ID)
	}
	if f.DateFrom != "" {
		clauses = append(clauses, "date >= ?")
		args = append(args, f.DateFrom)
	}
	if f.DateTo != "" {
		clauses = append(clauses, "date <= ?")
		args = append(args, f.DateTo)
	}
	if f.WantedResult != "" {
		clauses = append(clauses, "result = ?")
		args = append(args, f.WantedResult)
	}
	return clauses, args
}

const (
	defaultGameDetailsLimit = 20
	maxGameDetailsLimit     = 1000
)

// Query is one compiled search_position request.
type Query struct {
	ArchivePath      string
	TabID            string
	Spec             PositionSpec
	Filters          Filters
	Sort             SortOrder
	GameDetailsLimit int

	pos *posquery.Query
}

// New compiles and validates a Query. GameDetailsLimit is clamped to
// [1, 1000], defaulting to 20 when <= 0.
func New(archivePath, tabID string, spec PositionSpec, filters Filters, sort SortOrder, gameDetailsLimit int) (*Query, error) {
	pos, err := spec.compile()
	if err != nil {
		return nil, err
	}
	if gameDetailsLimit <= 0 {
		gameDetailsLimit = defaultGameDetailsLimit
	}
	if gameDetailsLimit > maxGameDetailsLimit {
		gameDetailsLimit = maxGameDetailsLimit
	}
	return &Query{
		ArchivePath:      archivePath,
		TabID:            tabID,
		Spec:             spec,
		Filters:          filters,
		Sort:             sort,
		GameDetailsLimit: gameDetailsLimit,
		pos:              pos,
	}, nil
}

// cacheKey is the normalized-query-without-limit cache key: the result
// cache is keyed by everything except GameDetailsLimit, since truncation
// happens after the cache lookup.
func (q *Query) cacheKey() string {
	return strings.Join([]string{q.ArchivePath, q.Spec.key(), q.Filters.key(), q.Sort.key()}, "||")
}
