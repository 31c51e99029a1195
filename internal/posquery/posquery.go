// Package posquery implements the two position-query predicates: Exact
// (board+side-to-move+en-passant equality, castling rights intentionally
// excluded) and Partial (per-plane subset matching), plus the
// reachability pruning used to cut a forward scan short once a query can
// no longer possibly match.
package posquery

import (
	"math/bits"

	"github.com/notnil/chess"

	"github.com/arcbishop/chessbench/internal/chessutil"
	"github.com/arcbishop/chessbench/internal/fingerprint"
	"github.com/arcbishop/chessbench/internal/wberr"
)

// Kind distinguishes the two query shapes.
type Kind int

const (
	Exact Kind = iota
	Partial
)

// Planes is the piece-kind/color-occupancy abstraction a Partial query is
// matched against: one bitboard per piece kind (merged across color) plus
// the two color-occupancy bitboards, bit i = square i (A1=0 .. H8=63). A
// query plane that is empty places no constraint; a non-empty query plane
// must be a subset of the tested plane of the same name.
type Planes struct {
	Kings, Queens, Rooks, Bishops, Knights, Pawns uint64
	White, Black                                  uint64
}

// PlanesOf derives Planes from a concrete position.
func PlanesOf(pos *chess.Position) Planes {
	bb := chessutil.Bitboards(pos)
	return Planes{
		Kings:   bb[chessutil.SlotWK] | bb[chessutil.SlotBK],
		Queens:  bb[chessutil.SlotWQ] | bb[chessutil.SlotBQ],
		Rooks:   bb[chessutil.SlotWR] | bb[chessutil.SlotBR],
		Bishops: bb[chessutil.SlotWB] | bb[chessutil.SlotBB],
		Knights: bb[chessutil.SlotWN] | bb[chessutil.SlotBN],
		Pawns:   bb[chessutil.SlotWP] | bb[chessutil.SlotBP],
		White: bb[chessutil.SlotWP] | bb[chessutil.SlotWN] | bb[chessutil.SlotWB] |
			bb[chessutil.SlotWR] | bb[chessutil.SlotWQ] | bb[chessutil.SlotWK],
		Black: bb[chessutil.SlotBP] | bb[chessutil.SlotBN] | bb[chessutil.SlotBB] |
			bb[chessutil.SlotBR] | bb[chessutil.SlotBQ] | bb[chessutil.SlotBK],
	}
}

// subsetOf reports whether every bit set in sub is also set in of,
// treating an empty sub as trivially satisfied ("no constraint").
func subsetOf(sub, of uint64) bool {
	return sub&^of == 0
}

func (p Planes) subsetOfTested(t Planes) bool {
	return subsetOf(p.Kings, t.Kings) &&
		subsetOf(p.Queens, t.Queens) &&
		subsetOf(p.Rooks, t.Rooks) &&
		subsetOf(p.Bishops, t.Bishops) &&
		subsetOf(p.Knights, t.Knights) &&
		subsetOf(p.Pawns, t.Pawns) &&
		subsetOf(p.White, t.White) &&
		subsetOf(p.Black, t.Black)
}

// Query is a compiled position query: either Exact (built from a single
// reference position) or Partial (built from a Planes subset). Material is
// always populated (from the reference position for Exact, from the
// caller for Partial); PawnHome is populated only for Exact. IsReachableBy
// prunes with them without re-deriving them.
type Query struct {
	kind     Kind
	exact    *chess.Position // full reference position, only set for Exact
	exactBB  [12]uint64      // the reference position's piece bitboards
	planes   Planes          // only meaningful for Partial
	material [2]uint8        // [white, black] — used by both kinds for reachability
	pawnHome uint16          // only used by Exact reachability
}

// NewExact builds an Exact query from a FEN string. Returns wberr with Kind
// InvalidFen if fen doesn't parse, or IllegalStart if it parses but
// describes a position without exactly one king per side.
func NewExact(fen string) (*Query, error) {
	pos, err := chessutil.ParseFEN(fen)
	if err != nil {
		return nil, wberr.Wrap(wberr.InvalidFen, "parsing query FEN", err)
	}
	bb := chessutil.Bitboards(pos)
	if bits.OnesCount64(bb[chessutil.SlotWK]) != 1 || bits.OnesCount64(bb[chessutil.SlotBK]) != 1 {
		return nil, wberr.New(wberr.IllegalStart, "query start position must have one king per side")
	}

	white, black, pawnHome := fingerprint.Of(pos)
	return &Query{
		kind:     Exact,
		exact:    pos,
		exactBB:  bb,
		material: [2]uint8{white, black},
		pawnHome: pawnHome,
	}, nil
}

// NewPartial builds a Partial query from an explicit plane subset and the
// minimum (white, black) material the target position requires.
func NewPartial(planes Planes, material [2]uint8) *Query {
	return &Query{kind: Partial, planes: planes, material: material}
}

// Kind reports whether the query is Exact or Partial.
func (q *Query) Kind() Kind { return q.kind }

// Material returns the query's (white, black) reference material.
func (q *Query) Material() (white, black uint8) { return q.material[0], q.material[1] }

// Matches reports whether pos satisfies the query.
func (q *Query) Matches(pos *chess.Position) bool {
	switch q.kind {
	case Exact:
		return q.exactMatches(pos)
	case Partial:
		return q.planes.subsetOfTested(PlanesOf(pos))
	default:
		return false
	}
}

func (q *Query) exactMatches(pos *chess.Position) bool {
	if pos.Turn() != q.exact.Turn() {
		return false
	}
	if pos.EnPassantSquare() != q.exact.EnPassantSquare() {
		return false
	}
	return chessutil.Bitboards(pos) == q.exactBB
}

// IsReachableBy reports whether a game at the given (material, pawn_home)
// fingerprint could still reach a position matching q later in the game:
// Exact reachability checks both material and pawn-home, Partial checks
// material only (a partial query doesn't pin pawn structure).
func (q *Query) IsReachableBy(currentWhite, currentBlack uint8, currentPawnHome uint16) bool {
	switch q.kind {
	case Exact:
		return fingerprint.Reachable(currentWhite, currentBlack, currentPawnHome,
			q.material[0], q.material[1], q.pawnHome)
	case Partial:
		return fingerprint.MaterialReachable(currentWhite, currentBlack, q.material[0], q.material[1])
	default:
		return false
	}
}
