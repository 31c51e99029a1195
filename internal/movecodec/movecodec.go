// Package movecodec decodes the per-game binary move blob: a byte stream
// over a starting position where values below 251 index into the current
// position's legal-move list (in the order the chess library generates
// them) and values 251-254 are reserved tokens for NAGs, comments, and
// variations.
//
// The codec is the only binary format chessbench owns end to end; it must
// never panic on truncated or adversarial input. A game archive may be
// millions of rows wide, and a single corrupt blob must not take down a
// batch scan.
package movecodec

import (
	"encoding/binary"

	"github.com/notnil/chess"

	"github.com/arcbishop/chessbench/internal/chessutil"
)

const (
	tokenNAG     byte = 251
	tokenComment byte = 252
	tokenEnd     byte = 253
	tokenStart   byte = 254
)

// Step is one decoded main-line ply: the position reached, the SAN of the
// move that produced it, and the move itself.
type Step struct {
	Pos  *chess.Position
	SAN  string
	Move *chess.Move
}

// MainLineIter walks the main line of a move blob, applying each decoded
// move to an internal running position. Zero value is not usable; create
// with NewMainLineIter.
type MainLineIter struct {
	blob []byte
	i    int
	cur  *chess.Position
	done bool
}

// NewMainLineIter creates an iterator over blob starting at start. The
// library's positions are immutable (Update returns a fresh one), so the
// iterator can hold start directly.
func NewMainLineIter(blob []byte, start *chess.Position) *MainLineIter {
	return &MainLineIter{blob: blob, cur: start}
}

// Next decodes the next main-line step, skipping NAGs, comments, and
// variations along the way. It returns (Step{}, false) once the blob is
// exhausted, an illegal move index is encountered, or a comment header is
// truncated — in every case iteration simply stops, it never panics.
func (it *MainLineIter) Next() (Step, bool) {
	if it.done {
		return Step{}, false
	}

	for it.i < len(it.blob) {
		b := it.blob[it.i]

		switch {
		case b == tokenNAG:
			it.i++
			if it.i >= len(it.blob) {
				it.done = true
				return Step{}, false
			}
			it.i++ // consume the annotation id byte

		case b == tokenComment:
			next, ok := skipComment(it.blob, it.i)
			if !ok {
				it.done = true
				return Step{}, false
			}
			it.i = next

		case b == tokenEnd:
			// Stray terminator outside any variation: tolerated, advance
			// and keep reading the main line.
			it.i++

		case b == tokenStart:
			next, ok := skipVariation(it.blob, it.i+1)
			if !ok {
				it.done = true
				return Step{}, false
			}
			it.i = next

		default:
			legal := it.cur.ValidMoves()
			idx := int(b)
			if idx >= len(legal) {
				it.done = true
				return Step{}, false
			}
			mv := legal[idx]
			san := chessutil.SAN(it.cur, mv)
			it.cur = it.cur.Update(mv)
			it.i++
			return Step{Pos: it.cur, SAN: san, Move: mv}, true
		}
	}

	it.done = true
	return Step{}, false
}

// skipComment consumes a COMMENT token's 8-byte big-endian length prefix
// and its payload, starting at the index of the 252 byte itself. Returns
// ok=false if the header or payload would run past the end of blob.
func skipComment(blob []byte, i int) (next int, ok bool) {
	i++ // past the 252 marker
	if i+8 > len(blob) {
		return 0, false
	}
	length := binary.BigEndian.Uint64(blob[i : i+8])
	i += 8
	remaining := uint64(len(blob) - i)
	if length > remaining {
		return 0, false
	}
	return i + int(length), true
}

// skipVariation consumes bytes up to and including the END token (253)
// matching the START token (254) whose body begins at i, honoring nested
// variations, NAGs, and comments inside it. It does not decode moves
// (skipped move-index bytes are simply one byte wide, regardless of
// position), so it needs no running Position.
func skipVariation(blob []byte, i int) (next int, ok bool) {
	depth := 1
	for i < len(blob) {
		b := blob[i]
		switch {
		case b == tokenStart:
			depth++
			i++
		case b == tokenEnd:
			depth--
			i++
			if depth == 0 {
				return i, true
			}
		case b == tokenComment:
			n, ok2 := skipComment(blob, i)
			if !ok2 {
				return 0, false
			}
			i = n
		case b == tokenNAG:
			i++
			if i >= len(blob) {
				return 0, false
			}
			i++
		default:
			i++
		}
	}
	return 0, false
}

// IterateMainLine collects every step of the main line into a slice. Most
// callers that want the whole line at once should use this rather than
// driving MainLineIter by hand.
func IterateMainLine(blob []byte, start *chess.Position) []Step {
	it := NewMainLineIter(blob, start)
	var steps []Step
	for {
		step, ok := it.Next()
		if !ok {
			break
		}
		steps = append(steps, step)
	}
	return steps
}

// ExtractMainLine returns only the applied moves of the main line, in
// order — used for re-display where SAN/position snapshots aren't needed.
func ExtractMainLine(blob []byte, start *chess.Position) []*chess.Move {
	steps := IterateMainLine(blob, start)
	moves := make([]*chess.Move, len(steps))
	for i, s := range steps {
		moves[i] = s.Move
	}
	return moves
}

// DecodeSingle is the fast path used when an archive is known to be
// token-free: it treats b as a bare legal-move index with no NAG/comment/
// variation handling. Returns ok=false for a reserved-range or
// out-of-range byte.
func DecodeSingle(b byte, pos *chess.Position) (*chess.Move, bool) {
	if b >= tokenNAG {
		return nil, false
	}
	legal := pos.ValidMoves()
	idx := int(b)
	if idx >= len(legal) {
		return nil, false
	}
	return legal[idx], true
}
