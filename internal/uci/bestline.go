package uci

import (
	"github.com/notnil/chess"

	"github.com/arcbishop/chessbench/internal/chessutil"
	"github.com/arcbishop/chessbench/internal/wberr"
)

// BestLine is one multipv-ranked analysis line, normalized to White's
// perspective.
type BestLine struct {
	Depth   int
	MultiPV int // 1-based rank

	IsMate    bool
	ScoreCP   int
	ScoreMate int

	HasWDL bool
	WDL    [3]int // win/draw/loss, White's perspective

	Nodes uint64
	NPS   uint64

	PVUci []string
	PVSan []string
}

// ParseInfoToBestLine reconstructs the position the engine was analyzing
// (startFEN replayed with playedMoves), walks attrs.PV converting each UCI
// move into the library's legal-move representation, and normalizes the
// score to White's perspective. When Black is to move at the PV start,
// cp/mate are negated and the wdl triple is reversed. Returns a wberr of
// Kind NoMovesFound if the PV is empty or no leading move in it is legal.
func ParseInfoToBestLine(attrs InfoAttrs, startFEN string, playedMoves []string) (BestLine, error) {
	pos, err := chessutil.ParseFEN(startFEN)
	if err != nil {
		return BestLine{}, err
	}
	for _, mvStr := range playedMoves {
		mv, err := chessutil.DecodeUCIMove(pos, mvStr)
		if err != nil {
			return BestLine{}, err
		}
		pos = pos.Update(mv)
	}

	invert := pos.Turn() == chess.Black

	if len(attrs.PV) == 0 {
		return BestLine{}, wberr.New(wberr.NoMovesFound, "empty principal variation")
	}

	var pvUci, pvSan []string
	walker := pos
	for _, mvStr := range attrs.PV {
		mv, err := chessutil.DecodeUCIMove(walker, mvStr)
		if err != nil {
			break // stop at the first move that doesn't apply cleanly
		}
		pvSan = append(pvSan, chessutil.SAN(walker, mv))
		pvUci = append(pvUci, mv.String())
		walker = walker.Update(mv)
	}
	if len(pvUci) == 0 {
		return BestLine{}, wberr.New(wberr.NoMovesFound, "no legal move in principal variation")
	}

	bl := BestLine{
		Depth:     attrs.Depth,
		MultiPV:   attrs.MultiPV,
		IsMate:    attrs.ScoreIsMate,
		ScoreCP:   attrs.ScoreCP,
		ScoreMate: attrs.ScoreMate,
		HasWDL:    attrs.HasWDL,
		WDL:       attrs.WDL,
		Nodes:     attrs.Nodes,
		NPS:       attrs.NPS,
		PVUci:     pvUci,
		PVSan:     pvSan,
	}

	if invert {
		bl.ScoreCP = -bl.ScoreCP
		bl.ScoreMate = -bl.ScoreMate
		if bl.HasWDL {
			bl.WDL[0], bl.WDL[2] = bl.WDL[2], bl.WDL[0]
		}
	}

	return bl, nil
}

// CalculateEffectiveMultiPV clamps requested MultiPV to the number of
// legal moves available at (fen, moves), with a floor of 1.
func CalculateEffectiveMultiPV(requested int, fen string, moves []string) (int, error) {
	pos, err := chessutil.ParseFEN(fen)
	if err != nil {
		return 1, err
	}
	for _, mvStr := range moves {
		mv, err := chessutil.DecodeUCIMove(pos, mvStr)
		if err != nil {
			return 1, err
		}
		pos = pos.Update(mv)
	}

	legalCount := len(pos.ValidMoves())
	if legalCount < 1 {
		legalCount = 1
	}
	if requested < 1 {
		requested = 1
	}
	if requested > legalCount {
		return legalCount, nil
	}
	return requested, nil
}
