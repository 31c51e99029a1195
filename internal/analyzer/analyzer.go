// Package analyzer implements the position-by-position game analysis
// command: walk a played game, analyze every non-terminal position with a
// fresh engine process, annotate sacrifices via the static evaluator, and
// optionally annotate the game's first novelty against a reference
// archive.
package analyzer

import (
	"time"

	"github.com/notnil/chess"

	"github.com/arcbishop/chessbench/internal/analysis"
	"github.com/arcbishop/chessbench/internal/chessutil"
	"github.com/arcbishop/chessbench/internal/engineproc"
	"github.com/arcbishop/chessbench/internal/events"
	"github.com/arcbishop/chessbench/internal/staticeval"
	"github.com/arcbishop/chessbench/internal/uci"
	"github.com/arcbishop/chessbench/internal/wberr"
	"github.com/arcbishop/chessbench/internal/wblog"
)

// sacrificeThreshold is the staticeval.IsSacrifice default.
const sacrificeThreshold = 100

// NoveltyOracle answers whether a position is already present in a
// reference archive; consumed through this narrow interface, backed in
// practice by internal/search's search_position command.
type NoveltyOracle interface {
	InArchive(fen string) (bool, error)
}

// PositionEntry is one position chessbench's game analyzer walks.
type PositionEntry struct {
	FEN         string
	MovesPrefix []string
	IsSacrifice bool
}

// MoveAnalysis is the per-position analyze_game result returned to the
// caller.
type MoveAnalysis struct {
	FEN         string
	MovesPrefix []string
	IsSacrifice bool
	Novelty     bool
	BestLines   []uci.BestLine
	Err         error
}

// Request bundles analyze_game's inputs.
type Request struct {
	StartFEN   string
	Moves      []string
	EnginePath string
	EngineArgs []string
	Go         uci.GoMode
	UCIOptions map[string]string
	MultiPV    int

	Reversed          bool
	AnnotateNovelties bool
	Oracle            NoveltyOracle

	SessionID string
	Sink      events.Sink
	Log       *wblog.Logger
}

// Analyze runs analyze_game end to end.
func Analyze(req Request) ([]MoveAnalysis, error) {
	entries, err := buildPositionList(req.StartFEN, req.Moves)
	if err != nil {
		return nil, err
	}

	order := entries
	if req.Reversed {
		order = reversed(entries)
	}

	fan := events.New(req.Sink)
	results := make([]MoveAnalysis, len(order))
	n := len(order)
	for i, entry := range order {
		results[i] = analyzeOne(req, entry)
		_ = fan.EmitProgress(events.Progress{
			Progress: int(float64(i+1) / float64(n) * 100),
			ID:       req.SessionID,
			Finished: i == n-1,
		})
	}
	if n == 0 {
		_ = fan.EmitProgress(events.Progress{Progress: 100, ID: req.SessionID, Finished: true})
	}

	// Restore original order before novelty annotation and return.
	if req.Reversed {
		results = reversed(results)
	}

	if req.AnnotateNovelties && req.Oracle != nil {
		for i := range results {
			inArchive, err := req.Oracle.InArchive(results[i].FEN)
			if err != nil {
				break
			}
			if !inArchive {
				results[i].Novelty = true
				break
			}
		}
	}

	return results, nil
}

func buildPositionList(startFEN string, moves []string) ([]PositionEntry, error) {
	pos, err := chessutil.ParseFEN(startFEN)
	if err != nil {
		return nil, err
	}

	entries := []PositionEntry{{FEN: pos.String()}}

	prefix := make([]string, 0, len(moves))
	for _, mvStr := range moves {
		mv, err := chessutil.DecodeUCIMove(pos, mvStr)
		if err != nil {
			return nil, err
		}

		prev := pos
		pos = pos.Update(mv)
		prefix = append(prefix, mvStr)

		if pos.Status() != chess.NoMethod {
			continue
		}

		entries = append(entries, PositionEntry{
			FEN:         pos.String(),
			MovesPrefix: append([]string(nil), prefix...),
			IsSacrifice: staticeval.IsSacrifice(prev, pos, sacrificeThreshold),
		})
	}

	return entries, nil
}

func reversed[T any](items []T) []T {
	out := make([]T, len(items))
	for i, e := range items {
		out[len(items)-1-i] = e
	}
	return out
}

func analyzeOne(req Request, entry PositionEntry) MoveAnalysis {
	lines, err := analyzeOnePosition(req.EnginePath, req.EngineArgs, entry.FEN, req.UCIOptions, req.MultiPV, req.Go, req.Log)
	if err != nil {
		// A per-position failure yields a placeholder; the game as a
		// whole still returns.
		return MoveAnalysis{
			FEN:         entry.FEN,
			MovesPrefix: entry.MovesPrefix,
			IsSacrifice: entry.IsSacrifice,
			Err:         err,
		}
	}
	return MoveAnalysis{
		FEN:         entry.FEN,
		MovesPrefix: entry.MovesPrefix,
		IsSacrifice: entry.IsSacrifice,
		BestLines:   lines,
	}
}

const analyzeSafetyBound = 2 * time.Minute

// analyzeOnePosition spawns a fresh, single-use engine process for one
// position (no reuse across positions, to isolate faults), drives it to a
// single bestmove, and returns the final depth-complete multipv set.
func analyzeOnePosition(enginePath string, args []string, fen string, uciOptions map[string]string, multiPV int, mode uci.GoMode, log *wblog.Logger) ([]uci.BestLine, error) {
	p, err := engineproc.Spawn(enginePath, args, log)
	if err != nil {
		return nil, err
	}
	defer p.Kill()

	if err := p.Initialize(); err != nil {
		return nil, err
	}

	effective, err := uci.CalculateEffectiveMultiPV(multiPV, fen, nil)
	if err != nil {
		return nil, err
	}

	if err := p.Configure(engineproc.ConfigureRequest{
		FEN:              fen,
		UCIOptions:       uciOptions,
		RequestedMultiPV: multiPV,
	}); err != nil {
		return nil, err
	}

	handler := analysis.New(effective)

	if err := p.StartAnalysis(mode); err != nil {
		return nil, err
	}

	deadline := time.Now().Add(analyzeSafetyBound)
	for time.Now().Before(deadline) {
		line, ok, err := p.ReadLine(100 * time.Millisecond)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		switch line.Kind {
		case uci.LineInfo:
			_, _, _ = handler.Feed(line.Info, fen, nil)
		case uci.LineBestMove:
			_ = p.OnBestMove()
			return handler.LastComplete(), nil
		}
	}
	return nil, wberr.New(wberr.Timeout, "engine did not return bestmove within the analysis safety bound")
}
