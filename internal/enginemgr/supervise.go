package enginemgr

import (
	"context"
	"time"

	"github.com/arcbishop/chessbench/internal/events"
	"github.com/arcbishop/chessbench/internal/uci"
	"github.com/arcbishop/chessbench/internal/wberr"
)

const (
	pollTimeout        = 100 * time.Millisecond
	maxConsecutiveErrs = 5
	flushEvery         = 10 // iterations between queue-drain attempts
)

// supervise is the per-record task loop: polls stdout every 100ms, feeds
// info lines to the analysis handler, handles the terminal bestmove
// transition, counts consecutive read errors (timeouts don't count), and
// periodically flushes the event queue.
func (m *Manager) supervise(ctx context.Context, key Key, rec *record, sessionID string) {
	defer close(rec.done)

	consecutiveErrs := 0
	iterations := 0

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		line, ok, err := rec.proc.ReadLine(pollTimeout)
		if err != nil {
			consecutiveErrs++
			if consecutiveErrs >= maxConsecutiveErrs {
				m.log.Error("supervisor for %s aborting: %v", sessionID, wberr.New(wberr.TooManyFailures, "too many consecutive read errors"))
				_ = rec.proc.Kill()
				m.teardownFromSupervisor(key)
				return
			}
			if wberr.KindOf(err) != wberr.BrokenPipe {
				time.Sleep(time.Duration(consecutiveErrs) * 50 * time.Millisecond)
			}
			continue
		}
		if !ok {
			iterations++
			if iterations%flushEvery == 0 {
				rec.fan.Flush()
			}
			continue
		}
		consecutiveErrs = 0

		switch line.Kind {
		case uci.LineInfo:
			m.handleInfo(key, rec, sessionID, line.Info)
		case uci.LineBestMove:
			m.handleBestMove(key, rec, sessionID)
		default:
			// Logged already by the process's own stdout-drain transcript.
		}

		iterations++
		if iterations%flushEvery == 0 {
			rec.fan.Flush()
		}
	}
}

func (m *Manager) handleInfo(key Key, rec *record, sessionID string, attrs uci.InfoAttrs) {
	lines, emit, err := rec.handler.Feed(attrs, rec.fen, rec.moves)
	if err != nil || !emit {
		return
	}
	_ = rec.fan.EmitBestLines(sessionID, events.BestLines{
		Lines:    lines,
		Engine:   key.EnginePath,
		Tab:      key.Tab,
		FEN:      rec.fen,
		Moves:    rec.moves,
		Progress: rec.handler.Progress(),
	})
}

func (m *Manager) handleBestMove(key Key, rec *record, sessionID string) {
	_ = rec.proc.OnBestMove()
	rec.handler.SetProgress(100)
	_ = rec.fan.EmitBestLines(sessionID, events.BestLines{
		Lines:    rec.handler.LastComplete(),
		Engine:   key.EnginePath,
		Tab:      key.Tab,
		FEN:      rec.fen,
		Moves:    rec.moves,
		Progress: 100,
	})
}

// teardownFromSupervisor removes a registry entry when the supervisor loop
// itself aborts (TooManyFailures), rather than in response to an explicit
// stop/kill call.
func (m *Manager) teardownFromSupervisor(key Key) {
	m.remove(key)
}
