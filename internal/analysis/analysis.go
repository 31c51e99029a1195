// Package analysis assembles a burst of UCI "info" lines from one engine
// session into depth-complete, rank-ordered multipv result sets, and
// decides when a result is worth publishing (the 50ms/new-depth rate
// gate).
package analysis

import (
	"sync"
	"time"

	"github.com/arcbishop/chessbench/internal/uci"
)

const rateGateInterval = 50 * time.Millisecond

// Handler holds the per-session multipv assembly state.
type Handler struct {
	mu sync.Mutex

	realMultiPV int

	pending      []uci.BestLine
	lastComplete []uci.BestLine
	lastDepth    int
	lastProgress int
	hasEmitted   bool
	lastEvent    time.Time
}

// New creates a Handler for a session with the given effective MultiPV
// (uci.CalculateEffectiveMultiPV, at least 1).
func New(realMultiPV int) *Handler {
	if realMultiPV < 1 {
		realMultiPV = 1
	}
	return &Handler{realMultiPV: realMultiPV}
}

// Feed processes one parsed "info" line. It returns the best-lines snapshot
// to publish (nil when nothing is ready) and whether the rate gate says to
// publish it now. The Handler itself keeps the latest completed set
// whether or not emit is true (see LastComplete), so a snapshot the gate
// holds back is not lost; internal/enginemgr drops it and reads
// LastComplete when the bestmove arrives.
func (h *Handler) Feed(attrs uci.InfoAttrs, startFEN string, movesPlayed []string) (lines []uci.BestLine, emit bool, err error) {
	bl, err := uci.ParseInfoToBestLine(attrs, startFEN, movesPlayed)
	if err != nil {
		return nil, false, err
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.realMultiPV == 1 {
		emitNow := h.gate(bl.Depth)
		return h.completeOne(bl), emitNow, nil
	}

	k := bl.MultiPV
	if k != len(h.pending)+1 {
		h.pending = nil
		if k == 1 {
			h.pending = append(h.pending, bl)
		}
		return nil, false, nil
	}
	h.pending = append(h.pending, bl)

	if k < h.realMultiPV {
		return nil, false, nil
	}

	depth := h.pending[0].Depth
	sameDepth := true
	for _, p := range h.pending {
		if p.Depth != depth {
			sameDepth = false
			break
		}
	}
	if !sameDepth || depth < h.lastDepth {
		h.pending = nil
		return nil, false, nil
	}

	snap := append([]uci.BestLine(nil), h.pending...)
	h.pending = nil
	emitNow := h.gate(depth)
	h.lastComplete = snap
	if depth > h.lastDepth {
		h.lastDepth = depth
	}
	return snap, emitNow, nil
}

func (h *Handler) completeOne(bl uci.BestLine) []uci.BestLine {
	snap := []uci.BestLine{bl}
	h.lastComplete = snap
	emitDepth := bl.Depth
	if emitDepth > h.lastDepth {
		h.lastDepth = emitDepth
	}
	return snap
}

// gate implements should_emit_now(): never-emitted, or a strictly deeper
// depth than the last bump, or 50ms since the last emission, always wins;
// it also records the emission bookkeeping (hasEmitted/lastEvent) when it
// returns true.
func (h *Handler) gate(depth int) bool {
	ok := !h.hasEmitted || depth > h.lastDepth || time.Since(h.lastEvent) >= rateGateInterval
	if ok {
		h.hasEmitted = true
		h.lastEvent = time.Now()
	}
	return ok
}

// LastComplete returns the most recently completed multipv set, used to
// build the terminal "bestmove" BestLines payload.
func (h *Handler) LastComplete() []uci.BestLine {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]uci.BestLine(nil), h.lastComplete...)
}

// LastDepth returns the deepest depth bumped into lastDepth so far.
func (h *Handler) LastDepth() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.lastDepth
}

// SetProgress records the session's progress percentage, clamped to
// [0, 100]. The supervisor sets 100 when bestmove arrives.
func (h *Handler) SetProgress(pct int) {
	if pct < 0 {
		pct = 0
	}
	if pct > 100 {
		pct = 100
	}
	h.mu.Lock()
	h.lastProgress = pct
	h.mu.Unlock()
}

// Progress returns the last recorded progress percentage.
func (h *Handler) Progress() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.lastProgress
}
