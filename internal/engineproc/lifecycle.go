package engineproc

import (
	"sort"
	"strconv"
	"time"

	"github.com/arcbishop/chessbench/internal/chessutil"
	"github.com/arcbishop/chessbench/internal/uci"
	"github.com/arcbishop/chessbench/internal/wberr"
)

const (
	initDeadline  = 10 * time.Second
	pollInterval  = 100 * time.Millisecond
	stopQuickWait = 500 * time.Millisecond
	stopRetries   = 3
	stopRetryWait = 100 * time.Millisecond
	stopDeadline  = 8 * time.Second
	killGraceWait = 2 * time.Second
)

// Initialize runs the UCI handshake: "uci" until "uciok" (collecting id
// and option records), then "isready" until "readyok", all within a
// single 10-second deadline. On timeout the process is killed and an
// InitTimeout error is returned.
func (p *Process) Initialize() error {
	deadline := time.Now().Add(initDeadline)

	if err := p.writeLine(uci.FormatUCI()); err != nil {
		p.Kill()
		return err
	}
	if err := p.readUntil(deadline, func(l uci.Line) bool {
		switch l.Kind {
		case uci.LineIDName:
			p.Name = l.IDValue
		case uci.LineIDAuthor:
			p.Author = l.IDValue
		case uci.LineOption:
			p.Options = append(p.Options, l.Option)
		}
		return l.Kind == uci.LineUciOk
	}); err != nil {
		p.Kill()
		return err
	}

	if err := p.writeLine(uci.FormatIsReady()); err != nil {
		p.Kill()
		return err
	}
	if err := p.readUntil(deadline, func(l uci.Line) bool {
		return l.Kind == uci.LineReadyOk
	}); err != nil {
		p.Kill()
		return err
	}

	return p.transition(Idle)
}

// readUntil polls readLine until accept returns true for some parsed line,
// or the deadline passes.
func (p *Process) readUntil(deadline time.Time, accept func(uci.Line) bool) error {
	for {
		remain := time.Until(deadline)
		if remain <= 0 {
			return wberr.New(wberr.InitTimeout, "engine did not respond within deadline")
		}
		wait := pollInterval
		if remain < wait {
			wait = remain
		}
		line, ok, err := p.readLine(wait)
		if err != nil {
			return wberr.Wrap(wberr.InitTimeout, "engine stream ended during initialization", err)
		}
		if !ok {
			continue
		}
		if accept(uci.ParseLine(line)) {
			return nil
		}
	}
}

// ConfigureRequest bundles the options passed into Configure.
type ConfigureRequest struct {
	FEN              string
	Moves            []string
	UCIOptions       map[string]string
	RequestedMultiPV int // 0 means "not requested"
}

// Configure validates the requested position, diffs UCIOptions against
// what was last sent, and emits only the setoption/position lines needed
// to bring the engine to the new configuration. It clamps MultiPV (when
// present in UCIOptions or RequestedMultiPV is set) to the number of
// legal moves at the target position via uci.CalculateEffectiveMultiPV.
func (p *Process) Configure(req ConfigureRequest) error {
	pos, err := chessutil.ParseFEN(req.FEN)
	if err != nil {
		return err
	}
	for _, mvStr := range req.Moves {
		mv, err := chessutil.DecodeUCIMove(pos, mvStr)
		if err != nil {
			return err
		}
		pos = pos.Update(mv)
	}

	opts := req.UCIOptions
	if opts == nil {
		opts = map[string]string{}
	}
	if _, has := opts["MultiPV"]; has || req.RequestedMultiPV > 0 {
		requested := req.RequestedMultiPV
		if v, has := opts["MultiPV"]; has && requested == 0 {
			if n, err := strconv.Atoi(v); err == nil {
				requested = n
			}
		}
		effective, err := uci.CalculateEffectiveMultiPV(requested, req.FEN, req.Moves)
		if err != nil {
			return err
		}
		opts["MultiPV"] = strconv.Itoa(effective)
	}

	// Deterministic order keeps the transcript (and tests) stable.
	keys := make([]string, 0, len(opts))
	for k := range opts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		v := opts[k]
		if p.currentOptions[k] == v {
			continue
		}
		if err := p.writeLine(uci.FormatSetOption(k, v)); err != nil {
			return err
		}
		p.currentOptions[k] = v
	}

	if req.FEN != p.currentFEN || !stringsEqual(req.Moves, p.currentMoves) {
		if err := p.writeLine(uci.FormatPosition(req.FEN, req.Moves)); err != nil {
			return err
		}
		p.currentFEN = req.FEN
		p.currentMoves = append([]string(nil), req.Moves...)
	}

	return nil
}

// StartAnalysis requires the engine to be Idle, sends "go ...", and
// transitions to Analyzing.
func (p *Process) StartAnalysis(mode uci.GoMode) error {
	if st := p.State(); st != Idle {
		return wberr.WithFields(wberr.InvalidState, "cannot start analysis outside idle",
			map[string]any{"expected": Idle.String(), "actual": st.String()})
	}
	if err := p.writeLine(uci.FormatGo(mode)); err != nil {
		return err
	}
	return p.transition(Analyzing)
}

// ReadLine exposes the next parsed engine line to a supervisor polling
// loop, with the 100ms poll cadence baked in as the default when timeout
// is zero.
func (p *Process) ReadLine(timeout time.Duration) (uci.Line, bool, error) {
	if timeout <= 0 {
		timeout = pollInterval
	}
	raw, ok, err := p.readLine(timeout)
	if err != nil || !ok {
		return uci.Line{}, ok, err
	}
	return uci.ParseLine(raw), true, nil
}

// OnBestMove is called by the supervisor when a "bestmove" line arrives
// while Analyzing or Stopping, completing the Analyzing->Idle (or
// Stopping->Idle) edge of the state machine.
func (p *Process) OnBestMove() error {
	if p.State() == Idle {
		return nil
	}
	return p.transition(Idle)
}

// Stop runs the staged stop protocol: send "stop", wait 500ms for the
// engine to reach Idle via its bestmove; on timeout, retry "stop" up to 3
// times at 100ms spacing, bounded by an 8-second overall deadline. If the
// deadline is exceeded the state is forced to Idle and a StopTimeout
// error is returned (callers at the enginemgr layer swallow it). A broken
// pipe observed while writing "stop" means the engine is already gone:
// treated as success.
func (p *Process) Stop() error {
	switch p.State() {
	case Idle, Terminated:
		return nil
	}
	overall := time.Now().Add(stopDeadline)

	if err := p.writeLine(uci.FormatStop()); err != nil {
		if wberr.KindOf(err) == wberr.BrokenPipe {
			p.forceTransition(Idle)
			return nil
		}
		return err
	}
	// Best-effort: bestmove may already have raced us to Idle.
	_ = p.transition(Stopping)
	if p.waitForState(Idle, stopQuickWait) {
		return nil
	}

	for attempt := 0; attempt < stopRetries; attempt++ {
		if time.Now().After(overall) {
			break
		}
		if err := p.writeLine(uci.FormatStop()); err != nil {
			if wberr.KindOf(err) == wberr.BrokenPipe {
				p.forceTransition(Idle)
				return nil
			}
			return err
		}
		if p.waitForState(Idle, stopRetryWait) {
			return nil
		}
	}

	if remain := time.Until(overall); remain > 0 {
		if p.waitForState(Idle, remain) {
			return nil
		}
	}

	p.forceTransition(Idle)
	return wberr.New(wberr.StopTimeout, "engine did not acknowledge stop within deadline")
}

// Kill transitions unconditionally to Terminated, asks the engine to
// quit gracefully (2-second grace), and force-kills the OS process if it
// hasn't exited by then. Idempotent: a second call is a harmless no-op.
func (p *Process) Kill() error {
	p.forceTransition(Terminated)

	select {
	case <-p.exited:
		return nil
	default:
	}

	_ = p.writeLine(uci.FormatQuit())
	_ = p.stdinC.Close()

	select {
	case <-p.exited:
		return nil
	case <-time.After(killGraceWait):
	}

	if p.cmd.Process != nil {
		_ = p.cmd.Process.Kill()
	}
	<-p.exited
	return nil
}

func stringsEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
