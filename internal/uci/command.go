// Package uci implements the UCI text protocol codec consumed by the
// engine supervisor: formatting the handful of commands a supervisor
// sends to a subprocess engine, and parsing the lines an engine writes
// back.
package uci

import (
	"fmt"
	"strings"
	"time"
)

// GoMode is the tagged "go" variant: Depth, Time, Nodes, PlayersTime, or
// Infinite.
type GoMode struct {
	kind goKind

	Depth int
	Time  time.Duration
	Nodes uint64

	WTime, BTime time.Duration
	WInc, BInc   time.Duration
}

type goKind int

const (
	goDepth goKind = iota
	goTime
	goNodes
	goPlayersTime
	goInfinite
)

func GoDepth(d int) GoMode          { return GoMode{kind: goDepth, Depth: d} }
func GoTime(d time.Duration) GoMode { return GoMode{kind: goTime, Time: d} }
func GoNodes(n uint64) GoMode       { return GoMode{kind: goNodes, Nodes: n} }
func GoInfinite() GoMode            { return GoMode{kind: goInfinite} }
func GoPlayersTime(wtime, btime, winc, binc time.Duration) GoMode {
	return GoMode{kind: goPlayersTime, WTime: wtime, BTime: btime, WInc: winc, BInc: binc}
}

// FormatUCI formats the "uci" command.
func FormatUCI() string { return "uci\n" }

// FormatIsReady formats the "isready" command.
func FormatIsReady() string { return "isready\n" }

// FormatSetOption formats a "setoption" command.
func FormatSetOption(name, value string) string {
	return fmt.Sprintf("setoption name %s value %s\n", name, value)
}

// FormatPosition formats a "position fen F [moves ...]" command.
// chessbench always sends an explicit FEN, never the "startpos" keyword.
func FormatPosition(fen string, moves []string) string {
	var sb strings.Builder
	sb.WriteString("position fen ")
	sb.WriteString(fen)
	if len(moves) > 0 {
		sb.WriteString(" moves ")
		sb.WriteString(strings.Join(moves, " "))
	}
	sb.WriteByte('\n')
	return sb.String()
}

// FormatGo formats a "go ..." command for the given mode.
func FormatGo(mode GoMode) string {
	switch mode.kind {
	case goDepth:
		return fmt.Sprintf("go depth %d\n", mode.Depth)
	case goTime:
		return fmt.Sprintf("go movetime %d\n", mode.Time.Milliseconds())
	case goNodes:
		return fmt.Sprintf("go nodes %d\n", mode.Nodes)
	case goPlayersTime:
		// The trailing movetime caps a clock-driven evaluation at one
		// second so a long remaining clock doesn't stall the UI.
		return fmt.Sprintf("go wtime %d btime %d winc %d binc %d movetime 1000\n",
			mode.WTime.Milliseconds(), mode.BTime.Milliseconds(),
			mode.WInc.Milliseconds(), mode.BInc.Milliseconds())
	case goInfinite:
		return "go infinite\n"
	default:
		return "go infinite\n"
	}
}

// FormatStop formats the "stop" command.
func FormatStop() string { return "stop\n" }

// FormatQuit formats the "quit" command.
func FormatQuit() string { return "quit\n" }
