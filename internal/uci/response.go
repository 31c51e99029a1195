package uci

import (
	"strconv"
	"strings"
)

// LineKind tags what kind of response line was parsed.
type LineKind int

const (
	LineOther LineKind = iota
	LineIDName
	LineIDAuthor
	LineOption
	LineUciOk
	LineReadyOk
	LineInfo
	LineBestMove
)

// OptionDescriptor is one "option ..." record an engine advertises during
// initialization.
type OptionDescriptor struct {
	Name    string
	Type    string
	Default string
	Min     int
	Max     int
	Vars    []string
}

// InfoAttrs holds the attributes parsed out of an "info ..." line.
// Unknown attributes are ignored.
type InfoAttrs struct {
	Depth    int
	SelDepth int
	MultiPV  int // defaults to 1 if absent
	Nodes    uint64
	NPS      uint64

	HasScore    bool
	ScoreIsMate bool
	ScoreCP     int
	ScoreMate   int
	UpperBound  bool
	LowerBound  bool

	HasWDL bool
	WDL    [3]int

	PV []string
}

// BestMoveLine is a parsed "bestmove M [ponder P]" line.
type BestMoveLine struct {
	Move   string
	Ponder string
}

// Line is one parsed engine response line.
type Line struct {
	Kind LineKind

	IDValue string // name or author text, for LineIDName/LineIDAuthor

	Option OptionDescriptor
	Info   InfoAttrs
	Best   BestMoveLine

	Raw string
}

// ParseLine classifies and parses a single line of engine stdout.
func ParseLine(raw string) Line {
	line := strings.TrimSpace(raw)
	fields := strings.Fields(line)

	switch {
	case len(fields) == 0:
		return Line{Kind: LineOther, Raw: raw}
	case line == "uciok":
		return Line{Kind: LineUciOk, Raw: raw}
	case line == "readyok":
		return Line{Kind: LineReadyOk, Raw: raw}
	case fields[0] == "id" && len(fields) >= 3 && fields[1] == "name":
		return Line{Kind: LineIDName, IDValue: strings.Join(fields[2:], " "), Raw: raw}
	case fields[0] == "id" && len(fields) >= 3 && fields[1] == "author":
		return Line{Kind: LineIDAuthor, IDValue: strings.Join(fields[2:], " "), Raw: raw}
	case fields[0] == "option":
		return Line{Kind: LineOption, Option: parseOption(fields[1:]), Raw: raw}
	case fields[0] == "info":
		return Line{Kind: LineInfo, Info: parseInfo(fields[1:]), Raw: raw}
	case fields[0] == "bestmove":
		return Line{Kind: LineBestMove, Best: parseBestMove(fields[1:]), Raw: raw}
	default:
		return Line{Kind: LineOther, Raw: raw}
	}
}

func parseOption(fields []string) OptionDescriptor {
	var opt OptionDescriptor
	i := 0
	for i < len(fields) {
		switch fields[i] {
		case "name":
			j := i + 1
			for j < len(fields) && fields[j] != "type" {
				j++
			}
			opt.Name = strings.Join(fields[i+1:j], " ")
			i = j
		case "type":
			if i+1 < len(fields) {
				opt.Type = fields[i+1]
			}
			i += 2
		case "default":
			j := i + 1
			for j < len(fields) && !isOptionKeyword(fields[j]) {
				j++
			}
			opt.Default = strings.Join(fields[i+1:j], " ")
			i = j
		case "min":
			if i+1 < len(fields) {
				opt.Min, _ = strconv.Atoi(fields[i+1])
			}
			i += 2
		case "max":
			if i+1 < len(fields) {
				opt.Max, _ = strconv.Atoi(fields[i+1])
			}
			i += 2
		case "var":
			if i+1 < len(fields) {
				opt.Vars = append(opt.Vars, fields[i+1])
			}
			i += 2
		default:
			i++
		}
	}
	return opt
}

func isOptionKeyword(s string) bool {
	switch s {
	case "name", "type", "default", "min", "max", "var":
		return true
	default:
		return false
	}
}

func parseInfo(fields []string) InfoAttrs {
	attrs := InfoAttrs{MultiPV: 1}

	i := 0
	for i < len(fields) {
		switch fields[i] {
		case "depth":
			i++
			if i < len(fields) {
				attrs.Depth, _ = strconv.Atoi(fields[i])
				i++
			}
		case "seldepth":
			i++
			if i < len(fields) {
				attrs.SelDepth, _ = strconv.Atoi(fields[i])
				i++
			}
		case "multipv":
			i++
			if i < len(fields) {
				attrs.MultiPV, _ = strconv.Atoi(fields[i])
				i++
			}
		case "nodes":
			i++
			if i < len(fields) {
				n, _ := strconv.ParseUint(fields[i], 10, 64)
				attrs.Nodes = n
				i++
			}
		case "nps":
			i++
			if i < len(fields) {
				n, _ := strconv.ParseUint(fields[i], 10, 64)
				attrs.NPS = n
				i++
			}
		case "score":
			i++
			if i < len(fields) {
				switch fields[i] {
				case "cp":
					i++
					if i < len(fields) {
						attrs.ScoreCP, _ = strconv.Atoi(fields[i])
						attrs.HasScore = true
						i++
					}
				case "mate":
					i++
					if i < len(fields) {
						attrs.ScoreMate, _ = strconv.Atoi(fields[i])
						attrs.HasScore = true
						attrs.ScoreIsMate = true
						i++
					}
				default:
					i++
				}
			}
			// optional trailing bound qualifier
			if i < len(fields) && (fields[i] == "lowerbound" || fields[i] == "upperbound") {
				if fields[i] == "lowerbound" {
					attrs.LowerBound = true
				} else {
					attrs.UpperBound = true
				}
				i++
			}
		case "wdl":
			i++
			if i+2 < len(fields) {
				w, _ := strconv.Atoi(fields[i])
				d, _ := strconv.Atoi(fields[i+1])
				l, _ := strconv.Atoi(fields[i+2])
				attrs.WDL = [3]int{w, d, l}
				attrs.HasWDL = true
				i += 3
			}
		case "pv":
			attrs.PV = append([]string(nil), fields[i+1:]...)
			i = len(fields)
		default:
			// Unknown attribute (e.g. "currmove", "hashfull", "tbhits");
			// skipped.
			i++
		}
	}
	return attrs
}

func parseBestMove(fields []string) BestMoveLine {
	var bm BestMoveLine
	if len(fields) > 0 {
		bm.Move = fields[0]
	}
	for i := 1; i < len(fields); i++ {
		if fields[i] == "ponder" && i+1 < len(fields) {
			bm.Ponder = fields[i+1]
		}
	}
	return bm
}
