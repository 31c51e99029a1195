// Package engineproc spawns and drives a single external UCI engine
// subprocess: process lifecycle, the handshake, option configuration, and
// the staged stop/kill protocol. It never interprets chess rules itself;
// FEN and move validity are checked through the external chess library
// behind internal/chessutil.
package engineproc

import (
	"bufio"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"time"

	"github.com/arcbishop/chessbench/internal/uci"
	"github.com/arcbishop/chessbench/internal/wberr"
	"github.com/arcbishop/chessbench/internal/wblog"
)

// Process supervises one spawned engine binary end to end.
type Process struct {
	log *wblog.Logger

	cmd    *exec.Cmd
	stdin  *bufio.Writer
	stdinC interface{ Close() error }

	mu           sync.Mutex
	state        State
	stateChanged chan struct{}

	lines  chan string
	readMu sync.Mutex
	rdErr  error
	closed bool

	exited  chan struct{}
	exitErr error

	logMu sync.Mutex
	logs  []string

	Name    string
	Author  string
	Options []uci.OptionDescriptor

	currentOptions map[string]string
	currentFEN     string
	currentMoves   []string
}

// Spawn launches the engine binary at path, pipes its stdio, sets
// TERM=dumb, runs with its working directory set to the binary's own
// parent directory, and starts the stderr-drain and stdout-line-reader
// goroutines. It does not run the UCI handshake; call Initialize for
// that.
func Spawn(path string, args []string, log *wblog.Logger) (*Process, error) {
	cmd := exec.Command(path, args...)
	cmd.Dir = filepath.Dir(path)
	cmd.Env = append(envWithout("TERM"), "TERM=dumb")
	hideConsole(cmd)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, wberr.Wrap(wberr.NoStdin, "opening engine stdin", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, wberr.Wrap(wberr.NoStdout, "opening engine stdout", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, wberr.Wrap(wberr.Io, "opening engine stderr", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, wberr.Wrap(wberr.Io, "starting engine process", err)
	}

	p := &Process{
		log:            log,
		cmd:            cmd,
		stdin:          bufio.NewWriter(stdin),
		stdinC:         stdin,
		state:          Initializing,
		stateChanged:   make(chan struct{}),
		lines:          make(chan string, 1024),
		exited:         make(chan struct{}),
		currentOptions: map[string]string{},
	}

	go p.drainStdout(stdout)
	go p.drainStderr(stderr)
	go p.awaitExit()

	return p, nil
}

func envWithout(key string) []string {
	base := os.Environ()
	out := make([]string, 0, len(base))
	for _, kv := range base {
		if len(kv) > len(key) && kv[:len(key)+1] == key+"=" {
			continue
		}
		out = append(out, kv)
	}
	return out
}

func (p *Process) drainStdout(r io.Reader) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		p.appendLog("< " + line)
		select {
		case p.lines <- line:
		default:
			// consumer is behind; drop the oldest rather than block the reader.
			select {
			case <-p.lines:
			default:
			}
			select {
			case p.lines <- line:
			default:
			}
		}
	}
	p.readMu.Lock()
	p.rdErr = scanner.Err()
	p.closed = true
	p.readMu.Unlock()
	close(p.lines)
}

func (p *Process) drainStderr(r io.Reader) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		p.appendLog("! " + scanner.Text())
	}
}

func (p *Process) awaitExit() {
	err := p.cmd.Wait()
	p.exitErr = err
	close(p.exited)
}

func (p *Process) appendLog(line string) {
	p.logMu.Lock()
	p.logs = append(p.logs, line)
	p.logMu.Unlock()
}

// Logs returns the captured stdin/stdout/stderr transcript for this
// engine, newest entries last.
func (p *Process) Logs() []string {
	p.logMu.Lock()
	defer p.logMu.Unlock()
	out := make([]string, len(p.logs))
	copy(out, p.logs)
	return out
}

// writeLine sends one UCI command line to the engine's stdin, flushing
// immediately.
func (p *Process) writeLine(cmdLine string) error {
	p.appendLog("> " + cmdLine[:len(cmdLine)-1])
	if _, err := p.stdin.WriteString(cmdLine); err != nil {
		return wberr.Wrap(wberr.BrokenPipe, "writing to engine stdin", err)
	}
	if err := p.stdin.Flush(); err != nil {
		return wberr.Wrap(wberr.BrokenPipe, "flushing engine stdin", err)
	}
	return nil
}

// readLine waits up to timeout for the next stdout line. ok is false (with
// a nil error) when the timeout elapsed with nothing available; err is
// non-nil only once the stream has genuinely ended.
func (p *Process) readLine(timeout time.Duration) (line string, ok bool, err error) {
	select {
	case l, open := <-p.lines:
		if !open {
			p.readMu.Lock()
			e := p.rdErr
			p.readMu.Unlock()
			if e == nil {
				e = wberr.New(wberr.BrokenPipe, "engine stdout closed")
			}
			return "", false, e
		}
		return l, true, nil
	case <-time.After(timeout):
		return "", false, nil
	}
}

// State returns the current lifecycle state.
func (p *Process) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// transition moves the state machine to 'to', returning an
// InvalidTransition error if that edge isn't allowed. Waiters blocked in
// waitForState are woken.
func (p *Process) transition(to State) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !isValidTransition(p.state, to) {
		return wberr.WithFields(wberr.InvalidTransition, "invalid engine state transition",
			map[string]any{"from": p.state.String(), "to": to.String()})
	}
	p.state = to
	close(p.stateChanged)
	p.stateChanged = make(chan struct{})
	return nil
}

// forceTransition sets the state unconditionally (used when a deadline
// forces recovery, e.g. stop timeout or kill).
func (p *Process) forceTransition(to State) {
	p.mu.Lock()
	p.state = to
	close(p.stateChanged)
	p.stateChanged = make(chan struct{})
	p.mu.Unlock()
}

// waitForState blocks until the state becomes target, Terminated, or the
// timeout elapses, returning whether target was reached.
func (p *Process) waitForState(target State, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for {
		p.mu.Lock()
		cur := p.state
		ch := p.stateChanged
		p.mu.Unlock()
		if cur == target {
			return true
		}
		if cur == Terminated {
			return false
		}
		remain := time.Until(deadline)
		if remain <= 0 {
			return false
		}
		select {
		case <-ch:
		case <-time.After(remain):
			return false
		}
	}
}
