// Package uci drives an external UCI chess engine over its stdin/stdout.
//
// Every interaction is a one-line command followed by a blocking read for a
// matching response line, bounded by an explicit deadline. Anything else the
// engine prints (info lines, banners, diagnostics) is skipped; stderr is
// drained and ignored entirely.
package uci

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Error taxonomy for engine interactions. Callers classify failures with
// errors.Is; every error returned by this package wraps one of these.
var (
	// ErrLaunch means the engine executable could not be started at all.
	ErrLaunch = errors.New("engine failed to launch")
	// ErrCrashed means the engine process exited or closed its streams
	// while a response was still expected.
	ErrCrashed = errors.New("engine process exited")
	// ErrTimeout means the expected response line did not arrive within
	// the deadline.
	ErrTimeout = errors.New("engine response timed out")
	// ErrProtocol means the engine produced output that cannot be used,
	// such as a malformed or empty bestmove.
	ErrProtocol = errors.New("engine protocol violation")
)

const (
	// launchSettle is how long Launch watches a fresh process for an
	// immediate exit before declaring it started.
	launchSettle = 50 * time.Millisecond
	// shutdownGrace is how long Shutdown waits after "quit" before
	// killing the process.
	shutdownGrace = 2 * time.Second
	// defaultSearchGrace is added to the move time budget when waiting
	// for a bestmove, covering engine-side overhead.
	defaultSearchGrace = time.Second
)

// Identity describes how to start one engine. It is immutable after
// configuration time.
type Identity struct {
	Name string
	Path string
	Args []string
}

// Engine owns one engine subprocess and its streams. An Engine is used by a
// single game at a time and is never reused across games; Shutdown must be
// called on every path once Launch has succeeded.
type Engine struct {
	id    Identity
	log   zerolog.Logger
	grace time.Duration

	cmd     *exec.Cmd
	stdin   io.WriteCloser
	lines   chan string
	exited  chan struct{}
	waitErr error

	quitOnce sync.Once

	// reported is the name the engine announced via "id name", for
	// logging only; Identity.Name stays authoritative.
	reported string
}

// Launch starts the engine subprocess with its streams attached. It fails
// with an error wrapping ErrLaunch when the executable is missing, not
// runnable, or exits immediately.
func Launch(id Identity, logger zerolog.Logger) (*Engine, error) {
	cmd := exec.Command(id.Path, id.Args...)
	// Engines often resolve nets/books relative to their own directory.
	cmd.Dir = filepath.Dir(id.Path)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("%w: stdin pipe: %v", ErrLaunch, err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("%w: stdout pipe: %v", ErrLaunch, err)
	}
	cmd.Stderr = io.Discard

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrLaunch, id.Path, err)
	}

	e := &Engine{
		id:     id,
		log:    logger.With().Str("engine", id.Name).Logger(),
		grace:  defaultSearchGrace,
		cmd:    cmd,
		stdin:  stdin,
		lines:  make(chan string, 64),
		exited: make(chan struct{}),
	}

	go func() {
		e.scanLines(stdout)
		e.waitErr = cmd.Wait()
		close(e.exited)
	}()

	select {
	case <-e.exited:
		return nil, fmt.Errorf("%w: %s exited immediately: %v", ErrLaunch, id.Path, e.waitErr)
	case <-time.After(launchSettle):
	}

	e.log.Debug().Str("path", id.Path).Strs("args", id.Args).Msg("engine launched")
	return e, nil
}

// scanLines pumps stdout lines into the line channel and closes it on EOF.
func (e *Engine) scanLines(r io.Reader) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		e.log.Trace().Str("recv", line).Msg("uci")
		e.lines <- line
	}
	close(e.lines)
}

// Name returns the configured engine name.
func (e *Engine) Name() string { return e.id.Name }

func (e *Engine) send(format string, args ...any) error {
	line := fmt.Sprintf(format, args...)
	e.log.Trace().Str("send", line).Msg("uci")
	if _, err := io.WriteString(e.stdin, line+"\n"); err != nil {
		return fmt.Errorf("%w: writing %q: %v", ErrCrashed, line, err)
	}
	return nil
}

// readLine returns the next output line, ErrTimeout once the deadline
// passes, or ErrCrashed when the process has closed its stdout.
func (e *Engine) readLine(deadline time.Time) (string, error) {
	timer := time.NewTimer(time.Until(deadline))
	defer timer.Stop()
	select {
	case line, ok := <-e.lines:
		if !ok {
			return "", ErrCrashed
		}
		return line, nil
	case <-timer.C:
		return "", ErrTimeout
	}
}

// Handshake sends the initial "uci" greeting and reads until the engine
// signals "uciok" within the timeout.
func (e *Engine) Handshake(timeout time.Duration) error {
	if err := e.send("uci"); err != nil {
		return err
	}
	deadline := time.Now().Add(timeout)
	for {
		line, err := e.readLine(deadline)
		if err != nil {
			return fmt.Errorf("handshake: %w", err)
		}
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		switch fields[0] {
		case "uciok":
			if e.reported != "" {
				e.log.Debug().Str("id", e.reported).Msg("handshake complete")
			}
			return nil
		case "id":
			if name, ok := parseIDName(line); ok {
				e.reported = name
			}
		}
	}
}

// ApplyOptions sends setoption commands in deterministic order. Engines
// that do not support an option simply ignore it; a failed option never
// blocks the match, so only write errors are returned.
func (e *Engine) ApplyOptions(options map[string]string) error {
	names := make([]string, 0, len(options))
	for name := range options {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if err := e.send("setoption name %s value %s", name, options[name]); err != nil {
			return err
		}
	}
	return nil
}

// WaitReady sends an "isready" probe and blocks until the matching
// "readyok" arrives or the timeout elapses.
func (e *Engine) WaitReady(timeout time.Duration) error {
	if err := e.send("isready"); err != nil {
		return err
	}
	deadline := time.Now().Add(timeout)
	for {
		line, err := e.readLine(deadline)
		if err != nil {
			return fmt.Errorf("isready: %w", err)
		}
		if strings.TrimSpace(line) == "readyok" {
			return nil
		}
	}
}

// NewGame tells the engine to reset its internal game state.
func (e *Engine) NewGame() error {
	return e.send("ucinewgame")
}

// Prepare runs the full pre-game exchange: handshake, options, readiness
// probe, and game reset.
func (e *Engine) Prepare(options map[string]string, timeout time.Duration) error {
	if err := e.Handshake(timeout); err != nil {
		return err
	}
	if err := e.ApplyOptions(options); err != nil {
		return err
	}
	if err := e.WaitReady(timeout); err != nil {
		return err
	}
	return e.NewGame()
}

// SetPosition synchronizes the engine with the game position: the starting
// FEN (empty for the standard start) plus every move played so far. The
// full move list is resent each turn; no incremental state is assumed.
func (e *Engine) SetPosition(startFEN string, moves []string) error {
	var sb strings.Builder
	if startFEN == "" {
		sb.WriteString("position startpos")
	} else {
		sb.WriteString("position fen ")
		sb.WriteString(startFEN)
	}
	if len(moves) > 0 {
		sb.WriteString(" moves ")
		sb.WriteString(strings.Join(moves, " "))
	}
	return e.send("%s", sb.String())
}

// Search asks the engine for a move under the given time budget and blocks
// until a bestmove line arrives. It fails with ErrTimeout when no bestmove
// arrives within the budget plus a grace margin, ErrProtocol when the
// bestmove is unusable, and ErrCrashed when the process has exited.
func (e *Engine) Search(moveTime time.Duration) (string, error) {
	if err := e.send("go movetime %d", moveTime.Milliseconds()); err != nil {
		return "", err
	}
	deadline := time.Now().Add(moveTime + e.grace)
	for {
		line, err := e.readLine(deadline)
		if err != nil {
			return "", fmt.Errorf("search: %w", err)
		}
		fields := strings.Fields(line)
		if len(fields) == 0 || fields[0] != "bestmove" {
			continue
		}
		move, err := parseBestMove(line)
		if err != nil {
			return "", err
		}
		return move, nil
	}
}

// Shutdown terminates the engine: a polite "quit", a grace period, then a
// kill. It is idempotent and always releases the streams, so it is safe to
// defer immediately after Launch regardless of which later step failed.
func (e *Engine) Shutdown() {
	e.quitOnce.Do(func() {
		// The game is over; discard any backlogged engine output so the
		// reader can reach EOF instead of blocking on a full channel
		// while the engine is still streaming info lines.
		go func() {
			for range e.lines {
			}
		}()
		_ = e.send("quit")
		_ = e.stdin.Close()
		select {
		case <-e.exited:
		case <-time.After(shutdownGrace):
			e.log.Warn().Msg("engine ignored quit, killing process")
			if e.cmd != nil && e.cmd.Process != nil {
				_ = e.cmd.Process.Kill()
			}
			<-e.exited
		}
		e.log.Debug().Msg("engine shut down")
	})
}
