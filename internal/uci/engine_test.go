package uci

import (
	"bufio"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

// newScriptedEngine wires an Engine to an in-process fake engine. handle is
// called with each command line the Engine sends and returns the response
// lines plus whether the fake should close its output stream afterwards
// (simulating a process exit).
func newScriptedEngine(t *testing.T, handle func(cmd string) ([]string, bool)) *Engine {
	t.Helper()

	cmdR, cmdW := io.Pipe()
	outR, outW := io.Pipe()

	e := &Engine{
		id:     Identity{Name: "scripted"},
		log:    zerolog.Nop(),
		grace:  defaultSearchGrace,
		stdin:  cmdW,
		lines:  make(chan string, 64),
		exited: make(chan struct{}),
	}

	go func() {
		e.scanLines(outR)
		close(e.exited)
	}()

	go func() {
		// Keep draining commands after a simulated exit so writes to the
		// fake's stdin never block, mirroring the EPIPE a real dead
		// process would produce via the engine's own error handling.
		exited := false
		scanner := bufio.NewScanner(cmdR)
		for scanner.Scan() {
			if exited {
				continue
			}
			responses, closeOut := handle(scanner.Text())
			for _, line := range responses {
				if _, err := io.WriteString(outW, line+"\n"); err != nil {
					return
				}
			}
			if closeOut {
				outW.Close()
				exited = true
			}
		}
		if !exited {
			outW.Close()
		}
	}()

	t.Cleanup(e.Shutdown)
	return e
}

// scriptQuit is the default quit handling shared by the tests.
func scriptQuit(cmd string) ([]string, bool) {
	return nil, cmd == "quit"
}

func TestHandshake(t *testing.T) {
	e := newScriptedEngine(t, func(cmd string) ([]string, bool) {
		if cmd == "uci" {
			return []string{
				"id name Scripted 1.0",
				"id author nobody",
				"option name Threads type spin default 1 min 1 max 64",
				"uciok",
			}, false
		}
		return scriptQuit(cmd)
	})

	if err := e.Handshake(time.Second); err != nil {
		t.Fatalf("Handshake: %v", err)
	}
	if e.reported != "Scripted 1.0" {
		t.Errorf("reported name = %q, want %q", e.reported, "Scripted 1.0")
	}
}

func TestHandshakeTimeout(t *testing.T) {
	e := newScriptedEngine(t, func(cmd string) ([]string, bool) {
		if cmd == "uci" {
			// Chatter but never uciok.
			return []string{"id name Mute"}, false
		}
		return scriptQuit(cmd)
	})

	err := e.Handshake(50 * time.Millisecond)
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("Handshake error = %v, want ErrTimeout", err)
	}
}

func TestWaitReady(t *testing.T) {
	e := newScriptedEngine(t, func(cmd string) ([]string, bool) {
		if cmd == "isready" {
			return []string{"info string warming up", "readyok"}, false
		}
		return scriptQuit(cmd)
	})

	if err := e.WaitReady(time.Second); err != nil {
		t.Fatalf("WaitReady: %v", err)
	}
}

func TestSearchReturnsBestMove(t *testing.T) {
	var gotPosition string
	e := newScriptedEngine(t, func(cmd string) ([]string, bool) {
		switch {
		case cmd == "go movetime 100":
			return []string{
				"info depth 1 score cp 20 pv e2e4",
				"bestmove e2e4 ponder e7e5",
			}, false
		case len(cmd) > 8 && cmd[:8] == "position":
			gotPosition = cmd
			return nil, false
		}
		return scriptQuit(cmd)
	})

	if err := e.SetPosition("", []string{"d2d4", "g8f6"}); err != nil {
		t.Fatalf("SetPosition: %v", err)
	}
	move, err := e.Search(100 * time.Millisecond)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if move != "e2e4" {
		t.Errorf("move = %q, want e2e4", move)
	}
	// SetPosition must resend the complete move list, not a diff.
	want := "position startpos moves d2d4 g8f6"
	if gotPosition != want {
		t.Errorf("position command = %q, want %q", gotPosition, want)
	}
}

func TestSetPositionFromFEN(t *testing.T) {
	var gotPosition string
	e := newScriptedEngine(t, func(cmd string) ([]string, bool) {
		if len(cmd) > 8 && cmd[:8] == "position" {
			gotPosition = cmd
			// Echo something so the test can synchronize on the write.
			return []string{"readyok"}, false
		}
		return scriptQuit(cmd)
	})

	fen := "k1K5/8/8/8/8/8/8/1Q6 w - - 0 1"
	if err := e.SetPosition(fen, nil); err != nil {
		t.Fatalf("SetPosition: %v", err)
	}
	if err := e.WaitReady(time.Second); err != nil {
		t.Fatalf("WaitReady: %v", err)
	}
	want := "position fen " + fen
	if gotPosition != want {
		t.Errorf("position command = %q, want %q", gotPosition, want)
	}
}

func TestSearchTimeout(t *testing.T) {
	e := newScriptedEngine(t, func(cmd string) ([]string, bool) {
		// Never answer go; the engine is hung.
		return scriptQuit(cmd)
	})
	e.grace = 50 * time.Millisecond

	_, err := e.Search(10 * time.Millisecond)
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("Search error = %v, want ErrTimeout", err)
	}
}

func TestSearchCrash(t *testing.T) {
	e := newScriptedEngine(t, func(cmd string) ([]string, bool) {
		if len(cmd) > 2 && cmd[:2] == "go" {
			return []string{"info depth 1"}, true // exit mid-search
		}
		return scriptQuit(cmd)
	})

	_, err := e.Search(100 * time.Millisecond)
	if !errors.Is(err, ErrCrashed) {
		t.Fatalf("Search error = %v, want ErrCrashed", err)
	}
}

func TestSearchNoMoveIsProtocolError(t *testing.T) {
	e := newScriptedEngine(t, func(cmd string) ([]string, bool) {
		if len(cmd) > 2 && cmd[:2] == "go" {
			return []string{"bestmove (none)"}, false
		}
		return scriptQuit(cmd)
	})

	_, err := e.Search(100 * time.Millisecond)
	if !errors.Is(err, ErrProtocol) {
		t.Fatalf("Search error = %v, want ErrProtocol", err)
	}
}

func TestApplyOptionsOrder(t *testing.T) {
	var got []string
	e := newScriptedEngine(t, func(cmd string) ([]string, bool) {
		if len(cmd) > 9 && cmd[:9] == "setoption" {
			got = append(got, cmd)
			return nil, false
		}
		if cmd == "isready" {
			return []string{"readyok"}, false
		}
		return scriptQuit(cmd)
	})

	err := e.ApplyOptions(map[string]string{"Threads": "1", "Hash": "16"})
	if err != nil {
		t.Fatalf("ApplyOptions: %v", err)
	}
	// Synchronize so both setoption lines have been consumed.
	if err := e.WaitReady(time.Second); err != nil {
		t.Fatalf("WaitReady: %v", err)
	}
	want := []string{
		"setoption name Hash value 16",
		"setoption name Threads value 1",
	}
	if len(got) != len(want) {
		t.Fatalf("sent %d setoption commands, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("setoption[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestShutdownIdempotent(t *testing.T) {
	e := newScriptedEngine(t, scriptQuit)
	e.Shutdown()
	e.Shutdown() // second call must be a no-op, not a hang or panic

	if _, err := e.Search(10 * time.Millisecond); !errors.Is(err, ErrCrashed) {
		t.Fatalf("Search after shutdown = %v, want ErrCrashed", err)
	}
}

func TestShutdownWithBackloggedOutput(t *testing.T) {
	cmdR, cmdW := io.Pipe()
	outR, outW := io.Pipe()

	e := &Engine{
		id:     Identity{Name: "flooder"},
		log:    zerolog.Nop(),
		grace:  20 * time.Millisecond,
		stdin:  cmdW,
		lines:  make(chan string, 64),
		exited: make(chan struct{}),
	}
	go func() {
		e.scanLines(outR)
		close(e.exited)
	}()

	// The fake engine streams info lines from a separate goroutine, far
	// more than the line channel holds, and never produces a bestmove.
	flood := make(chan struct{})
	go func() {
		<-flood
		for i := 0; i < 500; i++ {
			if _, err := io.WriteString(outW, "info depth 1 nodes 12345\n"); err != nil {
				return
			}
		}
	}()
	go func() {
		scanner := bufio.NewScanner(cmdR)
		for scanner.Scan() {
			switch cmd := scanner.Text(); {
			case len(cmd) > 2 && cmd[:2] == "go":
				close(flood)
			case cmd == "quit":
				outW.Close()
				return
			}
		}
	}()

	if _, err := e.Search(10 * time.Millisecond); !errors.Is(err, ErrTimeout) {
		t.Fatalf("Search error = %v, want ErrTimeout", err)
	}

	// Teardown must complete even though the engine still has unread
	// output queued behind a full line channel.
	done := make(chan struct{})
	go func() {
		e.Shutdown()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Shutdown hung on backlogged engine output")
	}
}

func TestLaunchMissingExecutable(t *testing.T) {
	_, err := Launch(Identity{Name: "ghost", Path: "/nonexistent/engine/binary"}, zerolog.Nop())
	if !errors.Is(err, ErrLaunch) {
		t.Fatalf("Launch error = %v, want ErrLaunch", err)
	}
}
