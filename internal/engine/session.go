// Package engine talks to a UCI chess engine over its standard input and output.
//
// A Session owns one engine process. All calls are synchronous and a session
// must only be used by one goroutine at a time.
package engine

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

const closeGrace = 2 * time.Second

// Options configures a session. The zero value is usable.
type Options struct {
	// Timeout bounds each blocking read loop. Zero waits forever.
	Timeout time.Duration
	Logger  zerolog.Logger
}

// Session is one running engine process.
type Session struct {
	path    string
	cmd     *exec.Cmd
	stdin   io.WriteCloser
	pipe    *os.File
	stdout  *bufio.Reader
	timeout time.Duration
	log     zerolog.Logger

	waitDone chan struct{}
	waitErr  error
	closed   bool
}

// Open launches the engine at path, reads its banner and switches it to UCI mode.
func Open(path string, opts Options) (*Session, error) {
	cmd := exec.Command(path)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, &OpError{Op: "stdin pipe", Kind: ErrSpawn, Err: err}
	}
	// Stdout is a plain pipe rather than cmd.StdoutPipe: Wait closes the
	// latter on exit, dropping lines the engine printed just before it quit.
	pr, pw, err := os.Pipe()
	if err != nil {
		return nil, &OpError{Op: "stdout pipe", Kind: ErrSpawn, Err: err}
	}
	cmd.Stdout = pw
	cmd.Stderr = io.Discard

	if err := cmd.Start(); err != nil {
		pr.Close()
		pw.Close()
		return nil, &OpError{Op: "start " + path, Kind: ErrSpawn, Err: err}
	}
	pw.Close()

	s := &Session{
		path:     path,
		cmd:      cmd,
		stdin:    stdin,
		pipe:     pr,
		stdout:   bufio.NewReader(pr),
		timeout:  opts.Timeout,
		log:      opts.Logger,
		waitDone: make(chan struct{}),
	}
	go func() {
		s.waitErr = cmd.Wait()
		close(s.waitDone)
	}()

	if err := s.handshake(); err != nil {
		_ = s.Close()
		return nil, err
	}

	s.log.Debug().Str("engine", path).Int("pid", cmd.Process.Pid).Msg("engine session opened")
	return s, nil
}

func (s *Session) handshake() error {
	var banner string
	err := s.guard(func() error {
		var err error
		banner, err = s.readLine()
		return err
	})
	if err != nil {
		return err
	}
	s.log.Debug().Str("banner", strings.TrimSpace(banner)).Msg("engine banner")

	if _, err := s.SendCommand("uci"); err != nil {
		return err
	}
	return nil
}

// SetPosition sends "position fen". The engine does not reply.
func (s *Session) SetPosition(fen string) error {
	return s.writeLine("position fen " + fen)
}

// RunToDepth runs a fixed-depth search and returns every line the engine
// printed up to and including the bestmove line.
func (s *Session) RunToDepth(depth int) (string, error) {
	if err := s.writeLine("go depth " + strconv.Itoa(depth)); err != nil {
		return "", err
	}

	var lines []string
	err := s.guard(func() error {
		for {
			line, err := s.readLine()
			if err != nil {
				return err
			}
			line = strings.TrimRight(line, "\r\n")
			lines = append(lines, line)
			if strings.Contains(line, "bestmove") {
				return nil
			}
		}
	})
	if err != nil {
		return "", err
	}
	return strings.Join(lines, "\n"), nil
}

// SendCommand sends cmd followed by "isready" and collects output until
// "readyok". The readyok line itself is not returned.
func (s *Session) SendCommand(cmd string) (string, error) {
	if err := s.writeLine(strings.TrimSpace(cmd)); err != nil {
		return "", err
	}
	if err := s.writeLine("isready"); err != nil {
		return "", err
	}

	var lines []string
	err := s.guard(func() error {
		for {
			line, err := s.readLine()
			if err != nil {
				return err
			}
			trimmed := strings.TrimSpace(line)
			if trimmed == "readyok" {
				return nil
			}
			lines = append(lines, trimmed)
		}
	})
	if err != nil {
		return "", err
	}
	return strings.Join(lines, "\n"), nil
}

// Evaluate searches the current position to depth and parses the result.
func (s *Session) Evaluate(depth int) (Analysis, error) {
	raw, err := s.RunToDepth(depth)
	if err != nil {
		return Analysis{}, err
	}
	analysis, err := ParseAnalysis(raw)
	if err != nil {
		return Analysis{}, &OpError{Op: fmt.Sprintf("go depth %d", depth), Kind: ErrProtocol, Err: err}
	}
	return analysis, nil
}

// Close asks the engine to quit and reaps the process, killing it if it
// does not exit in time.
func (s *Session) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true

	if !s.Exited() {
		_, _ = io.WriteString(s.stdin, "quit\n")
	}
	_ = s.stdin.Close()
	defer s.pipe.Close()

	select {
	case <-s.waitDone:
	case <-time.After(closeGrace):
		if err := s.cmd.Process.Kill(); err != nil {
			return &OpError{Op: "kill process", Kind: ErrPipe, Err: err}
		}
		<-s.waitDone
	}
	s.log.Debug().Str("engine", s.path).AnErr("exit", s.waitErr).Msg("engine session closed")
	return nil
}

// Exited reports whether the engine process has terminated.
func (s *Session) Exited() bool {
	select {
	case <-s.waitDone:
		return true
	default:
		return false
	}
}

func (s *Session) writeLine(line string) error {
	if s.closed {
		return &OpError{Op: "write", Kind: ErrClosed}
	}
	if _, err := io.WriteString(s.stdin, line+"\n"); err != nil {
		return &OpError{Op: "write " + firstWord(line), Kind: ErrPipe, Err: err}
	}
	return nil
}

// readLine returns the next line including its newline. A partial line at
// EOF is an error: the engine never ends output without a newline.
func (s *Session) readLine() (string, error) {
	if s.closed {
		return "", &OpError{Op: "read", Kind: ErrClosed}
	}
	line, err := s.stdout.ReadString('\n')
	if err != nil {
		return "", &OpError{Op: "read line", Kind: ErrPipe, Err: err}
	}
	return line, nil
}

// guard runs a blocking read loop, killing the process if it exceeds the
// session timeout.
func (s *Session) guard(fn func() error) error {
	if s.timeout <= 0 {
		return fn()
	}

	var fired atomic.Bool
	timer := time.AfterFunc(s.timeout, func() {
		fired.Store(true)
		_ = s.cmd.Process.Kill()
	})
	err := fn()
	timer.Stop()

	if err != nil && fired.Load() {
		return &OpError{Op: "wait for engine", Kind: ErrTimeout, Err: fmt.Errorf("no reply within %s", s.timeout)}
	}
	return err
}

func firstWord(line string) string {
	if i := strings.IndexByte(line, ' '); i >= 0 {
		return line[:i]
	}
	return line
}
