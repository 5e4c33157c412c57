package engine

import (
	"errors"
	"fmt"
)

var (
	// ErrSpawn means the engine executable could not be launched.
	ErrSpawn = errors.New("engine spawn failed")
	// ErrProtocol means an expected token was missing from engine output.
	ErrProtocol = errors.New("engine protocol error")
	// ErrPipe means the process died or a pipe was closed mid-conversation.
	ErrPipe = errors.New("engine pipe failure")
	// ErrTimeout means a blocking call exceeded the session timeout and the process was killed.
	ErrTimeout = errors.New("engine call timed out")
	// ErrClosed is returned by calls on a closed session.
	ErrClosed = errors.New("engine session closed")

	ErrNoBestMove = fmt.Errorf("%w: no bestmove in output", ErrProtocol)
	ErrNoScore    = fmt.Errorf("%w: no score in output", ErrProtocol)
)

// OpError records the protocol step that failed, the failure kind and the cause.
type OpError struct {
	Op   string
	Kind error
	Err  error
}

func (e *OpError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("engine %s: %v", e.Op, e.Kind)
	}
	return fmt.Sprintf("engine %s: %v: %v", e.Op, e.Kind, e.Err)
}

func (e *OpError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}
