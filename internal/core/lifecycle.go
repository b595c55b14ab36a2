package core

import "fmt"

// transitions lists the allowed next states of each non-terminal state.
var transitions = map[FileStatus][]FileStatus{
	StatusPending:    {StatusUploading, StatusError},
	StatusUploading:  {StatusProcessing, StatusError},
	StatusProcessing: {StatusCompleted, StatusError},
}

// CanTransition reports whether a file may move from one status to another.
func CanTransition(from, to FileStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// checkTransition returns ErrTerminalState for moves out of a terminal state
// and a descriptive error for any other illegal move.
func checkTransition(from, to FileStatus) error {
	if from.Terminal() {
		return fmt.Errorf("%w: %s -> %s", ErrTerminalState, from, to)
	}
	if !CanTransition(from, to) {
		return fmt.Errorf("illegal upload transition %s -> %s", from, to)
	}
	return nil
}
