// Package executor defines the code-execution port used by the evaluation
// harness. Implementations run a composed script and report its captured
// stdout plus a canonical JSON snapshot of the resulting globals.
package executor

import "context"

// Snapshot is the observable outcome of executing a script.
type Snapshot struct {
	// Globals maps variable name to a canonical JSON value. Builtins,
	// modules, functions and warning machinery are excluded.
	Globals map[string]any

	// Stdout is everything the script printed, excluding the snapshot
	// trailer itself.
	Stdout string
}

// Executor runs python scripts for fixture evaluation.
type Executor interface {
	// Run executes the script and returns its snapshot. A non-nil error
	// means the script failed to execute (syntax error, raised exception,
	// missing interpreter); the eval runner records it as a failure.
	Run(ctx context.Context, script string) (*Snapshot, error)

	// CaptureTraceback executes the script expecting it to fail, and returns
	// the structured, ANSI-stripped traceback text. Returns an error if the
	// script unexpectedly succeeds or the interpreter cannot run.
	CaptureTraceback(ctx context.Context, script string) (string, error)
}
