// Package pyexec implements the evaluation executor port by running scripts
// in a fresh python3 subprocess. A canonicalizing epilogue serializes the
// resulting globals as JSON behind a sentinel line so interpreter state can
// be compared structurally on this side of the pipe.
package pyexec

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"regexp"
	"strings"

	"github.com/mito-ds/mito-ai/internal/port/executor"
)

const sentinel = "---MITO_EVAL_SNAPSHOT---"

// epilogue canonicalizes the interpreter globals and prints them as JSON.
// Dataframes and series become their split-orient JSON, numpy arrays become
// lists, and NaN becomes a sentinel string so equality is NaN-tolerant.
// Underscored names, modules, functions and classes are dropped.
const epilogue = `
import json as _mito_json, types as _mito_types

def _mito_canon(v):
    try:
        import numpy as _np
    except Exception:
        _np = None
    try:
        import pandas as _pd
    except Exception:
        _pd = None
    if _pd is not None and isinstance(v, _pd.DataFrame):
        return {"__dataframe__": _mito_json.loads(v.to_json(orient="split", date_format="iso"))}
    if _pd is not None and isinstance(v, _pd.Series):
        return {"__series__": _mito_json.loads(v.to_json(orient="split", date_format="iso"))}
    if _np is not None and isinstance(v, _np.ndarray):
        return {"__array__": [_mito_canon(x) for x in v.tolist()]}
    if _np is not None and isinstance(v, _np.generic):
        return _mito_canon(v.item())
    if isinstance(v, float):
        if v != v:
            return "__nan__"
        return v
    if isinstance(v, (str, int, bool)) or v is None:
        return v
    if isinstance(v, (list, tuple, set)):
        return [_mito_canon(x) for x in v]
    if isinstance(v, dict):
        return {str(k): _mito_canon(x) for k, x in v.items()}
    return repr(v)

_mito_out = {}
for _k, _v in list(globals().items()):
    if _k.startswith("_"):
        continue
    if isinstance(_v, (_mito_types.ModuleType, _mito_types.FunctionType, _mito_types.BuiltinFunctionType, type)):
        continue
    _mito_out[_k] = _mito_canon(_v)
print("\n` + sentinel + `")
print(_mito_json.dumps(_mito_out, sort_keys=True))
`

var ansiEscape = regexp.MustCompile(`\x1b\[[0-9;]*[a-zA-Z]`)

// Executor runs scripts with the python3 on PATH.
type Executor struct {
	// Python overrides the interpreter binary. Empty means "python3".
	Python string
}

func (e *Executor) python() string {
	if e.Python != "" {
		return e.Python
	}
	return "python3"
}

// Run executes script in a fresh interpreter and returns its globals and
// captured stdout. Blocking display calls are rewritten out first. A script
// that raises returns an error carrying the traceback text.
func (e *Executor) Run(ctx context.Context, script string) (*executor.Snapshot, error) {
	program := rewriteBlockingCalls(script) + "\n" + epilogue

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, e.python(), "-c", program)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if tb := cleanTraceback(stderr.String()); tb != "" {
			return nil, fmt.Errorf("script failed: %s", tb)
		}
		return nil, fmt.Errorf("run python: %w", err)
	}

	userOut, trailer, found := strings.Cut(stdout.String(), "\n"+sentinel+"\n")
	if !found {
		return nil, fmt.Errorf("run python: snapshot trailer missing")
	}
	var globals map[string]any
	if err := json.Unmarshal([]byte(strings.TrimSpace(trailer)), &globals); err != nil {
		return nil, fmt.Errorf("run python: parse snapshot: %w", err)
	}
	return &executor.Snapshot{Globals: globals, Stdout: userOut}, nil
}

// CaptureTraceback executes a script expected to fail and returns its
// traceback with ANSI escapes stripped. A script that succeeds returns "".
func (e *Executor) CaptureTraceback(ctx context.Context, script string) (string, error) {
	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, e.python(), "-c", rewriteBlockingCalls(script))
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if _, ok := err.(*exec.ExitError); !ok {
			return "", fmt.Errorf("run python: %w", err)
		}
	}
	return cleanTraceback(stderr.String()), nil
}

// rewriteBlockingCalls drops lines that would block a headless run, like
// matplotlib's show().
func rewriteBlockingCalls(script string) string {
	lines := strings.Split(script, "\n")
	out := lines[:0]
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if strings.HasSuffix(trimmed, ".show()") && !strings.Contains(trimmed, "=") {
			continue
		}
		out = append(out, line)
	}
	return strings.Join(out, "\n")
}

// cleanTraceback strips ANSI escapes and keeps the traceback from its header
// line onward.
func cleanTraceback(stderr string) string {
	text := ansiEscape.ReplaceAllString(stderr, "")
	if idx := strings.Index(text, "Traceback"); idx >= 0 {
		text = text[idx:]
	}
	return strings.TrimSpace(text)
}
